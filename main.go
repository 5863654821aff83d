package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	billingapp "tariff-billing/internal/billing/application"
	billinginterfaces "tariff-billing/internal/billing/interfaces"
	billinghttp "tariff-billing/internal/billing/interfaces/http"
	"tariff-billing/internal/config"
	"tariff-billing/internal/eventing"
	"tariff-billing/internal/metering/infrastructure/spreadsheet"
	"tariff-billing/internal/observability/logging"
	"tariff-billing/internal/observability/metrics"
	tarifffile "tariff-billing/internal/tariff/infrastructure/file"
	tariffmemory "tariff-billing/internal/tariff/infrastructure/memory"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// The logger is not built yet.
		_, _ = os.Stderr.WriteString("config error: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		_, _ = os.Stderr.WriteString("logger error: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	metrics.Init()

	defs, err := tarifffile.LoadDir(cfg.TariffDir)
	if err != nil {
		logger.Fatal("load tariffs", zap.String("dir", cfg.TariffDir), zap.Error(err))
	}
	catalogue, err := tariffmemory.NewCatalogue(defs...)
	if err != nil {
		logger.Fatal("tariff catalogue", zap.Error(err))
	}
	metrics.SetTariffsLoaded(catalogue.Len())
	for _, def := range defs {
		logger.Info("tariff loaded",
			zap.String("code", def.Code),
			zap.String("display_name", def.DisplayName),
			zap.Int("charges", len(def.Charges)),
		)
	}

	bus := eventing.NewBus()
	billinginterfaces.SubscribeLogging(bus, billinginterfaces.NewLoggingPublisher(logger.Named("events")))

	billingService, err := billingapp.NewBillingService(catalogue,
		billingapp.WithLogger(logger.Named("billing")),
		billingapp.WithPublisher(billinginterfaces.NewBusPublisher(bus)),
		billingapp.WithConcurrency(cfg.MaxConcurrentCharges),
		billingapp.WithDefaultVoltageType(cfg.DefaultVoltageType),
	)
	if err != nil {
		logger.Fatal("billing service", zap.Error(err))
	}
	billingHandler, err := billinghttp.NewHandler(billingService, billinghttp.WithReadingOptions(spreadsheet.Options{
		Multiplier: cfg.ReadingMultiplier,
		DateLayout: cfg.DateLayout,
		Interval:   cfg.Interval(),
	}))
	if err != nil {
		logger.Fatal("billing handler", zap.Error(err))
	}

	mux := http.NewServeMux()
	billingHandler.Register(mux)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           loggingMiddleware(mux, logger.Named("http")),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", zap.Error(err))
		}
	}()

	logger.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.Int("tariffs", catalogue.Len()))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("http server", zap.Error(err))
	}
	logger.Info("http stopped")
}

func loggingMiddleware(next http.Handler, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", resp.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
