package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tariff-billing/internal/billing/application"
	billing "tariff-billing/internal/billing/domain"
	"tariff-billing/internal/billing/interfaces"
	metering "tariff-billing/internal/metering/domain"
	"tariff-billing/internal/metering/infrastructure/spreadsheet"
	"tariff-billing/internal/observability/metrics"
	tariff "tariff-billing/internal/tariff/domain"
)

const (
	billsPath   = "/api/v1/bills"
	tariffsPath = "/api/v1/tariffs"

	defaultMaxBody = 32 << 20

	maxIntervalMinutes = 24 * 60

	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// BillingService is the application surface the handler needs.
type BillingService interface {
	Calculate(ctx context.Context, req application.BillRequest) (*application.Bill, error)
	Tariffs(ctx context.Context) ([]*tariff.Definition, error)
	Tariff(ctx context.Context, code string) (*tariff.Definition, error)
}

// Option configures the handler.
type Option func(*Handler)

// WithReadingOptions sets defaults for uploaded meter files.
func WithReadingOptions(opts spreadsheet.Options) Option {
	return func(h *Handler) { h.reading = opts }
}

// WithMaxBodyBytes limits request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxBody = n
		}
	}
}

// Handler provides billing HTTP endpoints.
type Handler struct {
	service BillingService
	reading spreadsheet.Options
	maxBody int64
}

// NewHandler constructs a handler.
func NewHandler(service BillingService, opts ...Option) (*Handler, error) {
	if service == nil {
		return nil, errors.New("billing handler: nil service")
	}
	h := &Handler{service: service, maxBody: defaultMaxBody}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h, nil
}

// Register mounts the handler routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle(billsPath, h)
	mux.Handle(tariffsPath, h)
	mux.Handle(tariffsPath+"/", h)
}

// ServeHTTP handles /api/v1/bills and /api/v1/tariffs.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == billsPath:
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleCalculate(w, r)
	case r.URL.Path == tariffsPath:
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleListTariffs(w, r)
	case strings.HasPrefix(r.URL.Path, tariffsPath+"/"):
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		code := strings.TrimPrefix(r.URL.Path, tariffsPath+"/")
		if code == "" || strings.Contains(code, "/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.handleGetTariff(w, r, code)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type readingRequest struct {
	Timestamp time.Time `json:"timestamp"`
	KW        float64   `json:"kw"`
	KVAR      float64   `json:"kvar"`
	KVA       float64   `json:"kva"`
}

type billRequest struct {
	TariffCode      string           `json:"tariff_code"`
	VoltageType     string           `json:"voltage_type"`
	IntervalMinutes int              `json:"interval_minutes"`
	Readings        []readingRequest `json:"readings"`
}

func (h *Handler) handleCalculate(w http.ResponseWriter, r *http.Request) {
	format, err := interfaces.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)

	req, err := h.decodeRequest(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	bill, err := h.service.Calculate(r.Context(), req)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	body, err := interfaces.Render(format, bill)
	if err != nil {
		http.Error(w, "render bill error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	if format != interfaces.FormatJSON && format != interfaces.FormatTable {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "bill-"+bill.RunID+format.Extension()))
	}
	_, _ = w.Write(body)
}

// decodeRequest accepts a JSON bill request, or a raw CSV/XLSX meter export
// with the tariff named in the query string.
func (h *Handler) decodeRequest(r *http.Request) (application.BillRequest, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil && r.Header.Get("Content-Type") != "" {
		return application.BillRequest{}, fmt.Errorf("invalid content type: %w", err)
	}
	switch mediaType {
	case "", "application/json":
		return h.decodeJSON(r)
	case "text/csv", contentTypeXLSX:
		return h.decodeFile(r, mediaType)
	default:
		return application.BillRequest{}, fmt.Errorf("unsupported content type %q", mediaType)
	}
}

func (h *Handler) decodeJSON(r *http.Request) (application.BillRequest, error) {
	start := time.Now()
	var payload billRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&payload); err != nil {
		metrics.ObserveReadingsIngest("json", metrics.ResultError, time.Since(start))
		return application.BillRequest{}, fmt.Errorf("invalid json: %w", err)
	}
	interval := h.interval()
	if payload.IntervalMinutes != 0 {
		v, err := intervalOf(payload.IntervalMinutes)
		if err != nil {
			return application.BillRequest{}, err
		}
		interval = v
	}

	readings := make([]metering.MeterReading, len(payload.Readings))
	for i, rr := range payload.Readings {
		readings[i] = metering.MeterReading{Timestamp: rr.Timestamp, KW: rr.KW, KVAR: rr.KVAR, KVA: rr.KVA}
	}
	series, err := metering.NewSeries(interval, readings)
	if err != nil {
		metrics.ObserveReadingsIngest("json", metrics.ResultError, time.Since(start))
		return application.BillRequest{}, err
	}
	metrics.ObserveReadingsIngest("json", metrics.ResultSuccess, time.Since(start))
	metrics.AddReadingsIngested(series.Len())
	return application.BillRequest{TariffCode: payload.TariffCode, VoltageType: payload.VoltageType, Series: series}, nil
}

func (h *Handler) decodeFile(r *http.Request, mediaType string) (application.BillRequest, error) {
	start := time.Now()
	query := r.URL.Query()
	opts := h.reading
	if sheet := query.Get("sheet"); sheet != "" {
		opts.Sheet = sheet
	}
	if raw := query.Get("multiplier"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 {
			return application.BillRequest{}, fmt.Errorf("invalid multiplier %q", raw)
		}
		opts.Multiplier = v
	}
	if raw := query.Get("interval_minutes"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return application.BillRequest{}, fmt.Errorf("invalid interval_minutes %q", raw)
		}
		if opts.Interval, err = intervalOf(v); err != nil {
			return application.BillRequest{}, err
		}
	}
	if sep := query.Get("separator"); sep != "" {
		opts.Separator = []rune(sep)[0]
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return application.BillRequest{}, err
	}
	source := "csv"
	var series metering.Series
	if mediaType == contentTypeXLSX {
		source = "xlsx"
		series, err = spreadsheet.ReadXLSX(bytes.NewReader(data), opts)
	} else {
		series, err = spreadsheet.ReadCSV(bytes.NewReader(data), opts)
	}
	if err != nil {
		metrics.ObserveReadingsIngest(source, metrics.ResultError, time.Since(start))
		return application.BillRequest{}, err
	}
	metrics.ObserveReadingsIngest(source, metrics.ResultSuccess, time.Since(start))
	metrics.AddReadingsIngested(series.Len())
	return application.BillRequest{
		TariffCode:  query.Get("tariff_code"),
		VoltageType: query.Get("voltage_type"),
		Series:      series,
	}, nil
}

// intervalOf converts a positive minute count of at most one day.
func intervalOf(minutes int) (time.Duration, error) {
	if minutes <= 0 || minutes > maxIntervalMinutes {
		return 0, fmt.Errorf("interval_minutes must be between 1 and %d, got %d", maxIntervalMinutes, minutes)
	}
	return time.Duration(minutes) * time.Minute, nil
}

func (h *Handler) interval() time.Duration {
	if h.reading.Interval > 0 {
		return h.reading.Interval
	}
	return metering.DefaultInterval
}

func (h *Handler) handleListTariffs(w http.ResponseWriter, r *http.Request) {
	defs, err := h.service.Tariffs(r.Context())
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	out := make([]tariffView, 0, len(defs))
	for _, def := range defs {
		out = append(out, viewOf(def))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func (h *Handler) handleGetTariff(w http.ResponseWriter, r *http.Request, code string) {
	def, err := h.service.Tariff(r.Context(), code)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(viewOf(def))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, metering.ErrInvalidReading), errors.Is(err, metering.ErrEmptySeries),
		errors.Is(err, metering.ErrInvalidInterval), errors.Is(err, application.ErrEmptyTariffCode),
		errors.Is(err, billing.ErrEmptyVoltageType):
		return http.StatusBadRequest
	case errors.Is(err, tariff.ErrTariffNotFound):
		return http.StatusNotFound
	case errors.Is(err, tariff.ErrConfiguration), errors.Is(err, tariff.ErrRateNotFound),
		errors.Is(err, billing.ErrInsufficientData):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
