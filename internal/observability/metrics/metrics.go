package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "billing_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	billRunTotal   *prometheus.CounterVec
	billRunLatency *prometheus.HistogramVec
	billRunErrors  *prometheus.CounterVec

	chargeEvaluationTotal *prometheus.CounterVec

	readingsIngestTotal   *prometheus.CounterVec
	readingsIngestLatency *prometheus.HistogramVec
	readingsIngested      prometheus.Counter

	billExportTotal   *prometheus.CounterVec
	billExportLatency *prometheus.HistogramVec

	tariffsLoaded prometheus.Gauge
)

// Init registers billing metrics with the default registry.
func Init() {
	registerOnce.Do(func() {
		billRunTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "bill_runs_total",
				Help: "Total bill calculations by tariff and result",
			},
			[]string{"tariff", "result"},
		)
		billRunLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "bill_run_latency_seconds",
				Help:    "Bill calculation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		billRunErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "bill_run_errors_total",
				Help: "Total failed bill calculations by reason",
			},
			[]string{"reason"},
		)

		chargeEvaluationTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "charge_evaluations_total",
				Help: "Total charge evaluations by charge and result",
			},
			[]string{"charge", "result"},
		)

		readingsIngestTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "readings_ingest_total",
				Help: "Total meter file ingests by source and result",
			},
			[]string{"source", "result"},
		)
		readingsIngestLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "readings_ingest_latency_seconds",
				Help:    "Meter file ingest latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"source", "result"},
		)
		readingsIngested = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "readings_ingested_total",
				Help: "Total meter readings accepted for billing",
			},
		)

		billExportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "bill_export_total",
				Help: "Total bill export operations by format and result",
			},
			[]string{"format", "result"},
		)
		billExportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "bill_export_latency_seconds",
				Help:    "Bill export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		tariffsLoaded = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "tariffs_loaded",
				Help: "Number of tariff definitions in the catalogue",
			},
		)

		prometheus.MustRegister(
			billRunTotal,
			billRunLatency,
			billRunErrors,
			chargeEvaluationTotal,
			readingsIngestTotal,
			readingsIngestLatency,
			readingsIngested,
			billExportTotal,
			billExportLatency,
			tariffsLoaded,
		)
	})
}

// ObserveBillRun records bill calculation duration and result.
func ObserveBillRun(tariff, result string, duration time.Duration) {
	if tariff == "" {
		tariff = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if billRunTotal != nil {
		billRunTotal.WithLabelValues(tariff, result).Inc()
	}
	if billRunLatency != nil {
		billRunLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncBillRunError increments the failure counter.
func IncBillRunError(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if billRunErrors != nil {
		billRunErrors.WithLabelValues(reason).Inc()
	}
}

// IncChargeEvaluation counts one evaluated charge.
func IncChargeEvaluation(charge, result string) {
	if charge == "" {
		charge = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if chargeEvaluationTotal != nil {
		chargeEvaluationTotal.WithLabelValues(charge, result).Inc()
	}
}

// ObserveReadingsIngest records a meter file read.
func ObserveReadingsIngest(source, result string, duration time.Duration) {
	if source == "" {
		source = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if readingsIngestTotal != nil {
		readingsIngestTotal.WithLabelValues(source, result).Inc()
	}
	if readingsIngestLatency != nil {
		readingsIngestLatency.WithLabelValues(source, result).Observe(duration.Seconds())
	}
}

// AddReadingsIngested increments accepted readings by count.
func AddReadingsIngested(count int) {
	if count <= 0 {
		return
	}
	if readingsIngested != nil {
		readingsIngested.Add(float64(count))
	}
}

// ObserveBillExport records export latency and result.
func ObserveBillExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if billExportTotal != nil {
		billExportTotal.WithLabelValues(format, result).Inc()
	}
	if billExportLatency != nil {
		billExportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// SetTariffsLoaded sets the catalogue size.
func SetTariffsLoaded(count int) {
	if tariffsLoaded != nil {
		tariffsLoaded.Set(float64(count))
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
