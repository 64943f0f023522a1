package infrastructure

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics regroupe les compteurs d'un run du pipeline
type Metrics struct {
	reg            *prometheus.Registry
	FilesProcessed prometheus.Counter
	FilesFailed    prometheus.Counter
	LinesExtracted prometheus.Counter
	LinesUnparsed  prometheus.Counter
	LinesValidated prometheus.Counter
	LinesErrored   *prometheus.CounterVec
	StageDuration  *prometheus.HistogramVec
	BatchStatus    prometheus.Gauge
}

// NewMetrics crée un registre privé (pas le registre global)
func NewMetrics() *Metrics {
	r := prometheus.NewRegistry()
	m := &Metrics{
		reg:            r,
		FilesProcessed: prometheus.NewCounter(prometheus.CounterOpts{Name: "etl_files_processed_total"}),
		FilesFailed:    prometheus.NewCounter(prometheus.CounterOpts{Name: "etl_files_failed_total"}),
		LinesExtracted: prometheus.NewCounter(prometheus.CounterOpts{Name: "etl_lines_extracted_total"}),
		LinesUnparsed:  prometheus.NewCounter(prometheus.CounterOpts{Name: "etl_lines_unparsed_total"}),
		LinesValidated: prometheus.NewCounter(prometheus.CounterOpts{Name: "etl_lines_validated_total"}),
		LinesErrored: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "etl_lines_errored_total"},
			[]string{"category"},
		),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "etl_stage_duration_seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		// 0 = RUNNING, 1 = SUCCESS, -1 = ERROR
		BatchStatus: prometheus.NewGauge(prometheus.GaugeOpts{Name: "etl_batch_status"}),
	}
	r.MustRegister(m.FilesProcessed, m.FilesFailed, m.LinesExtracted, m.LinesUnparsed,
		m.LinesValidated, m.LinesErrored, m.StageDuration, m.BatchStatus)
	return m
}

// Gatherer expose le registre pour l'export
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.reg
}

// WriteTextfile écrit le registre au format du textfile collector de node_exporter
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.reg)
}
