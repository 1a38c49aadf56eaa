package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for the application.
// It covers projection, materialization, reconciliation, notifications
// and database query durations.
type Metrics struct {
	ProjectionDuration *prometheus.HistogramVec // Histogram for projection durations
	ProjectedTasks     *prometheus.CounterVec   // Counter for emitted tasks
	ProjectionSkipped  *prometheus.CounterVec   // Counter for catalog entries skipped during projection
	Materializations   *prometheus.CounterVec   // Counter for materialization calls
	RaceResolutions    prometheus.Counter       // Counter for lost insert races resolved by re-reading
	ReconcileAffected  *prometheus.CounterVec   // Counter for records changed by reconciliation
	ReconcileSkipped   *prometheus.CounterVec   // Counter for records skipped by reconciliation
	SentMessages       *prometheus.CounterVec   // Counter for sent notifications
	EventsDropped      prometheus.Counter       // Counter for events dropped on a full bus
	DBQueryDuration    *prometheus.HistogramVec // Histogram for database query durations
	ReportGeneration   *prometheus.HistogramVec // Histogram for report generation durations
}

// NewMetrics creates a new Metrics instance with the provided Prometheus Registerer.
//
// Parameters:
//   - reg: A Prometheus Registerer used to register the metrics.
//
// Returns:
//   - A pointer to the newly created Metrics instance.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		ProjectionDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "custodian_projection_duration_seconds",
			Help:    "Duration of task projections.",
			Buckets: prometheus.DefBuckets,
		}, []string{"scope"}), // scope: all, facility, assignee
		ProjectedTasks: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "custodian_projected_tasks_total",
			Help: "Total number of tasks emitted by projections",
		}, []string{"kind"}), // kind: virtual, materialized
		ProjectionSkipped: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "custodian_projection_skipped_total",
			Help: "Catalog entries skipped while projecting",
		}, []string{"reason"}), // reason: orphan, facility, schedule
		Materializations: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "custodian_materializations_total",
			Help: "Total number of materialization calls",
		}, []string{"mutation", "outcome"}), // outcome: ok, not_found, validation, invalid_transition, conflict, error
		RaceResolutions: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "custodian_materialization_races_total",
			Help: "Concurrent materializations resolved by re-reading the winner",
		}),
		ReconcileAffected: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "custodian_reconcile_affected_total",
			Help: "Records transitioned or deleted by reconciliation jobs",
		}, []string{"kind"}), // kind: overdue-sweep, retention-cleanup
		ReconcileSkipped: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "custodian_reconcile_skipped_total",
			Help: "Records skipped by reconciliation jobs because of errors",
		}, []string{"kind"}),
		SentMessages: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "custodian_notifications_sent_total",
			Help: "Telegram notifications sent",
		}, []string{"type"}), // type: event type or "error"
		EventsDropped: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "custodian_events_dropped_total",
			Help: "Domain events dropped because the bus buffer was full",
		}),
		DBQueryDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "custodian_db_query_duration_seconds",
			Help:    "Duration of database queries.",
			Buckets: prometheus.DefBuckets,
		}, []string{"query_type"}), // query_type: 'list_tasks', 'list_work_items'
		ReportGeneration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name: "custodian_report_generation_duration_seconds",
			Help: "Duration of report excel generation.",
		}, []string{"format"}), // format: xlsx
	}
}
