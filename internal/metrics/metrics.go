package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the attempt lifecycle.
type Metrics struct {
	AttemptsStarted *prometheus.CounterVec

	// Submissions by final status and what triggered them
	Submissions *prometheus.CounterVec

	ResumeRequests *prometheus.CounterVec

	ManualGradings prometheus.Counter

	NotifyFailures *prometheus.CounterVec

	ViolationsPersisted prometheus.Counter
}

// New creates a Metrics instance registered with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the collectors with reg. Tests pass a fresh
// prometheus.NewRegistry() so repeated construction does not panic.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		AttemptsStarted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "exstem_attempts_started_total",
			Help: "Attempts started, by taker kind",
		}, []string{"taker_kind"}),

		Submissions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "exstem_attempt_submissions_total",
			Help: "Attempts leaving in_progress, by resulting status and submit reason",
		}, []string{"status", "reason"}),

		ResumeRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "exstem_resume_requests_total",
			Help: "Resume request transitions by outcome",
		}, []string{"outcome"}), // requested, approved, declined, expired

		ManualGradings: f.NewCounter(prometheus.CounterOpts{
			Name: "exstem_manual_gradings_total",
			Help: "Responses graded by an instructor",
		}),

		NotifyFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "exstem_notify_failures_total",
			Help: "Notifications that could not be published",
		}, []string{"event"}),

		ViolationsPersisted: f.NewCounter(prometheus.CounterOpts{
			Name: "exstem_violations_persisted_total",
			Help: "Violation events flushed from the queue to Postgres",
		}),
	}
}

func (m *Metrics) IncAttemptStarted(takerKind string) {
	if m != nil {
		m.AttemptsStarted.WithLabelValues(takerKind).Inc()
	}
}

func (m *Metrics) IncSubmission(status, reason string) {
	if m != nil {
		m.Submissions.WithLabelValues(status, reason).Inc()
	}
}

func (m *Metrics) IncResumeRequest(outcome string) {
	if m != nil {
		m.ResumeRequests.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncManualGrading() {
	if m != nil {
		m.ManualGradings.Inc()
	}
}

func (m *Metrics) IncNotifyFailure(event string) {
	if m != nil {
		m.NotifyFailures.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) AddViolationsPersisted(n int) {
	if m != nil {
		m.ViolationsPersisted.Add(float64(n))
	}
}
