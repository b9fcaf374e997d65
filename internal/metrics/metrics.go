package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the portal's business counters.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	DonationsRecorded      prometheus.Counter
	DonationAmount         prometheus.Counter
	RegistrationsCreated   prometheus.Counter
	RegistrationRejections *prometheus.CounterVec
	SurveysSubmitted       prometheus.Counter
	AccountsDeleted        prometheus.Counter
	EmailsSent             prometheus.Counter
	EmailsFailed           prometheus.Counter
	TxDuration             *prometheus.HistogramVec
}

// New registers all metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		DonationsRecorded: f.NewCounter(prometheus.CounterOpts{
			Name: "outreach_donations_recorded_total",
			Help: "Total number of donations recorded",
		}),
		DonationAmount: f.NewCounter(prometheus.CounterOpts{
			Name: "outreach_donation_amount_total",
			Help: "Sum of recorded donation amounts",
		}),
		RegistrationsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "outreach_registrations_created_total",
			Help: "Total number of event registrations created",
		}),
		RegistrationRejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "outreach_registration_rejections_total",
			Help: "Registration attempts refused, by reason",
		}, []string{"reason"}),
		SurveysSubmitted: f.NewCounter(prometheus.CounterOpts{
			Name: "outreach_surveys_submitted_total",
			Help: "Total number of post-event surveys submitted",
		}),
		AccountsDeleted: f.NewCounter(prometheus.CounterOpts{
			Name: "outreach_accounts_deleted_total",
			Help: "Accounts removed together with their related rows",
		}),
		EmailsSent: f.NewCounter(prometheus.CounterOpts{
			Name: "outreach_emails_sent_total",
			Help: "Emails delivered by the worker",
		}),
		EmailsFailed: f.NewCounter(prometheus.CounterOpts{
			Name: "outreach_emails_failed_total",
			Help: "Email delivery attempts that failed",
		}),
		TxDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "outreach_tx_duration_seconds",
			Help:    "Duration of multi-step write transactions",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"op"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// DonationRecorded counts one donation of amount.
func (m *Metrics) DonationRecorded(amount float64) {
	if m == nil {
		return
	}
	m.DonationsRecorded.Inc()
	m.DonationAmount.Add(amount)
}

// RegistrationCreated counts a successful registration.
func (m *Metrics) RegistrationCreated() {
	if m == nil {
		return
	}
	m.RegistrationsCreated.Inc()
}

// RegistrationRejected counts a refused registration.
func (m *Metrics) RegistrationRejected(reason string) {
	if m == nil {
		return
	}
	m.RegistrationRejections.WithLabelValues(reason).Inc()
}

// SurveySubmitted counts a stored survey.
func (m *Metrics) SurveySubmitted() {
	if m == nil {
		return
	}
	m.SurveysSubmitted.Inc()
}

// AccountDeleted counts a cascade delete.
func (m *Metrics) AccountDeleted() {
	if m == nil {
		return
	}
	m.AccountsDeleted.Inc()
}

// EmailDelivered counts a worker delivery outcome.
func (m *Metrics) EmailDelivered(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.EmailsSent.Inc()
		return
	}
	m.EmailsFailed.Inc()
}

// ObserveTx records the duration of a transaction labelled op.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveTx(op string, start time.Time) {
	if m == nil {
		return
	}
	m.TxDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
