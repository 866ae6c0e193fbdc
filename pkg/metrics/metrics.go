package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Per-slot attempt outcomes (succeeded/failed/skipped)
	ServerAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "smtp_notifier_server_attempts_total",
		Help: "Total number of SMTP server attempts grouped by slot and outcome",
	}, []string{"slot", "outcome"})
	// Failure reasons are bounded by the mailerr reason set.
	ServerAttemptFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "smtp_notifier_server_attempt_failures_total",
		Help: "Total number of failed SMTP server attempts grouped by slot and failure reason",
	}, []string{"slot", "reason"})

	// Mail metrics
	MailSendSuccess = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "smtp_notifier_mail_send_success_total",
		Help: "Total number of successful mail sends",
	}, []string{"host"})
	MailSendFailure = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "smtp_notifier_mail_send_failure_total",
		Help: "Total number of failed mail sends",
	}, []string{"host"})

	ImageEmbedWarnings = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "smtp_notifier_image_embed_warnings_total",
		Help: "Total number of images dropped from a message because they could not be acquired",
	}, []string{"reason"})

	// Dispatch summaries keyed by the combined outcome, e.g. "succeeded/not_attempted"
	Dispatches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "smtp_notifier_dispatches_total",
		Help: "Total number of dispatches grouped by primary and secondary outcome",
	}, []string{"primary", "secondary", "test_run"})
	DispatchesRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "smtp_notifier_dispatches_rejected_total",
		Help: "Total number of dispatches rejected before any server was contacted",
	}, []string{"reason"})

	EventsIgnored = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "smtp_notifier_events_ignored_total",
		Help: "Total number of inbound events ignored by the notifier",
	}, []string{"reason"})
	EventsConsumed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "smtp_notifier_events_consumed_total",
		Help: "Total number of events read from an event source",
	}, []string{"source", "result"})
)

func init() {
	prometheus.MustRegister(ServerAttempts)
	prometheus.MustRegister(ServerAttemptFailures)
	prometheus.MustRegister(MailSendSuccess)
	prometheus.MustRegister(MailSendFailure)
	prometheus.MustRegister(ImageEmbedWarnings)
	prometheus.MustRegister(Dispatches)
	prometheus.MustRegister(DispatchesRejected)
	prometheus.MustRegister(EventsIgnored)
	prometheus.MustRegister(EventsConsumed)
}

// MetricsHandler returns an http.Handler exposing Prometheus metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
