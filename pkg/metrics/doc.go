// Package metrics defines Prometheus metrics for the notifier, covering server
// attempts, SMTP deliveries, image embedding and dispatch summaries.
package metrics
