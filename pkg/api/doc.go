// Package api implements the HTTP API of the notifier (Gin-based): event
// intake, test runs, custom template management, a redacted configuration
// view, health and Prometheus metrics.
package api
