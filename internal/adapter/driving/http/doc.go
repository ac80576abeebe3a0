// Package httphandler serves the glucoshare diagnostics API: health, on-demand
// reads, poller status, credential updates and Prometheus metrics.
package httphandler
