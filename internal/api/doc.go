// Package api hosts the HTTP server, middleware, and handlers for operator
// access. Notable routes:
//   - GET /health, /healthz and /readyz for liveness and readiness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/counters for the in-process pipeline counters.
//   - POST /v1/runs to trigger a pipeline run outside the schedule.
package api
