// Package api hosts the HTTP server, middleware, and REST handlers for the
// harvest trigger surface. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/harvests to run a harvest synchronously from raw query input.
//   - GET /v1/records for the per-query read-through of persisted results.
//   - GET /v1/runs and /v1/runs/{id}/queries for run progress via the
//     RunRepository interface.
package api
