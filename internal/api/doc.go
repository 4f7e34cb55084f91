// Package api hosts the HTTP search server. Routes:
//   - POST /v1/search (and the legacy POST /search) run a ranked query.
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
package api
