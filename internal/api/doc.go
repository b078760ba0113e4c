// Package api hosts the optional operator HTTP server. Notable routes:
//   - GET /healthz / readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /api/runs for recent phase runs via the RunRepository interface.
//   - GET /api/stats for the dataset completion report.
package api
