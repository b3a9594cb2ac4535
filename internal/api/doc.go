// Package api hosts the HTTP server, middleware, and REST handlers for
// operator access. Notable routes:
//   - GET /healthz and /readyz for probes (readyz pings the store).
//   - GET /metrics for Prometheus scraping.
//   - /api/marathons and /api/participants for crawl roster management.
//   - GET /api/participants/{id}/data for splits plus the finish prediction.
//   - GET /api/records for the cross-marathon leaderboard.
//   - /static/certs/ serving downloaded finish certificates.
package api
