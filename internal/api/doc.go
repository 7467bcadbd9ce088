// Package api hosts the HTTP server, middleware, and REST handlers of the
// catalog crawler. Notable routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/presets lists extraction presets.
//   - POST /v1/crawls submits an asynchronous crawl; POST /v1/crawls/sync
//     runs one inline and returns its records.
//   - GET /v1/jobs and /v1/jobs/{job_id} expose crawl job provenance.
package api
