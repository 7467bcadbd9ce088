// Package main hosts the catalog crawler entrypoint.
//
// Architecture overview:
//   - CLI: cobra commands load configuration through Viper, build a zap logger,
//     and assemble every long-lived service with internal/app before running.
//   - serve: exposes the HTTP API from internal/api. Submitted crawls flow through
//     a bounded in-memory queue sized by crawler.queue_depth into a worker pool
//     sized by crawler.concurrency.
//   - crawl: runs one target (--url) or every configured target (--all) inline and
//     prints the scraped records as JSON on stdout.
//   - Pipeline: the colly fetcher retrieves each page, the extractor prefers
//     JSON-LD product data and falls back to CSS selectors, and the pagination
//     walker follows next links or page ranges with a polite delay between pages.
//   - Persistence & fanout: products and job provenance go to memory or Postgres,
//     raw pages are optionally archived (memory/local/GCS), and a job notification
//     is published to Pub/Sub when a topic is configured.
//
// Quick checklist:
//   - Configure env vars: CRAWLER_SERVER_PORT or PORT, CRAWLER_STORAGE_BACKEND,
//     CRAWLER_STORAGE_DSN, CRAWLER_ARCHIVE_BACKEND, CRAWLER_PUBSUB_TOPIC_NAME.
//   - Run locally: go run ./cmd/catalogcrawler serve --config config.yaml
//   - One-off crawl: go run ./cmd/catalogcrawler crawl --url https://shop.example/list
//   - Shutdown: SIGINT/SIGTERM stops intake, cancels in-flight walks, and persists
//     whatever each job scraped before it was interrupted.
package main
