// Package main hosts the sellerguard entrypoint.
//
// Architecture overview:
//   - Scheduler: internal/scheduler ticks every schedule.interval_minutes and runs the pipeline with at most one
//     run in flight. A tick or manual trigger that arrives while a run is active is skipped and counted.
//   - Pipeline: for each active target, internal/pipeline scrapes the page (Firecrawl API or a direct Colly fetch,
//     both behind a bounded retry), normalizes and fingerprints the content, stores a snapshot, and when the
//     fingerprint differs from the previous snapshot scores the change with internal/relevance. Relevant changes
//     become change events and are emailed through internal/notify (Resend or the log sender).
//   - Persistence: Postgres via pgx (db.driver=postgres) or in-memory stores for local runs. Change events are
//     marked notified exactly once; events left pending by a failed delivery are retried on the next run.
//   - HTTP API: internal/api exposes /health, /healthz, /readyz, /metrics, /v1/counters and POST /v1/runs.
//   - Configuration & plumbing: Viper populates config from env/files; zap provides structured logging; Prometheus
//     counters mirror the in-process pipeline counters.
//
// Quick checklist:
//   - Configure env vars: SELLERGUARD_DB_DRIVER and SELLERGUARD_DB_DSN, SELLERGUARD_SCRAPE_PROVIDER and
//     SELLERGUARD_SCRAPE_FIRECRAWL_API_KEY, SELLERGUARD_EMAIL_PROVIDER with SELLERGUARD_EMAIL_RESEND_*, and
//     SELLERGUARD_TARGETS_SEED_FILE pointing at the YAML list of pages to watch.
//   - Apply the schema: go run ./cmd/sellerguard migrate
//   - Run locally: go run ./cmd/sellerguard serve --config config.yaml, or run-once for a single pass.
package main
