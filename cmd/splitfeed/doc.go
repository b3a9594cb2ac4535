// Package main hosts the splitfeed service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, marathon and participant management,
//     live split queries with finish predictions, and the finisher record board. Mutating endpoints
//     can be gated behind an API key.
//   - Crawl engine: internal/engine ticks over the enabled marathons, consults the scheduler for
//     cadence gating, and fans each due marathon out through the dispatcher. One marathon pass
//     commits through the aggregator in a single transaction; asset downloads and the progress
//     notification only fire after that commit lands.
//   - Fetch pipeline: the dispatcher partitions participants by provider host, crawling polite hosts
//     in parallel under a per-host rate limit and the misbehaving ones serially. Hosts that assemble
//     result tables client side go through the Chromedp rendering worker; everything else through
//     the Colly-based HTTP client. A short-lived response cache sits in front of both paths.
//   - Persistence & fanout: splits and certificate assets upsert into the configured store
//     (memory/Postgres). The asset pool downloads certificate images into the configured blob
//     backend (memory/local/GCS), and a compact Pub/Sub notification is published when a topic is
//     configured.
//   - Configuration & plumbing: Viper populates config from env/files; zap provides structured
//     logging; Prometheus metrics are exported via the metrics middleware and /metrics handler.
//
// Operational notes:
//   - Concurrency model: a single-threaded tick loop; each due marathon fans out into a bounded
//     parallel lane plus one serial lane, and the asset pool runs a small fixed worker set over an
//     unbounded queue. Shutdown is coordinated via context cancellation from main through the
//     engine to the pool.
//   - Rate limiting/backoff: per-host token buckets shape the parallel lane. The optional adaptive
//     scheduler widens a marathon's cadence after consecutive failures, capped at a multiplier, and
//     snaps back on the first success.
//   - Observability: zap logs carry marathon and participant IDs at key transitions; Prometheus
//     counters and histograms track API, crawl, and asset activity.
//
// Quick checklist:
//   - Configure env vars with the SPLITFEED_ prefix (SPLITFEED_SERVER_PORT, SPLITFEED_DB_DSN,
//     SPLITFEED_STORAGE_BACKEND, SPLITFEED_PUBSUB_ENABLED, ...) or pass -config config.yaml.
//   - Run locally: go run ./cmd/splitfeed -config config.yaml. Without db.dsn the service runs
//     entirely in memory, which is handy for poking at live providers during development.
//   - The process reacts to SIGINT/SIGTERM with a graceful drain: HTTP stops accepting, the engine
//     finishes its tick, and the asset pool joins within its configured deadline.
package main
