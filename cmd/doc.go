// Package cmd defines and implements the CLI commands for the statute crawler.
//
// Architecture overview:
//   - Traversal: crawler.Walker descends titles, chapters and sections depth-first, one request at a time. Each
//     statute page is fetched, reduced to plain text by the RCW parser and upserted into the statute store.
//   - Politeness: every fetch waits a random delay and retries failed requests with linear backoff. An optional
//     per-host token bucket caps the request rate on top of that.
//   - Resumption: the walker announces every title and chapter it enters, both in the run log and as a structured
//     checkpoint. The next run fast-forwards to the last announced position; statutes already stored are skipped.
//   - Persistence & fanout: statutes live in SQLite (default) or Postgres. Raw statute pages can be archived to a
//     local directory or GCS and announced on Pub/Sub.
//   - Configuration & plumbing: Viper populates config from file and STATUTE_* env vars; zap writes the rotating
//     run log; Prometheus metrics are served on /metrics when metrics.addr is set.
//
// Quick checklist:
//   - Run locally: go run . crawl --config config.yaml (or rely solely on env overrides).
//   - Inspect progress: go run . stats and go run . resume-point.
//   - Ctrl-C stops a crawl cleanly; the next crawl picks up at the recorded chapter.
package cmd
