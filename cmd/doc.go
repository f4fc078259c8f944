// Package cmd implements the datahunter command line.
//
// Architecture overview:
//   - HTTP API: internal/api.Server takes start, stop, config and topics
//     commands, streams bus events over SSE and exports the sources found as CSV.
//   - Orchestrator: internal/hunter.Engine runs at most one crawl session at a
//     time. It seeds well-known portals, then loops over search or index
//     fetches, extracting links, filtering noise and classifying each new one.
//   - Fan-out: every event goes to the lossy in-memory bus (observers) and
//     to the progress hub (Prometheus, Postgres, Pub/Sub, CSV snapshots).
//   - Configuration & plumbing: Viper reads datahunter.yaml and HUNTER_* env
//     vars; zap logs; Prometheus metrics are served at /metrics.
//
// Quick checklist:
//   - ANTHROPIC_API_KEY enables remote descriptions; without it every source
//     is classified locally from its URL.
//   - HUNTER_DB_DSN, HUNTER_PUBSUB_PROJECT_ID/TOPIC and HUNTER_STORAGE_* turn on
//     the optional archives.
//   - Run locally: go run . serve --config datahunter.yaml
package cmd
