// Package api hosts the HTTP surface of the hunter. Notable routes:
//   - POST /api/start, /api/stop, /api/config and /api/topics drive the
//     orchestrator and return immediately.
//   - GET /api/sse streams every bus event as a server-sent event.
//   - GET /api/export downloads the discovered sources as data.csv.
//   - GET /api/status returns the current Status snapshot.
//   - GET /healthz, /readyz and /metrics serve probes and Prometheus.
//
// Anything else falls through to the static UI handler.
package api
