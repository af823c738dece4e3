// Package prometheus exposes sessionguard metrics as a prometheus.Collector.
//
// Counters are named sessionguard_*_total and the renewal latency histogram
// is sessionguard_refresh_latency_seconds. Values are read from the manager's
// snapshot on every scrape.
//
// # What this package must NOT do
//
//   - Register in the global Prometheus registry; callers choose a registry.
//   - Mutate manager state.
package prometheus
