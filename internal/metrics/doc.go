// Package metrics exposes Prometheus counters for checkout requests, checkout
// jobs, renders and render cache publishes. Components depend on the Recorder
// interface so the NoopRecorder can be injected where metrics are not wanted
// (tests, the detached worker process).
package metrics
