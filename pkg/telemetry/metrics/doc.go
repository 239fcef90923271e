// Package metrics provides Prometheus metrics for the pass-through gateway.
//
// # Metrics
//
//   - Request metrics: forwarded calls by endpoint, method and status,
//     call duration, tokens reported by upstreams, response sizes
//   - Stream metrics: streamed relays by outcome
//   - Gateway metrics: installed routes, route reloads, telemetry hook
//     failures
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//
//	// Count calls through the telemetry hooks
//	dispatcher := hooks.NewDispatcher(hooks.Multi{collector.Hooks(), other}, 0)
//	dispatcher.OnError(collector.RecordHookFailure)
//
//	// Expose the registry
//	mux.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
//
// # Cardinality
//
// Endpoint IDs and model names come from operator configuration and
// upstream responses. The collector caps the number of distinct label sets
// it records; label sets beyond the cap are folded into "other".
//
// All Record methods are no-ops when metrics are disabled.
package metrics
