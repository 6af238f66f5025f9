// Package metrics defines the sinks that record prediction outcomes and
// batch refresh runs. Sinks like PromSink and InfluxSink live in
// infra/metrics and register themselves by name; NewMetricsSink builds the
// configured set and returns a MultiSink when several are configured.
package metrics
