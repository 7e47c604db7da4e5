// Package metrics provides observability hooks for replication and RPC traffic.
//
// Components receive a Recorder through their options and default to NoopRecorder,
// so no call site needs a nil check:
//
//	rt := replica.NewRuntime(replica.WithRecorder(metrics.NewPrometheusRecorder(reg)))
//
// PrometheusRecorder registers its collectors on the supplied registry; HTTPHandler
// serves that registry. MemoryRecorder keeps plain counters and is used where the
// numbers are inspected in-process.
package metrics
