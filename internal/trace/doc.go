// Package trace records what the MAST toolchain is doing while it links,
// decodes and merges forests.
//
// Tracing is enabled from the command line:
//
//	mast link --trace=- --trace-level=detail lib.masf app.masf
//
// Tracers:
//
//   - Nop: used when tracing is off
//   - StreamTracer: writes every event as text or NDJSON
//   - RingTracer: keeps the last N events for a dump on failure
//   - MultiTracer: fans out to several tracers
//
// Scopes, from coarse to fine: driver (one CLI command), artifact (one input
// or output file), pass (read, decode, merge and its sub-phases), node
// (individual dedup hits and external resolutions during a merge). The level
// decides which scopes are emitted.
//
// The tracer travels in the context:
//
//	ctx = trace.WithTracer(ctx, tracer)
//	span := trace.Begin(trace.FromContext(ctx), trace.ScopePass, "merge", 0)
//	defer span.End("")
package trace
