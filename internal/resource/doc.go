// Package resource tracks the memory and I/O budget shared by all envelopes.
//
//	┌──────────────────────────────────────────────────────────┐
//	│                       Controller                         │
//	├──────────────────┬──────────────────┬────────────────────┤
//	│  Memory          │  Background      │  IO rate limiter   │
//	│  (fail-fast)     │  workers (sem)   │  (token bucket)    │
//	├──────────────────┼──────────────────┼────────────────────┤
//	│  AcquireMemory   │  AcquireBack-    │  AcquireIO         │
//	│  ReleaseMemory   │  ground          │  LimitWriter       │
//	│  MemoryUsage     │  TryAcquire      │                    │
//	└──────────────────┴──────────────────┴────────────────────┘
//
// The write-back buffer charges queued payloads against the memory budget,
// throttles its flushes through the IO limiter and runs teardown file
// deletion on background slots.
//
// [LocalMaxMemory] measures the memory ceiling that eviction budgets are
// derived from: the Go runtime soft limit when one is set, otherwise the
// physical memory of the host.
//
// All Controller methods are nil-safe no-ops.
package resource
