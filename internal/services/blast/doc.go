// Package blast runs bulk-message batches through the dispatcher.
//
// A batch is submitted with Submit and processed by a worker pool; per
// batch the dispatcher is strictly sequential, so the worker count is
// the number of batches in flight, not per-recipient parallelism.
//
// Delivery semantics
//
// Best-effort: a recipient failure is recorded in the batch status and
// the batch continues. The service keeps per-batch status in memory
// for a bounded time; callers that need durable outcomes configure the
// storage sink.
//
// Naming
//
// Batch names are for observability and should be namespaced by the
// caller (for example "schedule:weekly-invoice") to avoid collisions.
package blast
