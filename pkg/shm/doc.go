// Package shm implements a bounded, lock-free queue of fixed-size records
// over a named shared memory segment, for exactly one writer process and one
// reader process.
//
// The writer creates and publishes the segment; the reader attaches to it,
// retrying until the writer has published or the attach budget runs out:
//
//	w, err := shm.Create("ticks", 8, 1024, shm.RoleWriter)
//	// in the other process
//	r, err := shm.Create("ticks", 8, 1024, shm.RoleReader)
//
// Enqueue and Dequeue never block. EnqueueWait and DequeueWait add a
// caller-side backoff policy. Open takes a Config for metrics, tracing and
// attach tuning.
package shm
