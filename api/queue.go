// Package api defines the public contracts of shmqueue endpoints.
package api

// Producer is the writing end of a queue.
type Producer interface {
	// Enqueue reports whether elem was accepted; it never blocks.
	Enqueue(elem []byte) bool
	// TryEnqueue is Enqueue returning the reason for a rejection.
	TryEnqueue(elem []byte) error
	ElementSize() int
}

// Consumer is the reading end of a queue.
type Consumer interface {
	// Dequeue reports whether a record was copied into out; it never blocks.
	Dequeue(out []byte) bool
	// TryDequeue is Dequeue returning the reason for an empty result.
	TryDequeue(out []byte) error
	ElementSize() int
}

// Endpoint is either end of a queue, as seen by supervision code.
type Endpoint interface {
	Name() string
	Len() int
	Cap() int
	Close() error
}
