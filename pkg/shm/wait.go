package shm

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// The queue itself never blocks. EnqueueWait and DequeueWait put a caller
// side wait policy around the non-blocking calls: transient signals
// (ErrQueueFull, ErrNotConnected, ErrQueueEmpty) are retried under the
// backoff policy until ctx is done, anything else is returned at once.

// DefaultWaitPolicy backs off from 10µs up to 1ms between polls and never
// gives up on its own.
func DefaultWaitPolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Microsecond
	b.MaxInterval = time.Millisecond
	b.MaxElapsedTime = 0
	return b
}

// SpinPolicy polls without sleeping.
func SpinPolicy() backoff.BackOff {
	return &backoff.ZeroBackOff{}
}

// EnqueueWait enqueues elem, retrying while the queue is full or no reader is
// connected. A nil policy means DefaultWaitPolicy.
func EnqueueWait(ctx context.Context, q *Queue, elem []byte, policy backoff.BackOff) error {
	return retryTransient(ctx, policy, func() error {
		err := q.TryEnqueue(elem)
		if errors.Is(err, ErrQueueFull) || errors.Is(err, ErrNotConnected) {
			return err
		}
		return permanent(err)
	})
}

// DequeueWait dequeues into out, retrying while the queue is empty. A nil
// policy means DefaultWaitPolicy.
func DequeueWait(ctx context.Context, q *Queue, out []byte, policy backoff.BackOff) error {
	return retryTransient(ctx, policy, func() error {
		err := q.TryDequeue(out)
		if errors.Is(err, ErrQueueEmpty) {
			return err
		}
		return permanent(err)
	})
}

func permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

func retryTransient(ctx context.Context, policy backoff.BackOff, op func() error) error {
	if policy == nil {
		policy = DefaultWaitPolicy()
	}
	return backoff.Retry(op, backoff.WithContext(policy, ctx))
}
