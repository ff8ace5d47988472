package main

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"time"

	"github.com/srediag/shmqueue/pkg/shm"
)

// produce creates the queue, waits for a consumer and enqueues o.count
// records. Destroying the writer unlinks the name; a consumer that already
// attached keeps draining its mapping.
func produce(ctx context.Context, o *options, out io.Writer) error {
	obs := newObserver(o.metricsAddr)
	defer obs.shutdown()
	cfg := o.config(shm.RoleWriter)
	cfg.Registerer = obs.registerer()
	q, err := shm.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer q.Destroy()
	obs.serve(out, q)

	fmt.Fprintf(out, "producer: waiting for a consumer on %s\n", q.Path())
	if err := q.WaitConnected(ctx); err != nil {
		return err
	}
	sum, err := produceRecords(ctx, q, o.count, newRand())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "producer: enqueued %d records, sum %d\n", o.count, sum)
	// Let the consumer drain before the name goes away.
	for q.Len() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
	return nil
}

// consume attaches to the queue and dequeues o.count records.
func consume(ctx context.Context, o *options, out io.Writer) error {
	obs := newObserver(o.metricsAddr)
	defer obs.shutdown()
	cfg := o.config(shm.RoleReader)
	cfg.Registerer = obs.registerer()
	q, err := shm.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer q.Destroy()
	obs.serve(out, q)

	sum, err := consumeRecords(ctx, q, o.count)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "consumer: dequeued %d records, sum %d\n", o.count, sum)
	return nil
}

func produceRecords(ctx context.Context, q *shm.Queue, n int, r *rand.Rand) (int64, error) {
	elem := make([]byte, q.ElementSize())
	policy := shm.DefaultWaitPolicy()
	var sum int64
	for i := 0; i < n; i++ {
		v := recordValue(r)
		putRecord(elem, v)
		policy.Reset()
		if err := shm.EnqueueWait(ctx, q, elem, policy); err != nil {
			return sum, fmt.Errorf("record %d: %w", i, err)
		}
		sum += v
	}
	return sum, nil
}

func consumeRecords(ctx context.Context, q *shm.Queue, n int) (int64, error) {
	elem := make([]byte, q.ElementSize())
	policy := shm.DefaultWaitPolicy()
	var sum int64
	for i := 0; i < n; i++ {
		policy.Reset()
		if err := shm.DequeueWait(ctx, q, elem, policy); err != nil {
			return sum, fmt.Errorf("record %d: %w", i, err)
		}
		sum += record(elem)
	}
	return sum, nil
}
