package main

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/srediag/shmqueue/pkg/shm"
)

type benchResult struct {
	records     int
	producerSum int64
	consumerSum int64
	elapsed     time.Duration
}

func (r benchResult) throughput() float64 {
	if r.elapsed <= 0 {
		return 0
	}
	return float64(r.records) / r.elapsed.Seconds()
}

// bench opens both ends of one queue in this process and moves o.count
// records through it from one pool task to another.
func bench(ctx context.Context, o *options, out io.Writer) error {
	obs := newObserver(o.metricsAddr)
	defer obs.shutdown()

	wcfg := o.config(shm.RoleWriter)
	wcfg.Registerer = obs.registerer()
	w, err := shm.Open(ctx, wcfg)
	if err != nil {
		return err
	}
	defer w.Destroy()
	rcfg := o.config(shm.RoleReader)
	rcfg.Registerer = obs.registerer()
	r, err := shm.Open(ctx, rcfg)
	if err != nil {
		return err
	}
	defer r.Destroy()
	obs.serve(out, w, r)

	values := make([]int64, o.count)
	var want int64
	rng := newRand()
	for i := range values {
		values[i] = recordValue(rng)
		want += values[i]
	}

	res, err := runBench(ctx, w, r, values)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "bench: %d records of %d bytes in %v, %.0f records/s\n",
		res.records, w.ElementSize(), res.elapsed, res.throughput())
	if res.producerSum != want || res.consumerSum != want {
		return fmt.Errorf("sum mismatch: produced %d, consumed %d, want %d", res.producerSum, res.consumerSum, want)
	}
	fmt.Fprintf(out, "bench: sums match (%d)\n", want)
	return nil
}

// runBench busy-polls both ends, the way a latency sensitive pair would.
func runBench(ctx context.Context, w, r *shm.Queue, values []int64) (benchResult, error) {
	pool, err := ants.NewPool(2)
	if err != nil {
		return benchResult{}, err
	}
	defer pool.Release()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	res := benchResult{records: len(values)}
	var (
		wg          sync.WaitGroup
		producerErr error
		consErr     error
	)
	start := time.Now()
	wg.Add(2)
	err = pool.Submit(func() {
		defer wg.Done()
		elem := make([]byte, w.ElementSize())
		for _, v := range values {
			putRecord(elem, v)
			for !w.Enqueue(elem) {
				if producerErr = ctx.Err(); producerErr != nil {
					return
				}
				runtime.Gosched()
			}
			res.producerSum += v
		}
	})
	if err != nil {
		wg.Add(-2)
		return benchResult{}, err
	}
	err = pool.Submit(func() {
		defer wg.Done()
		elem := make([]byte, r.ElementSize())
		for range values {
			for !r.Dequeue(elem) {
				if consErr = ctx.Err(); consErr != nil {
					return
				}
				runtime.Gosched()
			}
			res.consumerSum += record(elem)
		}
	})
	if err != nil {
		// Unblock a producer stuck on a full queue.
		cancel()
		wg.Done()
		wg.Wait()
		return benchResult{}, err
	}
	wg.Wait()
	res.elapsed = time.Since(start)
	if producerErr != nil {
		return res, producerErr
	}
	return res, consErr
}
