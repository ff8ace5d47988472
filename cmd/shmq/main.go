// Command shmq drives shared memory queues from the shell: a producer and a
// consumer for two-process runs, an in-process benchmark and a header dump.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/srediag/shmqueue/pkg/shm"
)

const usage = `usage: shmq <command> [flags]

commands:
  produce   create a queue as writer and enqueue -n records
  consume   attach to a queue as reader and dequeue -n records
  bench     run writer and reader in this process and report throughput
  inspect   print the header of an existing queue segment
`

// options are the flags shared by every command.
type options struct {
	name        string
	dir         string
	elemSize    uint64
	capacity    uint64
	count       int
	attempts    int
	interval    time.Duration
	timeout     time.Duration
	metricsAddr string
}

func (o *options) bind(fs *flag.FlagSet) {
	fs.StringVar(&o.name, "name", "shmq_demo", "segment name")
	fs.StringVar(&o.dir, "dir", shm.DefaultConfig().Dir, "segment directory")
	fs.Uint64Var(&o.elemSize, "size", 64, "record size in bytes, at least 8")
	fs.Uint64Var(&o.capacity, "cap", shm.DefaultElementCapacity, "queue capacity, a power of two")
	fs.IntVar(&o.count, "n", 1024, "number of records")
	fs.IntVar(&o.attempts, "attach-attempts", shm.DefaultAttachAttempts, "reader handshake attempts")
	fs.DurationVar(&o.interval, "attach-interval", shm.DefaultAttachInterval, "pause between handshake attempts")
	fs.DurationVar(&o.timeout, "timeout", 0, "give up after this long, 0 waits forever")
	fs.StringVar(&o.metricsAddr, "metrics-addr", "", "serve /metrics, /live and /ready on this address")
}

func (o *options) config(role shm.Role) *shm.Config {
	cfg := shm.DefaultConfig()
	cfg.Name = o.name
	cfg.Dir = o.dir
	cfg.ElementSize = o.elemSize
	cfg.ElementCapacity = o.capacity
	cfg.Role = role
	cfg.AttachAttempts = o.attempts
	cfg.AttachInterval = o.interval
	return cfg
}

func (o *options) validate() error {
	if o.elemSize < recordSize {
		return fmt.Errorf("-size %d cannot hold a %d byte record", o.elemSize, recordSize)
	}
	if o.count < 0 {
		return fmt.Errorf("-n must not be negative")
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout)
	stop()
	if derr := shm.DestroyAll(); derr != nil {
		fmt.Fprintln(os.Stderr, "shmq: cleanup:", derr)
	}
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "shmq:", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(out, usage)
		return flag.ErrHelp
	}
	cmd, args := args[0], args[1:]
	fs := flag.NewFlagSet("shmq "+cmd, flag.ContinueOnError)
	fs.SetOutput(out)
	var o options
	o.bind(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := o.validate(); err != nil {
		return err
	}
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	switch cmd {
	case "produce":
		return produce(ctx, &o, out)
	case "consume":
		return consume(ctx, &o, out)
	case "bench":
		return bench(ctx, &o, out)
	case "inspect":
		path, err := shm.SegmentPath(o.dir, o.name)
		if err != nil {
			return err
		}
		shm.DebugQueueDetailTo(out, path)
		return nil
	default:
		fmt.Fprint(out, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}
