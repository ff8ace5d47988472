package shm

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/cenkalti/backoff/v4"

	internalshm "github.com/srediag/shmqueue/internal/shm"
)

// errNotPublished is the retryable state of a segment that exists but whose
// writer has not set the initialized flag yet.
var errNotPublished = errors.New("initialized flag not set")

// Create opens a queue with the default configuration. The writer creates the
// named segment; the reader attaches to it, waiting up to the default attach
// budget for the writer to publish it.
func Create(name string, elementSize, elementCapacity uint64, role Role) (*Queue, error) {
	config := DefaultConfig()
	config.Name = name
	config.ElementSize = elementSize
	config.ElementCapacity = elementCapacity
	config.Role = role
	return Open(context.Background(), config)
}

// Open creates (writer) or attaches to (reader) the segment described by
// config. ctx bounds the reader handshake. On error no resource stays
// acquired and no segment created by this call is left behind.
func Open(ctx context.Context, config *Config) (q *Queue, err error) {
	if err := VerifyConfig(config); err != nil {
		return nil, err
	}
	cfg := *config
	name, _ := internalshm.NormalizeName(cfg.Name)
	path, err := internalshm.RegionPath(cfg.Dir, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	tel := newTelemetry(&cfg)
	ctx, span := tel.start(ctx, "shm.Open", name, cfg.Role)
	defer func() { endSpan(span, err) }()

	metrics, err := newQueueMetrics(cfg.Registerer, name)
	if err != nil {
		return nil, fmt.Errorf("%w: register metrics: %v", ErrInvalidArgument, err)
	}
	q = &Queue{
		name:        name,
		path:        path,
		role:        cfg.Role,
		elementSize: cfg.ElementSize,
		capacity:    cfg.ElementCapacity,
		metrics:     metrics,
		tel:         tel,
	}
	switch cfg.Role {
	case RoleWriter:
		err = q.create(ctx, &cfg)
	case RoleReader:
		err = q.attach(ctx, &cfg)
	}
	if err != nil {
		internalLogger.warnf("queue %s: open as %s failed: %v", name, cfg.Role, err)
		return nil, err
	}

	q.metrics.registerDepth(name, q.role, func() float64 { return float64(q.Len()) })
	register(q)
	tel.handleOpened(ctx, name, q.role)
	internalLogger.infof("queue %s: opened as %s, path:%s element size:%d capacity:%d",
		name, q.role, path, q.elementSize, q.capacity)
	return q, nil
}

// create allocates, zero-fills and publishes a new segment.
func (q *Queue) create(ctx context.Context, cfg *Config) error {
	size, err := SegmentSize(cfg.ElementSize, cfg.ElementCapacity)
	if err != nil {
		return err
	}
	if err := internalshm.CheckSpace(uint64(size), q.path); err != nil {
		return fmt.Errorf("%w: create segment %q: %w", ErrResource, q.name, err)
	}
	region, err := internalshm.MapRegion(ctx, internalshm.MapOptions{
		Path:   q.path,
		Size:   size,
		Create: true,
		Perm:   cfg.Perm,
	})
	if err != nil {
		return fmt.Errorf("%w: create segment %q: %w", ErrResource, q.name, err)
	}

	var u internalshm.Unwinder
	defer q.unwind(&u)
	u.Defer(func() error { return internalshm.RemoveRegion(region.Path) })
	u.Defer(func() error { return internalshm.UnmapRegion(context.Background(), region) })

	slots, err := newSlotView(region.Addr, cfg.ElementSize, cfg.ElementCapacity)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrResource, err)
	}
	clear(region.Addr)
	hdr := headerAt(region.Addr)
	hdr.version = LayoutVersion
	hdr.elementCapacity = cfg.ElementCapacity
	hdr.elementSize = cfg.ElementSize
	hdr.writerIdx.Store(0)
	hdr.readerIdx.Store(0)
	hdr.flags.Store(0)
	// Last: readers trust nothing in the header before this.
	hdr.publish()

	q.region, q.hdr, q.slots = region, hdr, slots
	u.Disarm()
	return nil
}

// attach maps an existing segment once its writer has published it, checks
// that its geometry matches and marks the consumer as connected.
func (q *Queue) attach(ctx context.Context, cfg *Config) error {
	var (
		u         internalshm.Unwinder
		region    *internalshm.MappedRegion
		attempts  int
		permanent bool
	)
	defer q.unwind(&u)

	op := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		attempts++
		q.metrics.incAttachAttempts()
		if region == nil {
			r, err := internalshm.MapRegion(ctx, internalshm.MapOptions{Path: q.path, Size: HeaderSize})
			switch {
			case err == nil:
				region = r
				u.Defer(func() error { return internalshm.UnmapRegion(context.Background(), r) })
			case errors.Is(err, fs.ErrNotExist):
				return fmt.Errorf("%w: open segment %q: %w", ErrResource, q.name, err)
			case errors.Is(err, internalshm.ErrRegionTooSmall):
				return err
			default:
				permanent = true
				return backoff.Permanent(fmt.Errorf("%w: open segment %q: %w", ErrResource, q.name, err))
			}
		}
		if !headerAt(region.Addr).initialized() {
			// A writer that gave up and a new one that recreated the name
			// leave this mapping orphaned; map the current segment next time.
			if replaced, _ := internalshm.RegionReplaced(region); replaced {
				internalLogger.debugf("queue %s: segment was replaced, remapping", q.name)
				if uerr := internalshm.UnmapRegion(context.Background(), region); uerr != nil {
					internalLogger.warnf("queue %s: release replaced segment: %v", q.name, uerr)
				}
				region = nil
			}
			return errNotPublished
		}
		return nil
	}
	notify := func(err error, next time.Duration) {
		internalLogger.debugf("queue %s: attach attempt %d/%d: %v, next in %v",
			q.name, attempts, cfg.AttachAttempts, err, next)
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(cfg.AttachInterval), uint64(cfg.AttachAttempts-1)),
		ctx)
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		if permanent {
			return err
		}
		return fmt.Errorf("%w: segment %q not published after %d attempts: %w", ErrNotReady, q.name, attempts, err)
	}

	hdr := headerAt(region.Addr)
	if hdr.version != LayoutVersion {
		return fmt.Errorf("%w: segment %q has layout version %d, want %d", ErrProtocolMismatch, q.name, hdr.version, LayoutVersion)
	}
	if hdr.elementCapacity != cfg.ElementCapacity {
		return fmt.Errorf("%w: segment %q has capacity %d, requested %d", ErrProtocolMismatch, q.name, hdr.elementCapacity, cfg.ElementCapacity)
	}
	if hdr.elementSize < cfg.ElementSize {
		return fmt.Errorf("%w: segment %q has element size %d, requested %d", ErrProtocolMismatch, q.name, hdr.elementSize, cfg.ElementSize)
	}
	slots, err := newSlotView(region.Addr, hdr.elementSize, hdr.elementCapacity)
	if err != nil {
		return fmt.Errorf("%w: segment %q: %v", ErrProtocolMismatch, q.name, err)
	}

	// A reconnecting reader keeps the cursor; resetting it would lose or
	// replay records and break writer_idx - reader_idx <= capacity.
	if hdr.clientConnected() {
		internalLogger.warnf("queue %s: a reader is already connected, readers share one cursor", q.name)
	} else {
		hdr.readerIdx.Store(0)
	}
	hdr.connect()

	q.region, q.hdr, q.slots = region, hdr, slots
	u.Disarm()
	return nil
}

func (q *Queue) unwind(u *internalshm.Unwinder) {
	if u.Pending() == 0 {
		return
	}
	if err := u.Unwind(); err != nil {
		internalLogger.warnf("queue %s: release after failed open: %v", q.name, err)
	}
}

// Destroy unmaps the segment and closes the descriptor. A writer also removes
// the segment from the namespace; a reader only detaches. The handle is
// unusable afterwards and a second call returns ErrDestroyed.
func (q *Queue) Destroy() (err error) {
	if !q.destroyed.CompareAndSwap(false, true) {
		return ErrDestroyed
	}
	ctx, span := q.tel.start(context.Background(), "shm.Destroy", q.name, q.role)
	defer func() { endSpan(span, err) }()

	unregister(q)
	q.metrics.unregister()
	if debugMode {
		s := snapshotOf(q.hdr)
		internalLogger.debugf("queue %s: destroying %s handle, writer:%d reader:%d connected:%t",
			q.name, q.role, s.WriterIdx, s.ReaderIdx, s.ClientConnected)
	}
	var errs []error
	// Waits for observers still reading the header.
	q.mu.Lock()
	if uerr := internalshm.UnmapRegion(ctx, q.region); uerr != nil {
		errs = append(errs, uerr)
	}
	q.mu.Unlock()
	if q.role == RoleWriter {
		if rerr := internalshm.RemoveRegion(q.path); rerr != nil {
			errs = append(errs, rerr)
		}
	}
	q.tel.handleClosed(ctx, q.name, q.role)

	if err = errors.Join(errs...); err != nil {
		internalLogger.errorf("queue %s: destroy: %v", q.name, err)
		return fmt.Errorf("%w: destroy %q: %w", ErrResource, q.name, err)
	}
	internalLogger.infof("queue %s: destroyed %s handle", q.name, q.role)
	return nil
}

// Close destroys the handle; it exists to satisfy io.Closer.
func (q *Queue) Close() error {
	return q.Destroy()
}

// WaitConnected blocks a writer until a reader has attached or ctx is done.
func (q *Queue) WaitConnected(ctx context.Context) error {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		connected := false
		if !q.withHeader(func(h *sharedHeader) { connected = h.clientConnected() }) {
			return ErrDestroyed
		}
		if connected {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
