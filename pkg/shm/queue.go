package shm

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/srediag/shmqueue/api"
	internalshm "github.com/srediag/shmqueue/internal/shm"
)

var (
	_ api.Producer = (*Queue)(nil)
	_ api.Consumer = (*Queue)(nil)
	_ api.Endpoint = (*Queue)(nil)
)

// State is the lifecycle state of a segment as seen through a handle.
type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateConnected
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateConnected:
		return "connected"
	case StateDestroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Queue is a process-local handle on a shared memory queue. Exactly one
// writer handle and one reader handle are expected per segment; the handle
// itself is not safe for concurrent use by several goroutines, except for
// Len, State, Snapshot and WaitConnected, which may race with Destroy.
type Queue struct {
	id   string
	seq  uint64
	name string
	path string
	role Role

	region *internalshm.MappedRegion
	hdr    *sharedHeader
	slots  slotView

	// elementSize is what this handle reads or writes; a reader may use
	// less than the slot stride.
	elementSize uint64
	capacity    uint64

	// mu keeps the mapping alive for observers on other goroutines; Destroy
	// holds it exclusively while unmapping. The data path does not take it.
	mu        sync.RWMutex
	destroyed atomic.Bool

	metrics *queueMetrics
	tel     telemetry
}

// Name returns the segment name without a leading slash.
func (q *Queue) Name() string { return q.name }

// Path returns the filesystem path of the segment.
func (q *Queue) Path() string { return q.path }

// Role returns the side this handle plays.
func (q *Queue) Role() Role { return q.role }

// ElementSize returns the record size this handle transfers.
func (q *Queue) ElementSize() int { return int(q.elementSize) }

// Cap returns the number of slots.
func (q *Queue) Cap() int { return int(q.capacity) }

// Len returns the number of records enqueued and not yet dequeued.
func (q *Queue) Len() int {
	n := 0
	q.withHeader(func(h *sharedHeader) {
		r := h.readerIdx.Load()
		w := h.writerIdx.Load()
		n = int(w - r)
	})
	return n
}

// withHeader runs fn on the mapped header unless the handle is destroyed and
// reports whether it ran.
func (q *Queue) withHeader(fn func(h *sharedHeader)) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.destroyed.Load() {
		return false
	}
	fn(q.hdr)
	return true
}

// TryEnqueue copies elem into the next free slot. It returns ErrNotConnected
// while no reader has attached and ErrQueueFull when every slot is taken;
// in both cases nothing changes and the caller may retry.
func (q *Queue) TryEnqueue(elem []byte) error {
	if q.destroyed.Load() {
		return ErrDestroyed
	}
	if q.role != RoleWriter {
		return fmt.Errorf("%w: enqueue on a %s handle", ErrRoleMismatch, q.role)
	}
	if uint64(len(elem)) != q.elementSize {
		return fmt.Errorf("%w: element of %d bytes, queue carries %d", ErrInvalidArgument, len(elem), q.elementSize)
	}
	if !q.hdr.clientConnected() {
		q.metrics.incNotConnected()
		internalLogger.tracef("queue %s: enqueue before a reader connected", q.name)
		return ErrNotConnected
	}
	// The reader cursor must be current to compute free space; only this
	// process writes the writer cursor.
	r := q.hdr.readerIdx.Load()
	w := q.hdr.writerIdx.Load()
	if w-r >= q.capacity {
		q.metrics.incFull()
		internalLogger.tracef("queue %s: full at writer:%d reader:%d", q.name, w, r)
		return ErrQueueFull
	}
	copy(q.slots.at(w), elem)
	// Publishes the slot bytes together with the new cursor.
	q.hdr.writerIdx.Store(w + 1)
	q.metrics.incEnqueued()
	return nil
}

// TryDequeue copies the oldest record into out, which must hold at least
// ElementSize bytes. It returns ErrQueueEmpty when nothing is available.
func (q *Queue) TryDequeue(out []byte) error {
	if q.destroyed.Load() {
		return ErrDestroyed
	}
	if q.role != RoleReader {
		return fmt.Errorf("%w: dequeue on a %s handle", ErrRoleMismatch, q.role)
	}
	if uint64(len(out)) < q.elementSize {
		return fmt.Errorf("%w: buffer of %d bytes, queue carries %d", ErrInvalidArgument, len(out), q.elementSize)
	}
	r := q.hdr.readerIdx.Load()
	w := q.hdr.writerIdx.Load()
	if r >= w {
		q.metrics.incEmpty()
		return ErrQueueEmpty
	}
	copy(out[:q.elementSize], q.slots.at(r))
	// Hands the slot back to the writer only after the copy.
	q.hdr.readerIdx.Store(r + 1)
	q.metrics.incDequeued()
	return nil
}

// Enqueue reports whether elem was accepted. See TryEnqueue.
func (q *Queue) Enqueue(elem []byte) bool {
	return q.TryEnqueue(elem) == nil
}

// Dequeue reports whether a record was copied into out. See TryDequeue.
func (q *Queue) Dequeue(out []byte) bool {
	return q.TryDequeue(out) == nil
}

// State returns the lifecycle state of the segment.
func (q *Queue) State() State {
	st := StateDestroyed
	q.withHeader(func(h *sharedHeader) {
		switch {
		case h.clientConnected():
			st = StateConnected
		case h.initialized():
			st = StateInitialized
		default:
			st = StateUninitialized
		}
	})
	return st
}

// Snapshot is a point-in-time copy of a segment header.
type Snapshot struct {
	Name            string
	Path            string
	Version         uint8
	ElementSize     uint64
	ElementCapacity uint64
	Initialized     bool
	ClientConnected bool
	WriterIdx       uint64
	ReaderIdx       uint64
}

// Len returns the number of records between the cursors.
func (s Snapshot) Len() uint64 {
	if s.WriterIdx < s.ReaderIdx {
		return 0
	}
	return s.WriterIdx - s.ReaderIdx
}

func snapshotOf(h *sharedHeader) Snapshot {
	flags := h.flags.Load()
	r := h.readerIdx.Load()
	w := h.writerIdx.Load()
	return Snapshot{
		Version:         h.version,
		ElementSize:     h.elementSize,
		ElementCapacity: h.elementCapacity,
		Initialized:     flags&flagInitialized != 0,
		ClientConnected: flags&flagConnected != 0,
		WriterIdx:       w,
		ReaderIdx:       r,
	}
}

// Snapshot reads the shared header. It returns ErrDestroyed after Destroy.
func (q *Queue) Snapshot() (Snapshot, error) {
	var s Snapshot
	if !q.withHeader(func(h *sharedHeader) { s = snapshotOf(h) }) {
		return Snapshot{}, ErrDestroyed
	}
	s.Name = q.name
	s.Path = q.path
	return s, nil
}
