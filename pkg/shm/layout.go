package shm

import (
	"fmt"
	"math/bits"
	"sync/atomic"
	"unsafe"
)

// Memory layout constants
const (
	// LayoutVersion tags the header format; both sides must agree on it.
	LayoutVersion uint8 = 0

	// CacheLineSize separates the header block and the two cursors.
	CacheLineSize = 64

	// HeaderSize is the fixed header in front of the slot array.
	HeaderSize = int(unsafe.Sizeof(sharedHeader{}))

	// flag bits inside the flag word; on little-endian hosts byte 24 holds
	// initialized and byte 25 holds client_connected.
	flagInitialized uint32 = 1 << 0
	flagConnected   uint32 = 1 << 8
)

// sharedHeader is the fixed part of a segment:
//
//	0x00 version (1 byte) + padding
//	0x08 element capacity
//	0x10 element size
//	0x18 flags: initialized (1 byte), client connected (1 byte)
//	0x40 writer cursor
//	0x80 reader cursor
//	0xC0 data[capacity * element size]
type sharedHeader struct {
	version         uint8
	_               [7]byte
	elementCapacity uint64
	elementSize     uint64
	flags           atomic.Uint32
	_               [CacheLineSize - 28]byte
	writerIdx       atomic.Uint64
	_               [CacheLineSize - 8]byte
	readerIdx       atomic.Uint64
	_               [CacheLineSize - 8]byte
}

// The header must stay three cache lines long.
var _ = [1]struct{}{}[HeaderSize-3*CacheLineSize]

func (h *sharedHeader) initialized() bool {
	return h.flags.Load()&flagInitialized != 0
}

func (h *sharedHeader) clientConnected() bool {
	return h.flags.Load()&flagConnected != 0
}

// publish sets initialized; every header write before it becomes visible to
// a reader that observes the flag.
func (h *sharedHeader) publish() {
	h.flags.Or(flagInitialized)
}

// connect sets client_connected.
func (h *sharedHeader) connect() {
	h.flags.Or(flagConnected)
}

// headerAt returns the header view at the start of mem.
func headerAt(mem []byte) *sharedHeader {
	if len(mem) < HeaderSize {
		panic(fmt.Sprintf("shm: mapping of %d bytes cannot hold a %d byte header", len(mem), HeaderSize))
	}
	return (*sharedHeader)(unsafe.Pointer(&mem[0]))
}

// slotView is a fixed-stride view over the data area. Cursors are mapped to
// slots by masking, so capacity must be a power of two.
type slotView struct {
	data     []byte
	stride   uint64
	capacity uint64
	mask     uint64
}

func newSlotView(mem []byte, stride, capacity uint64) (slotView, error) {
	need, ok := dataSize(stride, capacity)
	if !ok || uint64(len(mem)) < uint64(HeaderSize)+need {
		return slotView{}, fmt.Errorf("slot area of %d x %d bytes does not fit a %d byte mapping", capacity, stride, len(mem))
	}
	return slotView{
		data:     mem[HeaderSize : uint64(HeaderSize)+need],
		stride:   stride,
		capacity: capacity,
		mask:     capacity - 1,
	}, nil
}

// at returns the slot the cursor maps to.
func (v slotView) at(cursor uint64) []byte {
	off := (cursor & v.mask) * v.stride
	return v.data[off : off+v.stride : off+v.stride]
}

// IsPowerOfTwo returns true if n is a power of two
func IsPowerOfTwo(n uint64) bool {
	return n > 0 && (n&(n-1)) == 0
}

func dataSize(elementSize, elementCapacity uint64) (uint64, bool) {
	hi, lo := bits.Mul64(elementSize, elementCapacity)
	return lo, hi == 0
}

// SegmentSize returns the number of bytes a segment with the given element
// geometry occupies.
func SegmentSize(elementSize, elementCapacity uint64) (int, error) {
	n, ok := dataSize(elementSize, elementCapacity)
	if !ok || n > uint64(maxInt-HeaderSize) {
		return 0, fmt.Errorf("%w: %d elements of %d bytes overflow the segment size", ErrInvalidArgument, elementCapacity, elementSize)
	}
	return HeaderSize + int(n), nil
}

const maxInt = int(^uint(0) >> 1)
