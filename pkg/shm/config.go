package shm

import (
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	internalshm "github.com/srediag/shmqueue/internal/shm"
)

// Role selects which side of the queue a handle plays.
type Role int

const (
	RoleReader Role = iota
	RoleWriter
)

func (r Role) String() string {
	switch r {
	case RoleReader:
		return "reader"
	case RoleWriter:
		return "writer"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// Defaults used by DefaultConfig.
const (
	DefaultElementSize     = 64
	DefaultElementCapacity = 1024
	DefaultAttachAttempts  = 50
	DefaultAttachInterval  = 100 * time.Millisecond
	DefaultPerm            = 0644
)

// Config holds queue creation parameters.
type Config struct {
	// Name identifies the segment; writer and reader must agree on it.
	Name string
	// ElementSize is the fixed size of one record in bytes. A reader may ask
	// for less than the writer created the segment with.
	ElementSize uint64
	// ElementCapacity is the number of slots, a power of two. Both sides must
	// use the same value.
	ElementCapacity uint64
	Role            Role

	// Dir is the directory holding named segments, /dev/shm unless the
	// SHMQ_DIR environment variable says otherwise.
	Dir  string
	Perm os.FileMode

	// AttachAttempts bounds how often a reader checks for a published
	// segment; AttachInterval is the sleep between two checks.
	AttachAttempts int
	AttachInterval time.Duration

	// Registerer receives the data path metrics. Nil disables them.
	Registerer prometheus.Registerer
	Tracer     trace.Tracer
	Meter      metric.Meter
}

// DefaultConfig returns a Config with every field but Name populated.
func DefaultConfig() *Config {
	dir := internalshm.DefaultDir
	if d := os.Getenv("SHMQ_DIR"); d != "" {
		dir = d
	}
	return &Config{
		ElementSize:     DefaultElementSize,
		ElementCapacity: DefaultElementCapacity,
		Role:            RoleWriter,
		Dir:             dir,
		Perm:            DefaultPerm,
		AttachAttempts:  DefaultAttachAttempts,
		AttachInterval:  DefaultAttachInterval,
	}
}

// SegmentPath returns where the segment called name lives in dir; an empty
// dir means the default segment directory.
func SegmentPath(dir, name string) (string, error) {
	path, err := internalshm.RegionPath(dir, name)
	if err != nil {
		return "", fmt.Errorf("%w: name %q: %v", ErrInvalidArgument, name, err)
	}
	return path, nil
}

// VerifyConfig checks a Config without touching any resource.
func VerifyConfig(config *Config) error {
	if config == nil {
		return fmt.Errorf("%w: nil config", ErrInvalidArgument)
	}
	if config.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidArgument)
	}
	if _, err := internalshm.NormalizeName(config.Name); err != nil {
		return fmt.Errorf("%w: name %q: %v", ErrInvalidArgument, config.Name, err)
	}
	if config.ElementSize == 0 {
		return fmt.Errorf("%w: element size must be positive", ErrInvalidArgument)
	}
	if !IsPowerOfTwo(config.ElementCapacity) {
		return fmt.Errorf("%w: element capacity %d is not a power of two", ErrInvalidArgument, config.ElementCapacity)
	}
	if config.Role != RoleReader && config.Role != RoleWriter {
		return fmt.Errorf("%w: unrecognized role %v", ErrInvalidArgument, config.Role)
	}
	if _, err := SegmentSize(config.ElementSize, config.ElementCapacity); err != nil {
		return err
	}
	if config.AttachAttempts < 1 {
		return fmt.Errorf("%w: attach attempts must be at least 1, got %d", ErrInvalidArgument, config.AttachAttempts)
	}
	if config.AttachInterval < 0 {
		return fmt.Errorf("%w: negative attach interval %v", ErrInvalidArgument, config.AttachInterval)
	}
	return nil
}
