// Package shm contains the platform layer for named shared memory segments:
// creating, opening, mapping and unlinking the backing object.
//
// Function implementations are provided in platform-specific files
// (platform_linux.go, platform_other.go).
package shm

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// DefaultDir is where named segments live on Linux, the same namespace
// POSIX shm_open uses.
const DefaultDir = "/dev/shm"

var (
	// ErrUnsupportedPlatform is returned on platforms without a shared memory implementation.
	ErrUnsupportedPlatform = errors.New("shm: shared memory segments are not supported on this platform")
	// ErrNoSpace is returned when the segment directory cannot hold a new segment.
	ErrNoSpace = errors.New("shm: not enough space left to create segment")
	// ErrRegionTooSmall is returned when an existing segment is smaller than
	// requested, including one whose creator has not sized it yet.
	ErrRegionTooSmall = errors.New("shm: segment smaller than expected")
	// ErrBadName is returned for names that cannot identify a segment.
	ErrBadName = errors.New("shm: invalid segment name")
)

// MappedRegion represents a memory-mapped shared region.
type MappedRegion struct {
	Addr []byte
	Fd   int
	Path string
}

// Size returns the number of mapped bytes.
func (r *MappedRegion) Size() int {
	return len(r.Addr)
}

// MapOptions defines options for mapping shared memory.
type MapOptions struct {
	Path string
	// Size is the segment size for Create; when opening it is the minimum
	// acceptable size, the whole object is mapped.
	Size int
	// Create makes a new segment exclusively; an existing one is an error.
	Create bool
	Perm   os.FileMode
}

// NormalizeName strips the optional leading slash of a POSIX-style name and
// rejects names that would escape the segment directory.
func NormalizeName(name string) (string, error) {
	n := strings.TrimPrefix(name, "/")
	if n == "" || n == "." || n == ".." || strings.ContainsRune(n, '/') || strings.ContainsRune(n, 0) {
		return "", ErrBadName
	}
	return n, nil
}

// RegionPath returns the filesystem path of the segment called name in dir.
func RegionPath(dir, name string) (string, error) {
	n, err := NormalizeName(name)
	if err != nil {
		return "", err
	}
	if dir == "" {
		dir = DefaultDir
	}
	return filepath.Join(dir, n), nil
}

// RegionExists reports whether a segment file is present at path.
func RegionExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
