package shm

import (
	"fmt"
	"path/filepath"

	"github.com/shirou/gopsutil/v3/disk"
)

// CheckSpace reports ErrNoSpace when the filesystem holding path has fewer
// than size free bytes. When usage cannot be determined it returns nil and
// lets ftruncate or mmap report the problem.
func CheckSpace(size uint64, path string) error {
	stat, err := disk.Usage(filepath.Dir(path))
	if err != nil {
		return nil
	}
	if stat.Free < size {
		return fmt.Errorf("%w: %s has %d bytes free, need %d", ErrNoSpace, filepath.Dir(path), stat.Free, size)
	}
	return nil
}
