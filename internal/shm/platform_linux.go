//go:build linux

package shm

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"golang.org/x/sys/unix"
)

// MapRegion creates or opens the segment at opts.Path and maps it shared,
// read-write (Linux implementation). On failure nothing stays acquired; a
// segment created by this call is unlinked again.
func MapRegion(ctx context.Context, opts MapOptions) (*MappedRegion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var u Unwinder
	defer func() {
		_ = u.Unwind()
	}()

	flags := unix.O_RDWR | unix.O_CLOEXEC
	if opts.Create {
		flags |= unix.O_CREAT | unix.O_EXCL
	}
	perm := uint32(opts.Perm.Perm())
	if perm == 0 {
		perm = 0600
	}
	fd, err := unix.Open(opts.Path, flags, perm)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", opts.Path, err)
	}
	u.Defer(func() error { return unix.Close(fd) })
	if opts.Create {
		u.Defer(func() error { return unix.Unlink(opts.Path) })
	}

	size := opts.Size
	if opts.Create {
		if size <= 0 {
			return nil, fmt.Errorf("ftruncate %s: invalid size %d", opts.Path, size)
		}
		if err := unix.Ftruncate(fd, int64(size)); err != nil {
			return nil, fmt.Errorf("ftruncate %s: %w", opts.Path, err)
		}
	} else {
		var st unix.Stat_t
		if err := unix.Fstat(fd, &st); err != nil {
			return nil, fmt.Errorf("fstat %s: %w", opts.Path, err)
		}
		if st.Size <= 0 || st.Size < int64(opts.Size) {
			return nil, fmt.Errorf("%w: %s has %d bytes, need %d", ErrRegionTooSmall, opts.Path, st.Size, opts.Size)
		}
		size = int(st.Size)
	}

	addr, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", opts.Path, err)
	}
	u.Disarm()
	return &MappedRegion{
		Addr: addr,
		Fd:   fd,
		Path: opts.Path,
	}, nil
}

// UnmapRegion unmaps the region and closes its descriptor (Linux
// implementation). The segment itself stays in the namespace.
func UnmapRegion(ctx context.Context, region *MappedRegion) error {
	if region == nil {
		return nil
	}
	var errs []error
	if region.Addr != nil {
		if err := unix.Munmap(region.Addr); err != nil {
			errs = append(errs, fmt.Errorf("munmap %s: %w", region.Path, err))
		}
		region.Addr = nil
	}
	if region.Fd >= 0 {
		if err := unix.Close(region.Fd); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", region.Path, err))
		}
		region.Fd = -1
	}
	return errors.Join(errs...)
}

// RemoveRegion unlinks the segment at path from the namespace. Mappings that
// are still live keep working.
func RemoveRegion(path string) error {
	if err := unix.Unlink(path); err != nil {
		return fmt.Errorf("unlink %s: %w", path, err)
	}
	return nil
}

// RegionReplaced reports whether the segment behind region is no longer the
// one its path names: it was unlinked, or unlinked and created again.
func RegionReplaced(region *MappedRegion) (bool, error) {
	var mapped, named unix.Stat_t
	if err := unix.Fstat(region.Fd, &mapped); err != nil {
		return false, fmt.Errorf("fstat %s: %w", region.Path, err)
	}
	if err := unix.Stat(region.Path, &named); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return true, nil
		}
		return false, fmt.Errorf("stat %s: %w", region.Path, err)
	}
	return mapped.Dev != named.Dev || mapped.Ino != named.Ino, nil
}
