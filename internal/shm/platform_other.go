//go:build !linux

package shm

import (
	"context"
)

// MapRegion is not implemented outside Linux.
func MapRegion(ctx context.Context, opts MapOptions) (*MappedRegion, error) {
	return nil, ErrUnsupportedPlatform
}

// UnmapRegion is not implemented outside Linux.
func UnmapRegion(ctx context.Context, region *MappedRegion) error {
	if region == nil {
		return nil
	}
	return ErrUnsupportedPlatform
}

// RemoveRegion is not implemented outside Linux.
func RemoveRegion(path string) error {
	return ErrUnsupportedPlatform
}

// RegionReplaced is not implemented outside Linux.
func RegionReplaced(region *MappedRegion) (bool, error) {
	return false, ErrUnsupportedPlatform
}
