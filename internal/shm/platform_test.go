package shm

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeName(t *testing.T) {
	for _, name := range []string{"q", "/q", "queue.1"} {
		n, err := NormalizeName(name)
		require.NoError(t, err, name)
		assert.NotContains(t, n, "/")
	}
	for _, name := range []string{"", "/", ".", "..", "/..", "a/b", "a\x00b"} {
		_, err := NormalizeName(name)
		assert.ErrorIs(t, err, ErrBadName, "%q", name)
	}
}

func TestRegionPath(t *testing.T) {
	p, err := RegionPath("", "/ticks")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(DefaultDir, "ticks"), p)

	p, err = RegionPath("/tmp/x", "ticks")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x/ticks", p)

	_, err = RegionPath("/tmp/x", "../ticks")
	assert.ErrorIs(t, err, ErrBadName)
}

func TestRegionExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seg")
	assert.False(t, RegionExists(path))
	require.NoError(t, os.WriteFile(path, nil, 0600))
	assert.True(t, RegionExists(path))
}

func TestUnwinderOrder(t *testing.T) {
	var (
		u     Unwinder
		order []int
	)
	for i := 1; i <= 3; i++ {
		u.Defer(func() error { order = append(order, i); return nil })
	}
	assert.Equal(t, 3, u.Pending())
	assert.NoError(t, u.Unwind())
	assert.Equal(t, []int{3, 2, 1}, order)
	assert.Equal(t, 0, u.Pending())

	// A second unwind has nothing left to release.
	assert.NoError(t, u.Unwind())
	assert.Equal(t, []int{3, 2, 1}, order)
}

func TestUnwinderJoinsErrors(t *testing.T) {
	errA := errors.New("a")
	errB := errors.New("b")
	ran := false
	var u Unwinder
	u.Defer(func() error { return errA })
	u.Defer(func() error { ran = true; return nil })
	u.Defer(func() error { return errB })

	err := u.Unwind()
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
	assert.True(t, ran, "a failing step must not stop the others")
}

func TestUnwinderDisarm(t *testing.T) {
	called := false
	var u Unwinder
	u.Defer(func() error { called = true; return nil })
	u.Disarm()
	assert.NoError(t, u.Unwind())
	assert.False(t, called)
}

func TestCheckSpace(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, CheckSpace(1, filepath.Join(dir, "seg")))
	assert.ErrorIs(t, CheckSpace(^uint64(0), filepath.Join(dir, "seg")), ErrNoSpace)
	// Unknown usage defers the decision to the allocation itself.
	assert.NoError(t, CheckSpace(^uint64(0), "/does/not/exist/seg"))
}
