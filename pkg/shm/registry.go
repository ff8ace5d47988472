package shm

import (
	"errors"
	"fmt"
	"sort"
	"sync/atomic"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// handles tracks every queue handle this process has opened and not yet
// destroyed, keyed by name, role and a sequence number.
var (
	handles   = cmap.New[*Queue]()
	handleSeq atomic.Uint64
)

func register(q *Queue) {
	q.seq = handleSeq.Add(1)
	q.id = fmt.Sprintf("%s#%s#%d", q.name, q.role, q.seq)
	handles.Set(q.id, q)
}

func unregister(q *Queue) {
	handles.Remove(q.id)
}

// Handles returns the open handles of this process, oldest first.
func Handles() []*Queue {
	qs := make([]*Queue, 0, handles.Count())
	for _, q := range handles.Items() {
		qs = append(qs, q)
	}
	sort.Slice(qs, func(i, j int) bool { return qs[i].seq < qs[j].seq })
	return qs
}

// Lookup returns an open handle of this process for the named segment and role.
func Lookup(name string, role Role) (*Queue, bool) {
	for _, q := range Handles() {
		if q.role == role && (q.name == name || "/"+q.name == name) {
			return q, true
		}
	}
	return nil, false
}

// DestroyAll destroys every open handle of this process. Readers go first so
// that they detach before their writers unlink the segments.
func DestroyAll() error {
	qs := Handles()
	sort.SliceStable(qs, func(i, j int) bool { return qs[i].role < qs[j].role })
	var errs []error
	for _, q := range qs {
		if err := q.Destroy(); err != nil && !errors.Is(err, ErrDestroyed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
