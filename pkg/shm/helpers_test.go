package shm

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

var nameSeq atomic.Uint64

func requireLinux(t testing.TB) {
	t.Helper()
	if runtime.GOOS != "linux" {
		t.Skip("shared memory segments are only implemented on linux")
	}
}

// testName returns a segment name no other test or process uses.
func testName() string {
	return fmt.Sprintf("shmq_test_%d_%d", os.Getpid(), nameSeq.Add(1))
}

// testConfig returns a config in dir with a short attach budget.
func testConfig(dir, name string, role Role, elemSize, capacity uint64) *Config {
	cfg := DefaultConfig()
	cfg.Dir = dir
	cfg.Name = name
	cfg.Role = role
	cfg.ElementSize = elemSize
	cfg.ElementCapacity = capacity
	cfg.AttachAttempts = 3
	cfg.AttachInterval = time.Millisecond
	return cfg
}

func openQueue(t testing.TB, cfg *Config) *Queue {
	t.Helper()
	q, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Destroy() })
	return q
}

// openPair creates a writer and attaches a reader to it.
func openPair(t testing.TB, dir string, elemSize, capacity uint64) (w, r *Queue) {
	t.Helper()
	name := testName()
	w = openQueue(t, testConfig(dir, name, RoleWriter, elemSize, capacity))
	r = openQueue(t, testConfig(dir, name, RoleReader, elemSize, capacity))
	return w, r
}

func encode(elemSize int, v uint64) []byte {
	b := make([]byte, elemSize)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

func decode(b []byte) uint64 {
	return binary.LittleEndian.Uint64(b)
}

func metricValue(m *dto.Metric) float64 {
	switch {
	case m.GetCounter() != nil:
		return m.GetCounter().GetValue()
	case m.GetGauge() != nil:
		return m.GetGauge().GetValue()
	default:
		return 0
	}
}

// gathered returns the value of the sample of family name whose labels
// include labels, and whether such a sample exists.
func gathered(t testing.TB, reg prometheus.Gatherer, name string, labels map[string]string) (float64, bool) {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			have := map[string]string{}
			for _, lp := range m.GetLabel() {
				have[lp.GetName()] = lp.GetValue()
			}
			for k, v := range labels {
				if have[k] != v {
					continue metrics
				}
			}
			return metricValue(m), true
		}
	}
	return 0, false
}
