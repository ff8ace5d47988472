// Package health exposes liveness and readiness probes for shared memory
// queue handles over HTTP.
package health

import (
	"fmt"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/srediag/shmqueue/pkg/shm"
)

// Live fails once the handle is destroyed or its segment lost the
// initialized flag.
func Live(q *shm.Queue) healthcheck.Check {
	return func() error {
		switch st := q.State(); st {
		case shm.StateInitialized, shm.StateConnected:
			return nil
		default:
			return fmt.Errorf("queue %s is %s", q.Name(), st)
		}
	}
}

// Ready fails until a reader is connected. A writer is also not ready while
// its queue is full.
func Ready(q *shm.Queue) healthcheck.Check {
	return func() error {
		if st := q.State(); st != shm.StateConnected {
			return fmt.Errorf("queue %s is %s", q.Name(), st)
		}
		if q.Role() == shm.RoleWriter && q.Len() >= q.Cap() {
			return fmt.Errorf("queue %s is full (%d records)", q.Name(), q.Len())
		}
		return nil
	}
}

// Registered reports every handle open in this process; it fails as soon as
// one of them is no longer live.
func Registered() healthcheck.Check {
	return func() error {
		for _, q := range shm.Handles() {
			if err := Live(q)(); err != nil {
				return err
			}
		}
		return nil
	}
}

// NewHandler returns a healthcheck handler serving /live and /ready for qs.
// With a non-nil reg the check results are also exported as Prometheus
// gauges under the shmq namespace.
func NewHandler(reg prometheus.Registerer, qs ...*shm.Queue) healthcheck.Handler {
	var h healthcheck.Handler
	if reg != nil {
		h = healthcheck.NewMetricsHandler(reg, "shmq")
	} else {
		h = healthcheck.NewHandler()
	}
	h.AddLivenessCheck("handles", Registered())
	for _, q := range qs {
		id := fmt.Sprintf("%s_%s", q.Name(), q.Role())
		// Check names double as metric labels and must be unique.
		h.AddLivenessCheck(id+"_live", Live(q))
		h.AddReadinessCheck(id+"_ready", Ready(q))
	}
	return h
}
