package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/srediag/shmqueue/pkg/health"
	"github.com/srediag/shmqueue/pkg/shm"
)

// observer serves metrics and probes for the queues of one command run.
type observer struct {
	reg *prometheus.Registry
	srv *http.Server
}

func newObserver(addr string) *observer {
	if addr == "" {
		return nil
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return &observer{
		reg: reg,
		srv: &http.Server{Addr: addr, ReadHeaderTimeout: 5 * time.Second},
	}
}

func (o *observer) registerer() prometheus.Registerer {
	if o == nil {
		return nil
	}
	return o.reg
}

// serve starts the HTTP endpoint for qs in the background.
func (o *observer) serve(out io.Writer, qs ...*shm.Queue) {
	if o == nil {
		return
	}
	h := health.NewHandler(o.reg, qs...)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(o.reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/live", h.LiveEndpoint)
	mux.HandleFunc("/ready", h.ReadyEndpoint)
	o.srv.Handler = mux
	go func() {
		if err := o.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintln(out, "metrics server:", err)
		}
	}()
	fmt.Fprintf(out, "serving /metrics /live /ready on %s\n", o.srv.Addr)
}

func (o *observer) shutdown() {
	if o == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = o.srv.Shutdown(ctx)
}
