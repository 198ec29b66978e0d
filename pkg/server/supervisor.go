package server

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hmgle/mocktel/internal/config"
	"github.com/hmgle/mocktel/pkg/logger"
	"github.com/hmgle/mocktel/pkg/metrics"
)

const shutdownTimeout = 2 * time.Second

// Supervisor starts one listener per port table entry and tears them all
// down when its context ends.
type Supervisor struct {
	cfg       *config.Config
	log       logger.Logger
	entries   EntryWriter
	metrics   *metrics.Recorder
	listeners []*Listener
	group     errgroup.Group
}

// NewSupervisor creates a supervisor for cfg.Listeners
func NewSupervisor(cfg *config.Config, log logger.Logger, entries EntryWriter, recorder *metrics.Recorder) *Supervisor {
	return &Supervisor{
		cfg:     cfg,
		log:     log,
		entries: entries,
		metrics: recorder,
	}
}

// Start binds every listener and serves each one on its own goroutine. A
// listener that cannot bind is reported and skipped. It returns the
// listeners that started.
func (s *Supervisor) Start() []*Listener {
	for i, spec := range s.cfg.Listeners {
		if i > 0 && s.cfg.StartupDelay > 0 {
			time.Sleep(s.cfg.StartupDelay)
		}

		handler := NewHandler(spec.Label, s.log, s.entries, s.metrics)
		l := NewListener(s.cfg.BindAddress, spec, handler, s.log)
		if err := l.Start(); err != nil {
			s.reportBindError(spec, err)
			continue
		}

		s.listeners = append(s.listeners, l)
		s.group.Go(l.Serve)
		s.log.Print("Mock %s server running on localhost:%d", spec.Label, l.Port())
	}
	return s.listeners
}

func (s *Supervisor) reportBindError(spec config.Listener, err error) {
	var bindErr *BindError
	if !errors.As(err, &bindErr) {
		s.log.Error("Error starting %s server on port %d: %v", spec.Label, spec.Port, err)
		return
	}
	if bindErr.InUse() {
		s.log.Warn("Port %d already in use - %s server not started", spec.Port, spec.Label)
		return
	}
	s.log.Error("Error starting %s server on port %d: %v", spec.Label, spec.Port, bindErr.Err)
}

// Listeners returns the listeners that started
func (s *Supervisor) Listeners() []*Listener {
	return s.listeners
}

// Wait blocks until ctx is canceled, then shuts every listener down and
// waits for their serve loops to return.
func (s *Supervisor) Wait(ctx context.Context) error {
	<-ctx.Done()
	s.log.Print("\nShutting down mock telemetry servers...")
	s.Shutdown()
	return s.group.Wait()
}

// Shutdown stops every started listener
func (s *Supervisor) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for _, l := range s.listeners {
		if err := l.Shutdown(ctx); err != nil {
			s.log.Warn("Forced close of %s server: %v", l.Label(), err)
		}
	}
}
