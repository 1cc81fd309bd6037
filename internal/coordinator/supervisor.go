package coordinator

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/trigg3rX/proof-coordinator/pkg/logging"
)

var errUnexpectedReturn = errors.New("loop returned before shutdown")

// Supervisor keeps long-running loops alive. A loop that fails or panics is restarted
// after a doubling backoff; a loop returning after its context ends is done.
type Supervisor struct {
	logger       logging.Logger
	restarts     *prometheus.CounterVec
	initialDelay time.Duration
	maxDelay     time.Duration

	wg sync.WaitGroup
}

func NewSupervisor(logger logging.Logger, restarts *prometheus.CounterVec, initialDelay, maxDelay time.Duration) *Supervisor {
	if maxDelay < initialDelay {
		maxDelay = initialDelay
	}
	return &Supervisor{
		logger:       logger.With("component", "supervisor"),
		restarts:     restarts,
		initialDelay: initialDelay,
		maxDelay:     maxDelay,
	}
}

// Go runs fn under supervision in its own goroutine.
func (s *Supervisor) Go(ctx context.Context, name string, fn func(context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runSupervised(ctx, name, fn)
	}()
}

// Wait blocks until every supervised loop has ended.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

func (s *Supervisor) runSupervised(ctx context.Context, name string, fn func(context.Context) error) {
	delay := s.initialDelay
	for {
		started := time.Now()
		err := runOnce(ctx, fn)
		if ctx.Err() != nil {
			s.logger.Info("Loop stopped", "loop", name)
			return
		}
		if err == nil {
			err = errUnexpectedReturn
		}

		// a loop that stayed up for a while starts over from the short delay
		if time.Since(started) > s.maxDelay {
			delay = s.initialDelay
		}
		if s.restarts != nil {
			s.restarts.WithLabelValues(name).Inc()
		}
		s.logger.Error("Loop failed, restarting", "loop", name, "error", err, "backoff", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("Loop stopped", "loop", name)
			return
		case <-timer.C:
		}

		delay *= 2
		if delay > s.maxDelay {
			delay = s.maxDelay
		}
	}
}

func runOnce(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return fn(ctx)
}
