// Package scheduler runs the collection loop. Each cycle invokes every
// registered collector, aggregates the samples that succeeded into a new
// metric set and publishes it to the snapshot store. The scheduler is the
// only writer of the store; HTTP handlers only read it.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/vitalis-app/exporter/internal/collector"
	"github.com/vitalis-app/exporter/internal/models"
	"github.com/vitalis-app/exporter/internal/telemetry"
)

const (
	// DefaultInterval is the time between two successful cycles.
	DefaultInterval = 30 * time.Second
	// DefaultRetryInterval is the first wait after a faulted cycle.
	DefaultRetryInterval = 10 * time.Second
)

// ErrFault marks a cycle aborted by an internal error rather than by a
// collector failure.
var ErrFault = errors.New("scheduler fault")

// State is the position of the scheduler in its cycle.
type State int32

const (
	// Idle waits for the next cycle.
	Idle State = iota
	// Collecting runs the collectors.
	Collecting
	// Publishing installs the new snapshot.
	Publishing
)

// String returns the lowercase state name used in logs.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Collecting:
		return "collecting"
	case Publishing:
		return "publishing"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Source produces the samples of one cycle.
type Source interface {
	Describe() []models.Desc
	CollectAll(ctx context.Context) []collector.Result
}

// Publisher installs a finished metric set.
type Publisher interface {
	Replace(set *models.MetricSet, ts time.Time) *models.Snapshot
}

// Options configures the loop cadence.
type Options struct {
	Interval      time.Duration
	RetryInterval time.Duration
}

// Scheduler manages periodic metric collection and publication.
type Scheduler struct {
	source    Source
	store     Publisher
	telemetry *telemetry.Telemetry
	logger    *zap.Logger
	opts      Options
	descs     []models.Desc
	now       func() time.Time

	state atomic.Int32
}

// New creates a new Scheduler. tel may be nil.
func New(source Source, store Publisher, opts Options, tel *telemetry.Telemetry, logger *zap.Logger) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRetryInterval
	}
	if opts.RetryInterval > opts.Interval {
		opts.RetryInterval = opts.Interval
	}
	return &Scheduler{
		source:    source,
		store:     store,
		telemetry: tel,
		logger:    logger,
		opts:      opts,
		descs:     source.Describe(),
		now:       time.Now,
	}
}

// State returns the current state of the loop.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Start runs a cycle immediately and then once per interval. After a faulted
// cycle it waits a shorter, exponentially growing retry interval capped at
// the normal interval. It blocks until ctx is cancelled; an in-progress
// cycle is abandoned without publishing.
func (s *Scheduler) Start(ctx context.Context) {
	retry := s.newBackOff()
	timer := time.NewTimer(0)
	defer timer.Stop()

	s.logger.Info("Scheduler started",
		zap.Duration("interval", s.opts.Interval),
		zap.Duration("retry_interval", s.opts.RetryInterval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped")
			return
		case <-timer.C:
		}

		wait := s.opts.Interval
		if err := s.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				s.logger.Info("Scheduler stopped", zap.String("abandoned", "in-progress cycle"))
				return
			}
			s.telemetry.ObserveFault()
			wait = retry.NextBackOff()
			s.logger.Error("Collection cycle faulted",
				zap.Error(err),
				zap.Duration("retry_in", wait))
		} else {
			retry.Reset()
		}
		timer.Reset(wait)
	}
}

// RunOnce performs a single cycle: Collecting, then Publishing. Collector
// failures are not returned; the cycle publishes whatever succeeded. The
// returned error wraps ErrFault for internal faults, or is ctx.Err() when
// the cycle was abandoned.
func (s *Scheduler) RunOnce(ctx context.Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: panic: %v", ErrFault, p)
		}
		s.state.Store(int32(Idle))
	}()

	s.state.Store(int32(Collecting))
	results := s.source.CollectAll(ctx)
	if err := ctx.Err(); err != nil {
		return err
	}

	builder, err := models.NewSetBuilder(s.descs)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFault, err)
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			s.telemetry.ObserveCollector(r.Collector, r.Duration, string(r.Err.Kind))
			continue
		}
		s.telemetry.ObserveCollector(r.Collector, r.Duration, "")
		if dropped := builder.Add(r.Samples...); dropped > 0 {
			s.logger.Warn("Dropped invalid samples",
				zap.String("collector", r.Collector),
				zap.Int("count", dropped))
		}
	}

	s.state.Store(int32(Publishing))
	set := builder.Build()
	snap := s.store.Replace(set, s.now())
	s.telemetry.ObserveCycle(snap.Timestamp)

	s.logger.Debug("Published snapshot",
		zap.Uint64("sequence", snap.Sequence),
		zap.Int("samples", set.Len()),
		zap.Int("dropped_samples", builder.Dropped()),
		zap.Int("failed_collectors", failed))
	return nil
}

func (s *Scheduler) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.RetryInterval
	b.MaxInterval = s.opts.Interval
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
