package collector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/vitalis-app/exporter/internal/models"
)

const (
	// DefaultTimeout bounds a single Collect call.
	DefaultTimeout = 10 * time.Second
	// DefaultConcurrency is the number of collectors run at the same time.
	DefaultConcurrency = 4

	failureLogInterval = 5 * time.Minute
)

// Options tunes how the registry runs collectors.
type Options struct {
	Timeout     time.Duration
	Concurrency int
}

// Result is the outcome of one collector in one cycle. Err is nil on
// success; a failed collector contributes no samples.
type Result struct {
	Collector string
	Samples   []models.Sample
	Err       *Error
	Duration  time.Duration
}

// Registry holds the collectors fixed at startup and runs them in isolation:
// each call gets its own timeout, panics are recovered and one failure never
// affects the others.
type Registry struct {
	collectors []Collector
	logger     *zap.Logger
	opts       Options

	mu       sync.Mutex
	health   map[string]*collectorHealth
	inFlight map[string]*atomic.Bool
}

// collectorHealth throttles repeated failure logs for one collector.
type collectorHealth struct {
	failing bool
	warn    *rate.Sometimes
}

// NewRegistry creates a new collector registry with the given logger.
func NewRegistry(logger *zap.Logger, opts Options) *Registry {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	return &Registry{
		collectors: make([]Collector, 0),
		logger:     logger,
		opts:       opts,
		health:     make(map[string]*collectorHealth),
		inFlight:   make(map[string]*atomic.Bool),
	}
}

// Register adds a collector if it's available on the current platform.
// Unavailable collectors and duplicate names are logged and skipped.
func (r *Registry) Register(c Collector) {
	for _, existing := range r.collectors {
		if existing.Name() == c.Name() {
			r.logger.Warn("Duplicate collector name, skipping", zap.String("name", c.Name()))
			return
		}
	}
	if !c.IsAvailable() {
		r.logger.Warn("Collector not available, skipping", zap.String("name", c.Name()))
		return
	}
	r.collectors = append(r.collectors, c)
	r.health[c.Name()] = newCollectorHealth()
	r.inFlight[c.Name()] = new(atomic.Bool)
	r.logger.Info("Registered collector", zap.String("name", c.Name()))
}

// Collectors returns a copy of all registered collectors.
func (r *Registry) Collectors() []Collector {
	result := make([]Collector, len(r.collectors))
	copy(result, r.collectors)
	return result
}

// Describe returns the families of every registered collector in
// registration order. A family declared twice keeps its first declaration.
func (r *Registry) Describe() []models.Desc {
	seen := make(map[string]bool)
	var descs []models.Desc
	for _, c := range r.collectors {
		for _, d := range c.Describe() {
			if seen[d.Name] {
				continue
			}
			seen[d.Name] = true
			descs = append(descs, d)
		}
	}
	return descs
}

// CollectAll runs every registered collector and returns one Result per
// collector in registration order. It never fails; collector errors are
// reported in the results.
func (r *Registry) CollectAll(ctx context.Context) []Result {
	results := make([]Result, len(r.collectors))

	var g errgroup.Group
	g.SetLimit(r.opts.Concurrency)
	for i, c := range r.collectors {
		g.Go(func() error {
			results[i] = r.run(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Close releases resources held by collectors that implement io.Closer.
func (r *Registry) Close() error {
	var errs []error
	for _, c := range r.collectors {
		if closer, ok := c.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("closing %s: %w", c.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}

type outcome struct {
	samples []models.Sample
	err     error
}

// run invokes a single collector under its own deadline. Collect runs in a
// separate goroutine so a collector that ignores its context cannot hold the
// cycle past the timeout. Such a call is never started again until it
// returns.
func (r *Registry) run(ctx context.Context, c Collector) Result {
	name := c.Name()
	busy := r.busyFlag(name)
	if !busy.CompareAndSwap(false, true) {
		res := Result{
			Collector: name,
			Err:       &Error{Kind: KindTimeout, Collector: name, Message: "previous collection still running"},
		}
		r.reportFailure(res.Err)
		return res
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	start := time.Now()
	done := make(chan outcome, 1)
	go func() {
		var out outcome
		defer func() {
			if p := recover(); p != nil {
				out = outcome{err: NewError(KindInternal, fmt.Sprintf("panic: %v", p))}
			}
			busy.Store(false)
			done <- out
		}()
		out.samples, out.err = c.Collect(ctx)
	}()

	var out outcome
	select {
	case out = <-done:
	case <-ctx.Done():
		out.err = ctx.Err()
	}

	res := Result{Collector: name, Duration: time.Since(start)}
	if out.err != nil {
		res.Err = asCollectorError(name, out.err)
		if ctx.Err() == nil || res.Err.Kind == KindTimeout {
			r.reportFailure(res.Err)
		}
		return res
	}
	res.Samples = out.samples
	r.reportSuccess(name)
	return res
}

func newCollectorHealth() *collectorHealth {
	return &collectorHealth{warn: &rate.Sometimes{First: 1, Interval: failureLogInterval}}
}

func (r *Registry) busyFlag(name string) *atomic.Bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.inFlight[name]
	if !ok {
		b = new(atomic.Bool)
		r.inFlight[name] = b
	}
	return b
}

func (r *Registry) healthOf(name string) *collectorHealth {
	h, ok := r.health[name]
	if !ok {
		h = newCollectorHealth()
		r.health[name] = h
	}
	return h
}

func (r *Registry) reportFailure(err *Error) {
	r.mu.Lock()
	h := r.healthOf(err.Collector)
	h.failing = true
	r.mu.Unlock()

	fields := []zap.Field{
		zap.String("collector", err.Collector),
		zap.String("kind", string(err.Kind)),
		zap.Error(err),
	}
	logged := false
	h.warn.Do(func() {
		logged = true
		r.logger.Warn("Collection failed", fields...)
	})
	if !logged {
		r.logger.Debug("Collection failed", fields...)
	}
}

func (r *Registry) reportSuccess(name string) {
	r.mu.Lock()
	h := r.healthOf(name)
	recovered := h.failing
	if recovered {
		r.health[name] = newCollectorHealth()
	}
	r.mu.Unlock()

	if recovered {
		r.logger.Info("Collector recovered", zap.String("collector", name))
	}
}
