package collector

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vitalis-app/exporter/internal/models"
)

// funcCollector adapts a function to the Collector interface.
type funcCollector struct {
	name      string
	descs     []models.Desc
	available bool
	collect   func(ctx context.Context) ([]models.Sample, error)
}

func (f *funcCollector) Name() string            { return f.name }
func (f *funcCollector) Describe() []models.Desc { return f.descs }
func (f *funcCollector) IsAvailable() bool       { return f.available }
func (f *funcCollector) Collect(ctx context.Context) ([]models.Sample, error) {
	return f.collect(ctx)
}

func staticCollector(name string, value float64) *funcCollector {
	metric := name + "_value"
	return &funcCollector{
		name:      name,
		descs:     []models.Desc{{Name: metric, Help: name, Kind: models.Gauge}},
		available: true,
		collect: func(context.Context) ([]models.Sample, error) {
			return []models.Sample{models.NewSample(metric, value, nil)}, nil
		},
	}
}

func failingCollector(name string, err error) *funcCollector {
	return &funcCollector{
		name:      name,
		available: true,
		collect: func(context.Context) ([]models.Sample, error) {
			return nil, err
		},
	}
}

func TestRegistry_FailureIsolation(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t), Options{Timeout: time.Second})
	r.Register(staticCollector("first", 1))
	r.Register(failingCollector("broken", NewError(KindUnreachable, "connection refused")))
	r.Register(&funcCollector{
		name:      "panicky",
		available: true,
		collect: func(context.Context) ([]models.Sample, error) {
			panic("boom")
		},
	})
	r.Register(staticCollector("last", 2))

	results := r.CollectAll(context.Background())
	require.Len(t, results, 4)

	assert.Equal(t, "first", results[0].Collector)
	assert.Nil(t, results[0].Err)
	assert.Len(t, results[0].Samples, 1)

	require.NotNil(t, results[1].Err)
	assert.Equal(t, KindUnreachable, results[1].Err.Kind)
	assert.Equal(t, "broken", results[1].Err.Collector)
	assert.Empty(t, results[1].Samples)

	require.NotNil(t, results[2].Err)
	assert.Equal(t, KindInternal, results[2].Err.Kind)
	assert.Contains(t, results[2].Err.Error(), "boom")

	assert.Equal(t, "last", results[3].Collector)
	assert.Nil(t, results[3].Err)
	assert.Equal(t, 2.0, results[3].Samples[0].Value)
}

func TestRegistry_TimeoutDoesNotStallCycle(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t), Options{Timeout: 50 * time.Millisecond})
	release := make(chan struct{})
	defer close(release)

	r.Register(&funcCollector{
		name:      "stuck",
		available: true,
		collect: func(context.Context) ([]models.Sample, error) {
			<-release // ignores its context on purpose
			return nil, nil
		},
	})
	r.Register(staticCollector("fast", 1))

	start := time.Now()
	results := r.CollectAll(context.Background())

	assert.Less(t, time.Since(start), 2*time.Second)
	require.NotNil(t, results[0].Err)
	assert.Equal(t, KindTimeout, results[0].Err.Kind)
	assert.Nil(t, results[1].Err)
}

func TestRegistry_HungCollectorNotRestarted(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t), Options{Timeout: 10 * time.Millisecond})
	release := make(chan struct{})

	var running, peak, calls atomic.Int32
	r.Register(&funcCollector{
		name:      "mount",
		available: true,
		collect: func(context.Context) ([]models.Sample, error) {
			calls.Add(1)
			n := running.Add(1)
			defer running.Add(-1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			<-release
			return nil, nil
		},
	})

	for i := 0; i < 20; i++ {
		results := r.CollectAll(context.Background())
		require.NotNil(t, results[0].Err)
		assert.Equal(t, KindTimeout, results[0].Err.Kind)
		if i > 0 {
			assert.Equal(t, "previous collection still running", results[0].Err.Message)
		}
	}
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int32(1), peak.Load())

	close(release)
	require.Eventually(t, func() bool { return running.Load() == 0 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		return r.CollectAll(context.Background())[0].Err == nil
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRegistry_RegisterSkipsUnavailableAndDuplicates(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t), Options{})
	unavailable := staticCollector("gpu", 1)
	unavailable.available = false

	r.Register(staticCollector("docker", 1))
	r.Register(unavailable)
	r.Register(staticCollector("docker", 2))

	require.Len(t, r.Collectors(), 1)
	assert.Equal(t, "docker", r.Collectors()[0].Name())
}

func TestRegistry_DescribeKeepsRegistrationOrder(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t), Options{})
	a := staticCollector("zeta", 1)
	b := staticCollector("alpha", 1)
	b.descs = append(b.descs, a.descs[0])
	r.Register(a)
	r.Register(b)

	var names []string
	for _, d := range r.Describe() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"zeta_value", "alpha_value"}, names)
}

func TestRegistry_ThrottlesRepeatedFailureLogs(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	r := NewRegistry(zap.New(core), Options{Timeout: time.Second})

	fail := true
	r.Register(&funcCollector{
		name:      "flaky",
		available: true,
		collect: func(context.Context) ([]models.Sample, error) {
			if fail {
				return nil, errors.New("no route to host")
			}
			return nil, nil
		},
	})

	for i := 0; i < 3; i++ {
		r.CollectAll(context.Background())
	}
	failures := logs.FilterMessage("Collection failed")
	assert.Equal(t, 1, failures.FilterLevelExact(zapcore.WarnLevel).Len())
	assert.Equal(t, 2, failures.FilterLevelExact(zapcore.DebugLevel).Len())
	assert.Equal(t, "UNREACHABLE", failures.All()[0].ContextMap()["kind"])

	fail = false
	r.CollectAll(context.Background())
	assert.Equal(t, 1, logs.FilterMessage("Collector recovered").Len())

	fail = true
	r.CollectAll(context.Background())
	assert.Equal(t, 2, logs.FilterMessage("Collection failed").FilterLevelExact(zapcore.WarnLevel).Len())
}

func TestRegistry_ConcurrencyLimit(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t), Options{Timeout: time.Second, Concurrency: 2})
	var running, peak atomic.Int32

	for i := 0; i < 6; i++ {
		r.Register(&funcCollector{
			name:      fmt.Sprintf("c%d", i),
			available: true,
			collect: func(context.Context) ([]models.Sample, error) {
				n := running.Add(1)
				defer running.Add(-1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				return nil, nil
			},
		})
	}

	results := r.CollectAll(context.Background())
	assert.Len(t, results, 6)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, ErrorKind(""), KindOf(nil))
	assert.Equal(t, KindTimeout, KindOf(context.DeadlineExceeded))
	assert.Equal(t, KindTimeout, KindOf(fmt.Errorf("ping: %w", context.DeadlineExceeded)))
	assert.Equal(t, KindParse, KindOf(fmt.Errorf("wrapped: %w", NewError(KindParse, "bad csv"))))
	assert.Equal(t, KindUnreachable, KindOf(errors.New("refused")))
}

func TestError_Format(t *testing.T) {
	cause := errors.New("exit status 1")
	err := WrapError(KindUnreachable, "docker failed", cause)
	err.Collector = "docker"

	assert.Equal(t, "[UNREACHABLE] docker: docker failed: exit status 1", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "[NOT_CONFIGURED]: dsn is empty", NewError(KindNotConfigured, "dsn is empty").Error())
}

type closingCollector struct {
	*funcCollector
	closed bool
	err    error
}

func (c *closingCollector) Close() error {
	c.closed = true
	return c.err
}

func TestRegistry_Close(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t), Options{})
	ok := &closingCollector{funcCollector: staticCollector("pool", 1)}
	broken := &closingCollector{funcCollector: staticCollector("broken", 1), err: errors.New("busy")}
	r.Register(ok)
	r.Register(staticCollector("plain", 1))
	r.Register(broken)

	err := r.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closing broken: busy")
	assert.True(t, ok.closed)
	assert.True(t, broken.closed)
}
