package collector

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/vitalis-app/exporter/internal/models"
)

// SelfCollector exposes the exporter's own instrumentation. It converts the
// counter and gauge families of a prometheus.Gatherer into samples,
// restricted to the declared families.
type SelfCollector struct {
	gatherer prometheus.Gatherer
	descs    []models.Desc
	declared map[string]bool
}

// NewSelfCollector creates a collector over gatherer for descs.
func NewSelfCollector(gatherer prometheus.Gatherer, descs []models.Desc) *SelfCollector {
	declared := make(map[string]bool, len(descs))
	for _, d := range descs {
		declared[d.Name] = true
	}
	return &SelfCollector{gatherer: gatherer, descs: descs, declared: declared}
}

func (c *SelfCollector) Name() string            { return "self" }
func (c *SelfCollector) Describe() []models.Desc { return c.descs }
func (c *SelfCollector) IsAvailable() bool       { return true }

// Collect gathers the registry. Values describe the state after the
// previous cycle.
func (c *SelfCollector) Collect(ctx context.Context) ([]models.Sample, error) {
	families, err := c.gatherer.Gather()
	if err != nil && len(families) == 0 {
		return nil, WrapError(KindInternal, "gather exporter metrics", err)
	}

	var samples []models.Sample
	for _, mf := range families {
		if !c.declared[mf.GetName()] {
			continue
		}
		for _, m := range mf.GetMetric() {
			v, ok := metricValue(mf.GetType(), m)
			if !ok {
				continue
			}
			var labels models.Labels
			if len(m.GetLabel()) > 0 {
				labels = make(models.Labels, len(m.GetLabel()))
				for _, lp := range m.GetLabel() {
					labels[lp.GetName()] = lp.GetValue()
				}
			}
			samples = append(samples, models.NewSample(mf.GetName(), v, labels))
		}
	}
	return samples, ctx.Err()
}

func metricValue(t dto.MetricType, m *dto.Metric) (float64, bool) {
	switch t {
	case dto.MetricType_COUNTER:
		return m.GetCounter().GetValue(), m.Counter != nil
	case dto.MetricType_GAUGE:
		return m.GetGauge().GetValue(), m.Gauge != nil
	case dto.MetricType_UNTYPED:
		return m.GetUntyped().GetValue(), m.Untyped != nil
	default:
		return 0, false
	}
}
