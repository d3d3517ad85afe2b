package exposition

import (
	dto "github.com/prometheus/client_model/go"
	"google.golang.org/protobuf/proto"

	"github.com/vitalis-app/exporter/internal/models"
)

// ToMetricFamilies converts set into client_model families for the protobuf
// exposition format. Families without samples are omitted.
func ToMetricFamilies(set *models.MetricSet) []*dto.MetricFamily {
	var out []*dto.MetricFamily
	for _, f := range set.Families() {
		if len(f.Samples) == 0 {
			continue
		}
		mf := &dto.MetricFamily{
			Name:   proto.String(f.Name),
			Help:   proto.String(f.Help),
			Type:   metricType(f.Kind),
			Metric: make([]*dto.Metric, 0, len(f.Samples)),
		}
		for _, s := range f.Samples {
			m := &dto.Metric{Label: labelPairs(s.Labels)}
			switch f.Kind {
			case models.Counter:
				m.Counter = &dto.Counter{Value: proto.Float64(s.Value)}
			default:
				m.Gauge = &dto.Gauge{Value: proto.Float64(s.Value)}
			}
			mf.Metric = append(mf.Metric, m)
		}
		out = append(out, mf)
	}
	return out
}

func metricType(k models.Kind) *dto.MetricType {
	if k == models.Counter {
		return dto.MetricType_COUNTER.Enum()
	}
	return dto.MetricType_GAUGE.Enum()
}

func labelPairs(labels models.Labels) []*dto.LabelPair {
	if len(labels) == 0 {
		return nil
	}
	pairs := make([]*dto.LabelPair, 0, len(labels))
	for _, name := range labels.SortedNames() {
		pairs = append(pairs, &dto.LabelPair{
			Name:  proto.String(name),
			Value: proto.String(labels[name]),
		})
	}
	return pairs
}
