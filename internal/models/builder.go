package models

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// separator cannot occur in valid metric or label names.
const separator = '\xff'

// SetBuilder aggregates samples from many collectors into a MetricSet.
// Families keep their declaration order; samples keep their first-seen
// position and a later sample with the same identity overwrites the value.
type SetBuilder struct {
	descs   []Desc
	index   map[string]int
	samples [][]Sample
	seen    []map[uint64]int
	dropped int
}

// NewSetBuilder returns a builder for the given declared families. Declaring
// the same family name twice is an error.
func NewSetBuilder(descs []Desc) (*SetBuilder, error) {
	b := &SetBuilder{
		descs:   make([]Desc, 0, len(descs)),
		index:   make(map[string]int, len(descs)),
		samples: make([][]Sample, 0, len(descs)),
		seen:    make([]map[uint64]int, 0, len(descs)),
	}
	for _, d := range descs {
		if !ValidMetricName(d.Name) {
			return nil, fmt.Errorf("invalid metric name %q", d.Name)
		}
		if _, dup := b.index[d.Name]; dup {
			return nil, fmt.Errorf("metric family %q declared twice", d.Name)
		}
		b.index[d.Name] = len(b.descs)
		b.descs = append(b.descs, d)
		b.samples = append(b.samples, nil)
		b.seen = append(b.seen, make(map[uint64]int))
	}
	return b, nil
}

// Add records samples. Samples for undeclared families or with invalid label
// names are dropped; the number dropped by this call is returned.
func (b *SetBuilder) Add(samples ...Sample) int {
	dropped := 0
	for _, s := range samples {
		i, ok := b.index[s.Name]
		if !ok || !validLabels(s.Labels) {
			dropped++
			continue
		}
		id := Signature(s.Name, s.Labels)
		if pos, dup := b.seen[i][id]; dup {
			b.samples[i][pos].Value = s.Value
			continue
		}
		b.seen[i][id] = len(b.samples[i])
		b.samples[i] = append(b.samples[i], Sample{
			Name:   s.Name,
			Labels: copyLabels(s.Labels),
			Value:  s.Value,
		})
	}
	b.dropped += dropped
	return dropped
}

// Dropped returns the total number of samples dropped so far.
func (b *SetBuilder) Dropped() int { return b.dropped }

// Build returns the aggregated MetricSet. The builder must not be used after.
func (b *SetBuilder) Build() *MetricSet {
	families := make([]Family, len(b.descs))
	for i, d := range b.descs {
		families[i] = Family{Desc: d, Samples: b.samples[i]}
	}
	return &MetricSet{families: families}
}

// EmptySet returns a MetricSet containing the declared families and no samples.
func EmptySet(descs []Desc) *MetricSet {
	families := make([]Family, len(descs))
	for i, d := range descs {
		families[i] = Family{Desc: d}
	}
	return &MetricSet{families: families}
}

// Signature computes the identity of a sample: its name plus its label set,
// independent of label order.
func Signature(name string, labels Labels) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(name)
	_, _ = h.Write([]byte{separator})
	for _, k := range labels.SortedNames() {
		_, _ = h.WriteString(k)
		_, _ = h.Write([]byte{separator})
		_, _ = h.WriteString(labels[k])
		_, _ = h.Write([]byte{separator})
	}
	return h.Sum64()
}

func validLabels(l Labels) bool {
	for k := range l {
		if !ValidLabelName(k) {
			return false
		}
	}
	return true
}

func copyLabels(l Labels) Labels {
	if len(l) == 0 {
		return nil
	}
	out := make(Labels, len(l))
	for k, v := range l {
		out[k] = v
	}
	return out
}
