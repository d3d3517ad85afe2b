// Package models defines the metric data structures shared by collectors,
// the scheduler and the exposition layer. A collection cycle produces a
// MetricSet; the scheduler wraps it in an immutable Snapshot.
package models

import (
	"fmt"
	"regexp"
	"sort"
	"time"
)

// Kind is the exposition type of a metric family.
type Kind int

const (
	// Gauge is a value that can go up and down.
	Gauge Kind = iota
	// Counter is a monotonically increasing value.
	Counter
)

// String returns the TYPE keyword used by the text exposition format.
func (k Kind) String() string {
	switch k {
	case Gauge:
		return "gauge"
	case Counter:
		return "counter"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Labels maps label names to label values. Keys are unique and unordered.
type Labels map[string]string

// SortedNames returns the label names in ascending order.
func (l Labels) SortedNames() []string {
	names := make([]string, 0, len(l))
	for name := range l {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Desc declares a metric family: its name, help text and kind.
type Desc struct {
	Name string
	Help string
	Kind Kind
}

// Sample is a single (name, labels, value) data point. Its kind is the kind
// of the family it belongs to.
type Sample struct {
	Name   string
	Labels Labels
	Value  float64
}

// NewSample is shorthand for building a sample.
func NewSample(name string, value float64, labels Labels) Sample {
	return Sample{Name: name, Labels: labels, Value: value}
}

// Family is a declared metric family together with its samples.
type Family struct {
	Desc
	Samples []Sample
}

// MetricSet is an ordered sequence of metric families.
type MetricSet struct {
	families []Family
}

// Families returns the families in declaration order. The returned slice
// must not be modified.
func (m *MetricSet) Families() []Family {
	if m == nil {
		return nil
	}
	return m.families
}

// Len returns the total number of samples across all families.
func (m *MetricSet) Len() int {
	n := 0
	for _, f := range m.Families() {
		n += len(f.Samples)
	}
	return n
}

// Snapshot is a fully collected MetricSet plus its capture time. Snapshots
// are never modified after they are published.
type Snapshot struct {
	Set       *MetricSet
	Timestamp time.Time
	Sequence  uint64
}

var (
	metricNameRE = regexp.MustCompile(`^[a-zA-Z_:][a-zA-Z0-9_:]*$`)
	labelNameRE  = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
)

// ValidMetricName reports whether name is a legal metric name.
func ValidMetricName(name string) bool {
	return metricNameRE.MatchString(name)
}

// ValidLabelName reports whether name is a legal label name. Names starting
// with "__" are reserved.
func ValidLabelName(name string) bool {
	return labelNameRE.MatchString(name) && !(len(name) >= 2 && name[:2] == "__")
}
