// Package exposition renders snapshots in the Prometheus exposition formats
// and serves them over HTTP.
package exposition

import (
	"bufio"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/vitalis-app/exporter/internal/models"
)

// TextContentType is the content type of the text exposition format.
const TextContentType = "text/plain; version=0.0.4; charset=utf-8"

var (
	labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
	helpEscaper  = strings.NewReplacer(`\`, `\\`, "\n", `\n`)
)

// WriteText writes set in text format 0.0.4: for every family in declaration
// order a HELP line, a TYPE line and one line per sample. Labels are sorted by
// name so the same set always renders to the same bytes.
func WriteText(w io.Writer, set *models.MetricSet) error {
	bw := bufio.NewWriter(w)
	for _, f := range set.Families() {
		bw.WriteString("# HELP ")
		bw.WriteString(f.Name)
		bw.WriteByte(' ')
		bw.WriteString(helpEscaper.Replace(f.Help))
		bw.WriteString("\n# TYPE ")
		bw.WriteString(f.Name)
		bw.WriteByte(' ')
		bw.WriteString(f.Kind.String())
		bw.WriteByte('\n')

		for _, s := range f.Samples {
			bw.WriteString(s.Name)
			writeLabels(bw, s.Labels)
			bw.WriteByte(' ')
			bw.WriteString(FormatValue(s.Value))
			bw.WriteByte('\n')
		}
	}
	return bw.Flush()
}

func writeLabels(bw *bufio.Writer, labels models.Labels) {
	if len(labels) == 0 {
		return
	}
	bw.WriteByte('{')
	for i, name := range labels.SortedNames() {
		if i > 0 {
			bw.WriteByte(',')
		}
		bw.WriteString(name)
		bw.WriteString(`="`)
		bw.WriteString(labelEscaper.Replace(labels[name]))
		bw.WriteByte('"')
	}
	bw.WriteByte('}')
}

// FormatValue renders a sample value. Integral values keep a ".0" suffix
// (536870912.0); NaN and infinities use the exposition spellings.
func FormatValue(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "+Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
