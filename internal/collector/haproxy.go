package collector

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vitalis-app/exporter/internal/models"
)

const (
	haproxyTimeout = 5 * time.Second
	haproxyServer  = "2"
)

var haproxyDescs = []models.Desc{
	{Name: "haproxy_response_time_ms", Help: "HAProxy backend response time", Kind: models.Gauge},
	{Name: "haproxy_session_rate", Help: "HAProxy session rate", Kind: models.Gauge},
	{Name: "haproxy_queue_time_ms", Help: "HAProxy queue time", Kind: models.Gauge},
	{Name: "haproxy_connect_time_ms", Help: "HAProxy connect time", Kind: models.Gauge},
	{Name: "haproxy_current_sessions", Help: "HAProxy current sessions", Kind: models.Gauge},
	{Name: "haproxy_server_up", Help: "HAProxy server status (1=UP, 0=otherwise)", Kind: models.Gauge},
}

// haproxyColumns maps stats CSV columns to metric names.
var haproxyColumns = []struct {
	column string
	metric string
}{
	{"rtime", "haproxy_response_time_ms"},
	{"rate", "haproxy_session_rate"},
	{"qtime", "haproxy_queue_time_ms"},
	{"ctime", "haproxy_connect_time_ms"},
	{"scur", "haproxy_current_sessions"},
}

// HAProxyCollector scrapes the HAProxy stats CSV endpoint and reports
// per-server timings.
type HAProxyCollector struct {
	url    string
	client *http.Client
}

// NewHAProxyCollector creates a collector for the stats URL, for example
// "http://haproxy:8404/stats;csv".
func NewHAProxyCollector(url string, client *http.Client) *HAProxyCollector {
	if client == nil {
		client = &http.Client{Timeout: haproxyTimeout}
	}
	return &HAProxyCollector{url: url, client: client}
}

// Name returns the collector identifier.
func (c *HAProxyCollector) Name() string { return "haproxy" }

// Describe returns the haproxy_* families.
func (c *HAProxyCollector) Describe() []models.Desc { return haproxyDescs }

// IsAvailable returns true.
func (c *HAProxyCollector) IsAvailable() bool { return true }

// Collect fetches the stats CSV. Only server rows (type 2) are reported.
func (c *HAProxyCollector) Collect(ctx context.Context) ([]models.Sample, error) {
	if c.url == "" {
		return nil, NewError(KindNotConfigured, "no stats url configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, WrapError(KindNotConfigured, "invalid stats url", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, WrapError(KindTimeout, "stats request timed out", err)
		}
		return nil, WrapError(KindUnreachable, "stats request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, NewError(KindUnreachable, fmt.Sprintf("stats endpoint returned %d", resp.StatusCode))
	}
	return parseHAProxyCSV(resp.Body)
}

func parseHAProxyCSV(r io.Reader) ([]models.Sample, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = false

	header, err := reader.Read()
	if err != nil {
		return nil, WrapError(KindParse, "read stats header", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimSpace(strings.TrimPrefix(header[0], "#"))
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[name] = i
	}
	for _, required := range []string{"pxname", "svname", "type"} {
		if _, ok := index[required]; !ok {
			return nil, NewError(KindParse, "stats header is missing column "+required)
		}
	}

	var samples []models.Sample
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, WrapError(KindParse, "read stats row", err)
		}
		if len(row) < len(header) || strings.HasPrefix(row[0], "#") {
			continue
		}
		if row[index["type"]] != haproxyServer {
			continue
		}

		labels := models.Labels{"server": row[index["pxname"]] + "/" + row[index["svname"]]}
		for _, col := range haproxyColumns {
			i, ok := index[col.column]
			if !ok {
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(row[i]), 64)
			if err != nil {
				continue
			}
			samples = append(samples, models.NewSample(col.metric, v, labels))
		}
		if i, ok := index["status"]; ok && row[i] != "" {
			samples = append(samples, models.NewSample("haproxy_server_up", boolValue(strings.HasPrefix(row[i], "UP")), labels))
		}
	}
	return samples, nil
}
