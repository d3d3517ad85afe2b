package collector

import (
	"bufio"
	"bytes"
	"context"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/vitalis-app/exporter/internal/models"
)

var dockerDescs = []models.Desc{
	{Name: "docker_cpu_usage_percent", Help: "CPU usage percentage", Kind: models.Gauge},
	{Name: "docker_memory_usage_bytes", Help: "Memory usage in bytes", Kind: models.Gauge},
	{Name: "docker_memory_limit_bytes", Help: "Memory limit in bytes", Kind: models.Gauge},
	{Name: "docker_memory_usage_percent", Help: "Memory usage percentage", Kind: models.Gauge},
	{Name: "docker_memory_percent", Help: "Memory percentage reported by docker stats", Kind: models.Gauge},
	{Name: "docker_network_rx_bytes", Help: "Network bytes received", Kind: models.Counter},
	{Name: "docker_network_tx_bytes", Help: "Network bytes transmitted", Kind: models.Counter},
	{Name: "docker_block_read_bytes", Help: "Block I/O bytes read", Kind: models.Counter},
	{Name: "docker_block_write_bytes", Help: "Block I/O bytes written", Kind: models.Counter},
	{Name: "docker_pids", Help: "Number of PIDs", Kind: models.Gauge},
}

// dockerStat is one line of `docker stats --format "{{json .}}"`.
type dockerStat struct {
	ID       string `json:"ID"`
	Name     string `json:"Name"`
	CPUPerc  string `json:"CPUPerc"`
	MemUsage string `json:"MemUsage"`
	MemPerc  string `json:"MemPerc"`
	NetIO    string `json:"NetIO"`
	BlockIO  string `json:"BlockIO"`
	PIDs     string `json:"PIDs"`
}

// DockerCollector reports per-container resource usage from the docker CLI.
type DockerCollector struct {
	binary string
	runner Runner
}

// NewDockerCollector creates a collector that shells out to binary
// ("docker" when empty) through runner.
func NewDockerCollector(binary string, runner Runner) *DockerCollector {
	if binary == "" {
		binary = "docker"
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &DockerCollector{binary: binary, runner: runner}
}

// Name returns the collector identifier.
func (c *DockerCollector) Name() string { return "docker" }

// Describe returns the docker_* families.
func (c *DockerCollector) Describe() []models.Desc { return dockerDescs }

// IsAvailable reports whether the docker CLI is installed.
func (c *DockerCollector) IsAvailable() bool {
	_, err := c.runner.LookPath(c.binary)
	return err == nil
}

// Collect runs a single non-streaming `docker stats` and converts every
// container line into samples.
func (c *DockerCollector) Collect(ctx context.Context) ([]models.Sample, error) {
	out, err := c.runner.Run(ctx, c.binary, "stats", "--no-stream", "--format", "{{json .}}")
	if err != nil {
		return nil, commandError(c.binary, err)
	}

	var samples []models.Sample
	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var stat dockerStat
		if err := json.Unmarshal(line, &stat); err != nil {
			return nil, WrapError(KindParse, "decode docker stats line", err)
		}
		samples = append(samples, stat.samples()...)
	}
	if err := scanner.Err(); err != nil {
		return nil, WrapError(KindParse, "read docker stats output", err)
	}
	return samples, nil
}

func (s dockerStat) samples() []models.Sample {
	name := s.Name
	if name == "" {
		name = "unknown"
	}
	id := s.ID
	if id == "" {
		id = "unknown"
	}
	if len(id) > 12 {
		id = id[:12]
	}
	labels := models.Labels{"container": name, "id": id}

	var out []models.Sample
	add := func(metric string, v float64) {
		out = append(out, models.NewSample(metric, v, labels))
	}

	if v, ok := ParsePercentOK(s.CPUPerc); ok {
		add("docker_cpu_usage_percent", v)
	}
	if used, limit, ok := ParsePair(s.MemUsage); ok {
		add("docker_memory_usage_bytes", used)
		add("docker_memory_limit_bytes", limit)
		if limit > 0 {
			add("docker_memory_usage_percent", used/limit*100)
		}
	}
	if v, ok := ParsePercentOK(s.MemPerc); ok && v > 0 {
		add("docker_memory_percent", v)
	}
	if rx, tx, ok := ParsePair(s.NetIO); ok {
		add("docker_network_rx_bytes", rx)
		add("docker_network_tx_bytes", tx)
	}
	if read, write, ok := ParsePair(s.BlockIO); ok {
		add("docker_block_read_bytes", read)
		add("docker_block_write_bytes", write)
	}
	if pids, err := strconv.Atoi(strings.TrimSpace(s.PIDs)); err == nil {
		add("docker_pids", float64(pids))
	}
	return out
}
