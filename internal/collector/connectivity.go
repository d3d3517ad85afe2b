package collector

import (
	"context"
	"errors"
	"net"
	"os/exec"
	"regexp"
	"strconv"
	"time"

	"github.com/vitalis-app/exporter/internal/models"
)

// Connectivity modes.
const (
	// ModeICMP only pings the server.
	ModeICMP = "icmp"
	// ModeService pings the server and then checks that the NFS service answers.
	ModeService = "service"

	// DefaultNFSPort is the TCP port of the NFS service.
	DefaultNFSPort = 2049

	showmountTimeout = 3 * time.Second
	dialTimeout      = 2 * time.Second
)

var connectivityDescs = []models.Desc{
	{Name: "nfs_server_reachable", Help: "NFS server reachability (1=reachable, 0=not reachable)", Kind: models.Gauge},
	{Name: "nfs_server_ping_rtt_ms", Help: "Round-trip time of the last ping in milliseconds", Kind: models.Gauge},
}

var pingRTT = regexp.MustCompile(`time[=<]([\d.]+) ?ms`)

// ConnectivityCollector checks that a server answers ICMP and, in service
// mode, that it exports NFS shares.
type ConnectivityCollector struct {
	host   string
	mode   string
	port   int
	runner Runner
	dial   func(ctx context.Context, network, address string) (net.Conn, error)
}

// NewConnectivityCollector creates a connectivity probe for host.
func NewConnectivityCollector(host, mode string, port int, runner Runner) *ConnectivityCollector {
	if mode == "" {
		mode = ModeICMP
	}
	if port <= 0 {
		port = DefaultNFSPort
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	d := &net.Dialer{Timeout: dialTimeout}
	return &ConnectivityCollector{host: host, mode: mode, port: port, runner: runner, dial: d.DialContext}
}

// Name returns the collector identifier.
func (c *ConnectivityCollector) Name() string { return "connectivity" }

// Describe returns the reachability families.
func (c *ConnectivityCollector) Describe() []models.Desc { return connectivityDescs }

// IsAvailable returns true; without ping the collector falls back to TCP.
func (c *ConnectivityCollector) IsAvailable() bool { return true }

// Collect probes the server. An unreachable server is a 0 sample, not an error.
func (c *ConnectivityCollector) Collect(ctx context.Context) ([]models.Sample, error) {
	if c.host == "" {
		return nil, NewError(KindNotConfigured, "no server host configured")
	}

	out, err := c.runner.Run(ctx, "ping", "-c", "1", "-W", "2", c.host)
	var samples []models.Sample
	reachable := false
	switch {
	case errors.Is(err, exec.ErrNotFound):
		reachable = c.tcpCheck(ctx)
	case err != nil:
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	default:
		reachable = true
		if m := pingRTT.FindSubmatch(out); m != nil {
			if rtt, perr := strconv.ParseFloat(string(m[1]), 64); perr == nil {
				samples = append(samples, models.NewSample("nfs_server_ping_rtt_ms", rtt, nil))
			}
		}
		if c.mode == ModeService {
			reachable = c.serviceCheck(ctx)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return append([]models.Sample{models.NewSample("nfs_server_reachable", boolValue(reachable), nil)}, samples...), nil
}

// serviceCheck lists the server's exports. Without showmount the NFS port
// decides.
func (c *ConnectivityCollector) serviceCheck(ctx context.Context) bool {
	sctx, cancel := context.WithTimeout(ctx, showmountTimeout)
	defer cancel()

	_, err := c.runner.Run(sctx, "showmount", "-e", c.host)
	if errors.Is(err, exec.ErrNotFound) {
		return c.tcpCheck(ctx)
	}
	return err == nil
}

func (c *ConnectivityCollector) tcpCheck(ctx context.Context) bool {
	conn, err := c.dial(ctx, "tcp", net.JoinHostPort(c.host, strconv.Itoa(c.port)))
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
