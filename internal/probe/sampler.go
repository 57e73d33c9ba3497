package probe

import (
	"context"
	"fmt"
	"net"
	"time"

	"NetSentinel/internal/model"

	psnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
)

// HostSampler implements model.Sampler on top of gopsutil.
type HostSampler struct {
	logger *zap.Logger

	ioCounters  func(ctx context.Context) ([]psnet.IOCountersStat, error)
	connections func(ctx context.Context) ([]psnet.ConnectionStat, error)
	processName func(ctx context.Context, pid int32) (string, error)
	now         func() time.Time
}

// NewHostSampler creates a sampler that reads the local host's network state.
func NewHostSampler(logger *zap.Logger) *HostSampler {
	return &HostSampler{
		logger: logger,
		ioCounters: func(ctx context.Context) ([]psnet.IOCountersStat, error) {
			return psnet.IOCountersWithContext(ctx, true)
		},
		connections: func(ctx context.Context) ([]psnet.ConnectionStat, error) {
			return psnet.ConnectionsWithContext(ctx, "inet")
		},
		processName: func(ctx context.Context, pid int32) (string, error) {
			p, err := process.NewProcessWithContext(ctx, pid)
			if err != nil {
				return "", err
			}
			return p.NameWithContext(ctx)
		},
		now: time.Now,
	}
}

// Sample takes one snapshot of interface counters, connections and process names.
// Failing to enumerate counters or connections fails the whole sample; a failed
// process name lookup only leaves that name out.
func (s *HostSampler) Sample(ctx context.Context) (*model.Sample, error) {
	ts := s.now()

	counters, err := s.ioCounters(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read interface counters: %w", err)
	}
	io := make(map[string]model.IOCounters, len(counters))
	for _, c := range counters {
		io[c.Name] = model.IOCounters{BytesSent: c.BytesSent, BytesRecv: c.BytesRecv}
	}

	stats, err := s.connections(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate connections: %w", err)
	}
	conns := make(model.ConnectionSet, len(stats))
	names := make(map[int32]string)
	looked := make(map[int32]bool)
	for _, c := range stats {
		localIP, localPort := endpoint(c.Laddr)
		remoteIP, remotePort := endpoint(c.Raddr)
		pid := c.Pid
		if pid < 0 {
			pid = 0
		}
		conns.Add(model.ConnectionKey{
			LocalIP:    localIP,
			LocalPort:  localPort,
			RemoteIP:   remoteIP,
			RemotePort: remotePort,
			Status:     c.Status,
			PID:        pid,
		})

		if pid == 0 || looked[pid] {
			continue
		}
		looked[pid] = true
		name, err := s.processName(ctx, pid)
		if err != nil {
			// the process may have exited since the connection was listed
			s.logger.Debug("Process name lookup failed", zap.Int32("pid", pid), zap.Error(err))
			continue
		}
		names[pid] = name
	}

	return &model.Sample{
		Timestamp:    float64(ts.UnixNano()) / float64(time.Second),
		IOCounters:   io,
		Connections:  conns,
		ProcessNames: names,
	}, nil
}

// endpoint normalizes an address; an unbound endpoint becomes ("", 0).
func endpoint(a psnet.Addr) (string, uint32) {
	if a.Port == 0 {
		if a.IP == "" {
			return "", 0
		}
		if ip := net.ParseIP(a.IP); ip != nil && ip.IsUnspecified() {
			return "", 0
		}
	}
	return a.IP, a.Port
}
