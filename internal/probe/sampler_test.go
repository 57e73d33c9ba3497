package probe

import (
	"context"
	"errors"
	"testing"
	"time"

	"NetSentinel/internal/model"

	psnet "github.com/shirou/gopsutil/v3/net"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newFakeSampler(counters []psnet.IOCountersStat, conns []psnet.ConnectionStat, names map[int32]string) *HostSampler {
	s := NewHostSampler(zap.NewNop())
	s.ioCounters = func(context.Context) ([]psnet.IOCountersStat, error) { return counters, nil }
	s.connections = func(context.Context) ([]psnet.ConnectionStat, error) { return conns, nil }
	s.processName = func(_ context.Context, pid int32) (string, error) {
		if name, ok := names[pid]; ok {
			return name, nil
		}
		return "", errors.New("process does not exist")
	}
	s.now = func() time.Time { return time.Unix(100, 500_000_000) }
	return s
}

func TestHostSampler_Sample(t *testing.T) {
	counters := []psnet.IOCountersStat{
		{Name: "eth0", BytesSent: 10, BytesRecv: 20},
		{Name: "lo", BytesSent: 1, BytesRecv: 1},
	}
	conns := []psnet.ConnectionStat{
		{Laddr: psnet.Addr{IP: "10.0.0.1", Port: 443}, Raddr: psnet.Addr{IP: "1.2.3.4", Port: 80}, Status: "ESTABLISHED", Pid: 100},
		// duplicate entry collapses into the set
		{Laddr: psnet.Addr{IP: "10.0.0.1", Port: 443}, Raddr: psnet.Addr{IP: "1.2.3.4", Port: 80}, Status: "ESTABLISHED", Pid: 100},
		{Laddr: psnet.Addr{IP: "0.0.0.0", Port: 22}, Raddr: psnet.Addr{IP: "0.0.0.0", Port: 0}, Status: "LISTEN", Pid: 200},
		{Laddr: psnet.Addr{IP: "::", Port: 53}, Status: "NONE", Pid: 0},
		{Laddr: psnet.Addr{IP: "10.0.0.1", Port: 5000}, Raddr: psnet.Addr{IP: "5.6.7.8", Port: 22}, Status: "ESTABLISHED", Pid: 300},
	}
	names := map[int32]string{100: "curl", 200: "sshd"}

	sample, err := newFakeSampler(counters, conns, names).Sample(context.Background())
	require.NoError(t, err)

	assert.InDelta(t, 100.5, sample.Timestamp, 1e-9)
	assert.Equal(t, model.IOCounters{BytesSent: 10, BytesRecv: 20}, sample.IOCounters["eth0"])
	assert.Len(t, sample.IOCounters, 2)

	assert.Equal(t, 4, sample.Connections.Len())
	assert.True(t, sample.Connections.Contains(model.ConnectionKey{
		LocalIP: "10.0.0.1", LocalPort: 443, RemoteIP: "1.2.3.4", RemotePort: 80, Status: "ESTABLISHED", PID: 100,
	}))
	assert.True(t, sample.Connections.Contains(model.ConnectionKey{
		LocalIP: "0.0.0.0", LocalPort: 22, Status: "LISTEN", PID: 200,
	}), "unspecified remote endpoint is recorded as empty")

	name, ok := sample.ProcessName(100)
	assert.True(t, ok)
	assert.Equal(t, "curl", name)

	_, ok = sample.ProcessName(300)
	assert.False(t, ok, "failed lookup leaves the name absent")
	_, ok = sample.ProcessName(0)
	assert.False(t, ok)
}

func TestHostSampler_LooksUpEachPIDOnce(t *testing.T) {
	conns := []psnet.ConnectionStat{
		{Laddr: psnet.Addr{IP: "10.0.0.1", Port: 1}, Raddr: psnet.Addr{IP: "1.1.1.1", Port: 443}, Status: "ESTABLISHED", Pid: 7},
		{Laddr: psnet.Addr{IP: "10.0.0.1", Port: 2}, Raddr: psnet.Addr{IP: "1.1.1.1", Port: 443}, Status: "ESTABLISHED", Pid: 7},
	}
	s := newFakeSampler(nil, conns, nil)
	calls := 0
	s.processName = func(context.Context, int32) (string, error) {
		calls++
		return "", errors.New("permission denied")
	}

	sample, err := s.Sample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 2, sample.Connections.Len())
	assert.Empty(t, sample.ProcessNames)
}

func TestHostSampler_EnumerationErrors(t *testing.T) {
	s := newFakeSampler(nil, nil, nil)
	s.connections = func(context.Context) ([]psnet.ConnectionStat, error) {
		return nil, errors.New("boom")
	}
	_, err := s.Sample(context.Background())
	assert.ErrorContains(t, err, "enumerate connections")

	s = newFakeSampler(nil, nil, nil)
	s.ioCounters = func(context.Context) ([]psnet.IOCountersStat, error) {
		return nil, errors.New("boom")
	}
	_, err = s.Sample(context.Background())
	assert.ErrorContains(t, err, "interface counters")
}
