package ice

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/Recorder/internal/domain"
	"github.com/pion/ice/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCredentials(t *testing.T) {
	ufrag, pwd, err := generateCredentials()
	require.NoError(t, err)
	assert.Len(t, ufrag, ufragLen)
	assert.Len(t, pwd, pwdLen)
	assert.GreaterOrEqual(t, len(ufrag), 4)
	assert.GreaterOrEqual(t, len(pwd), 22)
	for _, r := range ufrag + pwd {
		assert.True(t, strings.ContainsRune(runesAlpha, r))
	}

	other, _, err := generateCredentials()
	require.NoError(t, err)
	assert.NotEqual(t, ufrag, other)
}

func TestCandidateConversion(t *testing.T) {
	tests := []domain.Candidate{
		{
			Component: 1, Foundation: "1", Priority: 2130706431,
			IP: "192.0.2.1", Port: 5000, Protocol: "udp", Type: domain.CandidateHost,
		},
		{
			Component: 2, Foundation: "2", Priority: 1694498815,
			IP: "203.0.113.9", Port: 6000, Protocol: "udp", Type: domain.CandidateServerReflexive,
			RelAddr: "192.0.2.1", RelPort: 5001,
		},
		{
			Component: 1, Foundation: "3", Priority: 16777215,
			IP: "198.51.100.4", Port: 3478, Protocol: "udp", Type: domain.CandidateRelayed,
			RelAddr: "203.0.113.9", RelPort: 6000,
		},
	}
	for _, want := range tests {
		t.Run(string(want.Type), func(t *testing.T) {
			c, err := fromDomain(want)
			require.NoError(t, err)

			got := toDomain(c)
			assert.Equal(t, want.IP, got.IP)
			assert.Equal(t, want.Port, got.Port)
			assert.Equal(t, want.Component, got.Component)
			assert.Equal(t, want.Priority, got.Priority)
			assert.Equal(t, want.Foundation, got.Foundation)
			assert.Equal(t, want.Type, got.Type)
			assert.Equal(t, "udp", got.Protocol)
			assert.Equal(t, want.RelAddr, got.RelAddr)
			assert.Equal(t, want.RelPort, got.RelPort)
		})
	}
}

func TestFromDomainUnknownType(t *testing.T) {
	_, err := fromDomain(domain.Candidate{IP: "192.0.2.1", Port: 1, Type: "bogus"})
	require.ErrorIs(t, err, domain.ErrUnknownCandidateType)
}

func TestNewEngine(t *testing.T) {
	_, err := NewEngine(Config{PortMin: 9000, PortMax: 7000})
	require.ErrorIs(t, err, ErrPortRange)

	_, err = NewEngine(Config{STUNServers: []string{"http://example.com"}})
	require.Error(t, err)

	e, err := NewEngine(Config{PortMin: 7000, PortMax: 9000, STUNServers: []string{"stun:stun.example.com:3478"}})
	require.NoError(t, err)
	assert.Equal(t, 2, e.cfg.Components)

	cfg := e.agentConfig("ufrag", "password")
	assert.Equal(t, uint16(7000), cfg.PortMin)
	assert.Equal(t, []ice.CandidateType{ice.CandidateTypeHost, ice.CandidateTypeServerReflexive}, cfg.CandidateTypes)
	assert.Equal(t, []ice.NetworkType{ice.NetworkTypeUDP4}, cfg.NetworkTypes)
	require.Len(t, cfg.Urls, 1)
}

func TestAgentRequiresHarvest(t *testing.T) {
	e, err := NewEngine(Config{PortMin: 7000, PortMax: 9000})
	require.NoError(t, err)
	a, err := e.NewAgent("room1")
	require.NoError(t, err)

	ufrag, pwd := a.LocalCredentials()
	assert.NotEmpty(t, ufrag)
	assert.NotEmpty(t, pwd)
	assert.Equal(t, 0, a.Generation())

	require.ErrorIs(t, a.SetRemoteCredentials(domain.MediaAudio, "u", "p"), ErrNotHarvested)
	_, err = a.Establish(context.Background())
	require.ErrorIs(t, err, ErrNotHarvested)
	assert.Empty(t, a.Components(domain.MediaAudio))

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
	_, err = a.Harvest(context.Background(), domain.MediaAudio)
	require.ErrorIs(t, err, ErrAgentClosed)
}

// requireIPv4 skips tests that gather host candidates on machines without
// a usable IPv4 interface.
func requireIPv4(t *testing.T) {
	t.Helper()
	ifaces, err := net.Interfaces()
	require.NoError(t, err)
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && ipnet.IP.To4() != nil {
				return
			}
		}
	}
	t.Skip("no non-loopback IPv4 interface")
}

func TestHarvestIsIdempotentAndInRange(t *testing.T) {
	requireIPv4(t)
	e, err := NewEngine(Config{PortMin: 47000, PortMax: 47100, GatherTimeout: 2 * time.Second})
	require.NoError(t, err)
	a, err := e.NewAgent("room1")
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	first, err := a.Harvest(context.Background(), domain.MediaAudio)
	require.NoError(t, err)
	require.Len(t, first, 2)

	second, err := a.Harvest(context.Background(), domain.MediaAudio)
	require.NoError(t, err)
	require.Len(t, second, len(first))
	for i := range first {
		assert.Same(t, first[i], second[i])
	}
	assert.Equal(t, first, a.Components(domain.MediaAudio))

	for i, comp := range first {
		assert.Equal(t, uint16(i+1), comp.ID)
		require.NotEmpty(t, comp.Local())
		for _, c := range comp.Local() {
			assert.Equal(t, comp.ID, c.Component)
			assert.Equal(t, domain.CandidateHost, c.Type)
			assert.GreaterOrEqual(t, c.Port, 47000)
			assert.LessOrEqual(t, c.Port, 47100)
		}
	}

	got, ok := a.Component(domain.MediaAudio, 2)
	require.True(t, ok)
	assert.Same(t, first[1], got)
	require.NoError(t, a.SetRemoteCredentials(domain.MediaAudio, "rufr", "remotepasswordremotepwd"))
}

func TestHarvestFailsWhenRangeIsTaken(t *testing.T) {
	requireIPv4(t)
	taken, err := net.ListenUDP("udp4", &net.UDPAddr{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = taken.Close() })
	port := uint16(taken.LocalAddr().(*net.UDPAddr).Port)

	e, err := NewEngine(Config{PortMin: port, PortMax: port, GatherTimeout: 2 * time.Second})
	require.NoError(t, err)
	a, err := e.NewAgent("room1")
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	_, err = a.Harvest(context.Background(), domain.MediaAudio)
	require.ErrorIs(t, err, ErrNoCandidates)
	assert.Empty(t, a.Components(domain.MediaAudio))
	require.ErrorIs(t, a.SetRemoteCredentials(domain.MediaAudio, "u", "p"), ErrNotHarvested)
}

func TestLoggerFactory(t *testing.T) {
	l := LoggerFactory{}.NewLogger("ice")
	require.NotNil(t, l)
	l.Debugf("candidate %d", 1)
	l.Warn("noop")
}
