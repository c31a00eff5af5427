package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inTempDir runs the test from an empty directory so no config file or
// .env is picked up.
func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func TestLoadDefaults(t *testing.T) {
	inTempDir(t)

	cfg, err := Load("test")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "Recorder", cfg.Nickname)
	assert.Equal(t, uint16(7000), cfg.PortMin)
	assert.Equal(t, uint16(9000), cfg.PortMax)
	assert.Equal(t, 2, cfg.Components)
	assert.Equal(t, 5*time.Second, cfg.GatherTimeout)
	assert.Equal(t, time.Minute, cfg.StartRateInterval)
	assert.True(t, cfg.CloseOnFailure)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := inTempDir(t)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "config"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "config.test.yaml"), []byte(`
port: 9090
conference_domain: conference.example.com
stun_servers:
  - stun:stun.example.com:3478
connect_timeout: 10s
`), 0o644))
	t.Setenv("RECORDER_NICKNAME", "Archiver")

	cfg, err := Load("test")
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "conference.example.com", cfg.ConferenceDomain)
	assert.Equal(t, []string{"stun:stun.example.com:3478"}, cfg.STUNServers)
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, "Archiver", cfg.Nickname)
}

func TestLoadRejectsInvertedPortRange(t *testing.T) {
	inTempDir(t)
	t.Setenv("RECORDER_PORT_MIN", "9500")

	_, err := Load("test")
	require.ErrorIs(t, err, ErrInvalid)
}

func TestValidate(t *testing.T) {
	valid := Config{PortMin: 7000, PortMax: 9000, Components: 2, Nickname: "Recorder", ConferenceDomain: "c", InboxSize: 1}
	require.NoError(t, valid.Validate())

	tests := map[string]func(c *Config){
		"zero port":       func(c *Config) { c.PortMin = 0 },
		"inverted ports":  func(c *Config) { c.PortMin, c.PortMax = 9000, 7000 },
		"components":      func(c *Config) { c.Components = 3 },
		"empty nickname":  func(c *Config) { c.Nickname = "" },
		"empty domain":    func(c *Config) { c.ConferenceDomain = "" },
		"zero inbox size": func(c *Config) { c.InboxSize = 0 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			c := valid
			mutate(&c)
			assert.ErrorIs(t, c.Validate(), ErrInvalid)
		})
	}
}
