package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseCommand(t *testing.T, args ...string) (Config, error) {
	t.Helper()

	o := &options{}
	root := &cobra.Command{Use: "tenda-exporter"}
	o.bindPersistentFlags(root)
	o.bindServeFlags(root)

	require.NoError(t, root.ParseFlags(args))
	return o.load(root)
}

func TestDefaultsNeedCredentials(t *testing.T) {
	t.Setenv(passwordEnv, "")

	_, err := parseCommand(t)
	assert.Error(t, err)
}

func TestFlagsOverrideDefaults(t *testing.T) {
	t.Setenv(passwordEnv, "")

	cfg, err := parseCommand(t, "--host", "192.168.0.1", "--password", "pw", "--interval", "1m", "--device-source", "qos")
	require.NoError(t, err)

	assert.Equal(t, "192.168.0.1", cfg.Host)
	assert.Equal(t, "pw", cfg.Password)
	assert.Equal(t, time.Minute, cfg.Interval)
	assert.Equal(t, "qos", cfg.DeviceSource)
	assert.Equal(t, ":9412", cfg.Listen)

	opts, err := cfg.GatherOptions()
	require.NoError(t, err)
	assert.Len(t, opts, 4)
}

func TestPasswordFromEnvironment(t *testing.T) {
	t.Setenv(passwordEnv, "from-env")

	cfg, err := parseCommand(t, "--host", "192.168.0.1")
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Password)
}

func TestConfigFile(t *testing.T) {
	t.Setenv(passwordEnv, "")

	path := filepath.Join(t.TempDir(), "tenda.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
host = "router.lan"
password = "file-pw"
interval = "45s"
dial_timeout = "2s"
log_format = "json"
`), 0o600))

	cfg, err := parseCommand(t, "--config", path, "--host", "10.0.0.1")
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.1", cfg.Host, "flags win over the file")
	assert.Equal(t, "file-pw", cfg.Password)
	assert.Equal(t, 45*time.Second, cfg.Interval)
	assert.Equal(t, 2*time.Second, cfg.DialTimeout)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestConfigFileInvalidDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tenda.toml")
	require.NoError(t, os.WriteFile(path, []byte(`interval = "soon"`), 0o600))

	_, err := parseCommand(t, "--config", path)
	assert.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := defaultConfig()
	cfg.Host = "192.168.0.1"
	cfg.Password = "pw"
	require.NoError(t, cfg.Validate())

	bad := []func(*Config){
		func(c *Config) { c.Interval = 10 * time.Millisecond },
		func(c *Config) { c.Listen = "nowhere" },
		func(c *Config) { c.DeviceSource = "arp" },
		func(c *Config) { c.LogLevel = "loud" },
		func(c *Config) { c.LogFormat = "xml" },
	}
	for _, mutate := range bad {
		c := cfg
		mutate(&c)
		assert.Error(t, c.Validate())
	}
}

func TestValidateErrorHidesPassword(t *testing.T) {
	cfg := defaultConfig()
	cfg.Password = "hunter2"

	err := cfg.Validate()
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "hunter2")
}
