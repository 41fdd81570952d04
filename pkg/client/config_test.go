package client

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "client.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadClientConfigCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "client.toml")

	config, err := LoadClientConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultTOMLConfig(), config)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# WireChat Client Configuration"))

	// The written file loads back to the same values
	again, err := LoadClientConfig(path)
	require.NoError(t, err)
	assert.Equal(t, config, again)
}

func TestLoadClientConfigUnwritableDirWarns(t *testing.T) {
	var buf bytes.Buffer
	old := warnLog
	warnLog = log.New(&buf, "", 0)
	t.Cleanup(func() { warnLog = old })

	// A dangling link whose target directory does not exist: the config
	// counts as missing but cannot be created
	dir := t.TempDir()
	path := filepath.Join(dir, "client.toml")
	require.NoError(t, os.Symlink(filepath.Join(dir, "missing", "client.toml"), path))

	config, err := LoadClientConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultTOMLConfig(), config)
	assert.Contains(t, buf.String(), "could not write default config to "+path)
}

func TestLoadClientConfigOverrides(t *testing.T) {
	path := writeConfig(t, `
[connection]
default_server = "chat.example.com"

[ui]
color = false
`)

	config, err := LoadClientConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "chat.example.com", config.Connection.DefaultServer)
	assert.Equal(t, DefaultPort, config.Connection.DefaultPort)
	assert.False(t, config.UI.Color)
	assert.Equal(t, "--> ", config.UI.Prompt)
}

func TestLoadClientConfigParseError(t *testing.T) {
	path := writeConfig(t, "[connection]\ndefault_port = \n")

	_, err := LoadClientConfig(path)
	require.Error(t, err)

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, path, cfgErr.Path)
	assert.Positive(t, cfgErr.LineNumber)
	assert.NotContains(t, cfgErr.Message, "toml: ")
}

func TestLoadClientConfigValidation(t *testing.T) {
	path := writeConfig(t, `
[connection]
default_server = " "
default_port = 70000
dial_timeout_seconds = -1
`)

	_, err := LoadClientConfig(path)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Zero(t, cfgErr.LineNumber)
	assert.Contains(t, cfgErr.Message, "Invalid port number: 70000")
	assert.Contains(t, cfgErr.Message, "Dial timeout cannot be negative")
	assert.Contains(t, cfgErr.Message, "Default server cannot be empty")
}

func TestGetServerAddress(t *testing.T) {
	tests := []struct {
		server string
		port   int
		want   string
	}{
		{"localhost", 7980, "localhost:7980"},
		{"localhost:9000", 7980, "localhost:9000"},
		{"ws://chat.example.com/ws", 7980, "ws://chat.example.com/ws"},
		{"::1", 7980, "[::1]:7980"},
		{"chat.example.com", 0, "chat.example.com"},
		{"", 7980, ""},
	}

	for _, tt := range tests {
		t.Run(tt.server, func(t *testing.T) {
			config := TOMLConfig{Connection: ConnectionSection{DefaultServer: tt.server, DefaultPort: tt.port}}
			assert.Equal(t, tt.want, config.GetServerAddress())
		})
	}
}

func TestDialTimeout(t *testing.T) {
	config := DefaultTOMLConfig()
	assert.Equal(t, 10*time.Second, config.DialTimeout())

	config.Connection.DialTimeoutSeconds = 3
	assert.Equal(t, 3*time.Second, config.DialTimeout())

	config.Connection.DialTimeoutSeconds = 0
	assert.Equal(t, defaultDialTimeout, config.DialTimeout())
}

func TestResetConfigToDefault(t *testing.T) {
	path := writeConfig(t, "[ui]\ncolor = false\n")

	require.NoError(t, ResetConfigToDefault(path, true))

	config, err := LoadClientConfig(path)
	require.NoError(t, err)
	assert.True(t, config.UI.Color)

	backups, err := filepath.Glob(path + ".backup-*")
	require.NoError(t, err)
	require.Len(t, backups, 1)
	data, err := os.ReadFile(backups[0])
	require.NoError(t, err)
	assert.Equal(t, "[ui]\ncolor = false\n", string(data))
}

func TestDefaultConfigPathHonoursXDG(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	assert.Equal(t, filepath.Join(dir, "wirechat", "client.toml"), DefaultConfigPath())
}
