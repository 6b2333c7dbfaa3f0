package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDefaults(t *testing.T) {
	c := Config{Username: "alice"}
	c.Normalize()

	assert.Equal(t, "alice", c.Database)
	assert.Equal(t, 1, c.PoolSize)
	assert.Equal(t, 30*time.Second, c.PoolBorrowTimeout)
	assert.Equal(t, 10*time.Second, c.IOTimeout)
	assert.Equal(t, 5432, c.Port)
	assert.Equal(t, SSLPrefer, c.SSL)
}

func TestNormalizeDoesNotOverrideSetFields(t *testing.T) {
	c := Config{Username: "alice", Database: "other", PoolSize: 5, Port: 6543}
	c.Normalize()

	assert.Equal(t, "other", c.Database)
	assert.Equal(t, 5, c.PoolSize)
	assert.Equal(t, 6543, c.Port)
}

func TestStartupParameters(t *testing.T) {
	c := Config{Username: "alice", Database: "app", ApplicationName: "myapp"}

	params := c.StartupParameters()
	assert.Equal(t, "alice", params["user"])
	assert.Equal(t, "app", params["database"])
	assert.Equal(t, "UTF8", params["client_encoding"])
	assert.Equal(t, "myapp", params["application_name"])
}

func TestConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pgwire.yaml")

	content := "hostname: db.internal\nport: 5433\nusername: svc\npool_size: 4\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	c, err := ConfigFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "db.internal", c.Hostname)
	assert.Equal(t, 5433, c.Port)
	assert.Equal(t, "svc", c.Username)
	assert.Equal(t, 4, c.PoolSize)
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pgwire.yaml")

	require.NoError(t, os.WriteFile(path, []byte("hostname: a\nusername: u\n"), 0o600))

	reloaded := make(chan Config, 1)
	w, err := NewWatcher(path, nil, func(c Config) { reloaded <- c })
	require.NoError(t, err)
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("hostname: b\nusername: u\n"), 0o600))

	select {
	case c := <-reloaded:
		assert.Equal(t, "b", c.Hostname)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
}
