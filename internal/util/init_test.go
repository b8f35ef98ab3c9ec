package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	confPath := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(confPath, []byte(`
[chain]
rpc_endpoint = "http://localhost:8545"
timeout_ms = 10000

[api]
address = ":5000"
`), 0o600))

	t.Run("file", func(t *testing.T) {
		ko, err := LoadConfig(confPath)
		require.NoError(t, err)
		require.Equal(t, "http://localhost:8545", ko.String("chain.rpc_endpoint"))
		require.Equal(t, 10000, ko.Int("chain.timeout_ms"))
		require.Equal(t, ":5000", ko.String("api.address"))
	})

	t.Run("env overrides file", func(t *testing.T) {
		t.Setenv("W3TOOLS_CHAIN__RPC_ENDPOINT", "ws://node:8546")
		t.Setenv("W3TOOLS_CHAIN__TIMEOUT_MS", "2500")

		ko, err := LoadConfig(confPath)
		require.NoError(t, err)
		require.Equal(t, "ws://node:8546", ko.String("chain.rpc_endpoint"))
		require.Equal(t, 2500, ko.Int("chain.timeout_ms"))
	})

	t.Run("missing file", func(t *testing.T) {
		t.Setenv("W3TOOLS_CHAIN__RPC_ENDPOINT", "http://env:8545")

		ko, err := LoadConfig(filepath.Join(dir, "absent.toml"))
		require.NoError(t, err)
		require.Equal(t, "http://env:8545", ko.String("chain.rpc_endpoint"))
		require.Zero(t, ko.Int("chain.timeout_ms"))
	})

	t.Run("malformed file", func(t *testing.T) {
		badPath := filepath.Join(dir, "bad.toml")
		require.NoError(t, os.WriteFile(badPath, []byte("[chain\nrpc_endpoint ="), 0o600))

		_, err := LoadConfig(badPath)
		require.Error(t, err)
	})
}
