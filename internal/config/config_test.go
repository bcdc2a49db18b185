package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eth2near/relay/internal/relayerrors"
)

func writeTOML(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "relay.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTOML(t, `
beacon_endpoint = "http://beacon:5052"
execution_endpoint = "http://execution:8545"
target_chain_endpoint = "http://target:3030"
signer_key_path = "/etc/relay/signer.json"
contract_account = "client.relay.near"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, uint64(DefaultHeaderBatchSize), cfg.HeadersBatchSize)
	require.Equal(t, uint(3), cfg.RetryMaxAttempts)
	require.Equal(t, uint64(1), cfg.UpdateIntervalEpochs)
}

func TestLoadMissingFieldIsConfigError(t *testing.T) {
	path := writeTOML(t, `
execution_endpoint = "http://execution:8545"
`)

	_, err := Load(path)
	require.Error(t, err)
	require.True(t, relayerrors.Is(err, relayerrors.KindConfig))
}

func TestLoadMalformedTOMLIsConfigError(t *testing.T) {
	path := writeTOML(t, `not valid = = toml`)

	_, err := Load(path)
	require.Error(t, err)
	require.True(t, relayerrors.Is(err, relayerrors.KindConfig))
}

func TestLoadMissingFileIsConfigError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
	require.True(t, relayerrors.Is(err, relayerrors.KindConfig))
}
