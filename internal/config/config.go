// Package config loads the relay's TOML configuration file, the backing
// store for the `relay run --config <path>` / `relay init-contract`
// CLI surface.
package config

import (
	"time"

	"github.com/BurntSushi/toml"

	"github.com/eth2near/relay/internal/relayerrors"
)

// Config is the full set of operator-supplied settings: chain endpoints,
// the signer credential, batching/timing knobs, and the retry-policy
// fields, all configurable rather than hard-coded.
type Config struct {
	BeaconEndpoint      string `toml:"beacon_endpoint"`
	ExecutionEndpoint   string `toml:"execution_endpoint"`
	TargetChainEndpoint string `toml:"target_chain_endpoint"`

	SignerKeyPath   string `toml:"signer_key_path"`
	ContractAccount string `toml:"contract_account"`

	HeadersBatchSize     uint64        `toml:"headers_batch_size"`
	SubmissionSleep      time.Duration `toml:"submission_sleep"`
	SyncSleep            time.Duration `toml:"sync_sleep"`
	UpdateIntervalEpochs uint64        `toml:"update_interval_epochs"`
	MaxIterations        int           `toml:"max_iterations"`

	RetryBaseDelay   time.Duration `toml:"retry_base_delay"`
	RetryMaxAttempts uint          `toml:"retry_max_attempts"`
	RetryJitter      bool          `toml:"retry_jitter"`

	MetricsListenAddr string `toml:"metrics_listen_addr"`
}

// DefaultHeaderBatchSize is the contract-side sub-batch limit used when the
// configuration omits headers_batch_size: a conservative default chosen to
// stay well under typical per-transaction gas and payload-size limits.
const DefaultHeaderBatchSize = 32

// Load reads and validates a TOML configuration file at path. Any
// missing/malformed field is returned wrapped as relayerrors.Config: a
// malformed config must never let the relay start looping.
func Load(path string) (Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, relayerrors.Config("load toml", err)
	}
	cfg = cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) applyDefaults() Config {
	if c.HeadersBatchSize == 0 {
		c.HeadersBatchSize = DefaultHeaderBatchSize
	}
	if c.SyncSleep == 0 {
		c.SyncSleep = 30 * time.Second
	}
	if c.SubmissionSleep == 0 {
		c.SubmissionSleep = 5 * time.Second
	}
	if c.RetryBaseDelay == 0 {
		c.RetryBaseDelay = time.Second
	}
	if c.RetryMaxAttempts == 0 {
		c.RetryMaxAttempts = 3
	}
	if c.UpdateIntervalEpochs == 0 {
		c.UpdateIntervalEpochs = 1
	}
	return c
}

func (c Config) validate() error {
	missing := func(name, val string) error {
		if val == "" {
			return relayerrors.Config("validate", errFieldRequired(name))
		}
		return nil
	}
	for _, check := range []struct {
		name, val string
	}{
		{"beacon_endpoint", c.BeaconEndpoint},
		{"execution_endpoint", c.ExecutionEndpoint},
		{"target_chain_endpoint", c.TargetChainEndpoint},
		{"signer_key_path", c.SignerKeyPath},
		{"contract_account", c.ContractAccount},
	} {
		if err := missing(check.name, check.val); err != nil {
			return err
		}
	}
	return nil
}

type errFieldRequired string

func (e errFieldRequired) Error() string { return string(e) + " is required" }
