package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/eth2near/relay/internal/config"
	"github.com/eth2near/relay/internal/beaconclient"
	"github.com/eth2near/relay/internal/executionclient"
	"github.com/eth2near/relay/internal/metrics"
	"github.com/eth2near/relay/internal/orchestrator"
	"github.com/eth2near/relay/internal/relayerrors"
	"github.com/eth2near/relay/internal/relaytypes"
	"github.com/eth2near/relay/internal/retrypolicy"
	"github.com/eth2near/relay/internal/targetcontract"
)

// version is injected at build time via -ldflags "-X main.version=...".
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "relay",
	Short: "Ethereum to NEAR light-client relay",
}

var configPath string
var bootstrapRoot string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the relay loop until cancelled",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRelay(cmd.Root().Context(), configPath)
	},
}

var initCmd = &cobra.Command{
	Use:   "init-contract",
	Short: "One-time operator action: install genesis state on a freshly deployed contract",
	RunE: func(cmd *cobra.Command, args []string) error {
		return initContract(cmd.Root().Context(), configPath, bootstrapRoot)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(version)
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&configPath, "config", "", "path to the relay TOML configuration file")
	runCmd.MarkFlagRequired("config")

	initCmd.Flags().StringVar(&configPath, "config", "", "path to the relay TOML configuration file")
	initCmd.Flags().StringVar(&bootstrapRoot, "bootstrap-root", "", "0x-hex beacon block root to bootstrap the light client from")
	initCmd.MarkFlagRequired("config")
	initCmd.MarkFlagRequired("bootstrap-root")

	rootCmd.AddCommand(runCmd, initCmd, versionCmd)
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	rootCmd.SetContext(ctx)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runRelay(ctx context.Context, path string) error {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	spec := relaytypes.DefaultSpec()

	beacon, err := beaconclient.New(cfg.BeaconEndpoint, spec, log)
	if err != nil {
		return err
	}
	defer beacon.Close()

	execution, err := executionclient.Dial(ctx, cfg.ExecutionEndpoint)
	if err != nil {
		return err
	}
	defer execution.Close()

	signer, err := targetcontract.LoadSigner(cfg.SignerKeyPath)
	if err != nil {
		return err
	}

	contract, err := targetcontract.Dial(ctx, cfg.TargetChainEndpoint, cfg.ContractAccount, signer)
	if err != nil {
		return err
	}
	defer contract.Close()

	if _, err := contract.GetClientMode(ctx); err != nil {
		return relayerrors.Config("startup check",
			fmt.Errorf("target contract %s is not initialized or unreachable: %w", cfg.ContractAccount, err))
	}

	if cfg.MetricsListenAddr != "" {
		go serveMetrics(cfg.MetricsListenAddr, log)
	}

	orch := orchestrator.New(beacon, execution, contract, orchestrator.Config{
		HeadersBatchSize:     cfg.HeadersBatchSize,
		SubmissionSleep:      cfg.SubmissionSleep,
		SyncSleep:            cfg.SyncSleep,
		UpdateIntervalEpochs: cfg.UpdateIntervalEpochs,
		MaxIterations:        cfg.MaxIterations,
		Retry: retrypolicy.Policy{
			BaseDelay:   cfg.RetryBaseDelay,
			MaxAttempts: cfg.RetryMaxAttempts,
			Jitter:      cfg.RetryJitter,
		},
	}, log)

	return orch.Run(ctx)
}

// initContract fetches a bootstrap payload from the beacon node and the
// pinned execution header, then calls init_contract once. This is operator
// tooling, used once per contract lifetime to install its genesis state;
// never invoked by `relay run`.
func initContract(ctx context.Context, path, bootstrapRoot string) error {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	spec := relaytypes.DefaultSpec()

	beacon, err := beaconclient.New(cfg.BeaconEndpoint, spec, log)
	if err != nil {
		return err
	}
	defer beacon.Close()

	bootstrap, err := beacon.GetBootstrap(ctx, bootstrapRoot)
	if err != nil {
		return err
	}

	execution, err := executionclient.Dial(ctx, cfg.ExecutionEndpoint)
	if err != nil {
		return err
	}
	defer execution.Close()

	blockNumber := uint64(0)
	if bootstrap.Header.Execution != nil {
		blockNumber = bootstrap.Header.Execution.Number.Uint64()
	}
	finalizedExecutionHeader, err := execution.FetchBlockHeader(ctx, blockNumber)
	if err != nil {
		return err
	}

	signer, err := targetcontract.LoadSigner(cfg.SignerKeyPath)
	if err != nil {
		return err
	}
	contract, err := targetcontract.Dial(ctx, cfg.TargetChainEndpoint, cfg.ContractAccount, signer)
	if err != nil {
		return err
	}
	defer contract.Close()

	return contract.InitContract(ctx, targetcontract.ContractInit{
		FinalizedExecutionHeader: finalizedExecutionHeader,
		FinalizedBeaconHeader:    bootstrap.Header.Beacon,
		CurrentSyncCommittee:     bootstrap.CurrentSyncCommittee,
		ValidateUpdates:          true,
		VerifyBlsSignatures:      true,
		HeaderBatchSize:          uint32(cfg.HeadersBatchSize),
	})
}

func serveMetrics(addr string, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error().Err(err).Msg("metrics listener stopped")
	}
}
