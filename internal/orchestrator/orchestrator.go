// Package orchestrator drives the bounded relay loop: a single-threaded
// state machine that walks the beacon, execution, and target-contract
// components through the Altair light-client mode discipline (await a
// sync-committee/finality update, then backfill execution headers).
package orchestrator

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"github.com/eth2near/relay/internal/metrics"
	"github.com/eth2near/relay/internal/relayerrors"
	"github.com/eth2near/relay/internal/relaytypes"
	"github.com/eth2near/relay/internal/retrypolicy"
)

// BeaconClient is the subset of internal/beaconclient.Client the
// orchestrator depends on, narrowed to an interface so tests can fake it
// without any network.
type BeaconClient interface {
	Period(slot uint64) uint64
	IsSyncing(ctx context.Context) (bool, error)
	GetHeadSlot(ctx context.Context) (uint64, error)
	GetLastFinalizedSlot(ctx context.Context) (uint64, error)
	GetBlockNumberForSlot(ctx context.Context, slot uint64) (uint64, error)
	FetchFinalityUpdate(ctx context.Context) (relaytypes.LightClientUpdate, error)
	FetchPeriodUpdate(ctx context.Context, period uint64) (relaytypes.LightClientUpdate, error)
}

// ExecutionClient is the subset of internal/executionclient.Client the
// orchestrator depends on.
type ExecutionClient interface {
	GetLatestBlockNumber(ctx context.Context) (uint64, error)
	FetchBlockRange(ctx context.Context, start, end uint64) ([]*types.Header, error)
}

// TargetContract is the subset of internal/targetcontract.Adapter the
// orchestrator depends on.
type TargetContract interface {
	GetClientMode(ctx context.Context) (relaytypes.ClientMode, error)
	GetLightClientState(ctx context.Context) (relaytypes.ContractState, error)
	SubmitLightClientUpdate(ctx context.Context, update relaytypes.LightClientUpdate) error
	SubmitExecutionHeaders(ctx context.Context, headers []*types.Header) error
}

// Config is the orchestrator's own slice of the process configuration:
// timing and batching knobs for the relay loop.
type Config struct {
	HeadersBatchSize     uint64
	SubmissionSleep      time.Duration
	SyncSleep            time.Duration
	UpdateIntervalEpochs uint64
	MaxIterations        int // 0 = unbounded

	Retry retrypolicy.Policy
}

const slotsPerEpoch = 32

// Orchestrator drives the relay loop.
type Orchestrator struct {
	beacon    BeaconClient
	execution ExecutionClient
	contract  TargetContract
	cfg       Config
	log       zerolog.Logger

	// sleep is overridden in tests to avoid real waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds an Orchestrator over the three leaf components.
func New(beacon BeaconClient, execution ExecutionClient, contract TargetContract, cfg Config, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		beacon:    beacon,
		execution: execution,
		contract:  contract,
		cfg:       cfg,
		log:       log.With().Str("component", "orchestrator").Logger(),
		sleep:     ctxSleep,
	}
}

func ctxSleep(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return relayerrors.Cancelled("sleep")
	}
}

// Run loops until ctx is cancelled or MaxIterations is reached (0 =
// unbounded). Cancellation is checked at every suspension point; no new
// RPC or transaction is issued once ctx is done.
func (o *Orchestrator) Run(ctx context.Context) error {
	for iteration := 0; o.cfg.MaxIterations == 0 || iteration < o.cfg.MaxIterations; iteration++ {
		if err := ctxDone(ctx); err != nil {
			return nil
		}

		if err := o.runIteration(ctx); err != nil {
			if relayerrors.Is(err, relayerrors.KindCancelled) {
				return nil
			}
			if relayerrors.Is(err, relayerrors.KindConfig) {
				return err
			}
			o.logIterationError(err)
			if sleepErr := o.sleep(ctx, o.cfg.SyncSleep); sleepErr != nil {
				return nil
			}
		}
	}
	return nil
}

func (o *Orchestrator) logIterationError(err error) {
	switch {
	case relayerrors.Is(err, relayerrors.KindTransport):
		o.log.Warn().Err(err).Msg("transient transport failure, retrying next iteration")
	case relayerrors.Is(err, relayerrors.KindProtocol):
		o.log.Error().Err(err).Msg("protocol violation, aborting iteration")
	case relayerrors.Is(err, relayerrors.KindContractRejection):
		o.log.Error().Err(err).Msg("contract rejected submission")
	case relayerrors.Is(err, relayerrors.KindConsistency):
		o.log.Error().Err(err).Msg("hash-link mismatch, discarding fetched range")
	default:
		o.log.Error().Err(err).Msg("iteration failed")
	}
}

func ctxDone(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return relayerrors.Cancelled("run")
	default:
		return nil
	}
}

// runIteration reads the contract's mode once and dispatches to the
// matching action; every other decision is recomputed from fresh state
// on each iteration rather than cached across calls.
func (o *Orchestrator) runIteration(ctx context.Context) error {
	mode, err := o.contract.GetClientMode(ctx)
	if err != nil {
		return err
	}

	switch mode {
	case relaytypes.AwaitingLightClientUpdate:
		return o.stepAwaitingUpdate(ctx)
	case relaytypes.AwaitingHeaders:
		return o.stepAwaitingHeaders(ctx)
	default:
		return relayerrors.Protocol("run_iteration", errUnknownMode(mode))
	}
}

type errUnknownMode relaytypes.ClientMode

func (e errUnknownMode) Error() string { return "unrecognized client mode" }

// stepAwaitingUpdate implements the AwaitingLightClientUpdate row of the
// mode table: if the beacon's finality has advanced far enough past the
// contract's anchor, select and submit the appropriate update; otherwise
// sleep.
func (o *Orchestrator) stepAwaitingUpdate(ctx context.Context) error {
	var syncing bool
	if err := o.retryTransport(ctx, func() (err error) {
		syncing, err = o.beacon.IsSyncing(ctx)
		return err
	}); err != nil {
		return err
	}
	if syncing {
		return o.sleep(ctx, o.cfg.SyncSleep)
	}

	state, err := o.contract.GetLightClientState(ctx)
	if err != nil {
		return err
	}

	var beaconFinalized uint64
	if err := o.retryTransport(ctx, func() (err error) {
		beaconFinalized, err = o.beacon.GetLastFinalizedSlot(ctx)
		return err
	}); err != nil {
		return err
	}

	metrics.LastFinalizedBeaconSlot.Update(int64(beaconFinalized))
	metrics.LastFinalizedBeaconSlotOnTarget.Update(int64(state.FinalizedBeaconSlot))
	o.reportHeadMetrics(ctx, beaconFinalized)

	threshold := o.cfg.UpdateIntervalEpochs * slotsPerEpoch
	if beaconFinalized < state.FinalizedBeaconSlot+threshold {
		return o.sleep(ctx, o.cfg.SyncSleep)
	}

	update, err := o.selectUpdate(ctx, state.FinalizedBeaconSlot, beaconFinalized)
	if err != nil {
		return err
	}

	if err := o.contract.SubmitLightClientUpdate(ctx, update); err != nil {
		metrics.UpdateSubmissionFailures.Inc(1)
		return err
	}
	return nil
}

// reportHeadMetrics records how far the observable chain tip on each side
// leads the contract's finalized anchor. Failures here are logged and
// swallowed: these are dashboard gauges, not correctness-affecting reads.
func (o *Orchestrator) reportHeadMetrics(ctx context.Context, beaconFinalized uint64) {
	if head, err := o.beacon.GetHeadSlot(ctx); err != nil {
		o.log.Warn().Err(err).Msg("could not read beacon head slot for metrics")
	} else {
		metrics.LastBeaconSlot.Update(int64(head))
	}

	if block, err := o.beacon.GetBlockNumberForSlot(ctx, beaconFinalized); err != nil {
		o.log.Warn().Err(err).Msg("could not resolve finalized slot to an execution block for metrics")
	} else {
		metrics.LastFinalizedExecutionBlockOnEth.Update(int64(block))
	}
}

// selectUpdate prefers crossing a sync-committee period boundary before
// advancing finalization within the current period: if the beacon chain
// has moved past the contract's period, fetch the periodic update for
// contract_period+1 (installing the next sync committee); otherwise fetch
// the current finality update.
func (o *Orchestrator) selectUpdate(ctx context.Context, contractSlot, beaconFinalizedSlot uint64) (relaytypes.LightClientUpdate, error) {
	contractPeriod := o.beacon.Period(contractSlot)
	beaconPeriod := o.beacon.Period(beaconFinalizedSlot)

	var (
		update relaytypes.LightClientUpdate
		err    error
	)
	fetchErr := o.retryTransport(ctx, func() error {
		if beaconPeriod > contractPeriod {
			update, err = o.beacon.FetchPeriodUpdate(ctx, contractPeriod+1)
		} else {
			update, err = o.beacon.FetchFinalityUpdate(ctx)
		}
		return err
	})
	if fetchErr != nil {
		return relaytypes.LightClientUpdate{}, fetchErr
	}
	return update, nil
}

// retryTransport retries fn under the orchestrator's shared retry policy,
// but only for TransportError — Protocol/Consistency/ContractRejection
// failures are not transient and propagate immediately.
func (o *Orchestrator) retryTransport(ctx context.Context, fn func() error) error {
	return retrypolicy.Do(ctx, o.cfg.Retry, isTransportErr, fn)
}

func isTransportErr(err error) bool {
	return relayerrors.Is(err, relayerrors.KindTransport)
}

// stepAwaitingHeaders implements the AwaitingHeaders row: fetch the open
// gap between the contract's finalized tip and its unfinalized tail,
// validate it is hash-linked, and submit it tail-first in batches.
func (o *Orchestrator) stepAwaitingHeaders(ctx context.Context) error {
	var syncing bool
	if err := o.retryTransport(ctx, func() (err error) {
		syncing, err = o.beacon.IsSyncing(ctx)
		return err
	}); err != nil {
		return err
	}
	if syncing {
		return o.sleep(ctx, o.cfg.SyncSleep)
	}

	state, err := o.contract.GetLightClientState(ctx)
	if err != nil {
		return err
	}
	if state.UnfinalizedTailBlockNumber == nil {
		return o.sleep(ctx, o.cfg.SubmissionSleep)
	}

	tail := *state.UnfinalizedTailBlockNumber
	finalized := state.FinalizedExecutionBlockNumber()
	metrics.LastFinalizedExecutionBlockOnTarget.Update(int64(finalized))
	metrics.LastExecutionBlockOnTarget.Update(int64(state.LastExecutionBlockNumber))
	if head, err := o.execution.GetLatestBlockNumber(ctx); err != nil {
		o.log.Warn().Err(err).Msg("could not read execution head block number for metrics")
	} else {
		metrics.LastExecutionBlockOnEth.Update(int64(head))
	}

	if tail <= finalized+1 {
		// Gap already closed; the next iteration will observe the mode flip.
		return o.sleep(ctx, o.cfg.SubmissionSleep)
	}

	start := finalized + 1
	end := tail - 1

	var headers []*types.Header
	if err := o.retryTransport(ctx, func() (err error) {
		headers, err = o.execution.FetchBlockRange(ctx, start, end)
		return err
	}); err != nil {
		return err
	}
	if err := validateGapFree(headers); err != nil {
		return err
	}
	if err := validateHashLinked(headers); err != nil {
		return err
	}

	reversed := reverseHeaders(headers)
	return o.submitInBatches(ctx, reversed)
}

func validateGapFree(headers []*types.Header) error {
	for i, h := range headers {
		if h == nil {
			return relayerrors.Protocol("fetch_block_range", errMissingBlock(i))
		}
	}
	return nil
}

type errMissingBlock int

func (e errMissingBlock) Error() string { return "execution node returned a gap within the requested range" }

// validateHashLinked checks that the ascending sequence is a genuine chain:
// parent_hash(h[i+1]) == keccak256(rlp(h[i])) for every consecutive pair.
func validateHashLinked(headers []*types.Header) error {
	for i := 0; i+1 < len(headers); i++ {
		if !relaytypes.HashLinked(headers[i], headers[i+1]) {
			return relayerrors.Consistency("validate_hash_linked", errHashLinkMismatch{
				parent: headers[i].Number.Uint64(),
				child:  headers[i+1].Number.Uint64(),
			})
		}
	}
	return nil
}

type errHashLinkMismatch struct {
	parent, child uint64
}

func (e errHashLinkMismatch) Error() string {
	return "hash-link mismatch between consecutive blocks"
}

func reverseHeaders(headers []*types.Header) []*types.Header {
	out := make([]*types.Header, len(headers))
	for i, h := range headers {
		out[len(headers)-1-i] = h
	}
	return out
}

// submitInBatches submits headers (already tail-first/decreasing) in
// chunks of HeadersBatchSize, sleeping SubmissionSleep between chunks.
func (o *Orchestrator) submitInBatches(ctx context.Context, headers []*types.Header) error {
	batchSize := int(o.cfg.HeadersBatchSize)
	if batchSize <= 0 {
		batchSize = len(headers)
	}

	for i := 0; i < len(headers); i += batchSize {
		if err := ctxDone(ctx); err != nil {
			return err
		}
		end := i + batchSize
		if end > len(headers) {
			end = len(headers)
		}
		if err := o.contract.SubmitExecutionHeaders(ctx, headers[i:end]); err != nil {
			metrics.HeaderSubmissionFailures.Inc(1)
			return err
		}
		if end < len(headers) {
			if err := o.sleep(ctx, o.cfg.SubmissionSleep); err != nil {
				return err
			}
		}
	}
	return nil
}
