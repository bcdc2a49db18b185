package orchestrator

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/eth2near/relay/internal/relayerrors"
	"github.com/eth2near/relay/internal/relaytypes"
	"github.com/eth2near/relay/internal/retrypolicy"
)

// fakeBeacon/fakeExecution/fakeContract let each test drive the
// orchestrator over scripted state without any network: update threshold,
// period-boundary-first selection and the mode flip, reverse ordering in
// batches, hash-chain validation, closed gap, cancellation, max iterations,
// and empty-batch no-op.

type fakeBeacon struct {
	spec            relaytypes.Spec
	syncing         bool
	lastFinalized   uint64
	periodUpdate    relaytypes.LightClientUpdate
	finalityUpdate  relaytypes.LightClientUpdate
	periodUpdateErr error
}

func (f *fakeBeacon) Period(slot uint64) uint64 { return f.spec.Period(slot) }
func (f *fakeBeacon) IsSyncing(ctx context.Context) (bool, error) { return f.syncing, nil }
func (f *fakeBeacon) GetHeadSlot(ctx context.Context) (uint64, error) { return f.lastFinalized, nil }
func (f *fakeBeacon) GetLastFinalizedSlot(ctx context.Context) (uint64, error) {
	return f.lastFinalized, nil
}
func (f *fakeBeacon) GetBlockNumberForSlot(ctx context.Context, slot uint64) (uint64, error) {
	return 0, nil
}
func (f *fakeBeacon) FetchFinalityUpdate(ctx context.Context) (relaytypes.LightClientUpdate, error) {
	return f.finalityUpdate, nil
}
func (f *fakeBeacon) FetchPeriodUpdate(ctx context.Context, period uint64) (relaytypes.LightClientUpdate, error) {
	if f.periodUpdateErr != nil {
		return relaytypes.LightClientUpdate{}, f.periodUpdateErr
	}
	return f.periodUpdate, nil
}

type fakeExecution struct {
	headers map[uint64]*types.Header
}

func (f *fakeExecution) GetLatestBlockNumber(ctx context.Context) (uint64, error) {
	var max uint64
	for n := range f.headers {
		if n > max {
			max = n
		}
	}
	return max, nil
}

func (f *fakeExecution) FetchBlockRange(ctx context.Context, start, end uint64) ([]*types.Header, error) {
	out := make([]*types.Header, 0, end-start+1)
	for n := start; n <= end; n++ {
		out = append(out, f.headers[n])
	}
	return out, nil
}

type submittedBatch struct {
	numbers []uint64
}

type fakeContract struct {
	mode  relaytypes.ClientMode
	state relaytypes.ContractState

	submittedUpdates int
	submittedBatches []submittedBatch
}

func (f *fakeContract) GetClientMode(ctx context.Context) (relaytypes.ClientMode, error) {
	return f.mode, nil
}
func (f *fakeContract) GetLightClientState(ctx context.Context) (relaytypes.ContractState, error) {
	return f.state, nil
}
func (f *fakeContract) SubmitLightClientUpdate(ctx context.Context, update relaytypes.LightClientUpdate) error {
	f.submittedUpdates++
	f.mode = relaytypes.AwaitingHeaders
	return nil
}
func (f *fakeContract) SubmitExecutionHeaders(ctx context.Context, headers []*types.Header) error {
	nums := make([]uint64, len(headers))
	for i, h := range headers {
		nums[i] = h.Number.Uint64()
	}
	f.submittedBatches = append(f.submittedBatches, submittedBatch{numbers: nums})
	return nil
}

func header(number uint64, parent *types.Header) *types.Header {
	h := &types.Header{Number: new(big.Int).SetUint64(number)}
	if parent != nil {
		h.ParentHash = parent.Hash()
	}
	return h
}

func noSleep(ctx context.Context, d time.Duration) error { return nil }

func testOrchestrator(beacon BeaconClient, execution ExecutionClient, contract TargetContract, cfg Config) *Orchestrator {
	if cfg.Retry == (retrypolicy.Policy{}) {
		cfg.Retry = retrypolicy.Policy{BaseDelay: time.Millisecond, MaxAttempts: 1}
	}
	o := New(beacon, execution, contract, cfg, zerolog.Nop())
	o.sleep = noSleep
	return o
}

func TestStepAwaitingUpdateSleepsBelowThreshold(t *testing.T) {
	beacon := &fakeBeacon{spec: relaytypes.DefaultSpec(), lastFinalized: 100}
	contract := &fakeContract{
		mode:  relaytypes.AwaitingLightClientUpdate,
		state: relaytypes.ContractState{FinalizedBeaconSlot: 99},
	}
	o := testOrchestrator(beacon, &fakeExecution{}, contract, Config{UpdateIntervalEpochs: 10})

	require.NoError(t, o.runIteration(context.Background()))
	require.Equal(t, 0, contract.submittedUpdates)
}

func TestStepAwaitingUpdateCrossesPeriodBoundaryFirst(t *testing.T) {
	spec := relaytypes.DefaultSpec()
	slotsPerPeriod := spec.SlotsPerPeriod()
	beacon := &fakeBeacon{
		spec:          spec,
		lastFinalized: slotsPerPeriod + 10,
		periodUpdate:  relaytypes.LightClientUpdate{NextSyncCommittee: &relaytypes.SyncCommittee{}},
	}
	contract := &fakeContract{
		mode:  relaytypes.AwaitingLightClientUpdate,
		state: relaytypes.ContractState{FinalizedBeaconSlot: 0},
	}
	o := testOrchestrator(beacon, &fakeExecution{}, contract, Config{UpdateIntervalEpochs: 1})

	require.NoError(t, o.runIteration(context.Background()))
	require.Equal(t, 1, contract.submittedUpdates)
	require.Equal(t, relaytypes.AwaitingHeaders, contract.mode)
}

func TestStepAwaitingHeadersSubmitsReverseOrderInBatches(t *testing.T) {
	h1 := header(1, nil)
	h2 := header(2, h1)
	h3 := header(3, h2)
	execution := &fakeExecution{headers: map[uint64]*types.Header{1: h1, 2: h2, 3: h3}}

	tail := uint64(4)
	contract := &fakeContract{
		mode: relaytypes.AwaitingHeaders,
		state: relaytypes.ContractState{
			FinalizedExecutionHeader:   &types.Header{Number: big.NewInt(0)},
			UnfinalizedTailBlockNumber: &tail,
		},
	}
	o := testOrchestrator(&fakeBeacon{spec: relaytypes.DefaultSpec()}, execution, contract, Config{HeadersBatchSize: 2})

	require.NoError(t, o.runIteration(context.Background()))
	require.Len(t, contract.submittedBatches, 2)
	require.Equal(t, []uint64{3, 2}, contract.submittedBatches[0].numbers)
	require.Equal(t, []uint64{1}, contract.submittedBatches[1].numbers)
}

func TestStepAwaitingHeadersHashMismatchIsConsistencyError(t *testing.T) {
	h1 := header(1, nil)
	h2bad := &types.Header{Number: big.NewInt(2)} // parent hash left zero, does not link to h1
	execution := &fakeExecution{headers: map[uint64]*types.Header{1: h1, 2: h2bad}}

	tail := uint64(3)
	contract := &fakeContract{
		mode: relaytypes.AwaitingHeaders,
		state: relaytypes.ContractState{
			FinalizedExecutionHeader:   &types.Header{Number: big.NewInt(0)},
			UnfinalizedTailBlockNumber: &tail,
		},
	}
	o := testOrchestrator(&fakeBeacon{spec: relaytypes.DefaultSpec()}, execution, contract, Config{HeadersBatchSize: 32})

	err := o.runIteration(context.Background())
	require.Error(t, err)
	require.True(t, relayerrors.Is(err, relayerrors.KindConsistency))
	require.Empty(t, contract.submittedBatches)
}

func TestStepAwaitingHeadersGapClosedSleeps(t *testing.T) {
	tail := uint64(1)
	contract := &fakeContract{
		mode: relaytypes.AwaitingHeaders,
		state: relaytypes.ContractState{
			FinalizedExecutionHeader:   &types.Header{Number: big.NewInt(0)},
			UnfinalizedTailBlockNumber: &tail,
		},
	}
	o := testOrchestrator(&fakeBeacon{spec: relaytypes.DefaultSpec()}, &fakeExecution{}, contract, Config{HeadersBatchSize: 32})

	require.NoError(t, o.runIteration(context.Background()))
	require.Empty(t, contract.submittedBatches)
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	contract := &fakeContract{mode: relaytypes.AwaitingLightClientUpdate}
	o := testOrchestrator(&fakeBeacon{spec: relaytypes.DefaultSpec()}, &fakeExecution{}, contract, Config{UpdateIntervalEpochs: 1000})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, o.Run(ctx))
}

func TestRunRespectsMaxIterations(t *testing.T) {
	contract := &fakeContract{mode: relaytypes.AwaitingLightClientUpdate}
	o := testOrchestrator(&fakeBeacon{spec: relaytypes.DefaultSpec()}, &fakeExecution{}, contract, Config{UpdateIntervalEpochs: 1000, MaxIterations: 3})

	require.NoError(t, o.Run(context.Background()))
}

func TestEmptyHeaderBatchIsNoop(t *testing.T) {
	tail := uint64(1)
	contract := &fakeContract{}
	o := testOrchestrator(&fakeBeacon{spec: relaytypes.DefaultSpec()}, &fakeExecution{}, contract, Config{HeadersBatchSize: 32})

	state := relaytypes.ContractState{
		FinalizedExecutionHeader:   &types.Header{Number: big.NewInt(0)},
		UnfinalizedTailBlockNumber: &tail,
	}
	contract.state = state
	require.NoError(t, o.submitInBatches(context.Background(), nil))
	require.Empty(t, contract.submittedBatches)
}
