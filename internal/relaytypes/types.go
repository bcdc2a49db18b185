// Package relaytypes holds the data model shared by every relay component:
// beacon headers, light client updates, and the target contract's read-only
// state mirror. None of these types know how to fetch or submit themselves;
// that belongs to beaconclient, executionclient, and targetcontract.
package relaytypes

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ClientMode is the target contract's submission-acceptance state.
type ClientMode int

const (
	AwaitingLightClientUpdate ClientMode = iota
	AwaitingHeaders
)

func (m ClientMode) String() string {
	switch m {
	case AwaitingLightClientUpdate:
		return "AwaitingLightClientUpdate"
	case AwaitingHeaders:
		return "AwaitingHeaders"
	default:
		return "Unknown"
	}
}

// FinalizedHeader identifies the light client's current anchor on the
// beacon chain.
type FinalizedHeader struct {
	Slot          uint64
	ProposerIndex uint64
	ParentRoot    [32]byte
	StateRoot     [32]byte
	BodyRoot      [32]byte
}

// SyncCommittee is forwarded opaquely; the relay never validates BLS keys.
type SyncCommittee struct {
	AggregatePubkey [48]byte
	Pubkeys         [][48]byte
}

// MerkleBranch is a flat ordered sequence of sibling digests plus the leaf
// index being proven: proofs are trees in shape only, never represented
// as shared/cyclic structures.
type MerkleBranch struct {
	LeafIndex uint64
	Digests   [][32]byte
}

// LightClientHeader pins a beacon header to its execution payload.
type LightClientHeader struct {
	Beacon          FinalizedHeader
	Execution       *types.Header
	ExecutionBranch MerkleBranch
}

// LightClientUpdate is the tagged-union payload the target contract
// consumes. The tag is NextSyncCommittee's nilness: non-nil means this is a
// PeriodicUpdate (crosses a sync-committee period boundary); nil means a
// FinalityUpdate (advances finalization within the current period).
type LightClientUpdate struct {
	AttestedHeader          LightClientHeader
	FinalizedHeader         LightClientHeader
	FinalityBranch          MerkleBranch
	NextSyncCommittee       *SyncCommittee
	NextSyncCommitteeBranch MerkleBranch
	SignatureSlot           uint64
	SyncCommitteeBits       []byte
	SyncCommitteeSignature  [96]byte
}

// IsPeriodic reports whether this update carries a next-sync-committee
// installation (i.e. crosses a period boundary).
func (u LightClientUpdate) IsPeriodic() bool {
	return u.NextSyncCommittee != nil
}

// Bootstrap is the one-time genesis payload fetched by operator tooling
// before calling the target contract's init_contract — not used by the
// relay's steady-state loop.
type Bootstrap struct {
	Header                     LightClientHeader
	CurrentSyncCommittee       SyncCommittee
	CurrentSyncCommitteeBranch MerkleBranch
}

// ContractState is the read-only mirror of the target contract's
// light-client state, as returned by its view-call surface.
type ContractState struct {
	FinalizedBeaconSlot        uint64
	FinalizedExecutionHeader   *types.Header
	LastExecutionBlockNumber   uint64
	UnfinalizedTailBlockNumber *uint64
	ClientMode                 ClientMode
	CurrentSyncCommittee       SyncCommittee
	NextSyncCommittee          *SyncCommittee
}

// FinalizedExecutionBlockNumber is the highest execution block number the
// contract treats as finalized, i.e. the block pinned by the last accepted
// Light Client Update's finalized header. It is distinct from
// LastExecutionBlockNumber, which also counts unfinalized-but-accepted
// headers further down the backfill chain.
func (s ContractState) FinalizedExecutionBlockNumber() uint64 {
	if s.FinalizedExecutionHeader == nil {
		return 0
	}
	return s.FinalizedExecutionHeader.Number.Uint64()
}

// HashLinked reports whether h2's parent hash equals h1's computed hash,
// i.e. h2 directly extends h1 in the canonical chain.
func HashLinked(h1, h2 *types.Header) bool {
	return h2.ParentHash == h1.Hash()
}

// BlockHash returns the canonical keccak256(rlp(header)) hash used
// throughout the relay's hash-link checks.
func BlockHash(h *types.Header) common.Hash {
	return h.Hash()
}
