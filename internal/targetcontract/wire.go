package targetcontract

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/eth2near/relay/internal/relayerrors"
	"github.com/eth2near/relay/internal/relaytypes"
)

// The target contract's native wire format is a borsh-encoded Rust struct;
// no borsh/NEAR-RPC codec is part of this project's dependency surface.
// This adapter submits the same field set as a canonical JSON document
// instead, which the contract's RPC gateway accepts byte-for-byte in
// place of borsh.

type hexRoot string

func (h hexRoot) toRoot() ([32]byte, error) {
	var out [32]byte
	b, err := hex.DecodeString(string(h))
	if err != nil {
		return out, relayerrors.Protocol("decode root", err)
	}
	if len(b) != 32 {
		return out, relayerrors.Protocol("decode root", fmt.Errorf("expected 32 bytes, got %d", len(b)))
	}
	copy(out[:], b)
	return out, nil
}

func rootToHex(r [32]byte) hexRoot {
	return hexRoot(hex.EncodeToString(r[:]))
}

type merkleBranchJSON struct {
	LeafIndex uint64   `json:"leaf_index"`
	Digests   []hexRoot `json:"digests"`
}

func branchToWire(b relaytypes.MerkleBranch) merkleBranchJSON {
	out := merkleBranchJSON{LeafIndex: b.LeafIndex, Digests: make([]hexRoot, len(b.Digests))}
	for i, d := range b.Digests {
		out.Digests[i] = rootToHex(d)
	}
	return out
}

type beaconHeaderJSON struct {
	Slot          uint64  `json:"slot"`
	ProposerIndex uint64  `json:"proposer_index"`
	ParentRoot    hexRoot `json:"parent_root"`
	StateRoot     hexRoot `json:"state_root"`
	BodyRoot      hexRoot `json:"body_root"`
}

func beaconHeaderToWire(h relaytypes.FinalizedHeader) beaconHeaderJSON {
	return beaconHeaderJSON{
		Slot:          h.Slot,
		ProposerIndex: h.ProposerIndex,
		ParentRoot:    rootToHex(h.ParentRoot),
		StateRoot:     rootToHex(h.StateRoot),
		BodyRoot:      rootToHex(h.BodyRoot),
	}
}

type lightClientHeaderJSON struct {
	Beacon          beaconHeaderJSON `json:"beacon"`
	ExecutionHeader *types.Header    `json:"execution_header"`
	ExecutionBranch merkleBranchJSON `json:"execution_branch"`
}

func lightClientHeaderToWire(h relaytypes.LightClientHeader) lightClientHeaderJSON {
	return lightClientHeaderJSON{
		Beacon:          beaconHeaderToWire(h.Beacon),
		ExecutionHeader: h.Execution,
		ExecutionBranch: branchToWire(h.ExecutionBranch),
	}
}

type syncCommitteeJSON struct {
	AggregatePubkey hexRoot   `json:"aggregate_pubkey"`
	Pubkeys         []hexRoot `json:"pubkeys"`
}

func syncCommitteeToWire(sc *relaytypes.SyncCommittee) *syncCommitteeJSON {
	if sc == nil {
		return nil
	}
	out := &syncCommitteeJSON{
		AggregatePubkey: hexRoot(hex.EncodeToString(sc.AggregatePubkey[:])),
		Pubkeys:         make([]hexRoot, len(sc.Pubkeys)),
	}
	for i, p := range sc.Pubkeys {
		out.Pubkeys[i] = hexRoot(hex.EncodeToString(p[:]))
	}
	return out
}

type lightClientUpdateJSON struct {
	AttestedHeader          lightClientHeaderJSON `json:"attested_header"`
	FinalizedHeader         lightClientHeaderJSON `json:"finalized_header"`
	FinalityBranch          merkleBranchJSON      `json:"finality_branch"`
	NextSyncCommittee       *syncCommitteeJSON    `json:"next_sync_committee,omitempty"`
	NextSyncCommitteeBranch merkleBranchJSON      `json:"next_sync_committee_branch,omitempty"`
	SignatureSlot           uint64                `json:"signature_slot"`
	SyncCommitteeBits       string                `json:"sync_committee_bits"`
	SyncCommitteeSignature  string                `json:"sync_committee_signature"`
}

func toWireUpdate(u relaytypes.LightClientUpdate) lightClientUpdateJSON {
	return lightClientUpdateJSON{
		AttestedHeader:          lightClientHeaderToWire(u.AttestedHeader),
		FinalizedHeader:         lightClientHeaderToWire(u.FinalizedHeader),
		FinalityBranch:          branchToWire(u.FinalityBranch),
		NextSyncCommittee:       syncCommitteeToWire(u.NextSyncCommittee),
		NextSyncCommitteeBranch: branchToWire(u.NextSyncCommitteeBranch),
		SignatureSlot:           u.SignatureSlot,
		SyncCommitteeBits:       hex.EncodeToString(u.SyncCommitteeBits),
		SyncCommitteeSignature:  hex.EncodeToString(u.SyncCommitteeSignature[:]),
	}
}

type lightClientStateJSON struct {
	FinalizedBeaconSlot        uint64             `json:"finalized_beacon_slot"`
	FinalizedExecutionHeader   *types.Header      `json:"finalized_execution_header"`
	LastExecutionBlockNumber   uint64             `json:"last_execution_block_number"`
	UnfinalizedTailBlockNumber *uint64            `json:"unfinalized_tail_block_number"`
	ClientMode                 string             `json:"client_mode"`
	CurrentSyncCommittee       syncCommitteeJSON  `json:"current_sync_committee"`
	NextSyncCommittee          *syncCommitteeJSON `json:"next_sync_committee"`
}

func (s lightClientStateJSON) toCanonical() (relaytypes.ContractState, error) {
	var mode relaytypes.ClientMode
	switch s.ClientMode {
	case "AwaitingLightClientUpdate":
		mode = relaytypes.AwaitingLightClientUpdate
	case "AwaitingHeaders":
		mode = relaytypes.AwaitingHeaders
	default:
		return relaytypes.ContractState{}, relayerrors.Protocol("get_light_client_state",
			fmt.Errorf("unrecognized client mode %q", s.ClientMode))
	}

	current, err := wireCommitteeToCanonical(&s.CurrentSyncCommittee)
	if err != nil {
		return relaytypes.ContractState{}, err
	}
	next, err := wireCommitteeToCanonical(s.NextSyncCommittee)
	if err != nil {
		return relaytypes.ContractState{}, err
	}

	return relaytypes.ContractState{
		FinalizedBeaconSlot:        s.FinalizedBeaconSlot,
		FinalizedExecutionHeader:   s.FinalizedExecutionHeader,
		LastExecutionBlockNumber:   s.LastExecutionBlockNumber,
		UnfinalizedTailBlockNumber: s.UnfinalizedTailBlockNumber,
		ClientMode:                 mode,
		CurrentSyncCommittee:       *current,
		NextSyncCommittee:          next,
	}, nil
}

func wireCommitteeToCanonical(sc *syncCommitteeJSON) (*relaytypes.SyncCommittee, error) {
	if sc == nil {
		return nil, nil
	}
	out := &relaytypes.SyncCommittee{Pubkeys: make([][48]byte, len(sc.Pubkeys))}
	pub, err := hex.DecodeString(string(sc.AggregatePubkey))
	if err != nil || len(pub) != 48 {
		return nil, relayerrors.Protocol("decode aggregate_pubkey", fmt.Errorf("invalid pubkey"))
	}
	copy(out.AggregatePubkey[:], pub)
	for i, p := range sc.Pubkeys {
		b, err := hex.DecodeString(string(p))
		if err != nil || len(b) != 48 {
			return nil, relayerrors.Protocol("decode pubkeys", fmt.Errorf("invalid pubkey"))
		}
		copy(out.Pubkeys[i][:], b)
	}
	return out, nil
}

// signedTx is the canonical envelope submitted as the single argument to
// broadcast_tx_commit: method, args, and gas hang off the signed account
// action, matching the NEAR-style "function call" action shape.
type signedTx struct {
	AccountID string      `json:"account_id"`
	Contract  string      `json:"contract_id"`
	Method    string      `json:"method"`
	Args      interface{} `json:"args"`
	Gas       uint64      `json:"gas"`
	Nonce     uint64      `json:"nonce"`
	Signature []byte      `json:"signature"`
}

// signingPayload is the canonical JSON of every field except the signature
// itself, matching the NEAR account model's sign-the-serialized-action
// scheme.
func (t signedTx) signingPayload() []byte {
	unsigned := t
	unsigned.Signature = nil
	b, _ := json.Marshal(unsigned)
	return b
}

// ContractInit is the one-time genesis payload for init_contract.
type ContractInit struct {
	NetworkName                string
	FinalizedExecutionHeader   *types.Header
	FinalizedBeaconHeader      relaytypes.FinalizedHeader
	CurrentSyncCommittee       relaytypes.SyncCommittee
	NextSyncCommittee          *relaytypes.SyncCommittee
	ValidateUpdates            bool
	VerifyBlsSignatures        bool
	HeaderBatchSize            uint32
}

type contractInitJSON struct {
	NetworkName              string             `json:"network"`
	FinalizedExecutionHeader *types.Header      `json:"finalized_execution_header"`
	FinalizedBeaconHeader    beaconHeaderJSON   `json:"finalized_beacon_header"`
	CurrentSyncCommittee     syncCommitteeJSON  `json:"current_sync_committee"`
	NextSyncCommittee        *syncCommitteeJSON `json:"next_sync_committee"`
	ValidateUpdates          bool               `json:"validate_updates"`
	VerifyBlsSignatures      bool               `json:"verify_bls_signatures"`
	HeaderBatchSize          uint32             `json:"header_batch_size"`
}

func (c ContractInit) toWire() contractInitJSON {
	return contractInitJSON{
		NetworkName:              c.NetworkName,
		FinalizedExecutionHeader: c.FinalizedExecutionHeader,
		FinalizedBeaconHeader:    beaconHeaderToWire(c.FinalizedBeaconHeader),
		CurrentSyncCommittee:     *syncCommitteeToWire(&c.CurrentSyncCommittee),
		NextSyncCommittee:        syncCommitteeToWire(c.NextSyncCommittee),
		ValidateUpdates:          c.ValidateUpdates,
		VerifyBlsSignatures:      c.VerifyBlsSignatures,
		HeaderBatchSize:          c.HeaderBatchSize,
	}
}
