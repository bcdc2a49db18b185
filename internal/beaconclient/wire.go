package beaconclient

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/eth2near/relay/internal/relayerrors"
	"github.com/eth2near/relay/internal/relaytypes"
)

// The wire-shaped structs below mirror the beacon light-client API's JSON
// schema (quantities as decimal strings, roots/hashes as 0x-hex) and decode
// into internal/relaytypes' canonical Go-native types. Field names follow
// the Altair light-client spec's snake_case verbatim.

type beaconBlockHeaderJSON struct {
	Slot          string `json:"slot"`
	ProposerIndex string `json:"proposer_index"`
	ParentRoot    string `json:"parent_root"`
	StateRoot     string `json:"state_root"`
	BodyRoot      string `json:"body_root"`
}

type executionPayloadHeaderJSON struct {
	ParentHash    string `json:"parent_hash"`
	FeeRecipient  string `json:"fee_recipient"`
	StateRoot     string `json:"state_root"`
	ReceiptsRoot  string `json:"receipts_root"`
	LogsBloom     string `json:"logs_bloom"`
	PrevRandao    string `json:"prev_randao"`
	BlockNumber   string `json:"block_number"`
	GasLimit      string `json:"gas_limit"`
	GasUsed       string `json:"gas_used"`
	Timestamp     string `json:"timestamp"`
	ExtraData     string `json:"extra_data"`
	BaseFeePerGas string `json:"base_fee_per_gas"`
	BlockHash     string `json:"block_hash"`
}

type lightClientHeaderJSON struct {
	Beacon          beaconBlockHeaderJSON      `json:"beacon"`
	Execution       executionPayloadHeaderJSON `json:"execution"`
	ExecutionBranch []string                   `json:"execution_branch"`
}

type syncAggregateJSON struct {
	SyncCommitteeBits      string `json:"sync_committee_bits"`
	SyncCommitteeSignature string `json:"sync_committee_signature"`
}

type syncCommitteeJSON struct {
	AggregatePubkey string   `json:"aggregate_pubkey"`
	Pubkeys         []string `json:"pubkeys"`
}

type lightClientUpdateJSON struct {
	AttestedHeader          lightClientHeaderJSON `json:"attested_header"`
	FinalizedHeader         lightClientHeaderJSON `json:"finalized_header"`
	FinalityBranch          []string              `json:"finality_branch"`
	NextSyncCommittee       *syncCommitteeJSON    `json:"next_sync_committee"`
	NextSyncCommitteeBranch []string              `json:"next_sync_committee_branch"`
	SignatureSlot           string                `json:"signature_slot"`
	SyncAggregate           syncAggregateJSON     `json:"sync_aggregate"`
}

// Quantities in the beacon light-client API are JSON strings holding plain
// decimal numbers (not 0x-prefixed), e.g. "slot": "8286967".
func parseUint(field, s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, relayerrors.Protocol("parse "+field, err)
	}
	return n, nil
}

func parseRoot(field, s string) ([32]byte, error) {
	var out [32]byte
	b, err := hexToBytes(s)
	if err != nil {
		return out, relayerrors.Protocol("parse "+field, err)
	}
	if len(b) != 32 {
		return out, relayerrors.Protocol("parse "+field, fmt.Errorf("expected 32 bytes, got %d", len(b)))
	}
	copy(out[:], b)
	return out, nil
}

func hexToBytes(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	return hex.DecodeString(s)
}

func (h beaconBlockHeaderJSON) toCanonical() (relaytypes.FinalizedHeader, error) {
	slot, err := parseUint("slot", h.Slot)
	if err != nil {
		return relaytypes.FinalizedHeader{}, err
	}
	proposerIndex, err := parseUint("proposer_index", h.ProposerIndex)
	if err != nil {
		return relaytypes.FinalizedHeader{}, err
	}
	parentRoot, err := parseRoot("parent_root", h.ParentRoot)
	if err != nil {
		return relaytypes.FinalizedHeader{}, err
	}
	stateRoot, err := parseRoot("state_root", h.StateRoot)
	if err != nil {
		return relaytypes.FinalizedHeader{}, err
	}
	bodyRoot, err := parseRoot("body_root", h.BodyRoot)
	if err != nil {
		return relaytypes.FinalizedHeader{}, err
	}
	return relaytypes.FinalizedHeader{
		Slot:          slot,
		ProposerIndex: proposerIndex,
		ParentRoot:    parentRoot,
		StateRoot:     stateRoot,
		BodyRoot:      bodyRoot,
	}, nil
}

func (e executionPayloadHeaderJSON) toCanonical() (*types.Header, error) {
	blockNumber, err := parseUint("block_number", e.BlockNumber)
	if err != nil {
		return nil, err
	}
	gasLimit, err := parseUint("gas_limit", e.GasLimit)
	if err != nil {
		return nil, err
	}
	gasUsed, err := parseUint("gas_used", e.GasUsed)
	if err != nil {
		return nil, err
	}
	timestamp, err := parseUint("timestamp", e.Timestamp)
	if err != nil {
		return nil, err
	}

	parentHash, err := hexToBytes(e.ParentHash)
	if err != nil {
		return nil, relayerrors.Protocol("parse parent_hash", err)
	}
	stateRoot, err := hexToBytes(e.StateRoot)
	if err != nil {
		return nil, relayerrors.Protocol("parse state_root", err)
	}
	receiptsRoot, err := hexToBytes(e.ReceiptsRoot)
	if err != nil {
		return nil, relayerrors.Protocol("parse receipts_root", err)
	}
	logsBloom, err := hexToBytes(e.LogsBloom)
	if err != nil {
		return nil, relayerrors.Protocol("parse logs_bloom", err)
	}
	mixDigest, err := hexToBytes(e.PrevRandao)
	if err != nil {
		return nil, relayerrors.Protocol("parse prev_randao", err)
	}
	extraData, err := hexToBytes(e.ExtraData)
	if err != nil {
		return nil, relayerrors.Protocol("parse extra_data", err)
	}

	var baseFee *big.Int
	if e.BaseFeePerGas != "" {
		n, err := parseUint("base_fee_per_gas", e.BaseFeePerGas)
		if err != nil {
			return nil, err
		}
		baseFee = new(big.Int).SetUint64(n)
	}

	return &types.Header{
		ParentHash:  common.BytesToHash(parentHash),
		Coinbase:    common.HexToAddress(e.FeeRecipient),
		Root:        common.BytesToHash(stateRoot),
		ReceiptHash: common.BytesToHash(receiptsRoot),
		Bloom:       types.BytesToBloom(logsBloom),
		Number:      new(big.Int).SetUint64(blockNumber),
		GasLimit:    gasLimit,
		GasUsed:     gasUsed,
		Time:        timestamp,
		Extra:       extraData,
		MixDigest:   common.BytesToHash(mixDigest),
		BaseFee:     baseFee,
	}, nil
}

func branchToCanonical(field string, digests []string) (relaytypes.MerkleBranch, error) {
	branch := relaytypes.MerkleBranch{Digests: make([][32]byte, len(digests))}
	for i, d := range digests {
		root, err := parseRoot(field, d)
		if err != nil {
			return relaytypes.MerkleBranch{}, err
		}
		branch.Digests[i] = root
	}
	return branch, nil
}

func (h lightClientHeaderJSON) toCanonical() (relaytypes.LightClientHeader, error) {
	beacon, err := h.Beacon.toCanonical()
	if err != nil {
		return relaytypes.LightClientHeader{}, err
	}
	execution, err := h.Execution.toCanonical()
	if err != nil {
		return relaytypes.LightClientHeader{}, err
	}
	branch, err := branchToCanonical("execution_branch", h.ExecutionBranch)
	if err != nil {
		return relaytypes.LightClientHeader{}, err
	}
	return relaytypes.LightClientHeader{
		Beacon:          beacon,
		Execution:       execution,
		ExecutionBranch: branch,
	}, nil
}

func (s syncCommitteeJSON) toCanonical() (relaytypes.SyncCommittee, error) {
	var sc relaytypes.SyncCommittee
	pub, err := hexToBytes(s.AggregatePubkey)
	if err != nil || len(pub) != 48 {
		return sc, relayerrors.Protocol("parse aggregate_pubkey", fmt.Errorf("invalid pubkey %q", s.AggregatePubkey))
	}
	copy(sc.AggregatePubkey[:], pub)
	sc.Pubkeys = make([][48]byte, len(s.Pubkeys))
	for i, p := range s.Pubkeys {
		b, err := hexToBytes(p)
		if err != nil || len(b) != 48 {
			return sc, relayerrors.Protocol("parse pubkeys", fmt.Errorf("invalid pubkey %q", p))
		}
		copy(sc.Pubkeys[i][:], b)
	}
	return sc, nil
}

type bootstrapJSON struct {
	Header                     lightClientHeaderJSON `json:"header"`
	CurrentSyncCommittee       syncCommitteeJSON     `json:"current_sync_committee"`
	CurrentSyncCommitteeBranch []string              `json:"current_sync_committee_branch"`
}

func (b bootstrapJSON) toCanonical() (relaytypes.Bootstrap, error) {
	header, err := b.Header.toCanonical()
	if err != nil {
		return relaytypes.Bootstrap{}, err
	}
	committee, err := b.CurrentSyncCommittee.toCanonical()
	if err != nil {
		return relaytypes.Bootstrap{}, err
	}
	branch, err := branchToCanonical("current_sync_committee_branch", b.CurrentSyncCommitteeBranch)
	if err != nil {
		return relaytypes.Bootstrap{}, err
	}
	return relaytypes.Bootstrap{
		Header:                     header,
		CurrentSyncCommittee:       committee,
		CurrentSyncCommitteeBranch: branch,
	}, nil
}

// toCanonical decodes the wire update into relaytypes.LightClientUpdate.
// wantPeriodic requires a next-sync-committee to be present (periodic
// update fetch); its absence is reported as a Protocol error.
func (u lightClientUpdateJSON) toCanonical(wantPeriodic bool) (relaytypes.LightClientUpdate, error) {
	attested, err := u.AttestedHeader.toCanonical()
	if err != nil {
		return relaytypes.LightClientUpdate{}, err
	}
	finalized, err := u.FinalizedHeader.toCanonical()
	if err != nil {
		return relaytypes.LightClientUpdate{}, err
	}
	finalityBranch, err := branchToCanonical("finality_branch", u.FinalityBranch)
	if err != nil {
		return relaytypes.LightClientUpdate{}, err
	}
	signatureSlot, err := parseUint("signature_slot", u.SignatureSlot)
	if err != nil {
		return relaytypes.LightClientUpdate{}, err
	}
	bits, err := hexToBytes(u.SyncAggregate.SyncCommitteeBits)
	if err != nil {
		return relaytypes.LightClientUpdate{}, relayerrors.Protocol("parse sync_committee_bits", err)
	}
	sigBytes, err := hexToBytes(u.SyncAggregate.SyncCommitteeSignature)
	if err != nil || len(sigBytes) != 96 {
		return relaytypes.LightClientUpdate{}, relayerrors.Protocol("parse sync_committee_signature",
			fmt.Errorf("expected 96 bytes"))
	}
	var sig [96]byte
	copy(sig[:], sigBytes)

	var nextCommittee *relaytypes.SyncCommittee
	var nextBranch relaytypes.MerkleBranch
	if u.NextSyncCommittee != nil {
		nc, err := u.NextSyncCommittee.toCanonical()
		if err != nil {
			return relaytypes.LightClientUpdate{}, err
		}
		nextCommittee = &nc
		nextBranch, err = branchToCanonical("next_sync_committee_branch", u.NextSyncCommitteeBranch)
		if err != nil {
			return relaytypes.LightClientUpdate{}, err
		}
	} else if wantPeriodic {
		return relaytypes.LightClientUpdate{}, relayerrors.Protocol("fetch_period_update",
			fmt.Errorf("missing next_sync_committee"))
	}

	return relaytypes.LightClientUpdate{
		AttestedHeader:          attested,
		FinalizedHeader:         finalized,
		FinalityBranch:          finalityBranch,
		NextSyncCommittee:       nextCommittee,
		NextSyncCommitteeBranch: nextBranch,
		SignatureSlot:           signatureSlot,
		SyncCommitteeBits:       bits,
		SyncCommitteeSignature:  sig,
	}, nil
}
