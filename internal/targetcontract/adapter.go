// Package targetcontract is the view/mutating call surface against the
// NEAR-style light-client contract: signed submissions and the
// adapter-owned nonce.
package targetcontract

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/eth2near/relay/internal/relayerrors"
	"github.com/eth2near/relay/internal/relaytypes"
	"github.com/eth2near/relay/internal/retrypolicy"
)

// DefaultHeaderBatchSize is the contract-side limit on execution headers
// per submitted transaction.
const DefaultHeaderBatchSize = 32

// DefaultMaxGas is the gas budget of one sub-batch; each header call within
// the sub-batch receives DefaultMaxGas / batch_len.
const DefaultMaxGas = 300_000_000_000_000

// Signer owns the account credentials used to authorize mutating calls.
// The target chain's account model is ed25519-based, unlike Ethereum's
// secp256k1 — go-ethereum's crypto package does not apply here, so this
// uses the standard library's ed25519 implementation directly.
type Signer struct {
	AccountID string
	key       ed25519.PrivateKey
}

// NewSigner builds a Signer from a raw ed25519 private key.
func NewSigner(accountID string, key ed25519.PrivateKey) Signer {
	return Signer{AccountID: accountID, key: key}
}

func (s Signer) sign(payload []byte) []byte {
	return ed25519.Sign(s.key, payload)
}

// Adapter talks to the target chain's JSON-RPC 2.0 endpoint. The same
// go-ethereum rpc.Client used for C3 serves here too: its transport is a
// generic JSON-RPC 2.0 speaker, not Ethereum-specific, so one dependency
// covers both remotes.
type Adapter struct {
	client  *rpc.Client
	signer  Signer
	account string // contract account id

	retry retrypolicy.Policy

	nonce uint64 // owned exclusively by this adapter; advanced after each successful submission
}

// Dial connects to the target chain's RPC endpoint.
func Dial(ctx context.Context, url string, contractAccount string, signer Signer) (*Adapter, error) {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, relayerrors.Transport("dial target contract", err)
	}
	return &Adapter{
		client:  client,
		signer:  signer,
		account: contractAccount,
		retry:   retrypolicy.Default(),
	}, nil
}

// Close releases the underlying connection.
func (a *Adapter) Close() {
	a.client.Close()
}

// --- View operations (read-only, unsigned) ---

func (a *Adapter) GetFinalizedBeaconBlockHash(ctx context.Context) ([32]byte, error) {
	var out hexRoot
	if err := a.view(ctx, "finalized_beacon_block_root", &out); err != nil {
		return [32]byte{}, err
	}
	return out.toRoot()
}

func (a *Adapter) GetFinalizedBeaconBlockSlot(ctx context.Context) (uint64, error) {
	var out uint64
	if err := a.view(ctx, "finalized_beacon_block_slot", &out); err != nil {
		return 0, err
	}
	return out, nil
}

func (a *Adapter) GetClientMode(ctx context.Context) (relaytypes.ClientMode, error) {
	var out string
	if err := a.view(ctx, "get_client_mode", &out); err != nil {
		return 0, err
	}
	switch out {
	case "AwaitingLightClientUpdate":
		return relaytypes.AwaitingLightClientUpdate, nil
	case "AwaitingHeaders":
		return relaytypes.AwaitingHeaders, nil
	default:
		return 0, relayerrors.Protocol("get_client_mode", fmt.Errorf("unrecognized mode %q", out))
	}
}

func (a *Adapter) GetLightClientState(ctx context.Context) (relaytypes.ContractState, error) {
	var out lightClientStateJSON
	if err := a.view(ctx, "get_light_client_state", &out); err != nil {
		return relaytypes.ContractState{}, err
	}
	return out.toCanonical()
}

func (a *Adapter) GetLastBlockNumber(ctx context.Context) (uint64, error) {
	var out uint64
	if err := a.view(ctx, "last_block_number", &out); err != nil {
		return 0, err
	}
	return out, nil
}

func (a *Adapter) GetUnfinalizedTailBlockNumber(ctx context.Context) (*uint64, error) {
	var out *uint64
	if err := a.view(ctx, "get_unfinalized_tail_block_number", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *Adapter) GetBlockHash(ctx context.Context, blockNumber uint64) (*[32]byte, error) {
	var out *hexRoot
	if err := a.view(ctx, "get_block_hash", &out, blockNumber); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, nil
	}
	root, err := out.toRoot()
	if err != nil {
		return nil, err
	}
	return &root, nil
}

// --- Mutating operations (signed, nonce-sequenced) ---

// SubmitLightClientUpdate submits a single light client update (periodic or
// finality). The contract must be in AwaitingLightClientUpdate mode;
// otherwise the call reverts and surfaces as ContractRejection.
func (a *Adapter) SubmitLightClientUpdate(ctx context.Context, update relaytypes.LightClientUpdate) error {
	payload := toWireUpdate(update)
	return a.call(ctx, "submit_beacon_chain_light_client_update", DefaultMaxGas, payload)
}

// SubmitExecutionHeaders submits headers in sub-batches of at most
// DefaultHeaderBatchSize. Headers must already be ordered strictly
// decreasing by block number (§4.1's reverse backfill order) — the adapter
// never reorders. An empty slice is a successful no-op. Each header is sent
// as its own signed broadcast_tx_commit with its own nonce; the headers of
// a sub-batch are not combined into a single transaction.
func (a *Adapter) SubmitExecutionHeaders(ctx context.Context, headers []*types.Header) error {
	if len(headers) == 0 {
		return nil
	}
	for i := 0; i < len(headers); {
		end := i + DefaultHeaderBatchSize
		if end > len(headers) {
			end = len(headers)
		}
		batch := headers[i:end]
		if err := a.submitHeaderBatch(ctx, batch); err != nil {
			return err
		}
		i = end
	}
	return nil
}

func (a *Adapter) submitHeaderBatch(ctx context.Context, batch []*types.Header) error {
	gasPerCall := DefaultMaxGas / uint64(len(batch))
	for _, h := range batch {
		if err := a.call(ctx, "submit_execution_header", gasPerCall, h); err != nil {
			return err
		}
	}
	return nil
}

// InitContract bootstraps the contract's genesis state. Used once per
// contract lifetime by operator tooling, not by the steady-state relay
// loop; exposed here because it shares the adapter's signing/transport.
func (a *Adapter) InitContract(ctx context.Context, init ContractInit) error {
	return a.call(ctx, "init_contract", DefaultMaxGas, init.toWire())
}

// --- transport plumbing ---

func (a *Adapter) view(ctx context.Context, method string, out interface{}, args ...interface{}) error {
	err := retrypolicy.Do(ctx, a.retry, isTransportErr, func() error {
		return a.client.CallContext(ctx, out, rpcMethod(a.account, method), args...)
	})
	if err != nil {
		return classifyErr(method, err)
	}
	return nil
}

// call performs a single signed mutating invocation, advancing the nonce
// only once the submission is confirmed accepted by the chain.
func (a *Adapter) call(ctx context.Context, method string, gas uint64, args interface{}) error {
	nonce := a.nonce
	tx := signedTx{
		AccountID: a.signer.AccountID,
		Contract:  a.account,
		Method:    method,
		Args:      args,
		Gas:       gas,
		Nonce:     nonce,
	}
	tx.Signature = a.signer.sign(tx.signingPayload())

	var result interface{}
	err := retrypolicy.Do(ctx, a.retry, isTransportErr, func() error {
		return a.client.CallContext(ctx, &result, "broadcast_tx_commit", tx)
	})
	if err != nil {
		return classifyErr(method, err)
	}
	a.nonce = nonce + 1
	return nil
}

func rpcMethod(account, method string) string {
	return "call_function/" + account + "/" + method
}

// isTransportErr is the retry-go predicate: only TransportError is worth
// retrying; ContractRejection and Protocol failures are not transient.
func isTransportErr(err error) bool {
	return relayerrors.Is(classifyErr("", err), relayerrors.KindTransport)
}

// classifyErr distinguishes a contract revert (not retryable, no
// resubmission of the same payload) from a genuine transport failure.
func classifyErr(op string, err error) error {
	if relayerrors.Is(err, relayerrors.KindTransport) || relayerrors.Is(err, relayerrors.KindProtocol) {
		return err
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return relayerrors.ContractRejection(op, fmt.Errorf("code %d: %v", rpcErr.ErrorCode(), err))
	}
	return relayerrors.Transport(op, err)
}
