// Package beaconclient talks to a beacon node's Altair light-client API:
// periodic/finality light-client update fetches, finalized-slot and
// block-number lookups, and a sync health probe.
package beaconclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	eth2client "github.com/attestantio/go-eth2-client"
	"github.com/attestantio/go-eth2-client/api"
	ethttp "github.com/attestantio/go-eth2-client/http"
	"github.com/rs/zerolog"

	"github.com/eth2near/relay/internal/relayerrors"
	"github.com/eth2near/relay/internal/relaytypes"
)

// Client talks to a single beacon node's HTTP API.
type Client struct {
	ctx    context.Context
	cancel context.CancelFunc

	typed eth2client.Service
	http  *http.Client
	url   string
	spec  relaytypes.Spec
	log   zerolog.Logger
}

// New dials the beacon node at url. The typed go-eth2-client service backs
// the well-modeled endpoints (finality checkpoints, sync status); the two
// light-client endpoints (periodic/finality updates) are not modeled by
// every client library version, so this client speaks to them directly over
// plain HTTP, matching the example corpus's own fallback for the same gap.
func New(url string, spec relaytypes.Spec, log zerolog.Logger) (*Client, error) {
	ctx, cancel := context.WithCancel(context.Background())

	typed, err := ethttp.New(ctx,
		ethttp.WithAddress(url),
		ethttp.WithLogLevel(zerolog.WarnLevel),
	)
	if err != nil {
		cancel()
		return nil, relayerrors.Transport("dial beacon node", err)
	}

	return &Client{
		ctx:    ctx,
		cancel: cancel,
		typed:  typed,
		http:   &http.Client{Timeout: 30 * time.Second},
		url:    url,
		spec:   spec,
		log:    log.With().Str("component", "beaconclient").Logger(),
	}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() {
	c.cancel()
}

// Period is the pure slot -> sync-committee-period mapping.
func (c *Client) Period(slot uint64) uint64 {
	return c.spec.Period(slot)
}

// IsSyncing reports whether the beacon node still considers itself syncing;
// the relay refuses to submit while true.
func (c *Client) IsSyncing(ctx context.Context) (bool, error) {
	provider, ok := c.typed.(eth2client.NodeSyncingProvider)
	if !ok {
		return false, relayerrors.Protocol("is_syncing", fmt.Errorf("beacon client does not support syncing queries"))
	}
	resp, err := provider.NodeSyncing(ctx, &api.NodeSyncingOpts{})
	if err != nil {
		return false, relayerrors.Transport("is_syncing", err)
	}
	return resp.Data.IsSyncing, nil
}

// GetLastFinalizedSlot derives the beacon chain's last finalized slot as
// finalized_epoch * slots_per_epoch.
func (c *Client) GetLastFinalizedSlot(ctx context.Context) (uint64, error) {
	provider, ok := c.typed.(eth2client.FinalityProvider)
	if !ok {
		return 0, relayerrors.Protocol("get_last_finalized_slot", fmt.Errorf("beacon client does not support finality queries"))
	}
	resp, err := provider.Finality(ctx, &api.FinalityOpts{State: "head"})
	if err != nil {
		return 0, relayerrors.Transport("get_last_finalized_slot", err)
	}
	if resp.Data == nil || resp.Data.Finalized == nil {
		return 0, relayerrors.Protocol("get_last_finalized_slot", fmt.Errorf("missing finalized checkpoint"))
	}
	return uint64(resp.Data.Finalized.Epoch) * c.spec.SlotsPerEpoch, nil
}

// GetHeadSlot returns the beacon chain's current (unfinalized) head slot,
// used only to report how far finalization trails the chain tip.
func (c *Client) GetHeadSlot(ctx context.Context) (uint64, error) {
	provider, ok := c.typed.(eth2client.BeaconBlockHeadersProvider)
	if !ok {
		return 0, relayerrors.Protocol("get_head_slot", fmt.Errorf("beacon client does not support header queries"))
	}
	resp, err := provider.BeaconBlockHeader(ctx, &api.BeaconBlockHeaderOpts{Block: "head"})
	if err != nil {
		return 0, relayerrors.Transport("get_head_slot", err)
	}
	if resp.Data == nil || resp.Data.Header == nil || resp.Data.Header.Message == nil {
		return 0, relayerrors.Protocol("get_head_slot", fmt.Errorf("missing head header"))
	}
	return uint64(resp.Data.Header.Message.Slot), nil
}

// GetBlockNumberForSlot returns the execution block number pinned to slot
// by that beacon block's execution payload.
func (c *Client) GetBlockNumberForSlot(ctx context.Context, slot uint64) (uint64, error) {
	var body struct {
		Data struct {
			Message struct {
				Body struct {
					ExecutionPayload struct {
						BlockNumber string `json:"block_number"`
					} `json:"execution_payload"`
				} `json:"body"`
			} `json:"message"`
		} `json:"data"`
	}
	if err := c.getJSON(ctx, fmt.Sprintf("/eth/v2/beacon/blocks/%d", slot), &body); err != nil {
		return 0, err
	}
	if body.Data.Message.Body.ExecutionPayload.BlockNumber == "" {
		return 0, relayerrors.Protocol("get_block_number_for_slot", fmt.Errorf("slot %d has no execution payload", slot))
	}
	n, err := strconv.ParseUint(body.Data.Message.Body.ExecutionPayload.BlockNumber, 10, 64)
	if err != nil {
		return 0, relayerrors.Protocol("get_block_number_for_slot", err)
	}
	return n, nil
}

// FetchFinalityUpdate fetches the current finality update (no
// next-sync-committee field), used to advance finalization within the
// current sync-committee period.
func (c *Client) FetchFinalityUpdate(ctx context.Context) (relaytypes.LightClientUpdate, error) {
	var wire lightClientUpdateJSON
	if err := c.getJSON(ctx, "/eth/v1/beacon/light_client/finality_update", &wrapData{&wire}); err != nil {
		return relaytypes.LightClientUpdate{}, err
	}
	return wire.toCanonical(false)
}

// FetchPeriodUpdate fetches the periodic update for the given sync-committee
// period, which carries a next-sync-committee installation. Returns a
// Protocol error if the beacon node does not serve that period.
func (c *Client) FetchPeriodUpdate(ctx context.Context, period uint64) (relaytypes.LightClientUpdate, error) {
	var resp struct {
		Data []lightClientUpdateJSON `json:"data"`
	}
	path := fmt.Sprintf("/eth/v1/beacon/light_client/updates?start_period=%d&count=1", period)
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return relaytypes.LightClientUpdate{}, err
	}
	if len(resp.Data) == 0 {
		return relaytypes.LightClientUpdate{}, relayerrors.Protocol("fetch_period_update",
			fmt.Errorf("beacon node does not serve period %d", period))
	}
	return resp.Data[0].toCanonical(true)
}

// GetBootstrap fetches the bootstrap payload for the beacon block with the
// given (0x-hex) root. Used once by operator tooling ahead of
// init_contract; not part of the relay's steady-state loop, but exposed
// here since it shares this client's HTTP transport.
func (c *Client) GetBootstrap(ctx context.Context, blockRoot string) (relaytypes.Bootstrap, error) {
	var resp struct {
		Data bootstrapJSON `json:"data"`
	}
	path := fmt.Sprintf("/eth/v1/beacon/light_client/bootstrap/%s", blockRoot)
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return relaytypes.Bootstrap{}, err
	}
	return resp.Data.toCanonical()
}

type wrapData struct {
	Data *lightClientUpdateJSON `json:"data"`
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+path, nil)
	if err != nil {
		return relayerrors.Transport("build request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return relayerrors.Transport(path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return relayerrors.Transport(path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return relayerrors.Transport(path, fmt.Errorf("status %d: %s", resp.StatusCode, body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return relayerrors.Protocol(path, err)
	}
	return nil
}
