// Package executionclient fetches execution-layer block headers over
// JSON-RPC, batching range requests and chunking them to respect the
// remote node's batch-size limits, returned in ascending block-number
// order.
package executionclient

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/eth2near/relay/internal/relayerrors"
)

// DefaultMaxBatchSize bounds how many block numbers are requested in a
// single JSON-RPC batch call.
const DefaultMaxBatchSize = 32

// Client fetches execution-layer headers from a single execution node.
type Client struct {
	rpcClient *rpc.Client
	eth       *ethclient.Client

	MaxBatchSize int
}

// Dial connects to the execution node's JSON-RPC endpoint.
func Dial(ctx context.Context, url string) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, relayerrors.Transport("dial execution node", err)
	}
	return &Client{
		rpcClient:    rpcClient,
		eth:          ethclient.NewClient(rpcClient),
		MaxBatchSize: DefaultMaxBatchSize,
	}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() {
	c.rpcClient.Close()
}

// GetLatestBlockNumber returns the execution chain's current head block
// number.
func (c *Client) GetLatestBlockNumber(ctx context.Context) (uint64, error) {
	n, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return 0, relayerrors.Transport("eth_blockNumber", err)
	}
	return n, nil
}

// FetchBlockHeader fetches a single header by block number, or nil if the
// node does not have it.
func (c *Client) FetchBlockHeader(ctx context.Context, number uint64) (*types.Header, error) {
	headers, err := c.FetchBlockRange(ctx, number, number)
	if err != nil {
		return nil, err
	}
	if len(headers) == 0 || headers[0] == nil {
		return nil, nil
	}
	return headers[0], nil
}

// FetchBlockRange fetches headers for [start, end] inclusive, returned in
// ascending block-number order. Missing blocks decode to a nil entry at
// their position; callers detect gaps by inspecting the returned slice.
func (c *Client) FetchBlockRange(ctx context.Context, start, end uint64) ([]*types.Header, error) {
	if start > end {
		return nil, relayerrors.Config("fetch_block_range", fmt.Errorf("start %d > end %d", start, end))
	}

	total := int(end-start) + 1
	headers := make([]*types.Header, total)

	batchSize := c.MaxBatchSize
	if batchSize <= 0 {
		batchSize = DefaultMaxBatchSize
	}

	for offset := 0; offset < total; offset += batchSize {
		chunkLen := batchSize
		if offset+chunkLen > total {
			chunkLen = total - offset
		}

		elems := make([]rpc.BatchElem, chunkLen)
		results := make([]*types.Header, chunkLen)
		for i := 0; i < chunkLen; i++ {
			blockNumber := start + uint64(offset+i)
			results[i] = new(types.Header)
			elems[i] = rpc.BatchElem{
				Method: "eth_getBlockByNumber",
				Args:   []interface{}{toBlockNumArg(blockNumber), false},
				Result: &results[i],
			}
		}

		if err := c.rpcClient.BatchCallContext(ctx, elems); err != nil {
			return nil, relayerrors.Transport("eth_getBlockByNumber batch", err)
		}
		for i, elem := range elems {
			if elem.Error != nil {
				return nil, relayerrors.Transport("eth_getBlockByNumber", elem.Error)
			}
			// results[i] stays nil when the node replied null (missing block).
			headers[offset+i] = results[i]
		}
	}

	return headers, nil
}

func toBlockNumArg(number uint64) string {
	return fmt.Sprintf("0x%x", number)
}
