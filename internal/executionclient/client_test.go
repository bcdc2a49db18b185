package executionclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

// rpcRequest/rpcResponse mirror the JSON-RPC 2.0 envelope well enough to
// fake eth_getBlockByNumber and eth_blockNumber without a real node.
type rpcRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params []interface{}   `json:"params"`
}

type rpcResponse struct {
	ID     json.RawMessage `json:"id"`
	Result interface{}     `json:"result,omitempty"`
}

func newFakeNode(t *testing.T, blocks map[string]map[string]interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Range fetches arrive as a batch array; eth_blockNumber arrives as a
		// single request object and is answered with a single object.
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		batch := len(body) > 0 && body[0] == '['
		var reqs []rpcRequest
		if batch {
			require.NoError(t, json.Unmarshal(body, &reqs))
		} else {
			var req rpcRequest
			require.NoError(t, json.Unmarshal(body, &req))
			reqs = []rpcRequest{req}
		}

		var out []rpcResponse
		for _, req := range reqs {
			switch req.Method {
			case "eth_getBlockByNumber":
				hexNum, _ := req.Params[0].(string)
				out = append(out, rpcResponse{ID: req.ID, Result: blocks[hexNum]})
			case "eth_blockNumber":
				out = append(out, rpcResponse{ID: req.ID, Result: "0x64"})
			}
		}
		w.Header().Set("Content-Type", "application/json")
		if batch {
			require.NoError(t, json.NewEncoder(w).Encode(out))
		} else {
			require.NoError(t, json.NewEncoder(w).Encode(out[0]))
		}
	}))
}

func sampleBlockJSON(number uint64) map[string]interface{} {
	return map[string]interface{}{
		"number":           toBlockNumArg(number),
		"hash":             "0x" + repeatHex("1", 64),
		"parentHash":       "0x" + repeatHex("0", 64),
		"sha3Uncles":       "0x" + repeatHex("0", 64),
		"logsBloom":        "0x" + repeatHex("0", 512),
		"transactionsRoot": "0x" + repeatHex("0", 64),
		"stateRoot":        "0x" + repeatHex("0", 64),
		"receiptsRoot":     "0x" + repeatHex("0", 64),
		"miner":            "0x" + repeatHex("0", 40),
		"difficulty":       "0x0",
		"gasLimit":         "0x1c9c380",
		"gasUsed":          "0x5208",
		"timestamp":        "0x64f0a000",
		"extraData":        "0x",
		"mixHash":          "0x" + repeatHex("0", 64),
		"nonce":            "0x0000000000000000",
	}
}

func repeatHex(s string, n int) string {
	out := make([]byte, n)
	for i := range out {
		out[i] = s[0]
	}
	return string(out)
}

func TestFetchBlockRangeAscendingOrder(t *testing.T) {
	blocks := map[string]map[string]interface{}{
		toBlockNumArg(10): sampleBlockJSON(10),
		toBlockNumArg(11): sampleBlockJSON(11),
		toBlockNumArg(12): sampleBlockJSON(12),
	}
	srv := newFakeNode(t, blocks)
	defer srv.Close()

	c, err := Dial(context.Background(), srv.URL)
	require.NoError(t, err)
	defer c.Close()

	headers, err := c.FetchBlockRange(context.Background(), 10, 12)
	require.NoError(t, err)
	require.Len(t, headers, 3)
	require.Equal(t, uint64(10), headers[0].Number.Uint64())
	require.Equal(t, uint64(11), headers[1].Number.Uint64())
	require.Equal(t, uint64(12), headers[2].Number.Uint64())
}

func TestFetchBlockRangeChunksAtMaxBatchSize(t *testing.T) {
	blocks := make(map[string]map[string]interface{})
	for i := uint64(0); i < 5; i++ {
		blocks[toBlockNumArg(i)] = sampleBlockJSON(i)
	}
	srv := newFakeNode(t, blocks)
	defer srv.Close()

	c, err := Dial(context.Background(), srv.URL)
	require.NoError(t, err)
	defer c.Close()
	c.MaxBatchSize = 2

	headers, err := c.FetchBlockRange(context.Background(), 0, 4)
	require.NoError(t, err)
	require.Len(t, headers, 5)
	for i, h := range headers {
		require.Equal(t, uint64(i), h.Number.Uint64())
	}
}

func TestFetchBlockRangeGapIsNil(t *testing.T) {
	blocks := map[string]map[string]interface{}{
		toBlockNumArg(1): sampleBlockJSON(1),
		// block 2 missing: node replies null
		toBlockNumArg(3): sampleBlockJSON(3),
	}
	srv := newFakeNode(t, blocks)
	defer srv.Close()

	c, err := Dial(context.Background(), srv.URL)
	require.NoError(t, err)
	defer c.Close()

	headers, err := c.FetchBlockRange(context.Background(), 1, 3)
	require.NoError(t, err)
	require.Len(t, headers, 3)
	require.NotNil(t, headers[0])
	require.Nil(t, headers[1])
	require.NotNil(t, headers[2])
}

func TestFetchBlockRangeRejectsInvertedRange(t *testing.T) {
	c := &Client{MaxBatchSize: DefaultMaxBatchSize}
	_, err := c.FetchBlockRange(context.Background(), 5, 1)
	require.Error(t, err)
}

func TestGetLatestBlockNumber(t *testing.T) {
	srv := newFakeNode(t, nil)
	defer srv.Close()

	c, err := Dial(context.Background(), srv.URL)
	require.NoError(t, err)
	defer c.Close()

	n, err := c.GetLatestBlockNumber(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(0x64), n)
}
