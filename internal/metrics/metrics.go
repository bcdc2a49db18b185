// Package metrics exposes the relay's Prometheus-compatible counters and
// gauges, built on go-ethereum's own metrics package (already a transitive
// dependency via executionclient/targetcontract's use of go-ethereum's RPC
// stack) and its bundled Prometheus exporter.
//
// Metric names mirror the reference design's one-for-one: last observed
// slot/block on each side of the bridge, and submission failure counts.
package metrics

import (
	"net/http"

	gethmetrics "github.com/ethereum/go-ethereum/metrics"
	"github.com/ethereum/go-ethereum/metrics/prometheus"
)

var registry = gethmetrics.NewRegistry()

var (
	LastBeaconSlot                      = gethmetrics.NewRegisteredGauge("last_eth_slot", registry)
	LastFinalizedBeaconSlot             = gethmetrics.NewRegisteredGauge("last_finalized_eth_slot", registry)
	LastFinalizedBeaconSlotOnTarget     = gethmetrics.NewRegisteredGauge("last_finalized_eth_slot_on_target", registry)
	LastExecutionBlockOnEth             = gethmetrics.NewRegisteredGauge("chain_execution_block_height_on_eth", registry)
	LastFinalizedExecutionBlockOnEth    = gethmetrics.NewRegisteredGauge("chain_finalized_execution_block_height_on_eth", registry)
	LastExecutionBlockOnTarget          = gethmetrics.NewRegisteredGauge("chain_execution_block_height_on_target", registry)
	LastFinalizedExecutionBlockOnTarget = gethmetrics.NewRegisteredGauge("chain_finalized_execution_block_height_on_target", registry)

	HeaderSubmissionFailures = gethmetrics.NewRegisteredCounter("fails_on_headers_submission", registry)
	UpdateSubmissionFailures = gethmetrics.NewRegisteredCounter("fails_on_updates_submission", registry)
)

// Handler returns the http.Handler that serves the registry in the
// Prometheus text exposition format, intended to be mounted at /metrics.
func Handler() http.Handler {
	return prometheus.Handler(registry)
}
