package relaytypes

// Spec carries the beacon chain's network-specific timing constants, as
// returned by the beacon node's /eth/v1/config/spec endpoint. Defaults below
// are mainnet's.
type Spec struct {
	SlotsPerEpoch                uint64
	EpochsPerSyncCommitteePeriod uint64
}

// DefaultSpec returns the mainnet Altair sync-committee period parameters:
// 32 slots/epoch * 256 epochs/period = 8192 slots/period.
func DefaultSpec() Spec {
	return Spec{
		SlotsPerEpoch:                32,
		EpochsPerSyncCommitteePeriod: 256,
	}
}

// SlotsPerPeriod is the granularity at which the sync committee rotates.
func (s Spec) SlotsPerPeriod() uint64 {
	return s.SlotsPerEpoch * s.EpochsPerSyncCommitteePeriod
}

// Period returns slot / SlotsPerPeriod, the sync-committee period a slot
// falls in.
func (s Spec) Period(slot uint64) uint64 {
	return slot / s.SlotsPerPeriod()
}

// EpochsToSlots converts an epoch count into slots using SlotsPerEpoch.
func (s Spec) EpochsToSlots(epochs uint64) uint64 {
	return epochs * s.SlotsPerEpoch
}
