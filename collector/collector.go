// Package collector is the boundary to the query-fee subsystem. The
// reconciler notifies it whenever allocations open or close; the collector
// keeps allocation summaries so receipts and vouchers arriving later can
// be matched to the allocation lifecycle.
package collector

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/graphops/indexer-agent/db/kv"
	"github.com/graphops/indexer-agent/indexer"
)

var log = logrus.WithField("prefix", "collector")

// Collector records allocation lifecycle events for receipt collection.
type Collector struct {
	store *kv.Store
}

// New returns a collector over the agent store.
func New(store *kv.Store) *Collector {
	return &Collector{store: store}
}

// RememberAllocations upserts a summary row for every given allocation, so
// incoming query-fee receipts can always be attributed. Failures are
// logged per allocation and do not abort the batch.
func (c *Collector) RememberAllocations(ctx context.Context, allocations []*indexer.Allocation) {
	for _, allocation := range allocations {
		summary := &indexer.AllocationSummary{
			AllocationID:    allocation.ID.Hex(),
			DeploymentID:    allocation.SubgraphDeployment,
			Amount:          allocation.AllocatedTokens,
			CreatedAtEpoch:  allocation.CreatedAtEpoch,
			ClosedAtEpoch:   allocation.ClosedAtEpoch,
			CollectedFees:   allocation.QueryFeesCollected,
			ProtocolNetwork: allocation.ProtocolNetwork,
		}
		if err := c.store.StoreAllocationSummary(ctx, summary); err != nil {
			log.WithError(err).WithFields(logrus.Fields{
				"protocolNetwork": allocation.ProtocolNetwork,
				"allocation":      allocation.ID.Hex(),
			}).Warn("Could not store allocation summary")
		}
	}
}

// AllocationClosed marks the summary of a closed allocation, releasing its
// receipts for voucher exchange.
func (c *Collector) AllocationClosed(ctx context.Context, network string, allocationID string, closedAtEpoch int64) {
	if _, err := c.store.CloseAllocationSummary(ctx, network, allocationID, closedAtEpoch); err != nil {
		log.WithError(err).WithFields(logrus.Fields{
			"protocolNetwork": network,
			"allocation":      allocationID,
		}).Warn("Could not mark allocation summary closed")
		return
	}
	log.WithFields(logrus.Fields{
		"protocolNetwork": network,
		"allocation":      allocationID,
		"epoch":           closedAtEpoch,
	}).Info("Released allocation receipts for collection")
}
