package kv

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/graphops/indexer-agent/indexer"
	"github.com/graphops/indexer-agent/shared/errs"
)

// StoreAllocationSummary saves or replaces the lifecycle record of an
// allocation.
func (s *Store) StoreAllocationSummary(ctx context.Context, summary *indexer.AllocationSummary) error {
	if err := summary.Validate(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		bkt, err := networkBucket(tx, summariesBucket, summary.ProtocolNetwork, true)
		if err != nil {
			return err
		}
		enc, err := json.Marshal(summary)
		if err != nil {
			return err
		}
		return bkt.Put(summary.Key(), enc)
	})
}

// CloseAllocationSummary marks the allocation's summary as closed at the
// given epoch, which hands its receipts over to fee collection. The
// summary must have been stored while the allocation was open.
func (s *Store) CloseAllocationSummary(ctx context.Context, network, allocationID string, closedAtEpoch int64) (*indexer.AllocationSummary, error) {
	var summary *indexer.AllocationSummary
	err := s.db.Update(func(tx *bolt.Tx) error {
		bkt, err := networkBucket(tx, summariesBucket, network, false)
		if err != nil {
			return err
		}
		key := []byte(strings.ToLower(allocationID))
		var v []byte
		if bkt != nil {
			v = bkt.Get(key)
		}
		if v == nil {
			return errors.Errorf("no summary for allocation %s", allocationID)
		}
		summary = &indexer.AllocationSummary{}
		if err := json.Unmarshal(v, summary); err != nil {
			return err
		}
		summary.ClosedAt = time.Now().Unix()
		summary.ClosedAtEpoch = closedAtEpoch
		enc, err := json.Marshal(summary)
		if err != nil {
			return err
		}
		return bkt.Put(key, enc)
	})
	if err != nil {
		return nil, errs.Wrap(err, errs.IE045)
	}
	return summary, nil
}

// AllocationSummaries returns the summaries of a network in allocation id
// order.
func (s *Store) AllocationSummaries(ctx context.Context, network string) ([]*indexer.AllocationSummary, error) {
	var summaries []*indexer.AllocationSummary
	err := s.db.View(func(tx *bolt.Tx) error {
		bkt, err := networkBucket(tx, summariesBucket, network, false)
		if err != nil || bkt == nil {
			return err
		}
		return bkt.ForEach(func(k, v []byte) error {
			summary := &indexer.AllocationSummary{}
			if err := json.Unmarshal(v, summary); err != nil {
				return errors.Wrapf(err, "summary %s", k)
			}
			summaries = append(summaries, summary)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return summaries, nil
}
