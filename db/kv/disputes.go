package kv

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/graphops/indexer-agent/indexer"
	"github.com/graphops/indexer-agent/shared/errs"
)

// StorePoiDisputes saves the disputes in one transaction and returns the
// stored records sorted by allocation id. Every dispute is validated
// before anything is written, so a single bad record rejects the whole
// batch. Re-storing known disputes is an upsert and therefore idempotent.
func (s *Store) StorePoiDisputes(ctx context.Context, disputes []*indexer.POIDispute) ([]*indexer.POIDispute, error) {
	for _, dispute := range disputes {
		if err := dispute.Validate(); err != nil {
			return nil, errs.Wrap(err, errs.IE026)
		}
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(disputesBucket)
		for _, dispute := range disputes {
			enc, err := json.Marshal(dispute)
			if err != nil {
				return err
			}
			if err := bkt.Put(dispute.Key(), enc); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, errs.Wrap(err, errs.IE026)
	}

	stored := make([]*indexer.POIDispute, len(disputes))
	copy(stored, disputes)
	sort.Slice(stored, func(i, j int) bool {
		return strings.ToLower(stored[i].AllocationID) < strings.ToLower(stored[j].AllocationID)
	})
	return stored, nil
}

// PoiDisputes returns the disputes of a network whose allocations closed
// at or after minClosedEpoch, in allocation id order.
func (s *Store) PoiDisputes(ctx context.Context, network string, minClosedEpoch int64) ([]*indexer.POIDispute, error) {
	var disputes []*indexer.POIDispute
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(disputesBucket).ForEach(func(k, v []byte) error {
			dispute := &indexer.POIDispute{}
			if err := json.Unmarshal(v, dispute); err != nil {
				return errors.Wrapf(err, "dispute %s", k)
			}
			if dispute.ProtocolNetwork != network || dispute.ClosedEpoch < minClosedEpoch {
				return nil
			}
			disputes = append(disputes, dispute)
			return nil
		})
	})
	if err != nil {
		return nil, errs.Wrap(err, errs.IE030)
	}
	return disputes, nil
}

// DeletePoiDisputes removes the disputes of a network with the given
// allocation ids and returns how many rows were deleted.
func (s *Store) DeletePoiDisputes(ctx context.Context, network string, allocationIDs []string) (int, error) {
	deleted := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(disputesBucket)
		for _, id := range allocationIDs {
			key := []byte(strings.ToLower(id))
			v := bkt.Get(key)
			if v == nil {
				continue
			}
			dispute := &indexer.POIDispute{}
			if err := json.Unmarshal(v, dispute); err != nil {
				return errors.Wrapf(err, "dispute %s", key)
			}
			if dispute.ProtocolNetwork != network {
				continue
			}
			if err := bkt.Delete(key); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	if err != nil {
		return 0, errs.Wrap(err, errs.IE031)
	}
	return deleted, nil
}
