package kv

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/graphops/indexer-agent/indexer"
	"github.com/graphops/indexer-agent/shared/errs"
)

// actionKey encodes an action id so that bbolt's byte order matches
// queueing order.
func actionKey(id uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, id)
	return key
}

// QueueAction appends a single action to the queue.
func (s *Store) QueueAction(ctx context.Context, action *indexer.Action) (*indexer.Action, error) {
	queued, err := s.QueueActions(ctx, []*indexer.Action{action})
	if err != nil {
		return nil, err
	}
	return queued[0], nil
}

// QueueActions appends actions to the queue in one transaction, assigning
// each a monotonically increasing id.
func (s *Store) QueueActions(ctx context.Context, actions []*indexer.Action) ([]*indexer.Action, error) {
	err := s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(actionsBucket)
		for _, action := range actions {
			if action.ProtocolNetwork == "" {
				return errors.New("action has no protocol network")
			}
			if action.Status == "" {
				action.Status = indexer.ActionStatusQueued
			}
			id, err := bkt.NextSequence()
			if err != nil {
				return err
			}
			action.ID = id
			enc, err := json.Marshal(action)
			if err != nil {
				return err
			}
			if err := bkt.Put(actionKey(id), enc); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, errs.Wrap(err, errs.IE032)
	}
	return actions, nil
}

// Actions returns queued actions in queueing order. An empty network
// matches every network; with no statuses every status matches.
func (s *Store) Actions(ctx context.Context, network string, statuses ...indexer.ActionStatus) ([]*indexer.Action, error) {
	wanted := make(map[indexer.ActionStatus]bool, len(statuses))
	for _, status := range statuses {
		wanted[status] = true
	}
	var actions []*indexer.Action
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(actionsBucket).ForEach(func(k, v []byte) error {
			action := &indexer.Action{}
			if err := json.Unmarshal(v, action); err != nil {
				return errors.Wrapf(err, "action %x", k)
			}
			if network != "" && action.ProtocolNetwork != network {
				return nil
			}
			if len(wanted) > 0 && !wanted[action.Status] {
				return nil
			}
			actions = append(actions, action)
			return nil
		})
	})
	if err != nil {
		return nil, errs.Wrap(err, errs.IE033)
	}
	return actions, nil
}

// Action returns the action with the given id, or nil when none exists.
func (s *Store) Action(ctx context.Context, id uint64) (*indexer.Action, error) {
	var action *indexer.Action
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(actionsBucket).Get(actionKey(id))
		if v == nil {
			return nil
		}
		action = &indexer.Action{}
		return json.Unmarshal(v, action)
	})
	if err != nil {
		return nil, errs.Wrap(err, errs.IE033)
	}
	return action, nil
}

// UpdateAction replaces the stored row of an already queued action and
// bumps its update time. The worker uses this to record transactions and
// failure reasons.
func (s *Store) UpdateAction(ctx context.Context, action *indexer.Action) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(actionsBucket)
		if bkt.Get(actionKey(action.ID)) == nil {
			return errors.Errorf("unknown action %d", action.ID)
		}
		action.UpdatedAt = time.Now().Unix()
		enc, err := json.Marshal(action)
		if err != nil {
			return err
		}
		return bkt.Put(actionKey(action.ID), enc)
	})
	if err != nil {
		return errs.Wrap(err, errs.IE034)
	}
	return nil
}

// UpdateActionStatus moves the given actions to a new status in one
// transaction and returns the updated rows.
func (s *Store) UpdateActionStatus(ctx context.Context, ids []uint64, status indexer.ActionStatus) ([]*indexer.Action, error) {
	updated := make([]*indexer.Action, 0, len(ids))
	err := s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(actionsBucket)
		for _, id := range ids {
			v := bkt.Get(actionKey(id))
			if v == nil {
				return errors.Errorf("unknown action %d", id)
			}
			action := &indexer.Action{}
			if err := json.Unmarshal(v, action); err != nil {
				return errors.Wrapf(err, "action %d", id)
			}
			action.Status = status
			action.UpdatedAt = time.Now().Unix()
			enc, err := json.Marshal(action)
			if err != nil {
				return err
			}
			if err := bkt.Put(actionKey(id), enc); err != nil {
				return err
			}
			updated = append(updated, action)
		}
		return nil
	})
	if err != nil {
		return nil, errs.Wrap(err, errs.IE034)
	}
	return updated, nil
}

// DeleteActions removes actions from the queue and returns how many rows
// were deleted. Unknown ids are skipped.
func (s *Store) DeleteActions(ctx context.Context, ids []uint64) (int, error) {
	deleted := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(actionsBucket)
		for _, id := range ids {
			if bkt.Get(actionKey(id)) == nil {
				continue
			}
			if err := bkt.Delete(actionKey(id)); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	if err != nil {
		return 0, errs.Wrap(err, errs.IE034)
	}
	return deleted, nil
}
