package kv

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/graphops/indexer-agent/indexer"
)

// A migration reshapes stored data once. Each runs in its own transaction
// and records completion in the migrations bucket, so re-running is a
// no-op. Order matters and existing entries are never reordered.
type migration struct {
	name string
	run  func(tx *bolt.Tx, cfg *Config) error
}

var migrations = []migration{
	{name: "rules_network_scope", run: migrateRulesNetworkScope},
	{name: "dispute_status_taxonomy", run: migrateDisputeStatusTaxonomy},
}

func (s *Store) runMigrations(cfg *Config) error {
	for _, m := range migrations {
		err := s.db.Update(func(tx *bolt.Tx) error {
			mb := tx.Bucket(migrationsBucket)
			if b := mb.Get([]byte(m.name)); bytes.Equal(b, migrationCompleted) {
				return nil
			}
			if err := m.run(tx, cfg); err != nil {
				return err
			}
			log.WithField("migration", m.name).Info("Applied database migration")
			return mb.Put([]byte(m.name), migrationCompleted)
		})
		if err != nil {
			return errors.Wrapf(err, "migration %s", m.name)
		}
	}
	return nil
}

// migrateRulesNetworkScope files rule rows written by single-network-era
// agents (plain keys directly under the rules bucket) into the nested
// bucket of the configured default network.
func migrateRulesNetworkScope(tx *bolt.Tx, cfg *Config) error {
	top := tx.Bucket(rulesBucket)

	var keys, values [][]byte
	err := top.ForEach(func(k, v []byte) error {
		if v == nil {
			// Nested network bucket, already in the new layout.
			return nil
		}
		keys = append(keys, append([]byte{}, k...))
		values = append(values, append([]byte{}, v...))
		return nil
	})
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	if cfg.DefaultNetwork == "" {
		return errors.New("store holds unscoped rules but no default network is configured")
	}

	nested, err := top.CreateBucketIfNotExists([]byte(cfg.DefaultNetwork))
	if err != nil {
		return err
	}
	for i, k := range keys {
		var rule indexer.IndexingRule
		if err := json.Unmarshal(values[i], &rule); err != nil {
			return errors.Wrapf(err, "rule %s", k)
		}
		rule.ProtocolNetwork = cfg.DefaultNetwork
		enc, err := json.Marshal(&rule)
		if err != nil {
			return err
		}
		if err := nested.Put(ruleKey(rule.IdentifierType, rule.Identifier), enc); err != nil {
			return err
		}
		if err := top.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// migrateDisputeStatusTaxonomy rewrites the legacy "disputable" dispute
// status to "potential".
func migrateDisputeStatusTaxonomy(tx *bolt.Tx, _ *Config) error {
	bkt := tx.Bucket(disputesBucket)

	var keys, values [][]byte
	err := bkt.ForEach(func(k, v []byte) error {
		if v == nil {
			return nil
		}
		var dispute indexer.POIDispute
		if err := json.Unmarshal(v, &dispute); err != nil {
			return errors.Wrapf(err, "dispute %s", k)
		}
		if dispute.Status != "disputable" {
			return nil
		}
		dispute.Status = indexer.DisputeStatusPotential
		enc, err := json.Marshal(&dispute)
		if err != nil {
			return err
		}
		keys = append(keys, append([]byte{}, k...))
		values = append(values, enc)
		return nil
	})
	if err != nil {
		return err
	}
	for i, k := range keys {
		if err := bkt.Put(k, values[i]); err != nil {
			return err
		}
	}
	return nil
}
