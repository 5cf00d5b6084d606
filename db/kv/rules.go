package kv

import (
	"context"
	"encoding/json"
	"math/big"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/graphops/indexer-agent/indexer"
	"github.com/graphops/indexer-agent/shared/errs"
)

// ruleKey builds the storage key for a rule. The key carries the
// identifier type so identically spelled identifiers of different types
// never address the same row, and deployment ids are canonicalized so
// the two spellings (ipfs hash and 0x hex) do.
func ruleKey(identifierType indexer.IdentifierType, identifier string) []byte {
	if identifierType == indexer.IdentifierTypeDeployment {
		if id, err := indexer.NewSubgraphDeploymentID(identifier); err == nil {
			identifier = id.Hex()
		}
	}
	return []byte(string(identifierType) + "/" + identifier)
}

// StoreIndexingRule saves or replaces a single rule.
func (s *Store) StoreIndexingRule(ctx context.Context, rule *indexer.IndexingRule) error {
	return s.StoreIndexingRules(ctx, []*indexer.IndexingRule{rule})
}

// StoreIndexingRules saves rules in one transaction. A rule replaces any
// previous row with the same network and identifier; there is at most one
// rule per (network, identifier) pair.
func (s *Store) StoreIndexingRules(ctx context.Context, rules []*indexer.IndexingRule) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		for _, rule := range rules {
			if rule.ProtocolNetwork == "" {
				return errors.Errorf("rule %q has no protocol network", rule.Identifier)
			}
			bkt, err := networkBucket(tx, rulesBucket, rule.ProtocolNetwork, true)
			if err != nil {
				return err
			}
			enc, err := json.Marshal(rule)
			if err != nil {
				return err
			}
			if err := bkt.Put(ruleKey(rule.IdentifierType, rule.Identifier), enc); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errs.Wrap(err, errs.IE027)
	}
	return nil
}

// IndexingRules returns the stored rules of a network in key order,
// without global inheritance applied.
func (s *Store) IndexingRules(ctx context.Context, network string) ([]*indexer.IndexingRule, error) {
	var rules []*indexer.IndexingRule
	err := s.db.View(func(tx *bolt.Tx) error {
		bkt, err := networkBucket(tx, rulesBucket, network, false)
		if err != nil || bkt == nil {
			return err
		}
		return bkt.ForEach(func(k, v []byte) error {
			rule := &indexer.IndexingRule{}
			if err := json.Unmarshal(v, rule); err != nil {
				return errors.Wrapf(err, "rule %s", k)
			}
			rules = append(rules, rule)
			return nil
		})
	})
	if err != nil {
		return nil, errs.Wrap(err, errs.IE028)
	}
	return rules, nil
}

// MergedIndexingRules returns the rules of a network with unset fields
// inherited from the network's global rule, which is itself included
// unchanged. This is the form the allocation evaluator consumes.
func (s *Store) MergedIndexingRules(ctx context.Context, network string) ([]*indexer.IndexingRule, error) {
	rules, err := s.IndexingRules(ctx, network)
	if err != nil {
		return nil, err
	}
	var global *indexer.IndexingRule
	for _, r := range rules {
		if r.IsGlobal() {
			global = r
			break
		}
	}
	if global == nil {
		return rules, nil
	}
	merged := make([]*indexer.IndexingRule, 0, len(rules))
	for _, r := range rules {
		if r.IsGlobal() {
			merged = append(merged, r)
			continue
		}
		merged = append(merged, r.MergedWith(global))
	}
	return merged, nil
}

// IndexingRuleByIdentifier returns the rule stored for the identifier, or
// nil when none exists. The identifier may use either deployment spelling.
func (s *Store) IndexingRuleByIdentifier(ctx context.Context, network, identifier string, identifierType indexer.IdentifierType) (*indexer.IndexingRule, error) {
	var rule *indexer.IndexingRule
	err := s.db.View(func(tx *bolt.Tx) error {
		bkt, err := networkBucket(tx, rulesBucket, network, false)
		if err != nil || bkt == nil {
			return err
		}
		v := bkt.Get(ruleKey(identifierType, identifier))
		if v == nil {
			return nil
		}
		rule = &indexer.IndexingRule{}
		return json.Unmarshal(v, rule)
	})
	if err != nil {
		return nil, errs.Wrap(err, errs.IE028)
	}
	return rule, nil
}

// DeleteIndexingRule removes the rule stored for the identifier. Deleting
// an absent rule is a no-op.
func (s *Store) DeleteIndexingRule(ctx context.Context, network, identifier string, identifierType indexer.IdentifierType) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bkt, err := networkBucket(tx, rulesBucket, network, false)
		if err != nil || bkt == nil {
			return err
		}
		return bkt.Delete(ruleKey(identifierType, identifier))
	})
}

// EnsureGlobalRule writes the default global rule for a network unless one
// already exists. The agent calls this at startup so evaluation always has
// a fallback rule to merge against.
func (s *Store) EnsureGlobalRule(ctx context.Context, network string, defaultAllocationAmount *big.Int) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		bkt, err := networkBucket(tx, rulesBucket, network, true)
		if err != nil {
			return err
		}
		key := ruleKey(indexer.IdentifierTypeGroup, indexer.GlobalIdentifier)
		if bkt.Get(key) != nil {
			return nil
		}
		enc, err := json.Marshal(indexer.DefaultGlobalRule(network, defaultAllocationAmount))
		if err != nil {
			return err
		}
		log.WithField("protocolNetwork", network).Info("Creating default global indexing rule")
		return bkt.Put(key, enc)
	})
	if err != nil {
		return errs.Wrap(err, errs.IE017)
	}
	return nil
}
