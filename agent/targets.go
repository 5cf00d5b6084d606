package agent

import (
	"github.com/graphops/indexer-agent/indexer"
)

// targetDeployments computes the set of deployments the graph node must
// index: every deployment some network decided to allocate to, the
// network subgraphs themselves, every deployment named by an offchain
// rule and the offchain subgraphs configured on the command line. The
// result is deduplicated by the 32 byte deployment id.
func targetDeployments(
	decisions map[string][]*indexer.AllocationDecision,
	rules map[string][]*indexer.IndexingRule,
	networkSubgraphs []indexer.SubgraphDeploymentID,
	offchainSubgraphs []indexer.SubgraphDeploymentID,
) []indexer.SubgraphDeploymentID {
	set := newDeploymentSet()

	for _, networkDecisions := range decisions {
		for _, decision := range networkDecisions {
			if decision.ToAllocate {
				set.add(decision.Deployment)
			}
		}
	}
	for _, id := range networkSubgraphs {
		set.add(id)
	}
	for _, id := range offchainRuleDeployments(rules) {
		set.add(id)
	}
	for _, id := range offchainSubgraphs {
		set.add(id)
	}
	return set.ids
}

// offchainRuleDeployments extracts the deployments named by rules with an
// offchain decision basis. Identifiers that do not parse as deployment
// ids are skipped; the evaluator never matches them either.
func offchainRuleDeployments(rules map[string][]*indexer.IndexingRule) []indexer.SubgraphDeploymentID {
	var ids []indexer.SubgraphDeploymentID
	for _, networkRules := range rules {
		for _, rule := range networkRules {
			if rule.DecisionBasis != indexer.BasisOffchain {
				continue
			}
			if id, ok := rule.Deployment(); ok {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// deploymentSet is an insertion ordered set of deployment ids.
type deploymentSet struct {
	seen map[indexer.SubgraphDeploymentID]bool
	ids  []indexer.SubgraphDeploymentID
}

func newDeploymentSet(ids ...indexer.SubgraphDeploymentID) *deploymentSet {
	s := &deploymentSet{seen: make(map[indexer.SubgraphDeploymentID]bool)}
	for _, id := range ids {
		s.add(id)
	}
	return s
}

func (s *deploymentSet) add(id indexer.SubgraphDeploymentID) {
	if id.IsZero() || s.seen[id] {
		return
	}
	s.seen[id] = true
	s.ids = append(s.ids, id)
}

func (s *deploymentSet) has(id indexer.SubgraphDeploymentID) bool {
	return s.seen[id]
}
