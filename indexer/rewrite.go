package indexer

import (
	"time"
)

// RewriteSubgraphRules converts rules that target a versioned subgraph into
// rules that target its concrete deployments, ahead of evaluation. The
// latest version wins the rule; while the latest version is younger than
// previousVersionBuffer a duplicate rule is appended for the previous
// deployment so that queries against it stay served during rollover.
// An explicit deployment rule always takes precedence over a converted one.
// The input rules are never modified; rewritten entries are copies.
func RewriteSubgraphRules(rules []*IndexingRule, subgraphs map[string]*Subgraph, previousVersionBuffer time.Duration, now time.Time) []*IndexingRule {
	haveDeploymentRule := make(map[SubgraphDeploymentID]bool)
	for _, r := range rules {
		if r.IdentifierType != IdentifierTypeDeployment {
			continue
		}
		if id, ok := r.Deployment(); ok {
			haveDeploymentRule[id] = true
		}
	}

	cutoff := now.Add(-previousVersionBuffer).Unix()
	out := make([]*IndexingRule, len(rules), len(rules)+1)
	copy(out, rules)
	for i, r := range rules {
		if r.IdentifierType != IdentifierTypeSubgraph {
			continue
		}
		subgraph, ok := subgraphs[r.Identifier]
		if !ok {
			// Unknown subgraphs are left untouched; they match nothing downstream.
			continue
		}
		latest, ok := subgraph.LatestVersion()
		if !ok {
			continue
		}

		if previous, ok := subgraph.PreviousVersion(); ok && latest.CreatedAt > cutoff {
			if !haveDeploymentRule[previous.Deployment] {
				dup := *r
				dup.Identifier = previous.Deployment.Hex()
				dup.IdentifierType = IdentifierTypeDeployment
				out = append(out, &dup)
				haveDeploymentRule[previous.Deployment] = true
			}
		}

		if haveDeploymentRule[latest.Deployment] {
			continue
		}
		rewritten := *r
		rewritten.Identifier = latest.Deployment.Hex()
		rewritten.IdentifierType = IdentifierTypeDeployment
		out[i] = &rewritten
		haveDeploymentRule[latest.Deployment] = true
	}
	return out
}
