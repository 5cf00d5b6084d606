package indexer

import (
	"math/big"
)

// RuleMatch records which rule produced a decision and why.
type RuleMatch struct {
	Rule   *IndexingRule
	Reason string
}

// AllocationDecision is the evaluator's verdict for one deployment.
type AllocationDecision struct {
	Deployment      SubgraphDeploymentID
	ToAllocate      bool
	RuleMatch       RuleMatch
	ProtocolNetwork string
}

// EvaluateDeployments decides, for every deployment, whether the indexer
// wants an active allocation against it. Rules must already be in merged
// form and rewritten so that subgraph rules point at deployments.
// supportedChains lists the chains the local graph node can index; a nil
// map disables the chain check.
func EvaluateDeployments(rules []*IndexingRule, deployments []*SubgraphDeployment, supportedChains map[string]bool) []*AllocationDecision {
	var global *IndexingRule
	byDeployment := make(map[SubgraphDeploymentID]*IndexingRule)
	for _, r := range rules {
		if r.IsGlobal() {
			global = r
			continue
		}
		if r.IdentifierType != IdentifierTypeDeployment {
			continue
		}
		if id, ok := r.Deployment(); ok {
			byDeployment[id] = r
		}
	}

	decisions := make([]*AllocationDecision, 0, len(deployments))
	for _, d := range deployments {
		decisions = append(decisions, EvaluateDeployment(d, byDeployment[d.ID], global, supportedChains))
	}
	return decisions
}

// EvaluateDeployment applies the matching deployment rule, falling back to
// the global rule, to a single deployment.
func EvaluateDeployment(deployment *SubgraphDeployment, rule, global *IndexingRule, supportedChains map[string]bool) *AllocationDecision {
	decision := &AllocationDecision{
		Deployment:      deployment.ID,
		ProtocolNetwork: deployment.ProtocolNetwork,
	}

	reason := "deployment"
	if rule == nil {
		rule = global
		reason = "global"
	}
	if rule == nil {
		decision.RuleMatch = RuleMatch{Reason: "none"}
		return decision
	}
	decision.RuleMatch = RuleMatch{Rule: rule, Reason: reason}

	switch rule.DecisionBasis {
	case BasisAlways:
		decision.ToAllocate = true
	case BasisNever, BasisOffchain:
		// Offchain deployments are indexed but never allocated against.
		decision.ToAllocate = false
	default:
		decision.ToAllocate = passesThresholds(deployment, rule)
	}

	if decision.ToAllocate && rule.SupportRequired() {
		if deployment.Denied() {
			decision.ToAllocate = false
			decision.RuleMatch.Reason = reason + " (denied)"
		} else if !chainSupported(deployment.ChainID, supportedChains) {
			decision.ToAllocate = false
			decision.RuleMatch.Reason = reason + " (unsupported chain)"
		}
	}
	return decision
}

// passesThresholds runs the economic checks of a rule with basis "rules".
// The thresholds form a short-circuit OR; unset thresholds are skipped.
func passesThresholds(d *SubgraphDeployment, r *IndexingRule) bool {
	if r.AllocationAmount == nil || r.AllocationAmount.Sign() == 0 {
		return false
	}
	if r.MinStake != nil && d.StakedTokens != nil && d.StakedTokens.Cmp(r.MinStake) >= 0 {
		return true
	}
	if signalWithinBounds(d, r) {
		return true
	}
	if r.MinAverageQueryFees != nil && d.QueryFeesAmount != nil {
		count := int64(d.AllocationCount)
		if count < 1 {
			count = 1
		}
		avg := new(big.Int).Div(d.QueryFeesAmount, big.NewInt(count))
		if avg.Cmp(r.MinAverageQueryFees) >= 0 {
			return true
		}
	}
	return false
}

// signalWithinBounds passes when at least one signal bound is set and the
// deployment's signal satisfies every bound that is set.
func signalWithinBounds(d *SubgraphDeployment, r *IndexingRule) bool {
	if r.MinSignal == nil && r.MaxSignal == nil {
		return false
	}
	signal := d.SignalledTokens
	if signal == nil {
		signal = new(big.Int)
	}
	if r.MinSignal != nil && signal.Cmp(r.MinSignal) < 0 {
		return false
	}
	if r.MaxSignal != nil && signal.Cmp(r.MaxSignal) > 0 {
		return false
	}
	return true
}

func chainSupported(chainID string, supported map[string]bool) bool {
	if supported == nil || chainID == "" {
		return true
	}
	return supported[chainID]
}
