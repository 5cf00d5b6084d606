package indexer

import (
	"math/big"
	"time"
)

// ActionType enumerates the operator-management actions the agent can queue.
type ActionType string

const (
	ActionTypeAllocate   ActionType = "allocate"
	ActionTypeUnallocate ActionType = "unallocate"
	ActionTypeReallocate ActionType = "reallocate"
)

// ActionStatus tracks an action through the management queue. Only the
// operator moves actions from queued to approved; the agent itself never
// executes an action, it only defers to approved ones.
type ActionStatus string

const (
	ActionStatusQueued   ActionStatus = "queued"
	ActionStatusApproved ActionStatus = "approved"
	ActionStatusPending  ActionStatus = "pending"
	ActionStatusSuccess  ActionStatus = "success"
	ActionStatusFailed   ActionStatus = "failed"
	ActionStatusCanceled ActionStatus = "canceled"
)

// ActionSourceAgent marks actions queued by the reconciler in oversight mode.
const ActionSourceAgent = "indexer-agent"

// Action is one entry in the operator-management queue.
type Action struct {
	ID              uint64               `json:"id"`
	Type            ActionType           `json:"type"`
	DeploymentID    SubgraphDeploymentID `json:"deploymentID"`
	AllocationID    string               `json:"allocationID,omitempty"`
	Amount          *big.Int             `json:"amount,omitempty"`
	POI             string               `json:"poi,omitempty"`
	Force           bool                 `json:"force,omitempty"`
	Source          string               `json:"source"`
	Reason          string               `json:"reason"`
	Status          ActionStatus         `json:"status"`
	FailureReason   string               `json:"failureReason,omitempty"`
	Transaction     string               `json:"transaction,omitempty"`
	Priority        int                  `json:"priority"`
	ProtocolNetwork string               `json:"protocolNetwork"`
	CreatedAt       int64                `json:"createdAt"`
	UpdatedAt       int64                `json:"updatedAt"`
}

// NewAllocateAction queues the opening of a new allocation.
func NewAllocateAction(deployment SubgraphDeploymentID, amount *big.Int, network, reason string) *Action {
	return newAction(ActionTypeAllocate, deployment, network, reason, func(a *Action) {
		a.Amount = amount
	})
}

// NewUnallocateAction queues the closing of an active allocation.
func NewUnallocateAction(allocationID string, deployment SubgraphDeploymentID, poi string, force bool, network, reason string) *Action {
	return newAction(ActionTypeUnallocate, deployment, network, reason, func(a *Action) {
		a.AllocationID = allocationID
		a.POI = poi
		a.Force = force
	})
}

// NewReallocateAction queues a close-and-reopen of an expiring allocation.
func NewReallocateAction(allocationID string, deployment SubgraphDeploymentID, amount *big.Int, poi string, network, reason string) *Action {
	return newAction(ActionTypeReallocate, deployment, network, reason, func(a *Action) {
		a.AllocationID = allocationID
		a.Amount = amount
		a.POI = poi
	})
}

func newAction(t ActionType, deployment SubgraphDeploymentID, network, reason string, fill func(*Action)) *Action {
	now := time.Now().Unix()
	a := &Action{
		Type:            t,
		DeploymentID:    deployment,
		Source:          ActionSourceAgent,
		Reason:          reason,
		Status:          ActionStatusQueued,
		ProtocolNetwork: network,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	fill(a)
	return a
}
