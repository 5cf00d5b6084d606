package agent

import (
	"context"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/graphops/indexer-agent/indexer"
)

// deploymentParallelism bounds the concurrent graph node admin calls
// during deployment reconciliation.
const deploymentParallelism = 10

// graphNodeOps is the graph node surface the deployment reconciler uses.
type graphNodeOps interface {
	AssignedDeployments(ctx context.Context) ([]indexer.SubgraphDeploymentID, error)
	EnsureIndexing(ctx context.Context, deployment indexer.SubgraphDeploymentID) error
	RemoveDeployment(ctx context.Context, deployment indexer.SubgraphDeploymentID) error
}

// reconcileDeployments drives the graph node's active deployment set
// toward the target set. Deployments with an eligible allocation, active
// or recently closed, are pinned: they still serve gateway queries and
// must never be torn down by this pass. A failed operation is logged and
// retried on the next tick; it does not halt the batch.
func reconcileDeployments(ctx context.Context, node graphNodeOps, target, eligible []indexer.SubgraphDeploymentID) error {
	active, err := node.AssignedDeployments(ctx)
	if err != nil {
		return err
	}

	targetSet := newDeploymentSet(target...)
	keep := newDeploymentSet(target...)
	for _, id := range eligible {
		keep.add(id)
	}
	activeSet := newDeploymentSet(active...)

	var add, remove []indexer.SubgraphDeploymentID
	for _, id := range targetSet.ids {
		if !activeSet.has(id) {
			add = append(add, id)
		}
	}
	for _, id := range activeSet.ids {
		if !keep.has(id) {
			remove = append(remove, id)
		}
	}

	log.WithFields(logrus.Fields{
		"active": len(active),
		"target": len(targetSet.ids),
		"add":    len(add),
		"remove": len(remove),
	}).Debug("Reconcile deployments")

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(deploymentParallelism)
	for _, id := range add {
		id := id
		group.Go(func() error {
			if err := node.EnsureIndexing(groupCtx, id); err != nil {
				log.WithError(err).WithField("deployment", id.IPFSHash()).Warn("Could not begin indexing deployment, will retry")
			}
			return nil
		})
	}
	for _, id := range remove {
		id := id
		group.Go(func() error {
			if err := node.RemoveDeployment(groupCtx, id); err != nil {
				log.WithError(err).WithField("deployment", id.IPFSHash()).Warn("Could not stop indexing deployment, will retry")
			}
			return nil
		})
	}
	return group.Wait()
}
