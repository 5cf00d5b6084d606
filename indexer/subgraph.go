package indexer

import (
	"math/big"
	"time"
)

// SubgraphVersion is one published version of a subgraph, pointing at a
// concrete deployment.
type SubgraphVersion struct {
	Version    int
	CreatedAt  int64
	Deployment SubgraphDeploymentID
}

// Subgraph is the protocol-level versioned identifier. Versions are ordered
// and the latest one is versionCount-1.
type Subgraph struct {
	ID           string
	VersionCount int
	Versions     []SubgraphVersion
}

// LatestVersion returns the most recently published version, if any.
func (s *Subgraph) LatestVersion() (SubgraphVersion, bool) {
	return s.VersionAt(s.VersionCount - 1)
}

// PreviousVersion returns the version published before the latest one.
func (s *Subgraph) PreviousVersion() (SubgraphVersion, bool) {
	return s.VersionAt(s.VersionCount - 2)
}

// VersionAt returns the version with the given number.
func (s *Subgraph) VersionAt(version int) (SubgraphVersion, bool) {
	if version < 0 {
		return SubgraphVersion{}, false
	}
	for _, v := range s.Versions {
		if v.Version == version {
			return v, true
		}
	}
	return SubgraphVersion{}, false
}

// CreatedAtTime converts the version's creation timestamp.
func (v SubgraphVersion) CreatedAtTime() time.Time {
	return time.Unix(v.CreatedAt, 0)
}

// SubgraphDeployment is the network subgraph's view of a deployment,
// carrying the economic signals the rule evaluator needs.
type SubgraphDeployment struct {
	ID                  SubgraphDeploymentID
	ProtocolNetwork     string
	DeniedAt            int
	StakedTokens        *big.Int
	SignalledTokens     *big.Int
	QueryFeesAmount     *big.Int
	AllocationCount     int
	ChainID             string
	TransferredToL2     bool
	StartedTransferToL2 bool
}

// Denied reports whether rewards for this deployment have been denied by
// protocol governance.
func (d *SubgraphDeployment) Denied() bool {
	return d.DeniedAt > 0
}
