package agent

import (
	"testing"
	"time"

	"github.com/graphops/indexer-agent/shared/testutil/assert"
)

func TestPreviousVersionBuffer(t *testing.T) {
	// A mainnet-length epoch of 6646 blocks keeps the previous version
	// allocated for roughly a hundred epochs of nominal block time.
	assert.Equal(t, time.Duration(6646*15*100)*time.Second, previousVersionBuffer(6646))
	// Degenerate epoch lengths fall back to a minimal buffer rather
	// than dropping the previous version immediately.
	assert.Equal(t, 1500*time.Second, previousVersionBuffer(0))
	assert.Equal(t, 1500*time.Second, previousVersionBuffer(-4))
}
