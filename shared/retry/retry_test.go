package retry

import (
	"context"
	"testing"

	"github.com/graphops/indexer-agent/shared/testutil"
	"github.com/graphops/indexer-agent/shared/testutil/assert"
	"github.com/graphops/indexer-agent/shared/testutil/require"
	"github.com/pkg/errors"
	logTest "github.com/sirupsen/logrus/hooks/test"
)

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	hook := logTest.NewGlobal()
	attempts := 0
	err := Do(context.Background(), "flappy", func() error {
		attempts++
		if attempts < 3 {
			return errors.New("connection reset")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	testutil.AssertLogsContain(t, hook, "Transient failure, retrying")
}

func TestDoGivesUpAfterMaxAttempts(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), "dead", func() error {
		attempts++
		return errors.New("no route to host")
	})
	assert.ErrorContains(t, "no route to host", err)
	assert.Equal(t, 5, attempts)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), "fatal", func() error {
		attempts++
		return Permanent(errors.New("bad request"))
	})
	assert.ErrorContains(t, "bad request", err)
	assert.Equal(t, 1, attempts)
}

func TestDoHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := Do(ctx, "canceled", func() error {
		attempts++
		cancel()
		return errors.New("try again")
	})
	require.NotNil(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDoWithResult(t *testing.T) {
	attempts := 0
	got, err := DoWithResult(context.Background(), "result", func() (int, error) {
		attempts++
		if attempts < 2 {
			return 0, errors.New("flaky")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}
