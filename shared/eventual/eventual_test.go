package eventual

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/graphops/indexer-agent/shared/testutil"
	"github.com/graphops/indexer-agent/shared/testutil/assert"
	"github.com/graphops/indexer-agent/shared/testutil/require"
	"github.com/pkg/errors"
	logTest "github.com/sirupsen/logrus/hooks/test"
)

func TestLatest(t *testing.T) {
	e := New[int]()
	_, ok := e.Latest()
	assert.Equal(t, false, ok)

	e.Set(3)
	v, ok := e.Latest()
	assert.Equal(t, true, ok)
	assert.Equal(t, 3, v)

	e.Set(4)
	v, _ = e.Latest()
	assert.Equal(t, 4, v)
}

func TestResolved(t *testing.T) {
	e := Resolved("ready")
	v, ok := e.Latest()
	assert.Equal(t, true, ok)
	assert.Equal(t, "ready", v)
}

func TestValueBlocksUntilFirstSet(t *testing.T) {
	e := New[string]()
	go func() {
		time.Sleep(20 * time.Millisecond)
		e.Set("ready")
	}()
	v, err := e.Value(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ready", v)
}

func TestValueHonorsContext(t *testing.T) {
	e := New[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := e.Value(ctx)
	assert.ErrorContains(t, "context deadline exceeded", err)
}

func TestOnNewValueCollapsesBursts(t *testing.T) {
	e := New[int]()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got []int
	started := make(chan int)
	release := make(chan struct{})
	e.OnNewValue(ctx, func(v int) {
		mu.Lock()
		got = append(got, v)
		mu.Unlock()
		started <- v
		<-release
	})

	e.Set(1)
	assert.Equal(t, 1, <-started)

	// While the handler is busy, burst in four more values. Only the
	// latest of them may be delivered.
	for i := 2; i <= 5; i++ {
		e.Set(i)
	}
	release <- struct{}{}
	assert.Equal(t, 5, <-started)
	release <- struct{}{}

	mu.Lock()
	defer mu.Unlock()
	assert.DeepEqual(t, []int{1, 5}, got)
}

func TestPollRetainsPreviousValueOnFailure(t *testing.T) {
	hook := logTest.NewGlobal()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int32
	e := Poll(ctx, "flaky", 5*time.Millisecond, func(context.Context) (int, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return 7, nil
		}
		return 0, errors.New("boom")
	})

	v, err := e.Value(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&calls) < 3 {
		if time.Now().After(deadline) {
			t.Fatal("poll function was not retried")
		}
		time.Sleep(time.Millisecond)
	}

	v, ok := e.Latest()
	assert.Equal(t, true, ok)
	assert.Equal(t, 7, v)
	testutil.AssertLogsContain(t, hook, "Could not refresh value, retaining previous")
}

func TestPollIntoKeepsSeededValueUntilFirstRefresh(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e := Resolved(1)
	gate := make(chan struct{})
	PollInto(ctx, e, "seeded", time.Millisecond, func(context.Context) (int, error) {
		<-gate
		return 2, nil
	})

	v, ok := e.Latest()
	require.Equal(t, true, ok)
	assert.Equal(t, 1, v, "seed visible before the poller produces")

	close(gate)
	deadline := time.Now().Add(2 * time.Second)
	for {
		if v, _ := e.Latest(); v == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("poller never refreshed the seeded eventual")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestJoin2(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := New[int]()
	b := New[string]()
	j := Join2(ctx, a, b)

	a.Set(1)
	_, ok := j.Latest()
	assert.Equal(t, false, ok, "join must not resolve with only one side set")

	b.Set("x")
	v, err := j.Value(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v.First)
	assert.Equal(t, "x", v.Second)

	a.Set(2)
	deadline := time.Now().Add(2 * time.Second)
	for {
		v, _ := j.Latest()
		if v.First == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("join did not refresh after input update")
		}
		time.Sleep(time.Millisecond)
	}
}
