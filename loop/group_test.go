package loop

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joeycumines/go-eventloop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "github.com/Ahnappi/flash-netty/internal/errors"
	"github.com/Ahnappi/flash-netty/util"
)

func newTestGroup(t *testing.T, n int, opts ...Option) *Group {
	t.Helper()
	g, err := NewGroup(n, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = g.Shutdown(ctx)
	})
	return g
}

func TestNewGroupRejectsZero(t *testing.T) {
	_, err := NewGroup(0)
	assert.Error(t, err)
}

func TestSubmitRunsInOrder(t *testing.T) {
	g := newTestGroup(t, 1)
	l := g.Loop(0)

	const n = 500
	var (
		mu  sync.Mutex
		got []int
	)
	done := make(chan struct{})
	for i := 0; i < n; i++ {
		i := i
		require.NoError(t, l.Submit(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			if i == n-1 {
				close(done)
			}
		}))
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("tasks did not run")
	}
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, n)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestTasksOnOneLoopNeverOverlap(t *testing.T) {
	g := newTestGroup(t, 1)
	l := g.Loop(0)

	var running, overlaps atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			_ = l.Submit(func() {
				defer wg.Done()
				if running.Add(1) > 1 {
					overlaps.Add(1)
				}
				time.Sleep(10 * time.Microsecond)
				running.Add(-1)
			})
		}()
	}
	wg.Wait()
	assert.Zero(t, overlaps.Load())
}

func TestInLoop(t *testing.T) {
	g := newTestGroup(t, 2)
	assert.False(t, g.Loop(0).InLoop())

	res := make(chan [2]bool, 1)
	require.NoError(t, g.Loop(0).Submit(func() {
		res <- [2]bool{g.Loop(0).InLoop(), g.Loop(1).InLoop()}
	}))
	r := <-res
	assert.True(t, r[0])
	assert.False(t, r[1])
}

func TestPanickingTaskDoesNotStopLoop(t *testing.T) {
	g := newTestGroup(t, 1)
	l := g.Loop(0)
	require.NoError(t, l.Submit(func() { panic("boom") }))

	ran := make(chan struct{})
	require.NoError(t, l.Submit(func() { close(ran) }))
	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("loop stopped after panic")
	}
}

func TestScheduleRunsOnLoop(t *testing.T) {
	g := newTestGroup(t, 1)
	l := g.Loop(0)

	got := make(chan bool, 1)
	_, err := l.Schedule(100*time.Millisecond, func() { got <- l.InLoop() })
	require.NoError(t, err)

	select {
	case inLoop := <-got:
		assert.True(t, inLoop, "timer callback runs on the owning loop")
	case <-time.After(5 * time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestCancelTimer(t *testing.T) {
	g := newTestGroup(t, 1)
	l := g.Loop(0)

	var fired atomic.Bool
	done := make(chan error, 1)
	require.NoError(t, l.Submit(func() {
		id, err := l.Schedule(50*time.Millisecond, func() { fired.Store(true) })
		if err != nil {
			done <- err
			return
		}
		if err := l.CancelTimer(id); err != nil {
			done <- err
			return
		}
		// Timers fire in deadline order, so this one runs after the
		// cancelled one would have.
		if _, err := l.Schedule(150*time.Millisecond, func() { done <- nil }); err != nil {
			done <- err
		}
	}))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("timer did not fire")
	}
	assert.False(t, fired.Load())
}

func TestPanickingTimerDoesNotStopLoop(t *testing.T) {
	g := newTestGroup(t, 1)
	l := g.Loop(0)

	_, err := l.Schedule(time.Millisecond, func() { panic("boom") })
	require.NoError(t, err)

	done := make(chan struct{})
	_, err = l.Schedule(20*time.Millisecond, func() { close(done) })
	require.NoError(t, err)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("loop stopped after a panicking timer")
	}
}

func TestRoundRobin(t *testing.T) {
	g := newTestGroup(t, 3)
	var got []int
	for i := 0; i < 7; i++ {
		got = append(got, g.Next().ID())
	}
	assert.Equal(t, []int{0, 1, 2, 0, 1, 2, 0}, got)
}

func TestLeastLoaded(t *testing.T) {
	g := newTestGroup(t, 3, WithChooser(LeastLoaded))

	assert.Equal(t, 0, g.Next().ID(), "ties go to the lowest index")

	g.Loop(0).Pin()
	g.Loop(0).Pin()
	g.Loop(1).Pin()
	assert.Equal(t, 2, g.Next().ID())

	g.Loop(2).Pin()
	g.Loop(2).Pin()
	assert.Equal(t, 1, g.Next().ID())

	g.Loop(0).Unpin()
	g.Loop(0).Unpin()
	assert.Equal(t, 0, g.Next().ID())
}

func TestParseChooser(t *testing.T) {
	c, err := ParseChooser("least-loaded")
	require.NoError(t, err)
	assert.Equal(t, LeastLoaded, c)

	c, err = ParseChooser("")
	require.NoError(t, err)
	assert.Equal(t, RoundRobin, c)

	_, err = ParseChooser("random")
	assert.Error(t, err)
}

func TestShutdownDrainsQueuedTasks(t *testing.T) {
	g, err := NewGroup(2)
	require.NoError(t, err)

	var ran atomic.Int32
	for i := 0; i < 100; i++ {
		require.NoError(t, g.Next().Submit(func() { ran.Add(1) }))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, g.Shutdown(ctx))

	select {
	case <-g.Done():
	default:
		t.Fatal("Done not closed after Shutdown")
	}
	assert.EqualValues(t, 100, ran.Load())
	assert.Error(t, g.Loop(0).Submit(func() {}))

	assert.NoError(t, g.Shutdown(ctx), "second Shutdown")
}

func TestShutdownFromLoopIsRejected(t *testing.T) {
	g := newTestGroup(t, 1)

	res := make(chan error, 1)
	require.NoError(t, g.Loop(0).Submit(func() {
		res <- g.Shutdown(context.Background())
	}))
	assert.ErrorIs(t, <-res, ferrors.ErrShutdownFromLoop)
}

func TestRunErrorIsLogged(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantLog string
	}{
		{"failure", errors.New("poller failed"), "loop exited: poller failed"},
		{"terminated", eventloop.ErrLoopTerminated, ""},
		{"clean", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := util.NewLogger(1)
			logger.SetOutput(&buf)
			l := &Loop{group: "test", logger: logger}

			l.exited(tt.err)
			if tt.wantLog == "" {
				assert.Empty(t, buf.String())
				return
			}
			assert.Contains(t, buf.String(), tt.wantLog)
		})
	}
}

func TestGoroutineID(t *testing.T) {
	a := goroutineID()
	assert.NotZero(t, a)
	assert.Equal(t, a, goroutineID())

	ch := make(chan uint64)
	go func() { ch <- goroutineID() }()
	assert.NotEqual(t, a, <-ch)
}
