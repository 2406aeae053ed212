package filereaper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyRemover struct {
	mu       sync.Mutex
	failures map[string]int
	calls    map[string]int
	removed  []string
}

func (f *flakyRemover) Remove(publicPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[publicPath]++
	if f.failures[publicPath] < 0 || f.calls[publicPath] <= f.failures[publicPath] {
		return errors.New("device busy")
	}
	f.removed = append(f.removed, publicPath)

	return nil
}

func (f *flakyRemover) snapshot() ([]string, map[string]int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	calls := map[string]int{}
	for k, v := range f.calls {
		calls[k] = v
	}

	return append([]string(nil), f.removed...), calls
}

type pendingGauge struct {
	mu   sync.Mutex
	last int
}

func (g *pendingGauge) SetReaperPending(count int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.last = count
}

func TestFileReaperRetriesUntilRemoved(t *testing.T) {
	files := &flakyRemover{
		failures: map[string]int{"/uploads/a.png": 2},
		calls:    map[string]int{},
	}
	gauge := &pendingGauge{}
	reaper := New(files, 10, 5*time.Millisecond, WithMetrics(gauge))

	ctx, cancel := context.WithCancel(context.Background())
	reaper.Run(ctx)
	reaper.Enqueue("/uploads/a.png")

	require.Eventually(t, func() bool {
		removed, _ := files.snapshot()
		return len(removed) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	reaper.Wait()

	_, calls := files.snapshot()
	assert.Equal(t, 3, calls["/uploads/a.png"])
	gauge.mu.Lock()
	assert.Equal(t, 0, gauge.last)
	gauge.mu.Unlock()
}

func TestFileReaperGivesUp(t *testing.T) {
	files := &flakyRemover{
		failures: map[string]int{"/uploads/stuck.png": -1},
		calls:    map[string]int{},
	}
	reaper := New(files, 10, 5*time.Millisecond, WithMaxAttempts(3))

	var (
		mu       sync.Mutex
		reported []error
	)
	reaper.ListenErrors(func(err error) {
		mu.Lock()
		defer mu.Unlock()
		reported = append(reported, err)
	})

	ctx, cancel := context.WithCancel(context.Background())
	reaper.Run(ctx)
	reaper.Enqueue("/uploads/stuck.png")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(reported) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	reaper.Wait()

	_, calls := files.snapshot()
	assert.Equal(t, 3, calls["/uploads/stuck.png"])
	mu.Lock()
	assert.Contains(t, reported[0].Error(), "/uploads/stuck.png")
	mu.Unlock()
}

func TestFileReaperSweepsOnShutdown(t *testing.T) {
	files := &flakyRemover{failures: map[string]int{}, calls: map[string]int{}}
	reaper := New(files, 10, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	reaper.Enqueue("/uploads/late.png")
	reaper.Run(ctx)
	cancel()
	reaper.Wait()

	removed, _ := files.snapshot()
	assert.Equal(t, []string{"/uploads/late.png"}, removed)
}

func TestEnqueueNeverBlocks(t *testing.T) {
	files := &flakyRemover{failures: map[string]int{}, calls: map[string]int{}}
	reaper := New(files, 1, time.Hour)

	done := make(chan struct{})
	go func() {
		reaper.Enqueue("/uploads/1.png")
		reaper.Enqueue("/uploads/2.png")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked on a full queue")
	}
}
