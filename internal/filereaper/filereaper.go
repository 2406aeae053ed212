// Package filereaper retries deletions of uploaded files that could not be
// removed while serving a request, so replaced pictures do not pile up.
package filereaper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/patric-chuzhbe/userapi/internal/logger"
)

// DefaultMaxAttempts bounds how many times a single file is retried.
const DefaultMaxAttempts = 5

type remover interface {
	Remove(publicPath string) error
}

type metricsRecorder interface {
	SetReaperPending(count int)
}

// FileReaper owns a queue of public paths whose deletion failed.
type FileReaper struct {
	queue                    chan string
	files                    remover
	delayBetweenQueueFetches time.Duration
	maxAttempts              int
	errorChannel             chan error
	metrics                  metricsRecorder
	wg                       sync.WaitGroup
}

// Option configures New.
type Option func(*FileReaper)

// WithMaxAttempts overrides DefaultMaxAttempts.
func WithMaxAttempts(attempts int) Option {
	return func(r *FileReaper) {
		if attempts > 0 {
			r.maxAttempts = attempts
		}
	}
}

// WithMetrics reports the number of pending files after each pass.
func WithMetrics(metrics metricsRecorder) Option {
	return func(r *FileReaper) {
		r.metrics = metrics
	}
}

func New(
	files remover,
	channelCapacity int,
	delayBetweenQueueFetches time.Duration,
	opts ...Option,
) *FileReaper {
	r := &FileReaper{
		files:                    files,
		queue:                    make(chan string, channelCapacity),
		delayBetweenQueueFetches: delayBetweenQueueFetches,
		maxAttempts:              DefaultMaxAttempts,
		errorChannel:             make(chan error, channelCapacity),
	}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// ListenErrors passes every file the reaper gave up on to callback.
func (r *FileReaper) ListenErrors(callback func(error)) {
	go func() {
		for err := range r.errorChannel {
			callback(err)
		}
	}()
}

// Enqueue schedules publicPath for deletion. It never blocks; when the queue
// is full the path is dropped and logged.
func (r *FileReaper) Enqueue(publicPath string) {
	select {
	case r.queue <- publicPath:
	default:
		logger.Log.Warnw("file reaper queue is full, dropping file", "path", publicPath)
	}
}

// Run processes the queue until ctx is cancelled. Wait blocks until the
// final pass is done.
func (r *FileReaper) Run(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(r.errorChannel)

		ticker := time.NewTicker(r.delayBetweenQueueFetches)
		defer ticker.Stop()

		pending := map[string]int{}

		for {
			select {
			case publicPath := <-r.queue:
				track(pending, publicPath)
			case <-ticker.C:
				r.sweep(pending)
			case <-ctx.Done():
				r.drain(pending)
				r.sweep(pending)
				for publicPath := range pending {
					logger.Log.Warnw("file left behind on shutdown", "path", publicPath)
				}
				return
			}
		}
	}()
}

// Wait blocks until Run has returned.
func (r *FileReaper) Wait() {
	r.wg.Wait()
}

func (r *FileReaper) drain(pending map[string]int) {
	for {
		select {
		case publicPath := <-r.queue:
			track(pending, publicPath)
		default:
			return
		}
	}
}

func track(pending map[string]int, publicPath string) {
	if _, ok := pending[publicPath]; !ok {
		pending[publicPath] = 0
	}
}

func (r *FileReaper) sweep(pending map[string]int) {
	if len(pending) == 0 {
		return
	}

	removed := 0
	for publicPath, attempts := range pending {
		err := r.files.Remove(publicPath)
		if err == nil {
			delete(pending, publicPath)
			removed++
			continue
		}

		attempts++
		if attempts >= r.maxAttempts {
			delete(pending, publicPath)
			r.report(fmt.Errorf("giving up on %s after %d attempts: %w", publicPath, attempts, err))
			continue
		}
		pending[publicPath] = attempts
	}

	if removed > 0 {
		logger.Log.Infof("file reaper removed %d files", removed)
	}
	if r.metrics != nil {
		r.metrics.SetReaperPending(len(pending))
	}
}

func (r *FileReaper) report(err error) {
	select {
	case r.errorChannel <- err:
	default:
		logger.Log.Errorw("file reaper error dropped", "error", err)
	}
}
