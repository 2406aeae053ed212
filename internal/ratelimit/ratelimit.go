// Package ratelimit throttles unauthenticated endpoints per client IP with
// token buckets.
package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/patric-chuzhbe/userapi/internal/ipchecker"
	"github.com/patric-chuzhbe/userapi/internal/logger"
	"github.com/patric-chuzhbe/userapi/internal/models"
)

// Message is returned with every 429 response.
const Message = "Too many requests. Please try again later."

// Config sets the bucket for every client.
type Config struct {
	PerMinute       float64
	Burst           int
	CleanupInterval time.Duration
}

type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

type rejectionRecorder interface {
	RecordRateLimited(route string)
}

// Limiter keeps one token bucket per client IP.
type Limiter struct {
	config   Config
	limit    rate.Limit
	mu       sync.Mutex
	clients  map[string]*clientLimiter
	now      func() time.Time
	recorder rejectionRecorder
	stopCh   chan struct{}
	stopOnce sync.Once
}

// Option configures New.
type Option func(*Limiter)

// WithClock replaces time.Now for bucket bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// WithRecorder counts rejected requests.
func WithRecorder(recorder rejectionRecorder) Option {
	return func(l *Limiter) {
		l.recorder = recorder
	}
}

// New starts the background cleanup of idle clients. A non-positive
// PerMinute disables limiting.
func New(config Config, opts ...Option) *Limiter {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	if config.Burst <= 0 {
		config.Burst = 1
	}

	l := &Limiter{
		config:  config,
		limit:   rate.Limit(config.PerMinute / 60),
		clients: map[string]*clientLimiter{},
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}

	go l.cleanupLoop()

	return l
}

// Stop ends the cleanup goroutine.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopCh)
	})
}

// Allow takes a token from the bucket of key.
func (l *Limiter) Allow(key string) bool {
	if l.config.PerMinute <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	client, ok := l.clients[key]
	if !ok {
		client = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.config.Burst)}
		l.clients[key] = client
	}
	client.lastAccess = now

	return client.limiter.AllowN(now, 1)
}

// Middleware rejects requests over the limit with 429 and an error envelope.
func (l *Limiter) Middleware(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(response http.ResponseWriter, request *http.Request) {
			key := request.RemoteAddr
			if clientIP, err := ipchecker.ClientIP(request); err == nil {
				key = clientIP.String()
			}

			if !l.Allow(key) {
				logger.Log.Warnw("rate limit exceeded", "client", key, "route", route)
				if l.recorder != nil {
					l.recorder.RecordRateLimited(route)
				}
				response.Header().Set("Retry-After", strconv.Itoa(l.retryAfterSeconds()))
				models.WriteError(response, http.StatusTooManyRequests, Message)
				return
			}

			next.ServeHTTP(response, request)
		})
	}
}

// Clients returns the number of tracked clients.
func (l *Limiter) Clients() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.clients)
}

func (l *Limiter) retryAfterSeconds() int {
	seconds := int(math.Ceil(1 / float64(l.limit)))
	if seconds < 1 {
		seconds = 1
	}

	return seconds
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(l.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.stopCh:
			return
		}
	}
}

// cleanup forgets clients idle for more than two cleanup intervals.
func (l *Limiter) cleanup() {
	ttl := 2 * l.config.CleanupInterval

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, client := range l.clients {
		if now.Sub(client.lastAccess) > ttl {
			delete(l.clients, key)
		}
	}
}
