// Package ratelimit implements a token bucket rate limiter shared by every
// fetch against the same host.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
	"github.com/JakeFAU/catalog-crawler/internal/metrics"
)

// DefaultMaxHosts bounds how many per-host buckets are remembered.
const DefaultMaxHosts = 1024

// Config holds rate limiter configuration.
type Config struct {
	// RPS is the sustained request rate per host. Zero or negative disables
	// limiting.
	RPS      float64
	Burst    int
	MaxHosts int
}

// Limiter manages per-host rate limits.
type Limiter struct {
	mu       sync.Mutex
	limiters *lru.Cache[string, *rate.Limiter]
	rate     rate.Limit
	burst    int
}

// New creates a Limiter.
func New(cfg Config) (*Limiter, error) {
	r := rate.Limit(cfg.RPS)
	if cfg.RPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	size := cfg.MaxHosts
	if size <= 0 {
		size = DefaultMaxHosts
	}
	cache, err := lru.New[string, *rate.Limiter](size)
	if err != nil {
		return nil, fmt.Errorf("host cache: %w", err)
	}
	metrics.Init()
	return &Limiter{limiters: cache, rate: r, burst: burst}, nil
}

// Enabled reports whether Wait can ever block.
func (l *Limiter) Enabled() bool {
	return l != nil && l.rate != rate.Inf
}

// Wait blocks until a token is available for the URL's host. A wait that
// cannot finish before the context deadline fails immediately with an error
// wrapping context.DeadlineExceeded.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	if !l.Enabled() {
		return nil
	}
	host := crawler.SiteName(rawURL)
	limiter := l.forHost(host)

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("rate limit wait: %w", ctxErr)
		}
		return fmt.Errorf("rate limit wait: %w: %v", context.DeadlineExceeded, err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitWait(rawURL, waited)
	}
	return nil
}

func (l *Limiter) forHost(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limiter, ok := l.limiters.Get(host); ok {
		return limiter
	}
	limiter := rate.NewLimiter(l.rate, l.burst)
	l.limiters.Add(host, limiter)
	return limiter
}

// Hosts returns how many hosts currently have a bucket.
func (l *Limiter) Hosts() int {
	return l.limiters.Len()
}
