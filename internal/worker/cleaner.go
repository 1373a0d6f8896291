// Package worker runs the periodic session cleanup loop with graceful
// shutdown handling.
package worker

import (
	"context"
	"log"
	"sync"
	"time"
)

// SessionPurger deletes expired sessions and session values.
type SessionPurger interface {
	PurgeExpiredSessions(ctx context.Context) (int64, error)
}

// Config holds cleaner configuration.
type Config struct {
	// Interval is the time between cleanup sweeps.
	Interval time.Duration
	// SweepTimeout is the maximum time allowed for one sweep.
	SweepTimeout time.Duration
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Interval:     15 * time.Minute,
		SweepTimeout: 30 * time.Second,
	}
}

// Cleaner periodically purges expired sessions.
type Cleaner struct {
	config Config
	store  SessionPurger

	wg      sync.WaitGroup
	stopCh  chan struct{}
	stopped bool
	mu      sync.Mutex
}

// New creates a Cleaner with the given configuration.
func New(config Config, store SessionPurger) *Cleaner {
	if config.Interval <= 0 {
		config.Interval = DefaultConfig().Interval
	}
	if config.SweepTimeout <= 0 {
		config.SweepTimeout = DefaultConfig().SweepTimeout
	}
	return &Cleaner{
		config: config,
		store:  store,
		stopCh: make(chan struct{}),
	}
}

// Start launches the cleanup loop. It returns immediately; sweeps run in
// the background until Stop is called.
func (c *Cleaner) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ticker := time.NewTicker(c.config.Interval)
		defer ticker.Stop()

		c.sweep()
		for {
			select {
			case <-ticker.C:
				c.sweep()
			case <-c.stopCh:
				return
			}
		}
	}()
}

// Stop halts the cleanup loop, waiting for an in-flight sweep to finish or
// the context to expire.
func (c *Cleaner) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.stopped {
		c.stopped = true
		close(c.stopCh)
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Cleaner) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), c.config.SweepTimeout)
	defer cancel()

	purged, err := c.store.PurgeExpiredSessions(ctx)
	if err != nil {
		log.Printf("[cleaner] sweep failed: %v", err)
		return
	}
	if purged > 0 {
		log.Printf("[cleaner] purged %d expired session rows", purged)
	}
}
