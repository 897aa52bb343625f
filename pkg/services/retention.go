package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/parley-ai/parley/pkg/chatstore"
	"github.com/parley-ai/parley/pkg/urlcache"
)

// Retention periodically sweeps expired URL-cache entries and deletes chats
// older than the retention window. All operations are idempotent.
type Retention struct {
	chats    chatstore.Store
	cache    *urlcache.Cache
	window   time.Duration
	interval time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// NewRetention creates the sweep service. cache may be nil.
func NewRetention(chats chatstore.Store, cache *urlcache.Cache, window, interval time.Duration) *Retention {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Retention{chats: chats, cache: cache, window: window, interval: interval}
}

// Start launches the background sweep loop. Duplicate calls are no-ops.
func (r *Retention) Start(ctx context.Context) {
	if r.cancel != nil {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})

	go r.run(ctx)
	slog.Info("Retention service started", "window", r.window, "interval", r.interval)
}

// Stop signals the loop to exit and waits for it to finish.
func (r *Retention) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
	slog.Info("Retention service stopped")
}

func (r *Retention) run(ctx context.Context) {
	defer close(r.done)

	r.sweep(ctx)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Retention) sweep(ctx context.Context) {
	if r.cache != nil {
		if removed := r.cache.Sweep(time.Now()); removed > 0 {
			slog.Info("Retention: swept expired cache entries", "count", removed)
		}
	}
	if r.chats != nil && r.window > 0 {
		count, err := r.chats.DeleteOlderThan(ctx, time.Now().Add(-r.window))
		if err != nil {
			slog.Error("Retention: chat cleanup failed", "error", err)
			return
		}
		if count > 0 {
			slog.Info("Retention: deleted old chats", "count", count)
		}
	}
}
