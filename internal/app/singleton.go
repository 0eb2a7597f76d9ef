package app

import (
	"context"
	"sync"
)

var (
	defaultMu      sync.Mutex
	defaultManager *Manager
)

// Default returns the process-wide manager, creating it with DefaultConfig
// on first use.
func Default() *Manager {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultManager == nil {
		defaultManager = NewManager(DefaultConfig())
	}
	return defaultManager
}

// Initialize replaces the process-wide manager, shutting down the previous one.
func Initialize(ctx context.Context, cfg Config, opts ...Option) (*Manager, error) {
	next := NewManager(cfg, opts...)

	defaultMu.Lock()
	prev := defaultManager
	defaultManager = next
	defaultMu.Unlock()

	if prev == nil {
		return next, nil
	}
	return next, prev.Shutdown(ctx)
}
