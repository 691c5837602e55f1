package config

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Manager owns the currently active Config and keeps it current: Load
// applies a set of Providers once, and registers each provider's Watch so a
// later file change triggers a debounced reload without the caller having
// to poll. Components reach the live config through Get rather than
// capturing a pointer at startup, so a reload is visible everywhere without
// a restart.
type Manager struct {
	Service Service

	current atomic.Pointer[Config]

	mu        sync.Mutex
	debounce  time.Duration
	providers []Provider
	callbacks []func(*Config)
	watching  bool
}

// NewManager returns a Manager backed by service. A nil service uses
// NewService's default koanf-backed implementation.
func NewManager(service Service) *Manager {
	if service == nil {
		service = NewService()
	}
	return &Manager{Service: service, debounce: 100 * time.Millisecond}
}

// SetDebounce overrides the quiet period applied to file-watch reloads.
// Must be called before Load starts watching, otherwise it only affects
// watchers registered afterward.
func (m *Manager) SetDebounce(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.debounce = d
}

// Load layers providers (in order, later overriding earlier) into a Config,
// stores it as the active configuration, invokes any registered OnChange
// callbacks, and starts watching every provider that supports it so future
// external changes (a YAML file edit) trigger an automatic reload.
func (m *Manager) Load(ctx context.Context, providers ...Provider) (*Config, error) {
	cfg, err := m.Service.Load(ctx, providers...)
	if err != nil {
		return nil, err
	}
	m.current.Store(cfg)
	m.mu.Lock()
	m.providers = providers
	alreadyWatching := m.watching
	m.watching = true
	m.mu.Unlock()
	m.notify(cfg)
	if !alreadyWatching {
		if err := m.Service.Watch(ctx, providers, m.handleReload); err != nil {
			return nil, fmt.Errorf("config: starting watch: %w", err)
		}
		m.mu.Lock()
		debounce := m.debounce
		m.mu.Unlock()
		for _, p := range providers {
			if yp, ok := p.(*yamlProvider); ok && yp.watcher != nil {
				yp.watcher.SetDebounce(debounce)
			}
		}
	}
	return cfg, nil
}

func (m *Manager) handleReload(cfg *Config) {
	m.current.Store(cfg)
	m.notify(cfg)
}

// Reload re-applies the provider stack from Load without waiting for a
// file-change notification — useful for an operator-triggered SIGHUP-style
// refresh.
func (m *Manager) Reload(ctx context.Context) error {
	m.mu.Lock()
	providers := m.providers
	m.mu.Unlock()
	cfg, err := m.Service.Load(ctx, providers...)
	if err != nil {
		return err
	}
	m.current.Store(cfg)
	m.notify(cfg)
	return nil
}

// Get returns the currently active configuration, or nil if Load has never
// been called. Safe for concurrent use.
func (m *Manager) Get() *Config {
	return m.current.Load()
}

// OnChange registers a callback invoked every time Load or a watched
// provider produces a new configuration.
func (m *Manager) OnChange(cb func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, cb)
}

func (m *Manager) notify(cfg *Config) {
	m.mu.Lock()
	cbs := make([]func(*Config), len(m.callbacks))
	copy(cbs, m.callbacks)
	m.mu.Unlock()
	for _, cb := range cbs {
		cb(cfg)
	}
}

// Close stops every provider's watcher. Providers that don't watch
// anything (defaults, env) are unaffected.
func (m *Manager) Close(_ context.Context) error {
	m.mu.Lock()
	providers := m.providers
	m.mu.Unlock()
	var firstErr error
	for _, p := range providers {
		closer, ok := p.(interface{ Close() error })
		if !ok {
			continue
		}
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
