package config

import (
	"context"
	"fmt"

	"github.com/knadh/koanf/v2"
)

// Service loads and validates configuration from a set of layered
// Providers, and reports which Source last set a given key.
type Service interface {
	Load(ctx context.Context, providers ...Provider) (*Config, error)
	Watch(ctx context.Context, providers []Provider, onChange func(*Config)) error
	Validate(cfg *Config) error
	GetSource(key string) Source
}

type koanfService struct {
	k       *koanf.Koanf
	sources map[string]Source
}

// NewService returns the default Service implementation, backed by koanf.
func NewService() Service {
	return &koanfService{k: koanf.New("."), sources: make(map[string]Source)}
}

func (s *koanfService) Load(_ context.Context, providers ...Provider) (*Config, error) {
	k := koanf.New(".")
	sources := make(map[string]Source)
	sawEnv := false
	for _, p := range providers {
		if p == nil {
			continue
		}
		if p.Type() == SourceEnv {
			sawEnv = true
			continue
		}
		raw, err := p.Load()
		if err != nil {
			return nil, err
		}
		if err := k.Load(mapProvider(raw), nil); err != nil {
			return nil, fmt.Errorf("config: merging %s layer: %w", p.Type(), err)
		}
		for _, key := range k.Keys() {
			sources[key] = p.Type()
		}
	}
	if sawEnv {
		before := cloneKeys(k)
		if err := loadEnvInto(k); err != nil {
			return nil, fmt.Errorf("config: loading environment: %w", err)
		}
		for _, key := range k.Keys() {
			prev, existed := before[key]
			if !existed || prev != k.Get(key) {
				sources[key] = SourceEnv
			}
		}
	}
	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshaling: %w", err)
	}
	if err := s.Validate(cfg); err != nil {
		return nil, err
	}
	s.k = k
	s.sources = sources
	return cfg, nil
}

func cloneKeys(k *koanf.Koanf) map[string]any {
	out := make(map[string]any, len(k.Keys()))
	for _, key := range k.Keys() {
		out[key] = k.Get(key)
	}
	return out
}

// Watch registers callbacks on every provider that supports it (typically
// just the YAML file provider) and reloads the full layer stack whenever
// one fires.
func (s *koanfService) Watch(ctx context.Context, providers []Provider, onChange func(*Config)) error {
	for _, p := range providers {
		if p == nil {
			continue
		}
		err := p.Watch(func() {
			cfg, err := s.Load(ctx, providers...)
			if err != nil {
				return
			}
			onChange(cfg)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Validate checks invariants Load's struct decoding can't express: worker
// concurrency, scheduler tick and log retention days must each be
// positive. Provider OAuth settings (including redirect URIs) are not
// checked.
func (s *koanfService) Validate(cfg *Config) error {
	if cfg.Worker.Concurrency <= 0 {
		return fmt.Errorf("config: worker.concurrency must be positive, got %d", cfg.Worker.Concurrency)
	}
	if cfg.Scheduler.Tick <= 0 {
		return fmt.Errorf("config: scheduler.tick must be positive, got %s", cfg.Scheduler.Tick)
	}
	if cfg.Scheduler.LogRetentionDays <= 0 {
		return fmt.Errorf(
			"config: scheduler.log_retention_days must be positive, got %d",
			cfg.Scheduler.LogRetentionDays,
		)
	}
	return nil
}

func (s *koanfService) GetSource(key string) Source {
	if src, ok := s.sources[key]; ok {
		return src
	}
	return SourceDefault
}
