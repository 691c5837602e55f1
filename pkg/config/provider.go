package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Source identifies where a configuration layer came from, for logging and
// precedence reasoning.
type Source string

const (
	SourceDefault Source = "default"
	SourceFile    Source = "file"
	SourceEnv     Source = "env"
)

// EnvPrefix is the environment-variable prefix recognized by the engine,
// e.g. WORKFLOWD_DATABASE__HOST.
const EnvPrefix = "WORKFLOWD_"

// Provider supplies one layer of configuration. Providers are applied in
// the order given to Service.Load, each overriding keys set by the ones
// before it. A provider that watches an external source (a file) can
// report changes through Watch; providers with nothing to watch return
// nil immediately.
type Provider interface {
	// Load returns this layer's keys as a dotted-path map suitable for
	// koanf.Load via a raw map provider.
	Load() (map[string]any, error)
	// Type reports which Source this provider represents.
	Type() Source
	// Watch invokes onChange whenever the underlying source changes.
	// Providers with no external source (defaults, env) return nil without
	// ever calling onChange.
	Watch(onChange func()) error
}

// defaultProvider supplies the engine's built-in defaults.
type defaultProvider struct{}

// NewDefaultProvider returns a Provider for the engine's built-in defaults.
func NewDefaultProvider() Provider { return defaultProvider{} }

func (defaultProvider) Load() (map[string]any, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "mapstructure"), nil); err != nil {
		return nil, fmt.Errorf("config: loading defaults: %w", err)
	}
	return k.Raw(), nil
}

func (defaultProvider) Type() Source       { return SourceDefault }
func (defaultProvider) Watch(func()) error { return nil }

// yamlProvider supplies configuration read from a YAML file on disk. A
// missing file is not an error: it simply contributes no keys, so a
// deployment without a config file still runs on defaults+env.
type yamlProvider struct {
	path    string
	watcher *Watcher
}

// NewYAMLProvider returns a Provider backed by the YAML file at path.
func NewYAMLProvider(path string) Provider { return &yamlProvider{path: path} }

func (p *yamlProvider) Load() (map[string]any, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("config: reading file %q: %w", p.path, err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: parsing YAML %q: %w", p.path, err)
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

func (p *yamlProvider) Type() Source { return SourceFile }

// Watch delegates to a fsnotify-backed Watcher on the file's path, debounced
// so a burst of writes triggers one reload rather than several.
func (p *yamlProvider) Watch(onChange func()) error {
	if p.path == "" {
		return nil
	}
	w, err := NewWatcher()
	if err != nil {
		return fmt.Errorf("config: creating watcher for %q: %w", p.path, err)
	}
	w.OnChange(onChange)
	p.watcher = w
	return w.Watch(context.Background(), p.path)
}

// Close stops the file watcher started by Watch, if any. Providers with
// nothing to watch are a no-op, satisfying the optional io.Closer contract
// Manager.Close looks for.
func (p *yamlProvider) Close() error {
	if p.watcher == nil {
		return nil
	}
	return p.watcher.Close()
}

// envProvider supplies configuration from environment variables prefixed
// with EnvPrefix. It never returns static keys from Load: environment
// variables are merged directly into the active koanf instance by
// Service.Load because koanf's env provider needs direct access to the
// running Koanf tree to apply its key transform.
type envProvider struct{}

// NewEnvProvider returns a Provider representing the process environment.
func NewEnvProvider() Provider { return envProvider{} }

func (envProvider) Load() (map[string]any, error) { return map[string]any{}, nil }
func (envProvider) Type() Source                  { return SourceEnv }
func (envProvider) Watch(func()) error            { return nil }

// loadEnvInto merges process environment variables prefixed with EnvPrefix
// directly into k, translating WORKFLOWD_SCHEDULER__LOG_RETENTION_DAYS into
// scheduler.log_retention_days: a double underscore separates nesting
// levels (matching each struct field), a single underscore is part of the
// field name itself.
func loadEnvInto(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(key, value string) (string, any) {
			return envKeyToPath(key), value
		},
	}), nil)
}

func envKeyToPath(key string) string {
	trimmed := strings.TrimPrefix(key, EnvPrefix)
	trimmed = strings.ToLower(trimmed)
	return strings.ReplaceAll(trimmed, "__", ".")
}

// mapProvider adapts a plain map[string]any to koanf.Provider so a Provider's
// Load result can be merged into a koanf tree without an extra confmap
// dependency.
type mapProvider map[string]any

func (m mapProvider) Read() (map[string]any, error) { return map[string]any(m), nil }

func (m mapProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("config: ReadBytes not supported for in-memory map provider")
}
