package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/dshills/pvrsettings/internal/config/loader"
	"github.com/dshills/pvrsettings/internal/config/registry"
	"github.com/dshills/pvrsettings/internal/config/watcher"
)

// ClientsKey is the top-level table holding backend client declarations.
const ClientsKey = "clients"

// maxIncludeDepth limits nested @include directives in settings files.
const maxIncludeDepth = 8

// Sources reported with registry notifications.
const (
	SourceLoad   = "load"
	SourceReload = "reload"
)

// ClientsHandler receives the raw clients section after every load.
type ClientsHandler func(entries []map[string]any)

// Manager loads settings into a registry from a TOML file and the
// environment and keeps them current while the file changes.
type Manager struct {
	mu sync.Mutex

	reg    *registry.Registry
	logger *zap.Logger

	path      string
	envPrefix string
	toml      *loader.TOMLLoader
	env       *loader.EnvLoader

	enableWatcher bool
	watcher       *watcher.Watcher

	clients  []map[string]any
	handlers []ClientsHandler

	closed bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithPath sets the settings file path.
func WithPath(path string) Option {
	return func(m *Manager) {
		m.path = path
	}
}

// WithEnvPrefix sets the environment variable prefix.
func WithEnvPrefix(prefix string) Option {
	return func(m *Manager) {
		m.envPrefix = prefix
	}
}

// WithLogger sets the manager logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithWatcher enables file watching for live reload.
func WithWatcher(enable bool) Option {
	return func(m *Manager) {
		m.enableWatcher = enable
	}
}

// WithClientsHandler registers fn to receive the clients section after
// every load and reload.
func WithClientsHandler(fn ClientsHandler) Option {
	return func(m *Manager) {
		if fn != nil {
			m.handlers = append(m.handlers, fn)
		}
	}
}

// NewManager creates a Manager feeding reg.
func NewManager(reg *registry.Registry, opts ...Option) *Manager {
	m := &Manager{
		reg:       reg,
		logger:    zap.NewNop(),
		envPrefix: loader.DefaultEnvPrefix,
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.path == "" {
		m.path = DefaultPath()
	}
	m.logger = m.logger.Named("config")
	m.toml = loader.NewTOMLLoader(m.path)
	m.env = loader.NewEnvLoader(m.envPrefix)

	return m
}

// Path returns the settings file path.
func (m *Manager) Path() string {
	return m.path
}

// Load reads the settings file and environment overrides and applies them
// to the registry, which then announces a bulk reload. A missing file is
// not an error. Invalid values are logged and their defaults kept.
// The raw clients section is returned.
func (m *Manager) Load(ctx context.Context) ([]map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.load(SourceLoad)
}

// Reload re-reads all sources. On a parse error the registry keeps its
// current values.
func (m *Manager) Reload() error {
	_, err := m.load(SourceReload)
	return err
}

func (m *Manager) load(source string) ([]map[string]any, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}

	fileValues, err := m.toml.LoadWithIncludes(m.path, maxIncludeDepth)
	if err != nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("loading %s: %w", m.path, err)
	}

	clients, err := extractClients(fileValues)
	if err != nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("loading %s: %w", m.path, err)
	}

	envValues, err := m.env.Load()
	if err != nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("loading environment: %w", err)
	}
	values := loader.Overlay(fileValues, envValues)

	m.clients = clients
	handlers := make([]ClientsHandler, len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.Unlock()

	// Notifications run outside the lock; handlers may call back in.
	errs := m.reg.Load(values, source)
	m.logger.Info("settings loaded",
		zap.String("path", m.path),
		zap.String("source", source),
		zap.Int("values", len(values)),
		zap.Int("invalid", len(errs)),
		zap.Int("clients", len(clients)),
	)

	for _, h := range handlers {
		h(clients)
	}

	return clients, nil
}

// Clients returns the clients section from the last successful load.
func (m *Manager) Clients() []map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]map[string]any, len(m.clients))
	copy(out, m.clients)
	return out
}

// Start begins watching the settings file when the watcher is enabled.
// Watching stops when ctx is done or Close is called.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if !m.enableWatcher || m.watcher != nil {
		m.mu.Unlock()
		return nil
	}

	w := watcher.New(watcher.WithLogger(m.logger))
	if err := w.Watch(m.path); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("watching %s: %w", m.path, err)
	}
	w.OnChange(m.handleFileChange)
	m.watcher = w
	m.mu.Unlock()

	if err := w.Start(); err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}

	go func() {
		<-ctx.Done()
		w.Stop()
	}()

	return nil
}

// handleFileChange reloads settings after the watched file changes.
// A removed file reloads to defaults.
func (m *Manager) handleFileChange(event watcher.Event) {
	m.logger.Info("settings file changed",
		zap.String("path", event.Path),
		zap.Stringer("op", event.Op),
	)

	if err := m.Reload(); err != nil && !errors.Is(err, ErrClosed) {
		m.logger.Error("reload failed", zap.Error(err))
	}
}

// Close stops the watcher. Later loads fail with ErrClosed.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	w := m.watcher
	m.watcher = nil
	m.mu.Unlock()

	if w != nil {
		w.Stop()
	}
}

// extractClients removes the clients section from the decoded file.
func extractClients(values map[string]any) ([]map[string]any, error) {
	raw, ok := values[ClientsKey]
	if !ok {
		return nil, nil
	}
	delete(values, ClientsKey)

	switch v := raw.(type) {
	case []map[string]any:
		return v, nil
	case []any:
		entries := make([]map[string]any, 0, len(v))
		for i, item := range v {
			entry, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: %s[%d] is %T", ErrInvalidClients, ClientsKey, i, item)
			}
			entries = append(entries, entry)
		}
		return entries, nil
	default:
		return nil, fmt.Errorf("%w: %s is %T", ErrInvalidClients, ClientsKey, raw)
	}
}

// DefaultPath returns the default settings file location.
func DefaultPath() string {
	return filepath.Join(defaultUserConfigDir(), "settings.toml")
}

// defaultUserConfigDir returns the default user configuration directory.
func defaultUserConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "pvrsettings")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "pvrsettings")
}
