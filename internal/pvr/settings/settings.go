// Package settings caches the PVR subsystem's settings and provides the
// callbacks the settings UI uses for PVR options.
//
// A Settings value subscribes to a registry for a fixed set of setting
// identifiers, keeps an owned clone of each, and answers typed lookups
// from any goroutine. Lookups never fail: a missing or mistyped setting
// is logged and a default is returned.
package settings

import (
	"sync"

	"go.uber.org/zap"

	"github.com/dshills/pvrsettings/internal/config/registry"
)

// Defaults returned when a lookup fails.
const (
	DefaultBool   = false
	DefaultInt    = -1
	DefaultString = ""
)

// Registry is the part of the settings registry the cache depends on.
type Registry interface {
	Get(id string) *registry.Setting
	RegisterSettingsHandler(h registry.SettingsHandler)
	UnregisterSettingsHandler(h registry.SettingsHandler)
	RegisterCallback(cb registry.SettingCallback, ids []string)
	UnregisterCallback(cb registry.SettingCallback)
}

// Settings is a cache of PVR setting values kept in sync with a registry.
type Settings struct {
	reg     Registry
	logger  *zap.Logger
	metrics *Metrics

	mu       sync.Mutex
	settings map[string]*registry.Setting
	closed   bool

	// reloads tracks rebuilds that cleared the cache before Close.
	reloads   sync.WaitGroup
	closeOnce sync.Once
}

// Option configures Settings.
type Option func(*Settings)

// WithLogger sets the logger for lookup failures.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records lookups and reloads in m.
func WithMetrics(m *Metrics) Option {
	return func(s *Settings) {
		s.metrics = m
	}
}

// New caches the settings named by ids and subscribes to their changes.
// Identifiers unknown to the registry are logged and left out.
func New(reg Registry, ids []string, opts ...Option) *Settings {
	s := &Settings{
		reg:      reg,
		logger:   zap.NewNop(),
		settings: make(map[string]*registry.Setting, len(ids)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("pvr.settings")

	s.init(ids)
	reg.RegisterSettingsHandler(s)
	reg.RegisterCallback(s, ids)
	return s
}

// Close unsubscribes from the registry and waits for a rebuild already in
// progress. No notification changes the cache once Close has returned;
// cached values stay readable.
func (s *Settings) Close() {
	s.closeOnce.Do(func() {
		s.reg.UnregisterCallback(s)
		s.reg.UnregisterSettingsHandler(s)

		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.reloads.Wait()
	})
}

// init looks up and clones each setting. The lock is only held while
// inserting so registry lookups never run under it.
func (s *Settings) init(ids []string) {
	for _, id := range ids {
		setting := s.reg.Get(id)
		if setting == nil {
			s.logger.Error("failed to load value for setting", zap.String("setting", id))
			continue
		}

		clone := setting.Clone(id)
		s.mu.Lock()
		s.settings[id] = clone
		s.mu.Unlock()
	}
	s.metrics.setEntries(s.Len())
}

// OnSettingsLoaded rebuilds the cache after a bulk reload. The cached
// identifiers are collected and cleared under the lock, then looked up
// again without it. A rebuild that has cleared the cache always completes.
func (s *Settings) OnSettingsLoaded() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	ids := make([]string, 0, len(s.settings))
	for id := range s.settings {
		ids = append(ids, id)
	}
	clear(s.settings)
	s.reloads.Add(1)
	s.mu.Unlock()
	defer s.reloads.Done()

	s.metrics.reloaded()
	s.init(ids)
}

// OnSettingChanged replaces the cached clone of setting. A setting that
// was never requested is cached as well.
func (s *Settings) OnSettingChanged(setting *registry.Setting) {
	if setting == nil {
		return
	}

	clone := setting.Clone(setting.ID)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.settings[setting.ID] = clone
	n := len(s.settings)
	s.mu.Unlock()

	s.metrics.changed()
	s.metrics.setEntries(n)
}

// GetBoolValue returns the cached boolean id, or false.
func (s *Settings) GetBoolValue(id string) bool {
	v, ok := s.lookup(id, registry.TypeBool)
	if !ok {
		return DefaultBool
	}
	b, _ := v.Bool()
	return b
}

// GetIntValue returns the cached integer id, or -1.
func (s *Settings) GetIntValue(id string) int {
	v, ok := s.lookup(id, registry.TypeInt)
	if !ok {
		return DefaultInt
	}
	i, _ := v.Int()
	return i
}

// GetStringValue returns the cached string id, or "".
func (s *Settings) GetStringValue(id string) string {
	v, ok := s.lookup(id, registry.TypeString)
	if !ok {
		return DefaultString
	}
	str, _ := v.Str()
	return str
}

// lookup returns the cached value of id if it holds the wanted kind.
func (s *Settings) lookup(id string, want registry.SettingType) (registry.Value, bool) {
	s.mu.Lock()
	setting, found := s.settings[id]
	var v registry.Value
	if found {
		v = setting.Value()
	}
	s.mu.Unlock()

	switch {
	case !found:
		s.logger.Error("setting not found", zap.String("setting", id), zap.Stringer("want", want))
		s.metrics.lookup(want, resultMissing)
		return registry.Value{}, false
	case v.Type() != want:
		s.logger.Error("setting has wrong type",
			zap.String("setting", id),
			zap.Stringer("want", want),
			zap.Stringer("got", v.Type()),
		)
		s.metrics.lookup(want, resultWrongType)
		return registry.Value{}, false
	}

	s.metrics.lookup(want, resultHit)
	return v, true
}

// Len returns the number of cached settings.
func (s *Settings) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.settings)
}

// Snapshot returns the cached values by identifier.
func (s *Settings) Snapshot() map[string]registry.Value {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]registry.Value, len(s.settings))
	for id, setting := range s.settings {
		out[id] = setting.Value()
	}
	return out
}
