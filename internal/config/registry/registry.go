package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/dshills/pvrsettings/internal/config/notify"
)

// SettingsHandler is notified after the registry has (re)loaded all values.
type SettingsHandler interface {
	OnSettingsLoaded()
}

// SettingCallback is notified when one of the settings it registered for changes.
// The setting passed in is owned by the registry's notification and must be
// cloned if it is retained.
type SettingCallback interface {
	OnSettingChanged(setting *Setting)
}

// IntegerOption is one entry of an integer options list.
type IntegerOption struct {
	Label string
	Value int
}

// IntegerOptionsFiller populates the options for an integer setting.
// It may also adjust current, the value to preselect.
type IntegerOptionsFiller func(setting *Setting, list *[]IntegerOption, current *int, data any)

// VisibilityCondition decides whether a setting is shown.
type VisibilityCondition func(condition, value string, setting *Setting, data any) bool

// Registry maintains all known settings and their current values, and
// notifies handlers and callbacks when values change.
//
// Handlers and callbacks are used as map keys and must be comparable;
// pointers are the usual choice.
type Registry struct {
	mu       sync.RWMutex
	settings map[string]*Setting

	notifier *notify.Notifier
	logger   *zap.Logger

	subMu     sync.Mutex
	handlers  map[SettingsHandler]*notify.Subscription
	callbacks map[SettingCallback][]*notify.Subscription

	fillers    map[string]IntegerOptionsFiller
	conditions map[string]VisibilityCondition
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates a new settings registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		settings:   make(map[string]*Setting),
		logger:     zap.NewNop(),
		handlers:   make(map[SettingsHandler]*notify.Subscription),
		callbacks:  make(map[SettingCallback][]*notify.Subscription),
		fillers:    make(map[string]IntegerOptionsFiller),
		conditions: make(map[string]VisibilityCondition),
	}

	for _, opt := range opts {
		opt(r)
	}

	r.notifier = notify.New(notify.WithLogger(r.logger))

	return r
}

// Close stops notification delivery.
func (r *Registry) Close() {
	r.notifier.Close()
}

// Register adds a setting definition to the registry. The setting starts
// out holding its default value.
func (r *Registry) Register(setting Setting) error {
	def, err := ValueOf(setting.Type, defaultOrZero(setting.Type, setting.Default))
	if err != nil {
		var te *TypeError
		if errors.As(err, &te) {
			te.ID = setting.ID
		}
		return fmt.Errorf("invalid default: %w", err)
	}

	s := setting.Clone(setting.ID)
	if err := s.Validate(def); err != nil {
		return fmt.Errorf("invalid default: %w", err)
	}
	s.def = def
	s.value = def

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.settings[setting.ID]; exists {
		return fmt.Errorf("%w: %s", ErrSettingAlreadyRegistered, setting.ID)
	}
	r.settings[setting.ID] = s
	return nil
}

// MustRegister registers a setting and panics on error.
// Useful for registering built-in settings at init time.
func (r *Registry) MustRegister(setting Setting) {
	if err := r.Register(setting); err != nil {
		panic(err)
	}
}

// Get returns an owned clone of the setting, or nil if it is not registered.
func (r *Registry) Get(id string) *Setting {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.settings[id]
	if !ok {
		return nil
	}
	return s.Clone(id)
}

// Has checks if a setting is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.settings[id]
	return exists
}

// All returns clones of all registered settings sorted by ID.
func (r *Registry) All() []*Setting {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Setting, 0, len(r.settings))
	for id, s := range r.settings {
		result = append(result, s.Clone(id))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result
}

// ByTag returns clones of all settings with the given tag, sorted by ID.
func (r *Registry) ByTag(tag string) []*Setting {
	var result []*Setting
	for _, s := range r.All() {
		if s.HasTag(tag) {
			result = append(result, s)
		}
	}
	return result
}

// Set assigns a new value and notifies registered callbacks if it changed.
func (r *Registry) Set(id string, value Value, source string) error {
	old, snap, changed, err := r.apply(id, value)
	if err != nil {
		return err
	}
	if changed {
		r.notifier.NotifySet(id, old, snap, source)
	}
	return nil
}

// SetRaw converts raw to the setting's declared kind and assigns it.
func (r *Registry) SetRaw(id string, raw any, source string) error {
	typ, ok := r.typeOf(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSettingNotFound, id)
	}

	v, err := ValueOf(typ, raw)
	if err != nil {
		return withID(err, id)
	}
	return r.Set(id, v, source)
}

// Update assigns several raw values keyed by ID. Change notifications are
// delivered together once every value has been applied. Unknown IDs and
// invalid values are reported and left untouched.
func (r *Registry) Update(values map[string]any, source string) []error {
	batch := r.notifier.NewBatch()
	var errs []error

	for _, id := range sortedKeys(values) {
		typ, ok := r.typeOf(id)
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %s", ErrSettingNotFound, id))
			continue
		}
		v, err := ValueOf(typ, values[id])
		if err != nil {
			errs = append(errs, withID(err, id))
			continue
		}
		old, snap, changed, err := r.apply(id, v)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if changed {
			batch.Set(id, old, snap, source)
		}
	}

	batch.Commit()
	return errs
}

// Load replaces every value: settings present in values take that value,
// all others return to their default. Registered handlers receive a single
// reload notification afterwards. Unknown IDs are ignored; invalid values
// are reported and the setting falls back to its default.
func (r *Registry) Load(values map[string]any, source string) []error {
	var errs []error

	r.mu.Lock()
	for _, id := range sortedKeys(r.settings) {
		s := r.settings[id]
		raw, ok := values[id]
		if !ok {
			s.value = s.def
			continue
		}

		v, err := ValueOf(s.Type, raw)
		if err == nil {
			err = s.Validate(v)
		}
		if err != nil {
			errs = append(errs, withID(err, id))
			s.value = s.def
			continue
		}
		s.value = v
	}

	for _, id := range sortedKeys(values) {
		if _, ok := r.settings[id]; !ok {
			r.logger.Debug("ignoring unknown setting", zap.String("setting", id), zap.String("source", source))
		}
	}
	r.mu.Unlock()

	for _, err := range errs {
		r.logger.Warn("invalid setting value, using default", zap.Error(err), zap.String("source", source))
	}

	r.notifier.NotifyReload(source)
	return errs
}

// Reset returns every setting to its default and emits a reload notification.
func (r *Registry) Reset(source string) {
	r.Load(nil, source)
}

// RegisterSettingsHandler subscribes h to reload notifications.
// Registering the same handler twice has no effect.
func (r *Registry) RegisterSettingsHandler(h SettingsHandler) {
	r.subMu.Lock()
	defer r.subMu.Unlock()

	if _, exists := r.handlers[h]; exists {
		return
	}
	r.handlers[h] = r.notifier.Subscribe(func(change notify.Change) {
		if change.Type == notify.ChangeReload {
			h.OnSettingsLoaded()
		}
	})
}

// UnregisterSettingsHandler removes h. Reloads started after this call
// returns are not delivered to h.
func (r *Registry) UnregisterSettingsHandler(h SettingsHandler) {
	r.subMu.Lock()
	sub, ok := r.handlers[h]
	delete(r.handlers, h)
	r.subMu.Unlock()

	if ok {
		sub.Unsubscribe()
	}
}

// RegisterCallback subscribes cb to changes of exactly the given settings.
// Calling it again for the same callback adds to its set of IDs.
func (r *Registry) RegisterCallback(cb SettingCallback, ids []string) {
	seen := make(map[string]struct{}, len(ids))
	subs := make([]*notify.Subscription, 0, len(ids))

	for _, id := range ids {
		id := id // per-iteration copy; go.mod targets go1.21 loop semantics
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		subs = append(subs, r.notifier.SubscribeID(id, func(change notify.Change) {
			if change.Type != notify.ChangeSet || change.ID != id {
				return
			}
			if s, ok := change.NewValue.(*Setting); ok {
				cb.OnSettingChanged(s)
			}
		}))
	}

	r.subMu.Lock()
	r.callbacks[cb] = append(r.callbacks[cb], subs...)
	r.subMu.Unlock()
}

// UnregisterCallback removes every subscription held by cb.
func (r *Registry) UnregisterCallback(cb SettingCallback) {
	r.subMu.Lock()
	subs := r.callbacks[cb]
	delete(r.callbacks, cb)
	r.subMu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
}

// RegisterIntegerOptionsFiller makes fn available under name for settings
// whose OptionsFiller refers to it.
func (r *Registry) RegisterIntegerOptionsFiller(name string, fn IntegerOptionsFiller) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fillers[name] = fn
}

// RegisterVisibilityCondition makes fn available under name for settings
// whose Visibility refers to it.
func (r *Registry) RegisterVisibilityCondition(name string, fn VisibilityCondition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conditions[name] = fn
}

// Options runs the options filler of an integer setting and returns the
// list together with the value to preselect.
func (r *Registry) Options(id string, data any) ([]IntegerOption, int, error) {
	r.mu.RLock()
	s, ok := r.settings[id]
	var fn IntegerOptionsFiller
	var snap *Setting
	if ok {
		fn = r.fillers[s.OptionsFiller]
		snap = s.Clone(id)
	}
	r.mu.RUnlock()

	if !ok {
		return nil, 0, fmt.Errorf("%w: %s", ErrSettingNotFound, id)
	}
	if snap.OptionsFiller == "" || fn == nil {
		return nil, 0, fmt.Errorf("%w: %s", ErrNoOptionsFiller, id)
	}

	current, _ := snap.Value().Int()
	var list []IntegerOption
	fn(snap, &list, &current, data)
	return list, current, nil
}

// IsVisible evaluates the visibility condition of a setting. Settings
// without a condition, or whose condition is not registered, are visible.
// Unknown settings are not.
func (r *Registry) IsVisible(id string, data any) bool {
	r.mu.RLock()
	s, ok := r.settings[id]
	var fn VisibilityCondition
	var snap *Setting
	if ok {
		fn = r.conditions[s.Visibility]
		snap = s.Clone(id)
	}
	r.mu.RUnlock()

	if !ok {
		return false
	}
	if snap.Visibility == "" || fn == nil {
		return true
	}
	return fn(snap.Visibility, "", snap, data)
}

// apply validates and stores value, returning the previous value and a
// clone of the updated setting.
func (r *Registry) apply(id string, value Value) (Value, *Setting, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.settings[id]
	if !ok {
		return Value{}, nil, false, fmt.Errorf("%w: %s", ErrSettingNotFound, id)
	}
	if err := s.Validate(value); err != nil {
		return Value{}, nil, false, err
	}
	if s.value == value {
		return s.value, nil, false, nil
	}

	old := s.value
	s.value = value
	return old, s.Clone(id), true, nil
}

func (r *Registry) typeOf(id string) (SettingType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.settings[id]
	if !ok {
		return 0, false
	}
	return s.Type, true
}

// defaultOrZero substitutes the zero value of typ for a nil default.
func defaultOrZero(typ SettingType, def any) any {
	if def != nil {
		return def
	}
	switch typ {
	case TypeBool:
		return false
	case TypeInt:
		return 0
	default:
		return ""
	}
}

func withID(err error, id string) error {
	var te *TypeError
	if errors.As(err, &te) && te.ID == "" {
		te.ID = id
	}
	return err
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
