package registry

import (
	"errors"
	"sync"
	"testing"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()

	r := New()
	t.Cleanup(r.Close)

	r.MustRegister(Setting{ID: "pvrrecord.marginstart", Type: TypeInt, Default: 2, Minimum: MinValue(0), Maximum: MaxValue(180), Tags: []string{"pvr"}})
	r.MustRegister(Setting{ID: "pvrrecord.marginend", Type: TypeInt, Default: 10, Tags: []string{"pvr"}})
	r.MustRegister(Setting{ID: "pvrparental.enabled", Type: TypeBool, Default: false})
	r.MustRegister(Setting{ID: "pvrparental.pin", Type: TypeString, Default: ""})
	return r
}

type recordingHandler struct {
	mu      sync.Mutex
	loaded  int
	changed []*Setting
}

func (h *recordingHandler) OnSettingsLoaded() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.loaded++
}

func (h *recordingHandler) OnSettingChanged(s *Setting) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.changed = append(h.changed, s)
}

func (h *recordingHandler) counts() (int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.loaded, len(h.changed)
}

func TestRegistry_Register(t *testing.T) {
	r := New()
	defer r.Close()

	err := r.Register(Setting{
		ID:          "epg.daystodisplay",
		Type:        TypeInt,
		Default:     3,
		Description: "Days to display",
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	err = r.Register(Setting{ID: "epg.daystodisplay", Type: TypeInt})
	if !errors.Is(err, ErrSettingAlreadyRegistered) {
		t.Errorf("expected ErrSettingAlreadyRegistered, got %v", err)
	}
}

func TestRegistry_Register_InvalidDefault(t *testing.T) {
	r := New()
	defer r.Close()

	var te *TypeError
	err := r.Register(Setting{ID: "a", Type: TypeInt, Default: "three"})
	if !errors.As(err, &te) {
		t.Fatalf("expected TypeError, got %v", err)
	}
	if te.ID != "a" {
		t.Errorf("TypeError.ID = %q, want 'a'", te.ID)
	}

	var re *RangeError
	err = r.Register(Setting{ID: "b", Type: TypeInt, Default: 500, Maximum: MaxValue(10)})
	if !errors.As(err, &re) {
		t.Errorf("expected RangeError, got %v", err)
	}
}

func TestRegistry_Register_NilDefault(t *testing.T) {
	r := New()
	defer r.Close()

	r.MustRegister(Setting{ID: "b", Type: TypeBool})
	r.MustRegister(Setting{ID: "i", Type: TypeInt})
	r.MustRegister(Setting{ID: "s", Type: TypeString})

	if v := r.Get("b").Value(); v != BoolValue(false) {
		t.Errorf("b = %v", v)
	}
	if v := r.Get("i").Value(); v != IntValue(0) {
		t.Errorf("i = %v", v)
	}
	if v := r.Get("s").Value(); v != StringValue("") {
		t.Errorf("s = %v", v)
	}
}

func TestRegistry_MustRegister_Panics(t *testing.T) {
	r := New()
	defer r.Close()

	r.MustRegister(Setting{ID: "test.setting", Type: TypeString})

	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic for duplicate MustRegister")
		}
	}()

	r.MustRegister(Setting{ID: "test.setting", Type: TypeString})
}

func TestRegistry_Get(t *testing.T) {
	r := newTestRegistry(t)

	s := r.Get("pvrrecord.marginstart")
	if s == nil {
		t.Fatal("Get returned nil for registered setting")
	}
	if s.Value() != IntValue(2) {
		t.Errorf("value = %v, want 2", s.Value())
	}
	if !s.IsDefault() {
		t.Error("expected default value")
	}

	if r.Get("nonexistent") != nil {
		t.Error("Get should return nil for unknown setting")
	}

	// The returned setting is a clone.
	s.Tags[0] = "mutated"
	if r.Get("pvrrecord.marginstart").Tags[0] != "pvr" {
		t.Error("Get returned a shared setting")
	}
}

func TestRegistry_HasAllByTag(t *testing.T) {
	r := newTestRegistry(t)

	if !r.Has("pvrparental.pin") || r.Has("missing") {
		t.Error("Has returned unexpected results")
	}

	all := r.All()
	if len(all) != 4 {
		t.Fatalf("All() returned %d settings, want 4", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].ID > all[i].ID {
			t.Error("All() not sorted by ID")
		}
	}

	if got := len(r.ByTag("pvr")); got != 2 {
		t.Errorf("ByTag(pvr) returned %d settings, want 2", got)
	}
}

func TestRegistry_Set(t *testing.T) {
	r := newTestRegistry(t)
	h := &recordingHandler{}
	r.RegisterCallback(h, []string{"pvrrecord.marginstart"})

	if err := r.Set("pvrrecord.marginstart", IntValue(5), "test"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, changed := h.counts(); changed != 1 {
		t.Fatalf("callback called %d times, want 1", changed)
	}
	if h.changed[0].Value() != IntValue(5) {
		t.Errorf("callback got %v, want 5", h.changed[0].Value())
	}

	// Same value: no notification.
	if err := r.Set("pvrrecord.marginstart", IntValue(5), "test"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, changed := h.counts(); changed != 1 {
		t.Errorf("callback called for unchanged value")
	}

	// Not registered for this one.
	if err := r.Set("pvrrecord.marginend", IntValue(1), "test"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, changed := h.counts(); changed != 1 {
		t.Errorf("callback called for unrelated setting")
	}
}

func TestRegistry_Set_Errors(t *testing.T) {
	r := newTestRegistry(t)

	if err := r.Set("missing", IntValue(1), "test"); !errors.Is(err, ErrSettingNotFound) {
		t.Errorf("expected ErrSettingNotFound, got %v", err)
	}

	var te *TypeError
	if err := r.Set("pvrrecord.marginstart", BoolValue(true), "test"); !errors.As(err, &te) {
		t.Errorf("expected TypeError, got %v", err)
	}

	var re *RangeError
	if err := r.Set("pvrrecord.marginstart", IntValue(500), "test"); !errors.As(err, &re) {
		t.Errorf("expected RangeError, got %v", err)
	}

	if v := r.Get("pvrrecord.marginstart").Value(); v != IntValue(2) {
		t.Errorf("failed Set modified value: %v", v)
	}
}

func TestRegistry_SetRaw(t *testing.T) {
	r := newTestRegistry(t)

	if err := r.SetRaw("pvrparental.enabled", "true", "env"); err != nil {
		t.Fatalf("SetRaw failed: %v", err)
	}
	if v := r.Get("pvrparental.enabled").Value(); v != BoolValue(true) {
		t.Errorf("value = %v, want true", v)
	}

	var te *TypeError
	if err := r.SetRaw("pvrparental.enabled", 3, "env"); !errors.As(err, &te) || te.ID != "pvrparental.enabled" {
		t.Errorf("expected TypeError with ID, got %v", err)
	}
	if err := r.SetRaw("missing", 3, "env"); !errors.Is(err, ErrSettingNotFound) {
		t.Errorf("expected ErrSettingNotFound, got %v", err)
	}
}

func TestRegistry_Update(t *testing.T) {
	r := newTestRegistry(t)
	h := &recordingHandler{}
	r.RegisterCallback(h, []string{"pvrrecord.marginstart", "pvrrecord.marginend", "pvrparental.pin"})

	errs := r.Update(map[string]any{
		"pvrrecord.marginstart": int64(15),
		"pvrrecord.marginend":   10, // unchanged
		"pvrparental.pin":       1234,
		"unknown.setting":       true,
	}, "test")

	if len(errs) != 2 {
		t.Fatalf("Update returned %d errors, want 2: %v", len(errs), errs)
	}
	if _, changed := h.counts(); changed != 1 {
		t.Errorf("callback called %d times, want 1", changed)
	}
	if v := r.Get("pvrrecord.marginstart").Value(); v != IntValue(15) {
		t.Errorf("marginstart = %v, want 15", v)
	}
}

func TestRegistry_Load(t *testing.T) {
	r := newTestRegistry(t)
	h := &recordingHandler{}
	r.RegisterSettingsHandler(h)
	r.RegisterCallback(h, []string{"pvrrecord.marginstart"})

	_ = r.Set("pvrrecord.marginend", IntValue(60), "test")

	errs := r.Load(map[string]any{
		"pvrrecord.marginstart": int64(30),
		"pvrparental.enabled":   "yes-please",
		"not.registered":        1,
	}, "file")

	if len(errs) != 1 {
		t.Fatalf("Load returned %d errors, want 1: %v", len(errs), errs)
	}

	loaded, changed := h.counts()
	if loaded != 1 {
		t.Errorf("handler loaded %d times, want 1", loaded)
	}
	if changed != 0 {
		t.Errorf("Load should not emit per-setting changes, got %d", changed)
	}

	if v := r.Get("pvrrecord.marginstart").Value(); v != IntValue(30) {
		t.Errorf("marginstart = %v, want 30", v)
	}
	if v := r.Get("pvrrecord.marginend").Value(); v != IntValue(10) {
		t.Errorf("marginend should return to default, got %v", v)
	}
	if v := r.Get("pvrparental.enabled").Value(); v != BoolValue(false) {
		t.Errorf("invalid value should fall back to default, got %v", v)
	}
}

func TestRegistry_Reset(t *testing.T) {
	r := newTestRegistry(t)
	_ = r.Set("pvrparental.pin", StringValue("0000"), "test")

	r.Reset("test")

	if v := r.Get("pvrparental.pin").Value(); v != StringValue("") {
		t.Errorf("pin = %q after Reset", v)
	}
}

func TestRegistry_UnregisterSettingsHandler(t *testing.T) {
	r := newTestRegistry(t)
	h := &recordingHandler{}

	r.RegisterSettingsHandler(h)
	r.RegisterSettingsHandler(h)
	r.Reset("test")

	if loaded, _ := h.counts(); loaded != 1 {
		t.Fatalf("handler loaded %d times, want 1", loaded)
	}

	r.UnregisterSettingsHandler(h)
	r.Reset("test")

	if loaded, _ := h.counts(); loaded != 1 {
		t.Errorf("unregistered handler was notified")
	}

	// Unregistering twice is safe.
	r.UnregisterSettingsHandler(h)
}

func TestRegistry_UnregisterCallback(t *testing.T) {
	r := newTestRegistry(t)
	h := &recordingHandler{}

	r.RegisterCallback(h, []string{"pvrrecord.marginstart", "pvrrecord.marginstart"})
	_ = r.Set("pvrrecord.marginstart", IntValue(1), "test")

	if _, changed := h.counts(); changed != 1 {
		t.Fatalf("duplicate IDs should subscribe once, got %d calls", changed)
	}

	r.UnregisterCallback(h)
	_ = r.Set("pvrrecord.marginstart", IntValue(2), "test")

	if _, changed := h.counts(); changed != 1 {
		t.Errorf("unregistered callback was notified")
	}
}

func TestRegistry_Options(t *testing.T) {
	r := New()
	defer r.Close()

	r.MustRegister(Setting{ID: "pvrrecord.marginstart", Type: TypeInt, Default: 5, OptionsFiller: "margins"})
	r.MustRegister(Setting{ID: "plain", Type: TypeInt})
	r.MustRegister(Setting{ID: "dangling", Type: TypeInt, OptionsFiller: "nope"})

	r.RegisterIntegerOptionsFiller("margins", func(s *Setting, list *[]IntegerOption, current *int, data any) {
		*list = append(*list, IntegerOption{Label: "five", Value: 5}, IntegerOption{Label: "ten", Value: 10})
	})

	list, current, err := r.Options("pvrrecord.marginstart", nil)
	if err != nil {
		t.Fatalf("Options failed: %v", err)
	}
	if len(list) != 2 || current != 5 {
		t.Errorf("Options() = %v, %d", list, current)
	}

	if _, _, err := r.Options("plain", nil); !errors.Is(err, ErrNoOptionsFiller) {
		t.Errorf("expected ErrNoOptionsFiller, got %v", err)
	}
	if _, _, err := r.Options("dangling", nil); !errors.Is(err, ErrNoOptionsFiller) {
		t.Errorf("expected ErrNoOptionsFiller, got %v", err)
	}
	if _, _, err := r.Options("missing", nil); !errors.Is(err, ErrSettingNotFound) {
		t.Errorf("expected ErrSettingNotFound, got %v", err)
	}
}

func TestRegistry_IsVisible(t *testing.T) {
	r := New()
	defer r.Close()

	r.MustRegister(Setting{ID: "always", Type: TypeBool})
	r.MustRegister(Setting{ID: "hidden", Type: TypeBool, Visibility: "cond"})
	r.MustRegister(Setting{ID: "unbound", Type: TypeBool, Visibility: "other"})

	var gotCondition string
	r.RegisterVisibilityCondition("cond", func(condition, value string, s *Setting, data any) bool {
		gotCondition = condition
		return s.ID != "hidden"
	})

	if !r.IsVisible("always", nil) {
		t.Error("setting without condition should be visible")
	}
	if r.IsVisible("hidden", nil) {
		t.Error("condition should hide setting")
	}
	if gotCondition != "cond" {
		t.Errorf("condition = %q, want 'cond'", gotCondition)
	}
	if !r.IsVisible("unbound", nil) {
		t.Error("unregistered condition should be visible")
	}
	if r.IsVisible("missing", nil) {
		t.Error("unknown setting should not be visible")
	}
}

func TestRegistry_ConcurrentSet(t *testing.T) {
	r := newTestRegistry(t)
	h := &recordingHandler{}
	r.RegisterCallback(h, []string{"pvrrecord.marginstart", "pvrrecord.marginend"})

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = r.Set("pvrrecord.marginstart", IntValue(i), "test")
		}(i)
		go func(i int) {
			defer wg.Done()
			_ = r.Set("pvrrecord.marginend", IntValue(100+i), "test")
		}(i)
	}
	wg.Wait()

	if _, changed := h.counts(); changed == 0 {
		t.Error("expected change notifications")
	}
}
