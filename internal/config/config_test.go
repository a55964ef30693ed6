package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dshills/pvrsettings/internal/config/loader"
	"github.com/dshills/pvrsettings/internal/config/registry"
)

const testEnvPrefix = "PVRSETTINGS_CONFIG_TEST_"

type reloadCounter struct {
	n atomic.Int32
}

func (c *reloadCounter) OnSettingsLoaded() {
	c.n.Add(1)
}

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New()
	t.Cleanup(reg.Close)

	reg.MustRegister(registry.Setting{
		ID:      "pvrrecord.marginstart",
		Type:    registry.TypeInt,
		Default: 2,
		Minimum: registry.MinValue(0),
		Maximum: registry.MaxValue(180),
	})
	reg.MustRegister(registry.Setting{ID: "pvrrecord.marginend", Type: registry.TypeInt, Default: 10})
	reg.MustRegister(registry.Setting{ID: "pvrparental.enabled", Type: registry.TypeBool, Default: false})
	reg.MustRegister(registry.Setting{ID: "pvrparental.pin", Type: registry.TypeString, Default: ""})
	return reg
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func intValue(t *testing.T, reg *registry.Registry, id string) int {
	t.Helper()
	s := reg.Get(id)
	if s == nil {
		t.Fatalf("setting %s not registered", id)
	}
	v, ok := s.Value().Int()
	if !ok {
		t.Fatalf("setting %s is %v, not an integer", id, s.Value().Type())
	}
	return v
}

const testSettings = `
[pvrrecord]
marginstart = 5
marginend = 15

[pvrparental]
enabled = true
pin = "1234"

[[clients]]
name = "tvheadend"
enabled = true
priority = 10

[[clients]]
name = "mythtv"
enabled = false
`

func TestNewManager(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)

	m := NewManager(newTestRegistry(t))
	defer m.Close()

	want := filepath.Join(xdg, "pvrsettings", "settings.toml")
	if m.Path() != want {
		t.Errorf("Path() = %q, want %q", m.Path(), want)
	}
	if m.envPrefix != loader.DefaultEnvPrefix {
		t.Errorf("envPrefix = %q, want %q", m.envPrefix, loader.DefaultEnvPrefix)
	}
	if m.enableWatcher {
		t.Error("watcher enabled by default")
	}
}

func TestNewManager_WithOptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.toml")

	m := NewManager(newTestRegistry(t),
		WithPath(path),
		WithEnvPrefix("X_"),
		WithWatcher(true),
		WithLogger(nil),
		WithClientsHandler(nil),
	)
	defer m.Close()

	if m.Path() != path {
		t.Errorf("Path() = %q, want %q", m.Path(), path)
	}
	if m.envPrefix != "X_" {
		t.Errorf("envPrefix = %q, want X_", m.envPrefix)
	}
	if !m.enableWatcher {
		t.Error("enableWatcher = false, want true")
	}
	if m.logger == nil {
		t.Error("logger is nil")
	}
	if len(m.handlers) != 0 {
		t.Errorf("nil handler registered")
	}
}

func TestManager_Load(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	writeFile(t, path, testSettings)

	reg := newTestRegistry(t)
	counter := &reloadCounter{}
	reg.RegisterSettingsHandler(counter)

	var handled []map[string]any
	m := NewManager(reg,
		WithPath(path),
		WithEnvPrefix(testEnvPrefix),
		WithClientsHandler(func(entries []map[string]any) { handled = entries }),
	)
	defer m.Close()

	clients, err := m.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got := intValue(t, reg, "pvrrecord.marginstart"); got != 5 {
		t.Errorf("marginstart = %d, want 5", got)
	}
	if got := intValue(t, reg, "pvrrecord.marginend"); got != 15 {
		t.Errorf("marginend = %d, want 15", got)
	}
	if b, _ := reg.Get("pvrparental.enabled").Value().Bool(); !b {
		t.Error("pvrparental.enabled = false, want true")
	}
	if s, _ := reg.Get("pvrparental.pin").Value().Str(); s != "1234" {
		t.Errorf("pin = %q, want 1234", s)
	}

	if len(clients) != 2 {
		t.Fatalf("Load() returned %d clients, want 2", len(clients))
	}
	if clients[0]["name"] != "tvheadend" {
		t.Errorf("clients[0].name = %v", clients[0]["name"])
	}
	if len(handled) != 2 {
		t.Errorf("clients handler got %d entries, want 2", len(handled))
	}
	if len(m.Clients()) != 2 {
		t.Errorf("Clients() = %d entries, want 2", len(m.Clients()))
	}
	if counter.n.Load() != 1 {
		t.Errorf("reload notifications = %d, want 1", counter.n.Load())
	}
}

func TestManager_Load_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	writeFile(t, path, testSettings)
	t.Setenv(testEnvPrefix+"PVRRECORD_MARGINSTART", "30")
	t.Setenv(testEnvPrefix+"PARENTAL_PIN", "0000")

	reg := newTestRegistry(t)
	m := NewManager(reg, WithPath(path), WithEnvPrefix(testEnvPrefix))
	defer m.Close()

	if _, err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got := intValue(t, reg, "pvrrecord.marginstart"); got != 30 {
		t.Errorf("marginstart = %d, want 30 from environment", got)
	}
	if s, _ := reg.Get("pvrparental.pin").Value().Str(); s != "0000" {
		t.Errorf("pin = %q, want 0000 from environment", s)
	}
}

func TestManager_Load_MissingFile(t *testing.T) {
	reg := newTestRegistry(t)
	_ = reg.Set("pvrrecord.marginstart", registry.IntValue(60), "test")

	m := NewManager(reg,
		WithPath(filepath.Join(t.TempDir(), "missing.toml")),
		WithEnvPrefix(testEnvPrefix),
	)
	defer m.Close()

	clients, err := m.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if clients != nil {
		t.Errorf("clients = %v, want nil", clients)
	}
	if got := intValue(t, reg, "pvrrecord.marginstart"); got != 2 {
		t.Errorf("marginstart = %d, want default 2", got)
	}
}

func TestManager_Load_InvalidValuesKeepDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	writeFile(t, path, `
[pvrrecord]
marginstart = 500
marginend = "soon"
`)

	reg := newTestRegistry(t)
	m := NewManager(reg, WithPath(path), WithEnvPrefix(testEnvPrefix))
	defer m.Close()

	if _, err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := intValue(t, reg, "pvrrecord.marginstart"); got != 2 {
		t.Errorf("marginstart = %d, want default 2", got)
	}
	if got := intValue(t, reg, "pvrrecord.marginend"); got != 10 {
		t.Errorf("marginend = %d, want default 10", got)
	}
}

func TestManager_Load_Errors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		check   func(error) bool
	}{
		{
			name:    "parse error",
			content: "[pvrrecord\nmarginstart = 1\n",
			check: func(err error) bool {
				var perr *loader.ParseError
				return errors.As(err, &perr)
			},
		},
		{
			name:    "clients not tables",
			content: "clients = [1, 2]\n",
			check:   func(err error) bool { return errors.Is(err, ErrInvalidClients) },
		},
		{
			name:    "clients scalar",
			content: "clients = \"all\"\n",
			check:   func(err error) bool { return errors.Is(err, ErrInvalidClients) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".toml")
			writeFile(t, path, tt.content)

			reg := newTestRegistry(t)
			_ = reg.Set("pvrrecord.marginstart", registry.IntValue(60), "test")

			m := NewManager(reg, WithPath(path), WithEnvPrefix(testEnvPrefix))
			defer m.Close()

			_, err := m.Load(context.Background())
			if err == nil || !tt.check(err) {
				t.Fatalf("Load() error = %v", err)
			}
			if got := intValue(t, reg, "pvrrecord.marginstart"); got != 60 {
				t.Errorf("registry changed after failed load: marginstart = %d", got)
			}
		})
	}
}

func TestManager_Load_CanceledContext(t *testing.T) {
	m := NewManager(newTestRegistry(t), WithPath(filepath.Join(t.TempDir(), "s.toml")))
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := m.Load(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Load() error = %v, want context.Canceled", err)
	}
}

func TestManager_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	writeFile(t, path, testSettings)

	reg := newTestRegistry(t)
	m := NewManager(reg, WithPath(path), WithEnvPrefix(testEnvPrefix))
	defer m.Close()

	if _, err := m.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	writeFile(t, path, "[pvrrecord]\nmarginstart = 90\n")
	if err := m.Reload(); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	if got := intValue(t, reg, "pvrrecord.marginstart"); got != 90 {
		t.Errorf("marginstart = %d, want 90", got)
	}
	if got := intValue(t, reg, "pvrrecord.marginend"); got != 10 {
		t.Errorf("marginend = %d, want default 10 after removal from file", got)
	}
	if len(m.Clients()) != 0 {
		t.Errorf("Clients() = %v, want empty", m.Clients())
	}
}

func TestManager_Close(t *testing.T) {
	m := NewManager(newTestRegistry(t), WithPath(filepath.Join(t.TempDir(), "s.toml")))
	m.Close()
	m.Close()

	if _, err := m.Load(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Load() after Close error = %v, want ErrClosed", err)
	}
	if err := m.Reload(); !errors.Is(err, ErrClosed) {
		t.Errorf("Reload() after Close error = %v, want ErrClosed", err)
	}
	if err := m.Start(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Start() after Close error = %v, want ErrClosed", err)
	}
}

func TestManager_Start_WatcherDisabled(t *testing.T) {
	m := NewManager(newTestRegistry(t), WithPath(filepath.Join(t.TempDir(), "s.toml")))
	defer m.Close()

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if m.watcher != nil {
		t.Error("watcher created while disabled")
	}
}

func TestManager_Start_LiveReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	writeFile(t, path, testSettings)

	reg := newTestRegistry(t)

	var mu sync.Mutex
	var calls int
	m := NewManager(reg,
		WithPath(path),
		WithEnvPrefix(testEnvPrefix),
		WithWatcher(true),
		WithClientsHandler(func([]map[string]any) {
			mu.Lock()
			calls++
			mu.Unlock()
		}),
	)
	defer m.Close()

	if _, err := m.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	// Second Start is a no-op
	if err := m.Start(ctx); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}

	writeFile(t, path, "[pvrrecord]\nmarginstart = 120\n")

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && intValue(t, reg, "pvrrecord.marginstart") != 120 {
		time.Sleep(20 * time.Millisecond)
	}
	if got := intValue(t, reg, "pvrrecord.marginstart"); got != 120 {
		t.Fatalf("marginstart = %d after file change, want 120", got)
	}

	mu.Lock()
	defer mu.Unlock()
	if calls < 2 {
		t.Errorf("clients handler called %d times, want at least 2", calls)
	}
}

func TestExtractClients(t *testing.T) {
	values := map[string]any{
		"clients": []map[string]any{{"name": "a"}},
		"epg":     map[string]any{"daystodisplay": 3},
	}

	entries, err := extractClients(values)
	if err != nil {
		t.Fatalf("extractClients() error = %v", err)
	}
	if len(entries) != 1 || entries[0]["name"] != "a" {
		t.Errorf("entries = %v", entries)
	}
	if _, ok := values["clients"]; ok {
		t.Error("clients key not removed")
	}
	if _, ok := values["epg"]; !ok {
		t.Error("unrelated key removed")
	}

	entries, err = extractClients(nil)
	if err != nil || entries != nil {
		t.Errorf("extractClients(nil) = %v, %v", entries, err)
	}
}
