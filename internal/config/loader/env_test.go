package loader

import (
	"testing"
)

func newTestEnvLoader(prefix string, env ...string) *EnvLoader {
	l := NewEnvLoader(prefix)
	l.environ = func() []string { return env }
	return l
}

func TestEnvLoader_Load(t *testing.T) {
	loader := newTestEnvLoader(DefaultEnvPrefix,
		"PVRSETTINGS_PARENTAL_PIN=0000",
		"PVRSETTINGS_MARGIN_START=15",
		"PVRSETTINGS_EPG_HIDENOINFOAVAILABLE=yes",
		"HOME=/root",
	)

	config, err := loader.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	tests := []struct {
		id   string
		want string
	}{
		{"pvrparental.pin", "0000"},
		{"pvrrecord.marginstart", "15"},
		{"epg.hidenoinfoavailable", "yes"},
	}

	for _, tt := range tests {
		if got := config[tt.id]; got != tt.want {
			t.Errorf("%s = %v, want %q", tt.id, got, tt.want)
		}
	}

	if len(config) != len(tests) {
		t.Errorf("Load() returned %d values, want %d: %v", len(config), len(tests), config)
	}
}

func TestEnvLoader_MappedWinsOverDerived(t *testing.T) {
	for _, env := range [][]string{
		{"PVRSETTINGS_PVRPARENTAL_PIN=derived", "PVRSETTINGS_PARENTAL_PIN=mapped"},
		{"PVRSETTINGS_PARENTAL_PIN=mapped", "PVRSETTINGS_PVRPARENTAL_PIN=derived"},
	} {
		config, _ := newTestEnvLoader(DefaultEnvPrefix, env...).Load()
		if got := config["pvrparental.pin"]; got != "mapped" {
			t.Errorf("env %v: pin = %v, want 'mapped'", env, got)
		}
	}
}

func TestEnvLoader_EmptyValueKept(t *testing.T) {
	config, _ := newTestEnvLoader(DefaultEnvPrefix, "PVRSETTINGS_ICON_PATH=").Load()

	val, ok := config["pvrmenu.iconpath"]
	if !ok || val != "" {
		t.Errorf("iconpath = %v, %v; want empty string", val, ok)
	}
}

func TestEnvLoader_envToID(t *testing.T) {
	loader := NewEnvLoader(DefaultEnvPrefix)

	tests := []struct {
		env      string
		expected string
	}{
		{"PVRSETTINGS_PVRRECORD_MARGINSTART", "pvrrecord.marginstart"},
		{"PVRSETTINGS_EPG_DAYSTODISPLAY", "epg.daystodisplay"},
		{"PVRSETTINGS_SIMPLE", "simple"},
		{"PVRSETTINGS_A_B_C", "a.b_c"},
		{"PVRSETTINGS_", ""},
	}

	for _, tt := range tests {
		got := loader.envToID(tt.env)
		if got != tt.expected {
			t.Errorf("envToID(%q) = %q, want %q", tt.env, got, tt.expected)
		}
	}
}
