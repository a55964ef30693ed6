package loader

import (
	"os"
	"strings"
)

// DefaultEnvPrefix is the prefix of environment variables that override settings.
const DefaultEnvPrefix = "PVRSETTINGS_"

// EnvLoader loads setting overrides from environment variables.
//
// Values are returned as strings; conversion to each setting's declared
// kind happens in the registry.
type EnvLoader struct {
	prefix  string            // Environment variable prefix (e.g., "PVRSETTINGS_")
	mapping map[string]string // Env var -> setting ID
	environ func() []string
}

// NewEnvLoader creates a new environment variable loader.
// The prefix should include the trailing underscore (e.g., "PVRSETTINGS_").
func NewEnvLoader(prefix string) *EnvLoader {
	return &EnvLoader{
		prefix:  prefix,
		mapping: defaultEnvMapping(prefix),
		environ: os.Environ,
	}
}

// defaultEnvMapping returns short aliases for frequently overridden settings.
func defaultEnvMapping(prefix string) map[string]string {
	return map[string]string{
		prefix + "PARENTAL_PIN":   "pvrparental.pin",
		prefix + "MARGIN_START":   "pvrrecord.marginstart",
		prefix + "MARGIN_END":     "pvrrecord.marginend",
		prefix + "ICON_PATH":      "pvrmenu.iconpath",
		prefix + "EPG_DAYS":       "epg.daystodisplay",
		prefix + "PREFER_BACKEND": "pvrmanager.usebackendchannelnumbers",
	}
}

// Load reads environment variables and returns a flat map of setting IDs
// to raw string values. Empty values are kept.
func (l *EnvLoader) Load() (map[string]any, error) {
	config := make(map[string]any)

	for _, env := range l.environ() {
		name, value, ok := strings.Cut(env, "=")
		if !ok || !strings.HasPrefix(name, l.prefix) {
			continue
		}

		if id, mapped := l.mapping[name]; mapped {
			config[id] = value
			continue
		}

		if id := l.envToID(name); id != "" {
			// An explicit mapping for the same ID wins.
			if _, exists := config[id]; !exists {
				config[id] = value
			}
		}
	}

	return config, nil
}

// envToID converts PVRSETTINGS_PVRRECORD_MARGINSTART to pvrrecord.marginstart.
// The first underscore separates the section; later ones are kept.
func (l *EnvLoader) envToID(env string) string {
	name := strings.ToLower(strings.TrimPrefix(env, l.prefix))
	if name == "" {
		return ""
	}

	section, rest, ok := strings.Cut(name, "_")
	if !ok || rest == "" {
		return section
	}
	return section + "." + rest
}
