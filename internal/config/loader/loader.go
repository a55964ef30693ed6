// Package loader reads raw setting values from TOML files and environment
// variables.
//
// Loaders return maps of raw values; converting them to each setting's
// declared kind is left to the registry.
package loader

// Source is anything that produces raw setting values.
// A missing source returns nil, nil.
type Source interface {
	Load() (map[string]any, error)
}

// Overlay flattens each layer and applies them in order, later layers
// overriding earlier ones.
func Overlay(layers ...map[string]any) map[string]any {
	out := make(map[string]any)
	for _, layer := range layers {
		for id, v := range Flatten(layer) {
			out[id] = v
		}
	}
	return out
}

var (
	_ Source = (*TOMLLoader)(nil)
	_ Source = (*EnvLoader)(nil)
)
