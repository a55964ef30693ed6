package loader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/pelletier/go-toml/v2"
)

// IncludeKey names the top-level key listing files merged beneath a settings file.
const IncludeKey = "@include"

// ErrIncludeDepthExceeded indicates too many nested includes.
var ErrIncludeDepthExceeded = errors.New("include depth exceeded")

// TOMLLoader reads a settings file and the files it includes.
type TOMLLoader struct {
	path string
}

// NewTOMLLoader creates a loader for the settings file at path.
func NewTOMLLoader(path string) *TOMLLoader {
	return &TOMLLoader{path: path}
}

// Path returns the settings file path.
func (l *TOMLLoader) Path() string {
	return l.path
}

// Load reads the settings file without following includes.
// A missing file yields nil, nil.
func (l *TOMLLoader) Load() (map[string]any, error) {
	return readTable(l.path)
}

// LoadWithIncludes reads path and merges the files listed under IncludeKey
// beneath it, so values in path win. Relative includes resolve against the
// including file's directory. maxDepth bounds the include chain.
func (l *TOMLLoader) LoadWithIncludes(path string, maxDepth int) (map[string]any, error) {
	if maxDepth <= 0 {
		return nil, fmt.Errorf("%w for %s", ErrIncludeDepthExceeded, path)
	}

	table, err := readTable(path)
	if err != nil || table == nil {
		return table, err
	}

	includes, err := takeIncludes(table)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	for _, inc := range includes {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(path), inc)
		}

		base, err := l.LoadWithIncludes(inc, maxDepth-1)
		if err != nil {
			return nil, fmt.Errorf("loading include %s: %w", inc, err)
		}
		table = mergeTables(base, table)
	}

	return table, nil
}

// readTable decodes the TOML file at path. A missing file yields nil, nil.
func readTable(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading settings file %s: %w", path, err)
	}

	var table map[string]any
	if err := toml.Unmarshal(data, &table); err != nil {
		perr := &ParseError{Path: path, Message: err.Error(), Err: err}
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			perr.Line, perr.Column = derr.Position()
		}
		return nil, perr
	}
	return table, nil
}

// takeIncludes removes IncludeKey from table and returns the listed paths.
func takeIncludes(table map[string]any) ([]string, error) {
	raw, ok := table[IncludeKey]
	if !ok {
		return nil, nil
	}
	delete(table, IncludeKey)

	switch v := raw.(type) {
	case string:
		return []string{v}, nil
	case []any:
		paths := make([]string, 0, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s[%d] is %T, want string", IncludeKey, i, item)
			}
			paths = append(paths, s)
		}
		return paths, nil
	default:
		return nil, fmt.Errorf("%s is %T, want string or array of strings", IncludeKey, raw)
	}
}

// ParseError reports a settings file that is not valid TOML.
type ParseError struct {
	Path    string
	Line    int
	Column  int
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse error in %s at %d:%d: %s", e.Path, e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("parse error in %s: %s", e.Path, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// mergeTables copies over into base, descending into tables present in
// both. Anything else in over replaces base. base is modified and returned.
func mergeTables(base, over map[string]any) map[string]any {
	if base == nil {
		base = make(map[string]any, len(over))
	}

	for key, v := range over {
		sub, isTable := v.(map[string]any)
		baseSub, baseIsTable := base[key].(map[string]any)
		if isTable && baseIsTable {
			base[key] = mergeTables(baseSub, sub)
			continue
		}
		base[key] = v
	}

	return base
}

// Flatten converts nested tables into a flat map keyed by dot-separated
// identifiers. Arrays and scalar values are leaves.
//
//	{"pvrrecord": {"marginstart": 2}} => {"pvrrecord.marginstart": 2}
func Flatten(src map[string]any) map[string]any {
	out := make(map[string]any)
	flattenInto(out, "", src)
	return out
}

func flattenInto(out map[string]any, prefix string, src map[string]any) {
	keys := make([]string, 0, len(src))
	for k := range src {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		id := k
		if prefix != "" {
			id = prefix + "." + k
		}
		if nested, ok := src[k].(map[string]any); ok {
			flattenInto(out, id, nested)
			continue
		}
		out[id] = src[k]
	}
}
