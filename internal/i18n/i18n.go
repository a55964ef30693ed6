// Package i18n provides the numbered, localized string table used for
// setting labels and option lists.
package i18n

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// String identifiers.
const (
	// MinutesTemplate formats a duration in minutes ("%d min").
	MinutesTemplate uint32 = 14044
)

// defaultStrings is the built-in English table.
var defaultStrings = map[uint32]string{
	MinutesTemplate: "%d min",
}

// Strings is a localized string table backed by an x/text catalog.
// Lookups walk from the active language through its parents and fall back
// to English.
type Strings struct {
	mu      sync.RWMutex
	tag     language.Tag
	tables  map[language.Tag]map[uint32]string
	catalog *catalog.Builder
}

// New creates a string table for tag, preloaded with the English strings.
func New(tag language.Tag) *Strings {
	s := &Strings{
		tag:     tag,
		tables:  make(map[language.Tag]map[uint32]string),
		catalog: catalog.NewBuilder(catalog.Fallback(language.English)),
	}
	if err := s.Load(language.English, defaultStrings); err != nil {
		panic(fmt.Sprintf("i18n: built-in strings: %v", err))
	}
	return s
}

// Language returns the active language.
func (s *Strings) Language() language.Tag {
	return s.tag
}

// Load adds or replaces strings for tag. Strings the catalog rejects are
// left out and reported.
func (s *Strings) Load(tag language.Tag, strings map[uint32]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	table, ok := s.tables[tag]
	if !ok {
		table = make(map[uint32]string, len(strings))
		s.tables[tag] = table
	}

	var errs []error
	for id, str := range strings {
		if err := s.catalog.SetString(tag, key(id), str); err != nil {
			errs = append(errs, fmt.Errorf("string %d for %s: %w", id, tag, err))
			continue
		}
		table[id] = str
	}
	return errors.Join(errs...)
}

// Get returns the raw string for id, or "" if no table has it.
func (s *Strings) Get(id uint32) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	str, _, _ := s.resolve(id)
	return str
}

// Format renders the string id as a format template with args, using the
// active language's number formatting. Unknown ids render as "".
func (s *Strings) Format(id uint32, args ...any) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	template, exact, ok := s.resolve(id)
	if !ok {
		return ""
	}

	p := message.NewPrinter(s.tag, message.Catalog(s.catalog))
	if exact {
		return p.Sprintf(key(id), args...)
	}
	// The catalog has no message for the active language, so the
	// fallback string is the format.
	return p.Sprintf(template, args...)
}

// resolve finds id in the active language, its parents, then English.
// exact reports whether the active language itself holds it.
func (s *Strings) resolve(id uint32) (str string, exact, ok bool) {
	for tag := s.tag; ; tag = tag.Parent() {
		if str, ok := s.tables[tag][id]; ok {
			return str, tag == s.tag, true
		}
		if tag == language.Und {
			break
		}
	}
	str, ok = s.tables[language.English][id]
	return str, false, ok
}

// Title title-cases a display name in the active language.
func (s *Strings) Title(name string) string {
	return cases.Title(s.tag).String(name)
}

func key(id uint32) string {
	return "#" + strconv.FormatUint(uint64(id), 10)
}
