package input

import (
	"sort"
	"strings"
)

// DefaultBlockedCombos are key chords the host refuses to inject.
var DefaultBlockedCombos = [][]string{
	{"ctrl", "alt", "delete"},
	{"win", "r"},
	{"ctrl", "shift", "esc"},
	{"alt", "f4"},
}

// ComboFilter tracks keys held down through the injector and refuses
// a press that would complete a blocked chord.
type ComboFilter struct {
	combos [][]string
	held   map[string]bool
}

// NewComboFilter returns a filter for combos.  A nil or empty list
// blocks nothing.
func NewComboFilter(combos [][]string) *ComboFilter {
	return &ComboFilter{combos: combos, held: make(map[string]bool)}
}

// Press reports whether name may be pressed now, and records it as
// held if so.
func (f *ComboFilter) Press(name string) (ok bool, blocked string) {
	for _, combo := range f.combos {
		if f.completes(combo, name) {
			return false, formatCombo(combo)
		}
	}
	f.held[name] = true
	return true, ""
}

// Release records name as no longer held.
func (f *ComboFilter) Release(name string) { delete(f.held, name) }

// completes reports whether pressing name while the current keys are
// held would leave every key of combo down.
func (f *ComboFilter) completes(combo []string, name string) bool {
	hit := false
	for _, k := range combo {
		switch {
		case k == name:
			hit = true
		case !f.held[k]:
			return false
		}
	}
	return hit
}

func formatCombo(combo []string) string {
	keys := append([]string(nil), combo...)
	sort.Strings(keys)
	return strings.Join(keys, "+")
}
