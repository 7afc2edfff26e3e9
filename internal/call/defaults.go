package call

import (
	"errors"
	"fmt"
	"sync"
)

// ErrMissingDefault reports a required setting absent from both the explicit
// arguments and the stored defaults of a section. Fatal to that action.
var ErrMissingDefault = errors.New("missing default setting")

// Sections with stored defaults.
const (
	SectionListen      = "listen"
	SectionRandomSound = "random_sound"
)

// Defaults stores per-section fallback settings, the source of timing values
// a listen or random_sound call does not pass explicitly.
type Defaults struct {
	mu       sync.RWMutex
	sections map[string]map[string]int
}

func NewDefaults() *Defaults {
	return &Defaults{sections: make(map[string]map[string]int)}
}

// SetSection merges values into a section, overwriting existing keys.
func (d *Defaults) SetSection(section string, values map[string]int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	current, ok := d.sections[section]
	if !ok {
		current = make(map[string]int, len(values))
		d.sections[section] = current
	}
	for k, v := range values {
		current[k] = v
	}
}

// Set stores a single key in a section.
func (d *Defaults) Set(section, key string, value int) {
	d.SetSection(section, map[string]int{key: value})
}

// Section returns a copy of a section's settings.
func (d *Defaults) Section(section string) map[string]int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]int, len(d.sections[section]))
	for k, v := range d.sections[section] {
		out[k] = v
	}
	return out
}

// Int returns one required setting, or ErrMissingDefault naming the section
// and key.
func (d *Defaults) Int(section, key string) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.sections[section][key]
	if !ok {
		return 0, fmt.Errorf("%w: %s.%s", ErrMissingDefault, section, key)
	}
	return v, nil
}
