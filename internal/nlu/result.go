package nlu

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Result accumulates the output of one recognition session: the corrected
// utterance text plus every entity and intent found so far. A live session
// mutates it append-only; once Freeze is called the handle is read-only and
// later merge calls are dropped.
type Result struct {
	mu        sync.RWMutex
	frozen    bool
	utterance string
	hasText   bool
	entities  map[string]string
	intents   map[string]string
}

func NewResult() *Result {
	return &Result{
		entities: make(map[string]string),
		intents:  make(map[string]string),
	}
}

// Empty reports whether nothing was recognized at all: no entities, no
// intents and no utterance. Routing logic branches on this to tell a NULL
// outcome from a DEFAULT one.
func (r *Result) Empty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return !r.hasText && len(r.entities) == 0 && len(r.intents) == 0
}

// Utterance returns the recognized text, if any.
func (r *Result) Utterance() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.utterance, r.hasText
}

// Entity returns the value of a recognized entity, or ok=false if the
// entity is absent. A present entity with value "false" is a meaningful
// signal, distinct from absence.
func (r *Result) Entity(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.entities[name]
	return v, ok
}

func (r *Result) Intent(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.intents[name]
	return v, ok
}

func (r *Result) HasEntity(name string) bool {
	_, ok := r.Entity(name)
	return ok
}

func (r *Result) HasIntent(name string) bool {
	_, ok := r.Intent(name)
	return ok
}

func (r *Result) HasEntities() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entities) > 0
}

func (r *Result) HasIntents() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.intents) > 0
}

// Entities returns a copy of the entity mapping.
func (r *Result) Entities() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.entities))
	for k, v := range r.entities {
		out[k] = v
	}
	return out
}

// Intents returns a copy of the intent mapping.
func (r *Result) Intents() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.intents))
	for k, v := range r.intents {
		out[k] = v
	}
	return out
}

// SetUtterance records the corrected recognized text. Dropped after Freeze.
func (r *Result) SetUtterance(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return
	}
	r.utterance = text
	r.hasText = true
}

// MergeEntities adds recognized entities. Existing keys may be refined but
// never removed. Dropped after Freeze.
func (r *Result) MergeEntities(entities map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return
	}
	for k, v := range entities {
		r.entities[k] = v
	}
}

// MergeIntents adds recognized intents, same semantics as MergeEntities.
func (r *Result) MergeIntents(intents map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return
	}
	for k, v := range intents {
		r.intents[k] = v
	}
}

// Merge folds another result into this one, append-only.
func (r *Result) Merge(other *Result) {
	if other == nil {
		return
	}
	if text, ok := other.Utterance(); ok {
		r.SetUtterance(text)
	}
	r.MergeEntities(other.Entities())
	r.MergeIntents(other.Intents())
}

// Freeze makes the result read-only. Called by the listen session when the
// scope closes; a frozen handle is what unit logic receives.
func (r *Result) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Dump returns the merged entity/intent mapping for logging. Entities win
// over an intent with the same name.
func (r *Result) Dump() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.entities)+len(r.intents))
	for k, v := range r.intents {
		out[k] = v
	}
	for k, v := range r.entities {
		out[k] = v
	}
	return out
}

// DumpJSON renders Dump as JSON with lexicographically sorted keys.
func (r *Result) DumpJSON() string {
	data, err := json.Marshal(r.Dump())
	if err != nil {
		return "{}"
	}
	return string(data)
}

func (r *Result) String() string {
	text, _ := r.Utterance()
	keys := make([]string, 0)
	for k := range r.Dump() {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return fmt.Sprintf("utterance=%q found=[%s]", text, strings.Join(keys, ","))
}
