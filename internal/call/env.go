package call

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Env is the call-scoped environment table. Values are limited to the kinds
// the dialog-stats pipeline can serialize: string, int, float64, bool and
// time.Time.
type Env struct {
	mu   sync.RWMutex
	vars map[string]any
}

func NewEnv() *Env {
	return &Env{vars: make(map[string]any)}
}

// Get returns the value stored under key.
func (e *Env) Get(key string) (any, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.vars[key]
	return v, ok
}

// GetString returns the value under key when it is a string.
func (e *Env) GetString(key string) (string, bool) {
	v, ok := e.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetInt returns the value under key when it is an int.
func (e *Env) GetInt(key string) (int, bool) {
	v, ok := e.Get(key)
	if !ok {
		return 0, false
	}
	n, ok := v.(int)
	return n, ok
}

// GetAll returns a copy of every variable.
func (e *Env) GetAll() map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]any, len(e.vars))
	for k, v := range e.vars {
		out[k] = v
	}
	return out
}

// Keys returns every variable name in sorted order.
func (e *Env) Keys() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	keys := make([]string, 0, len(e.vars))
	for k := range e.vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Set stores one variable. A nil value deletes the key.
func (e *Env) Set(key string, value any) error {
	if value == nil {
		e.Delete(key)
		return nil
	}
	if !allowedEnvValue(value) {
		return fmt.Errorf("env %q: unsupported value type %T", key, value)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vars[key] = value
	return nil
}

// SetMany stores several variables. Fails on the first unsupported value
// without applying the rest.
func (e *Env) SetMany(values map[string]any) error {
	for k, v := range values {
		if v == nil {
			continue
		}
		if !allowedEnvValue(v) {
			return fmt.Errorf("env %q: unsupported value type %T", k, v)
		}
	}
	for k, v := range values {
		if err := e.Set(k, v); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes a variable. Removing an absent key is a no-op.
func (e *Env) Delete(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.vars, key)
}

func allowedEnvValue(v any) bool {
	switch v.(type) {
	case string, int, float64, bool, time.Time:
		return true
	default:
		return false
	}
}
