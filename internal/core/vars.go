package core

import (
	"context"
	"sort"
	"sync"
)

// Vars is a shared variable namespace. Safe for concurrent use.
type Vars struct {
	mu   sync.RWMutex
	data map[string]any
}

func NewVars() *Vars {
	return &Vars{data: make(map[string]any)}
}

func (v *Vars) Get(key string) (any, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	val, ok := v.data[key]
	return val, ok
}

func (v *Vars) Set(key string, value any) {
	v.mu.Lock()
	v.data[key] = value
	v.mu.Unlock()
}

func (v *Vars) Delete(key string) {
	v.mu.Lock()
	delete(v.data, key)
	v.mu.Unlock()
}

// Keys returns the variable names in sorted order.
func (v *Vars) Keys() []string {
	v.mu.RLock()
	keys := make([]string, 0, len(v.data))
	for k := range v.data {
		keys = append(keys, k)
	}
	v.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Snapshot returns a copy of all variables.
func (v *Vars) Snapshot() map[string]any {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make(map[string]any, len(v.data))
	for k, val := range v.data {
		out[k] = val
	}
	return out
}

// Context key for passing the activity alias to adapters.
type contextKey string

const aliasContextKey contextKey = "alias"

func ContextWithAlias(ctx context.Context, alias string) context.Context {
	return context.WithValue(ctx, aliasContextKey, alias)
}

func AliasFromContext(ctx context.Context) string {
	if alias, ok := ctx.Value(aliasContextKey).(string); ok {
		return alias
	}
	return ""
}
