package vm

import (
	"sync"

	"golang.org/x/exp/slices"

	"github.com/GhostKellz/ghostlang-sub000/value"
)

// GlobalStore is a name-keyed value map shared by every frame that
// resolves against it. Two instances exist per Machine: one scoped to the
// engine (host-registered functions/modules, shared across every script)
// and one scoped to a single Script (assignments a running script makes,
// preserved across repeated Run calls per spec's Script lifecycle).
type GlobalStore struct {
	mu sync.RWMutex
	m  map[string]value.Value
}

func NewGlobalStore() *GlobalStore {
	return &GlobalStore{m: make(map[string]value.Value)}
}

func (g *GlobalStore) Get(name string) (value.Value, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	v, ok := g.m[name]
	return v, ok
}

func (g *GlobalStore) Set(name string, v value.Value) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.m[name] = v
}

func (g *GlobalStore) Has(name string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.m[name]
	return ok
}

// Keys returns a sorted snapshot of every bound name, for host
// introspection (engine.Script.GetGlobal callers enumerating state, debug
// dumps) where a stable order matters more than map iteration speed.
func (g *GlobalStore) Keys() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.m))
	for k := range g.m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
