package pass

import (
	"reflect"
	"sync"
)

// Create is spec.md §4.3's "global registry create<T>() returning the
// singleton instance of pass class T", translated from a C++ template
// to a Go generic function: every concrete pass type (e.g.
// transform.Mem2Reg) is itself the state-free receiver for its Run
// method, so one shared *T per process is sufficient and avoids
// allocating a fresh pass object every time the pipeline references
// it by type. Grounded directly on spec.md's wording; there is no
// third-party library for this in the teacher or the pack (a
// reflect-keyed singleton map over generics is a language feature, not
// a dependency concern), so it stays on the standard library.
var (
	registryMu sync.Mutex
	registry   = map[reflect.Type]any{}
)

func Create[T any]() *T {
	t := reflect.TypeOf((*T)(nil)).Elem()

	registryMu.Lock()
	defer registryMu.Unlock()

	if v, ok := registry[t]; ok {
		return v.(*T)
	}
	inst := new(T)
	registry[t] = inst
	return inst
}
