// Package pass implements spec.md §4.3's pass framework: the three
// pass categories (Analysis, Transform, Utility), a per-function
// memoized analysis cache with dirty-bit invalidation, a type-keyed
// singleton registry for stateless pass instances, and the fixed O0/O1
// pipeline combinator. It has no concept of MIR semantics itself —
// internal/analysis and internal/transform supply the concrete
// passes; this package only supplies the scheduling machinery, the
// way kanso's internal/ir/optimizations.go separates
// OptimizationPipeline (scheduling) from the concrete passes it runs.
package pass

import "sysyc/internal/mir"

// Analysis is a read-only, memoized pass. Compute is only invoked
// when the manager has no cached result for f, or f has been marked
// dirty for this analysis's name (directly, or transitively through
// DependsOn's reverse edges).
type Analysis interface {
	Name() string
	// DependsOn names the analyses this one reads. The manager wires
	// the reverse edge at registration time, so invalidating a
	// dependency (e.g. "cfg") also invalidates this analysis (e.g.
	// "dominance"), which in turn invalidates anything depending on
	// IT (e.g. "loops") — spec.md §4.3's "CFG dirty ⇒ Dominance dirty
	// ⇒ Loops dirty" chain, generalized to arbitrary depth.
	DependsOn() []string
	Compute(m *mir.Module, f *mir.Function, mgr *Manager) any
}

// Transform mutates the module. It is responsible for invalidating
// whatever analyses it touches via mgr.SetDirty as it makes changes —
// the framework cannot infer this safely on the transform's behalf,
// since only the transform knows whether it altered control flow,
// only values, or nothing at all.
type Transform interface {
	Name() string
	Run(m *mir.Module, mgr *Manager) bool // reports whether it changed anything
}

// Utility is side-effecting (e.g. dumping MIR text) but never mutates
// the module and never needs to invalidate anything.
type Utility interface {
	Name() string
	Run(m *mir.Module, mgr *Manager)
}

// Manager owns one Module's analysis cache and dirty state for the
// duration of a pipeline run. A Manager is not reused across modules:
// spec.md §9 retires the Module singleton, and the Manager follows
// the same explicit-not-global discipline.
type Manager struct {
	Module *mir.Module
	Level  Level

	cache      map[string]map[*mir.Function]any
	dirty      map[string]map[*mir.Function]bool
	dependents map[string][]string // analysis name -> names that must also be invalidated
	registered map[string]bool
}

func NewManager(m *mir.Module, level Level) *Manager {
	return &Manager{
		Module:     m,
		Level:      level,
		cache:      map[string]map[*mir.Function]any{},
		dirty:      map[string]map[*mir.Function]bool{},
		dependents: map[string][]string{},
		registered: map[string]bool{},
	}
}

// Register wires an analysis's dependency edges into the manager's
// invalidation graph. Idempotent: registering the same analysis name
// twice is a no-op. Passes should call this once, lazily, the first
// time they are asked to compute a result (see GetAnalysisResult).
func (mgr *Manager) Register(a Analysis) {
	name := a.Name()
	if mgr.registered[name] {
		return
	}
	mgr.registered[name] = true
	for _, dep := range a.DependsOn() {
		mgr.dependents[dep] = append(mgr.dependents[dep], name)
	}
}

// GetAnalysisResult returns a's memoized result for f, recomputing it
// only if absent or dirty.
func (mgr *Manager) GetAnalysisResult(a Analysis, f *mir.Function) any {
	mgr.Register(a)
	name := a.Name()

	if mgr.cache[name] == nil {
		mgr.cache[name] = map[*mir.Function]any{}
	}
	if !mgr.isDirty(name, f) {
		if v, ok := mgr.cache[name][f]; ok {
			return v
		}
	}

	v := a.Compute(mgr.Module, f, mgr)
	mgr.cache[name][f] = v
	mgr.clearDirty(name, f)
	return v
}

// SetDirty marks name's result for f stale and cascades to every
// analysis that (transitively) depends on name.
func (mgr *Manager) SetDirty(name string, f *mir.Function) {
	if mgr.dirty[name] == nil {
		mgr.dirty[name] = map[*mir.Function]bool{}
	}
	if mgr.dirty[name][f] {
		return // already dirty; dependents were already cascaded
	}
	mgr.dirty[name][f] = true
	for _, dep := range mgr.dependents[name] {
		mgr.SetDirty(dep, f)
	}
}

// InvalidateCFG is the common case a control-flow-mutating transform
// reaches for: marking "cfg" dirty cascades to "dominance" and "loops"
// through the registered dependency edges.
func (mgr *Manager) InvalidateCFG(f *mir.Function) {
	mgr.SetDirty("cfg", f)
}

// InvalidateAll marks every registered analysis dirty for f; used by
// transforms whose effects are too broad to characterize precisely
// (e.g. inlining, which rewrites both caller and callee).
func (mgr *Manager) InvalidateAll(f *mir.Function) {
	for name := range mgr.registered {
		mgr.SetDirty(name, f)
	}
}

func (mgr *Manager) isDirty(name string, f *mir.Function) bool {
	m := mgr.dirty[name]
	if m == nil {
		return false
	}
	return m[f]
}

func (mgr *Manager) clearDirty(name string, f *mir.Function) {
	if mgr.dirty[name] != nil {
		delete(mgr.dirty[name], f)
	}
}
