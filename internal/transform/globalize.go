package transform

import (
	"sysyc/internal/analysis"
	"sysyc/internal/mir"
	"sysyc/internal/pass"
)

// GlobalVariableLocalize rematerializes a scalar global used only
// within a non-recursive main as a stack ALLOC plus an initializer
// STORE in main's entry block, then deletes the global (spec.md
// §4.8). A constant global is simpler still: every load is RAUW'd
// directly with its initializer value and no alloca is needed at all,
// since nothing in a non-recursive main can ever observe a write to a
// constant it never makes.
type GlobalVariableLocalize struct{}

func (GlobalVariableLocalize) Name() string { return "GlobalVariableLocalize" }

func (GlobalVariableLocalize) Run(m *mir.Module, mgr *pass.Manager) bool {
	return localizeGlobals(m, mgr, func(t *mir.Type) bool { return !t.IsArray() })
}

// GlobalArrayLocalize is GlobalVariableLocalize's array-typed sibling;
// the two are separate passes that the O1 pipeline runs back to back.
// Every array global it localizes, constant or not, gets a stack ALLOC
// plus one initializer STORE per flattened element.
type GlobalArrayLocalize struct{}

func (GlobalArrayLocalize) Name() string { return "GlobalArrayLocalize" }

func (GlobalArrayLocalize) Run(m *mir.Module, mgr *pass.Manager) bool {
	return localizeGlobals(m, mgr, func(t *mir.Type) bool { return t.IsArray() })
}

func localizeGlobals(m *mir.Module, mgr *pass.Manager, matches func(*mir.Type) bool) bool {
	main := m.Main
	if main == nil || main.Entry() == nil {
		return false
	}
	summaries := analysis.SummariesOf(mgr)
	if summaries.Of(main).IsRecursive {
		return false
	}

	anyChanged := false
	for _, g := range append([]*mir.GlobalVariable(nil), m.Globals...) {
		if !matches(g.ElemType()) || !usedOnlyIn(g, main) {
			continue
		}
		if g.IsConstant && !g.ElemType().IsArray() {
			localizeConstantGlobal(g)
		} else {
			localizeMutableGlobal(g, main)
		}
		m.DeleteGlobal(g)
		anyChanged = true
		mgr.SetDirty("cfg", main)
	}
	return anyChanged
}

func usedOnlyIn(g *mir.GlobalVariable, f *mir.Function) bool {
	if len(g.Users()) == 0 {
		return false
	}
	for _, u := range g.Users() {
		if u.User.GetBlock() == nil || u.User.GetBlock().Parent != f {
			return false
		}
	}
	return true
}

// localizeConstantGlobal rewrites every load of g directly to its
// scalar initializer constant, skipping the alloca entirely. Only
// direct loads are rewritten, so localizeGlobals calls it for scalar
// globals alone; a constant array global, reached through GEPs, takes
// the localizeMutableGlobal path instead.
func localizeConstantGlobal(g *mir.GlobalVariable) {
	flat := g.Init.Flatten()
	for _, u := range g.Users() {
		load := u.User
		if load.Op != mir.OpLoad {
			continue
		}
		val := flat[0]
		mir.ReplaceAllUsesWith(load, val)
		load.ClearOperands()
		load.GetBlock().RemoveInstruction(load)
	}
}

// localizeMutableGlobal gives g its own stack slot in main's entry
// block, seeded with a store of its initializer, and redirects every
// user of g to that slot instead.
func localizeMutableGlobal(g *mir.GlobalVariable, main *mir.Function) {
	entry := main.Entry()
	existing := len(entry.Instructions) - 1 // everything ahead of the terminator
	alloc := mir.NewAlloc(g.ValName(), g.ElemType(), nil)
	entry.InsertBeforeTerminator(alloc)

	if g.ElemType().IsArray() {
		storeInitializerArray(entry, alloc, g.ElemType(), g.Init)
	} else {
		st := mir.NewStore(alloc, g.Init.Scalar, nil)
		entry.InsertBeforeTerminator(st)
	}

	// The ALLOC and its STOREs were inserted just ahead of the
	// terminator; rotate them to the top of the block so they run
	// before any use of g already in the entry block.
	if existing > 0 {
		insts := entry.Instructions
		added := append([]*mir.Instruction(nil), insts[existing:len(insts)-1]...)
		entry.Instructions = append(append(added, insts[:existing]...), insts[len(insts)-1])
	}

	mir.ReplaceAllUsesWith(g, alloc)
}

// storeInitializerArray emits one STORE per flattened scalar of an
// array initializer, each addressed by a freshly built GEP off base.
// InsertBeforeTerminator always lands just ahead of the same
// terminator, so repeated calls preserve insertion order.
func storeInitializerArray(b *mir.Block, base mir.Value, t *mir.Type, init *mir.Initializer) {
	flat := init.Flatten()
	elemType := t.AtomicType()
	for i, c := range flat {
		gep := mir.NewGep("", base, decomposeFlatIndex(t, i), mir.Pointer(elemType), nil)
		b.InsertBeforeTerminator(gep)
		st := mir.NewStore(gep, c, nil)
		b.InsertBeforeTerminator(st)
	}
}

// decomposeFlatIndex turns a row-major flattened position into the
// per-dimension constant indices GEPFold/SROA expect: one index per
// array dimension consumed, matching consumeGepIndices' reverse walk.
func decomposeFlatIndex(t *mir.Type, flat int) []mir.Value {
	var indices []mir.Value
	for t.IsArray() {
		stride := t.Elem.FlattenedSize()
		indices = append(indices, mir.ConstInt(int32(flat/stride)))
		flat %= stride
		t = t.Elem
	}
	return indices
}
