package transform

import (
	"sysyc/internal/mir"
	"sysyc/internal/pass"
)

// ConstIndexToValue replaces a load from a read-only array global at
// a compile-time-constant index with the initializer's constant at
// that flattened position (spec.md §4.8). It is not a step of the O0
// or O1 pipeline; run ahead of GlobalArrayLocalize, it leaves a
// constant array global that only ever feeds constant-indexed loads
// with no uses at all, so localization never considers it.
type ConstIndexToValue struct{}

func (ConstIndexToValue) Name() string { return "ConstIndexToValue" }

func (ConstIndexToValue) Run(m *mir.Module, mgr *pass.Manager) bool {
	anyChanged := false
	for _, g := range m.Globals {
		if !g.IsConstant {
			continue
		}
		for _, u := range append([]*mir.Use(nil), g.Users()...) {
			if foldConstIndexedLoad(g, u.User) {
				anyChanged = true
			}
		}
	}
	return anyChanged
}

// foldConstIndexedLoad handles the direct chain global -> GEP(consts)
// -> LOAD, and global -> LOAD (the zero-dimension/scalar case),
// rewriting the load to the matching flattened initializer constant.
func foldConstIndexedLoad(g *mir.GlobalVariable, user *mir.Instruction) bool {
	switch user.Op {
	case mir.OpLoad:
		if user.Operand(0) != mir.Value(g) {
			return false
		}
		flat := g.Init.Flatten()
		if len(flat) != 1 {
			return false
		}
		return replaceLoadWithConst(user, flat[0])

	case mir.OpGep:
		if user.GepBase() != mir.Value(g) {
			return false
		}
		offset, remType, ok := consumeGepIndices(g.ElemType(), 0, user.GepIndices())
		if !ok || remType.IsArray() {
			return false
		}
		flat := g.Init.Flatten()
		if offset < 0 || offset >= len(flat) {
			return false
		}
		changed := false
		for _, gu := range append([]*mir.Use(nil), user.Users()...) {
			if gu.User.Op == mir.OpLoad && gu.User.Operand(0) == mir.Value(user) {
				if replaceLoadWithConst(gu.User, flat[offset]) {
					changed = true
				}
			}
		}
		if changed && len(user.Users()) == 0 {
			user.ClearOperands()
			user.GetBlock().RemoveInstruction(user)
		}
		return changed
	}
	return false
}

func replaceLoadWithConst(load *mir.Instruction, c *mir.Const) bool {
	mir.ReplaceAllUsesWith(load, c)
	load.ClearOperands()
	load.GetBlock().RemoveInstruction(load)
	return true
}
