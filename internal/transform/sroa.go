package transform

import (
	"fmt"

	"sysyc/internal/mir"
	"sysyc/internal/pass"
)

// SROA splits an ALLOC of an array into one independent ALLOC per
// statically-indexed element, provided every user reaches the alloc
// through a GEP with constant indices (and an optional BITCAST), or
// through a memset intrinsic call zeroing the whole array (spec.md
// §4.8). A later Mem2Reg run then promotes each scalar ALLOC to an
// SSA value, which is the whole point: this pass exists to turn
// "array of locals" into "locals", something Mem2Reg alone can't do
// since it never looks through a GEP.
type SROA struct{}

func (SROA) Name() string { return "SROA" }

func (SROA) Run(m *mir.Module, mgr *pass.Manager) bool {
	anyChanged := false
	for _, f := range m.DefinedFunctions() {
		entry := f.Entry()
		if entry == nil {
			continue
		}
		snapshot := append([]*mir.Instruction(nil), entry.Instructions...)
		for _, inst := range snapshot {
			if inst.GetBlock() == nil || inst.Op != mir.OpAlloc || !inst.ValType().Elem.IsArray() {
				continue
			}
			if trySROA(inst) {
				anyChanged = true
			}
		}
	}
	return anyChanged
}

// scalarAccess is a load or store that, once validated, addresses
// flattened element index FlatIndex of the array being split.
type scalarAccess struct {
	Inst      *mir.Instruction // the LOAD or STORE itself
	FlatIndex int
}

// sroaPlan is what planSROA discovers: every load/store the split
// needs to retarget, plus every memset call that zero-initializes the
// whole array (and so must be replaced by per-element zero stores).
type sroaPlan struct {
	Accesses []scalarAccess
	Memsets  []*mir.Instruction
	// chain collects every GEP/BITCAST instruction on the path from
	// the alloc to a leaf access, all of which become dead once the
	// leaves are rewritten to address the split allocs directly.
	Chain []*mir.Instruction
}

func trySROA(alloc *mir.Instruction) bool {
	arrayType := alloc.ValType().Elem
	plan := &sroaPlan{}
	if !planSROA(alloc, arrayType, 0, plan) {
		return false
	}
	applySROA(alloc, arrayType, plan)
	return true
}

// planSROA walks value's users, validating that each reaches the
// array only through constant-indexed GEPs/bitcasts/memset and
// terminates in a plain load or store; currentType is the type value
// currently points to, and baseOffset is the flattened element offset
// already consumed by ancestor GEPs.
func planSROA(value mir.Value, currentType *mir.Type, baseOffset int, plan *sroaPlan) bool {
	for _, u := range value.Users() {
		user := u.User
		switch user.Op {
		case mir.OpLoad:
			if u.Slot != 0 || currentType.IsArray() {
				return false
			}
			plan.Accesses = append(plan.Accesses, scalarAccess{Inst: user, FlatIndex: baseOffset})

		case mir.OpStore:
			if u.Slot != 0 || currentType.IsArray() {
				return false // slot 1 (storing the address itself) or a partial-array store: both escape
			}
			plan.Accesses = append(plan.Accesses, scalarAccess{Inst: user, FlatIndex: baseOffset})

		case mir.OpBitcast:
			if u.Slot != 0 {
				return false
			}
			plan.Chain = append(plan.Chain, user)
			if !planSROA(user, user.ToType.Elem, baseOffset, plan) {
				return false
			}

		case mir.OpGep:
			if u.Slot != 0 {
				return false
			}
			newOffset, newType, ok := consumeGepIndices(currentType, baseOffset, user.GepIndices())
			if !ok {
				return false
			}
			plan.Chain = append(plan.Chain, user)
			if !planSROA(user, newType, newOffset, plan) {
				return false
			}

		case mir.OpCall:
			callee := user.Callee()
			if callee == nil || callee.Name != "memset" || u.Slot != 1 || baseOffset != 0 {
				return false
			}
			plan.Memsets = append(plan.Memsets, user)

		default:
			return false
		}
	}
	return true
}

// consumeGepIndices descends currentType by len(indices) array
// dimensions, requiring every index to be a compile-time constant,
// and returns the flattened offset contributed plus the resulting
// (possibly still-array) type.
func consumeGepIndices(currentType *mir.Type, baseOffset int, indices []mir.Value) (int, *mir.Type, bool) {
	offset := baseOffset
	t := currentType
	for _, idx := range indices {
		c, ok := idx.(*mir.Const)
		if !ok || c.IsBool || !t.IsArray() {
			return 0, nil, false
		}
		offset += int(c.IntV) * t.Elem.FlattenedSize()
		t = t.Elem
	}
	return offset, t, true
}

func applySROA(alloc *mir.Instruction, arrayType *mir.Type, plan *sroaPlan) {
	elemType := arrayType.AtomicType()
	n := arrayType.FlattenedSize()
	block := alloc.GetBlock()

	scalars := make([]*mir.Instruction, n)
	for i := 0; i < n; i++ {
		scalars[i] = mir.NewAlloc(fmt.Sprintf("%s.%d", alloc.ValName(), i), elemType, nil)
		block.InsertBefore(alloc, scalars[i])
	}

	for _, access := range plan.Accesses {
		mir.SetOperandAt(access.Inst, 0, scalars[access.FlatIndex])
	}
	for _, ms := range plan.Memsets {
		zeroMemset(ms, scalars, elemType)
	}

	for _, inst := range plan.Chain {
		inst.ClearOperands()
		if b := inst.GetBlock(); b != nil {
			b.RemoveInstruction(inst)
		}
	}
	alloc.ClearOperands()
	block.RemoveInstruction(alloc)
}

// zeroMemset replaces a whole-array memset(addr, 0, size) call with an
// explicit zero store to every split scalar, then removes the call.
func zeroMemset(call *mir.Instruction, scalars []*mir.Instruction, elemType *mir.Type) {
	block := call.GetBlock()
	zero := mir.ConstInt(0)
	if elemType.IsFloat() {
		zero = mir.ConstFloat(0)
	}
	for _, s := range scalars {
		st := mir.NewStore(s, zero, nil)
		block.InsertBefore(call, st)
	}
	call.ClearOperands()
	block.RemoveInstruction(call)
}
