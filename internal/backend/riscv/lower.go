package riscv

import (
	"fmt"
	"math"

	"sysyc/internal/mir"
)

// Lower rewrites an entire, already-optimized *mir.Module into a
// Program of LFunctions ready for PHI removal, register allocation,
// and emission. Grounded on `Backend::MIR::MIR`'s one-pass
// instruction-to-instruction rewrite (original_source/include/Backend/
// MIR/MIR.h), generalized here to also assign every ALLOC a concrete
// frame offset instead of deferring that to a later pass.
func Lower(m *mir.Module) *Program {
	p := &Program{ConstStrings: m.ConstStrings}
	if m.Main != nil {
		p.MainName = m.Main.Name
	}
	for _, g := range m.Globals {
		p.Globals = append(p.Globals, lowerGlobal(g))
	}
	for _, f := range m.DefinedFunctions() {
		p.Functions = append(p.Functions, lowerFunction(f))
	}
	return p
}

func lowerGlobal(g *mir.GlobalVariable) globalDatum {
	elem := g.ElemType()
	isFloat := elem.AtomicType().IsFloat()
	d := globalDatum{Name: g.ValName(), IsConstant: g.IsConstant, IsFloat: isFloat}
	d.WordCount = elem.FlattenedSize()
	d.Words = flattenInit(g.Init, isFloat)
	return d
}

func flattenInit(init *mir.Initializer, isFloat bool) []uint64 {
	if init == nil {
		return nil
	}
	if init.Scalar != nil {
		e := init.Scalar.Eval()
		if isFloat {
			return []uint64{uint64(math.Float32bits(float32(e.AsFloat())))}
		}
		return []uint64{uint64(uint32(e.AsInt()))}
	}
	var out []uint64
	for _, elem := range init.Array {
		out = append(out, flattenInit(elem, isFloat)...)
	}
	return out
}

// funcLowerer holds the per-function lowering state: the vreg/operand
// map, the running frame-size counter for ALLOCs, and the block
// mirror (one LBlock per mir.Block, in the same order).
type funcLowerer struct {
	f         *mir.Function
	lf        *LFunction
	blockOf   map[*mir.Block]*LBlock
	operand   map[mir.Value]Operand
	nextVReg  int
	frameSize int
	numInt    int
	numFloat  int
	strTable  []string
}

func lowerFunction(f *mir.Function) *LFunction {
	lf := &LFunction{Name: f.Name, NumVRegs: map[regClass]int{}}
	switch {
	case f.ReturnType.IsVoid():
		lf.ReturnKind = retVoid
	case f.ReturnType.IsFloat():
		lf.ReturnKind = retFloat
	default:
		lf.ReturnKind = retInt
	}

	fl := &funcLowerer{
		f:       f,
		lf:      lf,
		blockOf: map[*mir.Block]*LBlock{},
		operand: map[mir.Value]Operand{},
	}

	for _, b := range f.Blocks {
		lb := &LBlock{Label: blockLabel(f.Name, b.ValName())}
		fl.blockOf[b] = lb
		lf.Blocks = append(lf.Blocks, lb)
	}

	for _, param := range f.Params {
		v := fl.newVReg(param.ValType())
		fl.operand[param] = v
		lf.Params = append(lf.Params, v)
	}

	// Pre-size every ALLOC's frame slot and every PHI's destination
	// vreg up front, since later instructions in this or a successor
	// block may reference them before their own defining instruction
	// is walked.
	for _, b := range f.Blocks {
		for _, inst := range b.Instructions {
			switch inst.Op {
			case mir.OpAlloc:
				pointee := inst.ValType().Elem
				size := pointee.FlattenedSize() * wordSize
				fl.operand[inst] = FrameSlot{Offset: -fl.frameSize - size}
				fl.frameSize += size
			case mir.OpPhi:
				fl.operand[inst] = fl.newVReg(inst.ValType())
			}
		}
	}

	for _, b := range f.Blocks {
		fl.lowerBlock(b)
	}

	resolveAllPhis(f, fl)

	lf.FrameSize = fl.frameSize
	lf.NumVRegs[classInt] = fl.numInt
	lf.NumVRegs[classFloat] = fl.numFloat
	return lf
}

func blockLabel(fn, block string) string { return fmt.Sprintf(".%s.%s", fn, block) }

func (fl *funcLowerer) newVReg(t *mir.Type) VReg {
	c := classInt
	if t != nil && t.IsFloat() {
		c = classFloat
	}
	id := fl.nextVReg
	fl.nextVReg++
	if c == classFloat {
		fl.numFloat++
	} else {
		fl.numInt++
	}
	return VReg{ID: id, Class: c}
}

// newVRegClass mints a fresh vreg directly by register class, for
// callers (phi.go's cycle-breaking scratch) that have no mir.Value or
// mir.Type on hand to derive it from.
func (fl *funcLowerer) newVRegClass(c regClass) VReg {
	id := fl.nextVReg
	fl.nextVReg++
	if c == classFloat {
		fl.numFloat++
	} else {
		fl.numInt++
	}
	return VReg{ID: id, Class: c}
}

// resolve turns a mir.Value into an Operand: a tracked vreg/frame slot
// for a value this function already lowered, a literal Imm for a
// Const, or a Global for a module-level variable.
func (fl *funcLowerer) resolve(v mir.Value) Operand {
	if op, ok := fl.operand[v]; ok {
		return op
	}
	switch x := v.(type) {
	case *mir.Const:
		if x.ValType().IsFloat() {
			return Imm{Float: true, F: x.FloatV}
		}
		if x.IsBool {
			if x.BoolV {
				return Imm{I: 1}
			}
			return Imm{I: 0}
		}
		return Imm{I: x.IntV}
	case *mir.GlobalVariable:
		return Global{Symbol: x.ValName()}
	default:
		// Unreachable for a well-formed module: every Argument/
		// Instruction operand was seeded into fl.operand above.
		return Imm{}
	}
}

func (fl *funcLowerer) lowerBlock(b *mir.Block) {
	lb := fl.blockOf[b]
	for _, inst := range b.Instructions {
		fl.lowerInstr(lb, inst)
	}
}

func (fl *funcLowerer) lowerInstr(lb *LBlock, inst *mir.Instruction) {
	switch inst.Op {
	case mir.OpAlloc:
		// Handled up front: the instruction itself produces no code,
		// its "value" is the FrameSlot already recorded.
	case mir.OpPhi:
		// No code at the PHI's own position; resolveAllPhis inserts
		// the moves into every predecessor instead.
	case mir.OpLoad:
		fl.lowerLoad(lb, inst)
	case mir.OpStore:
		fl.lowerStore(lb, inst)
	case mir.OpGep:
		fl.lowerGep(lb, inst)
	case mir.OpBitcast:
		fl.operand[inst] = fl.resolve(inst.Operand(0))
	case mir.OpIntBinary:
		dst := fl.newVReg(inst.ValType())
		fl.operand[inst] = dst
		lb.append(&LInstr{Op: LIntBin, SubOp: inst.SubOp, Dst: dst,
			Src1: fl.resolve(inst.Operand(0)), Src2: fl.resolve(inst.Operand(1))})
	case mir.OpFloatBinary:
		dst := fl.newVReg(inst.ValType())
		fl.operand[inst] = dst
		lb.append(&LInstr{Op: LFloatBin, SubOp: inst.SubOp, Dst: dst,
			Src1: fl.resolve(inst.Operand(0)), Src2: fl.resolve(inst.Operand(1))})
	case mir.OpFloatTernary:
		dst := fl.newVReg(inst.ValType())
		fl.operand[inst] = dst
		lb.append(&LInstr{Op: LFloatMA, SubOp: inst.SubOp, Dst: dst,
			Src1: fl.resolve(inst.Operand(0)), Src2: fl.resolve(inst.Operand(1)), Src3: fl.resolve(inst.Operand(2))})
	case mir.OpFNeg:
		dst := fl.newVReg(inst.ValType())
		fl.operand[inst] = dst
		lb.append(&LInstr{Op: LFNeg, Dst: dst, Src1: fl.resolve(inst.Operand(0))})
	case mir.OpICmp, mir.OpFCmp:
		fl.lowerCompare(lb, inst)
	case mir.OpZExt:
		dst := fl.newVReg(inst.ValType())
		fl.operand[inst] = dst
		lb.append(&LInstr{Op: LZExt, Dst: dst, Src1: fl.resolve(inst.Operand(0))})
	case mir.OpSIToFP:
		dst := fl.newVReg(inst.ValType())
		fl.operand[inst] = dst
		lb.append(&LInstr{Op: LI2F, Dst: dst, Src1: fl.resolve(inst.Operand(0))})
	case mir.OpFPToSI:
		dst := fl.newVReg(inst.ValType())
		fl.operand[inst] = dst
		lb.append(&LInstr{Op: LF2I, Dst: dst, Src1: fl.resolve(inst.Operand(0))})
	case mir.OpCall:
		fl.lowerCall(lb, inst)
	case mir.OpBranch:
		lb.append(&LInstr{Op: LBranch, SubOp: condOpOf(inst.Cond()), Src1: fl.resolve(condLHS(inst.Cond())),
			Src2: fl.resolve(condRHS(inst.Cond())), Then: fl.blockOf[inst.TrueBlock()], Else: fl.blockOf[inst.FalseBlock()]})
	case mir.OpJump:
		lb.append(&LInstr{Op: LJump, Target: fl.blockOf[inst.JumpTarget()]})
	case mir.OpSwitch:
		fl.lowerSwitch(lb, inst)
	case mir.OpRet:
		var src Operand
		if v := inst.RetValue(); v != nil {
			src = fl.resolve(v)
		}
		lb.append(&LInstr{Op: LRet, Src1: src})
	}
}

// condOpOf/condLHS/condRHS let a BRANCH fuse its condition's
// ICmp/FCmp directly into the LBranch instruction (the common case,
// since mem2reg+GVN leave a comparison with exactly one user — its
// branch). A condition that is not itself an ICmp/FCmp (a raw i1
// value, e.g. a PHI or a call result) is rendered as `!= 0`.
func condOpOf(cond mir.Value) string {
	if inst, ok := cond.(*mir.Instruction); ok && (inst.Op == mir.OpICmp || inst.Op == mir.OpFCmp) {
		return inst.SubOp
	}
	return "NE"
}

func condLHS(cond mir.Value) mir.Value {
	if inst, ok := cond.(*mir.Instruction); ok && (inst.Op == mir.OpICmp || inst.Op == mir.OpFCmp) {
		return inst.Operand(0)
	}
	return cond
}

func condRHS(cond mir.Value) mir.Value {
	if inst, ok := cond.(*mir.Instruction); ok && (inst.Op == mir.OpICmp || inst.Op == mir.OpFCmp) {
		return inst.Operand(1)
	}
	return mir.ConstInt(0)
}

// lowerCompare only runs for an ICmp/FCmp that escapes its branch
// (used by something other than solely the BRANCH that reads it, or
// with no BRANCH user at all — e.g. stored into a bool local);
// condOpOf/condLHS/condRHS above fold the common case directly into
// LBranch without ever calling this.
func (fl *funcLowerer) lowerCompare(lb *LBlock, inst *mir.Instruction) {
	if soleBranchUser(inst) {
		return
	}
	dst := fl.newVReg(inst.ValType())
	fl.operand[inst] = dst
	lb.append(&LInstr{Op: LCmpSet, SubOp: inst.SubOp, Dst: dst,
		Src1: fl.resolve(inst.Operand(0)), Src2: fl.resolve(inst.Operand(1))})
}

func soleBranchUser(inst *mir.Instruction) bool {
	users := inst.Users()
	if len(users) != 1 {
		return false
	}
	u := users[0].User
	return u != nil && u.Op == mir.OpBranch && u.Cond() == inst
}

func (fl *funcLowerer) lowerLoad(lb *LBlock, inst *mir.Instruction) {
	dst := fl.newVReg(inst.ValType())
	fl.operand[inst] = dst
	op := LLoadW
	if inst.ValType().IsFloat() {
		op = LLoadF
	}
	lb.append(&LInstr{Op: op, Dst: dst, Src1: fl.resolve(inst.Operand(0))})
}

func (fl *funcLowerer) lowerStore(lb *LBlock, inst *mir.Instruction) {
	op := LStoreW
	val := inst.Operand(1)
	if val.ValType().IsFloat() {
		op = LStoreF
	}
	lb.append(&LInstr{Op: op, Dst: fl.resolve(inst.Operand(0)), Src1: fl.resolve(val)})
}

// lowerGep expands one GEP into a chain of address arithmetic: the
// base operand's address (a FrameSlot/Global materialized via
// LLoadAddr, or a pointer value already sitting in a vreg), walked by
// GepIndices() one array dimension at a time, scaling each index by
// its dimension's FlattenedSize()*wordSize (mirroring
// consumeGepIndices's constant-folding walk in
// internal/transform/sroa.go, generalized to a runtime index).
func (fl *funcLowerer) lowerGep(lb *LBlock, inst *mir.Instruction) {
	base := inst.GepBase()
	addr := fl.baseAddress(lb, base)
	t := base.ValType().Elem

	for _, idx := range inst.GepIndices() {
		stride := t.Elem.FlattenedSize() * wordSize
		if c, ok := idx.(*mir.Const); ok {
			if c.IntV != 0 {
				sum := fl.newVReg(mir.I64)
				lb.append(&LInstr{Op: LIntBin, SubOp: "ADD", Dst: sum, Src1: addr, Src2: Imm{I: c.IntV * int32(stride)}})
				addr = sum
			}
		} else {
			scaled := fl.newVReg(mir.I64)
			lb.append(&LInstr{Op: LIntBin, SubOp: "MUL", Dst: scaled, Src1: fl.resolve(idx), Src2: Imm{I: int32(stride)}})
			sum := fl.newVReg(mir.I64)
			lb.append(&LInstr{Op: LIntBin, SubOp: "ADD", Dst: sum, Src1: addr, Src2: scaled})
			addr = sum
		}
		t = t.Elem
	}
	fl.operand[inst] = addr
}

// baseAddress resolves a GEP/LOAD/STORE's pointer operand to an
// address-valued Operand: a FrameSlot/Global is itself an address
// that must be materialized into a register with LLoadAddr before
// it can feed arithmetic, while a pointer that is already the result
// of a prior instruction (another GEP, a param, a LOAD of a pointer)
// is already a vreg holding an address.
func (fl *funcLowerer) baseAddress(lb *LBlock, base mir.Value) Operand {
	op := fl.resolve(base)
	switch op.(type) {
	case FrameSlot, Global:
		dst := fl.newVReg(mir.I64)
		lb.append(&LInstr{Op: LLoadAddr, Dst: dst, Src1: op})
		return dst
	default:
		return op
	}
}

func (fl *funcLowerer) lowerCall(lb *LBlock, inst *mir.Instruction) {
	callee := inst.Callee()
	var args []Operand
	for _, a := range inst.Args() {
		args = append(args, fl.resolve(a))
	}
	li := &LInstr{Op: LCall, Callee: callee.Name, Args: args}
	switch {
	case callee.ReturnType.IsVoid():
		li.CalleeVoid = true
	case callee.ReturnType.IsFloat():
		li.CalleeFloat = true
		dst := fl.newVReg(callee.ReturnType)
		fl.operand[inst] = dst
		li.Dst = dst
	default:
		dst := fl.newVReg(callee.ReturnType)
		fl.operand[inst] = dst
		li.Dst = dst
	}
	lb.append(li)
}

// lowerSwitch expands the N-way SWITCH into a cascade of fused
// compare-and-branch tests against each case constant, falling
// through to the default block — RV64 has no jump-table instruction
// in the subset spec.md §4.11 targets.
func (fl *funcLowerer) lowerSwitch(lb *LBlock, inst *mir.Instruction) {
	scrut := fl.resolve(inst.Scrutinee())
	def := fl.blockOf[inst.DefaultBlock()]
	cases := inst.Cases()
	cur := lb
	for i, c := range cases {
		target := fl.blockOf[c.Block]
		if i == len(cases)-1 {
			cur.append(&LInstr{Op: LBranch, SubOp: "EQ", Src1: scrut, Src2: fl.resolve(c.Const), Then: target, Else: def})
			return
		}
		next := &LBlock{Label: fmt.Sprintf("%s.sw%d", cur.Label, i)}
		fl.lf.Blocks = append(fl.lf.Blocks, next)
		cur.append(&LInstr{Op: LBranch, SubOp: "EQ", Src1: scrut, Src2: fl.resolve(c.Const), Then: target, Else: next})
		cur = next
	}
	cur.append(&LInstr{Op: LJump, Target: def})
}
