package mir

// Operator tags every Instruction. This is the closed sum type
// spec.md §9 calls for in place of per-opcode subclasses: one struct,
// matched on Op, rather than a class hierarchy with unsafe downcasts.
type Operator int

const (
	OpAlloc Operator = iota
	OpLoad
	OpStore
	OpGep
	OpBitcast
	OpIntBinary
	OpFloatBinary
	OpFloatTernary
	OpFNeg
	OpICmp
	OpFCmp
	OpZExt
	OpFPToSI
	OpSIToFP
	OpPhi
	OpBranch
	OpJump
	OpSwitch
	OpRet
	OpCall
)

func (op Operator) IsTerminator() bool {
	switch op {
	case OpBranch, OpJump, OpSwitch, OpRet:
		return true
	default:
		return false
	}
}

func (op Operator) String() string {
	names := [...]string{
		"alloc", "load", "store", "gep", "bitcast", "intbinary", "floatbinary",
		"floatternary", "fneg", "icmp", "fcmp", "zext", "fptosi", "sitofp",
		"phi", "branch", "jump", "switch", "ret", "call",
	}
	if int(op) < len(names) {
		return names[op]
	}
	return "?"
}

// Instruction is every MIR operation: arithmetic, memory, control
// flow, and calls alike. Fields not meaningful for a given Op are
// simply left zero; this mirrors the single-struct ssa.Value design
// used by production Go SSA compilers rather than one Go type per
// opcode.
//
// Two parallel operand lists exist because operands come in two
// flavors that must each support replace-all-uses-with: Operands
// holds ordinary SSA value references (conditions, addresses,
// arguments, PHI incoming values, SWITCH case constants); BlockRefs
// holds the block references a terminator or PHI carries (branch
// targets, jump targets, switch default/case blocks, PHI incoming
// blocks). Both are Use-backed so Block can be a first-class Value
// with a real Users() list (spec.md §3: "Block is itself a User").
type Instruction struct {
	base
	ID       int
	Op       Operator
	SubOp    string // e.g. "ADD"/"SMAX" for INTBINARY, "EQ" for ICMP, "FMADD" for FLOATTERNARY
	Parent   *Block
	Operands []*Use
	BlockRefs []*Use

	ToType *Type // BITCAST/ZEXT/FPTOSI/SITOFP target type
	Tail   bool  // CALL only: set by TailCallOptimize, read by the backend
}

func (i *Instruction) GetID() int { return i.ID }
func (i *Instruction) GetResult() Value {
	if i.typ == nil || i.typ.IsVoid() {
		return nil
	}
	return i
}
func (i *Instruction) GetBlock() *Block   { return i.Parent }
func (i *Instruction) IsTerminator() bool { return i.Op.IsTerminator() }

// SetBlock sets inst's parent block; when append is true it is also
// pushed onto b's instruction list (spec.md §4.2 set_block).
func (inst *Instruction) SetBlock(b *Block, appendToBlock bool) {
	inst.Parent = b
	if appendToBlock {
		b.Instructions = append(b.Instructions, inst)
	}
}

var nextInstID = 1

func allocID() int {
	id := nextInstID
	nextInstID++
	return id
}

// ResetIDs resets the process-wide instruction id counter. Exposed
// only for deterministic test fixtures.
func ResetIDs() { nextInstID = 1 }

func newInst(name string, typ *Type, op Operator) *Instruction {
	return &Instruction{base: base{name: name, typ: typ}, ID: allocID(), Op: op}
}

func blockValue(b *Block) Value {
	if b == nil {
		return nil
	}
	return b
}

// setBlockRef sets BlockRefs[i] of inst to refer to b, registering the
// use on b.Users() the same way setOperand does for value operands.
func setBlockRef(inst *Instruction, i int, b *Block) {
	for len(inst.BlockRefs) <= i {
		inst.BlockRefs = append(inst.BlockRefs, nil)
	}
	if old := inst.BlockRefs[i]; old != nil {
		old.Def.removeUser(old)
	}
	if b == nil {
		inst.BlockRefs[i] = nil
		return
	}
	u := &Use{Def: b, User: inst, Slot: i}
	b.addUser(u)
	inst.BlockRefs[i] = u
}

func appendBlockRef(inst *Instruction, b *Block) {
	setBlockRef(inst, len(inst.BlockRefs), b)
}

func blockRefAt(inst *Instruction, i int) *Block {
	if i < 0 || i >= len(inst.BlockRefs) || inst.BlockRefs[i] == nil {
		return nil
	}
	b, _ := inst.BlockRefs[i].Def.(*Block)
	return b
}

// --- Construction factories -------------------------------------------------
//
// Each factory allocates the instruction, registers operand uses, and
// (when block is non-nil) appends it to block's instruction list —
// spec.md §4.2's "allocate, register operand uses, append to block".

func NewAlloc(name string, pointee *Type, block *Block) *Instruction {
	inst := newInst(name, Pointer(pointee), OpAlloc)
	if block != nil {
		inst.SetBlock(block, true)
	}
	return inst
}

func NewLoad(name string, addr Value, block *Block) *Instruction {
	pointee := addr.ValType().Elem
	inst := newInst(name, pointee, OpLoad)
	appendOperand(inst, addr)
	if block != nil {
		inst.SetBlock(block, true)
	}
	return inst
}

func NewStore(addr, val Value, block *Block) *Instruction {
	inst := newInst("", VoidType, OpStore)
	appendOperand(inst, addr)
	appendOperand(inst, val)
	if block != nil {
		inst.SetBlock(block, true)
	}
	return inst
}

// NewGep builds a GEP. resultType must be precomputed by the caller,
// since it depends on how many aggregate-index levels the chain
// consumes vs. a trailing pointer-offset index (spec.md §3).
func NewGep(name string, base Value, indices []Value, resultType *Type, block *Block) *Instruction {
	inst := newInst(name, resultType, OpGep)
	appendOperand(inst, base)
	for _, idx := range indices {
		appendOperand(inst, idx)
	}
	if block != nil {
		inst.SetBlock(block, true)
	}
	return inst
}

// GepBase and GepIndices give typed access into a GEP's operand list.
func (inst *Instruction) GepBase() Value        { return inst.Operand(0) }
func (inst *Instruction) GepIndices() []Value   { return inst.GetOperands()[1:] }

func NewBitcast(name string, val Value, to *Type, block *Block) *Instruction {
	inst := newInst(name, to, OpBitcast)
	appendOperand(inst, val)
	inst.ToType = to
	if block != nil {
		inst.SetBlock(block, true)
	}
	return inst
}

func NewIntBinary(name, op string, lhs, rhs Value, block *Block) *Instruction {
	inst := newInst(name, lhs.ValType(), OpIntBinary)
	inst.SubOp = op
	appendOperand(inst, lhs)
	appendOperand(inst, rhs)
	if block != nil {
		inst.SetBlock(block, true)
	}
	return inst
}

func NewFloatBinary(name, op string, lhs, rhs Value, block *Block) *Instruction {
	inst := newInst(name, F32, OpFloatBinary)
	inst.SubOp = op
	appendOperand(inst, lhs)
	appendOperand(inst, rhs)
	if block != nil {
		inst.SetBlock(block, true)
	}
	return inst
}

func NewFloatTernary(name, op string, x, y, z Value, block *Block) *Instruction {
	inst := newInst(name, F32, OpFloatTernary)
	inst.SubOp = op
	appendOperand(inst, x)
	appendOperand(inst, y)
	appendOperand(inst, z)
	if block != nil {
		inst.SetBlock(block, true)
	}
	return inst
}

func NewFNeg(name string, val Value, block *Block) *Instruction {
	inst := newInst(name, F32, OpFNeg)
	appendOperand(inst, val)
	if block != nil {
		inst.SetBlock(block, true)
	}
	return inst
}

func NewICmp(name, op string, lhs, rhs Value, block *Block) *Instruction {
	inst := newInst(name, I1, OpICmp)
	inst.SubOp = op
	appendOperand(inst, lhs)
	appendOperand(inst, rhs)
	if block != nil {
		inst.SetBlock(block, true)
	}
	return inst
}

func NewFCmp(name, op string, lhs, rhs Value, block *Block) *Instruction {
	inst := newInst(name, I1, OpFCmp)
	inst.SubOp = op
	appendOperand(inst, lhs)
	appendOperand(inst, rhs)
	if block != nil {
		inst.SetBlock(block, true)
	}
	return inst
}

func NewZExt(name string, val Value, to *Type, block *Block) *Instruction {
	inst := newInst(name, to, OpZExt)
	appendOperand(inst, val)
	inst.ToType = to
	if block != nil {
		inst.SetBlock(block, true)
	}
	return inst
}

func NewFPToSI(name string, val Value, to *Type, block *Block) *Instruction {
	inst := newInst(name, to, OpFPToSI)
	appendOperand(inst, val)
	inst.ToType = to
	if block != nil {
		inst.SetBlock(block, true)
	}
	return inst
}

func NewSIToFP(name string, val Value, to *Type, block *Block) *Instruction {
	inst := newInst(name, to, OpSIToFP)
	appendOperand(inst, val)
	inst.ToType = to
	if block != nil {
		inst.SetBlock(block, true)
	}
	return inst
}

// NewPhi builds an empty PHI; edges are added with AddIncoming. PHIs
// form a contiguous prefix of their block (spec.md §3 invariant 4), so
// the new instruction is inserted after any existing phis rather than
// appended at the tail.
func NewPhi(name string, typ *Type, block *Block) *Instruction {
	inst := newInst(name, typ, OpPhi)
	if block != nil {
		inst.Parent = block
		idx := 0
		for idx < len(block.Instructions) {
			if block.Instructions[idx].Op != OpPhi {
				break
			}
			idx++
		}
		block.Instructions = append(block.Instructions, nil)
		copy(block.Instructions[idx+1:], block.Instructions[idx:])
		block.Instructions[idx] = inst
	}
	return inst
}

// AddIncoming adds (or overwrites) the incoming value for pred.
func (inst *Instruction) AddIncoming(pred *Block, val Value) {
	for i, u := range inst.BlockRefs {
		if u != nil && u.Def.(*Block) == pred {
			setOperand(inst, i, val)
			return
		}
	}
	i := len(inst.Operands)
	appendOperand(inst, val)
	setBlockRef(inst, i, pred)
}

// IncomingFrom returns the value PHI receives from pred, or nil.
func (inst *Instruction) IncomingFrom(pred *Block) Value {
	for i, u := range inst.BlockRefs {
		if u != nil && u.Def.(*Block) == pred {
			return inst.Operand(i)
		}
	}
	return nil
}

// IncomingBlocks returns the PHI's incoming predecessor blocks.
func (inst *Instruction) IncomingBlocks() []*Block {
	out := make([]*Block, 0, len(inst.BlockRefs))
	for _, u := range inst.BlockRefs {
		if u != nil {
			out = append(out, u.Def.(*Block))
		}
	}
	return out
}

// RemoveIncoming drops the edge from pred, if present.
func (inst *Instruction) RemoveIncoming(pred *Block) {
	for i, u := range inst.BlockRefs {
		if u != nil && u.Def.(*Block) == pred {
			if inst.Operands[i] != nil {
				inst.Operands[i].Def.removeUser(inst.Operands[i])
			}
			u.Def.removeUser(u)
			inst.Operands = append(inst.Operands[:i], inst.Operands[i+1:]...)
			inst.BlockRefs = append(inst.BlockRefs[:i], inst.BlockRefs[i+1:]...)
			for j := i; j < len(inst.Operands); j++ {
				if inst.Operands[j] != nil {
					inst.Operands[j].Slot = j
				}
				if inst.BlockRefs[j] != nil {
					inst.BlockRefs[j].Slot = j
				}
			}
			return
		}
	}
}

func NewBranch(cond Value, trueB, falseB *Block, block *Block) *Instruction {
	inst := newInst("", VoidType, OpBranch)
	appendOperand(inst, cond)
	appendBlockRef(inst, trueB)
	appendBlockRef(inst, falseB)
	if block != nil {
		inst.SetBlock(block, true)
	}
	return inst
}

func (inst *Instruction) Cond() Value       { return inst.Operand(0) }
func (inst *Instruction) TrueBlock() *Block  { return blockRefAt(inst, 0) }
func (inst *Instruction) FalseBlock() *Block { return blockRefAt(inst, 1) }
func (inst *Instruction) SetTrueBlock(b *Block)  { setBlockRef(inst, 0, b) }
func (inst *Instruction) SetFalseBlock(b *Block) { setBlockRef(inst, 1, b) }

func NewJump(target *Block, block *Block) *Instruction {
	inst := newInst("", VoidType, OpJump)
	appendBlockRef(inst, target)
	if block != nil {
		inst.SetBlock(block, true)
	}
	return inst
}

func (inst *Instruction) JumpTarget() *Block    { return blockRefAt(inst, 0) }
func (inst *Instruction) SetJumpTarget(b *Block) { setBlockRef(inst, 0, b) }

// NewSwitch builds a SWITCH; cases[i].Block corresponds to
// scrutinee == cases[i].Const.
type SwitchCase struct {
	Const *Const
	Block *Block
}

func NewSwitch(scrutinee Value, def *Block, cases []SwitchCase, block *Block) *Instruction {
	inst := newInst("", VoidType, OpSwitch)
	appendOperand(inst, scrutinee)
	appendBlockRef(inst, def)
	for _, c := range cases {
		appendOperand(inst, c.Const)
		appendBlockRef(inst, c.Block)
	}
	if block != nil {
		inst.SetBlock(block, true)
	}
	return inst
}

func (inst *Instruction) Scrutinee() Value  { return inst.Operand(0) }
func (inst *Instruction) DefaultBlock() *Block { return blockRefAt(inst, 0) }

// Cases returns the switch's (const, block) arms.
func (inst *Instruction) Cases() []SwitchCase {
	var out []SwitchCase
	for i := 1; i < len(inst.Operands); i++ {
		c, _ := inst.Operand(i).(*Const)
		out = append(out, SwitchCase{Const: c, Block: blockRefAt(inst, i)})
	}
	return out
}

func NewRet(val Value, block *Block) *Instruction {
	inst := newInst("", VoidType, OpRet)
	if val != nil {
		appendOperand(inst, val)
	}
	if block != nil {
		inst.SetBlock(block, true)
	}
	return inst
}

func (inst *Instruction) RetValue() Value {
	if len(inst.Operands) == 0 {
		return nil
	}
	return inst.Operand(0)
}

func NewCall(name string, callee *Function, args []Value, block *Block) *Instruction {
	inst := newInst(name, callee.ReturnType, OpCall)
	appendOperand(inst, callee)
	for _, a := range args {
		appendOperand(inst, a)
	}
	if block != nil {
		inst.SetBlock(block, true)
	}
	return inst
}

// Callee returns the called Function (nil for non-CALL instructions).
func (inst *Instruction) Callee() *Function {
	if inst.Op != OpCall {
		return nil
	}
	fn, _ := inst.Operand(0).(*Function)
	return fn
}

// Args returns the call argument values (nil for non-CALL instructions).
func (inst *Instruction) Args() []Value {
	if inst.Op != OpCall {
		return nil
	}
	all := inst.GetOperands()
	if len(all) == 0 {
		return nil
	}
	return all[1:]
}

// Successors returns the block(s) a terminator may transfer control
// to, in a deterministic order.
func (inst *Instruction) Successors() []*Block {
	switch inst.Op {
	case OpJump:
		return []*Block{inst.JumpTarget()}
	case OpBranch:
		return []*Block{inst.TrueBlock(), inst.FalseBlock()}
	case OpSwitch:
		out := []*Block{inst.DefaultBlock()}
		for _, c := range inst.Cases() {
			out = append(out, c.Block)
		}
		return out
	default:
		return nil
	}
}

// --- operand access shared by all instruction kinds -------------------------

// ClearOperands detaches inst from every Value/Block it references, so
// that inst holds no graph references and can be safely dropped once
// its own user count reaches zero (spec.md §3).
func (inst *Instruction) ClearOperands() {
	for i, u := range inst.Operands {
		if u != nil {
			u.Def.removeUser(u)
			inst.Operands[i] = nil
		}
	}
	for i, u := range inst.BlockRefs {
		if u != nil {
			u.Def.removeUser(u)
			inst.BlockRefs[i] = nil
		}
	}
	inst.Operands = nil
	inst.BlockRefs = nil
}

// Operand returns the Value referenced by operand slot i, or nil if
// that slot is unset or out of range.
func (inst *Instruction) Operand(i int) Value {
	if i < 0 || i >= len(inst.Operands) || inst.Operands[i] == nil {
		return nil
	}
	return inst.Operands[i].Def
}

// GetOperands returns the ordered list of operand values (nil-free).
func (inst *Instruction) GetOperands() []Value {
	out := make([]Value, 0, len(inst.Operands))
	for _, u := range inst.Operands {
		if u != nil {
			out = append(out, u.Def)
		}
	}
	return out
}

// ModifyOperand replaces every occurrence of old in inst's value
// operand list with new (spec.md §4.2 modify_operand).
func (inst *Instruction) ModifyOperand(old, new Value) {
	for i, u := range inst.Operands {
		if u != nil && u.Def == old {
			setOperand(inst, i, new)
		}
	}
}

// ModifySuccessor rewrites a terminator's destination from oldSucc to
// newSucc wherever it appears (spec.md §4.2 Block.modify_successor).
func (inst *Instruction) ModifySuccessor(oldSucc, newSucc *Block) {
	for i, u := range inst.BlockRefs {
		if u != nil && u.Def.(*Block) == oldSucc {
			setBlockRef(inst, i, newSucc)
		}
	}
}
