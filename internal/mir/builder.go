package mir

// Builder is a thin cursor over a function under construction: it
// remembers the "current block" so a frontend or a transform pass can
// emit a sequence of instructions without re-threading the block
// through every call, mirroring kanso's IRBuilder cursor idiom
// (internal/ir builder) adapted to spec.md's MIR value set.
type Builder struct {
	Module *Module
	Func   *Function
	block  *Block
}

func NewBuilder(m *Module, f *Function) *Builder {
	return &Builder{Module: m, Func: f}
}

// SetBlock moves the cursor; subsequent Emit* calls append to b.
func (bld *Builder) SetBlock(b *Block) { bld.block = b }

// Block returns the cursor's current block.
func (bld *Builder) Block() *Block { return bld.block }

// CreateBlock allocates a new block owned by the builder's function
// but does not move the cursor onto it.
func (bld *Builder) CreateBlock(name string) *Block {
	b := NewBlock(name)
	bld.Func.AddBlock(b)
	return b
}

func (bld *Builder) Alloc(name string, pointee *Type) *Instruction {
	return NewAlloc(name, pointee, bld.block)
}

func (bld *Builder) Load(name string, addr Value) *Instruction {
	return NewLoad(name, addr, bld.block)
}

func (bld *Builder) Store(addr, val Value) *Instruction {
	return NewStore(addr, val, bld.block)
}

func (bld *Builder) Gep(name string, base Value, indices []Value, resultType *Type) *Instruction {
	return NewGep(name, base, indices, resultType, bld.block)
}

func (bld *Builder) IntBinary(name, op string, lhs, rhs Value) *Instruction {
	return NewIntBinary(name, op, lhs, rhs, bld.block)
}

func (bld *Builder) FloatBinary(name, op string, lhs, rhs Value) *Instruction {
	return NewFloatBinary(name, op, lhs, rhs, bld.block)
}

func (bld *Builder) ICmp(name, op string, lhs, rhs Value) *Instruction {
	return NewICmp(name, op, lhs, rhs, bld.block)
}

func (bld *Builder) FCmp(name, op string, lhs, rhs Value) *Instruction {
	return NewFCmp(name, op, lhs, rhs, bld.block)
}

func (bld *Builder) ZExt(name string, val Value, to *Type) *Instruction {
	return NewZExt(name, val, to, bld.block)
}

func (bld *Builder) FPToSI(name string, val Value, to *Type) *Instruction {
	return NewFPToSI(name, val, to, bld.block)
}

func (bld *Builder) SIToFP(name string, val Value, to *Type) *Instruction {
	return NewSIToFP(name, val, to, bld.block)
}

func (bld *Builder) Phi(name string, typ *Type) *Instruction {
	return NewPhi(name, typ, bld.block)
}

func (bld *Builder) Branch(cond Value, trueB, falseB *Block) *Instruction {
	return NewBranch(cond, trueB, falseB, bld.block)
}

func (bld *Builder) Jump(target *Block) *Instruction {
	return NewJump(target, bld.block)
}

func (bld *Builder) Switch(scrutinee Value, def *Block, cases []SwitchCase) *Instruction {
	return NewSwitch(scrutinee, def, cases, bld.block)
}

func (bld *Builder) Ret(val Value) *Instruction {
	return NewRet(val, bld.block)
}

func (bld *Builder) Call(name string, callee *Function, args []Value) *Instruction {
	return NewCall(name, callee, args, bld.block)
}
