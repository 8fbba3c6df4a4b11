package mirtext

import (
	"fmt"

	"github.com/alecthomas/participle/v2"

	"sysyc/internal/mir"
)

var parser = participle.MustBuild[File](
	participle.Lexer(Lexer),
	participle.Elide("Whitespace", "Comment"),
	participle.UseLookahead(4),
)

// Parse builds a *mir.Module from source text in the textual MIR
// format, the restricted "AST-to-MIR builder" role SPEC_FULL.md's
// domain-stack section describes: it only ever sees the already-typed
// fixture syntax, never a SysY-family source file.
func Parse(filename, src string) (*mir.Module, error) {
	file, err := parser.ParseString(filename, src)
	if err != nil {
		return nil, err
	}
	return build(file)
}

type builder struct {
	m *mir.Module
}

func build(file *File) (m *mir.Module, err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
				return
			}
			err = fmt.Errorf("%v", r)
		}
	}()

	b := &builder{m: mir.NewModule()}

	for _, g := range file.Globals {
		b.declareGlobal(g)
	}
	for _, f := range file.Funcs {
		b.declareFunc(f)
	}
	for _, f := range file.Funcs {
		if !f.Extern {
			b.defineFunc(f)
		}
	}
	return b.m, nil
}

func (b *builder) declareGlobal(g *GlobalDecl) {
	t := buildType(g.Type)
	init := buildInitializer(g.Init, t)
	b.m.AddGlobal(mir.NewGlobalVariable(stripSigil(g.Name), t, g.Constant, init))
}

func (b *builder) declareFunc(fd *FuncDecl) {
	f := mir.NewFunction(stripSigil(fd.Name), buildType(fd.Ret), fd.Extern)
	for _, p := range fd.Params {
		f.AddParam(stripSigil(p.Name), buildType(p.Type))
	}
	b.m.AddFunction(f)
}

func buildType(t *TypeRef) *mir.Type {
	var base *mir.Type
	if t.Array != nil {
		base = mir.Array(t.Array.Size, buildType(t.Array.Elem))
	} else {
		switch t.Name {
		case "void":
			base = mir.VoidType
		case "i1":
			base = mir.I1
		case "i8":
			base = mir.I8
		case "i32":
			base = mir.I32
		case "i64":
			base = mir.I64
		case "float":
			base = mir.F32
		default:
			panic(fmt.Errorf("mirtext: unknown type name %q", t.Name))
		}
	}
	if t.Pointer {
		return mir.Pointer(base)
	}
	return base
}

func buildInitializer(lit *InitializerLit, t *mir.Type) *mir.Initializer {
	if t.IsArray() {
		elems := make([]*mir.Initializer, len(lit.Array))
		for i, e := range lit.Array {
			elems[i] = buildInitializer(e, t.Elem)
		}
		return &mir.Initializer{Array: elems}
	}
	return &mir.Initializer{Scalar: scalarConst(*lit.Scalar, t)}
}

func scalarConst(op Operand, t *mir.Type) *mir.Const {
	switch {
	case op.Bool != nil:
		return mir.ConstBool(*op.Bool == "true")
	case op.Float != nil:
		return mir.ConstFloat(*op.Float)
	case op.Int != nil:
		if t.IsFloat() {
			return mir.ConstFloat(float64(*op.Int))
		}
		return mir.ConstInt(*op.Int)
	default:
		panic(fmt.Errorf("mirtext: global initializer must be a literal constant"))
	}
}

// funcBuilder holds one function's local name/block symbol tables
// while its body is constructed.
type funcBuilder struct {
	b       *builder
	f       *mir.Function
	locals  map[string]mir.Value
	blocks  map[string]*mir.Block
	phiSrcs map[*mir.Instruction][]*PhiIncoming
}

func (b *builder) defineFunc(fd *FuncDecl) {
	f, _ := b.m.LookupFunction(stripSigil(fd.Name))
	fb := &funcBuilder{b: b, f: f, locals: map[string]mir.Value{}, blocks: map[string]*mir.Block{}}
	for _, p := range f.Params {
		fb.locals[p.ValName()] = p
	}

	// Pass 1: create every block and every PHI up front (registering
	// PHI result names), so a loop back-edge's incoming value can
	// reference a PHI that textually appears earlier in the function.
	for _, bd := range fd.Blocks {
		blk := mir.NewBlock(bd.Label)
		f.AddBlock(blk)
		fb.blocks[bd.Label] = blk
	}
	fb.phiSrcs = map[*mir.Instruction][]*PhiIncoming{}
	for _, bd := range fd.Blocks {
		blk := fb.blocks[bd.Label]
		for _, in := range bd.Instr {
			if in.Phi == nil {
				continue
			}
			inst := mir.NewPhi(stripSigil(in.Phi.Name), buildType(in.Phi.Type), blk)
			fb.locals[stripSigil(in.Phi.Name)] = inst
			fb.phiSrcs[inst] = in.Phi.Incoming
		}
	}

	// Pass 2: build every non-PHI instruction in textual order.
	for _, bd := range fd.Blocks {
		blk := fb.blocks[bd.Label]
		for _, in := range bd.Instr {
			if in.Phi == nil {
				fb.buildInstr(blk, in)
			}
		}
	}

	// Pass 3: now that every value in the function exists, wire up
	// every PHI's incoming edges.
	for inst, incoming := range fb.phiSrcs {
		for _, pi := range incoming {
			pred, ok := fb.blocks[pi.Pred]
			if !ok {
				panic(fmt.Errorf("mirtext: phi incoming from unknown block %q", pi.Pred))
			}
			inst.AddIncoming(pred, fb.resolve(pi.Val))
		}
	}
}

func (fb *funcBuilder) resolve(op Operand) mir.Value {
	switch {
	case op.Local != nil:
		name := stripSigil(*op.Local)
		v, ok := fb.locals[name]
		if !ok {
			panic(fmt.Errorf("mirtext: undefined local %%%s", name))
		}
		return v
	case op.Global != nil:
		name := stripSigil(*op.Global)
		if g, ok := fb.b.m.LookupGlobal(name); ok {
			return g
		}
		if f, ok := fb.b.m.LookupFunction(name); ok {
			return f
		}
		panic(fmt.Errorf("mirtext: undefined global @%s", name))
	case op.Bool != nil:
		return mir.ConstBool(*op.Bool == "true")
	case op.Float != nil:
		return mir.ConstFloat(*op.Float)
	case op.Int != nil:
		return mir.ConstInt(*op.Int)
	default:
		panic(fmt.Errorf("mirtext: empty operand"))
	}
}

func (fb *funcBuilder) buildInstr(blk *mir.Block, in *Instr) {
	switch {
	case in.Alloc != nil:
		x := in.Alloc
		inst := mir.NewAlloc(stripSigil(x.Name), buildType(x.Type), blk)
		fb.locals[stripSigil(x.Name)] = inst

	case in.Load != nil:
		x := in.Load
		inst := mir.NewLoad(stripSigil(x.Name), fb.resolve(x.Addr), blk)
		fb.locals[stripSigil(x.Name)] = inst

	case in.Store != nil:
		x := in.Store
		mir.NewStore(fb.resolve(x.Addr), fb.resolve(x.Val), blk)

	case in.Gep != nil:
		x := in.Gep
		idx := make([]mir.Value, len(x.Indices))
		for i, o := range x.Indices {
			idx[i] = fb.resolve(o)
		}
		inst := mir.NewGep(stripSigil(x.Name), fb.resolve(x.Base), idx, buildType(x.Type), blk)
		fb.locals[stripSigil(x.Name)] = inst

	case in.Bitcast != nil:
		x := in.Bitcast
		inst := mir.NewBitcast(stripSigil(x.Name), fb.resolve(x.Val), buildType(x.To), blk)
		fb.locals[stripSigil(x.Name)] = inst

	case in.FNeg != nil:
		x := in.FNeg
		inst := mir.NewFNeg(stripSigil(x.Name), fb.resolve(x.Val), blk)
		fb.locals[stripSigil(x.Name)] = inst

	case in.IntBin != nil:
		x := in.IntBin
		inst := mir.NewIntBinary(stripSigil(x.Name), x.Op, fb.resolve(x.Lhs), fb.resolve(x.Rhs), blk)
		fb.locals[stripSigil(x.Name)] = inst

	case in.FloatBin != nil:
		x := in.FloatBin
		inst := mir.NewFloatBinary(stripSigil(x.Name), x.Op, fb.resolve(x.Lhs), fb.resolve(x.Rhs), blk)
		fb.locals[stripSigil(x.Name)] = inst

	case in.FloatTer != nil:
		x := in.FloatTer
		inst := mir.NewFloatTernary(stripSigil(x.Name), x.Op, fb.resolve(x.X), fb.resolve(x.Y), fb.resolve(x.Z), blk)
		fb.locals[stripSigil(x.Name)] = inst

	case in.ICmp != nil:
		x := in.ICmp
		inst := mir.NewICmp(stripSigil(x.Name), x.Op, fb.resolve(x.Lhs), fb.resolve(x.Rhs), blk)
		fb.locals[stripSigil(x.Name)] = inst

	case in.FCmp != nil:
		x := in.FCmp
		inst := mir.NewFCmp(stripSigil(x.Name), x.Op, fb.resolve(x.Lhs), fb.resolve(x.Rhs), blk)
		fb.locals[stripSigil(x.Name)] = inst

	case in.ZExt != nil:
		x := in.ZExt
		inst := mir.NewZExt(stripSigil(x.Name), fb.resolve(x.Val), buildType(x.To), blk)
		fb.locals[stripSigil(x.Name)] = inst

	case in.FPToSI != nil:
		x := in.FPToSI
		inst := mir.NewFPToSI(stripSigil(x.Name), fb.resolve(x.Val), buildType(x.To), blk)
		fb.locals[stripSigil(x.Name)] = inst

	case in.SIToFP != nil:
		x := in.SIToFP
		inst := mir.NewSIToFP(stripSigil(x.Name), fb.resolve(x.Val), buildType(x.To), blk)
		fb.locals[stripSigil(x.Name)] = inst

	case in.Branch != nil:
		x := in.Branch
		mir.NewBranch(fb.resolve(x.Cond), fb.blockOf(x.True), fb.blockOf(x.False), blk)

	case in.Jump != nil:
		x := in.Jump
		mir.NewJump(fb.blockOf(x.Target), blk)

	case in.Switch != nil:
		x := in.Switch
		var cases []mir.SwitchCase
		for _, c := range x.Cases {
			cv, ok := fb.resolve(c.Const).(*mir.Const)
			if !ok {
				panic(fmt.Errorf("mirtext: switch case value must be a constant"))
			}
			cases = append(cases, mir.SwitchCase{Const: cv, Block: fb.blockOf(c.Block)})
		}
		mir.NewSwitch(fb.resolve(x.Scrutinee), fb.blockOf(x.Default), cases, blk)

	case in.Ret != nil:
		x := in.Ret
		if x.Val == nil {
			mir.NewRet(nil, blk)
		} else {
			mir.NewRet(fb.resolve(*x.Val), blk)
		}

	case in.Call != nil:
		x := in.Call
		callee, ok := fb.b.m.LookupFunction(stripSigil(x.Callee))
		if !ok {
			panic(fmt.Errorf("mirtext: call to undefined function @%s", stripSigil(x.Callee)))
		}
		args := make([]mir.Value, len(x.Args))
		for i, o := range x.Args {
			args[i] = fb.resolve(o)
		}
		inst := mir.NewCall(stripSigil(x.Name), callee, args, blk)
		if x.Name != "" {
			fb.locals[stripSigil(x.Name)] = inst
		}

	default:
		panic(fmt.Errorf("mirtext: empty instruction"))
	}
}

func (fb *funcBuilder) blockOf(label string) *mir.Block {
	blk, ok := fb.blocks[label]
	if !ok {
		panic(fmt.Errorf("mirtext: reference to undefined block %q", label))
	}
	return blk
}

func stripSigil(s string) string {
	if len(s) > 0 && (s[0] == '%' || s[0] == '@') {
		return s[1:]
	}
	return s
}
