package riscv

import (
	"fmt"
	"math"
	"strings"
)

// Emit register-allocates each function of a lowered, PHI-removed
// Program (via Allocate) and renders the result as GNU-assembler text
// for RV64GC (spec.md §4.11's
// "Emission"): `.rodata` for constant strings, `.data` for mutable
// globals, `.text` with `main` exported and every other function
// labeled, each block as a local `.funcname.blockname` label.
func Emit(p *Program) string {
	var b strings.Builder
	emitRodata(&b, p)
	emitData(&b, p)
	emitText(&b, p)
	return b.String()
}

func emitRodata(b *strings.Builder, p *Program) {
	if len(p.ConstStrings) == 0 {
		return
	}
	fmt.Fprintln(b, "\t.section\t.rodata")
	for i, s := range p.ConstStrings {
		fmt.Fprintf(b, ".str_%d:\n", i)
		fmt.Fprintf(b, "\t.string\t%q\n", s)
	}
}

func emitData(b *strings.Builder, p *Program) {
	var consts, mutables []globalDatum
	for _, g := range p.Globals {
		if g.IsConstant {
			consts = append(consts, g)
		} else {
			mutables = append(mutables, g)
		}
	}
	for _, section := range []struct {
		directive string
		data      []globalDatum
	}{{".section\t.rodata", consts}, {".data", mutables}} {
		if len(section.data) == 0 {
			continue
		}
		fmt.Fprintf(b, "\t%s\n", section.directive)
		for _, g := range section.data {
			fmt.Fprintf(b, "\t.globl\t%s\n", g.Name)
			fmt.Fprintf(b, "%s:\n", g.Name)
			emitGlobalWords(b, g)
		}
	}
}

func emitGlobalWords(b *strings.Builder, g globalDatum) {
	zeroRun := 0
	flush := func() {
		if zeroRun > 0 {
			fmt.Fprintf(b, "\t.zero\t%d\n", zeroRun*wordSize)
			zeroRun = 0
		}
	}
	for i := 0; i < g.WordCount; i++ {
		if i >= len(g.Words) || g.Words[i] == 0 {
			zeroRun++
			continue
		}
		flush()
		if g.IsFloat {
			fmt.Fprintf(b, "\t.word\t%d\n", uint32(g.Words[i]))
			fmt.Fprintf(b, "\t.zero\t4\n")
		} else {
			fmt.Fprintf(b, "\t.dword\t%d\n", int64(int32(g.Words[i])))
		}
	}
	flush()
}

func emitText(b *strings.Builder, p *Program) {
	fmt.Fprintln(b, "\t.section\t.text")
	for _, f := range p.Functions {
		Allocate(f)
		if f.Name == p.MainName {
			fmt.Fprintf(b, "\t.globl\t%s\n", f.Name)
		}
		emitFunction(b, f)
	}
}

// frameBytes rounds the frame (locals + spills + saved ra/s0) up to
// the 16-byte alignment RV64's calling convention requires.
func frameBytes(f *LFunction) int {
	total := f.FrameSize + 2*wordSize // ra, s0
	return (total + 15) &^ 15
}

func emitFunction(b *strings.Builder, f *LFunction) {
	fmt.Fprintf(b, "%s:\n", f.Name)
	frame := frameBytes(f)
	fmt.Fprintf(b, "\taddi\tsp, sp, -%d\n", frame)
	// ra/s0 are saved at the bottom of the frame (closest to sp), not
	// the top (closest to s0): every local/spill FrameSlot offset is a
	// small negative displacement from s0, and frameBytes reserves 16
	// bytes beyond FrameSize precisely so this range never overlaps.
	fmt.Fprintf(b, "\tsd\tra, 0(sp)\n")
	fmt.Fprintf(b, "\tsd\ts0, %d(sp)\n", wordSize)
	fmt.Fprintf(b, "\taddi\ts0, sp, %d\n", frame)

	e := &emitter{b: b, f: f, frame: frame}
	e.emitParamMoves()

	for _, blk := range f.Blocks {
		// The entry block's label is emitted too (harmless if never
		// jumped to): a natural loop's header can legally be the
		// entry block after TailRecursionToLoop rewrites self-tail
		// recursion into a back-edge there.
		fmt.Fprintf(b, "%s:\n", blk.Label)
		for _, in := range blk.Instrs {
			e.emitInstr(in)
		}
	}
}

type emitter struct {
	b     *strings.Builder
	f     *LFunction
	frame int
}

func (e *emitter) line(format string, args ...any) {
	fmt.Fprintf(e.b, "\t"+format+"\n", args...)
}

// emitParamMoves copies each incoming argument from its ABI register
// into the parameter vreg's allocated location — the RV64 convention
// spec.md §4.11 specifies, widened to the full ai/fai window (reg.go).
func (e *emitter) emitParamMoves() {
	var ints, floats int
	for _, p := range e.f.Params {
		vr := p.(VReg)
		regs := argRegs(vr.Class)
		var src string
		if vr.Class == classFloat {
			if floats < len(regs) {
				src = regs[floats]
			}
			floats++
		} else {
			if ints < len(regs) {
				src = regs[ints]
			}
			ints++
		}
		if src == "" {
			continue // beyond 8 scalars of one class: left on the caller's stack, not modeled
		}
		e.storeResult(vr, src)
	}
}

func (e *emitter) loc(v VReg) allocLoc { return e.f.allocation[v] }

// loadOperand materializes op into a real register, using scratch
// when op is a spilled vreg, an immediate, a frame address, or a
// global address; returns a register name (or the immediate's own
// register once loaded).
func (e *emitter) loadOperand(op Operand, scratch string, float bool) string {
	switch v := op.(type) {
	case VReg:
		loc := e.loc(v)
		if loc.Reg != "" {
			return loc.Reg
		}
		if float {
			e.line("flw\t%s, %d(s0)", scratch, loc.SpillOff)
		} else {
			e.line("ld\t%s, %d(s0)", scratch, loc.SpillOff)
		}
		return scratch
	case Imm:
		if float {
			bits := math.Float32bits(float32(v.F))
			e.line("li\tt6, %d", int32(bits))
			e.line("fmv.w.x\t%s, t6", scratch)
		} else {
			e.line("li\t%s, %d", scratch, v.I)
		}
		return scratch
	case Global:
		e.line("la\t%s, %s", scratch, v.Symbol)
		return scratch
	case FrameSlot:
		e.line("addi\t%s, s0, %d", scratch, v.Offset)
		return scratch
	default:
		return scratch
	}
}

// storeResult writes srcReg into dst's allocated location (a direct
// register move, or a spill store).
func (e *emitter) storeResult(dst Operand, srcReg string) {
	v, ok := dst.(VReg)
	if !ok {
		return
	}
	loc := e.loc(v)
	float := v.Class == classFloat
	if loc.Reg != "" {
		if loc.Reg == srcReg {
			return
		}
		if float {
			e.line("fmv.s\t%s, %s", loc.Reg, srcReg)
		} else {
			e.line("mv\t%s, %s", loc.Reg, srcReg)
		}
		return
	}
	if float {
		e.line("fsw\t%s, %d(s0)", srcReg, loc.SpillOff)
	} else {
		e.line("sd\t%s, %d(s0)", srcReg, loc.SpillOff)
	}
}

var intBinMnemonic = map[string]string{
	"ADD": "add", "SUB": "sub", "MUL": "mul", "DIV": "div", "MOD": "rem",
	"AND": "and", "OR": "or", "XOR": "xor",
	// SMAX/SMIN have no base-ISA form; emitted as the Zbb max/min
	// mnemonics, the one place this backend reaches past the strict
	// RV64G base spec.md's "RV64GC-compatible subset" allows for.
	"SMAX": "max", "SMIN": "min",
}

var floatBinMnemonic = map[string]string{
	"ADD": "fadd.s", "SUB": "fsub.s", "MUL": "fmul.s", "DIV": "fdiv.s",
	"SMAX": "fmax.s", "SMIN": "fmin.s",
}

var cmpBranchMnemonic = map[string]string{
	"EQ": "beq", "NE": "bne", "LT": "blt", "LE": "ble", "GT": "bgt", "GE": "bge",
}

var cmpSetCode = map[string]string{
	"EQ": "seqz", "NE": "snez",
}

func (e *emitter) emitInstr(in *LInstr) {
	ints := scratchRegs(classInt)
	floats := scratchRegs(classFloat)
	switch in.Op {
	case LMove:
		float := in.Dst.(VReg).Class == classFloat
		src := e.loadOperand(in.Src1, pick(float, floats[0], ints[0]), float)
		e.storeResult(in.Dst, src)

	case LLoadAddr:
		dst := e.loadOperand(in.Src1, ints[0], false)
		e.storeResult(in.Dst, dst)

	case LLoadW, LLoadF:
		addr := e.loadOperand(in.Src1, ints[0], false)
		isFloat := in.Op == LLoadF
		dst := pick(isFloat, floats[0], ints[1])
		if isFloat {
			e.line("flw\t%s, 0(%s)", dst, addr)
		} else {
			e.line("ld\t%s, 0(%s)", dst, addr)
		}
		e.storeResult(in.Dst, dst)

	case LStoreW, LStoreF:
		addr := e.loadOperand(in.Dst, ints[0], false)
		isFloat := in.Op == LStoreF
		val := e.loadOperand(in.Src1, pick(isFloat, floats[0], ints[1]), isFloat)
		if isFloat {
			e.line("fsw\t%s, 0(%s)", val, addr)
		} else {
			e.line("sd\t%s, 0(%s)", val, addr)
		}

	case LIntBin:
		a := e.loadOperand(in.Src1, ints[0], false)
		bOp := e.loadOperand(in.Src2, ints[1], false)
		e.line("%s\t%s, %s, %s", intBinMnemonic[in.SubOp], ints[0], a, bOp)
		e.storeResult(in.Dst, ints[0])

	case LFloatBin:
		a := e.loadOperand(in.Src1, floats[0], true)
		bOp := e.loadOperand(in.Src2, floats[1], true)
		e.line("%s\t%s, %s, %s", floatBinMnemonic[in.SubOp], floats[0], a, bOp)
		e.storeResult(in.Dst, floats[0])

	case LFloatMA:
		x := e.loadOperand(in.Src1, floats[0], true)
		y := e.loadOperand(in.Src2, floats[1], true)
		z := e.loadOperand(in.Src3, floats[2], true)
		e.line("%s\t%s, %s, %s, %s", strings.ToLower(in.SubOp)+".s", floats[0], x, y, z)
		e.storeResult(in.Dst, floats[0])

	case LFNeg:
		x := e.loadOperand(in.Src1, floats[0], true)
		e.line("fneg.s\t%s, %s", floats[0], x)
		e.storeResult(in.Dst, floats[0])

	case LCmpSet:
		e.emitCmpSet(in, ints, floats)

	case LZExt:
		src := e.loadOperand(in.Src1, ints[0], false)
		if src != ints[0] {
			e.line("mv\t%s, %s", ints[0], src)
		}
		e.storeResult(in.Dst, ints[0])

	case LI2F:
		src := e.loadOperand(in.Src1, ints[0], false)
		e.line("fcvt.s.w\t%s, %s", floats[0], src)
		e.storeResult(in.Dst, floats[0])

	case LF2I:
		src := e.loadOperand(in.Src1, floats[0], true)
		e.line("fcvt.w.s\t%s, %s, rtz", ints[0], src)
		e.storeResult(in.Dst, ints[0])

	case LBranch:
		isFloat := operandIsFloat(in.Src1)
		a := e.loadOperand(in.Src1, pick(isFloat, floats[0], ints[0]), isFloat)
		bOp := e.loadOperand(in.Src2, pick(isFloat, floats[1], ints[1]), isFloat)
		if isFloat {
			e.emitFloatBranch(in, a, bOp, ints[0])
			return
		}
		e.line("%s\t%s, %s, %s", cmpBranchMnemonic[in.SubOp], a, bOp, in.Then.Label)
		e.line("j\t%s", in.Else.Label)

	case LJump:
		e.line("j\t%s", in.Target.Label)

	case LCall:
		e.emitCall(in)

	case LRet:
		if in.Src1 != nil {
			float := operandIsFloat(in.Src1)
			v := e.loadOperand(in.Src1, pick(float, floats[0], ints[0]), float)
			if float {
				if v != retFloatReg {
					e.line("fmv.s\t%s, %s", retFloatReg, v)
				}
			} else if v != retIntReg {
				e.line("mv\t%s, %s", retIntReg, v)
			}
		}
		e.line("ld\tra, 0(sp)")
		e.line("ld\ts0, %d(sp)", wordSize)
		e.line("addi\tsp, sp, %d", e.frame)
		e.line("ret")
	}
}

func pick(cond bool, a, b string) string {
	if cond {
		return a
	}
	return b
}

func operandIsFloat(op Operand) bool {
	switch v := op.(type) {
	case VReg:
		return v.Class == classFloat
	case Imm:
		return v.Float
	default:
		return false
	}
}

// emitCmpSet materializes an ICmp/FCmp result as 0/1 in an integer
// register, for a comparison that escapes its BRANCH (lower.go's
// lowerCompare) — e.g. `int ok = a < b;`. EQ/NE reduce directly to
// seqz/snez of a subtraction; the four ordered comparisons are
// synthesized from a forward/backward branch around `li 0`/`li 1`.
func (e *emitter) emitCmpSet(in *LInstr, ints, floats []string) {
	isFloat := operandIsFloat(in.Src1)
	a := e.loadOperand(in.Src1, pick(isFloat, floats[0], ints[0]), isFloat)
	bOp := e.loadOperand(in.Src2, pick(isFloat, floats[1], ints[1]), isFloat)

	if !isFloat {
		if mnem, ok := cmpSetCode[in.SubOp]; ok {
			e.line("sub\t%s, %s, %s", ints[0], a, bOp)
			e.line("%s\t%s, %s", mnem, ints[0], ints[0])
			e.storeResult(in.Dst, ints[0])
			return
		}
		e.line("%s\t%s, %s, 1f", cmpBranchMnemonic[in.SubOp], a, bOp)
		e.line("li\t%s, 0", ints[0])
		e.line("j\t2f")
		fmt.Fprintln(e.b, "1:")
		e.line("li\t%s, 1", ints[0])
		fmt.Fprintln(e.b, "2:")
		e.storeResult(in.Dst, ints[0])
		return
	}

	mnem := map[string]string{"EQ": "feq.s", "LT": "flt.s", "LE": "fle.s"}[in.SubOp]
	switch in.SubOp {
	case "EQ", "LT", "LE":
		e.line("%s\t%s, %s, %s", mnem, ints[0], a, bOp)
	case "NE":
		e.line("feq.s\t%s, %s, %s", ints[0], a, bOp)
		e.line("xori\t%s, %s, 1", ints[0], ints[0])
	case "GT":
		e.line("flt.s\t%s, %s, %s", ints[0], bOp, a)
	case "GE":
		e.line("fle.s\t%s, %s, %s", ints[0], bOp, a)
	}
	e.storeResult(in.Dst, ints[0])
}

// emitFloatBranch expands a float comparison feeding a BRANCH into an
// feq/flt/fle producing 0/1 in scratch, then a bnez/beqz on that.
func (e *emitter) emitFloatBranch(in *LInstr, a, b, scratch string) {
	switch in.SubOp {
	case "EQ":
		e.line("feq.s\t%s, %s, %s", scratch, a, b)
		e.line("bnez\t%s, %s", scratch, in.Then.Label)
	case "NE":
		e.line("feq.s\t%s, %s, %s", scratch, a, b)
		e.line("beqz\t%s, %s", scratch, in.Then.Label)
	case "LT":
		e.line("flt.s\t%s, %s, %s", scratch, a, b)
		e.line("bnez\t%s, %s", scratch, in.Then.Label)
	case "LE":
		e.line("fle.s\t%s, %s, %s", scratch, a, b)
		e.line("bnez\t%s, %s", scratch, in.Then.Label)
	case "GT":
		e.line("fle.s\t%s, %s, %s", scratch, a, b)
		e.line("beqz\t%s, %s", scratch, in.Then.Label)
	case "GE":
		e.line("flt.s\t%s, %s, %s", scratch, a, b)
		e.line("beqz\t%s, %s", scratch, in.Then.Label)
	}
	e.line("j\t%s", in.Else.Label)
}

// emitCall marshals arguments into a0-a7/fa0-fa7 (overflow beyond
// eight of one class is pushed to the stack just below the call, the
// widened-but-still-bounded ABI window reg.go documents), issues the
// call, and copies the return value (if any) out of a0/fa0.
func (e *emitter) emitCall(in *LInstr) {
	ints := scratchRegs(classInt)
	floats := scratchRegs(classFloat)
	var nInt, nFloat int
	var stackArgs []string
	for _, arg := range in.Args {
		float := operandIsFloat(arg)
		class := classInt
		if float {
			class = classFloat
		}
		regs := argRegs(class)
		idx := nInt
		if float {
			idx = nFloat
		}
		if idx < len(regs) {
			v := e.loadOperand(arg, pick(float, floats[0], ints[0]), float)
			if v != regs[idx] {
				if float {
					e.line("fmv.s\t%s, %s", regs[idx], v)
				} else {
					e.line("mv\t%s, %s", regs[idx], v)
				}
			}
		} else {
			v := e.loadOperand(arg, pick(float, floats[0], ints[0]), float)
			stackArgs = append(stackArgs, v)
		}
		if float {
			nFloat++
		} else {
			nInt++
		}
	}
	for i, v := range stackArgs {
		e.line("sd\t%s, %d(sp)", v, i*wordSize)
	}
	e.line("call\t%s", in.Callee)
	if !in.CalleeVoid {
		if in.CalleeFloat {
			e.storeResult(in.Dst, retFloatReg)
		} else {
			e.storeResult(in.Dst, retIntReg)
		}
	}
}
