package mirtext

import (
	"fmt"
	"strconv"
	"strings"

	"sysyc/internal/mir"
)

// Print renders m as textual MIR, in exactly the syntax grammar.go/
// parse.go accept — used by cmd/mirfmt, by cmd/sysyc's `-emit mir`, and
// by this package's round-trip tests (spec.md §8 property 10:
// `emit(parse(emit(M))) = emit(M)`).
func Print(m *mir.Module) string {
	var b strings.Builder
	for _, g := range m.Globals {
		printGlobal(&b, g)
	}
	for _, f := range m.Functions {
		printFunc(&b, f)
	}
	return b.String()
}

func printGlobal(b *strings.Builder, g *mir.GlobalVariable) {
	constKw := ""
	if g.IsConstant {
		constKw = " const"
	}
	fmt.Fprintf(b, "global @%s%s : %s = %s;\n", g.ValName(), constKw, g.ElemType(), printInit(g.Init))
}

func printInit(init *mir.Initializer) string {
	if init.Scalar != nil {
		return printConst(init.Scalar)
	}
	parts := make([]string, len(init.Array))
	for i, e := range init.Array {
		parts[i] = printInit(e)
	}
	return "{ " + strings.Join(parts, ", ") + " }"
}

func printConst(c *mir.Const) string {
	switch {
	case c.IsBool:
		if c.BoolV {
			return "true"
		}
		return "false"
	case c.ValType().IsFloat():
		return printFloat(c.FloatV)
	default:
		return strconv.FormatInt(int64(c.IntV), 10)
	}
}

func printFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func printFunc(b *strings.Builder, f *mir.Function) {
	var params []string
	for _, p := range f.Params {
		params = append(params, fmt.Sprintf("%s %%%s", p.ValType(), p.ValName()))
	}
	extern := ""
	if f.Runtime {
		extern = "extern "
	}
	fmt.Fprintf(b, "%sfunc @%s(%s) -> %s", extern, f.Name, strings.Join(params, ", "), f.ReturnType)
	if f.Runtime {
		fmt.Fprintln(b)
		return
	}
	fmt.Fprintln(b, " {")
	for _, blk := range f.Blocks {
		fmt.Fprintf(b, "%s:\n", blk.ValName())
		for _, inst := range blk.Instructions {
			fmt.Fprintf(b, "  %s\n", printInstr(inst))
		}
	}
	fmt.Fprintln(b, "}")
}

// printOperand renders any mir.Value the way an instruction operand or
// a PHI/SWITCH edge spells it: "%name" for a local SSA value, "@name"
// for a global/function, the literal text for a Const.
func printOperand(v mir.Value) string {
	switch x := v.(type) {
	case *mir.Const:
		return printConst(x)
	case *mir.GlobalVariable, *mir.Function:
		return "@" + v.ValName()
	default:
		return "%" + v.ValName()
	}
}

func printInstr(inst *mir.Instruction) string {
	switch inst.Op {
	case mir.OpAlloc:
		return fmt.Sprintf("%%%s = alloc %s;", inst.ValName(), inst.ValType().Elem)
	case mir.OpLoad:
		return fmt.Sprintf("%%%s = load %s;", inst.ValName(), printOperand(inst.Operand(0)))
	case mir.OpStore:
		return fmt.Sprintf("store %s, %s;", printOperand(inst.Operand(0)), printOperand(inst.Operand(1)))
	case mir.OpGep:
		parts := []string{printOperand(inst.GepBase())}
		for _, idx := range inst.GepIndices() {
			parts = append(parts, printOperand(idx))
		}
		return fmt.Sprintf("%%%s = gep %s, %s;", inst.ValName(), inst.ValType(), strings.Join(parts, ", "))
	case mir.OpBitcast:
		return fmt.Sprintf("%%%s = bitcast %s to %s;", inst.ValName(), printOperand(inst.Operand(0)), inst.ToType)
	case mir.OpFNeg:
		return fmt.Sprintf("%%%s = fneg %s;", inst.ValName(), printOperand(inst.Operand(0)))
	case mir.OpIntBinary:
		return fmt.Sprintf("%%%s = intbinary %s %s, %s;", inst.ValName(), inst.SubOp,
			printOperand(inst.Operand(0)), printOperand(inst.Operand(1)))
	case mir.OpFloatBinary:
		return fmt.Sprintf("%%%s = floatbinary %s %s, %s;", inst.ValName(), inst.SubOp,
			printOperand(inst.Operand(0)), printOperand(inst.Operand(1)))
	case mir.OpFloatTernary:
		return fmt.Sprintf("%%%s = floatternary %s %s, %s, %s;", inst.ValName(), inst.SubOp,
			printOperand(inst.Operand(0)), printOperand(inst.Operand(1)), printOperand(inst.Operand(2)))
	case mir.OpICmp:
		return fmt.Sprintf("%%%s = icmp %s %s, %s;", inst.ValName(), inst.SubOp,
			printOperand(inst.Operand(0)), printOperand(inst.Operand(1)))
	case mir.OpFCmp:
		return fmt.Sprintf("%%%s = fcmp %s %s, %s;", inst.ValName(), inst.SubOp,
			printOperand(inst.Operand(0)), printOperand(inst.Operand(1)))
	case mir.OpZExt:
		return fmt.Sprintf("%%%s = zext %s to %s;", inst.ValName(), printOperand(inst.Operand(0)), inst.ToType)
	case mir.OpFPToSI:
		return fmt.Sprintf("%%%s = fptosi %s to %s;", inst.ValName(), printOperand(inst.Operand(0)), inst.ToType)
	case mir.OpSIToFP:
		return fmt.Sprintf("%%%s = sitofp %s to %s;", inst.ValName(), printOperand(inst.Operand(0)), inst.ToType)
	case mir.OpPhi:
		var edges []string
		for _, pred := range inst.IncomingBlocks() {
			edges = append(edges, fmt.Sprintf("[%s, %s]", pred.ValName(), printOperand(inst.IncomingFrom(pred))))
		}
		return fmt.Sprintf("%%%s = phi %s %s;", inst.ValName(), inst.ValType(), strings.Join(edges, ""))
	case mir.OpBranch:
		return fmt.Sprintf("br %s, %s, %s;", printOperand(inst.Cond()), inst.TrueBlock().ValName(), inst.FalseBlock().ValName())
	case mir.OpJump:
		return fmt.Sprintf("jump %s;", inst.JumpTarget().ValName())
	case mir.OpSwitch:
		var cases []string
		for _, c := range inst.Cases() {
			cases = append(cases, fmt.Sprintf("[%s, %s]", printConst(c.Const), c.Block.ValName()))
		}
		return fmt.Sprintf("switch %s, %s %s;", printOperand(inst.Scrutinee()), inst.DefaultBlock().ValName(), strings.Join(cases, ""))
	case mir.OpRet:
		if v := inst.RetValue(); v != nil {
			return fmt.Sprintf("ret %s;", printOperand(v))
		}
		return "ret;"
	case mir.OpCall:
		var args []string
		for _, a := range inst.Args() {
			args = append(args, printOperand(a))
		}
		prefix := ""
		if inst.ValType() != nil && !inst.ValType().IsVoid() {
			prefix = "%" + inst.ValName() + " = "
		}
		return fmt.Sprintf("%scall @%s(%s);", prefix, inst.Callee().Name, strings.Join(args, ", "))
	default:
		return fmt.Sprintf("// unknown instruction %s", inst.Op)
	}
}
