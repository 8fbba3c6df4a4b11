package transform

import (
	"sysyc/internal/analysis"
	"sysyc/internal/mir"
	"sysyc/internal/pass"
)

// TailRecursionToLoop rewrites a no_state self-recursive function
// whose only exit-path calls are to itself — returned directly, or
// accumulated through an associative-commutative operator with an
// identity element — into an ordinary loop (spec.md §4.9).
type TailRecursionToLoop struct{}

func (TailRecursionToLoop) Name() string { return "TailRecursionToLoop" }

func (TailRecursionToLoop) Run(m *mir.Module, mgr *pass.Manager) bool {
	anyChanged := false
	summaries := analysis.SummariesOf(mgr)
	for _, f := range m.DefinedFunctions() {
		if !summaries.Of(f).NoState {
			continue
		}
		if convertTailRecursion(f, mgr) {
			anyChanged = true
		}
	}
	return anyChanged
}

// tailCallSite is one RET block whose value is exactly a self-call
// (AccOp == "") or an associative-commutative combination of a
// self-call with some other, loop-invariant-per-iteration value.
type tailCallSite struct {
	Block    *mir.Block
	Call     *mir.Instruction
	Ret      *mir.Instruction
	AccExpr  *mir.Instruction // the IntBinary/FloatBinary, or nil
	AccOp    string
	AccOther mir.Value
}

func convertTailRecursion(f *mir.Function, mgr *pass.Manager) bool {
	entry := f.Entry()
	if entry == nil {
		return false
	}

	// Conservative precondition: no call anywhere in the function
	// other than to itself. A full "only calls on exit paths are
	// the function itself" check would need a per-path reachability
	// walk to every RET; restricting to "no other callee at all"
	// trades some missed opportunities for a simple, sound check.
	for _, b := range f.Blocks {
		if b.Deleted {
			continue
		}
		for _, inst := range b.Instructions {
			if inst.Op == mir.OpCall && inst.Callee() != f {
				return false
			}
		}
	}

	var sites []tailCallSite
	for _, b := range f.Blocks {
		if b.Deleted {
			continue
		}
		term := b.Terminator()
		if term == nil || term.Op != mir.OpRet {
			continue
		}
		if site, matched := matchTailCall(f, b, term); matched {
			sites = append(sites, site)
		}
	}
	if len(sites) == 0 {
		return false
	}
	accOp := sites[0].AccOp
	for _, s := range sites[1:] {
		if s.AccOp != accOp {
			return false // inconsistent accumulator shape; bail out
		}
	}

	newEntry := mir.NewBlock(entry.ValName() + ".preheader")
	f.Blocks = append([]*mir.Block{newEntry}, f.Blocks...)
	mir.NewJump(entry, newEntry)

	var accPhi *mir.Instruction
	if accOp != "" {
		typ := sites[0].AccExpr.ValType()
		accPhi = mir.NewPhi("accum", typ, entry)
		accPhi.AddIncoming(newEntry, identityFor(sites[0].AccExpr.Op, accOp, typ))
	}

	paramPhis := make([]*mir.Instruction, len(f.Params))
	for i, p := range f.Params {
		phi := mir.NewPhi(p.ValName()+".loop", p.ValType(), entry)
		mir.ReplaceAllUsesWith(p, phi)
		phi.AddIncoming(newEntry, p)
		paramPhis[i] = phi
	}

	for _, s := range sites {
		args := s.Call.Args()
		for i, phi := range paramPhis {
			var argVal mir.Value
			if i < len(args) {
				argVal = args[i]
			}
			phi.AddIncoming(s.Block, argVal)
		}
		if accPhi != nil {
			// The combining instruction stays, now folding this
			// iteration's other operand into the running accumulator.
			s.AccExpr.ModifyOperand(s.Call, accPhi)
			accPhi.AddIncoming(s.Block, s.AccExpr)
		}

		s.Ret.ClearOperands()
		s.Block.RemoveInstruction(s.Ret)
		s.Call.ClearOperands()
		s.Block.RemoveInstruction(s.Call)
		mir.NewJump(entry, s.Block)
	}

	if accPhi != nil {
		isTailBlock := map[*mir.Block]bool{}
		for _, s := range sites {
			isTailBlock[s.Block] = true
		}
		for _, b := range f.Blocks {
			if b.Deleted || b == newEntry || isTailBlock[b] {
				continue
			}
			term := b.Terminator()
			if term == nil || term.Op != mir.OpRet {
				continue
			}
			baseVal := term.RetValue()
			if baseVal == nil {
				continue
			}
			var combined *mir.Instruction
			if sites[0].AccExpr.Op == mir.OpFloatBinary {
				combined = mir.NewFloatBinary("accum.result", accOp, baseVal, accPhi, nil)
			} else {
				combined = mir.NewIntBinary("accum.result", accOp, baseVal, accPhi, nil)
			}
			b.InsertBefore(term, combined)
			term.ModifyOperand(baseVal, combined)
		}
	}

	mgr.InvalidateAll(f)
	return true
}

func matchTailCall(f *mir.Function, b *mir.Block, ret *mir.Instruction) (tailCallSite, bool) {
	v := ret.RetValue()
	inst, ok := v.(*mir.Instruction)
	if !ok {
		return tailCallSite{}, false
	}
	if inst.Op == mir.OpCall && inst.Callee() == f {
		return tailCallSite{Block: b, Call: inst, Ret: ret}, true
	}
	if inst.Op == mir.OpIntBinary || inst.Op == mir.OpFloatBinary {
		if !isAssocCommutativeWithIdentity(inst.SubOp) {
			return tailCallSite{}, false
		}
		call, other, found := pickCallOperand(f, inst.Operand(0), inst.Operand(1))
		if !found {
			return tailCallSite{}, false
		}
		return tailCallSite{Block: b, Call: call, Ret: ret, AccExpr: inst, AccOp: inst.SubOp, AccOther: other}, true
	}
	return tailCallSite{}, false
}

func pickCallOperand(f *mir.Function, lhs, rhs mir.Value) (*mir.Instruction, mir.Value, bool) {
	if c, ok := lhs.(*mir.Instruction); ok && c.Op == mir.OpCall && c.Callee() == f {
		return c, rhs, true
	}
	if c, ok := rhs.(*mir.Instruction); ok && c.Op == mir.OpCall && c.Callee() == f {
		return c, lhs, true
	}
	return nil, nil, false
}

func isAssocCommutativeWithIdentity(subOp string) bool {
	switch subOp {
	case "ADD", "MUL", "AND", "OR", "XOR":
		return true
	}
	return false
}

func identityFor(op mir.Operator, subOp string, typ *mir.Type) mir.Value {
	if op == mir.OpFloatBinary {
		if subOp == "MUL" {
			return mir.ConstFloat(1)
		}
		return mir.ConstFloat(0)
	}
	switch subOp {
	case "MUL":
		return mir.ConstInt(1)
	case "AND":
		return mir.ConstInt(-1)
	default:
		return mir.ConstInt(0)
	}
}
