package transform

import (
	"sysyc/internal/analysis"
	"sysyc/internal/mir"
	"sysyc/internal/pass"
)

// constexprBudget bounds the number of instructions a single
// ConstexprFuncEval interpretation may execute before giving up,
// guarding against a pathologically long-running (but still
// terminating) pure function — spec.md §9's "bounded instruction
// count to avoid non-termination".
const constexprBudget = 100000

// ConstexprFuncEval evaluates a whole call to a NoState function given
// fully-constant arguments, replacing the call with the resulting
// constant (spec.md §4.9/SPEC_FULL.md §12, grounded on the original
// compiler's Mir::Interpreter: a per-call value map over a bounded
// instruction count, never touching real memory). Scoped to functions
// with no stack allocation at all (Summary.MemoryAlloc == false): a
// full interpreter would also need to model a synthetic heap for
// local arrays, which the original Interpreter does but which this
// port does not reproduce — purely scalar recursive/arithmetic
// functions, the common case this pass targets, have no ALLOC at all
// once Mem2Reg has run.
type ConstexprFuncEval struct{}

func (ConstexprFuncEval) Name() string { return "ConstexprFuncEval" }

func (ConstexprFuncEval) Run(m *mir.Module, mgr *pass.Manager) bool {
	summaries := analysis.SummariesOf(mgr)
	changed := false
	for _, f := range m.DefinedFunctions() {
		for _, b := range f.Blocks {
			if b.Deleted {
				continue
			}
			for _, inst := range append([]*mir.Instruction(nil), b.Instructions...) {
				if inst.Op != mir.OpCall {
					continue
				}
				callee := inst.Callee()
				if callee == nil || callee.Runtime || callee == f {
					continue
				}
				s := summaries.Of(callee)
				if !s.NoState || s.MemoryAlloc || !s.HasReturn {
					continue
				}
				args, ok := constArgs(inst)
				if !ok {
					continue
				}
				result, ok := interpretCall(callee, args, summaries)
				if !ok {
					continue
				}
				c := mir.ConstFromEval(result, callee.ReturnType)
				mir.ReplaceAllUsesWith(inst, c)
				inst.ClearOperands()
				b.RemoveInstruction(inst)
				changed = true
			}
		}
	}
	return changed
}

func constArgs(call *mir.Instruction) ([]mir.Eval, bool) {
	var out []mir.Eval
	for _, a := range call.Args() {
		c, ok := a.(*mir.Const)
		if !ok {
			return nil, false
		}
		out = append(out, c.Eval())
	}
	return out, true
}

// interpretCall runs fn to completion with args bound to its
// parameters, returning the RET value's Eval. Recursive NoState calls
// are interpreted too (bounded by the shared instruction budget), so
// a small recursive pure function (e.g. a non-tail factorial) folds
// completely when called with constant arguments.
func interpretCall(fn *mir.Function, args []mir.Eval, summaries *analysis.SummaryResult) (mir.Eval, bool) {
	budget := constexprBudget
	return interpretCallBudgeted(fn, args, summaries, &budget)
}

func interpretCallBudgeted(fn *mir.Function, args []mir.Eval, summaries *analysis.SummaryResult, budget *int) (mir.Eval, bool) {
	entry := fn.Entry()
	if entry == nil {
		return mir.Eval{}, false
	}
	values := map[mir.Value]mir.Eval{}
	for i, p := range fn.Params {
		if i < len(args) {
			values[p] = args[i]
		}
	}

	cur := entry
	var prev *mir.Block
	for {
		phis := cur.GetPhis()
		phiVals := make([]mir.Eval, len(phis))
		for i, phi := range phis {
			v, ok := evalValue(phi.IncomingFrom(prev), values)
			if !ok {
				return mir.Eval{}, false
			}
			phiVals[i] = v
		}
		for i, phi := range phis {
			values[phi] = phiVals[i]
		}

		for _, inst := range cur.NonPhiInstructions() {
			*budget--
			if *budget <= 0 {
				return mir.Eval{}, false
			}
			switch inst.Op {
			case mir.OpIntBinary, mir.OpFloatBinary, mir.OpICmp, mir.OpFCmp:
				lhs, ok1 := evalValue(inst.Operand(0), values)
				rhs, ok2 := evalValue(inst.Operand(1), values)
				if !ok1 || !ok2 {
					return mir.Eval{}, false
				}
				v, ok := mir.SafeCal(inst.SubOp, lhs, rhs)
				if !ok {
					return mir.Eval{}, false
				}
				values[inst] = v
			case mir.OpFNeg:
				v, ok := evalValue(inst.Operand(0), values)
				if !ok {
					return mir.Eval{}, false
				}
				values[inst] = mir.FloatEval(-v.AsFloat())
			case mir.OpZExt:
				v, ok := evalValue(inst.Operand(0), values)
				if !ok {
					return mir.Eval{}, false
				}
				if inst.ValType().IsInt1() {
					values[inst] = mir.IntEval(boolToInt(v.AsInt() != 0))
				} else {
					values[inst] = v
				}
			case mir.OpFPToSI:
				v, ok := evalValue(inst.Operand(0), values)
				if !ok {
					return mir.Eval{}, false
				}
				values[inst] = mir.IntEval(int32(v.AsFloat()))
			case mir.OpSIToFP:
				v, ok := evalValue(inst.Operand(0), values)
				if !ok {
					return mir.Eval{}, false
				}
				values[inst] = mir.FloatEval(float64(v.AsInt()))
			case mir.OpCall:
				callee := inst.Callee()
				if callee == nil || callee.Runtime {
					return mir.Eval{}, false
				}
				s := summaries.Of(callee)
				if !s.NoState || s.MemoryAlloc {
					return mir.Eval{}, false
				}
				var callArgs []mir.Eval
				for _, a := range inst.Args() {
					v, ok := evalValue(a, values)
					if !ok {
						return mir.Eval{}, false
					}
					callArgs = append(callArgs, v)
				}
				v, ok := interpretCallBudgeted(callee, callArgs, summaries, budget)
				if !ok {
					return mir.Eval{}, false
				}
				values[inst] = v
			case mir.OpBranch, mir.OpJump, mir.OpSwitch, mir.OpRet:
				// handled after the loop below
			default:
				return mir.Eval{}, false // ALLOC/LOAD/STORE/GEP/BITCAST: out of scope (see type doc)
			}
		}

		term := cur.Terminator()
		if term == nil {
			return mir.Eval{}, false
		}
		switch term.Op {
		case mir.OpRet:
			if term.RetValue() == nil {
				return mir.Eval{}, false
			}
			return evalValue(term.RetValue(), values)
		case mir.OpJump:
			prev, cur = cur, term.JumpTarget()
		case mir.OpBranch:
			c, ok := evalValue(term.Cond(), values)
			if !ok {
				return mir.Eval{}, false
			}
			prev = cur
			if c.AsInt() != 0 {
				cur = term.TrueBlock()
			} else {
				cur = term.FalseBlock()
			}
		case mir.OpSwitch:
			v, ok := evalValue(term.Scrutinee(), values)
			if !ok {
				return mir.Eval{}, false
			}
			next := term.DefaultBlock()
			for _, c := range term.Cases() {
				if c.Const.IntV == v.AsInt() {
					next = c.Block
					break
				}
			}
			prev, cur = cur, next
		default:
			return mir.Eval{}, false
		}
	}
}

func evalValue(v mir.Value, values map[mir.Value]mir.Eval) (mir.Eval, bool) {
	if v == nil {
		return mir.Eval{}, false
	}
	if c, ok := v.(*mir.Const); ok {
		return c.Eval(), true
	}
	e, ok := values[v]
	return e, ok
}

func boolToInt(b bool) int32 {
	if b {
		return 1
	}
	return 0
}
