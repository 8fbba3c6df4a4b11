package interval

import (
	"sysyc/internal/analysis"
	"sysyc/internal/mir"
	"sysyc/internal/pass"
)

// Result is one function's per-block entry contexts plus the
// abstract value computed for every instruction, keyed by block
// (the original's block_in_ctxs).
type Result struct {
	In  map[*mir.Block]*Context
	Out map[*mir.Block]*Context
}

// ValueRange returns the interval computed for v at the end of its
// own defining block (or Top if v was never tracked — unreachable
// code, or a value this analysis doesn't model).
func (r *Result) ValueRange(v mir.Value) Abstract {
	inst, ok := v.(*mir.Instruction)
	if !ok || inst.GetBlock() == nil {
		return topFor(v.ValType())
	}
	out, ok := r.Out[inst.GetBlock()]
	if !ok {
		return topFor(v.ValType())
	}
	return out.Get(v)
}

// Analysis computes Result per function: a worklist fixpoint over the
// CFG in reverse-postorder, joining predecessor Out contexts into
// each block's In, transfer-interpreting every instruction abstractly,
// refining a branch's two successor contexts from its comparison
// (`x < k` narrows x to (-inf, k-1] on the true edge and [k, +inf) on
// the false edge, the "branch refinement" half of the original's
// union/narrow story), and widening at natural-loop headers once a
// header's In context would otherwise grow on every iteration.
type Analysis struct{}

func (Analysis) Name() string        { return "IntervalAnalysis" }
func (Analysis) DependsOn() []string { return []string{"loops"} }

func (Analysis) Compute(m *mir.Module, f *mir.Function, mgr *pass.Manager) any {
	res := &Result{In: map[*mir.Block]*Context{}, Out: map[*mir.Block]*Context{}}
	if f.Entry() == nil {
		return res
	}
	cfg := analysis.CFGOf(mgr, f)
	loops := analysis.LoopsOf(mgr, f)

	order := reversePostOrder(cfg, f.Entry())
	isHeader := map[*mir.Block]bool{}
	for _, l := range loops.All {
		isHeader[l.Header] = true
	}
	iterCount := map[*mir.Block]int{}

	for _, b := range order {
		res.In[b] = NewContext()
		res.Out[b] = NewContext()
	}

	changed := true
	for iterations := 0; changed && iterations < len(order)*len(order)+16; iterations++ {
		changed = false
		for _, b := range order {
			in := joinPredecessors(res, cfg, b)
			if b == f.Entry() {
				for _, p := range f.Params {
					if !in.has(p) {
						in.Set(p, topFor(p.ValType()))
					}
				}
			}
			if isHeader[b] {
				iterCount[b]++
				if iterCount[b] > 2 {
					widened := res.In[b].Clone()
					widened.WidenWith(in)
					in = widened
				}
			}
			if !in.Equal(res.In[b]) {
				res.In[b] = in
				changed = true
			}
			out := interpretBlock(b, res.In[b])
			if !out.Equal(res.Out[b]) {
				res.Out[b] = out
				changed = true
			}
		}
	}
	return res
}

func (c *Context) has(v mir.Value) bool {
	_, ok := c.values[v]
	return ok
}

func reversePostOrder(cfg *analysis.CFGResult, entry *mir.Block) []*mir.Block {
	var post []*mir.Block
	visited := map[*mir.Block]bool{}
	var dfs func(b *mir.Block)
	dfs = func(b *mir.Block) {
		if visited[b] {
			return
		}
		visited[b] = true
		for _, s := range cfg.Succs[b] {
			dfs(s)
		}
		post = append(post, b)
	}
	dfs(entry)
	rev := make([]*mir.Block, len(post))
	for i, b := range post {
		rev[len(post)-1-i] = b
	}
	return rev
}

// joinPredecessors unions every predecessor's refined-for-this-edge
// Out context (branchEdgeContext applies a BRANCH's narrowing when the
// predecessor's terminator is the comparison feeding b).
func joinPredecessors(res *Result, cfg *analysis.CFGResult, b *mir.Block) *Context {
	preds := cfg.Preds[b]
	if len(preds) == 0 {
		return NewContext()
	}
	acc := NewContext()
	first := true
	for _, p := range preds {
		edge := branchEdgeContext(res.Out[p], p, b)
		if first {
			acc = edge.Clone()
			first = false
		} else {
			acc.UnionWith(edge)
		}
	}
	return acc
}

// branchEdgeContext narrows base's copy of the comparison operand's
// interval along the edge from p to succ, when p ends in a BRANCH
// whose condition is an ICmp/FCmp against a constant.
func branchEdgeContext(base *Context, p, succ *mir.Block) *Context {
	term := p.Terminator()
	if term == nil || term.Op != mir.OpBranch {
		return base
	}
	cmp, ok := term.Cond().(*mir.Instruction)
	if !ok || (cmp.Op != mir.OpICmp && cmp.Op != mir.OpFCmp) {
		return base
	}
	isTrueEdge := succ == term.TrueBlock()
	if !isTrueEdge && succ != term.FalseBlock() {
		return base
	}
	lhs, rhs := cmp.Operand(0), cmp.Operand(1)
	out := base.Clone()
	if cmp.Op == mir.OpICmp {
		rc, ok := rhs.(*mir.Const)
		if !ok {
			return base
		}
		refineInt(out, lhs, cmp.SubOp, rc.IntV, isTrueEdge)
	} else {
		rc, ok := rhs.(*mir.Const)
		if !ok {
			return base
		}
		refineFloat(out, lhs, cmp.SubOp, rc.FloatV, isTrueEdge)
	}
	return out
}

func refineInt(c *Context, v mir.Value, op string, k int32, trueEdge bool) {
	if !trueEdge {
		op = negateCmp(op)
	}
	cur := c.Get(v).Int
	var bound IntSet
	switch op {
	case "EQ":
		bound = IntConst(k)
	case "LT":
		bound = IntRangeSet(IntBoundMin, k-1)
	case "LE":
		bound = IntRangeSet(IntBoundMin, k)
	case "GT":
		bound = IntRangeSet(k+1, IntBoundMax)
	case "GE":
		bound = IntRangeSet(k, IntBoundMax)
	default:
		return
	}
	c.Set(v, AbstractInt(cur.Intersect(bound)))
}

func refineFloat(c *Context, v mir.Value, op string, k float64, trueEdge bool) {
	if !trueEdge {
		op = negateCmp(op)
	}
	cur := c.Get(v).Float
	var bound FloatSet
	switch op {
	case "EQ":
		bound = FloatConst(k)
	case "LT":
		bound = FloatRangeSet(FloatBoundMin, k)
	case "LE":
		bound = FloatRangeSet(FloatBoundMin, k)
	case "GT":
		bound = FloatRangeSet(k, FloatBoundMax)
	case "GE":
		bound = FloatRangeSet(k, FloatBoundMax)
	default:
		return
	}
	c.Set(v, AbstractFloat(cur.Intersect(bound)))
}

func negateCmp(op string) string {
	switch op {
	case "EQ":
		return "NE"
	case "NE":
		return "EQ"
	case "LT":
		return "GE"
	case "LE":
		return "GT"
	case "GT":
		return "LE"
	case "GE":
		return "LT"
	default:
		return op
	}
}

// interpretBlock runs the abstract transfer function over b's
// instructions starting from in, returning the resulting Out context.
// PHIs meet their incoming values (already present in `in`, since
// joinPredecessors folds every predecessor's Out together); ALLOC,
// LOAD, STORE, GEP, CALL and every pointer-producing op are left
// untracked (Get falls back to Top for them, which is always sound).
func interpretBlock(b *mir.Block, in *Context) *Context {
	c := in.Clone()
	for _, inst := range b.Instructions {
		switch inst.Op {
		case mir.OpPhi:
			var acc Abstract
			first := true
			for _, pred := range inst.IncomingBlocks() {
				v := c.Get(inst.IncomingFrom(pred))
				if first {
					acc = v
					first = false
				} else {
					acc = acc.Union(v)
				}
			}
			if !first {
				c.Set(inst, acc)
			}
		case mir.OpIntBinary:
			a, b2 := c.Get(inst.Operand(0)).Int, c.Get(inst.Operand(1)).Int
			c.Set(inst, AbstractInt(intBinaryOp(inst.SubOp, a, b2)))
		case mir.OpFloatBinary:
			a, b2 := c.Get(inst.Operand(0)).Float, c.Get(inst.Operand(1)).Float
			c.Set(inst, AbstractFloat(floatBinaryOp(inst.SubOp, a, b2)))
		case mir.OpFNeg:
			c.Set(inst, AbstractFloat(c.Get(inst.Operand(0)).Float.Neg()))
		case mir.OpZExt:
			v := c.Get(inst.Operand(0))
			if inst.Operand(0).ValType().IsInt1() {
				c.Set(inst, AbstractInt(IntRangeSet(0, 1)))
			} else {
				c.Set(inst, v)
			}
		case mir.OpSIToFP:
			c.Set(inst, AbstractFloat(c.Get(inst.Operand(0)).Int.ToFloat()))
		case mir.OpFPToSI:
			c.Set(inst, AbstractInt(c.Get(inst.Operand(0)).Float.ToInt()))
		case mir.OpICmp, mir.OpFCmp:
			c.Set(inst, AbstractInt(IntRangeSet(0, 1)))
		default:
			// ALLOC/LOAD/STORE/GEP/BITCAST/CALL/terminators: no
			// tracked abstract value: Context.Get's constant/Top
			// fallback covers any later use.
		}
	}
	return c
}

func intBinaryOp(op string, a, b IntSet) IntSet {
	switch op {
	case "ADD":
		return a.Add(b)
	case "SUB":
		return a.Sub(b)
	case "MUL":
		return a.Mul(b)
	case "DIV":
		return a.Div(b)
	case "MOD":
		return a.Rem(b)
	case "AND":
		return a.And(b)
	case "OR":
		return a.Or(b)
	case "XOR":
		return a.Xor(b)
	case "SMAX":
		return a.Max(b)
	case "SMIN":
		return a.Min(b)
	default:
		return IntTop()
	}
}

func floatBinaryOp(op string, a, b FloatSet) FloatSet {
	switch op {
	case "ADD":
		return a.Add(b)
	case "SUB":
		return a.Sub(b)
	case "MUL":
		return a.Mul(b)
	case "DIV":
		return a.Div(b)
	case "SMAX":
		return a.Max(b)
	case "SMIN":
		return a.Min(b)
	default:
		return FloatTop()
	}
}

// Of fetches (or computes) f's memoized interval analysis result.
func Of(mgr *pass.Manager, f *mir.Function) *Result {
	return mgr.GetAnalysisResult(pass.Create[Analysis](), f).(*Result)
}
