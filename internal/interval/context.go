package interval

import "sysyc/internal/mir"

// Abstract is the analysis' per-value lattice element: exactly one of
// Int/Float is meaningful, chosen by the value's MIR type (the
// original's std::variant<IntervalSet<int>, IntervalSet<double>>).
type Abstract struct {
	IsFloat bool
	Int     IntSet
	Float   FloatSet
}

func AbstractInt(s IntSet) Abstract     { return Abstract{Int: s} }
func AbstractFloat(s FloatSet) Abstract { return Abstract{IsFloat: true, Float: s} }

func topFor(t *mir.Type) Abstract {
	if t != nil && t.IsFloat() {
		return AbstractFloat(FloatTop())
	}
	return AbstractInt(IntTop())
}

func (a Abstract) Union(o Abstract) Abstract {
	if a.IsFloat {
		return AbstractFloat(a.Float.Union(o.Float))
	}
	return AbstractInt(a.Int.Union(o.Int))
}

func (a Abstract) Widen(o Abstract) Abstract {
	if a.IsFloat {
		return AbstractFloat(a.Float.Widen(o.Float))
	}
	return AbstractInt(a.Int.Widen(o.Int))
}

func (a Abstract) Equal(o Abstract) bool {
	if a.IsFloat != o.IsFloat {
		return false
	}
	if a.IsFloat {
		return floatSetEqual(a.Float, o.Float)
	}
	return intSetEqual(a.Int, o.Int)
}

func intSetEqual(a, b IntSet) bool {
	if a.Undefined != b.Undefined || len(a.Ranges) != len(b.Ranges) {
		return false
	}
	for i := range a.Ranges {
		if a.Ranges[i] != b.Ranges[i] {
			return false
		}
	}
	return true
}

func floatSetEqual(a, b FloatSet) bool {
	if a.Undefined != b.Undefined || len(a.Ranges) != len(b.Ranges) {
		return false
	}
	for i := range a.Ranges {
		if a.Ranges[i] != b.Ranges[i] {
			return false
		}
	}
	return true
}

// Context is the abstract state at one program point: every tracked
// value's Abstract interval, keyed by mir.Value identity.
type Context struct {
	values map[mir.Value]Abstract
}

func NewContext() *Context { return &Context{values: map[mir.Value]Abstract{}} }

func (c *Context) Clone() *Context {
	nc := NewContext()
	for k, v := range c.values {
		nc.values[k] = v
	}
	return nc
}

func (c *Context) Set(v mir.Value, a Abstract) { c.values[v] = a }

// Get returns v's tracked interval, falling back to a singleton for a
// constant or Top for an untracked value (the original's Context::get).
func (c *Context) Get(v mir.Value) Abstract {
	if a, ok := c.values[v]; ok {
		return a
	}
	if cst, ok := v.(*mir.Const); ok {
		e := cst.Eval()
		if cst.ValType().IsFloat() {
			return AbstractFloat(FloatConst(e.AsFloat()))
		}
		return AbstractInt(IntConst(e.AsInt()))
	}
	return topFor(v.ValType())
}

func (c *Context) UnionWith(o *Context) {
	for v, oa := range o.values {
		if a, ok := c.values[v]; ok {
			c.values[v] = a.Union(oa)
		} else {
			c.values[v] = oa
		}
	}
}

func (c *Context) WidenWith(o *Context) {
	for v, oa := range o.values {
		if a, ok := c.values[v]; ok {
			c.values[v] = a.Widen(oa)
		} else {
			c.values[v] = oa
		}
	}
}

func (c *Context) Equal(o *Context) bool {
	if len(c.values) != len(o.values) {
		return false
	}
	for v, a := range c.values {
		oa, ok := o.values[v]
		if !ok || !a.Equal(oa) {
			return false
		}
	}
	return true
}
