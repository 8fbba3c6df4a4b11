package transform

import (
	"sysyc/internal/mir"
	"sysyc/internal/pass"
)

// SingleReturnTransform merges a function's multiple RETs into one
// return block with a PHI of return values (spec.md §4.9), the
// precondition interval analysis needs for a single per-function
// post-condition. Not part of the O0/O1 pipeline (§6 names no step
// for it); it is a utility a caller runs immediately before interval
// analysis, the way the original compiler's IntervalAnalysis transform
// invokes it directly rather than scheduling it in the fixed pipeline.
type SingleReturnTransform struct{}

func (SingleReturnTransform) Name() string { return "SingleReturnTransform" }

func (SingleReturnTransform) Run(m *mir.Module, mgr *pass.Manager) bool {
	anyChanged := false
	for _, f := range m.DefinedFunctions() {
		if RunSingleReturn(f) {
			mgr.InvalidateAll(f)
			anyChanged = true
		}
	}
	return anyChanged
}

// RunSingleReturn applies the transform to a single function,
// reporting whether it changed anything (fewer than two RETs is a
// no-op).
func RunSingleReturn(f *mir.Function) bool {
	var retBlocks []*mir.Block
	rets := map[*mir.Block]*mir.Instruction{}
	for _, b := range f.Blocks {
		if b.Deleted {
			continue
		}
		term := b.Terminator()
		if term != nil && term.Op == mir.OpRet {
			retBlocks = append(retBlocks, b)
			rets[b] = term
		}
	}
	if len(retBlocks) < 2 {
		return false
	}

	joined := mir.NewBlock(uniqueBlockName(f, "ret_block"))
	f.AddBlock(joined)

	var phi *mir.Instruction
	if f.ReturnType != mir.VoidType {
		phi = mir.NewPhi("ret.phi", f.ReturnType, joined)
	}

	for _, b := range retBlocks {
		ret := rets[b]
		var val mir.Value
		if phi != nil {
			val = ret.RetValue()
		}
		ret.ClearOperands()
		b.RemoveInstruction(ret)
		if phi != nil {
			phi.AddIncoming(b, val)
		}
		mir.NewJump(joined, b)
	}
	mir.NewRet(valueOrNil(phi), joined)
	return true
}

func valueOrNil(phi *mir.Instruction) mir.Value {
	if phi == nil {
		return nil
	}
	return phi
}

// uniqueBlockName returns base, or base suffixed with an incrementing
// counter, such that no existing block in f already uses it.
func uniqueBlockName(f *mir.Function, base string) string {
	used := map[string]bool{}
	for _, b := range f.Blocks {
		used[b.ValName()] = true
	}
	if !used[base] {
		return base
	}
	for i := 2; ; i++ {
		name := base + "." + itoaPublic(i)
		if !used[name] {
			return name
		}
	}
}

func itoaPublic(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}
