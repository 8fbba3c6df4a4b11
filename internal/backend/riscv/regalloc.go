package riscv

import "sort"

// allocLoc is where a vreg ends up living after allocation: either a
// hardware register name, or a spill slot in the frame.
type allocLoc struct {
	Reg      string // "" when spilled
	SpillOff int    // valid when Reg == ""
}

// liveInterval is one vreg's [lo, hi] instruction-index span, the
// linear-scan input spec.md §4.11 calls for ("a classic two-pointer
// walk over live intervals").
type liveInterval struct {
	v      VReg
	lo, hi int
}

// Allocate runs backward per-block liveness (spec.md §4.11: live_in =
// (live_out - def) ∪ use; live_out = ⋃ live_in(succ)) followed by
// linear-scan register allocation over the resulting intervals,
// spilling to a fresh frame slot under register pressure. Mutates lf
// in place: operands stay VRegs, lf.allocation maps every VReg to
// either a hardware register name or a spill-slot offset, and
// lf.FrameSize grows to cover spills.
func Allocate(lf *LFunction) {
	numbered, blockBounds := numberInstructions(lf)
	liveIn, liveOut := computeLiveness(lf, numbered)
	intervals := buildIntervals(lf, numbered, blockBounds, liveIn, liveOut)

	lf.allocation = map[VReg]allocLoc{}
	linearScan(intervals, classInt, lf)
	linearScan(intervals, classFloat, lf)
}

type numberedInstr struct {
	instr *LInstr
	block *LBlock
	idx   int
}

type blockBound struct{ start, end int }

func numberInstructions(lf *LFunction) ([]numberedInstr, map[*LBlock]blockBound) {
	var out []numberedInstr
	bounds := map[*LBlock]blockBound{}
	idx := 0
	for _, b := range lf.Blocks {
		start := idx
		for _, in := range b.Instrs {
			out = append(out, numberedInstr{instr: in, block: b, idx: idx})
			idx++
		}
		end := idx - 1
		if len(b.Instrs) == 0 {
			end = start
		}
		bounds[b] = blockBound{start: start, end: end}
	}
	return out, bounds
}

// defsUses reports the vregs one LIR instruction defines and reads.
// A STORE's Dst is an address it reads, never a def; a CALL's Dst
// (when present) is its only def.
func defsUses(in *LInstr) (def *VReg, uses []VReg) {
	collect := func(ops ...Operand) []VReg {
		var vs []VReg
		for _, op := range ops {
			if vr, ok := op.(VReg); ok {
				vs = append(vs, vr)
			}
		}
		return vs
	}
	switch in.Op {
	case LStoreW, LStoreF:
		return nil, collect(in.Dst, in.Src1)
	case LBranch:
		return nil, collect(in.Src1, in.Src2)
	case LJump:
		return nil, nil
	case LRet:
		return nil, collect(in.Src1)
	case LCall:
		uses = collect(in.Args...)
		if vr, ok := in.Dst.(VReg); ok {
			return &vr, uses
		}
		return nil, uses
	default:
		uses = collect(in.Src1, in.Src2, in.Src3)
		if vr, ok := in.Dst.(VReg); ok {
			return &vr, uses
		}
		return nil, uses
	}
}

func successorsOf(b *LBlock) []*LBlock {
	if len(b.Instrs) == 0 {
		return nil
	}
	last := b.Instrs[len(b.Instrs)-1]
	switch last.Op {
	case LBranch:
		return []*LBlock{last.Then, last.Else}
	case LJump:
		return []*LBlock{last.Target}
	default:
		return nil
	}
}

func computeLiveness(lf *LFunction, _ []numberedInstr) (map[*LBlock]map[VReg]bool, map[*LBlock]map[VReg]bool) {
	blockUse := map[*LBlock]map[VReg]bool{}
	blockDef := map[*LBlock]map[VReg]bool{}
	for _, b := range lf.Blocks {
		use := map[VReg]bool{}
		def := map[VReg]bool{}
		for _, in := range b.Instrs {
			d, uses := defsUses(in)
			for _, u := range uses {
				if !def[u] {
					use[u] = true
				}
			}
			if d != nil {
				def[*d] = true
			}
		}
		blockUse[b] = use
		blockDef[b] = def
	}

	liveIn := map[*LBlock]map[VReg]bool{}
	liveOut := map[*LBlock]map[VReg]bool{}
	for _, b := range lf.Blocks {
		liveIn[b] = map[VReg]bool{}
		liveOut[b] = map[VReg]bool{}
	}

	changed := true
	for iter := 0; changed && iter < len(lf.Blocks)+16; iter++ {
		changed = false
		for i := len(lf.Blocks) - 1; i >= 0; i-- {
			b := lf.Blocks[i]
			out := map[VReg]bool{}
			for _, s := range successorsOf(b) {
				if s == nil {
					continue
				}
				for v := range liveIn[s] {
					out[v] = true
				}
			}
			in := map[VReg]bool{}
			for v := range blockUse[b] {
				in[v] = true
			}
			for v := range out {
				if !blockDef[b][v] {
					in[v] = true
				}
			}
			if !sameSet(in, liveIn[b]) || !sameSet(out, liveOut[b]) {
				liveIn[b] = in
				liveOut[b] = out
				changed = true
			}
		}
	}
	return liveIn, liveOut
}

func sameSet(a, b map[VReg]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for v := range a {
		if !b[v] {
			return false
		}
	}
	return true
}

func buildIntervals(lf *LFunction, numbered []numberedInstr, bounds map[*LBlock]blockBound,
	liveIn, liveOut map[*LBlock]map[VReg]bool) []liveInterval {

	spans := map[VReg]*liveInterval{}
	touch := func(v VReg, at int) {
		iv, ok := spans[v]
		if !ok {
			spans[v] = &liveInterval{v: v, lo: at, hi: at}
			return
		}
		if at < iv.lo {
			iv.lo = at
		}
		if at > iv.hi {
			iv.hi = at
		}
	}

	for _, ni := range numbered {
		d, uses := defsUses(ni.instr)
		if d != nil {
			touch(*d, ni.idx)
		}
		for _, u := range uses {
			touch(u, ni.idx)
		}
	}
	for _, b := range lf.Blocks {
		bb := bounds[b]
		for v := range liveIn[b] {
			touch(v, bb.start)
		}
		for v := range liveOut[b] {
			touch(v, bb.end)
		}
	}
	for _, p := range lf.Params {
		if vr, ok := p.(VReg); ok {
			touch(vr, 0)
		}
	}

	out := make([]liveInterval, 0, len(spans))
	for _, iv := range spans {
		out = append(out, *iv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].lo < out[j].lo })
	return out
}

// linearScan assigns every interval of class c a hardware register
// from pool(c), spilling the active interval with the furthest-out hi
// (the standard Poletto-Sarkar heuristic) when the pool is exhausted.
func linearScan(intervals []liveInterval, c regClass, lf *LFunction) {
	var active []liveInterval
	free := append([]string(nil), pool(c)...)
	reserved := map[VReg]string{}

	releaseExpired := func(lo int) {
		kept := active[:0]
		for _, iv := range active {
			if iv.hi < lo {
				free = append(free, reserved[iv.v])
				delete(reserved, iv.v)
			} else {
				kept = append(kept, iv)
			}
		}
		active = kept
	}

	for _, iv := range intervals {
		if iv.v.Class != c {
			continue
		}
		releaseExpired(iv.lo)

		if len(free) > 0 {
			reg := free[len(free)-1]
			free = free[:len(free)-1]
			reserved[iv.v] = reg
			active = append(active, iv)
			lf.allocation[iv.v] = allocLoc{Reg: reg}
			continue
		}

		// Spill: either iv itself, or the active interval reaching
		// furthest into the future (freeing its register for iv),
		// whichever keeps the shorter-lived value in a register.
		spillIdx := -1
		spillHi := iv.hi
		for i, a := range active {
			if a.hi > spillHi {
				spillHi = a.hi
				spillIdx = i
			}
		}
		if spillIdx == -1 {
			lf.FrameSize += wordSize
			lf.allocation[iv.v] = allocLoc{SpillOff: -lf.FrameSize}
			continue
		}
		victim := active[spillIdx]
		reg := reserved[victim.v]
		lf.FrameSize += wordSize
		lf.allocation[victim.v] = allocLoc{SpillOff: -lf.FrameSize}
		delete(reserved, victim.v)
		active = append(active[:spillIdx], active[spillIdx+1:]...)

		reserved[iv.v] = reg
		active = append(active, iv)
		lf.allocation[iv.v] = allocLoc{Reg: reg}
	}
}
