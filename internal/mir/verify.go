package mir

import (
	"fmt"

	"sysyc/internal/diag"
)

// VerifyFunction checks the quantified invariants spec.md §8 requires
// to hold between every pass: operand back-links are bidirectional,
// every block is non-empty and ends in exactly one terminator, and every PHI
// names exactly its block's predecessor set. A violation is a
// programmer error (spec.md §7): VerifyFunction raises a *diag.Fault
// rather than returning one, since there is no recoverable path past
// a broken MIR invariant.
func VerifyFunction(f *Function) {
	for _, b := range f.Blocks {
		if b.Deleted {
			continue
		}
		verifyBlock(f, b)
	}
}

func verifyBlock(f *Function, b *Block) {
	loc := diag.Location{Function: f.Name, Block: b.ValName(), InstIndex: -1}

	if len(b.Instructions) == 0 {
		diag.Bug("I-TERM", "every block is non-empty and ends in exactly one terminator",
			fmt.Sprintf("block %q has no instructions", b.ValName()), loc)
	}

	sawNonPhi := false
	for i, inst := range b.Instructions {
		iloc := diag.Location{Function: f.Name, Block: b.ValName(), InstIndex: i}

		if inst.Op == OpPhi {
			if sawNonPhi {
				diag.Bug("I-PHI-PREFIX", "PHIs form a contiguous prefix",
					fmt.Sprintf("phi %q follows a non-phi instruction", inst.ValName()), iloc)
			}
		} else {
			sawNonPhi = true
		}

		isLast := i == len(b.Instructions)-1
		if inst.IsTerminator() && !isLast {
			diag.Bug("I-TERM", "exactly one terminator, as the last instruction",
				fmt.Sprintf("terminator %q is not the block's last instruction", inst.Op), iloc)
		}
		if isLast && !inst.IsTerminator() {
			diag.Bug("I-TERM", "every block ends in exactly one terminator",
				fmt.Sprintf("block %q's last instruction %q is not a terminator", b.ValName(), inst.Op), iloc)
		}

		verifyOperandBacklinks(inst, iloc)
	}

	if phis := b.GetPhis(); len(phis) > 0 {
		preds := Predecessors(f, b)
		for _, phi := range phis {
			verifyPhiEdges(f, b, phi, preds)
		}
	}
}

func verifyOperandBacklinks(inst *Instruction, loc diag.Location) {
	for _, u := range inst.Operands {
		if u == nil {
			continue
		}
		found := false
		for _, back := range u.Def.Users() {
			if back == u {
				found = true
				break
			}
		}
		if !found {
			diag.Bug("I-USE", "every operand reference is bidirectional",
				fmt.Sprintf("operand %q of %q is missing from its own user list", u.Def.ValName(), inst.Op), loc)
		}
	}
}

func verifyPhiEdges(f *Function, b *Block, phi *Instruction, preds []*Block) {
	loc := diag.Location{Function: f.Name, Block: b.ValName(), InstIndex: -1}
	predSet := map[*Block]bool{}
	for _, p := range preds {
		predSet[p] = true
	}
	seen := map[*Block]bool{}
	for _, ib := range phi.IncomingBlocks() {
		if !predSet[ib] {
			diag.Bug("I-PHI-EDGE", "PHI incoming blocks equal the predecessor set",
				fmt.Sprintf("phi %q names %q, which is not a predecessor of %q", phi.ValName(), ib.ValName(), b.ValName()), loc)
		}
		seen[ib] = true
	}
	for _, p := range preds {
		if !seen[p] {
			diag.Bug("I-PHI-EDGE", "PHI incoming blocks equal the predecessor set",
				fmt.Sprintf("phi %q is missing an incoming value for predecessor %q", phi.ValName(), p.ValName()), loc)
		}
	}
}

// Predecessors computes b's predecessor set by walking every other
// block's terminator, per spec.md §4.4 (no back-pointer is stored on
// Block itself). It is re-derived here, rather than imported from
// internal/analysis, to keep verification independent of the pass
// framework's analysis cache.
func Predecessors(f *Function, b *Block) []*Block {
	var preds []*Block
	for _, cand := range f.Blocks {
		if cand.Deleted {
			continue
		}
		term := cand.Terminator()
		if term == nil {
			continue
		}
		for _, s := range term.Successors() {
			if s == b {
				preds = append(preds, cand)
				break
			}
		}
	}
	return preds
}
