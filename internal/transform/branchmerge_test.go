package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sysyc/internal/mir"
	"sysyc/internal/pass"
)

// buildMinDiamond builds: if (x < y) { v = x } else { v = y }; use v
func buildMinDiamond() (*mir.Module, *mir.Function, *mir.Instruction, mir.Value, mir.Value) {
	f := mir.NewFunction("f", mir.I32, false)
	entry := mir.NewBlock("entry")
	t := mir.NewBlock("t")
	fa := mir.NewBlock("fa")
	join := mir.NewBlock("join")
	f.AddBlock(entry)
	f.AddBlock(t)
	f.AddBlock(fa)
	f.AddBlock(join)

	x := f.AddParam("x", mir.I32)
	y := f.AddParam("y", mir.I32)

	cmp := mir.NewICmp("c", "LT", x, y, entry)
	mir.NewBranch(cmp, t, fa, entry)
	mir.NewJump(join, t)
	mir.NewJump(join, fa)

	phi := mir.NewPhi("v", mir.I32, join)
	phi.AddIncoming(t, x)
	phi.AddIncoming(fa, y)
	mir.NewRet(phi, join)

	m := mir.NewModule()
	m.AddFunction(f)
	return m, f, phi, x, y
}

func TestBranchMergingRecognizesMin(t *testing.T) {
	m, f, _, _, _ := buildMinDiamond()
	mgr := pass.NewManager(m, pass.O1)

	changed := BranchMerging{}.Run(m, mgr)
	assert.True(t, changed)

	var found *mir.Instruction
	for _, b := range f.Blocks {
		if b.Deleted {
			continue
		}
		for _, inst := range b.Instructions {
			if inst.Op == mir.OpIntBinary && inst.SubOp == "SMIN" {
				found = inst
			}
		}
	}
	require.NotNil(t, found, "the diamond should collapse into a single SMIN")

	var liveNames []string
	for _, b := range f.Blocks {
		if !b.Deleted {
			liveNames = append(liveNames, b.ValName())
		}
	}
	assert.ElementsMatch(t, []string{"entry", "join"}, liveNames)
}
