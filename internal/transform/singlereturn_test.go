package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sysyc/internal/mir"
)

// buildTwoReturnFunc builds:
//
//	entry: branch cond, left, right
//	left:  ret 1
//	right: ret 2
func buildTwoReturnFunc() (*mir.Function, *mir.Block, *mir.Block) {
	f := mir.NewFunction("f", mir.I32, false)
	entry := mir.NewBlock("entry")
	left := mir.NewBlock("left")
	right := mir.NewBlock("right")
	f.AddBlock(entry)
	f.AddBlock(left)
	f.AddBlock(right)

	cond := f.AddParam("cond", mir.I1)
	mir.NewBranch(cond, left, right, entry)
	mir.NewRet(mir.ConstInt(1), left)
	mir.NewRet(mir.ConstInt(2), right)
	return f, left, right
}

func TestSingleReturnMergesMultipleRets(t *testing.T) {
	f, left, right := buildTwoReturnFunc()

	changed := RunSingleReturn(f)
	assert.True(t, changed)

	retBlocks := 0
	var joined *mir.Block
	for _, b := range f.Blocks {
		if b.Deleted {
			continue
		}
		if term := b.Terminator(); term != nil && term.Op == mir.OpRet {
			retBlocks++
			joined = b
		}
	}
	assert.Equal(t, 1, retBlocks, "exactly one block should end in RET after merging")
	require.NotNil(t, joined)

	phis := joined.GetPhis()
	require.Len(t, phis, 1)
	assert.ElementsMatch(t, []*mir.Block{left, right}, phis[0].IncomingBlocks())

	leftTerm := left.Terminator()
	require.NotNil(t, leftTerm)
	assert.Equal(t, mir.OpJump, leftTerm.Op, "the original ret block now jumps to the merged return block")

	mir.VerifyFunction(f)
}

func TestSingleReturnNoopOnAlreadySingleReturn(t *testing.T) {
	f := mir.NewFunction("g", mir.I32, false)
	entry := mir.NewBlock("entry")
	f.AddBlock(entry)
	mir.NewRet(mir.ConstInt(1), entry)

	assert.False(t, RunSingleReturn(f), "fewer than two rets is a no-op")
}
