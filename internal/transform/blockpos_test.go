package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sysyc/internal/mir"
	"sysyc/internal/pass"
)

func TestBlockPositioningFollowsHigherProbabilitySuccessor(t *testing.T) {
	f := mir.NewFunction("f", mir.I32, false)
	entry := mir.NewBlock("entry")
	header := mir.NewBlock("header")
	body := mir.NewBlock("body")
	exit := mir.NewBlock("exit")
	exit2 := mir.NewBlock("exit2")
	// Declared out of the layout we expect the pass to produce.
	f.AddBlock(exit2)
	f.AddBlock(entry)
	f.AddBlock(exit)
	f.AddBlock(header)
	f.AddBlock(body)

	condH := f.AddParam("condH", mir.I1)
	condB := f.AddParam("condB", mir.I1)

	mir.NewJump(header, entry)
	mir.NewBranch(condH, body, exit, header)
	mir.NewBranch(condB, header, exit2, body)
	mir.NewRet(mir.ConstInt(1), exit)
	mir.NewRet(mir.ConstInt(2), exit2)

	m := mir.NewModule()
	m.AddFunction(f)
	mgr := pass.NewManager(m, pass.O1)

	changed := BlockPositioning{}.Run(m, mgr)
	assert.True(t, changed)

	require.Len(t, f.Blocks, 5)
	assert.Equal(t, entry, f.Blocks[0], "the entry block must stay first")

	pos := map[*mir.Block]int{}
	for i, b := range f.Blocks {
		pos[b] = i
	}
	assert.Less(t, pos[header], pos[exit], "header must precede the loop exit")
	assert.Less(t, pos[body], pos[exit2])
}
