package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sysyc/internal/mir"
	"sysyc/internal/pass"
)

func TestBranchProbabilityWeightsBackEdgeHeavily(t *testing.T) {
	f := mir.NewFunction("f", mir.I32, false)
	entry := mir.NewBlock("entry")
	header := mir.NewBlock("header")
	body := mir.NewBlock("body")
	exit := mir.NewBlock("exit")
	exit2 := mir.NewBlock("exit2")
	f.AddBlock(entry)
	f.AddBlock(header)
	f.AddBlock(body)
	f.AddBlock(exit)
	f.AddBlock(exit2)

	condH := f.AddParam("condH", mir.I1)
	condB := f.AddParam("condB", mir.I1)

	mir.NewJump(header, entry)
	mir.NewBranch(condH, body, exit, header)
	mir.NewBranch(condB, header, exit2, body) // body is the loop's latch
	mir.NewRet(mir.ConstInt(1), exit)
	mir.NewRet(mir.ConstInt(2), exit2)

	m := mir.NewModule()
	m.AddFunction(f)
	mgr := pass.NewManager(m, pass.O1)

	res := BranchProbOf(mgr, f)

	latchTerm := body.Terminator()
	probs := res.Prob[latchTerm]
	require.Len(t, probs, 2)
	assert.Greater(t, probs[0], probs[1], "the back edge to header should dominate the latch's branch weight")

	assert.Greater(t, res.Frequency[header], res.Frequency[exit2], "a loop header should execute far more often than the exit taken once per call")
}

func TestBranchProbabilityBiasesCompareWithZeroTowardNotEqual(t *testing.T) {
	f := mir.NewFunction("f", mir.I32, false)
	entry := mir.NewBlock("entry")
	isZero := mir.NewBlock("isZero")
	notZero := mir.NewBlock("notZero")
	f.AddBlock(entry)
	f.AddBlock(isZero)
	f.AddBlock(notZero)

	x := f.AddParam("x", mir.I32)
	cmp := mir.NewICmp("c", "EQ", x, mir.ConstInt(0), entry)
	mir.NewBranch(cmp, isZero, notZero, entry)
	mir.NewRet(mir.ConstInt(0), isZero)
	mir.NewRet(mir.ConstInt(1), notZero)

	m := mir.NewModule()
	m.AddFunction(f)
	mgr := pass.NewManager(m, pass.O1)

	res := BranchProbOf(mgr, f)
	probs := res.Prob[entry.Terminator()]
	require.Len(t, probs, 2)
	assert.Less(t, probs[0], probs[1], "the EQ-with-zero true arm should be weighted lighter than the not-equal arm")
}

func TestBranchProbabilityFCmpBias(t *testing.T) {
	f := mir.NewFunction("f", mir.F32, false)
	entry := mir.NewBlock("entry")
	eqBlock := mir.NewBlock("eqBlock")
	neBlock := mir.NewBlock("neBlock")
	f.AddBlock(entry)
	f.AddBlock(eqBlock)
	f.AddBlock(neBlock)

	x := f.AddParam("x", mir.F32)
	y := f.AddParam("y", mir.F32)
	cmp := mir.NewFCmp("c", "EQ", x, y, entry)
	mir.NewBranch(cmp, eqBlock, neBlock, entry)
	mir.NewRet(mir.ConstFloat(0), eqBlock)
	mir.NewRet(mir.ConstFloat(1), neBlock)

	m := mir.NewModule()
	m.AddFunction(f)
	mgr := pass.NewManager(m, pass.O1)

	res := BranchProbOf(mgr, f)
	probs := res.Prob[entry.Terminator()]
	require.Len(t, probs, 2)
	assert.Equal(t, float64(weightFCmpEQ)/float64(weightFCmpEQ+weightFCmpNE), probs[0])
}
