package interval

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"sysyc/internal/mir"
	"sysyc/internal/pass"
)

// buildBranchRefined builds:
//
//	entry: %n = param; branch (n < 10), small, big
//	small: ret n
//	big:   ret n
//
// so the analysis can narrow %n's interval along each edge from the
// same comparison without any loop/widening involved.
func buildBranchRefined() (*mir.Module, *mir.Function, *mir.Block, *mir.Block) {
	f := mir.NewFunction("f", mir.I32, false)
	entry := mir.NewBlock("entry")
	small := mir.NewBlock("small")
	big := mir.NewBlock("big")
	f.AddBlock(entry)
	f.AddBlock(small)
	f.AddBlock(big)

	n := f.AddParam("n", mir.I32)
	cmp := mir.NewICmp("lt", "LT", n, mir.ConstInt(10), entry)
	mir.NewBranch(cmp, small, big, entry)
	mir.NewRet(n, small)
	mir.NewRet(n, big)

	m := mir.NewModule()
	m.AddFunction(f)
	return m, f, small, big
}

func TestIntervalAnalysisNarrowsAlongBranchEdges(t *testing.T) {
	m, f, small, big := buildBranchRefined()
	mgr := pass.NewManager(m, pass.O1)

	res := Analysis{}.Compute(m, f, mgr).(*Result)

	n := f.Params[0]
	smallRange := res.In[small].Get(n)
	bigRange := res.In[big].Get(n)

	require := assert.New(t)
	require.False(smallRange.IsFloat)
	require.Equal([]IntRange{{IntBoundMin, 9}}, smallRange.Int.Ranges,
		"the true edge of n<10 narrows n to at most 9")
	require.Equal([]IntRange{{10, IntBoundMax}}, bigRange.Int.Ranges,
		"the false edge of n<10 narrows n to at least 10")
}
