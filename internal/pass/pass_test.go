package pass

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sysyc/internal/mir"
)

type countingAnalysis struct {
	name    string
	deps    []string
	compute int
}

func (c *countingAnalysis) Name() string       { return c.name }
func (c *countingAnalysis) DependsOn() []string { return c.deps }
func (c *countingAnalysis) Compute(m *mir.Module, f *mir.Function, mgr *Manager) any {
	c.compute++
	return c.compute
}

func TestAnalysisMemoizationAndDirtyCascade(t *testing.T) {
	m := mir.NewModule()
	f := mir.NewFunction("f", mir.I32, false)
	m.AddFunction(f)
	mgr := NewManager(m, O1)

	cfg := &countingAnalysis{name: "cfg"}
	dom := &countingAnalysis{name: "dominance", deps: []string{"cfg"}}
	loops := &countingAnalysis{name: "loops", deps: []string{"dominance"}}

	mgr.Register(cfg)
	mgr.Register(dom)
	mgr.Register(loops)

	assert.Equal(t, 1, mgr.GetAnalysisResult(cfg, f))
	assert.Equal(t, 1, mgr.GetAnalysisResult(dom, f))
	assert.Equal(t, 1, mgr.GetAnalysisResult(loops, f))

	// Cached: asking again must not recompute.
	assert.Equal(t, 1, mgr.GetAnalysisResult(loops, f))
	assert.Equal(t, 1, loops.compute)

	// Dirtying "cfg" must cascade to dominance and loops.
	mgr.SetDirty("cfg", f)
	assert.Equal(t, 2, mgr.GetAnalysisResult(cfg, f))
	assert.Equal(t, 2, mgr.GetAnalysisResult(dom, f))
	assert.Equal(t, 2, mgr.GetAnalysisResult(loops, f))
}

func TestInvalidateCFGConvenience(t *testing.T) {
	m := mir.NewModule()
	f := mir.NewFunction("f", mir.I32, false)
	mgr := NewManager(m, O0)

	cfg := &countingAnalysis{name: "cfg"}
	dom := &countingAnalysis{name: "dominance", deps: []string{"cfg"}}
	mgr.Register(cfg)
	mgr.Register(dom)

	mgr.GetAnalysisResult(dom, f)
	mgr.InvalidateCFG(f)
	assert.Equal(t, 2, mgr.GetAnalysisResult(dom, f))
}

type countingTransform struct {
	name string
	runs *[]string
}

func (c *countingTransform) Name() string { return c.name }
func (c *countingTransform) Run(m *mir.Module, mgr *Manager) bool {
	*c.runs = append(*c.runs, c.name)
	return true
}

func TestPipelineRunsStepsInOrderIncludingDuplicates(t *testing.T) {
	m := mir.NewModule()
	mgr := NewManager(m, O1)
	var runs []string

	gvn := &countingTransform{name: "GlobalValueNumbering", runs: &runs}
	p := &Pipeline{
		Name: "O1",
		Steps: []Transform{
			&countingTransform{name: "Mem2Reg", runs: &runs},
			gvn,
			&countingTransform{name: "DeadCodeEliminate", runs: &runs},
			gvn,
		},
	}
	p.Run(mgr)

	assert.Equal(t, []string{"Mem2Reg", "GlobalValueNumbering", "DeadCodeEliminate", "GlobalValueNumbering"}, runs)
}

type statelessPass struct{ id int }

func TestCreateSingletonPerType(t *testing.T) {
	a := Create[statelessPass]()
	b := Create[statelessPass]()
	require.Same(t, a, b, "Create[T] must return the same instance for the same type")

	a.id = 42
	assert.Equal(t, 42, b.id)
}

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel("O1")
	require.NoError(t, err)
	assert.Equal(t, O1, l)

	_, err = ParseLevel("O2")
	assert.Error(t, err)
}
