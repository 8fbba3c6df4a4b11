package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sysyc/internal/mir"
	"sysyc/internal/pass"
)

func TestForSelectsO0AndO1(t *testing.T) {
	o0 := For(pass.O0)
	require.Equal(t, "O0", o0.Name)
	assert.Len(t, o0.Steps, 2)

	o1 := For(pass.O1)
	require.Equal(t, "O1", o1.Name)
	assert.Greater(t, len(o1.Steps), len(o0.Steps))
}

func TestO1RunsGlobalValueNumberingTwice(t *testing.T) {
	count := 0
	for _, step := range O1().Steps {
		if step.Name() == "GlobalValueNumbering" {
			count++
		}
	}
	assert.Equal(t, 2, count, "GVN cleans up after SSA construction and again after SROA")
}

// buildRedundantAdd builds a function computing the same sum twice so
// a pipeline run has something concrete to deduplicate.
func buildRedundantAdd() (*mir.Module, *mir.Function) {
	f := mir.NewFunction("f", mir.I32, false)
	entry := mir.NewBlock("entry")
	f.AddBlock(entry)
	a := f.AddParam("a", mir.I32)
	b := f.AddParam("b", mir.I32)
	s1 := mir.NewIntBinary("s1", "ADD", a, b, entry)
	s2 := mir.NewIntBinary("s2", "ADD", a, b, entry)
	result := mir.NewIntBinary("result", "ADD", s1, s2, entry)
	mir.NewRet(result, entry)

	m := mir.NewModule()
	m.AddFunction(f)
	return m, f
}

func TestO1PipelineRunsWithoutPanicAndKeepsFunctionValid(t *testing.T) {
	m, f := buildRedundantAdd()
	mgr := pass.NewManager(m, pass.O1)

	For(pass.O1).Run(mgr)

	mir.VerifyFunction(f)
}
