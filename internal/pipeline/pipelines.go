// Package pipeline instantiates the two fixed optimization pipelines
// spec.md §6 names literally, wiring the concrete Transform singletons
// in internal/transform into pass.Pipeline step lists. It sits above
// internal/pass (which only knows the Pipeline/Transform shape, not
// any concrete pass) the same way the teacher's
// internal/ir/optimizations.go builds a concrete OptimizationPipeline
// from individually importable pass types.
package pipeline

import (
	"sysyc/internal/pass"
	"sysyc/internal/transform"
)

// O1 is the canonical optimization pipeline (spec.md §6): Mem2Reg
// through BranchMerging, in exactly the order listed there.
// GlobalValueNumbering appears twice, deliberately — once right after
// DeadFuncEliminate to clean up after SSA construction, once again
// after SROA to number the scalars SROA just split out.
func O1() *pass.Pipeline {
	return &pass.Pipeline{
		Name: "O1",
		Steps: []pass.Transform{
			transform.Mem2Reg{},
			transform.TreeHeightBalance{},
			transform.DeadFuncEliminate{},
			transform.GlobalValueNumbering{},
			transform.DeadInstEliminate{},
			transform.GEPFold{},
			transform.GlobalVariableLocalize{},
			transform.GlobalArrayLocalize{},
			transform.LoadElimination{},
			transform.StoreElimination{},
			transform.SROA{},
			transform.GlobalValueNumbering{},
			transform.BlockPositioning{},
			transform.SimplifyControlFlow{},
			transform.TailRecursionToLoop{},
			transform.ConstexprFuncEval{},
			transform.DeadFuncArgEliminate{},
			transform.DeadFuncEliminate{},
			transform.DeadReturnEliminate{},
			transform.BranchMerging{},
		},
	}
}

// O0 runs only what §6 requires: Mem2Reg to promote allocas to SSA
// values, then one pass of GlobalValueNumbering.
func O0() *pass.Pipeline {
	return &pass.Pipeline{
		Name: "O0",
		Steps: []pass.Transform{
			transform.Mem2Reg{},
			transform.GlobalValueNumbering{},
		},
	}
}

// For selects the pipeline named by level.
func For(level pass.Level) *pass.Pipeline {
	if level == pass.O0 {
		return O0()
	}
	return O1()
}
