package pass

import "fmt"

// Pipeline is a fixed, ordered sequence of Transforms — spec.md §4.3's
// "pipeline combinator" and §6's literal O0/O1 step lists. Unlike a
// fixed-point loop, a Pipeline runs its steps exactly once each, in
// order, even if a step appears more than once in the list (O1 runs
// GlobalValueNumbering twice, at different points in the sequence).
type Pipeline struct {
	Name  string
	Steps []Transform
}

// Verbose, when set, makes Run print each step's name and whether it
// changed anything, in the same "- Name: changed/no changes" shape as
// the teacher's OptimizationPipeline.Run (internal/ir/optimizations.go).
var Verbose = false

// Run executes every step of the pipeline against mgr.Module in order.
func (p *Pipeline) Run(mgr *Manager) {
	if Verbose {
		fmt.Printf("running pipeline %s (%d passes)\n", p.Name, len(p.Steps))
	}
	for _, step := range p.Steps {
		changed := step.Run(mgr.Module, mgr)
		if Verbose {
			if changed {
				fmt.Printf("  - %s: changed\n", step.Name())
			} else {
				fmt.Printf("  - %s: no changes\n", step.Name())
			}
		}
	}
}
