// Command sysyc is the compiler driver: it parses a textual MIR
// fixture, runs the selected optimization pipeline over it, and emits
// either the optimized MIR text back out or lowered RISC-V assembly.
// Grounded on the teacher's cmd/kanso-cli/main.go (read file, parse,
// report, colored success banner); the fault model is this module's
// own (internal/diag), since the teacher's parser errors come from
// participle directly while ours come from diag.Fault panics raised
// deep inside a pass.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/fatih/color"

	"sysyc/internal/backend/riscv"
	"sysyc/internal/diag"
	"sysyc/internal/mir"
	"sysyc/internal/mirtext"
	"sysyc/internal/pass"
	"sysyc/internal/pipeline"
)

func main() {
	levelFlag := flag.String("O", "O1", "optimization level: O0 or O1")
	emit := flag.String("emit", "asm", "output kind: mir or asm")
	out := flag.String("o", "", "output file (default: stdout)")
	verbose := flag.Bool("v", false, "print each pipeline step as it runs")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: sysyc [-O O0|O1] [-emit mir|asm] [-o file] <input.mir>")
		os.Exit(1)
	}
	path := flag.Arg(0)

	level, err := pass.ParseLevel(*levelFlag)
	if err != nil {
		color.Red("sysyc: %s", err)
		os.Exit(1)
	}

	pass.Verbose = *verbose

	result, err := run(path, level, *emit)
	if err != nil {
		color.Red("sysyc: %s", err)
		os.Exit(1)
	}

	if *out == "" {
		fmt.Print(result)
	} else if err := os.WriteFile(*out, []byte(result), 0o644); err != nil {
		color.Red("sysyc: %s", err)
		os.Exit(1)
	}
	color.Green("done: %s", path)
}

// run does the real work, with a deferred recover converting any
// *diag.Fault panic raised by a pass or the verifier into a plain
// error — run is the sole place that sees a raw Fault; main only
// ever receives the formatted error.
func run(path string, level pass.Level, emit string) (output string, err error) {
	defer func() {
		if r := recover(); r != nil {
			if formatted, ok := diag.Recover(r); ok {
				err = fmt.Errorf("%s", formatted)
				return
			}
			panic(r)
		}
	}()

	src, readErr := os.ReadFile(path)
	if readErr != nil {
		return "", readErr
	}

	m, parseErr := mirtext.Parse(path, string(src))
	if parseErr != nil {
		return "", parseErr
	}

	for _, f := range m.DefinedFunctions() {
		mir.VerifyFunction(f)
	}

	mgr := pass.NewManager(m, level)
	pipeline.For(level).Run(mgr)

	for _, f := range m.DefinedFunctions() {
		mir.VerifyFunction(f)
	}

	switch emit {
	case "mir":
		return mirtext.Print(m), nil
	case "asm":
		prog := riscv.Lower(m)
		return riscv.Emit(prog), nil
	default:
		return "", fmt.Errorf("unknown -emit kind %q (want mir or asm)", emit)
	}
}
