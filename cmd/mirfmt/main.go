// Command mirfmt is the repo's second small entrypoint, the role
// cmd/kanso-lsp fills for the teacher (a standalone tool orbiting the
// same parser/printer pair the main driver uses) repurposed here as a
// formatter and round-trip checker for the textual MIR format:
// spec.md §8 property 10 requires emit(parse(emit(M))) == emit(M),
// and this is the command-line tool that checks it against real
// fixture files instead of only in unit tests.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/fatih/color"

	"sysyc/internal/mirtext"
)

func main() {
	check := flag.Bool("check", false, "verify the file already round-trips instead of rewriting it")
	write := flag.Bool("w", false, "overwrite the input file with its canonical formatting")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: mirfmt [-check] [-w] <file.mir>")
		os.Exit(1)
	}
	path := flag.Arg(0)

	src, err := os.ReadFile(path)
	if err != nil {
		color.Red("mirfmt: %s", err)
		os.Exit(1)
	}

	m, err := mirtext.Parse(path, string(src))
	if err != nil {
		color.Red("mirfmt: %s", err)
		os.Exit(1)
	}
	formatted := mirtext.Print(m)

	switch {
	case *check:
		if formatted == string(src) {
			color.Green("%s: already canonical", path)
			return
		}
		color.Red("%s: not canonical (run mirfmt -w to fix)", path)
		os.Exit(1)

	case *write:
		if err := os.WriteFile(path, []byte(formatted), 0o644); err != nil {
			color.Red("mirfmt: %s", err)
			os.Exit(1)
		}
		color.Green("%s: rewritten", path)

	default:
		fmt.Print(formatted)
	}
}
