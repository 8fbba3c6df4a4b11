// Package mirtext defines a participle grammar for a textual surface
// syntax over internal/mir: the fixture format spec.md §8's testable
// property 10 round-trips through (`emit(parse(emit(M))) = emit(M)`).
// Grounded on the teacher's `grammar` package (`lexer.go`/`grammar.go`/
// `parser.go`), which parses Kanso source the same way: a stateful
// participle lexer feeding a struct-tag grammar.
package mirtext

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// Lexer tokenizes the textual MIR format. LocalIdent (`%name`) and
// GlobalIdent (`@name`) are distinguished at the token level, the same
// sigil-prefixed-identifier idiom the teacher's own lexer uses for
// doc comments vs. plain comments.
var Lexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		{"Comment", `//[^\n]*`, nil},
		{"Float", `-?[0-9]+\.[0-9]+`, nil},
		{"Int", `-?[0-9]+`, nil},
		{"LocalIdent", `%[a-zA-Z_][a-zA-Z0-9_.]*`, nil},
		{"GlobalIdent", `@[a-zA-Z_][a-zA-Z0-9_.]*`, nil},
		{"Ident", `[a-zA-Z_][a-zA-Z0-9_]*`, nil},
		{"Punct", `[={}()\[\]<>,:;*x-]`, nil},
		{"Whitespace", `[ \t\r\n]+`, nil},
	},
})
