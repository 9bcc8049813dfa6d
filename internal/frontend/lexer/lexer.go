// Package lexer tokenizes the source language using a participle stateful
// lexer, grounded on kanso-lang-kanso/grammar/lexer.go.
package lexer

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// SourceLexer defines the token rules for the supported subset: integer
// scalars/arrays, the fixed keyword set, and the operators the grammar
// needs. No floats, no hex literals, no string literals beyond what the
// builtin call table assumes at the grammar level.
var SourceLexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		{Name: "Comment", Pattern: `//[^\n]*`, Action: nil},
		{Name: "BlockComment", Pattern: `/\*[\s\S]*?\*/`, Action: nil},
		{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`, Action: nil},
		{Name: "Int", Pattern: `[0-9]+`, Action: nil},
		{Name: "Operator", Pattern: `(&&|\|\||==|!=|<=|>=|[-+*/%=<>!])`, Action: nil},
		{Name: "Punct", Pattern: `[{}\[\]();,]`, Action: nil},
		{Name: "Whitespace", Pattern: `[ \t\r\n]+`, Action: nil},
	},
})
