package parser

import (
	"fmt"

	"github.com/alecthomas/participle/v2"

	"github.com/TrivialCompiler/TrivialCompiler-sub000/internal/frontend/lexer"
)

var sourceParser = participle.MustBuild[CompUnit](
	participle.Lexer(lexer.SourceLexer),
	participle.Elide("Whitespace", "Comment", "BlockComment"),
	participle.UseLookahead(4),
	participle.Unquote(),
)

// ParseString parses a complete source file, returning the raw grammar
// tree. Syntax errors come back as participle.Error values carrying a
// lexer.Position, consumed by internal/diag to render a framed diagnostic.
func ParseString(filename, src string) (*CompUnit, error) {
	unit, err := sourceParser.ParseString(filename, src)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filename, err)
	}
	return unit, nil
}
