package gates

import (
	"context"
	"fmt"
	"go/parser"
	"go/token"
	"strings"

	"github.com/codemend/codemend/internal/types"
)

// SyntaxGate is the blocking syntax check. Go sources get a real parse;
// other languages get a structural sanity check (balanced delimiters,
// non-empty content), which catches the common failure mode of a fix
// generator truncating a file mid-block.
type SyntaxGate struct{}

// NewSyntaxGate creates the blocking syntax gate
func NewSyntaxGate() *SyntaxGate { return &SyntaxGate{} }

func (g *SyntaxGate) Name() string { return "syntax" }
func (g *SyntaxGate) Tier() Tier   { return TierBlocking }

func (g *SyntaxGate) Check(ctx context.Context, artifact *types.Artifact) (bool, string, error) {
	if strings.TrimSpace(artifact.Content) == "" {
		return false, "artifact is empty", nil
	}

	switch artifact.Language {
	case "go":
		fset := token.NewFileSet()
		if _, err := parser.ParseFile(fset, artifact.Path, artifact.Content, parser.AllErrors); err != nil {
			return false, fmt.Sprintf("go parse error: %v", err), nil
		}
		return true, "go syntax valid", nil
	default:
		if detail, ok := checkBalance(artifact.Content); !ok {
			return false, detail, nil
		}
		return true, "structural check passed", nil
	}
}

// checkBalance verifies brackets, braces, and parentheses pair up outside of
// string literals and line comments. It is deliberately loose: unknown
// languages should fail only on clear truncation damage.
func checkBalance(content string) (string, bool) {
	var stack []rune
	for ln, line := range strings.Split(content, "\n") {
		var err string
		stack, err = scanLine(line, stack)
		if err != "" {
			return fmt.Sprintf("%s at line %d", err, ln+1), false
		}
	}
	if len(stack) > 0 {
		return fmt.Sprintf("%d unclosed delimiter(s), file may be truncated", len(stack)), false
	}
	return "", true
}

// scanLine walks one line, pushing and popping delimiters. String literals
// do not carry across lines; a dangling quote just ends at the newline.
func scanLine(line string, stack []rune) ([]rune, string) {
	pairs := map[rune]rune{')': '(', ']': '[', '}': '{'}
	inString := rune(0)
	escaped := false

	for _, ch := range line {
		if escaped {
			escaped = false
			continue
		}
		if inString != 0 {
			switch ch {
			case '\\':
				escaped = true
			case inString:
				inString = 0
			}
			continue
		}
		switch ch {
		case '"', '\'', '`':
			inString = ch
		case '#': // comment in the script languages this check serves
			return stack, ""
		case '(', '[', '{':
			stack = append(stack, ch)
		case ')', ']', '}':
			if len(stack) == 0 || stack[len(stack)-1] != pairs[ch] {
				return stack, fmt.Sprintf("unbalanced %q", ch)
			}
			stack = stack[:len(stack)-1]
		}
	}
	return stack, ""
}
