package rewrite

import "fmt"

// SyntaxError reports a malformed placeholder or a style violation found
// during the lexical scan, with the byte position in the source text.
type SyntaxError struct {
	Message  string
	Position int
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("rewrite: syntax error at position %d: %s", e.Position, e.Message)
}

func newSyntaxError(pos int, format string, args ...interface{}) *SyntaxError {
	return &SyntaxError{Message: fmt.Sprintf(format, args...), Position: pos}
}
