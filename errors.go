// errors.go — stable error-kind tags and caret-snippet diagnostic
// rendering, grounded on the teacher's errors.go (WrapErrorWithSource /
// prettyErrorStringLabeled), adapted from MindScript's lexer/parser/
// runtime error set to the closed Horse64 kind set of spec.md §7.
package horse64

import (
	"fmt"
	"strings"
)

// ErrorKind is a stable diagnostic tag (spec.md §7).
type ErrorKind string

const (
	// Resolver
	ErrUnknownIdentifier  ErrorKind = "UnknownIdentifier"
	ErrUnknownModulePath  ErrorKind = "UnknownModulePath"
	ErrBareModuleReference ErrorKind = "BareModuleReference"
	ErrSelfOutsideMethod  ErrorKind = "SelfOutsideMethod"
	ErrDuplicateMain      ErrorKind = "DuplicateMain"
	ErrImportChainTooDeep ErrorKind = "ImportChainTooDeep"
	ErrModulePathHasDots  ErrorKind = "ModulePathHasDots"
	ErrFileNotInProject   ErrorKind = "FileNotInProject"
	ErrMalformedAST       ErrorKind = "MalformedAST"

	// Program-table
	ErrDuplicateClassMember ErrorKind = "DuplicateClassMember"
	ErrTooManyMethods       ErrorKind = "TooManyMethods"

	// VM
	ErrOutOfMemory        ErrorKind = "OutOfMemory"
	ErrInvalidInstruction ErrorKind = "InvalidInstruction"
	ErrUncaughtException  ErrorKind = "UncaughtException"
	ErrDivisionByZero     ErrorKind = "DivisionByZero"
	ErrTypeMismatch       ErrorKind = "TypeMismatch"
)

// Diagnostic is the {kind, file_uri, line, column, message} record of
// spec.md §6/§7.
type Diagnostic struct {
	Kind    ErrorKind
	FileURI string
	Line    int
	Col     int
	Message string
}

func (d *Diagnostic) Error() string {
	return fmt.Sprintf("%s at %s:%d:%d: %s", d.Kind, d.FileURI, d.Line, d.Col, d.Message)
}

// MessageBuffer accumulates Diagnostics for one AST file, spec.md §4.5
// ("every error is appended to the AST's result-message buffer").
type MessageBuffer struct {
	Messages []*Diagnostic
}

func (b *MessageBuffer) Add(kind ErrorKind, fileURI string, line, col int, format string, args ...any) {
	b.Messages = append(b.Messages, &Diagnostic{
		Kind: kind, FileURI: fileURI, Line: line, Col: col,
		Message: fmt.Sprintf(format, args...),
	})
}

func (b *MessageBuffer) HasErrors() bool { return len(b.Messages) > 0 }

// TransferMessages bubbles messages from src to dst (project-level
// buffer), per spec.md §7 "bubble to the project-level buffer via
// transfer_messages".
func TransferMessages(dst, src *MessageBuffer) {
	dst.Messages = append(dst.Messages, src.Messages...)
}

// RuntimeError is a VM-level failure that is not represented as a raised
// language-level Exception heap object (e.g. a host-side type mismatch
// surfaced by a native function before any bytecode could raise it).
type RuntimeError struct {
	Kind    ErrorKind
	Message string
}

func (e *RuntimeError) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Message) }

// OOMError is the distinct failure return for allocation failures
// (spec.md §4.5 "Out-of-memory aborts the pass and propagates as a
// distinct failure return").
type OOMError struct{ Context string }

func (e *OOMError) Error() string { return fmt.Sprintf("out of memory: %s", e.Context) }

// FormatSnippet renders a caret-annotated source snippet for a
// diagnostic, grounded on the teacher's prettyErrorStringLabeled: one
// line of context before/after, a caret under the 1-based column.
func FormatSnippet(src string, d *Diagnostic) string {
	lines := strings.Split(src, "\n")
	line := d.Line
	if line < 1 {
		line = 1
	}
	if line > len(lines) {
		line = len(lines)
	}
	col := d.Col
	if col < 1 {
		col = 1
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s at %s:%d:%d: %s\n\n", d.Kind, d.FileURI, d.Line, d.Col, d.Message)
	if line-1 >= 1 && line-2 < len(lines) {
		fmt.Fprintf(&b, "  %4d | %s\n", line-1, lines[line-2])
	}
	if line-1 < len(lines) {
		fmt.Fprintf(&b, "  %4d | %s\n", line, lines[line-1])
	}
	pad := strings.Repeat(" ", col-1)
	fmt.Fprintf(&b, "       | %s^\n", pad)
	if line < len(lines) {
		fmt.Fprintf(&b, "  %4d | %s\n", line+1, lines[line])
	}
	return b.String()
}
