// program_entry.go — the two host-facing entry points of spec.md §6:
// parse_and_resolve(source_tree_root) and execute(program); plus
// execute_program (§4.8), which runs $$globalinit then main and reports
// an uncaught exception by class name.
//
// Grounded on the teacher's cmd/msg/main.go driver loop (load → resolve →
// run → report), generalized from a single-pass REPL evaluator to the
// resolve-then-execute split this core's two subsystems require.
package horse64

import (
	"fmt"
	"os"

	"github.com/horse64/h64core/ast"
)

// ParseAndResolveOptions bundles everything ParseAndResolve needs beyond
// the entry AST itself.
type ParseAndResolveOptions struct {
	Env      *Environment
	Provider ASTProvider
	IsEntry  bool
}

// ParseAndResolve runs every step of C5 (§4.5) over entry — global-storage
// pass, transitive import resolution, identifier resolution, local-storage
// assignment — against a fresh Program pre-populated with builtins.
// Returns the Program, the complete set of per-file ASTs touched along the
// way (entry first, then every transitively-loaded import in first-load
// order), and a project-level MessageBuffer holding every file's
// diagnostics bubbled up via transfer_messages, per spec.md §7.
func ParseAndResolve(entry *ast.File, opts ParseAndResolveOptions) (*Program, []*ast.File, *MessageBuffer, error) {
	prog := NewProgram()
	builtins := RegisterBuiltins(prog)
	RegisterConcurrencyBuiltins(prog)
	loader := NewImportLoader(opts.Provider, opts.Env)

	if err := BuildGlobalStorageGraph(opts.Env, prog, loader, entry, opts.IsEntry); err != nil {
		return nil, nil, nil, err
	}
	if err := ResolveIdentifiersGraph(opts.Env, prog, builtins, loader, entry); err != nil {
		return nil, nil, nil, err
	}

	prog.Freeze()

	files := append([]*ast.File{entry}, loader.Cached()...)

	project := &MessageBuffer{}
	for _, f := range files {
		bubbleMessages(project, f)
	}

	return prog, files, project, nil
}

// bubbleMessages transfers f's per-file diagnostics into project, per
// spec.md §7's "recoverable errors bubble to the project-level buffer
// via transfer_messages".
func bubbleMessages(project *MessageBuffer, f *ast.File) {
	if len(f.Messages) == 0 {
		return
	}
	local := &MessageBuffer{}
	for _, m := range f.Messages {
		local.Add(ErrorKind(m.Kind), m.FileURI, m.Line, m.Col, "%s", m.Message)
	}
	TransferMessages(project, local)
}

// HasErrors reports whether any file in files carries a diagnostic.
func HasErrors(files []*ast.File) bool {
	for _, f := range files {
		if len(f.Messages) > 0 {
			return true
		}
	}
	return false
}

// ExecuteProgram is execute_program(program) of spec.md §4.8: it starts a
// fresh VM thread, runs $$globalinit if the resolver found one, then runs
// main, printing an uncaught exception's class name and returning a
// non-zero exit status.
func ExecuteProgram(prog *Program, stdout, stderr *os.File, log *Logger) int {
	th := NewThread(prog, stdout, log)

	if prog.GlobalInitFuncIndex >= 0 {
		if _, err := th.Call(prog.GlobalInitFuncIndex, nil); err != nil {
			return reportUncaught(prog, stderr, err)
		}
	}

	if prog.MainFuncIndex < 0 {
		fmt.Fprintln(stderr, "no main function defined")
		return 1
	}
	if _, err := th.Call(prog.MainFuncIndex, nil); err != nil {
		return reportUncaught(prog, stderr, err)
	}
	return 0
}

func reportUncaught(prog *Program, stderr *os.File, err error) int {
	uerr, ok := err.(*UncaughtError)
	if !ok {
		fmt.Fprintf(stderr, "fatal: %s\n", err.Error())
		return 1
	}
	name := "Exception"
	if uerr.ClassID >= 0 && uerr.ClassID < len(prog.Classes) {
		name = prog.Classes[uerr.ClassID].Name
	}
	fmt.Fprintf(stderr, "Uncaught %s\n", name)
	return 1
}

// Execute is the execute(program) → exit_code entry point of spec.md §6.
func Execute(prog *Program, log *Logger) int {
	return ExecuteProgram(prog, os.Stdout, os.Stderr, log)
}
