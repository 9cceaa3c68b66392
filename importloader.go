// importloader.go — the Import Loader (C4), spec.md §4.4.
//
// Grounded on the teacher's ImportFile in modules.go: cycle detection via
// a per-load call stack, caching successful loads by canonical identity,
// never caching failures. Here the two external collaborators
// (resolve_import, get_ast) are named as a Go interface (ASTProvider) so
// the resolver depends on an abstraction instead of a concrete fetcher —
// the same dependency-inversion spec.md §6 asks for ("named only by
// interface").
package horse64

import (
	"fmt"

	"github.com/horse64/h64core/ast"
)

// ASTProvider is the pair of external collaborators from spec.md §6.
type ASTProvider interface {
	ResolveImport(fromURI string, pathComponents []string, library string) (fileURI string, err error)
	GetAST(fileURI string) (*ast.File, error)
}

// ErrImportNotFound mirrors the external resolver's NotFound outcome.
var ErrImportNotFound = fmt.Errorf("import not found")

// ImportLoader lazily materializes ASTs referenced by import statements,
// caching by file URI so each distinct source is parsed once, and
// permitting cycles at the import graph (every AST's global-storage pass
// still runs at most once, latched by File.GlobalStorageBuilt).
type ImportLoader struct {
	provider ASTProvider
	cache    map[string]*ast.File
	order    []*ast.File
	env      *Environment
}

func NewImportLoader(provider ASTProvider, env *Environment) *ImportLoader {
	return &ImportLoader{provider: provider, cache: make(map[string]*ast.File), env: env}
}

// Load resolves an import statement to a file URI and returns its AST,
// from cache if already materialized.
func (l *ImportLoader) Load(fromURI string, pathComponents []string, library string) (*ast.File, error) {
	fileURI, err := l.provider.ResolveImport(fromURI, pathComponents, library)
	if err != nil {
		return nil, err
	}
	norm := NormalizePath(fileURI)
	if cached, ok := l.cache[norm]; ok {
		return cached, nil
	}
	file, err := l.provider.GetAST(fileURI)
	if err != nil {
		return nil, err
	}
	l.cache[norm] = file
	l.order = append(l.order, file)
	return file, nil
}

// Cached returns every AST this loader has materialized so far, in
// first-load order — used by the resolver's recursive sub-pass
// (spec.md §4.5 step 4) to revisit imports discovered transitively.
func (l *ImportLoader) Cached() []*ast.File {
	out := make([]*ast.File, len(l.order))
	copy(out, l.order)
	return out
}
