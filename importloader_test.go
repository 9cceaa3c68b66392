package horse64

import (
	"fmt"
	"testing"

	"github.com/horse64/h64core/ast"
)

// stubProvider is an in-memory ASTProvider keyed by the dotted import
// path joined with ".", letting tests drive the loader without touching
// the filesystem.
type stubProvider struct {
	files     map[string]*ast.File
	resolveCt map[string]int
	getCt     map[string]int
}

func newStubProvider() *stubProvider {
	return &stubProvider{
		files:     make(map[string]*ast.File),
		resolveCt: make(map[string]int),
		getCt:     make(map[string]int),
	}
}

func (s *stubProvider) add(pathComponents []string, file *ast.File) {
	key := joinDots(pathComponents)
	file.FileURI = "file:///" + key + ".h64"
	s.files[key] = file
}

func joinDots(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "."
		}
		out += p
	}
	return out
}

func (s *stubProvider) ResolveImport(fromURI string, pathComponents []string, library string) (string, error) {
	key := joinDots(pathComponents)
	s.resolveCt[key]++
	file, ok := s.files[key]
	if !ok {
		return "", ErrImportNotFound
	}
	return file.FileURI, nil
}

func (s *stubProvider) GetAST(fileURI string) (*ast.File, error) {
	for key, file := range s.files {
		if file.FileURI == fileURI {
			s.getCt[key]++
			return file, nil
		}
	}
	return nil, fmt.Errorf("no such file: %s", fileURI)
}

func TestImportLoaderCachesByFileURI(t *testing.T) {
	provider := newStubProvider()
	provider.add([]string{"mylib", "utils"}, &ast.File{ModulePath: "mylib.utils"})
	loader := NewImportLoader(provider, &Environment{})

	first, err := loader.Load("file:///main.h64", []string{"mylib", "utils"}, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	second, err := loader.Load("file:///other.h64", []string{"mylib", "utils"}, "")
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if first != second {
		t.Fatalf("expected the same cached *ast.File pointer on repeated imports")
	}
	if provider.getCt["mylib.utils"] != 1 {
		t.Fatalf("expected GetAST to run exactly once, ran %d times", provider.getCt["mylib.utils"])
	}
	if provider.resolveCt["mylib.utils"] != 2 {
		t.Fatalf("expected ResolveImport to run on every Load call, ran %d times", provider.resolveCt["mylib.utils"])
	}
}

func TestImportLoaderPropagatesNotFound(t *testing.T) {
	provider := newStubProvider()
	loader := NewImportLoader(provider, &Environment{})

	_, err := loader.Load("file:///main.h64", []string{"nope"}, "")
	if err != ErrImportNotFound {
		t.Fatalf("expected ErrImportNotFound, got %v", err)
	}
}

func TestImportLoaderCachedReturnsFirstLoadOrder(t *testing.T) {
	provider := newStubProvider()
	provider.add([]string{"a"}, &ast.File{ModulePath: "a"})
	provider.add([]string{"b"}, &ast.File{ModulePath: "b"})
	loader := NewImportLoader(provider, &Environment{})

	if _, err := loader.Load("file:///main.h64", []string{"a"}, ""); err != nil {
		t.Fatalf("load a: %v", err)
	}
	if _, err := loader.Load("file:///main.h64", []string{"b"}, ""); err != nil {
		t.Fatalf("load b: %v", err)
	}
	cached := loader.Cached()
	if len(cached) != 2 || cached[0].ModulePath != "a" || cached[1].ModulePath != "b" {
		t.Fatalf("expected Cached() to report [a, b] in load order, got %+v", cached)
	}

	// Mutating the returned slice must not corrupt the loader's internal order.
	cached[0] = nil
	if loader.Cached()[0].ModulePath != "a" {
		t.Fatalf("Cached() must return a defensive copy")
	}
}
