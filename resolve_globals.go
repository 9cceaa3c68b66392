// resolve_globals.go — C5 steps 1-4: module path derivation, import
// pre-loading, and the global-storage pass (spec.md §4.5).
//
// Grounded on the teacher's two-pass module loader in modules.go
// (ImportFile walks a dependency graph, registering symbols before any
// body is type-checked), generalized from MindScript's single flat
// symbol table to Horse64's append-only Program Table plus the
// class/function/global three-way split spec.md §4.5 step 3 names.
package horse64

import (
	"fmt"

	"github.com/horse64/h64core/ast"
)

func addMessage(file *ast.File, kind ErrorKind, pos ast.Pos, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	file.Messages = append(file.Messages, ast.Message{
		Kind: string(kind), FileURI: pos.FileURI, Line: pos.Line, Col: pos.Col, Message: msg,
	})
}

// globalPass carries the state threaded through one file's global-storage
// walk: which classes have already gained a synthesized $$varinit.
type globalPass struct {
	env      *Environment
	prog     *Program
	file     *ast.File
	isEntry  bool
	varInits map[int]bool
}

// BuildGlobalStorageGraph runs steps 1-4 of spec.md §4.5 over entry and,
// transitively, every AST reachable through its imports. isEntry controls
// whether a top-level `main` found in entry may claim
// program.MainFuncIndex; imported ASTs are always processed with
// extract_main = false, per spec.md §4.5 step 4.
func BuildGlobalStorageGraph(env *Environment, prog *Program, loader *ImportLoader, entry *ast.File, isEntry bool) error {
	return buildGlobalStorageOne(env, prog, loader, entry, isEntry)
}

func buildGlobalStorageOne(env *Environment, prog *Program, loader *ImportLoader, file *ast.File, isEntry bool) error {
	if file.GlobalStorageBuilt {
		return nil
	}

	// Step 1: module path derivation.
	if file.ModulePath == "" {
		mp, err := DeriveModulePath(file.FileURI, env.ProjectRoot)
		if err != nil {
			if pe, ok := err.(*ProgError); ok {
				addMessage(file, pe.Kind, ast.Pos{FileURI: file.FileURI, Line: 1, Col: 1}, "%s", pe.Message)
				file.GlobalStorageBuilt = true
				return nil
			}
			return err
		}
		file.ModulePath = mp
	}

	// Step 2: import pre-loading.
	preloaded, oomErr := preloadImports(env, prog, loader, file)
	if oomErr != nil {
		return oomErr
	}

	// Step 3: global-storage pass over this file's own tree.
	gp := &globalPass{env: env, prog: prog, file: file, isEntry: isEntry, varInits: map[int]bool{}}
	if file.Root != nil {
		if err := gp.walk(file.Root, -1, false); err != nil {
			return err // OOM only; recoverable errors are collected in file.Messages
		}
	}
	file.GlobalStorageBuilt = true

	// Step 4: recursive sub-pass over every imported AST, extract_main=false.
	for _, imp := range preloaded {
		if err := buildGlobalStorageOne(env, prog, loader, imp, false); err != nil {
			return err
		}
	}
	return nil
}

func preloadImports(env *Environment, prog *Program, loader *ImportLoader, file *ast.File) ([]*ast.File, error) {
	var out []*ast.File
	for _, imp := range file.Imports {
		target, err := loader.Load(file.FileURI, imp.PathComponents, imp.Library)
		if err != nil {
			if err == ErrImportNotFound {
				addMessage(file, ErrUnknownModulePath, imp.Pos, "import %q could not be resolved", joinPath(imp.PathComponents))
				continue
			}
			return nil, err
		}
		imp.ResolvedFile = target
		out = append(out, target)
	}
	return out, nil
}

func joinPath(components []string) string {
	out := ""
	for i, c := range components {
		if i > 0 {
			out += "."
		}
		out += c
	}
	return out
}

// walk implements the post-order global-storage visitor. enclosingClass
// is -1 outside any class body; insideFunc is true once the walk has
// descended into a func_def/inline_func body, at which point further
// var_def nodes are locals even if lexically still within a class (spec.md
// §4.5 step 3: "break if a function body intervenes").
func (g *globalPass) walk(e *ast.Expr, enclosingClass int, insideFunc bool) error {
	if e == nil {
		return nil
	}
	switch e.Kind {
	case ast.KindClassDef:
		classID, err := g.prog.AddClass(e.Name, g.file.FileURI, g.file.ModulePath, g.file.Library)
		if err != nil {
			g.reportProgError(e.Pos, err)
			return nil
		}
		e.Storage = ast.Storage{Set: true, Kind: ast.StorageGlobalClass, ID: classID}
		for _, c := range e.Children {
			if err := g.walk(c, classID, false); err != nil {
				return err
			}
		}
		return nil

	case ast.KindFuncDef, ast.KindInlineFunc:
		if err := g.registerFunc(e, enclosingClass, insideFunc); err != nil {
			return err
		}
		if e.Body != nil {
			return g.walk(e.Body, enclosingClass, true)
		}
		return nil

	case ast.KindVarDef:
		if !insideFunc {
			if enclosingClass >= 0 {
				g.registerClassVar(e, enclosingClass)
			} else if sc := ast.GetScope(e); sc != nil && sc.IsGlobal {
				id, err := g.prog.AddGlobalVar(e.Name, e.IsConst, g.file.FileURI, g.file.ModulePath, g.file.Library)
				if err != nil {
					g.reportProgError(e.Pos, err)
				} else {
					e.Storage = ast.Storage{Set: true, Kind: ast.StorageGlobalVar, ID: id}
				}
			}
		}
		if e.Init != nil {
			if err := g.walk(e.Init, enclosingClass, insideFunc); err != nil {
				return err
			}
		}
		return nil

	case ast.KindCall:
		for _, name := range e.KwargNames {
			if name != "" {
				g.prog.InternMemberName(name)
			}
		}
	}

	for _, c := range e.Children {
		if err := g.walk(c, enclosingClass, insideFunc); err != nil {
			return err
		}
	}
	if e.Init != nil {
		if err := g.walk(e.Init, enclosingClass, insideFunc); err != nil {
			return err
		}
	}
	if e.Body != nil {
		if err := g.walk(e.Body, enclosingClass, insideFunc); err != nil {
			return err
		}
	}
	return nil
}

func (g *globalPass) registerFunc(e *ast.Expr, enclosingClass int, insideFunc bool) error {
	isMethod := enclosingClass >= 0 && !insideFunc
	assocClass := -1
	if isMethod {
		assocClass = enclosingClass
	}
	e.EnclosingClassID = assocClass

	if g.isEntry && !insideFunc && enclosingClass < 0 && e.Name == "main" && g.prog.MainFuncIndex != -1 {
		addMessage(g.file, ErrDuplicateMain, e.Pos, "duplicate declaration of main")
		return nil
	}

	funcID, err := g.prog.RegisterFunction(e.Name, g.file.FileURI, len(e.ParamNames), e.KwParamNames,
		e.LastIsMulti, g.file.ModulePath, g.file.Library, assocClass, nil)
	if err != nil {
		g.reportProgError(e.Pos, err)
		return nil
	}

	if !isMethod && !insideFunc {
		e.Storage = ast.Storage{Set: true, Kind: ast.StorageGlobalFunc, ID: funcID}
	}

	if g.isEntry && !insideFunc && enclosingClass < 0 && e.Name == "main" {
		if g.prog.MainFuncIndex != -1 {
			addMessage(g.file, ErrDuplicateMain, e.Pos, "duplicate declaration of main")
		} else {
			g.prog.MainFuncIndex = funcID
		}
	}
	if !insideFunc && enclosingClass < 0 && e.Name == "$$globalinit" {
		g.prog.GlobalInitFuncIndex = funcID
	}
	return nil
}

func (g *globalPass) registerClassVar(e *ast.Expr, classID int) {
	cls := g.prog.Classes[classID]
	idx := len(cls.Members)
	if err := g.prog.RegisterClassMember(classID, e.Name, -1); err != nil {
		g.reportProgError(e.Pos, err)
		return
	}
	// Class member variables are accessed through GETMEMBER by name id, not
	// through the scope-based storage kinds of spec.md §3 — they carry no
	// conventional Storage.Kind, only their slot index for $$varinit.
	e.Storage = ast.Storage{Set: true, Kind: ast.StorageNone, ID: idx}

	hasInit := e.Init != nil && !(e.Init.Kind == ast.KindLiteral && e.Init.LitKind == ast.LitNone)
	if hasInit && !g.varInits[classID] {
		if _, err := g.prog.RegisterFunction("$$varinit", g.file.FileURI, 0, nil, false,
			g.file.ModulePath, g.file.Library, classID, nil); err == nil {
			g.varInits[classID] = true
		}
	}
}

func (g *globalPass) reportProgError(pos ast.Pos, err error) {
	if pe, ok := err.(*ProgError); ok {
		addMessage(g.file, pe.Kind, pos, "%s", pe.Message)
		return
	}
	addMessage(g.file, ErrMalformedAST, pos, "%s", err.Error())
}
