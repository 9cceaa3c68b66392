package ast

import "testing"

func TestScopeDeclareAddsNewDefinitionOnce(t *testing.T) {
	s := NewScope(nil, true)
	declExpr := &Expr{Kind: KindVarDef, Name: "x"}

	def, isNew := s.Declare("x", declExpr)
	if !isNew {
		t.Fatalf("expected the first declaration of x to be new")
	}
	if def.Identifier != "x" || def.DeclarationExpr != declExpr {
		t.Fatalf("unexpected definition: %+v", def)
	}
	if len(s.Definitions) != 1 {
		t.Fatalf("expected 1 definition recorded, got %d", len(s.Definitions))
	}
}

func TestScopeDeclareAppendsAdditionalDeclsOnRedeclare(t *testing.T) {
	s := NewScope(nil, true)
	firstImport := &Expr{Kind: KindImportStmt, Name: "foo", PathComponents: []string{"foo", "bar"}}
	secondImport := &Expr{Kind: KindImportStmt, Name: "foo", PathComponents: []string{"foo", "baz"}}

	def1, isNew1 := s.Declare("foo", firstImport)
	def2, isNew2 := s.Declare("foo", secondImport)

	if !isNew1 {
		t.Fatalf("first declaration of foo should be new")
	}
	if isNew2 {
		t.Fatalf("second declaration of foo should NOT be reported as new")
	}
	if def1 != def2 {
		t.Fatalf("both declarations of foo must share the same Definition")
	}
	if len(def1.AdditionalDecls) != 1 || def1.AdditionalDecls[0] != secondImport {
		t.Fatalf("expected secondImport recorded as an additional decl, got %+v", def1.AdditionalDecls)
	}
	if len(s.Definitions) != 1 {
		t.Fatalf("a redeclare must not add a second Definitions entry, got %d", len(s.Definitions))
	}
}

func TestScopeQueryWalksParentChainOnlyWhenAsked(t *testing.T) {
	global := NewScope(nil, true)
	global.Declare("outer", &Expr{Kind: KindVarDef, Name: "outer"})
	inner := NewScope(global, false)
	inner.Declare("local", &Expr{Kind: KindVarDef, Name: "local"})

	if inner.Query("outer", false) != nil {
		t.Fatalf("Query with walkParents=false must not see an outer-scope name")
	}
	if inner.Query("outer", true) == nil {
		t.Fatalf("Query with walkParents=true must find an outer-scope name")
	}
	if inner.Query("local", false) == nil {
		t.Fatalf("Query must find a name declared in the local scope regardless of walkParents")
	}
	if inner.Query("missing", true) != nil {
		t.Fatalf("Query for an undeclared name must return nil")
	}
}

func TestGetScopeWalksUpToNearestScopeOwner(t *testing.T) {
	fnScope := NewScope(nil, false)
	fnExpr := &Expr{Kind: KindFuncDef, OwnScope: fnScope}
	fnScope.OwnerExpr = fnExpr

	// A deeply nested child with no OwnScope of its own must resolve to
	// the nearest ancestor that owns one.
	inner := &Expr{Kind: KindBinaryOp, Parent: fnExpr}
	leaf := &Expr{Kind: KindIdentifierRef, Parent: inner}

	if GetScope(leaf) != fnScope {
		t.Fatalf("expected GetScope to walk up to the function's own scope")
	}
	if GetScope(fnExpr) != fnScope {
		t.Fatalf("GetScope on the scope-owning node itself should return its own scope")
	}
}

func TestGetScopeReturnsNilForMalformedAST(t *testing.T) {
	orphan := &Expr{Kind: KindIdentifierRef}
	if GetScope(orphan) != nil {
		t.Fatalf("expected nil for a node with no scope-owning ancestor")
	}
}

func TestFileGlobalScope(t *testing.T) {
	scope := NewScope(nil, true)
	root := &Expr{Kind: KindBlock, OwnScope: scope}
	f := &File{Root: root}

	if f.GlobalScope() != scope {
		t.Fatalf("expected GlobalScope to return the root block's own scope")
	}

	empty := &File{}
	if empty.GlobalScope() != nil {
		t.Fatalf("expected nil GlobalScope when Root is nil")
	}
}
