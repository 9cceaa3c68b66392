// Package ast defines the shape of the abstract syntax tree the Horse64
// core operates on. Per the core's contract the parser is an external
// collaborator (see the lexer/parser packages for one concrete producer);
// this package only fixes the node shapes the resolver and VM rely on:
// kind, parent pointer, source location, kind-specific children, the
// storage annotation, and the scope chain.
package ast

// Kind discriminates an expression node. Grounded on the node-kind switch
// style used by xirelogy-go-flux's internal/ast package, adapted to a flat
// enum (Horse64 expressions are resolved by a single post-order walk, not
// dispatched through a typed interface per node).
type Kind int

const (
	KindLiteral Kind = iota
	KindIdentifierRef
	KindMemberByIdentifier
	KindBinaryOp
	KindUnaryOp
	KindCall
	KindVarDef
	KindFuncDef
	KindClassDef
	KindImportStmt
	KindInlineFunc
	KindForStmt
	KindIfStmt
	KindDoRescueStmt
	KindRaiseStmt
	KindReturnStmt
	KindBlock
	KindSelf
	KindBase
)

// StorageKind is the resolved binding kind for an identifier reference.
type StorageKind int

const (
	StorageNone StorageKind = iota
	StorageGlobalFunc
	StorageGlobalClass
	StorageGlobalVar
	StorageLocal
	StorageBuiltin
)

// Storage is the `{set, ref: {kind, id}}` annotation from spec.md §3.
type Storage struct {
	Set bool
	Kind StorageKind
	ID   int
}

// Pos is a 1-based source location.
type Pos struct {
	FileURI string
	Line    int
	Col     int
}

// LiteralKind distinguishes the payload carried by a KindLiteral node.
type LiteralKind int

const (
	LitNone LiteralKind = iota
	LitBool
	LitInt
	LitFloat
	LitStr
)

// Expr is a single AST node. Only the fields relevant to the node's Kind
// are populated; this mirrors the "kind-specific children" wording of
// spec.md §3 without introducing a typed interface hierarchy, matching
// the single-pass post-order walkers in §4.5/§4.7.
type Expr struct {
	Kind   Kind
	Parent *Expr
	Pos    Pos

	// Scope this node introduces, if any (func/class/block bodies, for-loops).
	OwnScope *Scope

	// identifier-ref / member-by-identifier / var-def name, func/class name,
	// import path component, parameter name.
	Name string

	// import_stmt: dotted path components and optional library qualifier.
	PathComponents []string
	Library        string

	// literal payload
	LitKind LiteralKind
	BoolVal bool
	IntVal  int64
	FloatVal float64
	StrVal   string

	// operator (binary_op / unary_op)
	Op string

	// generic children: operands, call args, block statements, class members...
	Children []*Expr

	// call-site keyword argument names, parallel to (a subset of) Children.
	KwargNames []string

	// var_def / func_def: initializer / body; func_def parameters are not Children (see ParamNames and OwnScope)
	Init *Expr
	Body *Expr

	// func_def: ordered parameter names, keyword parameter names, and
	// whether the last parameter gathers multiple trailing args.
	ParamNames   []string
	KwParamNames []string
	LastIsMulti  bool

	// var_def: is this declaration "const"?
	IsConst bool

	// resolver outputs
	Storage          Storage
	ResolvedToDef     *Definition
	ResolvedToBuiltin bool

	// for member_by_identifier: the interned member-name id (populated at
	// intern time, independent of whether the access resolves to a slot).
	MemberNameID int

	// import_stmt: the AST materialized for this import by the loader
	// during the resolver's pre-loading step.
	ResolvedFile *File

	// func_def / inline_func: -1 if a free function, else the class_id of
	// the enclosing class_def (set by the global-storage pass so later
	// passes can answer "is this a method" without re-walking parents).
	EnclosingClassID int

	// func_def / inline_func: outer-scope definitions this function body
	// references, appended by the identifier-resolution pass whenever a
	// reference resolves to a var_def owned by an enclosing function.
	ClosureCaptures []*Definition
}

// Definition is a name binding recorded in a Scope: the declaring
// expression plus any further declarations that share the identifier
// (repeated `import foo.bar` / `import foo.baz` both binding `foo`).
type Definition struct {
	Identifier      string
	DeclarationExpr *Expr
	AdditionalDecls []*Expr
	EverUsed        bool
	ClosureBound    bool

	// assigned by local-storage assignment (spec.md §4.5 step 6)
	LocalSlot int
}

// Scope is a name->definition environment with a parent link. Query walks
// the local map first, then (if requested) the lexical parent chain.
type Scope struct {
	Definitions []*Definition
	byName      map[string]*Definition
	Parent      *Scope
	IsGlobal    bool

	// OwnerExpr is the node that introduced this scope (func/class/block),
	// used by GetScope's upward walk.
	OwnerExpr *Expr
}

// NewScope creates an empty scope chained to parent.
func NewScope(parent *Scope, isGlobal bool) *Scope {
	return &Scope{
		byName:   make(map[string]*Definition),
		Parent:   parent,
		IsGlobal: isGlobal,
	}
}

// Declare registers a new definition for name, or — if name is already
// bound in this scope — appends declExpr as an additional declaration on
// the existing definition (multi-import binding) and returns the existing
// definition with addedAsNew=false.
func (s *Scope) Declare(name string, declExpr *Expr) (def *Definition, addedAsNew bool) {
	if existing, ok := s.byName[name]; ok {
		existing.AdditionalDecls = append(existing.AdditionalDecls, declExpr)
		return existing, false
	}
	def = &Definition{Identifier: name, DeclarationExpr: declExpr, LocalSlot: -1}
	s.byName[name] = def
	s.Definitions = append(s.Definitions, def)
	return def, true
}

// Query searches the local name map first; if not found and walkParents,
// recurses into the parent scope. Implements C3's query(name, walk_parents).
func (s *Scope) Query(name string, walkParents bool) *Definition {
	for cur := s; cur != nil; cur = cur.Parent {
		if def, ok := cur.byName[name]; ok {
			return def
		}
		if !walkParents {
			return nil
		}
	}
	return nil
}

// GetScope walks up expr.Parent until it reaches the nearest node that
// owns a scope. Returns nil if the AST is malformed (no ancestor owns a
// scope) — the caller must treat this as an internal error (MalformedAST).
func GetScope(expr *Expr) *Scope {
	for e := expr; e != nil; e = e.Parent {
		if e.OwnScope != nil {
			return e.OwnScope
		}
	}
	return nil
}

// File is the per-source-file AST described in spec.md §3.
type File struct {
	FileURI    string
	ModulePath string
	Library    string

	Root    *Expr // root block; Root.OwnScope is the file's global scope
	Imports []*Expr

	Messages []Message

	GlobalStorageBuilt bool
	IdentifiersResolved bool
}

// GlobalScope returns the file's root (global) scope.
func (f *File) GlobalScope() *Scope {
	if f.Root == nil {
		return nil
	}
	return f.Root.OwnScope
}

// Message is a diagnostic appended to a File's result-message buffer,
// per spec.md §7: {kind, file_uri, line, column, message}.
type Message struct {
	Kind    string
	FileURI string
	Line    int
	Col     int
	Message string
}
