// resolve_idents.go — C5 steps 5-6: identifier resolution (including
// cross-module dotted access and closure capture) and local-storage
// assignment, spec.md §4.5.
//
// Grounded on the teacher's resolveIdent-style recursive tree walk in
// interpreter.go (a post-order pass that looks a name up through nested
// environments before falling back to a builtin table), generalized to
// Horse64's three-way storage model (local/global/builtin) plus the
// cross-module chain reconstruction spec.md §4.5 step 5 names, which the
// teacher's single-module tree-walker has no equivalent for.
package horse64

import (
	"github.com/horse64/h64core/ast"
)

// ResolveIdentifiersGraph runs step 5 over entry and, transitively, every
// AST its imports reach, then runs step 6 (local-storage assignment) over
// the same set. Every AST is visited at most once (IdentifiersResolved
// latch), matching the global-storage pass's GlobalStorageBuilt latch.
func ResolveIdentifiersGraph(env *Environment, prog *Program, builtins *BuiltinScope, loader *ImportLoader, entry *ast.File) error {
	visited := map[*ast.File]bool{}
	if err := resolveIdentifiersOne(env, prog, builtins, entry, visited); err != nil {
		return err
	}
	for _, f := range loader.Cached() {
		if err := resolveIdentifiersOne(env, prog, builtins, f, visited); err != nil {
			return err
		}
	}

	assignLocalStorage(entry)
	for _, f := range loader.Cached() {
		assignLocalStorage(f)
	}
	return nil
}

func resolveIdentifiersOne(env *Environment, prog *Program, builtins *BuiltinScope, file *ast.File, visited map[*ast.File]bool) error {
	if visited[file] || file.IdentifiersResolved {
		return nil
	}
	visited[file] = true

	ip := &identPass{env: env, prog: prog, builtins: builtins, file: file}
	if file.Root != nil {
		if err := ip.walk(file.Root); err != nil {
			return err
		}
	}
	file.IdentifiersResolved = true
	return nil
}

type identPass struct {
	env      *Environment
	prog     *Program
	builtins *BuiltinScope
	file     *ast.File
}

func (ip *identPass) walk(e *ast.Expr) error {
	if e == nil {
		return nil
	}
	switch e.Kind {
	case ast.KindSelf, ast.KindBase:
		fn := enclosingFuncOf(e)
		if fn == nil || fn.EnclosingClassID < 0 {
			word := "self"
			if e.Kind == ast.KindBase {
				word = "base"
			}
			addMessage(ip.file, ErrSelfOutsideMethod, e.Pos, "%q used outside a method", word)
		}

	case ast.KindMemberByIdentifier:
		e.MemberNameID = ip.prog.InternMemberName(e.Name)
		// Only the base expression is a normal reference; e.Name itself
		// does not resolve through scope (spec.md §4.5 step 5).
		for _, c := range e.Children {
			if err := ip.walk(c); err != nil {
				return err
			}
		}
		return nil

	case ast.KindIdentifierRef:
		ip.resolveIdentifier(e)
	}

	for _, c := range e.Children {
		if err := ip.walk(c); err != nil {
			return err
		}
	}
	if e.Init != nil {
		if err := ip.walk(e.Init); err != nil {
			return err
		}
	}
	if e.Body != nil {
		if err := ip.walk(e.Body); err != nil {
			return err
		}
	}
	return nil
}

func (ip *identPass) resolveIdentifier(e *ast.Expr) {
	scope := ast.GetScope(e)
	if scope == nil {
		addMessage(ip.file, ErrMalformedAST, e.Pos, "identifier %q has no enclosing scope", e.Name)
		return
	}
	def := scope.Query(e.Name, true)
	if def == nil {
		if id, ok := ip.builtins.LookupFunc(e.Name); ok {
			e.Storage = ast.Storage{Set: true, Kind: ast.StorageBuiltin, ID: id}
			e.ResolvedToBuiltin = true
			return
		}
		if id, ok := ip.builtins.LookupClass(e.Name); ok {
			e.Storage = ast.Storage{Set: true, Kind: ast.StorageBuiltin, ID: id}
			e.ResolvedToBuiltin = true
			return
		}
		if id, ok := ip.builtins.LookupGlobal(e.Name); ok {
			e.Storage = ast.Storage{Set: true, Kind: ast.StorageBuiltin, ID: id}
			e.ResolvedToBuiltin = true
			return
		}
		addMessage(ip.file, ErrUnknownIdentifier, e.Pos, "unknown identifier %q", e.Name)
		return
	}
	def.EverUsed = true
	declExpr := def.DeclarationExpr

	if declExpr.Kind == ast.KindImportStmt {
		ip.resolveModuleAccess(e, def)
		return
	}

	declFunc := enclosingFuncOf(declExpr)
	if declExpr.Kind == ast.KindFuncDef {
		declFunc = enclosingFuncOf(declExpr.Parent)
	}
	if declFunc == nil {
		// Global declaration (var_def/func_def/class_def at file scope):
		// copy the storage the global-storage pass already annotated.
		e.Storage = declExpr.Storage
		e.ResolvedToDef = def
		return
	}

	currentFunc := enclosingFuncOf(e)
	if currentFunc == declFunc {
		e.ResolvedToDef = def
		e.Storage = ast.Storage{Set: true, Kind: ast.StorageLocal, ID: -1}
		return
	}

	// declFunc is an ancestor function of currentFunc: a closure capture.
	def.ClosureBound = true
	for f := currentFunc; f != nil && f != declFunc; f = enclosingFuncOf(f.Parent) {
		addClosureCapture(f, def)
	}
	e.ResolvedToDef = def
	e.Storage = ast.Storage{Set: true, Kind: ast.StorageLocal, ID: -1}
}

func addClosureCapture(fn *ast.Expr, def *ast.Definition) {
	for _, d := range fn.ClosureCaptures {
		if d == def {
			return
		}
	}
	fn.ClosureCaptures = append(fn.ClosureCaptures, def)
}

// enclosingFuncOf walks the scope-ownership chain (not the raw parent
// pointer chain) starting at e to find the nearest func_def/inline_func
// that owns an ancestor scope. Returns nil if e is at module level.
func enclosingFuncOf(e *ast.Expr) *ast.Expr {
	s := ast.GetScope(e)
	for s != nil {
		if s.OwnerExpr != nil && (s.OwnerExpr.Kind == ast.KindFuncDef || s.OwnerExpr.Kind == ast.KindInlineFunc) {
			return s.OwnerExpr
		}
		s = s.Parent
	}
	return nil
}

// defaultMaxImportChainLen is used when the caller's Environment leaves
// MaxImportChainLen unset (the zero value), per environment.go's
// documented default.
const defaultMaxImportChainLen = 16

// resolveModuleAccess implements spec.md §4.5 step 5's import_stmt branch:
// reconstruct the dotted access chain starting at e, match it against
// every import sharing def's identifier, then resolve the one remaining
// hop in the target module's global scope.
func (ip *identPass) resolveModuleAccess(e *ast.Expr, def *ast.Definition) {
	maxLen := ip.env.MaxImportChainLen
	if maxLen <= 0 {
		maxLen = defaultMaxImportChainLen
	}
	chain, tooDeep := climbMemberChain(e, maxLen)
	if tooDeep {
		addMessage(ip.file, ErrImportChainTooDeep, e.Pos,
			"import access chain for %q exceeds the maximum of %d", e.Name, maxLen)
		return
	}

	decls := append([]*ast.Expr{def.DeclarationExpr}, def.AdditionalDecls...)
	var matched *ast.Expr
	requiredHops := 0
	for _, decl := range decls {
		need := len(decl.PathComponents) - 1
		if need < 0 || need > len(chain) {
			continue
		}
		if !pathHopsEqual(decl.PathComponents, chain, need) {
			continue
		}
		matched = decl
		requiredHops = need
		break
	}
	if matched == nil {
		addMessage(ip.file, ErrUnknownModulePath, e.Pos, "no import matches access path for %q", e.Name)
		return
	}
	if len(chain) <= requiredHops {
		addMessage(ip.file, ErrBareModuleReference, e.Pos, "module %q referenced without accessing a member", e.Name)
		return
	}
	itemNode := chain[requiredHops]
	target := matched.ResolvedFile
	if target == nil {
		addMessage(ip.file, ErrUnknownModulePath, e.Pos, "import %q was never materialized", e.Name)
		return
	}
	targetScope := target.GlobalScope()
	if targetScope == nil {
		addMessage(ip.file, ErrMalformedAST, e.Pos, "imported module %q has no global scope", joinPath(matched.PathComponents))
		return
	}
	targetDef := targetScope.Query(itemNode.Name, false)
	if targetDef == nil {
		addMessage(ip.file, ErrUnknownIdentifier, itemNode.Pos, "unknown identifier %q in module %q", itemNode.Name, joinPath(matched.PathComponents))
		return
	}
	e.Storage = targetDef.DeclarationExpr.Storage
	e.ResolvedToDef = targetDef
}

// climbMemberChain collects the consecutive run of member_by_identifier
// nodes rooted at e (e.Parent, then e.Parent.Parent if it in turn treats
// e.Parent as its base, and so on), in outward order. Reconstruction
// stops and reports tooDeep=true once the chain would exceed maxLen hops
// (spec.md §9's import-access-chain-length Open Question), rather than
// walking an attacker- or generator-supplied AST without bound.
func climbMemberChain(e *ast.Expr, maxLen int) (chain []*ast.Expr, tooDeep bool) {
	cur := e
	for {
		p := cur.Parent
		if p == nil || p.Kind != ast.KindMemberByIdentifier || len(p.Children) == 0 || p.Children[0] != cur {
			break
		}
		if len(chain) >= maxLen {
			return chain, true
		}
		chain = append(chain, p)
		cur = p
	}
	return chain, false
}

// pathHopsEqual compares pathComponents[1:] (the components after the
// base identifier itself, which was already matched by scope.Query)
// against the first `need` hops of chain, by name.
func pathHopsEqual(pathComponents []string, chain []*ast.Expr, need int) bool {
	if len(pathComponents) != need+1 {
		return false
	}
	for i := 0; i < need; i++ {
		if chain[i].Name != pathComponents[i+1] {
			return false
		}
	}
	return true
}

// assignLocalStorage implements spec.md §4.5 step 6: walk every
// func_def/inline_func in file, assign slot indices to its parameters,
// its own locals (in declaration order) and its closure captures, then
// patch every identifier reference whose ResolvedToDef points at one of
// those definitions.
func assignLocalStorage(file *ast.File) {
	if file.Root == nil {
		return
	}
	assignLocalStorageWalk(file.Root)
}

func assignLocalStorageWalk(e *ast.Expr) {
	if e == nil {
		return
	}
	if e.Kind == ast.KindFuncDef || e.Kind == ast.KindInlineFunc {
		assignFuncLocals(e)
	}
	for _, c := range e.Children {
		assignLocalStorageWalk(c)
	}
	if e.Init != nil {
		assignLocalStorageWalk(e.Init)
	}
	if e.Body != nil {
		assignLocalStorageWalk(e.Body)
	}
}

func assignFuncLocals(fn *ast.Expr) {
	next := 0
	assign := func(def *ast.Definition) {
		if def.LocalSlot >= 0 {
			return
		}
		def.LocalSlot = next
		next++
	}

	if fn.OwnScope != nil {
		for i := 0; i < len(fn.ParamNames); i++ {
			if i < len(fn.OwnScope.Definitions) {
				assign(fn.OwnScope.Definitions[i])
			}
		}
	}
	for _, capture := range fn.ClosureCaptures {
		assign(capture)
	}
	if fn.OwnScope != nil {
		for _, def := range fn.OwnScope.Definitions {
			assign(def)
		}
	}
	walkLocalScopes(fn.Body, assign)

	patchLocalRefs(fn.Body, fn)
}

// walkLocalScopes descends into nested block/for/if scopes belonging to
// fn's own body (stopping at a nested func_def/inline_func, whose locals
// are assigned by their own call to assignFuncLocals), assigning slots to
// every definition in declaration order.
func walkLocalScopes(e *ast.Expr, assign func(*ast.Definition)) {
	if e == nil {
		return
	}
	if e.Kind == ast.KindFuncDef || e.Kind == ast.KindInlineFunc {
		return
	}
	if e.OwnScope != nil {
		for _, def := range e.OwnScope.Definitions {
			assign(def)
		}
	}
	for _, c := range e.Children {
		walkLocalScopes(c, assign)
	}
	if e.Init != nil {
		walkLocalScopes(e.Init, assign)
	}
	if e.Body != nil {
		walkLocalScopes(e.Body, assign)
	}
}

// patchLocalRefs rewrites every identifier_ref under fn's body whose
// ResolvedToDef carries a now-assigned LocalSlot, and whose Storage was
// left as the step-5 placeholder (Kind local, ID -1).
func patchLocalRefs(e *ast.Expr, fn *ast.Expr) {
	if e == nil {
		return
	}
	if e.Kind == ast.KindIdentifierRef && e.ResolvedToDef != nil &&
		e.Storage.Set && e.Storage.Kind == ast.StorageLocal && e.Storage.ID < 0 {
		e.Storage.ID = e.ResolvedToDef.LocalSlot
	}
	if e.Kind == ast.KindFuncDef || e.Kind == ast.KindInlineFunc {
		if e != fn {
			return // nested function's own refs are patched by its own assignFuncLocals call
		}
	}
	for _, c := range e.Children {
		patchLocalRefs(c, fn)
	}
	if e.Init != nil {
		patchLocalRefs(e.Init, fn)
	}
	if e.Body != nil {
		patchLocalRefs(e.Body, fn)
	}
}
