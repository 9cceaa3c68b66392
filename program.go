// program.go — the append-only Program Table (C1), spec.md §4.1.
//
// Grounded on the teacher's registration idiom in runtime.go/modules.go
// (RegisterNative appending into a name->entry map plus a parallel
// symbol list, module snapshots sorting exported keys deterministically)
// generalized into real monotone arrays keyed by stable integer ids,
// since the spec requires "ids assigned by the resolver equal indices
// used by emitted bytecode; tables never shrink" — a map-keyed registry
// cannot give that guarantee.
package horse64

import "fmt"

// HashSize is the fixed power-of-two bucket count for a class's
// member-lookup hash table (spec.md §4.1 add_class).
const HashSize = 64

// MaxMethods bounds how many methods a single class may register
// (RegisterClassMember reports TooManyMethods beyond it).
const MaxMethods = 1 << 20

// FuncEntry is one funcs[func_id] row.
type FuncEntry struct {
	Name           string
	IsCFunc        bool
	Code           []Instruction
	NativeFunc     NativeFunc
	ArgCount       int
	KwargNames     []string
	LastIsMulti    bool
	InputStackSize int
	AssociatedClass int // -1 if a free function
	FileURI        string
	ModulePath     string
	Library        string
}

// NativeFunc is the C-function callback shape referenced by spec.md §4.7
// ("for C functions — invokes the native callback with a pointer to the
// active thread") and Design Notes' "explicit slice of value slots".
type NativeFunc func(th *Thread, args []Value) (Value, error)

// memberSlot is the payload stored in a class's member bucket. Methods
// and variables are told apart by isFunc; slot is not offset by
// MaxMethods for either kind.
type memberSlot struct {
	nameID int
	slot   int // func_id if method, member-var index if variable
	isFunc bool
}

// ClassEntry is one classes[class_id] row.
type ClassEntry struct {
	Name       string
	BaseClassID int // -1 if no base
	Methods    []ClassMember // (name_id, func_id), insertion order
	Members    []ClassMember // (name_id, member index), insertion order
	buckets    [HashSize][]memberSlot
	FileURI    string
	ModulePath string
	Library    string
}

// ClassMember records one (name_id -> index) row of a class's method or
// member-variable list.
type ClassMember struct {
	NameID int
	Index  int
}

// GlobalEntry is one globals[var_id] row. It is purely declarative
// (name, const-ness, provenance) — per spec.md §5 the Program is
// read-only during execution and shared across VM instances, so the
// live Value each global slot holds belongs to each Thread's own
// GlobalValues array (indexed identically), not to the Program.
type GlobalEntry struct {
	Name       string
	IsConst    bool
	FileURI    string
	ModulePath string
	Library    string
}

// moduleSymbols tracks the name->id map for one module, used to detect
// intra-module name collisions during registration.
type moduleSymbols struct {
	funcs   map[string]int
	classes map[string]int
	globals map[string]int
}

func newModuleSymbols() *moduleSymbols {
	return &moduleSymbols{
		funcs:   make(map[string]int),
		classes: make(map[string]int),
		globals: make(map[string]int),
	}
}

// Program is the monotonically growing set of tables described in
// spec.md §3 "Program". Registration operations are append-only and
// transactional: a failed call leaves every table exactly as it was.
type Program struct {
	Funcs   []*FuncEntry
	Classes []*ClassEntry
	Globals []*GlobalEntry

	// member_names interning table: name -> stable name_id, reused
	// across all classes.
	memberNameIDs map[string]int
	memberNames   []string
	frozen        bool

	fileURIs   []string
	fileURIIdx map[string]int

	// module_path -> moduleSymbols, enforces "Fails if name collides
	// within the same module".
	modules map[string]*moduleSymbols

	MainFuncIndex       int
	GlobalInitFuncIndex int

	// pre-interned name ids for special methods, spec.md §3.
	NameToStr    int
	NameLength   int
	NameInit     int
	NameDestroy  int
	NameClone    int
	NameEquals   int
	NameHash     int
}

// NewProgram returns an empty Program with the special method names
// pre-interned, per spec.md §3's "Distinguished slots".
func NewProgram() *Program {
	p := &Program{
		memberNameIDs: make(map[string]int),
		fileURIIdx:    make(map[string]int),
		modules:       make(map[string]*moduleSymbols),
		MainFuncIndex:       -1,
		GlobalInitFuncIndex: -1,
	}
	p.NameToStr = p.InternMemberName("to_str")
	p.NameLength = p.InternMemberName("length")
	p.NameInit = p.InternMemberName("init")
	p.NameDestroy = p.InternMemberName("destroy")
	p.NameClone = p.InternMemberName("clone")
	p.NameEquals = p.InternMemberName("equals")
	p.NameHash = p.InternMemberName("hash")
	return p
}

func (p *Program) moduleOf(modulePath string) *moduleSymbols {
	m, ok := p.modules[modulePath]
	if !ok {
		m = newModuleSymbols()
		p.modules[modulePath] = m
	}
	return m
}

// ProgError is a Program-table registration failure (spec.md §7
// Program-table kinds, plus generic duplicate-name failures).
type ProgError struct {
	Kind    ErrorKind
	Message string
}

func (e *ProgError) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Message) }

// InternFileURI normalizes uri (via NormalizePath) and returns a stable
// index into the file-URI table, reusing an existing entry if present.
func (p *Program) InternFileURI(uri string) int {
	norm := NormalizePath(uri)
	if idx, ok := p.fileURIIdx[norm]; ok {
		return idx
	}
	idx := len(p.fileURIs)
	p.fileURIs = append(p.fileURIs, norm)
	p.fileURIIdx[norm] = idx
	return idx
}

// AddGlobalVar appends a global slot, a symbol to the module's symbol
// list, and inserts name->var_id into the module's name map.
func (p *Program) AddGlobalVar(name string, isConst bool, fileURI, modulePath, library string) (int, error) {
	mod := p.moduleOf(modulePath)
	if _, dup := mod.globals[name]; dup {
		return -1, &ProgError{Kind: ErrDuplicateClassMember, Message: fmt.Sprintf("global %q already declared in module %q", name, modulePath)}
	}
	if _, dup := mod.funcs[name]; dup {
		return -1, &ProgError{Kind: ErrDuplicateClassMember, Message: fmt.Sprintf("name %q already used by a function in module %q", name, modulePath)}
	}
	if _, dup := mod.classes[name]; dup {
		return -1, &ProgError{Kind: ErrDuplicateClassMember, Message: fmt.Sprintf("name %q already used by a class in module %q", name, modulePath)}
	}
	id := len(p.Globals)
	p.Globals = append(p.Globals, &GlobalEntry{
		Name: name, IsConst: isConst, FileURI: fileURI, ModulePath: modulePath, Library: library,
	})
	mod.globals[name] = id
	return id, nil
}

// AddClass appends a class entry with an empty member hash table and
// inserts a module-level name mapping.
func (p *Program) AddClass(name, fileURI, modulePath, library string) (int, error) {
	mod := p.moduleOf(modulePath)
	if _, dup := mod.classes[name]; dup {
		return -1, &ProgError{Kind: ErrDuplicateClassMember, Message: fmt.Sprintf("class %q already declared in module %q", name, modulePath)}
	}
	if _, dup := mod.funcs[name]; dup {
		return -1, &ProgError{Kind: ErrDuplicateClassMember, Message: fmt.Sprintf("name %q already used by a function in module %q", name, modulePath)}
	}
	if _, dup := mod.globals[name]; dup {
		return -1, &ProgError{Kind: ErrDuplicateClassMember, Message: fmt.Sprintf("name %q already used by a global in module %q", name, modulePath)}
	}
	id := len(p.Classes)
	p.Classes = append(p.Classes, &ClassEntry{
		Name: name, BaseClassID: -1, FileURI: fileURI, ModulePath: modulePath, Library: library,
	})
	mod.classes[name] = id
	return id, nil
}

// InternMemberName interns name to a name_id stable across all classes;
// calling it twice for the same name yields the identical id.
func (p *Program) InternMemberName(name string) int {
	if id, ok := p.memberNameIDs[name]; ok {
		return id
	}
	if p.frozen {
		panic("InternMemberName called after Program.Freeze")
	}
	id := len(p.memberNames)
	p.memberNames = append(p.memberNames, name)
	p.memberNameIDs[name] = id
	return id
}

// RegisterClassMember interns name, rejects duplicate member names on
// the class, then appends to the method list (funcID >= 0) or the
// member-variable list (funcID == -1), recording the bucket entry.
func (p *Program) RegisterClassMember(classID int, name string, funcID int) error {
	if classID < 0 || classID >= len(p.Classes) {
		return &ProgError{Kind: ErrMalformedAST, Message: "RegisterClassMember: invalid class id"}
	}
	cls := p.Classes[classID]
	nameID := p.InternMemberName(name)
	bucket := nameID % HashSize
	for _, m := range cls.buckets[bucket] {
		if m.nameID == nameID {
			return &ProgError{Kind: ErrDuplicateClassMember, Message: fmt.Sprintf("duplicate member %q on class %q", name, cls.Name)}
		}
	}
	isFunc := funcID >= 0
	var idx int
	if isFunc {
		if len(cls.Methods) >= MaxMethods {
			return &ProgError{Kind: ErrTooManyMethods, Message: fmt.Sprintf("class %q exceeds method limit", cls.Name)}
		}
		idx = len(cls.Methods)
		cls.Methods = append(cls.Methods, ClassMember{NameID: nameID, Index: funcID})
	} else {
		idx = len(cls.Members)
		cls.Members = append(cls.Members, ClassMember{NameID: nameID, Index: idx})
	}
	cls.buckets[bucket] = append(cls.buckets[bucket], memberSlot{nameID: nameID, slot: idx, isFunc: isFunc})
	return nil
}

// RegisterFunction appends a function entry, adds a symbol and module
// name mapping, and — if associatedClassID >= 0 — also registers it as a
// class method via RegisterClassMember.
func (p *Program) RegisterFunction(name, fileURI string, argCount int, kwargNames []string, lastIsMulti bool,
	modulePath, library string, associatedClassID int, native NativeFunc) (int, error) {
	mod := p.moduleOf(modulePath)
	if associatedClassID < 0 {
		if _, dup := mod.funcs[name]; dup {
			return -1, &ProgError{Kind: ErrDuplicateClassMember, Message: fmt.Sprintf("function %q already declared in module %q", name, modulePath)}
		}
		if _, dup := mod.classes[name]; dup {
			return -1, &ProgError{Kind: ErrDuplicateClassMember, Message: fmt.Sprintf("name %q already used by a class in module %q", name, modulePath)}
		}
		if _, dup := mod.globals[name]; dup {
			return -1, &ProgError{Kind: ErrDuplicateClassMember, Message: fmt.Sprintf("name %q already used by a global in module %q", name, modulePath)}
		}
	}
	id := len(p.Funcs)
	entry := &FuncEntry{
		Name: name, ArgCount: argCount, KwargNames: kwargNames, LastIsMulti: lastIsMulti,
		AssociatedClass: associatedClassID, FileURI: fileURI, ModulePath: modulePath, Library: library,
	}
	if native != nil {
		entry.IsCFunc = true
		entry.NativeFunc = native
	}
	if associatedClassID >= 0 {
		if err := p.RegisterClassMember(associatedClassID, name, id); err != nil {
			return -1, err
		}
	}
	p.Funcs = append(p.Funcs, entry)
	if associatedClassID < 0 {
		mod.funcs[name] = id
	}
	return id, nil
}

// LookupClassMember probes the bucket linearly, returning (var_id, -1)
// for a member variable, (-1, func_id) for a method, or (-1, -1) if
// absent. It searches the class's own members first, then its base
// chain, matching method-resolution-order expectations of GETMEMBER.
func (p *Program) LookupClassMember(classID int, nameID int) (varID, funcID int) {
	for cid := classID; cid >= 0; cid = p.Classes[cid].BaseClassID {
		cls := p.Classes[cid]
		bucket := nameID % HashSize
		for _, m := range cls.buckets[bucket] {
			if m.nameID != nameID {
				continue
			}
			if m.isFunc {
				return -1, cls.Methods[m.slot].Index
			}
			return m.slot, -1
		}
	}
	return -1, -1
}

// IsSubclassOf reports whether classID equals ancestorID or descends
// from it via BaseClassID, used by the catch-frame resolution rule of
// spec.md §4.6 and §8 ("innermost frame whose caught-class set contains
// the raised class or any ancestor").
func (p *Program) IsSubclassOf(classID, ancestorID int) bool {
	for cid := classID; cid >= 0 && cid < len(p.Classes); cid = p.Classes[cid].BaseClassID {
		if cid == ancestorID {
			return true
		}
	}
	return false
}

// Freeze latches the member-name interning table so no further names may
// be interned — required by spec.md §5 ("The member-name interning table
// must be frozen before execution begins").
func (p *Program) Freeze() { p.frozen = true }

func (p *Program) MemberName(id int) string {
	if id < 0 || id >= len(p.memberNames) {
		return ""
	}
	return p.memberNames[id]
}
