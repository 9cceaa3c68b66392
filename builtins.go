// builtins.go — the builtin module's func_name_to_entry / class_name_to_entry
// / globalvar_name_to_entry tables used by identifier resolution (spec.md
// §4.5 step 5) when a name isn't found by a lexical scope walk.
//
// Grounded on the teacher's RegisterNative registry in runtime.go/
// builtin_core.go, generalized from a single flat name->impl map into
// three separate lookup tables matching GLOBAL_FUNC / GLOBAL_CLASS /
// GLOBAL_VAR storage kinds, since builtins can shadow any of the three.
package horse64

const builtinModulePath = "$builtin"

// BuiltinScope is the resolved view of the builtin module's three name
// tables.
type BuiltinScope struct {
	prog *Program
}

// LookupFunc returns the builtin function id for name, if any.
func (b *BuiltinScope) LookupFunc(name string) (int, bool) {
	id, ok := b.prog.moduleOf(builtinModulePath).funcs[name]
	return id, ok
}

// LookupClass returns the builtin class id for name, if any.
func (b *BuiltinScope) LookupClass(name string) (int, bool) {
	id, ok := b.prog.moduleOf(builtinModulePath).classes[name]
	return id, ok
}

// LookupGlobal returns the builtin global-var id for name, if any.
func (b *BuiltinScope) LookupGlobal(name string) (int, bool) {
	id, ok := b.prog.moduleOf(builtinModulePath).globals[name]
	return id, ok
}

// RegisterBuiltins populates prog's builtin module with the native
// functions and exception classes every Horse64 program can reach
// without an import: print, the root Exception class and the standard
// exception hierarchy (ValueError, TypeError, OutOfMemoryError...), and
// a handful of core natives. Returns the BuiltinScope the resolver
// consults during identifier resolution.
func RegisterBuiltins(prog *Program) *BuiltinScope {
	const lib = "core"

	exceptionClassID, err := prog.AddClass("Exception", "$builtin", builtinModulePath, lib)
	if err != nil {
		panic(err)
	}
	registerSubclass := func(name string) int {
		id, err := prog.AddClass(name, "$builtin", builtinModulePath, lib)
		if err != nil {
			panic(err)
		}
		prog.Classes[id].BaseClassID = exceptionClassID
		return id
	}
	registerSubclass("ValueError")
	registerSubclass("TypeError")
	registerSubclass("OutOfMemoryError")
	registerSubclass("DivisionByZeroError")
	registerSubclass("IndexError")
	registerSubclass("KeyError")

	registerNative(prog, "print", 1, false, nativePrint)
	registerNative(prog, "len", 1, false, nativeLen)

	return &BuiltinScope{prog: prog}
}

func registerNative(prog *Program, name string, argCount int, lastIsMulti bool, fn NativeFunc) {
	if _, err := prog.RegisterFunction(name, "$builtin", argCount, nil, lastIsMulti, builtinModulePath, "core", -1, fn); err != nil {
		panic(err)
	}
}

func nativePrint(th *Thread, args []Value) (Value, error) {
	for i, a := range args {
		if i > 0 {
			th.Stdout.Write([]byte(" "))
		}
		th.Stdout.Write([]byte(DisplayString(a)))
	}
	th.Stdout.Write([]byte("\n"))
	return None, nil
}

func nativeLen(th *Thread, args []Value) (Value, error) {
	v := args[0]
	if v.Tag == TagShortStrConst {
		return IntVal(int64(len(v.ShortStr))), nil
	}
	if v.Tag != TagHeapRef {
		return None, &RuntimeError{Kind: ErrTypeMismatch, Message: "len() expects a string or container"}
	}
	switch v.Ref.Kind {
	case HeapString:
		return IntVal(int64(len(v.Ref.Str))), nil
	case HeapList:
		return IntVal(int64(len(v.Ref.List))), nil
	case HeapSet:
		return IntVal(int64(len(v.Ref.SetItems))), nil
	case HeapMap:
		return IntVal(int64(v.Ref.Map.Len())), nil
	case HeapVector:
		return IntVal(int64(len(v.Ref.Vector))), nil
	default:
		return None, &RuntimeError{Kind: ErrTypeMismatch, Message: "len() expects a string or container"}
	}
}

// DisplayString renders v the way `print` and to_str fall back to when a
// class defines no to_str method.
func DisplayString(v Value) string {
	if v.Tag == TagHeapRef && v.Ref.Kind == HeapString {
		return string(v.Ref.Str)
	}
	return v.String()
}
