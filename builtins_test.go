package horse64

import (
	"bytes"
	"strings"
	"testing"
)

func TestRegisterBuiltinsExceptionHierarchy(t *testing.T) {
	prog := NewProgram()
	RegisterBuiltins(prog)

	exceptionID, ok := findClassID(prog, "Exception")
	if !ok {
		t.Fatalf("expected an Exception class to be registered")
	}
	for _, name := range []string{"ValueError", "TypeError", "OutOfMemoryError", "DivisionByZeroError", "IndexError", "KeyError"} {
		id, ok := findClassID(prog, name)
		if !ok {
			t.Fatalf("expected class %q to be registered", name)
		}
		if !prog.IsSubclassOf(id, exceptionID) {
			t.Fatalf("expected %q to be a subclass of Exception", name)
		}
	}
}

func TestBuiltinScopeLookupsCoverAllThreeTables(t *testing.T) {
	prog := NewProgram()
	builtins := RegisterBuiltins(prog)

	if _, ok := builtins.LookupFunc("print"); !ok {
		t.Fatalf("expected 'print' registered as a builtin function")
	}
	if _, ok := builtins.LookupFunc("nope_not_a_builtin"); ok {
		t.Fatalf("did not expect an unknown name to resolve as a builtin function")
	}
	if _, ok := builtins.LookupClass("ValueError"); !ok {
		t.Fatalf("expected 'ValueError' registered as a builtin class")
	}
	if _, ok := builtins.LookupClass("print"); ok {
		t.Fatalf("a function name must not resolve through the class table")
	}
	if _, ok := builtins.LookupGlobal("ValueError"); ok {
		t.Fatalf("a class name must not resolve through the global-var table")
	}
}

func TestNativeLenOverStringAndList(t *testing.T) {
	prog := NewProgram()
	builtins := RegisterBuiltins(prog)
	th := NewThread(prog, nil, nil)

	lenID, ok := builtins.LookupFunc("len")
	if !ok {
		t.Fatalf("expected 'len' registered as a builtin function")
	}

	str := th.Heap.Alloc(HeapString)
	str.Str = []rune("hello")
	result, err := th.Call(lenID, []Value{{Tag: TagHeapRef, Ref: str}})
	if err != nil {
		t.Fatalf("Call(len, string): %v", err)
	}
	if result.Tag != TagInt64 || result.I != 5 {
		t.Fatalf("expected len(\"hello\")==5, got %+v", result)
	}

	list := th.Heap.Alloc(HeapList)
	list.List = []Value{IntVal(1), IntVal(2), IntVal(3)}
	result, err = th.Call(lenID, []Value{{Tag: TagHeapRef, Ref: list}})
	if err != nil {
		t.Fatalf("Call(len, list): %v", err)
	}
	if result.Tag != TagInt64 || result.I != 3 {
		t.Fatalf("expected len([1,2,3])==3, got %+v", result)
	}
}

func TestNativeLenRejectsNonContainer(t *testing.T) {
	prog := NewProgram()
	builtins := RegisterBuiltins(prog)
	th := NewThread(prog, nil, nil)
	lenID, _ := builtins.LookupFunc("len")

	_, err := th.Call(lenID, []Value{IntVal(42)})
	if err == nil {
		t.Fatalf("expected len() of an int to fail")
	}
	typeErrID, _ := findClassID(prog, "TypeError")
	uerr, ok := err.(*UncaughtError)
	if !ok || uerr.ClassID != typeErrID {
		t.Fatalf("expected an uncaught TypeError, got %v (%T)", err, err)
	}
}

func TestNativePrintWritesSpaceSeparatedArgsAndNewline(t *testing.T) {
	prog := NewProgram()
	builtins := RegisterBuiltins(prog)
	var out bytes.Buffer
	th := NewThread(prog, &out, nil)
	printID, ok := builtins.LookupFunc("print")
	if !ok {
		t.Fatalf("expected 'print' registered as a builtin function")
	}

	str := th.Heap.Alloc(HeapString)
	str.Str = []rune("world")
	if _, err := th.Call(printID, []Value{IntVal(1), {Tag: TagHeapRef, Ref: str}}); err != nil {
		t.Fatalf("Call(print): %v", err)
	}
	got := out.String()
	if !strings.HasPrefix(got, "1 world") || !strings.HasSuffix(got, "\n") {
		t.Fatalf("unexpected print output: %q", got)
	}
}
