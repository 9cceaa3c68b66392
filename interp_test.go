package horse64

import (
	"fmt"
	"testing"
)

var buildFuncCounter int

// buildFunc registers fn as a free function in prog's "test" module and
// returns its func id, sized so its frame floor already holds
// inputStackSize slots for SETCONST/temporaries.
func buildFunc(prog *Program, code []Instruction, inputStackSize int) int {
	buildFuncCounter++
	name := fmt.Sprintf("f%d", buildFuncCounter)
	id, err := prog.RegisterFunction(name, "file:///t.h64", 0, nil, false, "test", "", -1, nil)
	if err != nil {
		panic(err)
	}
	fn := prog.Funcs[id]
	fn.Code = code
	fn.InputStackSize = inputStackSize
	return id
}

func constInstr(dst int, v Value) Instruction {
	return Instruction{Op: OpSETCONST, Dst: dst, Const: v}
}

func TestInterpBinopIntegerArithmetic(t *testing.T) {
	prog := NewProgram()
	code := []Instruction{
		constInstr(0, IntVal(3)),
		constInstr(1, IntVal(4)),
		{Op: OpBINOP, Dst: 2, A: 0, B: 1, Imm: int(BinAdd)},
		{Op: OpRETURNVALUE, A: 2},
	}
	fid := buildFunc(prog, code, 3)
	th := NewThread(prog, nil, nil)

	result, err := th.Call(fid, nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if result.Tag != TagInt64 || result.I != 7 {
		t.Fatalf("expected 7, got %+v", result)
	}
}

func TestInterpBinopDivisionByZeroRaises(t *testing.T) {
	prog := NewProgram()
	RegisterBuiltins(prog)
	code := []Instruction{
		constInstr(0, IntVal(1)),
		constInstr(1, IntVal(0)),
		{Op: OpBINOP, Dst: 2, A: 0, B: 1, Imm: int(BinDiv)},
		{Op: OpRETURNVALUE, A: 2},
	}
	fid := buildFunc(prog, code, 3)
	th := NewThread(prog, nil, nil)

	_, err := th.Call(fid, nil)
	uerr, ok := err.(*UncaughtError)
	if !ok {
		t.Fatalf("expected an UncaughtError, got %T: %v", err, err)
	}
	divErrID, ok := findClassID(prog, "DivisionByZeroError")
	if !ok {
		t.Fatalf("DivisionByZeroError not registered")
	}
	if uerr.ClassID != divErrID {
		t.Fatalf("expected class id %d, got %d", divErrID, uerr.ClassID)
	}
}

func TestInterpStringConcatProducesFreshRefcountOfOne(t *testing.T) {
	prog := NewProgram()
	code := []Instruction{
		constInstr(0, ShortStrVal([]byte("foo"))),
		constInstr(1, ShortStrVal([]byte("bar"))),
		{Op: OpBINOP, Dst: 2, A: 0, B: 1, Imm: int(BinAdd)},
		{Op: OpRETURNVALUE, A: 2},
	}
	fid := buildFunc(prog, code, 3)
	th := NewThread(prog, nil, nil)

	result, err := th.Call(fid, nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if result.Tag != TagHeapRef || result.Ref.Kind != HeapString {
		t.Fatalf("expected a heap string, got %+v", result)
	}
	if string(result.Ref.Str) != "foobar" {
		t.Fatalf("expected \"foobar\", got %q", string(result.Ref.Str))
	}
	if result.Ref.externalRefCount != 1 {
		t.Fatalf("a freshly concatenated string returned to its sole owner must carry externalRefCount=1, got %d", result.Ref.externalRefCount)
	}
}

func TestInterpNewListAddToListRefcounting(t *testing.T) {
	prog := NewProgram()
	code := []Instruction{
		{Op: OpNEWLIST, Dst: 0},
		constInstr(1, IntVal(42)),
		{Op: OpADDTOLIST, Dst: 0, A: 1},
		{Op: OpRETURNVALUE, A: 0},
	}
	fid := buildFunc(prog, code, 2)
	th := NewThread(prog, nil, nil)

	result, err := th.Call(fid, nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if result.Tag != TagHeapRef || result.Ref.Kind != HeapList {
		t.Fatalf("expected a heap list, got %+v", result)
	}
	if result.Ref.externalRefCount != 1 {
		t.Fatalf("a freshly built list returned to its sole owner must carry externalRefCount=1, got %d", result.Ref.externalRefCount)
	}
	if len(result.Ref.List) != 1 || result.Ref.List[0].I != 42 {
		t.Fatalf("expected a single element 42, got %+v", result.Ref.List)
	}
}

func TestInterpIterateExhaustsListWithoutError(t *testing.T) {
	prog := NewProgram()
	th := NewThread(prog, nil, nil)
	list := th.Heap.Alloc(HeapList)
	list.List = []Value{IntVal(1), IntVal(2)}

	code := []Instruction{
		{Op: OpNEWITERATOR, Dst: 1, A: 0},
		{Op: OpITERATE, Dst: 2, A: 1, B: 3},
		{Op: OpITERATE, Dst: 2, A: 1, B: 3},
		{Op: OpITERATE, Dst: 2, A: 1, B: 3}, // exhausted: Dst->None, B->false
		{Op: OpRETURNVALUE, A: 3},
	}
	fid := buildFunc(prog, code, 4)
	// seed the argument slot with the list before Call (Call only fills
	// [0,len(args)) of InputStackSize; slot 0 is where NEWITERATOR reads it).
	result, err := th.Call(fid, []Value{Value{Tag: TagHeapRef, Ref: list}})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if result.Tag != TagBool || result.B != false {
		t.Fatalf("expected exhausted iterator to report more=false, got %+v", result)
	}
}

func TestInterpCallNestsFrames(t *testing.T) {
	prog := NewProgram()
	// callee: return 10 + arg0
	calleeCode := []Instruction{
		constInstr(1, IntVal(10)),
		{Op: OpBINOP, Dst: 2, A: 0, B: 1, Imm: int(BinAdd)},
		{Op: OpRETURNVALUE, A: 2},
	}
	calleeID := buildFunc(prog, calleeCode, 3)

	// caller: set slot0=5, slot1=calleeID (via GETFUNC), CALL(args=[slot0..slot0+1), B=slot1), return result
	callerCode := []Instruction{
		constInstr(0, IntVal(5)),
		{Op: OpGETFUNC, Dst: 1, Imm: calleeID},
		{Op: OpCALL, Dst: 2, A: 0, B: 1, Imm: 1},
		{Op: OpRETURNVALUE, A: 2},
	}
	callerID := buildFunc(prog, callerCode, 3)

	th := NewThread(prog, nil, nil)
	result, err := th.Call(callerID, nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if result.Tag != TagInt64 || result.I != 15 {
		t.Fatalf("expected 15, got %+v", result)
	}
	if len(th.Frames) != 0 {
		t.Fatalf("expected the frame stack to be fully unwound after Call returns, got %d frames", len(th.Frames))
	}
}

func TestInterpRaiseOfUnrelatedClassEscapesPushedCatchFrame(t *testing.T) {
	prog := NewProgram()
	RegisterBuiltins(prog)
	valueErrID, ok := findClassID(prog, "ValueError")
	if !ok {
		t.Fatalf("ValueError not registered")
	}

	// protected region is [2,5); handler starts at pc 5.
	code := []Instruction{
		{Op: OpPUSHCATCHFRAME, Imm: 5},
		{Op: OpADDCATCHTYPE, Imm: valueErrID},
		constInstr(0, IntVal(1)),
		constInstr(1, IntVal(0)),
		{Op: OpBINOP, Dst: 2, A: 0, B: 1, Imm: int(BinDiv)},
		constInstr(2, IntVal(-1)), // handler: slot2 = -1
		{Op: OpRETURNVALUE, A: 2},
	}
	fid := buildFunc(prog, code, 3)
	th := NewThread(prog, nil, nil)

	// DivisionByZeroError is not a ValueError, so it must NOT be caught
	// and must escape as an UncaughtError.
	_, err := th.Call(fid, nil)
	if _, ok := err.(*UncaughtError); !ok {
		t.Fatalf("expected DivisionByZeroError to escape an unrelated ValueError catch frame, got %v", err)
	}
}

// An exception raised inside a called function must still be caught by
// a catch frame pushed in the caller, around the CALL instruction: the
// callee's own frame only considers catch frames pushed after it was
// entered (savedCatchLen), so the exception first escapes the callee as
// an UncaughtError, crosses the CALL boundary, and is only caught when
// the caller's run loop re-raises it against its own visible frames.
// That second raise must recover the original class id from the
// UncaughtError, not fall back to the generic Exception class.
func TestInterpRaiseAcrossCallBoundaryIsCaughtByCallerFrame(t *testing.T) {
	prog := NewProgram()
	RegisterBuiltins(prog)
	divErrID, ok := findClassID(prog, "DivisionByZeroError")
	if !ok {
		t.Fatalf("DivisionByZeroError not registered")
	}

	// callee: 1 / 0, which raises DivisionByZeroError.
	calleeCode := []Instruction{
		constInstr(0, IntVal(1)),
		constInstr(1, IntVal(0)),
		{Op: OpBINOP, Dst: 2, A: 0, B: 1, Imm: int(BinDiv)},
		{Op: OpRETURNVALUE, A: 2},
	}
	calleeID := buildFunc(prog, calleeCode, 3)

	// caller: pushes a DivisionByZeroError catch frame around a CALL to
	// callee; protected region is [2,4), handler starts at pc 4.
	callerCode := []Instruction{
		{Op: OpPUSHCATCHFRAME, Imm: 4},
		{Op: OpADDCATCHTYPE, Imm: divErrID},
		{Op: OpGETFUNC, Dst: 0, Imm: calleeID},
		{Op: OpCALL, Dst: 1, A: 0, B: 0, Imm: 0},
		constInstr(1, IntVal(-1)), // handler: slot1 = -1
		{Op: OpRETURNVALUE, A: 1},
	}
	callerID := buildFunc(prog, callerCode, 2)

	th := NewThread(prog, nil, nil)
	result, err := th.Call(callerID, nil)
	if err != nil {
		t.Fatalf("expected the caller's catch frame to catch the callee's DivisionByZeroError, got %v", err)
	}
	if result.Tag != TagInt64 || result.I != -1 {
		t.Fatalf("expected the handler to run and return -1, got %+v", result)
	}
}
