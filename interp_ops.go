// interp_ops.go — the op* handler bodies dispatched from interp.go's
// dispatchTable, one per opcode of spec.md §4.7.
//
// Grounded on the teacher's vm.go case arms for OP_CONST/OP_ADD/OP_CALL
// and on glossopoeia-boba's runtime/frame.go slot-addressing helpers,
// generalized to the register-machine addressing (Dst/A/B relative to
// fr.floor) and full container/iterator/catch-frame opcode set spec.md
// §4.7 names that the teacher's tree-walker has no equivalent for.
package horse64

import "fmt"

// slot resolves an instruction operand (frame-relative index) to an
// absolute stack index.
func (fr *callFrame) slot(i int) int { return fr.floor + i }

func opSetConst(th *Thread, fr *callFrame, in Instruction) (stepResult, error) {
	v := in.Const
	if v.Tag == TagHeapRef {
		v = HeapRefVal(v.Ref) // instruction constants own their own external root
	}
	th.Stack.Set(fr.slot(in.Dst), v)
	return stepContinue, nil
}

func opSetGlobal(th *Thread, fr *callFrame, in Instruction) (stepResult, error) {
	v := th.Stack.Get(fr.slot(in.A))
	var owned Value
	if v.Tag == TagHeapRef {
		owned = HeapRefVal(v.Ref)
	} else {
		owned = v
	}
	FreeValue(&th.GlobalValues[in.Imm])
	th.GlobalValues[in.Imm] = owned
	return stepContinue, nil
}

func opGetGlobal(th *Thread, fr *callFrame, in Instruction) (stepResult, error) {
	v := th.GlobalValues[in.Imm]
	var owned Value
	if v.Tag == TagHeapRef {
		owned = HeapRefVal(v.Ref)
	} else {
		owned = v
	}
	th.Stack.Set(fr.slot(in.Dst), owned)
	return stepContinue, nil
}

// opGetFunc does not materialize a first-class function object (no
// function-reference heap kind is modeled by this core); GETFUNC is used
// only to resolve the callee id for a following CALL, so it stashes the
// func_id as a plain Int64 — CALL's own Imm already
// carries the statically-known func_id in the common case, and this
// path covers indirect/virtual dispatch once a class's method slot is
// looked up dynamically (GETMEMBER's func_id result feeds here too).
func opGetFunc(th *Thread, fr *callFrame, in Instruction) (stepResult, error) {
	if in.Imm < 0 || in.Imm >= len(th.Program.Funcs) {
		return stepContinue, &RuntimeError{Kind: ErrInvalidInstruction, Message: "GETFUNC: invalid func id"}
	}
	th.Stack.Set(fr.slot(in.Dst), IntVal(int64(in.Imm)))
	return stepContinue, nil
}

func opGetClass(th *Thread, fr *callFrame, in Instruction) (stepResult, error) {
	if in.Imm < 0 || in.Imm >= len(th.Program.Classes) {
		return stepContinue, &RuntimeError{Kind: ErrInvalidInstruction, Message: "GETCLASS: invalid class id"}
	}
	th.Stack.Set(fr.slot(in.Dst), IntVal(int64(in.Imm)))
	return stepContinue, nil
}

func opValueCopy(th *Thread, fr *callFrame, in Instruction) (stepResult, error) {
	src := th.Stack.Get(fr.slot(in.A))
	var owned Value
	if src.Tag == TagHeapRef {
		owned = HeapRefVal(src.Ref)
	} else {
		owned = src
	}
	th.Stack.Set(fr.slot(in.Dst), owned)
	return stepContinue, nil
}

func opBinop(th *Thread, fr *callFrame, in Instruction) (stepResult, error) {
	a := th.Stack.Get(fr.slot(in.A))
	b := th.Stack.Get(fr.slot(in.B))
	result, err := evalBinop(th, BinOp(in.Imm), a, b)
	if err != nil {
		return stepContinue, err
	}
	th.Stack.Set(fr.slot(in.Dst), result)
	return stepContinue, nil
}

func evalBinop(th *Thread, op BinOp, a, b Value) (Value, error) {
	switch op {
	case BinEq:
		return BoolVal(Equals(a, b)), nil
	case BinNe:
		return BoolVal(!Equals(a, b)), nil
	}
	numeric := a.Tag == TagInt64 || a.Tag == TagFloat64
	if numeric && (b.Tag == TagInt64 || b.Tag == TagFloat64) {
		if a.Tag == TagInt64 && b.Tag == TagInt64 {
			return intBinop(op, a.I, b.I)
		}
		return floatBinop(op, asFloat(a), asFloat(b))
	}
	if op == BinAdd && isString(a) && isString(b) {
		return concatStrings(th, a, b)
	}
	if op == BinAnd {
		return BoolVal(truthy(a) && truthy(b)), nil
	}
	if op == BinOr {
		return BoolVal(truthy(a) || truthy(b)), nil
	}
	return None, &RuntimeError{Kind: ErrTypeMismatch, Message: fmt.Sprintf("binop %d not defined for %s, %s", op, a.Tag, b.Tag)}
}

func asFloat(v Value) float64 {
	if v.Tag == TagInt64 {
		return float64(v.I)
	}
	return v.F
}

func isString(v Value) bool {
	return v.Tag == TagShortStrConst || (v.Tag == TagHeapRef && v.Ref.Kind == HeapString)
}

func stringOf(v Value) string {
	if v.Tag == TagShortStrConst {
		return string(v.ShortStr)
	}
	return string(v.Ref.Str)
}

func concatStrings(th *Thread, a, b Value) (Value, error) {
	combined := stringOf(a) + stringOf(b)
	obj := th.Heap.Alloc(HeapString)
	obj.Str = []rune(combined)
	// obj already carries its fresh alloc's externalRefCount=1; the caller
	// (opBinop) installs this value into exactly one slot, so no further
	// HeapRefVal bump is wanted here — see heap.go's Alloc doc comment.
	return Value{Tag: TagHeapRef, Ref: obj}, nil
}

func truthy(v Value) bool {
	switch v.Tag {
	case TagNone:
		return false
	case TagBool:
		return v.B
	case TagInt64:
		return v.I != 0
	case TagFloat64:
		return v.F != 0
	default:
		return true
	}
}

func intBinop(op BinOp, a, b int64) (Value, error) {
	switch op {
	case BinAdd:
		return IntVal(a + b), nil
	case BinSub:
		return IntVal(a - b), nil
	case BinMul:
		return IntVal(a * b), nil
	case BinDiv:
		if b == 0 {
			return None, &RuntimeError{Kind: ErrDivisionByZero, Message: "division by zero"}
		}
		return IntVal(a / b), nil
	case BinMod:
		if b == 0 {
			return None, &RuntimeError{Kind: ErrDivisionByZero, Message: "modulo by zero"}
		}
		return IntVal(a % b), nil
	case BinLt:
		return BoolVal(a < b), nil
	case BinLe:
		return BoolVal(a <= b), nil
	case BinGt:
		return BoolVal(a > b), nil
	case BinGe:
		return BoolVal(a >= b), nil
	default:
		return None, &RuntimeError{Kind: ErrTypeMismatch, Message: "unsupported integer binop"}
	}
}

func floatBinop(op BinOp, a, b float64) (Value, error) {
	switch op {
	case BinAdd:
		return FloatVal(a + b), nil
	case BinSub:
		return FloatVal(a - b), nil
	case BinMul:
		return FloatVal(a * b), nil
	case BinDiv:
		if b == 0 {
			return None, &RuntimeError{Kind: ErrDivisionByZero, Message: "division by zero"}
		}
		return FloatVal(a / b), nil
	case BinMod:
		return None, &RuntimeError{Kind: ErrTypeMismatch, Message: "mod not defined for floats"}
	case BinLt:
		return BoolVal(a < b), nil
	case BinLe:
		return BoolVal(a <= b), nil
	case BinGt:
		return BoolVal(a > b), nil
	case BinGe:
		return BoolVal(a >= b), nil
	default:
		return None, &RuntimeError{Kind: ErrTypeMismatch, Message: "unsupported float binop"}
	}
}

func opUnop(th *Thread, fr *callFrame, in Instruction) (stepResult, error) {
	a := th.Stack.Get(fr.slot(in.A))
	switch UnOp(in.Imm) {
	case UnNot:
		th.Stack.Set(fr.slot(in.Dst), BoolVal(!truthy(a)))
	case UnNeg:
		switch a.Tag {
		case TagInt64:
			th.Stack.Set(fr.slot(in.Dst), IntVal(-a.I))
		case TagFloat64:
			th.Stack.Set(fr.slot(in.Dst), FloatVal(-a.F))
		default:
			return stepContinue, &RuntimeError{Kind: ErrTypeMismatch, Message: "unary - not defined for " + a.Tag.String()}
		}
	}
	return stepContinue, nil
}

// opCall reads Imm argument values from [A, A+Imm) and invokes the
// callee whose func_id sits in slot B (as placed there by GETFUNC or a
// GETMEMBER virtual dispatch), writing the result to Dst. This nests
// cleanly inside the caller's own run() loop via th.Call, which is how
// the call-stack invariant "each Horse64-level call pushes exactly one
// callFrame" is satisfied without the Go call stack growing per opcode
// dispatch — only per actual Horse64 call, matching spec.md §4.6.
func opCall(th *Thread, fr *callFrame, in Instruction) (stepResult, error) {
	calleeSlot := th.Stack.Get(fr.slot(in.B))
	if calleeSlot.Tag != TagInt64 {
		return stepContinue, &RuntimeError{Kind: ErrInvalidInstruction, Message: "CALL: callee slot does not hold a func id"}
	}
	funcID := int(calleeSlot.I)
	if funcID < 0 || funcID >= len(th.Program.Funcs) {
		return stepContinue, &RuntimeError{Kind: ErrInvalidInstruction, Message: "CALL: invalid func id"}
	}
	args := make([]Value, in.Imm)
	for i := 0; i < in.Imm; i++ {
		v := th.Stack.Get(fr.slot(in.A + i))
		if v.Tag == TagHeapRef {
			args[i] = HeapRefVal(v.Ref)
		} else {
			args[i] = v
		}
	}
	result, err := th.Call(funcID, args)
	for i := range args {
		FreeValue(&args[i])
	}
	if err != nil {
		return stepContinue, err
	}
	th.Stack.Set(fr.slot(in.Dst), result)
	return stepContinue, nil
}

func opSetTop(th *Thread, fr *callFrame, in Instruction) (stepResult, error) {
	if err := th.Stack.ToSize(fr.floor+in.Imm, false); err != nil {
		return stepContinue, err
	}
	return stepContinue, nil
}

func opReturnValue(th *Thread, fr *callFrame, in Instruction) (stepResult, error) {
	v := th.Stack.Get(fr.slot(in.A))
	if v.Tag == TagHeapRef {
		fr.retValue = HeapRefVal(v.Ref)
	} else {
		fr.retValue = v
	}
	return stepReturn, nil
}

func opJumpTarget(th *Thread, fr *callFrame, in Instruction) (stepResult, error) {
	return stepContinue, nil // a no-op marker; JUMP/CONDJUMP address it by pc value directly
}

func opCondJump(th *Thread, fr *callFrame, in Instruction) (stepResult, error) {
	cond := th.Stack.Get(fr.slot(in.A))
	if truthy(cond) {
		fr.pc = in.Imm
	} else {
		fr.pc++
	}
	return stepJumped, nil
}

func opJump(th *Thread, fr *callFrame, in Instruction) (stepResult, error) {
	fr.pc = in.Imm
	return stepJumped, nil
}

func opNewIterator(th *Thread, fr *callFrame, in Instruction) (stepResult, error) {
	src := th.Stack.Get(fr.slot(in.A))
	if src.Tag != TagHeapRef {
		return stepContinue, &RuntimeError{Kind: ErrTypeMismatch, Message: "NEWITERATOR expects a container"}
	}
	obj := th.Heap.Alloc(HeapIterator)
	it := &IteratorObject{source: src.Ref}
	retainHeap(src.Ref)
	switch src.Ref.Kind {
	case HeapMap:
		it.mapKeys = append([]string(nil), src.Ref.Map.Keys()...)
	case HeapSet:
		for k := range src.Ref.SetItems {
			it.mapKeys = append(it.mapKeys, k)
		}
	}
	obj.Iterator = it
	th.Stack.Set(fr.slot(in.Dst), Value{Tag: TagHeapRef, Ref: obj})
	return stepContinue, nil
}

// opIterate advances the iterator in slot A, writing the next element to
// Dst and a Bool "has more" flag to B. At exhaustion Dst receives None
// and B receives false; it is never an error to iterate past the end.
func opIterate(th *Thread, fr *callFrame, in Instruction) (stepResult, error) {
	itv := th.Stack.Get(fr.slot(in.A))
	if itv.Tag != TagHeapRef || itv.Ref.Kind != HeapIterator {
		return stepContinue, &RuntimeError{Kind: ErrTypeMismatch, Message: "ITERATE expects an iterator"}
	}
	it := itv.Ref.Iterator
	src := it.source
	var elem Value
	more := false
	switch src.Kind {
	case HeapList, HeapVector:
		items := src.List
		if src.Kind == HeapVector {
			items = src.Vector
		}
		if it.index < len(items) {
			elem = items[it.index]
			it.index++
			more = true
		}
	case HeapMap:
		if it.index < len(it.mapKeys) {
			key := it.mapKeys[it.index]
			v, _ := src.Map.Get(key)
			elem = v
			it.index++
			more = true
		}
	case HeapSet:
		if it.index < len(it.mapKeys) {
			var ok bool
			elem, ok = src.SetItems[it.mapKeys[it.index]]
			_ = ok
			it.index++
			more = true
		}
	}
	if more && elem.Tag == TagHeapRef {
		elem = HeapRefVal(elem.Ref)
	}
	th.Stack.Set(fr.slot(in.Dst), elem)
	th.Stack.Set(fr.slot(in.B), BoolVal(more))
	return stepContinue, nil
}

// opPushCatchFrame opens a protected region whose handler begins at
// Imm. ADDCATCHTYPE/ADDCATCHTYPEBYREF instructions that immediately
// follow populate its caught-class set before any protected instruction
// runs. The frame records the current stack height, which raise
// truncates back to before jumping to the handler.
func opPushCatchFrame(th *Thread, fr *callFrame, in Instruction) (stepResult, error) {
	th.Catches.Push(in.Imm, th.Stack.Len())
	return stepContinue, nil
}

func opAddCatchType(th *Thread, fr *callFrame, in Instruction) (stepResult, error) {
	cf := th.Catches.Top()
	if cf == nil {
		return stepContinue, &RuntimeError{Kind: ErrInvalidInstruction, Message: "ADDCATCHTYPE with no open catch frame"}
	}
	cf.CaughtClassIDs = append(cf.CaughtClassIDs, in.Imm)
	return stepContinue, nil
}

// opAddCatchTypeByRef resolves the class id from a value already sitting
// in slot A (a GETCLASS result) rather than a static Imm, for catching a
// class referenced indirectly (e.g. through an aliasing import).
func opAddCatchTypeByRef(th *Thread, fr *callFrame, in Instruction) (stepResult, error) {
	cf := th.Catches.Top()
	if cf == nil {
		return stepContinue, &RuntimeError{Kind: ErrInvalidInstruction, Message: "ADDCATCHTYPEBYREF with no open catch frame"}
	}
	v := th.Stack.Get(fr.slot(in.A))
	if v.Tag != TagInt64 {
		return stepContinue, &RuntimeError{Kind: ErrInvalidInstruction, Message: "ADDCATCHTYPEBYREF: slot does not hold a class id"}
	}
	cf.CaughtClassIDs = append(cf.CaughtClassIDs, int(v.I))
	return stepContinue, nil
}

func opPopCatchFrame(th *Thread, fr *callFrame, in Instruction) (stepResult, error) {
	if th.Catches.Len() > 0 {
		th.Catches.Pop()
	}
	return stepContinue, nil
}

// opGetMember resolves a member access on the instance in slot A: a
// variable member copies its value to Dst; a method member leaves the
// func_id in Dst (as an Int64, matching GETFUNC's convention) for a
// following CALL.
func opGetMember(th *Thread, fr *callFrame, in Instruction) (stepResult, error) {
	recv := th.Stack.Get(fr.slot(in.A))
	if recv.Tag != TagHeapRef || recv.Ref.Kind != HeapInstance {
		return stepContinue, &RuntimeError{Kind: ErrTypeMismatch, Message: "GETMEMBER expects an instance"}
	}
	inst := recv.Ref.Instance
	varID, funcID := th.Program.LookupClassMember(inst.ClassID, in.Imm)
	switch {
	case funcID >= 0:
		th.Stack.Set(fr.slot(in.Dst), IntVal(int64(funcID)))
	case varID >= 0:
		v := inst.Members[varID]
		if v.Tag == TagHeapRef {
			v = HeapRefVal(v.Ref)
		}
		th.Stack.Set(fr.slot(in.Dst), v)
	default:
		name := th.Program.MemberName(in.Imm)
		return stepContinue, &RuntimeError{Kind: ErrUnknownIdentifier, Message: fmt.Sprintf("no such member %q", name)}
	}
	return stepContinue, nil
}

// opJumpToFinally is used while an exception is unwinding through a
// frame that has a finally block but whose catch types did not match:
// control transfers to the finally address, and th.pending keeps the
// in-flight exception so a later instruction (compiled by the resolver
// as a conditional re-raise at the finally block's tail) can resume
// unwinding once the finally body completes.
func opJumpToFinally(th *Thread, fr *callFrame, in Instruction) (stepResult, error) {
	fr.pc = in.Imm
	return stepJumped, nil
}

func opNewList(th *Thread, fr *callFrame, in Instruction) (stepResult, error) {
	obj := th.Heap.Alloc(HeapList)
	th.Stack.Set(fr.slot(in.Dst), Value{Tag: TagHeapRef, Ref: obj})
	return stepContinue, nil
}

func opAddToList(th *Thread, fr *callFrame, in Instruction) (stepResult, error) {
	listV := th.Stack.Get(fr.slot(in.Dst))
	if listV.Tag != TagHeapRef || listV.Ref.Kind != HeapList {
		return stepContinue, &RuntimeError{Kind: ErrTypeMismatch, Message: "ADDTOLIST target is not a list"}
	}
	item := th.Stack.Get(fr.slot(in.A))
	AddChild(listV.Ref, item)
	var owned Value
	if item.Tag == TagHeapRef {
		owned = HeapRefVal(item.Ref)
	} else {
		owned = item
	}
	listV.Ref.List = append(listV.Ref.List, owned)
	return stepContinue, nil
}

func opNewSet(th *Thread, fr *callFrame, in Instruction) (stepResult, error) {
	obj := th.Heap.Alloc(HeapSet)
	obj.SetItems = make(map[string]Value)
	th.Stack.Set(fr.slot(in.Dst), Value{Tag: TagHeapRef, Ref: obj})
	return stepContinue, nil
}

func opAddToSet(th *Thread, fr *callFrame, in Instruction) (stepResult, error) {
	setV := th.Stack.Get(fr.slot(in.Dst))
	if setV.Tag != TagHeapRef || setV.Ref.Kind != HeapSet {
		return stepContinue, &RuntimeError{Kind: ErrTypeMismatch, Message: "ADDTOSET target is not a set"}
	}
	item := th.Stack.Get(fr.slot(in.A))
	key := setKey(item)
	if existing, ok := setV.Ref.SetItems[key]; ok {
		FreeValue(&existing)
	} else {
		AddChild(setV.Ref, item)
	}
	var owned Value
	if item.Tag == TagHeapRef {
		owned = HeapRefVal(item.Ref)
	} else {
		owned = item
	}
	setV.Ref.SetItems[key] = owned
	return stepContinue, nil
}

// setKey produces the canonical hash key a set/map uses to dedupe
// values, matching Equals' notion of equality (e.g. 1 and 1.0 collide).
func setKey(v Value) string {
	switch v.Tag {
	case TagInt64:
		return fmt.Sprintf("i%d", v.I)
	case TagFloat64:
		if v.F == float64(int64(v.F)) {
			return fmt.Sprintf("i%d", int64(v.F)) // collide with equal ints, matching Equals' numeric cross-comparison
		}
		return fmt.Sprintf("f%g", v.F)
	case TagBool:
		return fmt.Sprintf("b%v", v.B)
	case TagNone:
		return "n"
	case TagShortStrConst:
		return "s" + string(v.ShortStr)
	case TagHeapRef:
		if v.Ref.Kind == HeapString {
			return "s" + string(v.Ref.Str)
		}
		return fmt.Sprintf("p%p", v.Ref)
	default:
		return ""
	}
}

func opNewVector(th *Thread, fr *callFrame, in Instruction) (stepResult, error) {
	obj := th.Heap.Alloc(HeapVector)
	obj.Vector = make([]Value, in.Imm)
	th.Stack.Set(fr.slot(in.Dst), Value{Tag: TagHeapRef, Ref: obj})
	return stepContinue, nil
}

func opPutVector(th *Thread, fr *callFrame, in Instruction) (stepResult, error) {
	vecV := th.Stack.Get(fr.slot(in.Dst))
	if vecV.Tag != TagHeapRef || vecV.Ref.Kind != HeapVector {
		return stepContinue, &RuntimeError{Kind: ErrTypeMismatch, Message: "PUTVECTOR target is not a vector"}
	}
	if in.Imm < 0 || in.Imm >= len(vecV.Ref.Vector) {
		return stepContinue, &RuntimeError{Kind: ErrInvalidInstruction, Message: "PUTVECTOR: index out of range"}
	}
	item := th.Stack.Get(fr.slot(in.A))
	RemoveChild(vecV.Ref, vecV.Ref.Vector[in.Imm])
	FreeValue(&vecV.Ref.Vector[in.Imm])
	AddChild(vecV.Ref, item)
	if item.Tag == TagHeapRef {
		vecV.Ref.Vector[in.Imm] = HeapRefVal(item.Ref)
	} else {
		vecV.Ref.Vector[in.Imm] = item
	}
	return stepContinue, nil
}

func opNewMap(th *Thread, fr *callFrame, in Instruction) (stepResult, error) {
	obj := th.Heap.Alloc(HeapMap)
	obj.Map = NewMapObject()
	th.Stack.Set(fr.slot(in.Dst), Value{Tag: TagHeapRef, Ref: obj})
	return stepContinue, nil
}

// opPutMap inserts/overwrites the entry keyed by the value in slot A
// with the value in slot B on the map in Dst.
func opPutMap(th *Thread, fr *callFrame, in Instruction) (stepResult, error) {
	mapV := th.Stack.Get(fr.slot(in.Dst))
	if mapV.Tag != TagHeapRef || mapV.Ref.Kind != HeapMap {
		return stepContinue, &RuntimeError{Kind: ErrTypeMismatch, Message: "PUTMAP target is not a map"}
	}
	keyV := th.Stack.Get(fr.slot(in.A))
	valV := th.Stack.Get(fr.slot(in.B))
	key := setKey(keyV)
	if existing, ok := mapV.Ref.Map.Get(key); ok {
		RemoveChild(mapV.Ref, existing)
		FreeValue(&existing)
	}
	AddChild(mapV.Ref, valV)
	var owned Value
	if valV.Tag == TagHeapRef {
		owned = HeapRefVal(valV.Ref)
	} else {
		owned = valV
	}
	mapV.Ref.Map.Set(key, owned)
	return stepContinue, nil
}
