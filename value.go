// value.go — the tagged Value union of spec.md §3.
//
// Grounded on the teacher's Value{Tag ValueTag, Data any} in
// types.go/interpreter.go, narrowed so the non-heap variants (None, Bool,
// Int64, Float64) live in plain struct fields instead of a boxed `any` —
// the spec's invariant "a value's tag fully determines which payload field
// is live" is meant literally, so boxing everything behind `interface{}`
// would hide that invariant rather than express it.
package horse64

import "fmt"

// ValueTag discriminates the active Value payload.
type ValueTag uint8

const (
	TagNone ValueTag = iota
	TagBool
	TagInt64
	TagFloat64
	TagShortStrConst
	TagHeapRef
)

func (t ValueTag) String() string {
	switch t {
	case TagNone:
		return "None"
	case TagBool:
		return "Bool"
	case TagInt64:
		return "Int64"
	case TagFloat64:
		return "Float64"
	case TagShortStrConst:
		return "ShortStrConst"
	case TagHeapRef:
		return "HeapRef"
	default:
		return "?"
	}
}

// Value is a trivially destructible tagged union except for TagHeapRef
// (must decrement external ref count) and TagShortStrConst (owns a
// buffer that must be freed) — see FreeValue.
type Value struct {
	Tag ValueTag

	B bool
	I int64
	F float64

	// ShortStrConst: a byte buffer owned by the value itself. Only ever
	// produced by instruction constants (SETCONST), never by general
	// computation — general strings live on the heap as Heap objects of
	// kind HeapString.
	ShortStr []byte

	Ref *HeapObject
}

// None is the canonical none value.
var None = Value{Tag: TagNone}

// BoolVal constructs a Bool value.
func BoolVal(b bool) Value { return Value{Tag: TagBool, B: b} }

// IntVal constructs an Int64 value.
func IntVal(i int64) Value { return Value{Tag: TagInt64, I: i} }

// FloatVal constructs a Float64 value.
func FloatVal(f float64) Value { return Value{Tag: TagFloat64, F: f} }

// ShortStrVal constructs a ShortStrConst value owning buf. buf must not be
// aliased by the caller afterwards.
func ShortStrVal(buf []byte) Value { return Value{Tag: TagShortStrConst, ShortStr: buf} }

// HeapRefVal constructs a HeapRef value and bumps the object's external
// ref count. Use this whenever a heap object becomes newly reachable from
// a stack slot, global slot, or instruction constant.
func HeapRefVal(obj *HeapObject) Value {
	obj.externalRefCount++
	return Value{Tag: TagHeapRef, Ref: obj}
}

// IsHeap reports whether v carries a heap reference.
func (v Value) IsHeap() bool { return v.Tag == TagHeapRef }

func (v Value) String() string {
	switch v.Tag {
	case TagNone:
		return "none"
	case TagBool:
		return fmt.Sprintf("%v", v.B)
	case TagInt64:
		return fmt.Sprintf("%d", v.I)
	case TagFloat64:
		return fmt.Sprintf("%g", v.F)
	case TagShortStrConst:
		return fmt.Sprintf("%q", string(v.ShortStr))
	case TagHeapRef:
		return v.Ref.String()
	default:
		return "<invalid value>"
	}
}

// FreeValue is the free-of-value contract from spec.md §4.2: idempotent,
// must be called before any overwrite of a slot holding a heap ref or an
// owned-buffer constant, and must not be called on stack slots currently
// used as function arguments by a native-call frame (the caller is
// responsible for that exclusion; FreeValue itself has no way to know).
func FreeValue(v *Value) {
	switch v.Tag {
	case TagHeapRef:
		if v.Ref != nil {
			releaseExternal(v.Ref)
		}
		v.Ref = nil
	case TagShortStrConst:
		v.ShortStr = nil
	}
	v.Tag = TagNone
}

// Equals is a shallow value-identity/equality check used by the VM's
// BINOP handler for the default `==`. Heap equality defers to the
// object's own Equals (falls back to pointer identity for kinds that do
// not define structural equality).
func Equals(a, b Value) bool {
	if a.Tag != b.Tag {
		// Int/Float cross-comparison is permitted by the language.
		if a.Tag == TagInt64 && b.Tag == TagFloat64 {
			return float64(a.I) == b.F
		}
		if a.Tag == TagFloat64 && b.Tag == TagInt64 {
			return a.F == float64(b.I)
		}
		return false
	}
	switch a.Tag {
	case TagNone:
		return true
	case TagBool:
		return a.B == b.B
	case TagInt64:
		return a.I == b.I
	case TagFloat64:
		return a.F == b.F
	case TagShortStrConst:
		return string(a.ShortStr) == string(b.ShortStr)
	case TagHeapRef:
		return heapEquals(a.Ref, b.Ref)
	default:
		return false
	}
}
