// heap.go — pooled heap allocator and reference-counted heap objects,
// spec.md §3 "Heap object" and §4.2.
//
// Grounded on the teacher's vm.go MapObject (ordered map with per-key
// bookkeeping) for the Map kind, generalized to the full kind set the
// spec names (String, List, Set, Map, Vector, Instance, Iterator,
// Exception) and given the two-counter scheme the teacher's Go-GC-backed
// engine never needed (it relies on the host GC; this spec mandates
// manual external/heap ref counts plus a tracing sweep for cycles, per
// Design Notes §9 "the split of external and heap counters is load-bearing").
package horse64

import "fmt"

// HeapKind is the dynamic type tag of a heap object.
type HeapKind uint8

const (
	HeapString HeapKind = iota
	HeapList
	HeapSet
	HeapMap
	HeapVector
	HeapInstance
	HeapIterator
	HeapException
)

func (k HeapKind) String() string {
	switch k {
	case HeapString:
		return "String"
	case HeapList:
		return "List"
	case HeapSet:
		return "Set"
	case HeapMap:
		return "Map"
	case HeapVector:
		return "Vector"
	case HeapInstance:
		return "Instance"
	case HeapIterator:
		return "Iterator"
	case HeapException:
		return "Exception"
	default:
		return "?"
	}
}

// HeapObject is a single cell from the pool allocator. externalRefCount
// counts references from stack slots, globals, and instruction-embedded
// constants; heapRefCount counts references from other heap objects.
// Invariant: when both reach zero the object is eligible for collection.
type HeapObject struct {
	Kind HeapKind

	externalRefCount int64
	heapRefCount     int64

	// payloads — exactly one is meaningful, selected by Kind.
	Str      []rune // UTF-32 code units, length-prefixed by len(Str)
	List     []Value
	SetItems map[string]Value // keyed by a canonical hash key (see setKey)
	Map      *MapObject
	Vector   []Value // fixed-size, pre-allocated; PUTVECTOR overwrites in place
	Instance *InstanceObject
	Iterator *IteratorObject
	Exc      *ExceptionObject

	pool *HeapPool
}

func (o *HeapObject) String() string {
	switch o.Kind {
	case HeapString:
		return string(o.Str)
	case HeapList:
		return fmt.Sprintf("<list len=%d>", len(o.List))
	case HeapSet:
		return fmt.Sprintf("<set len=%d>", len(o.SetItems))
	case HeapMap:
		return fmt.Sprintf("<map len=%d>", o.Map.Len())
	case HeapVector:
		return fmt.Sprintf("<vector len=%d>", len(o.Vector))
	case HeapInstance:
		return fmt.Sprintf("<instance class=%d>", o.Instance.ClassID)
	case HeapIterator:
		return "<iterator>"
	case HeapException:
		return fmt.Sprintf("<exception class=%d: %s>", o.Exc.ClassID, o.Exc.Message)
	default:
		return "<heap object>"
	}
}

// MapObject is an insertion-ordered string-keyed map, grounded on the
// teacher's MapObject in vm.go.
type MapObject struct {
	keys   []string
	values map[string]Value
}

func NewMapObject() *MapObject {
	return &MapObject{values: make(map[string]Value)}
}

func (m *MapObject) Len() int { return len(m.keys) }

func (m *MapObject) Get(key string) (Value, bool) {
	v, ok := m.values[key]
	return v, ok
}

func (m *MapObject) Set(key string, v Value) {
	if _, exists := m.values[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.values[key] = v
}

func (m *MapObject) Keys() []string { return m.keys }

// InstanceObject is a user-defined class instance: member variables laid
// out in class-declaration order, looked up by (class_id, member name_id)
// through Program.LookupClassMember.
type InstanceObject struct {
	ClassID int
	Members []Value
}

// IteratorObject is produced by NEWITERATOR, specialized on the source
// container's kind.
type IteratorObject struct {
	source  *HeapObject
	index   int
	mapKeys []string // snapshot, for HeapMap/HeapSet iteration order
}

// ExceptionObject is the payload of a raised exception value.
type ExceptionObject struct {
	ClassID int
	Message string
	Members []Value
}

// HeapPool is a per-thread pool allocator yielding fixed-size heap-object
// cells (spec.md §4.2, §5 "the pool allocator is per-thread").
type HeapPool struct {
	free  []*HeapObject
	all   []*HeapObject // every cell ever allocated, live or pooled, for TraceSweep
	alive int64
}

func NewHeapPool() *HeapPool {
	return &HeapPool{}
}

// Alloc returns a zeroed HeapObject of the given kind with
// externalRefCount == 1, satisfying interpreter invariant (ii) of
// spec.md §4.7 ("any heap object freshly allocated and installed into a
// slot has external_ref_count = 1").
func (p *HeapPool) Alloc(kind HeapKind) *HeapObject {
	var obj *HeapObject
	if n := len(p.free); n > 0 {
		obj = p.free[n-1]
		p.free = p.free[:n-1]
		*obj = HeapObject{}
	} else {
		obj = &HeapObject{}
		p.all = append(p.all, obj)
	}
	obj.Kind = kind
	obj.pool = p
	obj.externalRefCount = 1
	p.alive++
	return obj
}

func (p *HeapPool) reclaim(obj *HeapObject) {
	p.alive--
	*obj = HeapObject{}
	p.free = append(p.free, obj)
}

// Alive returns the number of heap objects not yet reclaimed — used by
// the ref-count-balance audit in tests (spec.md §8).
func (p *HeapPool) Alive() int64 { return p.alive }

// retainHeap increments the heap-to-heap reference count when obj becomes
// reachable from another heap object (e.g. inserted into a list/map).
func retainHeap(obj *HeapObject) {
	if obj != nil {
		obj.heapRefCount++
	}
}

// releaseHeap decrements the heap-to-heap reference count, collecting obj
// (and transitively releasing its own heap edges) once both counters hit
// zero.
func releaseHeap(obj *HeapObject) {
	if obj == nil {
		return
	}
	obj.heapRefCount--
	maybeCollect(obj)
}

// releaseExternal decrements the external ref count (stack/global/const
// root going away).
func releaseExternal(obj *HeapObject) {
	if obj == nil {
		return
	}
	obj.externalRefCount--
	maybeCollect(obj)
}

func maybeCollect(obj *HeapObject) {
	if obj.externalRefCount < 0 || obj.heapRefCount < 0 {
		panic(fmt.Sprintf("heap object ref count went negative: ext=%d heap=%d kind=%s",
			obj.externalRefCount, obj.heapRefCount, obj.Kind))
	}
	if obj.externalRefCount != 0 || obj.heapRefCount != 0 {
		return
	}
	releaseChildren(obj)
	if obj.pool != nil {
		obj.pool.reclaim(obj)
	}
}

// releaseChildren drops the heap-to-heap edges owned by obj so that a
// chain of now-unreachable objects collects eagerly. Values stored in a
// list, vector, set or map also hold the external reference they were
// stored with (see opAddToList), and that is released here too. True reference
// cycles (an object reachable only through a cycle of heap edges, with
// no external root left on the cycle) are not broken by this eager path;
// they are swept by TraceSweep.
func releaseChildren(obj *HeapObject) {
	switch obj.Kind {
	case HeapList, HeapVector:
		items := obj.List
		if obj.Kind == HeapVector {
			items = obj.Vector
		}
		for i := range items {
			if items[i].Tag == TagHeapRef {
				releaseHeap(items[i].Ref)
				releaseExternal(items[i].Ref)
			}
		}
	case HeapSet:
		for _, v := range obj.SetItems {
			if v.Tag == TagHeapRef {
				releaseHeap(v.Ref)
				releaseExternal(v.Ref)
			}
		}
	case HeapMap:
		for _, k := range obj.Map.Keys() {
			v, _ := obj.Map.Get(k)
			if v.Tag == TagHeapRef {
				releaseHeap(v.Ref)
				releaseExternal(v.Ref)
			}
		}
	case HeapInstance:
		for _, v := range obj.Instance.Members {
			if v.Tag == TagHeapRef {
				releaseHeap(v.Ref)
			}
		}
	case HeapException:
		for _, v := range obj.Exc.Members {
			if v.Tag == TagHeapRef {
				releaseHeap(v.Ref)
			}
		}
	case HeapIterator:
		if obj.Iterator != nil && obj.Iterator.source != nil {
			releaseHeap(obj.Iterator.source)
		}
	}
}

// AddChild registers a heap-to-heap edge from container to child. Call
// this whenever child is stored inside container (list append, map/set
// insert, instance member write, vector slot write).
func AddChild(container *HeapObject, child Value) {
	if child.Tag == TagHeapRef {
		retainHeap(child.Ref)
	}
}

// RemoveChild undoes AddChild when a container slot holding child is
// overwritten or the container itself collects.
func RemoveChild(container *HeapObject, child Value) {
	if child.Tag == TagHeapRef {
		releaseHeap(child.Ref)
	}
}

func heapEquals(a, b *HeapObject) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil || a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case HeapString:
		return string(a.Str) == string(b.Str)
	case HeapList, HeapVector:
		a1, b1 := a.List, b.List
		if a.Kind == HeapVector {
			a1, b1 = a.Vector, b.Vector
		}
		if len(a1) != len(b1) {
			return false
		}
		for i := range a1 {
			if !Equals(a1[i], b1[i]) {
				return false
			}
		}
		return true
	case HeapInstance:
		if a.Instance.ClassID != b.Instance.ClassID {
			return false
		}
		if len(a.Instance.Members) != len(b.Instance.Members) {
			return false
		}
		for i := range a.Instance.Members {
			if !Equals(a.Instance.Members[i], b.Instance.Members[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// TraceSweep breaks reference cycles: it walks every root (stack slots,
// globals, instruction constants — supplied by the caller) marking
// reachable objects, then reclaims any pooled object left unmarked. The
// external counter tells the sweeper when roots exist (Design Notes §9).
// Only the supplied roots with externalRefCount > 0 seed the mark phase;
// every other pooled object that is not reachable from them is
// reclaimed, whatever its counters say.
func (p *HeapPool) TraceSweep(roots []*HeapObject) {
	marked := make(map[*HeapObject]bool)
	var mark func(o *HeapObject)
	mark = func(o *HeapObject) {
		if o == nil || marked[o] {
			return
		}
		marked[o] = true
		switch o.Kind {
		case HeapList, HeapVector:
			items := o.List
			if o.Kind == HeapVector {
				items = o.Vector
			}
			for _, v := range items {
				if v.Tag == TagHeapRef {
					mark(v.Ref)
				}
			}
		case HeapSet:
			for _, v := range o.SetItems {
				if v.Tag == TagHeapRef {
					mark(v.Ref)
				}
			}
		case HeapMap:
			for _, k := range o.Map.Keys() {
				v, _ := o.Map.Get(k)
				if v.Tag == TagHeapRef {
					mark(v.Ref)
				}
			}
		case HeapInstance:
			for _, v := range o.Instance.Members {
				if v.Tag == TagHeapRef {
					mark(v.Ref)
				}
			}
		case HeapException:
			for _, v := range o.Exc.Members {
				if v.Tag == TagHeapRef {
					mark(v.Ref)
				}
			}
		case HeapIterator:
			if o.Iterator != nil {
				mark(o.Iterator.source)
			}
		}
	}
	for _, r := range roots {
		if r.externalRefCount > 0 {
			mark(r)
		}
	}
	for _, o := range p.all {
		if o.pool == p && !marked[o] && (o.externalRefCount != 0 || o.heapRefCount != 0) {
			o.externalRefCount = 0
			o.heapRefCount = 0
			p.reclaim(o)
		}
	}
}
