// concurrency.go — threadable native functions, spec.md §5 "the language
// may expose user-level threads via threadable native functions... a
// single VM's interpreter loop is never re-entered concurrently. Multiple
// VM instances may run in parallel operating-system threads as long as
// they share only immutable Program tables."
//
// Grounded on the teacher's builtin_concurrency.go (procState/chanBox,
// safeSend/safeClose, RegisterNative-registered procSpawn/procJoin/
// chanOpen/chanSend/chanRecv), adapted so the spawned unit of work is a
// full Horse64 Thread over the same read-only Program rather than a
// goroutine sharing one Go-GC-backed Env — this spec's heap and catch-
// frame state are per-thread and may never be shared (§5 "Shared
// resources"), unlike the teacher's closure-snapshotting clone model.
package horse64

import "time"

// threadState is the native payload behind a "Thread" instance handle.
// It is never reachable as a Value field; instances only carry its
// identity via handleTable, keeping C2's closed heap-kind set intact.
type threadState struct {
	done   chan struct{}
	result Value
	err    error
}

// channelBox is the native payload behind a "Channel" instance handle.
type channelBox struct {
	ch chan Value
}

func safeSend(ch chan Value, v Value) (ok bool) {
	defer func() { _ = recover() }()
	ch <- v
	return true
}

func safeClose(ch chan Value) {
	defer func() { _ = recover() }()
	close(ch)
}

// handleTable maps an Instance heap object's identity to its native
// payload. The table is process-wide and keyed by pointer identity, which
// is safe because handles outlive no single Thread's heap and are never
// cloned structurally. heapEquals compares HeapInstance objects by class
// id and members, so two handles of the same class compare equal under
// ==; this map tells them apart because it is keyed by the Go pointer.
var handleTable = struct {
	threads  map[*HeapObject]*threadState
	channels map[*HeapObject]*channelBox
}{
	threads:  make(map[*HeapObject]*threadState),
	channels: make(map[*HeapObject]*channelBox),
}

// RegisterConcurrencyBuiltins adds the Thread/Channel classes and their
// native methods to prog's builtin module.
func RegisterConcurrencyBuiltins(prog *Program) {
	const lib = "concurrency"
	threadClassID, err := prog.AddClass("Thread", "$builtin", builtinModulePath, lib)
	if err != nil {
		panic(err)
	}
	channelClassID, err := prog.AddClass("Channel", "$builtin", builtinModulePath, lib)
	if err != nil {
		panic(err)
	}

	registerNative(prog, "thread_spawn", 1, false, nativeThreadSpawn(threadClassID))
	registerNative(prog, "thread_join", 1, false, nativeThreadJoin)

	registerNative(prog, "channel_open", 1, false, nativeChannelOpen(channelClassID))
	registerNative(prog, "channel_send", 2, false, nativeChannelSend)
	registerNative(prog, "channel_recv", 1, false, nativeChannelRecv)
	registerNative(prog, "channel_try_send", 2, false, nativeChannelTrySend)
	registerNative(prog, "channel_try_recv", 1, false, nativeChannelTryRecv)
	registerNative(prog, "channel_close", 1, false, nativeChannelClose)
	registerNative(prog, "timer_after", 1, false, nativeTimerAfter(channelClassID))
}

func nativeTimerAfter(channelClassID int) NativeFunc {
	return func(th *Thread, args []Value) (Value, error) {
		ms := int64(0)
		if len(args) > 0 && args[0].Tag == TagInt64 {
			ms = args[0].I
		}
		return timerAfter(th, channelClassID, ms)
	}
}

func newHandleInstance(th *Thread, classID int) *HeapObject {
	obj := th.Heap.Alloc(HeapInstance)
	obj.Instance = &InstanceObject{ClassID: classID}
	return obj
}

// nativeThreadSpawn spawns args[0] (a func id value, as produced by
// GETFUNC) on a brand-new Thread over the same Program, never touching
// the spawning Thread's stack, heap, or catch frames.
func nativeThreadSpawn(threadClassID int) NativeFunc {
	return func(th *Thread, args []Value) (Value, error) {
		if len(args) < 1 || args[0].Tag != TagInt64 {
			return None, &RuntimeError{Kind: ErrTypeMismatch, Message: "thread_spawn expects a function reference"}
		}
		funcID := int(args[0].I)
		var callArgs []Value
		if len(args) > 1 {
			callArgs = args[1:]
		}

		st := &threadState{done: make(chan struct{})}
		obj := newHandleInstance(th, threadClassID)
		handleTable.threads[obj] = st

		prog := th.Program
		go func() {
			defer close(st.done)
			child := NewThread(prog, th.Stdout, th.Log)
			result, err := child.Call(funcID, callArgs)
			st.result = result
			st.err = err
		}()
		return Value{Tag: TagHeapRef, Ref: obj}, nil
	}
}

func nativeThreadJoin(th *Thread, args []Value) (Value, error) {
	obj, ok := asHandle(args, 0)
	if !ok {
		return None, &RuntimeError{Kind: ErrTypeMismatch, Message: "thread_join expects a Thread handle"}
	}
	st, ok := handleTable.threads[obj]
	if !ok {
		return None, &RuntimeError{Kind: ErrTypeMismatch, Message: "thread_join: not a thread handle"}
	}
	<-st.done
	if st.err != nil {
		return None, st.err
	}
	return st.result, nil
}

func nativeChannelOpen(channelClassID int) NativeFunc {
	return func(th *Thread, args []Value) (Value, error) {
		capacity := int64(0)
		if len(args) > 0 && args[0].Tag == TagInt64 {
			capacity = args[0].I
		}
		if capacity < 0 {
			return None, &RuntimeError{Kind: ErrTypeMismatch, Message: "channel_open: capacity must be >= 0"}
		}
		obj := newHandleInstance(th, channelClassID)
		handleTable.channels[obj] = &channelBox{ch: make(chan Value, capacity)}
		return Value{Tag: TagHeapRef, Ref: obj}, nil
	}
}

func asHandle(args []Value, i int) (*HeapObject, bool) {
	if i >= len(args) || args[i].Tag != TagHeapRef || args[i].Ref.Kind != HeapInstance {
		return nil, false
	}
	return args[i].Ref, true
}

func nativeChannelSend(th *Thread, args []Value) (Value, error) {
	obj, ok := asHandle(args, 0)
	if !ok {
		return None, &RuntimeError{Kind: ErrTypeMismatch, Message: "channel_send expects a Channel handle"}
	}
	cb, ok := handleTable.channels[obj]
	if !ok {
		return None, &RuntimeError{Kind: ErrTypeMismatch, Message: "channel_send: not a channel handle"}
	}
	var v Value
	if len(args) > 1 {
		v = args[1]
	}
	if v.Tag == TagHeapRef {
		v = HeapRefVal(v.Ref)
	}
	cb.ch <- v
	return None, nil
}

func nativeChannelRecv(th *Thread, args []Value) (Value, error) {
	obj, ok := asHandle(args, 0)
	if !ok {
		return None, &RuntimeError{Kind: ErrTypeMismatch, Message: "channel_recv expects a Channel handle"}
	}
	cb, ok := handleTable.channels[obj]
	if !ok {
		return None, &RuntimeError{Kind: ErrTypeMismatch, Message: "channel_recv: not a channel handle"}
	}
	v, open := <-cb.ch
	if !open {
		return None, nil
	}
	return v, nil
}

func nativeChannelTrySend(th *Thread, args []Value) (Value, error) {
	obj, ok := asHandle(args, 0)
	if !ok {
		return None, &RuntimeError{Kind: ErrTypeMismatch, Message: "channel_try_send expects a Channel handle"}
	}
	cb, ok := handleTable.channels[obj]
	if !ok {
		return None, &RuntimeError{Kind: ErrTypeMismatch, Message: "channel_try_send: not a channel handle"}
	}
	var v Value
	if len(args) > 1 {
		v = args[1]
	}
	select {
	case cb.ch <- v:
		return BoolVal(true), nil
	default:
		return BoolVal(false), nil
	}
}

func nativeChannelTryRecv(th *Thread, args []Value) (Value, error) {
	obj, ok := asHandle(args, 0)
	if !ok {
		return None, &RuntimeError{Kind: ErrTypeMismatch, Message: "channel_try_recv expects a Channel handle"}
	}
	cb, ok := handleTable.channels[obj]
	if !ok {
		return None, &RuntimeError{Kind: ErrTypeMismatch, Message: "channel_try_recv: not a channel handle"}
	}
	select {
	case v, open := <-cb.ch:
		if !open {
			return None, nil
		}
		return v, nil
	default:
		return None, nil
	}
}

func nativeChannelClose(th *Thread, args []Value) (Value, error) {
	obj, ok := asHandle(args, 0)
	if !ok {
		return None, &RuntimeError{Kind: ErrTypeMismatch, Message: "channel_close expects a Channel handle"}
	}
	cb, ok := handleTable.channels[obj]
	if !ok {
		return None, &RuntimeError{Kind: ErrTypeMismatch, Message: "channel_close: not a channel handle"}
	}
	safeClose(cb.ch)
	return None, nil
}

// timerAfter mirrors the teacher's one-shot timer channel, grounded on
// builtin_concurrency.go's timerAfter, reusing channelBox instead of a
// bespoke handle kind.
func timerAfter(th *Thread, channelClassID int, ms int64) (Value, error) {
	if ms < 0 {
		return None, &RuntimeError{Kind: ErrTypeMismatch, Message: "timer: ms must be >= 0"}
	}
	obj := newHandleInstance(th, channelClassID)
	cb := &channelBox{ch: make(chan Value, 1)}
	handleTable.channels[obj] = cb
	go func() {
		<-time.After(time.Duration(ms) * time.Millisecond)
		if safeSend(cb.ch, IntVal(time.Now().UnixMilli())) {
			safeClose(cb.ch)
		}
	}()
	return Value{Tag: TagHeapRef, Ref: obj}, nil
}
