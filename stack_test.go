package horse64

import "testing"

func TestStackToSizeGrowAndShrink(t *testing.T) {
	s := NewStack()
	if err := s.ToSize(4, false); err != nil {
		t.Fatalf("grow to 4: %v", err)
	}
	if s.Len() != 4 {
		t.Fatalf("expected len 4, got %d", s.Len())
	}
	s.Set(0, IntVal(7))
	if err := s.ToSize(1, false); err != nil {
		t.Fatalf("shrink to 1: %v", err)
	}
	if s.Len() != 1 {
		t.Fatalf("expected len 1 after shrink, got %d", s.Len())
	}
	if v := s.Get(0); v.I != 7 {
		t.Fatalf("expected surviving slot 0 to keep its value, got %+v", v)
	}
}

func TestStackPushPopFrameRestoresFloor(t *testing.T) {
	s := NewStack()
	savedOuter, err := s.PushFrame(4)
	if err != nil {
		t.Fatalf("push outer frame: %v", err)
	}
	if s.Floor() != 0 {
		t.Fatalf("expected outer floor 0, got %d", s.Floor())
	}
	savedInner, err := s.PushFrame(2)
	if err != nil {
		t.Fatalf("push inner frame: %v", err)
	}
	if s.Floor() != 4 {
		t.Fatalf("expected inner floor 4, got %d", s.Floor())
	}
	s.PopFrame(savedInner)
	if s.Floor() != 0 {
		t.Fatalf("expected floor restored to 0 after popping inner, got %d", s.Floor())
	}
	s.PopFrame(savedOuter)
	if s.Len() != 0 {
		t.Fatalf("expected stack fully unwound, len=%d", s.Len())
	}
}

func TestCatchFrameStackFindHandlerInnermostFirst(t *testing.T) {
	prog := NewProgram()
	RegisterBuiltins(prog)
	outer := prog.Classes // sanity: builtins registered
	if len(outer) == 0 {
		t.Fatalf("expected builtin classes to be registered")
	}
	valueErrID, ok := findClassID(prog, "ValueError")
	if !ok {
		t.Fatalf("ValueError not registered")
	}
	typeErrID, ok := findClassID(prog, "TypeError")
	if !ok {
		t.Fatalf("TypeError not registered")
	}

	var catches CatchFrameStack
	catches.Push(100, 0).CaughtClassIDs = []int{valueErrID}
	catches.Push(200, 0).CaughtClassIDs = []int{typeErrID}

	handler, idx := catches.FindHandler(prog, typeErrID)
	if handler == nil || handler.HandlerAddr != 200 || idx != 1 {
		t.Fatalf("expected innermost handler at 200/idx1, got %+v idx=%d", handler, idx)
	}

	handler, idx = catches.FindHandler(prog, valueErrID)
	if handler == nil || handler.HandlerAddr != 100 || idx != 0 {
		t.Fatalf("expected outer handler at 100/idx0 when inner does not match, got %+v idx=%d", handler, idx)
	}
}

func TestCatchFrameStackFindHandlerNoMatch(t *testing.T) {
	prog := NewProgram()
	RegisterBuiltins(prog)
	oomID, _ := findClassID(prog, "OutOfMemoryError")

	var catches CatchFrameStack
	catches.Push(100, 0).CaughtClassIDs = []int{oomID}

	if handler, idx := catches.FindHandler(prog, 999999); handler != nil || idx != -1 {
		t.Fatalf("expected no handler for unrelated class id, got %+v idx=%d", handler, idx)
	}
}

func findClassID(prog *Program, name string) (int, bool) {
	for i, c := range prog.Classes {
		if c.Name == name {
			return i, true
		}
	}
	return 0, false
}
