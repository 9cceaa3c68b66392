package horse64

import "testing"

func TestAddClassRejectsDuplicateInSameModule(t *testing.T) {
	prog := NewProgram()
	if _, err := prog.AddClass("Foo", "file:///a.h64", "a", ""); err != nil {
		t.Fatalf("first AddClass: %v", err)
	}
	if _, err := prog.AddClass("Foo", "file:///a.h64", "a", ""); err == nil {
		t.Fatalf("expected duplicate class registration to fail")
	}
	// Same name in a different module must succeed.
	if _, err := prog.AddClass("Foo", "file:///b.h64", "b", ""); err != nil {
		t.Fatalf("AddClass in a different module should succeed: %v", err)
	}
}

func TestRegisterFunctionAsMethodUpdatesClassMembers(t *testing.T) {
	prog := NewProgram()
	classID, err := prog.AddClass("Greeter", "file:///a.h64", "a", "")
	if err != nil {
		t.Fatalf("AddClass: %v", err)
	}
	funcID, err := prog.RegisterFunction("greet", "file:///a.h64", 0, nil, false, "a", "", classID, nil)
	if err != nil {
		t.Fatalf("RegisterFunction: %v", err)
	}
	nameID := prog.InternMemberName("greet")
	varID, methodID := prog.LookupClassMember(classID, nameID)
	if varID != -1 || methodID != funcID {
		t.Fatalf("expected method lookup to resolve to funcID %d, got var=%d func=%d", funcID, varID, methodID)
	}
}

func TestRegisterClassMemberRejectsDuplicateNames(t *testing.T) {
	prog := NewProgram()
	classID, _ := prog.AddClass("Point", "file:///a.h64", "a", "")
	if err := prog.RegisterClassMember(classID, "x", -1); err != nil {
		t.Fatalf("first member: %v", err)
	}
	if err := prog.RegisterClassMember(classID, "x", -1); err == nil {
		t.Fatalf("expected duplicate member name to fail")
	}
}

func TestIsSubclassOfWalksBaseChain(t *testing.T) {
	prog := NewProgram()
	animalID, _ := prog.AddClass("Animal", "file:///a.h64", "a", "")
	dogID, _ := prog.AddClass("Dog", "file:///a.h64", "a", "")
	prog.Classes[dogID].BaseClassID = animalID

	if !prog.IsSubclassOf(dogID, animalID) {
		t.Fatalf("Dog should be a subclass of Animal")
	}
	if !prog.IsSubclassOf(dogID, dogID) {
		t.Fatalf("a class is its own subclass (reflexive)")
	}
	if prog.IsSubclassOf(animalID, dogID) {
		t.Fatalf("Animal must not be considered a subclass of Dog")
	}
}

func TestInternMemberNameIsStableAcrossCalls(t *testing.T) {
	prog := NewProgram()
	a := prog.InternMemberName("length")
	b := prog.InternMemberName("length")
	if a != b {
		t.Fatalf("interning the same name twice should return the same id, got %d and %d", a, b)
	}
	if a != prog.NameLength {
		t.Fatalf("expected 'length' to already equal the pre-interned NameLength slot")
	}
}

func TestFreezePanicsOnFurtherInterning(t *testing.T) {
	prog := NewProgram()
	prog.Freeze()
	defer func() {
		if recover() == nil {
			t.Fatalf("expected InternMemberName to panic after Freeze")
		}
	}()
	prog.InternMemberName("brand_new_name")
}
