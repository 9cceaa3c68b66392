package horse64

import "testing"

func TestNormalizePathCollapsesDotSegments(t *testing.T) {
	cases := map[string]string{
		"a/./b":     "a/b",
		"a/b/../c":  "a/c",
		"/a/b/../c": "/a/c",
		"../abc/def/..u/../..": "../abc",
		"a\\b\\c": "a/b/c",
	}
	for in, want := range cases {
		got := NormalizePath(in)
		if got != want {
			t.Fatalf("NormalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizePathIsIdempotent(t *testing.T) {
	inputs := []string{"a/./b/../c", "/x/../../y", "plain/path", "../../escape"}
	for _, in := range inputs {
		once := NormalizePath(in)
		twice := NormalizePath(once)
		if once != twice {
			t.Fatalf("NormalizePath not idempotent for %q: first=%q second=%q", in, once, twice)
		}
	}
}

func TestDeriveModulePathWorkedExample(t *testing.T) {
	got, err := DeriveModulePath("/proj/mylib/utils.h64", "/proj")
	if err != nil {
		t.Fatalf("DeriveModulePath: %v", err)
	}
	if got != "mylib.utils" {
		t.Fatalf("expected \"mylib.utils\", got %q", got)
	}
}

func TestDeriveModulePathRejectsDotsInRelativePath(t *testing.T) {
	_, err := DeriveModulePath("/proj/mylib/v1.2/utils.h64", "/proj")
	perr, ok := err.(*ProgError)
	if !ok || perr.Kind != ErrModulePathHasDots {
		t.Fatalf("expected ErrModulePathHasDots, got %v", err)
	}
}

func TestDeriveModulePathRejectsFileOutsideProject(t *testing.T) {
	_, err := DeriveModulePath("/other/utils.h64", "/proj")
	perr, ok := err.(*ProgError)
	if !ok || perr.Kind != ErrFileNotInProject {
		t.Fatalf("expected ErrFileNotInProject, got %v", err)
	}
}

func TestDeriveModulePathRejectsNonH64Extension(t *testing.T) {
	_, err := DeriveModulePath("/proj/readme.txt", "/proj")
	perr, ok := err.(*ProgError)
	if !ok || perr.Kind != ErrFileNotInProject {
		t.Fatalf("expected ErrFileNotInProject for a non-.h64 file, got %v", err)
	}
}

func TestDeriveModulePathAtProjectRoot(t *testing.T) {
	got, err := DeriveModulePath("/proj/main.h64", "/proj")
	if err != nil {
		t.Fatalf("DeriveModulePath: %v", err)
	}
	if got != "main" {
		t.Fatalf("expected \"main\", got %q", got)
	}
}
