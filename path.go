// path.go — URI/path normalization and module-path derivation, spec.md
// §4.5 step 1 and §8's idempotence properties.
package horse64

import (
	"strings"
)

// NormalizePath collapses "." and ".." components and normalizes path
// separators to "/", without touching leading ".." segments that climb
// above the path's own root (those are preserved, matching spec.md §8's
// `normalize("../abc/def/..u/../..") == "../abc"`).
//
// Idempotent: NormalizePath(NormalizePath(p)) == NormalizePath(p).
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	leadingSlash := strings.HasPrefix(p, "/")
	segments := strings.Split(p, "/")

	var stack []string
	for _, seg := range segments {
		switch seg {
		case "", ".":
			continue
		case "..":
			if n := len(stack); n > 0 && stack[n-1] != ".." {
				stack = stack[:n-1]
			} else if !leadingSlash {
				stack = append(stack, "..")
			}
			// a leading-slash (absolute) path silently discards a ".."
			// that would climb above root.
		default:
			stack = append(stack, seg)
		}
	}
	joined := strings.Join(stack, "/")
	if leadingSlash {
		return "/" + joined
	}
	if joined == "" {
		return "."
	}
	return joined
}

// DeriveModulePath computes the dotted module path for fileURI relative
// to projectRoot, per spec.md §4.5 step 1: strip the ".h64" extension,
// normalize, reject paths containing additional dots, replace directory
// separators with ".".
//
// Deterministic: the same (fileURI, projectRoot) pair always yields the
// same dotted path.
func DeriveModulePath(fileURI, projectRoot string) (string, error) {
	norm := NormalizePath(fileURI)
	root := NormalizePath(projectRoot)

	rel := norm
	if root != "." && strings.HasPrefix(norm, root+"/") {
		rel = strings.TrimPrefix(norm, root+"/")
	} else if norm == root {
		rel = ""
	} else if strings.HasPrefix(norm, "/") {
		return "", &ProgError{Kind: ErrFileNotInProject, Message: "file URI " + fileURI + " is not under project root " + projectRoot}
	}

	if !strings.HasSuffix(rel, ".h64") {
		return "", &ProgError{Kind: ErrFileNotInProject, Message: "file URI " + fileURI + " does not end in .h64"}
	}
	rel = strings.TrimSuffix(rel, ".h64")

	if strings.Contains(rel, "..") {
		return "", &ProgError{Kind: ErrFileNotInProject, Message: "file URI " + fileURI + " escapes project root"}
	}
	if strings.Contains(rel, ".") {
		return "", &ProgError{Kind: ErrModulePathHasDots, Message: "module path derived from " + fileURI + " contains additional dots"}
	}

	dotted := strings.ReplaceAll(rel, "/", ".")
	return dotted, nil
}
