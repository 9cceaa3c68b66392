// environment.go — the Environment record of Design Notes §9: "Global
// mutable state in the source (process-wide cached documents-path,
// appdata-path, current-directory lookup) must be lifted into an
// explicit Environment record passed to the resolver."
package horse64

// Environment carries the configuration a resolver run needs instead of
// reading process-global state.
type Environment struct {
	// ProjectRoot is the directory module paths are derived relative to
	// (spec.md §4.5 step 1).
	ProjectRoot string

	// ImportRoots are additional search roots consulted by the import
	// loader (C4) after ProjectRoot, in order.
	ImportRoots []string

	// MaxImportChainLen resolves the Open Question in Design Notes §9:
	// the access-chain-length limit used while reconstructing a dotted
	// module access path during identifier resolution. Default 16.
	MaxImportChainLen int

	Log *Logger
}

// NewEnvironment returns an Environment with the documented defaults.
func NewEnvironment(projectRoot string) *Environment {
	return &Environment{
		ProjectRoot:       projectRoot,
		MaxImportChainLen: 16,
		Log:               NewLogger(),
	}
}
