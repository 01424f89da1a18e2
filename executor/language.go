package executor

// Language describes a WASM build of a language interpreter.
type Language interface {
	// Name returns a unique identifier for this language (e.g., "protolex").
	Name() string

	// Module returns the WASM binary for the language interpreter. An error
	// here means the runtime cannot be initialized.
	Module() ([]byte, error)

	// Args returns the command-line arguments to pass to the WASM module
	// when running the program staged at programPath.
	// For Protolex: []string{"protolex", programPath}
	Args(programPath string) []string
}
