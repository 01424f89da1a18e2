// Package protolex provides the Protolex language adapter for plxrun.
package protolex

import (
	"fmt"
	"os"
)

// DefaultModulePath is where the interpreter build is looked up when no path
// is configured.
const DefaultModulePath = "protolex.wasm"

// Protolex implements the executor.Language interface for a WASI build of
// the Protolex interpreter loaded from disk.
type Protolex struct {
	modulePath string
}

// New returns a Protolex adapter reading the interpreter from modulePath.
func New(modulePath string) *Protolex {
	if modulePath == "" {
		modulePath = DefaultModulePath
	}
	return &Protolex{modulePath: modulePath}
}

// Name returns "protolex".
func (p *Protolex) Name() string {
	return "protolex"
}

// ModulePath returns the configured interpreter location.
func (p *Protolex) ModulePath() string {
	return p.modulePath
}

// Module reads the interpreter WASM binary.
func (p *Protolex) Module() ([]byte, error) {
	data, err := os.ReadFile(p.modulePath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p.modulePath, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("read %s: empty module", p.modulePath)
	}
	return data, nil
}

// Args returns the command-line arguments for the interpreter.
func (p *Protolex) Args(programPath string) []string {
	return []string{"protolex", programPath}
}
