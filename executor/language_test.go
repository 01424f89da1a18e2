package executor

import "github.com/caffeineduck/plxrun/internal/wasmtest"

// mockLanguage implements Language over in-memory bytes.
type mockLanguage struct {
	module []byte
	err    error
	argv   [][]string
}

func (m *mockLanguage) Name() string {
	return "mock"
}

func (m *mockLanguage) Module() ([]byte, error) {
	return m.module, m.err
}

func (m *mockLanguage) Args(programPath string) []string {
	args := []string{"mock", programPath}
	m.argv = append(m.argv, args)
	return args
}

func newMockLanguage(p wasmtest.Program) *mockLanguage {
	return &mockLanguage{module: p.Assemble()}
}
