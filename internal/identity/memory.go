package identity

import (
	"context"
	"sync"

	"github.com/roach88/fpledger/internal/ir"
)

// MemoryRegistry is an in-process Registry for tests and embedded use.
type MemoryRegistry struct {
	mu       sync.RWMutex
	bindings map[string]ir.Binding
}

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{bindings: make(map[string]ir.Binding)}
}

func (m *MemoryRegistry) PutBinding(_ context.Context, b ir.Binding) (ir.Binding, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.bindings[b.PublicKey]; ok {
		return existing, false, nil
	}
	m.bindings[b.PublicKey] = b
	return b, true, nil
}

func (m *MemoryRegistry) GetBinding(_ context.Context, publicKey string) (ir.Binding, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bindings[publicKey]
	return b, ok, nil
}
