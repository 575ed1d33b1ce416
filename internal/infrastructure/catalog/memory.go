package catalog

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

type StatusChange struct {
	ProductID string
	Status    ProductStatus
}

// Memory keeps product statuses in process and records every call.
type Memory struct {
	mu       sync.RWMutex
	statuses map[string]ProductStatus
	calls    []StatusChange
	failWith error
}

func NewMemory() *Memory {
	return &Memory{statuses: make(map[string]ProductStatus)}
}

func (m *Memory) UpdateProductStatus(ctx context.Context, productID string, status ProductStatus) error {
	if productID == "" {
		return errors.New("catalog: empty product id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, StatusChange{ProductID: productID, Status: status})
	if m.failWith != nil {
		return m.failWith
	}
	m.statuses[productID] = status
	return nil
}

func (m *Memory) Status(productID string) (ProductStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.statuses[productID]
	return s, ok
}

func (m *Memory) Calls() []StatusChange {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]StatusChange, len(m.calls))
	copy(out, m.calls)
	return out
}

// CountCalls returns how many times productID was moved to status.
func (m *Memory) CountCalls(productID string, status ProductStatus) int {
	n := 0
	for _, c := range m.Calls() {
		if c.ProductID == productID && c.Status == status {
			n++
		}
	}
	return n
}

// FailWith makes subsequent updates fail; nil restores normal behavior.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	m.failWith = err
	m.mu.Unlock()
}
