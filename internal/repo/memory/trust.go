package memory

import (
	"context"
	"sync"

	"campus-market/internal/domain"
	"campus-market/internal/repo"
)

var _ repo.TrustRepo = (*TrustRepo)(nil)

type TrustRepo struct {
	mu      sync.RWMutex
	records map[string]domain.TrustRecord
}

func NewTrustRepo() *TrustRepo {
	return &TrustRepo{records: make(map[string]domain.TrustRecord)}
}

func (r *TrustRepo) Find(_ context.Context, userID string) (*domain.TrustRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[userID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (r *TrustRepo) Insert(_ context.Context, record domain.TrustRecord) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[record.UserID]; ok {
		return false, nil
	}
	r.records[record.UserID] = record
	return true, nil
}

func (r *TrustRepo) CompareAndSwap(_ context.Context, record domain.TrustRecord, expectedRevision int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.records[record.UserID]
	if !ok || cur.Revision != expectedRevision {
		return false, nil
	}
	r.records[record.UserID] = record
	return true, nil
}
