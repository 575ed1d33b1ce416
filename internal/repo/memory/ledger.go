package memory

import (
	"context"
	"sort"
	"sync"

	"campus-market/internal/domain"
	"campus-market/internal/repo"
)

var _ repo.LedgerRepo = (*LedgerRepo)(nil)

type LedgerRepo struct {
	mu      sync.RWMutex
	entries []domain.LedgerEntry
	biz     map[string]struct{}
}

func NewLedgerRepo() *LedgerRepo {
	return &LedgerRepo{biz: make(map[string]struct{})}
}

func (r *LedgerRepo) Append(_ context.Context, entry domain.LedgerEntry) (bool, error) {
	key := string(entry.BizType) + ":" + entry.BizID
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.biz[key]; dup {
		return false, nil
	}
	r.biz[key] = struct{}{}
	r.entries = append(r.entries, entry)
	return true, nil
}

func (r *LedgerRepo) ListByUser(_ context.Context, userID string, limit int) ([]domain.LedgerEntry, error) {
	r.mu.RLock()
	out := []domain.LedgerEntry{}
	for _, e := range r.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out[:clampLimit(len(out), limit)], nil
}

func (r *LedgerRepo) Balance(_ context.Context, userID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := 0
	for _, e := range r.entries {
		if e.UserID == userID {
			total += e.Change
		}
	}
	return total, nil
}

func (r *LedgerRepo) Ranking(_ context.Context, limit int) ([]domain.RankEntry, error) {
	r.mu.RLock()
	totals := map[string]int{}
	for _, e := range r.entries {
		totals[e.UserID] += e.Change
	}
	r.mu.RUnlock()

	out := make([]domain.RankEntry, 0, len(totals))
	for user, total := range totals {
		out = append(out, domain.RankEntry{UserID: user, Total: total})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].UserID < out[j].UserID
	})
	return out[:clampLimit(len(out), limit)], nil
}
