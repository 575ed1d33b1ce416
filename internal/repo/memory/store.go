// Package memory implements the repositories over process-local maps.
// Every write is a compare-and-swap under one mutex per repository, so
// the lifecycle engines see the same conflict semantics as on Postgres.
package memory

import "campus-market/internal/repo"

func NewStore() repo.Store {
	return repo.Store{
		Orders:  NewOrderRepo(),
		Tasks:   NewTaskRepo(),
		Reviews: NewReviewRepo(),
		Ledger:  NewLedgerRepo(),
		Trust:   NewTrustRepo(),
		Audit:   NewAuditRepo(),
	}
}

func clampLimit(n, limit int) int {
	if limit <= 0 || limit > n {
		return n
	}
	return limit
}
