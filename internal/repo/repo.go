package repo

import (
	"database/sql"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// Store bundles every repository the lifecycle engines need.
type Store struct {
	Orders  OrderRepo
	Tasks   TaskRepo
	Reviews ReviewRepo
	Ledger  LedgerRepo
	Trust   TrustRepo
	Audit   AuditRepo
}

func NewPostgresStore(db *sqlx.DB) Store {
	return Store{
		Orders:  NewOrderRepo(db),
		Tasks:   NewTaskRepo(db),
		Reviews: NewReviewRepo(db),
		Ledger:  NewLedgerRepo(db),
		Trust:   NewTrustRepo(db),
		Audit:   NewAuditRepo(db),
	}
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
