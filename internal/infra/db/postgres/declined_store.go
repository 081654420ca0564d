package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"ropa-suggestions/internal/domain/model"
	"ropa-suggestions/internal/domain/ports/repository"
	"ropa-suggestions/internal/infra/metrics"
)

var _ repository.DeclinedJobRepository = (*DeclinedJobStore)(nil)

const declinedSchema = `
CREATE TABLE IF NOT EXISTS declined_suggestion_jobs (
    entity_type TEXT        NOT NULL,
    entity_id   TEXT        NOT NULL,
    job_id      TEXT        NOT NULL,
    declined_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (entity_type, entity_id, job_id)
)`

type DeclinedJobStore struct {
	pool *pgxpool.Pool
}

func NewDeclinedJobStore(pool *pgxpool.Pool) *DeclinedJobStore {
	return &DeclinedJobStore{pool: pool}
}

// EnsureSchema creates the table when deploy/postgres/init.sql was not applied.
func (s *DeclinedJobStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, declinedSchema)
	return err
}

// Add inserts all ids in one transaction; ids already present are ignored.
func (s *DeclinedJobStore) Add(ctx context.Context, scope model.DeclinedScope, jobIDs ...string) (err error) {
	if len(jobIDs) == 0 {
		return nil
	}
	defer func() { metrics.IncDeclinedStoreOp("postgres", "add", err) }()

	const q = `
INSERT INTO declined_suggestion_jobs (entity_type, entity_id, job_id)
VALUES ($1, $2, $3)
ON CONFLICT (entity_type, entity_id, job_id) DO NOTHING`
	return withTx(ctx, s.pool, func(tx pgx.Tx) error {
		for _, id := range jobIDs {
			if id == "" {
				continue
			}
			if _, err := tx.Exec(ctx, q, string(scope.EntityType), scope.EntityID, id); err != nil {
				return classify(err)
			}
		}
		return nil
	})
}

func (s *DeclinedJobStore) List(ctx context.Context, scope model.DeclinedScope) (ids []string, err error) {
	defer func() { metrics.IncDeclinedStoreOp("postgres", "list", err) }()

	const q = `
SELECT job_id FROM declined_suggestion_jobs
WHERE entity_type = $1 AND entity_id = $2
ORDER BY job_id`
	rows, err := s.pool.Query(ctx, q, string(scope.EntityType), scope.EntityID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	ids = make([]string, 0)
	for rows.Next() {
		var id string
		if err = rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ErrSchemaMissing means the declined_suggestion_jobs table does not exist.
var ErrSchemaMissing = errors.New("declined_suggestion_jobs table is missing")

func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "42P01" { // undefined_table
		return fmt.Errorf("%w: %s", ErrSchemaMissing, pgErr.Message)
	}
	return err
}
