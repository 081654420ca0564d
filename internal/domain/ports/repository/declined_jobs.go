package repository

import (
	"context"

	"ropa-suggestions/internal/domain/model"
)

// DeclinedJobRepository persists the job ids a user dismissed, per entity.
// Entries are append-only; nothing in the application removes them.
type DeclinedJobRepository interface {
	Add(ctx context.Context, scope model.DeclinedScope, jobIDs ...string) error
	List(ctx context.Context, scope model.DeclinedScope) ([]string, error)
}
