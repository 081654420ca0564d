package adapter

import (
	"context"

	"ropa-suggestions/internal/domain/model"
)

// SuggestionJobBackend is the port for the remote suggestion job queue.
// Every call is scoped to one (tenant, entity_type, entity_id).
type SuggestionJobBackend interface {
	CreateJob(ctx context.Context, ref model.EntityRef, req model.CreateSuggestionJobRequest) (*model.CreatedSuggestionJob, error)
	GetJob(ctx context.Context, ref model.EntityRef, jobID string) (*model.SuggestionJob, error)
	// ListJobs returns summaries only; use GetJob for suggestions and errors.
	ListJobs(ctx context.Context, ref model.EntityRef) ([]model.SuggestionJobSummary, error)
}
