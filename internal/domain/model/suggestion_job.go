package model

import (
	"fmt"
	"time"

	"ropa-suggestions/internal/domain"
)

type SuggestionJobStatus string

const (
	SuggestionJobPending    SuggestionJobStatus = "pending"
	SuggestionJobProcessing SuggestionJobStatus = "processing"
	SuggestionJobCompleted  SuggestionJobStatus = "completed"
	SuggestionJobFailed     SuggestionJobStatus = "failed"
)

// ParseSuggestionJobStatus accepts exactly the four values the backend transmits.
func ParseSuggestionJobStatus(s string) (SuggestionJobStatus, error) {
	switch st := SuggestionJobStatus(s); st {
	case SuggestionJobPending, SuggestionJobProcessing, SuggestionJobCompleted, SuggestionJobFailed:
		return st, nil
	default:
		return "", fmt.Errorf("%w: %q", domain.ErrUnexpectedJobStatus, s)
	}
}

// IsTerminal reports whether polling should stop for a job in this status.
func (s SuggestionJobStatus) IsTerminal() bool {
	return s == SuggestionJobCompleted || s == SuggestionJobFailed
}

// SuggestionJob is the orchestrator's view of one backend suggestion job.
type SuggestionJob struct {
	JobID            string              `json:"job_id"`
	FieldName        string              `json:"field_name"`
	FieldLabel       string              `json:"field_label"`
	Status           SuggestionJobStatus `json:"status"`
	Suggestions      []string            `json:"suggestions,omitempty"`       // only when completed
	GeneralStatement string              `json:"general_statement,omitempty"` // explanation from the model
	ErrorMessage     string              `json:"error_message,omitempty"`     // only when failed
	Model            string              `json:"model,omitempty"`
	TokensUsed       int                 `json:"tokens_used,omitempty"`
	CostUSD          float64             `json:"cost_usd,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
	CompletedAt      *time.Time          `json:"completed_at,omitempty"`
}

// HasSuggestions is true for a completed job carrying at least one value.
func (j *SuggestionJob) HasSuggestions() bool {
	return j != nil && j.Status == SuggestionJobCompleted && len(j.Suggestions) > 0
}

// NewerThan compares creation time; equal timestamps are not newer.
func (j *SuggestionJob) NewerThan(other *SuggestionJob) bool {
	if other == nil {
		return true
	}
	return j.CreatedAt.After(other.CreatedAt)
}

// FresherThan compares two copies of the same job. A terminal copy beats a
// non-terminal one, otherwise the later UpdatedAt wins.
func (j *SuggestionJob) FresherThan(other *SuggestionJob) bool {
	if other == nil {
		return true
	}
	if j.Status.IsTerminal() != other.Status.IsTerminal() {
		return j.Status.IsTerminal()
	}
	return j.UpdatedAt.After(other.UpdatedAt)
}

// Clone returns a deep copy so callers outside the orchestrator cannot mutate its state.
func (j *SuggestionJob) Clone() *SuggestionJob {
	if j == nil {
		return nil
	}
	cp := *j
	if j.Suggestions != nil {
		cp.Suggestions = append([]string(nil), j.Suggestions...)
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

// SuggestionJobSummary is a list item; full detail requires fetching the job.
type SuggestionJobSummary struct {
	JobID       string
	FieldName   string
	FieldLabel  string
	Status      SuggestionJobStatus
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// FieldSpec identifies a form field a suggestion can be requested for.
type FieldSpec struct {
	Name  string `json:"name"`
	Type  string `json:"type"` // text, select, multi-select, boolean, ...
	Label string `json:"label"`
}

type CreateSuggestionJobRequest struct {
	FieldName    string
	FieldType    string
	FieldLabel   string
	CurrentValue string
	FormData     map[string]any
	FieldOptions []string
}

type CreatedSuggestionJob struct {
	JobID     string
	Status    SuggestionJobStatus
	CreatedAt time.Time
}
