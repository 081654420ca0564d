package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"ropa-suggestions/internal/domain"
	"ropa-suggestions/internal/domain/model"
	"ropa-suggestions/internal/domain/ports/adapter"
	"ropa-suggestions/internal/infra/logging"
	"ropa-suggestions/internal/infra/metrics"

	"github.com/oklog/ulid/v2"
)

// FieldOutcome is the per-field result of a bulk request.
type FieldOutcome struct {
	Field string `json:"field"`
	Label string `json:"label"`
	JobID string `json:"job_id,omitempty"`
	Error string `json:"error,omitempty"`
	Err   error  `json:"-"`
}

type SuggestAllResult struct {
	BatchID   string         `json:"batch_id"`
	Succeeded []FieldOutcome `json:"succeeded"`
	Failed    []FieldOutcome `json:"failed"`
}

// SuggestAll creates one job per field concurrently. A failing field never
// blocks the others; the outcome is reported as a single notification.
func (o *SuggestionOrchestrator) SuggestAll(
	ctx context.Context,
	fields []model.FieldSpec,
	formContext map[string]any,
	fieldOptions map[string][]string,
) (*SuggestAllResult, error) {
	o.mu.Lock()
	ref, bound := o.ref, o.bound
	if bound {
		for _, f := range fields {
			delete(o.state.cleared, f.Name)
		}
	}
	o.mu.Unlock()

	if !bound {
		o.notify(ctx, adapter.Notification{
			Level:   adapter.NotifyError,
			Title:   "Suggestions unavailable",
			Message: "Save the record before requesting AI suggestions.",
		})
		return nil, domain.ErrMissingEntity
	}

	res := &SuggestAllResult{BatchID: ulid.Make().String()}
	ctx = logging.WithBatchID(logging.WithEntity(ctx, ref.String()), res.BatchID)
	log := logging.With(ctx, o.log)

	outcomes := make([]FieldOutcome, len(fields))
	var wg sync.WaitGroup
	for i, f := range fields {
		wg.Add(1)
		go func(i int, f model.FieldSpec) {
			defer wg.Done()
			label := f.Label
			if label == "" {
				label = f.Name
			}
			out := FieldOutcome{Field: f.Name, Label: label}
			id, err := o.createJob(ctx, f, "", formContext, fieldOptions[f.Name], false)
			if err != nil {
				out.Err = err
				out.Error = err.Error()
			} else {
				out.JobID = id
			}
			outcomes[i] = out
		}(i, f)
	}
	wg.Wait()

	for _, out := range outcomes {
		if out.Err != nil {
			res.Failed = append(res.Failed, out)
		} else {
			res.Succeeded = append(res.Succeeded, out)
		}
	}
	log.Info().Int("requested", len(fields)).Int("succeeded", len(res.Succeeded)).Int("failed", len(res.Failed)).
		Msg("bulk suggestion request finished")
	o.notify(ctx, summarizeBatch(res))
	return res, nil
}

func summarizeBatch(res *SuggestAllResult) adapter.Notification {
	ok, failed := len(res.Succeeded), len(res.Failed)
	n := adapter.Notification{Title: "AI suggestions"}
	switch {
	case failed == 0:
		n.Level = adapter.NotifySuccess
		n.Message = fmt.Sprintf("Requested suggestions for %d field(s).", ok)
	case ok == 0:
		n.Level = adapter.NotifyError
		n.Message = fmt.Sprintf("Could not request suggestions for %d field(s).", failed)
	default:
		n.Level = adapter.NotifyWarning
		n.Message = fmt.Sprintf("Requested suggestions for %d field(s); %d failed.", ok, failed)
	}
	for _, f := range res.Failed {
		n.Details = append(n.Details, fmt.Sprintf("%s: %s", f.Label, f.Error))
	}
	return n
}

// DeclineAll declines every tracked job and resets the store. It returns the
// number of suggestions that were on offer.
func (o *SuggestionOrchestrator) DeclineAll(ctx context.Context) int {
	o.mu.Lock()
	if !o.bound {
		o.mu.Unlock()
		return 0
	}
	offered := len(o.state.activeSuggestions())
	ids := o.state.dismissAll()
	o.persistDeclined(o.ref.Scope(), ids)
	ref := o.ref
	snap := o.commitLocked()
	o.mu.Unlock()

	metrics.AddDecisions("decline", "all", len(ids))
	logging.With(logging.WithEntity(ctx, ref.String()), o.log).Info().
		Int("declined_jobs", len(ids)).Int("suggestions", offered).Msg("declined all suggestions")
	o.publish(snap)
	o.syncPoller()
	return offered
}

// ClearJobStatus dismisses one field immediately; the decline is persisted in
// the background.
func (o *SuggestionOrchestrator) ClearJobStatus(fieldName string) {
	o.mu.Lock()
	if !o.bound {
		o.mu.Unlock()
		return
	}
	jobID := o.state.dismiss(fieldName)
	if jobID != "" {
		o.persistDeclined(o.ref.Scope(), []string{jobID})
	}
	snap := o.commitLocked()
	o.mu.Unlock()

	if jobID != "" {
		metrics.AddDecisions("decline", "single", 1)
	}
	o.publish(snap)
	o.syncPoller()
}

// GetAllActiveSuggestions returns completed jobs with suggestions for fields
// that have not been dismissed. It has no side effects.
func (o *SuggestionOrchestrator) GetAllActiveSuggestions() map[string]*model.SuggestionJob {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.activeSuggestions()
}

// AcceptSuggestion hands back the field's suggested values and retires the job
// so it is not offered again.
func (o *SuggestionOrchestrator) AcceptSuggestion(fieldName string) ([]string, error) {
	o.mu.Lock()
	if !o.bound {
		o.mu.Unlock()
		return nil, domain.ErrMissingEntity
	}
	job, ok := o.state.activeSuggestions()[fieldName]
	if !ok {
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", domain.ErrNoSuggestion, fieldName)
	}
	o.state.dismiss(fieldName)
	o.persistDeclined(o.ref.Scope(), []string{job.JobID})
	snap := o.commitLocked()
	o.mu.Unlock()

	metrics.AddDecisions("accept", "single", 1)
	o.publish(snap)
	o.syncPoller()
	return job.Suggestions, nil
}

// AcceptAll accepts every active suggestion at once.
func (o *SuggestionOrchestrator) AcceptAll() map[string][]string {
	o.mu.Lock()
	if !o.bound {
		o.mu.Unlock()
		return map[string][]string{}
	}
	active := o.state.activeSuggestions()
	out := make(map[string][]string, len(active))
	ids := make([]string, 0, len(active))
	for field, job := range active {
		out[field] = job.Suggestions
		ids = append(ids, job.JobID)
		o.state.dismiss(field)
	}
	sort.Strings(ids)
	o.persistDeclined(o.ref.Scope(), ids)
	snap := o.commitLocked()
	o.mu.Unlock()

	metrics.AddDecisions("accept", "all", len(ids))
	o.publish(snap)
	o.syncPoller()
	return out
}
