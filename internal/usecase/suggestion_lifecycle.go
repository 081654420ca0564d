package usecase

import (
	"context"
	"fmt"
	"time"

	"ropa-suggestions/internal/domain"
	"ropa-suggestions/internal/domain/model"
	"ropa-suggestions/internal/domain/ports/adapter"
	"ropa-suggestions/internal/infra/logging"
	"ropa-suggestions/internal/infra/metrics"
)

const pollTimeoutMessage = "suggestion timed out"

// CreateJob requests a suggestion for one field and starts tracking it.
// With no bound entity it notifies the user and returns domain.ErrMissingEntity
// without touching any state.
func (o *SuggestionOrchestrator) CreateJob(
	ctx context.Context,
	field model.FieldSpec,
	currentValue string,
	formContext map[string]any,
	fieldOptions []string,
) (string, error) {
	return o.createJob(ctx, field, currentValue, formContext, fieldOptions, true)
}

func (o *SuggestionOrchestrator) createJob(
	ctx context.Context,
	field model.FieldSpec,
	currentValue string,
	formContext map[string]any,
	fieldOptions []string,
	notify bool,
) (string, error) {
	o.mu.Lock()
	ref, gen, bound := o.ref, o.gen, o.bound
	o.mu.Unlock()

	if !bound {
		if notify {
			o.notify(ctx, adapter.Notification{
				Level:   adapter.NotifyError,
				Title:   "Suggestion unavailable",
				Message: "Save the record before requesting AI suggestions.",
			})
		}
		return "", domain.ErrMissingEntity
	}
	if field.Name == "" {
		return "", fmt.Errorf("%w: field name is required", domain.ErrInvalidArgument)
	}

	log := logging.With(logging.WithEntity(ctx, ref.String()), o.log)
	label := field.Label
	if label == "" {
		label = field.Name
	}

	reqCtx, cancel := context.WithTimeout(ctx, o.opts.RequestTimeout)
	created, err := o.backend.CreateJob(reqCtx, ref, model.CreateSuggestionJobRequest{
		FieldName:    field.Name,
		FieldType:    field.Type,
		FieldLabel:   field.Label,
		CurrentValue: currentValue,
		FormData:     formContext,
		FieldOptions: fieldOptions,
	})
	cancel()
	if err != nil {
		metrics.IncJobCreated(string(ref.Type), false)
		log.Warn().Err(err).Str("field", field.Name).Msg("suggestion job creation failed")
		if notify {
			o.notify(ctx, adapter.Notification{
				Level:   adapter.NotifyError,
				Title:   "Suggestion failed",
				Message: fmt.Sprintf("Could not request a suggestion for %s: %v", label, err),
			})
		}
		return "", fmt.Errorf("%w: %s: %w", domain.ErrJobCreation, field.Name, err)
	}
	if created == nil || created.JobID == "" {
		metrics.IncJobCreated(string(ref.Type), false)
		return "", fmt.Errorf("%w: %s: empty job id", domain.ErrJobCreation, field.Name)
	}
	metrics.IncJobCreated(string(ref.Type), true)

	createdAt := created.CreatedAt
	if createdAt.IsZero() {
		createdAt = o.now().UTC()
	}
	job := &model.SuggestionJob{
		JobID:      created.JobID,
		FieldName:  field.Name,
		FieldLabel: field.Label,
		Status:     model.SuggestionJobPending,
		CreatedAt:  createdAt,
		UpdatedAt:  createdAt,
	}

	o.mu.Lock()
	if o.gen != gen {
		o.mu.Unlock()
		log.Debug().Str("field", field.Name).Str("job_id", job.JobID).Msg("binding changed during job creation; not tracking")
		return job.JobID, nil
	}
	delete(o.state.cleared, field.Name)
	if o.state.isDeclined(job.JobID) {
		// The backend hands back its pending job for the field, which the user dismissed.
		o.mu.Unlock()
		log.Info().Str("field", field.Name).Str("job_id", job.JobID).Msg("backend returned a declined job; not tracking")
		if notify {
			o.notify(ctx, adapter.Notification{
				Level:   adapter.NotifyWarning,
				Title:   "Suggestion in progress",
				Message: fmt.Sprintf("A suggestion for %s is still being generated, try again shortly.", label),
			})
		}
		return "", fmt.Errorf("%w: %s: %w", domain.ErrJobCreation, field.Name, domain.ErrJobStillRunning)
	}
	switch cur, ok := o.state.jobs[field.Name]; {
	case ok && cur.JobID == job.JobID:
		// backend de-duplicated onto the job already tracked
		if !cur.Status.IsTerminal() {
			o.state.active[field.Name] = cur.JobID
		}
	case ok && cur.NewerThan(job):
		log.Debug().Str("field", field.Name).Str("job_id", job.JobID).Msg("a newer job is already tracked")
	default:
		o.state.install(job)
		delete(o.state.pollAttempts, field.Name)
	}
	snap := o.commitLocked()
	o.mu.Unlock()

	log.Info().Str("field", field.Name).Str("job_id", job.JobID).Msg("suggestion job created")
	o.publish(snap)
	o.syncPoller()
	return job.JobID, nil
}

// PollJobStatus runs one guarded poll for the job tracked on fieldName.
func (o *SuggestionOrchestrator) PollJobStatus(ctx context.Context, fieldName, jobID string) {
	o.mu.Lock()
	ref, gen, bound := o.ref, o.gen, o.bound
	o.mu.Unlock()
	if !bound {
		return
	}
	o.pollJob(ctx, ref, gen, fieldName, jobID)
}

func (o *SuggestionOrchestrator) pollJob(ctx context.Context, ref model.EntityRef, gen uint64, field, jobID string) {
	o.mu.Lock()
	if o.gen != gen {
		o.mu.Unlock()
		metrics.IncPollDiscarded("rebound")
		return
	}
	if v := checkPollPreconditions(o.state, jobID); v != pollApply {
		o.dropLocked(field, jobID, v)
		return
	}
	o.mu.Unlock()

	reqCtx, cancel := context.WithTimeout(ctx, o.opts.RequestTimeout)
	job, err := o.backend.GetJob(reqCtx, ref, jobID)
	cancel()

	if err != nil {
		metrics.IncPoll("error")
		o.log.Debug().Err(err).Str("entity", ref.String()).Str("field", field).Str("job_id", jobID).Msg("suggestion poll failed")
		o.countFailedPoll(gen, field, jobID)
		return
	}
	metrics.IncPoll("ok")

	o.mu.Lock()
	if o.gen != gen {
		o.mu.Unlock()
		metrics.IncPollDiscarded("rebound")
		return
	}
	if v := checkPollResult(o.state, field, jobID); v != pollApply {
		if v.drops() {
			o.dropLocked(field, jobID, v)
			return
		}
		o.mu.Unlock()
		metrics.IncPollDiscarded(v.String())
		return
	}

	prev := o.state.jobs[field]
	job.JobID = jobID
	job.FieldName = field
	if job.FieldLabel == "" {
		job.FieldLabel = prev.FieldLabel
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = prev.CreatedAt
	}
	timedOut := false
	if !job.Status.IsTerminal() {
		o.state.pollAttempts[field]++
		if o.opts.MaxPollAttempts > 0 && o.state.pollAttempts[field] >= o.opts.MaxPollAttempts {
			markTimedOut(job, o.now().UTC())
			timedOut = true
		}
	}
	o.state.install(job)
	if job.Status.IsTerminal() {
		delete(o.state.pollAttempts, field)
	}
	snap := o.commitLocked()
	o.mu.Unlock()

	o.publish(snap)
	if job.Status.IsTerminal() {
		finished := string(job.Status)
		if timedOut {
			finished = "timeout"
			o.log.Warn().Str("entity", ref.String()).Str("field", field).Str("job_id", jobID).Msg("suggestion job exceeded poll attempts")
		}
		metrics.IncJobFinished(finished)
		o.syncPoller()
	}
}

// countFailedPoll charges a failed fetch against the attempt budget so an
// unreachable job cannot keep the poller alive forever.
func (o *SuggestionOrchestrator) countFailedPoll(gen uint64, field, jobID string) {
	if o.opts.MaxPollAttempts <= 0 {
		return
	}
	o.mu.Lock()
	if o.gen != gen || checkPollResult(o.state, field, jobID) != pollApply {
		o.mu.Unlock()
		return
	}
	o.state.pollAttempts[field]++
	if o.state.pollAttempts[field] < o.opts.MaxPollAttempts {
		o.mu.Unlock()
		return
	}
	job := o.state.jobs[field].Clone()
	markTimedOut(job, o.now().UTC())
	o.state.install(job)
	delete(o.state.pollAttempts, field)
	snap := o.commitLocked()
	o.mu.Unlock()

	metrics.IncJobFinished("timeout")
	o.publish(snap)
	o.syncPoller()
}

// dropLocked removes a declined or cleared job from polling. It releases mu.
func (o *SuggestionOrchestrator) dropLocked(field, jobID string, v pollVerdict) {
	dropPolled(o.state, field, jobID)
	snap := o.commitLocked()
	o.mu.Unlock()

	metrics.IncPollDiscarded(v.String())
	o.publish(snap)
	o.syncPoller()
}

func markTimedOut(job *model.SuggestionJob, now time.Time) {
	job.Status = model.SuggestionJobFailed
	job.ErrorMessage = pollTimeoutMessage
	job.Suggestions = nil
	job.UpdatedAt = now
	job.CompletedAt = &now
}

// pollTick fans one poll per active job out to the worker pool.
// It never stops the scheduler itself; that happens from syncPoller.
func (o *SuggestionOrchestrator) pollTick(ctx context.Context) {
	o.mu.Lock()
	if !o.enabled || !o.bound || o.closed {
		o.mu.Unlock()
		return
	}
	ref, gen := o.ref, o.gen
	entries := o.state.snapshotActive()
	o.mu.Unlock()

	if len(entries) == 0 {
		go o.syncPoller()
		return
	}
	for field, jobID := range entries {
		field, jobID := field, jobID
		err := o.pool.Submit(func(ctx context.Context) error {
			o.pollJob(ctx, ref, gen, field, jobID)
			return nil
		})
		if err != nil {
			metrics.IncPoll("skipped")
			o.log.Debug().Err(err).Str("field", field).Msg("poll not scheduled this tick")
		}
	}
}
