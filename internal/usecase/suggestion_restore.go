package usecase

import (
	"context"
	"fmt"
	"sync"

	"ropa-suggestions/internal/domain/model"
	"ropa-suggestions/internal/infra/logging"
	"ropa-suggestions/internal/infra/metrics"
)

// RestoreJobs reloads job history for the bound entity and reconciles it with
// in-memory state. A second call while one is in flight for the same binding
// is a no-op. Failures are logged and leave state untouched.
func (o *SuggestionOrchestrator) RestoreJobs(ctx context.Context) {
	o.mu.Lock()
	if !o.bound || o.closed {
		o.mu.Unlock()
		metrics.IncRestoration("skipped", 0)
		return
	}
	if o.restoring && o.restoringGen == o.gen {
		o.mu.Unlock()
		metrics.IncRestoration("skipped", 0)
		return
	}
	ref, gen := o.ref, o.gen
	o.restoring, o.restoringGen = true, gen
	snap := o.commitLocked()
	o.mu.Unlock()
	o.publish(snap)

	defer o.finishRestore(gen)

	log := logging.With(logging.WithEntity(ctx, ref.String()), o.log)
	defer logging.TraceDuration(log, "SuggestionOrchestrator.RestoreJobs")()

	restored, err := o.fetchRestorable(ctx, ref, gen)
	if err != nil {
		metrics.IncRestoration("error", 0)
		log.Warn().Err(err).Msg("suggestion restoration failed")
		return
	}
	if restored == nil {
		metrics.IncRestoration("stale", 0)
		log.Debug().Msg("binding changed during restoration; result discarded")
		return
	}

	o.mu.Lock()
	if o.gen != gen {
		o.mu.Unlock()
		metrics.IncRestoration("stale", 0)
		log.Debug().Msg("binding changed during restoration; result discarded")
		return
	}
	jobs, active := reconcileRestored(o.state, restored)
	o.state.jobs = jobs
	o.state.active = active
	for field := range o.state.pollAttempts {
		if _, ok := active[field]; !ok {
			delete(o.state.pollAttempts, field)
		}
	}
	snap = o.commitLocked()
	o.mu.Unlock()

	metrics.IncRestoration("applied", len(restored))
	log.Info().Int("restored", len(restored)).Int("active", len(active)).Msg("suggestion jobs restored")
	o.publish(snap)
	o.syncPoller()
}

func (o *SuggestionOrchestrator) finishRestore(gen uint64) {
	o.mu.Lock()
	if o.gen != gen || !o.restoring {
		o.mu.Unlock()
		return
	}
	o.restoring = false
	snap := o.commitLocked()
	o.mu.Unlock()
	o.publish(snap)
}

// fetchRestorable performs the network half of restoration. It returns a nil
// slice without error when the binding changed between steps.
func (o *SuggestionOrchestrator) fetchRestorable(ctx context.Context, ref model.EntityRef, gen uint64) ([]*model.SuggestionJob, error) {
	listCtx, cancel := context.WithTimeout(ctx, o.opts.RequestTimeout)
	items, err := o.backend.ListJobs(listCtx, ref)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	latest := latestPerField(items)

	var persisted []string
	if o.declined != nil {
		storeCtx, cancel := context.WithTimeout(ctx, o.opts.RequestTimeout)
		persisted, err = o.declined.List(storeCtx, ref.Scope())
		cancel()
		if err != nil {
			return nil, fmt.Errorf("load declined jobs: %w", err)
		}
	}

	o.mu.Lock()
	if o.gen != gen {
		o.mu.Unlock()
		return nil, nil
	}
	o.state.markDeclined(persisted...)
	candidates, purge := filterRestoreCandidates(latest, o.state.isDeclined, o.state.cleared)
	for _, field := range purge {
		delete(o.state.cleared, field)
	}
	o.mu.Unlock()

	if len(candidates) == 0 {
		return []*model.SuggestionJob{}, nil
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		restored = make([]*model.SuggestionJob, 0, len(candidates))
		firstErr error
	)
	for field, it := range candidates {
		wg.Add(1)
		go func(field string, it model.SuggestionJobSummary) {
			defer wg.Done()
			getCtx, cancel := context.WithTimeout(ctx, o.opts.RequestTimeout)
			job, err := o.backend.GetJob(getCtx, ref, it.JobID)
			cancel()

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("get job %s: %w", it.JobID, err)
				}
				return
			}
			job.JobID = it.JobID
			job.FieldName = field
			if job.FieldLabel == "" {
				job.FieldLabel = it.FieldLabel
			}
			if job.CreatedAt.IsZero() {
				job.CreatedAt = it.CreatedAt
			}
			restored = append(restored, job)
		}(field, it)
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	return restored, nil
}
