package usecase

import (
	"ropa-suggestions/internal/domain/model"
)

// pollVerdict is the outcome of the guards around a single poll tick.
type pollVerdict int

const (
	pollApply pollVerdict = iota
	pollDropDeclined
	pollDropCleared
	pollDiscardInactive
	pollDiscardSuperseded
)

func (v pollVerdict) String() string {
	switch v {
	case pollApply:
		return "apply"
	case pollDropDeclined:
		return "declined"
	case pollDropCleared:
		return "cleared"
	case pollDiscardInactive:
		return "inactive"
	case pollDiscardSuperseded:
		return "superseded"
	default:
		return "unknown"
	}
}

// drops reports whether the verdict removes the polled job from the active set.
func (v pollVerdict) drops() bool {
	return v == pollDropDeclined || v == pollDropCleared
}

// checkPollPreconditions runs before the status fetch: a declined job is never fetched.
func checkPollPreconditions(s *suggestionState, jobID string) pollVerdict {
	if s.isDeclined(jobID) {
		return pollDropDeclined
	}
	return pollApply
}

// checkPollResult runs after the fetch returned, in this order: declined,
// cleared, still active, and finally the polled id must match both the
// active entry and the installed job. Anything but pollApply discards the result.
func checkPollResult(s *suggestionState, field, jobID string) pollVerdict {
	if s.isDeclined(jobID) {
		return pollDropDeclined
	}
	if s.isCleared(field) {
		return pollDropCleared
	}
	activeID, ok := s.active[field]
	if !ok {
		return pollDiscardInactive
	}
	stored, ok := s.jobs[field]
	if activeID != jobID || !ok || stored.JobID != jobID {
		return pollDiscardSuperseded
	}
	return pollApply
}

// dropPolled removes field from the active set, but only while it still
// tracks jobID; a newer job for the same field keeps being polled.
func dropPolled(s *suggestionState, field, jobID string) {
	if s.active[field] == jobID {
		delete(s.active, field)
		delete(s.pollAttempts, field)
	}
}

// latestPerField keeps the most recently created summary for every field.
func latestPerField(items []model.SuggestionJobSummary) map[string]model.SuggestionJobSummary {
	latest := make(map[string]model.SuggestionJobSummary, len(items))
	for _, it := range items {
		if it.FieldName == "" || it.JobID == "" {
			continue
		}
		cur, ok := latest[it.FieldName]
		if !ok || it.CreatedAt.After(cur.CreatedAt) {
			latest[it.FieldName] = it
		}
	}
	return latest
}

// filterRestoreCandidates drops declined candidates, then candidates for
// cleared fields. Cleared markers for fields without any remaining
// candidate are stale and returned for purging.
func filterRestoreCandidates(
	latest map[string]model.SuggestionJobSummary,
	isDeclined func(jobID string) bool,
	cleared map[string]struct{},
) (candidates map[string]model.SuggestionJobSummary, purge []string) {
	candidates = make(map[string]model.SuggestionJobSummary, len(latest))
	for field, it := range latest {
		if isDeclined(it.JobID) {
			continue
		}
		candidates[field] = it
	}
	for field := range cleared {
		if _, ok := candidates[field]; ok {
			delete(candidates, field)
			continue
		}
		purge = append(purge, field)
	}
	return candidates, purge
}

// reconcileRestored merges fetched jobs with what is in memory right now.
// A restored job loses to a strictly newer in-memory job, and never
// overrides a decline or a clear that happened during the fetch. When both
// sides hold the same job the fresher copy is kept, so a poll that finished
// during the fetch is not rolled back. In-memory jobs restoration knows
// nothing about are carried over.
func reconcileRestored(s *suggestionState, restored []*model.SuggestionJob) (map[string]*model.SuggestionJob, map[string]string) {
	jobs := make(map[string]*model.SuggestionJob, len(restored)+len(s.jobs))
	active := make(map[string]string)

	for _, job := range restored {
		if s.isDeclined(job.JobID) || s.isCleared(job.FieldName) {
			continue
		}
		if cur, ok := s.jobs[job.FieldName]; ok {
			if cur.NewerThan(job) {
				continue
			}
			if cur.JobID == job.JobID && cur.FresherThan(job) {
				job = cur
			}
		}
		jobs[job.FieldName] = job
		if !job.Status.IsTerminal() {
			active[job.FieldName] = job.JobID
		}
	}

	for field, cur := range s.jobs {
		if _, ok := jobs[field]; ok {
			continue
		}
		if s.isDeclined(cur.JobID) || s.isCleared(field) {
			continue
		}
		jobs[field] = cur
		if id, ok := s.active[field]; ok && id == cur.JobID {
			active[field] = id
		}
	}
	return jobs, active
}
