package usecase

import (
	"ropa-suggestions/internal/domain/model"
)

// suggestionState is everything the orchestrator holds for one binding.
// It is not safe for concurrent use; the orchestrator's mutex guards it.
type suggestionState struct {
	jobs         map[string]*model.SuggestionJob // field -> current job
	active       map[string]string               // field -> job id still polled
	cleared      map[string]struct{}             // fields dismissed this session
	declined     map[string]struct{}             // in-memory mirror of the persisted registry
	pollAttempts map[string]int                  // field -> polls for the current job
}

func newSuggestionState() *suggestionState {
	return &suggestionState{
		jobs:         make(map[string]*model.SuggestionJob),
		active:       make(map[string]string),
		cleared:      make(map[string]struct{}),
		declined:     make(map[string]struct{}),
		pollAttempts: make(map[string]int),
	}
}

func (s *suggestionState) isDeclined(jobID string) bool {
	_, ok := s.declined[jobID]
	return ok
}

func (s *suggestionState) isCleared(field string) bool {
	_, ok := s.cleared[field]
	return ok
}

func (s *suggestionState) markDeclined(ids ...string) {
	for _, id := range ids {
		if id != "" {
			s.declined[id] = struct{}{}
		}
	}
}

// install writes a job for its field and tracks it for polling while non-terminal.
func (s *suggestionState) install(job *model.SuggestionJob) {
	s.jobs[job.FieldName] = job
	if job.Status.IsTerminal() {
		delete(s.active, job.FieldName)
	} else {
		s.active[job.FieldName] = job.JobID
	}
}

// forget removes a field from the store, the active set and the attempt counter.
func (s *suggestionState) forget(field string) {
	delete(s.jobs, field)
	delete(s.active, field)
	delete(s.pollAttempts, field)
}

// dismiss is the single-field decline. It returns the declined job id, if any.
func (s *suggestionState) dismiss(field string) string {
	var jobID string
	if job, ok := s.jobs[field]; ok {
		jobID = job.JobID
	} else if id, ok := s.active[field]; ok {
		jobID = id
	}
	s.markDeclined(jobID)
	s.cleared[field] = struct{}{}
	s.forget(field)
	return jobID
}

// dismissAll declines every known job and resets the store. Returns the declined ids.
func (s *suggestionState) dismissAll() []string {
	seen := make(map[string]struct{}, len(s.jobs)+len(s.active))
	ids := make([]string, 0, len(s.jobs))
	collect := func(id string) {
		if _, dup := seen[id]; dup || id == "" {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	for _, job := range s.jobs {
		collect(job.JobID)
	}
	for _, id := range s.active {
		collect(id)
	}
	s.markDeclined(ids...)
	s.jobs = make(map[string]*model.SuggestionJob)
	s.active = make(map[string]string)
	s.cleared = make(map[string]struct{})
	s.pollAttempts = make(map[string]int)
	return ids
}

// activeSuggestions is the read model behind "Accept All (N)".
func (s *suggestionState) activeSuggestions() map[string]*model.SuggestionJob {
	out := make(map[string]*model.SuggestionJob)
	for field, job := range s.jobs {
		if !job.HasSuggestions() || s.isCleared(field) {
			continue
		}
		out[field] = job.Clone()
	}
	return out
}

func (s *suggestionState) snapshotJobs() map[string]*model.SuggestionJob {
	out := make(map[string]*model.SuggestionJob, len(s.jobs))
	for field, job := range s.jobs {
		out[field] = job.Clone()
	}
	return out
}

func (s *suggestionState) snapshotActive() map[string]string {
	out := make(map[string]string, len(s.active))
	for field, id := range s.active {
		out[field] = id
	}
	return out
}
