//go:build !integration

package usecase

import (
	"testing"
	"time"

	"ropa-suggestions/internal/domain/model"

	"github.com/stretchr/testify/assert"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func stateWith(field, jobID string, status model.SuggestionJobStatus) *suggestionState {
	s := newSuggestionState()
	s.install(&model.SuggestionJob{JobID: jobID, FieldName: field, Status: status, CreatedAt: t0})
	return s
}

func TestCheckPollResult(t *testing.T) {
	tests := []struct {
		name  string
		setup func() *suggestionState
		field string
		jobID string
		want  pollVerdict
	}{
		{
			name:  "tracked job passes",
			setup: func() *suggestionState { return stateWith("purpose", "job-1", model.SuggestionJobProcessing) },
			field: "purpose", jobID: "job-1", want: pollApply,
		},
		{
			name: "declined wins over everything",
			setup: func() *suggestionState {
				s := stateWith("purpose", "job-1", model.SuggestionJobProcessing)
				s.markDeclined("job-1")
				s.cleared["purpose"] = struct{}{}
				return s
			},
			field: "purpose", jobID: "job-1", want: pollDropDeclined,
		},
		{
			name: "cleared field",
			setup: func() *suggestionState {
				s := stateWith("purpose", "job-1", model.SuggestionJobProcessing)
				s.cleared["purpose"] = struct{}{}
				return s
			},
			field: "purpose", jobID: "job-1", want: pollDropCleared,
		},
		{
			name: "no longer active",
			setup: func() *suggestionState {
				s := stateWith("purpose", "job-1", model.SuggestionJobProcessing)
				delete(s.active, "purpose")
				return s
			},
			field: "purpose", jobID: "job-1", want: pollDiscardInactive,
		},
		{
			name:  "newer job installed",
			setup: func() *suggestionState { return stateWith("purpose", "job-2", model.SuggestionJobPending) },
			field: "purpose", jobID: "job-1", want: pollDiscardSuperseded,
		},
		{
			name: "active id matches but stored job differs",
			setup: func() *suggestionState {
				s := stateWith("purpose", "job-2", model.SuggestionJobPending)
				s.active["purpose"] = "job-1"
				return s
			},
			field: "purpose", jobID: "job-1", want: pollDiscardSuperseded,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, checkPollResult(tc.setup(), tc.field, tc.jobID))
		})
	}
}

func TestCheckPollPreconditions(t *testing.T) {
	s := stateWith("purpose", "job-1", model.SuggestionJobPending)
	assert.Equal(t, pollApply, checkPollPreconditions(s, "job-1"))
	s.markDeclined("job-1")
	assert.Equal(t, pollDropDeclined, checkPollPreconditions(s, "job-1"))
	assert.True(t, pollDropDeclined.drops())
	assert.False(t, pollDiscardSuperseded.drops())
}

func TestDropPolledKeepsNewerJob(t *testing.T) {
	s := stateWith("purpose", "job-2", model.SuggestionJobPending)
	dropPolled(s, "purpose", "job-1")
	assert.Equal(t, "job-2", s.active["purpose"])

	dropPolled(s, "purpose", "job-2")
	assert.NotContains(t, s.active, "purpose")
}

func TestLatestPerField(t *testing.T) {
	got := latestPerField([]model.SuggestionJobSummary{
		{JobID: "a", FieldName: "purpose", CreatedAt: t0},
		{JobID: "b", FieldName: "purpose", CreatedAt: t0.Add(time.Minute)},
		{JobID: "c", FieldName: "retention", CreatedAt: t0},
		{JobID: "", FieldName: "retention", CreatedAt: t0.Add(time.Hour)},
		{JobID: "d", FieldName: "", CreatedAt: t0},
	})
	assert.Len(t, got, 2)
	assert.Equal(t, "b", got["purpose"].JobID)
	assert.Equal(t, "c", got["retention"].JobID)
}

func TestFilterRestoreCandidates(t *testing.T) {
	latest := map[string]model.SuggestionJobSummary{
		"purpose":   {JobID: "job-1", FieldName: "purpose"},
		"retention": {JobID: "job-2", FieldName: "retention"},
		"recipient": {JobID: "job-3", FieldName: "recipient"},
	}
	declined := map[string]bool{"job-1": true}
	cleared := map[string]struct{}{"purpose": {}, "retention": {}, "gone": {}}

	candidates, purge := filterRestoreCandidates(latest, func(id string) bool { return declined[id] }, cleared)

	assert.Equal(t, map[string]model.SuggestionJobSummary{
		"recipient": {JobID: "job-3", FieldName: "recipient"},
	}, candidates)
	assert.ElementsMatch(t, []string{"purpose", "gone"}, purge)
}

func TestReconcileRestored(t *testing.T) {
	s := newSuggestionState()
	s.install(&model.SuggestionJob{JobID: "mem-new", FieldName: "purpose", Status: model.SuggestionJobPending, CreatedAt: t0.Add(time.Hour)})
	s.install(&model.SuggestionJob{JobID: "mem-old", FieldName: "retention", Status: model.SuggestionJobPending, CreatedAt: t0})
	s.install(&model.SuggestionJob{JobID: "mem-only", FieldName: "recipient", Status: model.SuggestionJobCompleted, Suggestions: []string{"x"}, CreatedAt: t0})
	s.markDeclined("declined-late")
	s.cleared["legal_basis"] = struct{}{}

	jobs, active := reconcileRestored(s, []*model.SuggestionJob{
		{JobID: "rest-purpose", FieldName: "purpose", Status: model.SuggestionJobCompleted, CreatedAt: t0},
		{JobID: "rest-retention", FieldName: "retention", Status: model.SuggestionJobProcessing, CreatedAt: t0.Add(time.Minute)},
		{JobID: "declined-late", FieldName: "subjects", Status: model.SuggestionJobCompleted, CreatedAt: t0},
		{JobID: "rest-legal", FieldName: "legal_basis", Status: model.SuggestionJobCompleted, CreatedAt: t0},
	})

	assert.Equal(t, "mem-new", jobs["purpose"].JobID)
	assert.Equal(t, "rest-retention", jobs["retention"].JobID)
	assert.Equal(t, "mem-only", jobs["recipient"].JobID)
	assert.NotContains(t, jobs, "subjects")
	assert.NotContains(t, jobs, "legal_basis")
	assert.Equal(t, map[string]string{"purpose": "mem-new", "retention": "rest-retention"}, active)
}

func TestReconcileRestoredKeepsFresherCopy(t *testing.T) {
	s := newSuggestionState()
	s.install(&model.SuggestionJob{JobID: "job-1", FieldName: "purpose", Status: model.SuggestionJobCompleted,
		Suggestions: []string{"Newsletter delivery"}, CreatedAt: t0, UpdatedAt: t0.Add(2 * time.Minute)})
	s.install(&model.SuggestionJob{JobID: "job-2", FieldName: "retention", Status: model.SuggestionJobProcessing,
		CreatedAt: t0, UpdatedAt: t0.Add(3 * time.Minute)})
	s.install(&model.SuggestionJob{JobID: "job-3", FieldName: "recipient", Status: model.SuggestionJobPending,
		CreatedAt: t0, UpdatedAt: t0})

	jobs, active := reconcileRestored(s, []*model.SuggestionJob{
		{JobID: "job-1", FieldName: "purpose", Status: model.SuggestionJobProcessing, CreatedAt: t0, UpdatedAt: t0.Add(time.Minute)},
		{JobID: "job-2", FieldName: "retention", Status: model.SuggestionJobPending, CreatedAt: t0, UpdatedAt: t0.Add(time.Minute)},
		{JobID: "job-3", FieldName: "recipient", Status: model.SuggestionJobCompleted, Suggestions: []string{"Mail provider"},
			CreatedAt: t0, UpdatedAt: t0.Add(time.Minute)},
	})

	t.Run("terminal in-memory copy survives a stale fetch", func(t *testing.T) {
		assert.Equal(t, model.SuggestionJobCompleted, jobs["purpose"].Status)
		assert.Equal(t, []string{"Newsletter delivery"}, jobs["purpose"].Suggestions)
		assert.NotContains(t, active, "purpose")
	})

	t.Run("later update wins", func(t *testing.T) {
		assert.Equal(t, model.SuggestionJobProcessing, jobs["retention"].Status)
		assert.Equal(t, "job-2", active["retention"])
	})

	t.Run("fresher restored copy replaces memory", func(t *testing.T) {
		assert.Equal(t, model.SuggestionJobCompleted, jobs["recipient"].Status)
		assert.NotContains(t, active, "recipient")
	})
}

func TestSuggestionStateDismiss(t *testing.T) {
	s := stateWith("purpose", "job-1", model.SuggestionJobCompleted)
	assert.Equal(t, "job-1", s.dismiss("purpose"))
	assert.True(t, s.isDeclined("job-1"))
	assert.True(t, s.isCleared("purpose"))
	assert.NotContains(t, s.jobs, "purpose")

	assert.Equal(t, "", s.dismiss("unknown"))
	assert.True(t, s.isCleared("unknown"))

	s.install(&model.SuggestionJob{JobID: "job-2", FieldName: "retention", Status: model.SuggestionJobPending})
	ids := s.dismissAll()
	assert.Equal(t, []string{"job-2"}, ids)
	assert.Empty(t, s.cleared)
	assert.Empty(t, s.active)
	assert.True(t, s.isDeclined("job-1"), "earlier declines stay in the mirror")
}
