//go:build !integration

package model

import (
	"errors"
	"testing"
	"time"

	"ropa-suggestions/internal/domain"
)

func TestParseSuggestionJobStatus(t *testing.T) {
	for _, s := range []string{"pending", "processing", "completed", "failed"} {
		st, err := ParseSuggestionJobStatus(s)
		if err != nil {
			t.Fatalf("expected %q to parse, got %v", s, err)
		}
		if string(st) != s {
			t.Errorf("expected %q, got %q", s, st)
		}
	}

	t.Run("unknown status is rejected", func(t *testing.T) {
		for _, s := range []string{"", "queued", "COMPLETED", "cancelled"} {
			_, err := ParseSuggestionJobStatus(s)
			if !errors.Is(err, domain.ErrUnexpectedJobStatus) {
				t.Errorf("status %q: expected ErrUnexpectedJobStatus, got %v", s, err)
			}
		}
	})
}

func TestSuggestionJobStatusIsTerminal(t *testing.T) {
	if SuggestionJobPending.IsTerminal() || SuggestionJobProcessing.IsTerminal() {
		t.Error("pending and processing must not be terminal")
	}
	if !SuggestionJobCompleted.IsTerminal() || !SuggestionJobFailed.IsTerminal() {
		t.Error("completed and failed must be terminal")
	}
}

func TestSuggestionJobHelpers(t *testing.T) {
	now := time.Now()
	older := &SuggestionJob{JobID: "a", CreatedAt: now}
	newer := &SuggestionJob{JobID: "b", CreatedAt: now.Add(time.Second)}

	if !newer.NewerThan(older) {
		t.Error("expected b to be newer than a")
	}
	if older.NewerThan(newer) {
		t.Error("expected a not to be newer than b")
	}
	if older.NewerThan(&SuggestionJob{CreatedAt: now}) {
		t.Error("equal timestamps must not count as newer")
	}

	done := &SuggestionJob{Status: SuggestionJobCompleted, Suggestions: []string{"x"}, CompletedAt: &now}
	if !done.HasSuggestions() {
		t.Error("completed job with values should have suggestions")
	}
	cp := done.Clone()
	cp.Suggestions[0] = "y"
	*cp.CompletedAt = now.Add(time.Hour)
	if done.Suggestions[0] != "x" || !done.CompletedAt.Equal(now) {
		t.Error("clone must not share slices or pointers with the original")
	}
	if (&SuggestionJob{Status: SuggestionJobCompleted}).HasSuggestions() {
		t.Error("completed job without values has no suggestions")
	}
}

func TestEntityRef(t *testing.T) {
	ref := EntityRef{TenantID: "t1", Type: EntityDataElement, ID: "de-1"}
	if err := ref.Validate(); err != nil {
		t.Fatalf("expected valid ref, got %v", err)
	}
	if ref.Type.PathSegment() != "data-elements" {
		t.Errorf("unexpected segment %q", ref.Type.PathSegment())
	}
	if got, ok := EntityTypeForSegment("dpias"); !ok || got != EntityDPIA {
		t.Errorf("expected dpias to map to dpia, got %q", got)
	}
	if scope := ref.Scope(); scope.EntityType != EntityDataElement || scope.EntityID != "de-1" {
		t.Errorf("unexpected scope %+v", scope)
	}

	bad := EntityRef{TenantID: "t1", Type: "system", ID: "x"}
	if err := bad.Validate(); !errors.Is(err, domain.ErrUnknownEntityType) {
		t.Errorf("expected ErrUnknownEntityType, got %v", err)
	}
	if err := (EntityRef{Type: EntityRisk}).Validate(); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestSuggestionJobFresherThan(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	pending := &SuggestionJob{JobID: "job-1", Status: SuggestionJobPending, UpdatedAt: base.Add(time.Hour)}
	done := &SuggestionJob{JobID: "job-1", Status: SuggestionJobCompleted, UpdatedAt: base}
	processing := &SuggestionJob{JobID: "job-1", Status: SuggestionJobProcessing, UpdatedAt: base.Add(2 * time.Hour)}

	if !done.FresherThan(pending) || pending.FresherThan(done) {
		t.Error("a terminal copy must beat a non-terminal one regardless of UpdatedAt")
	}
	if !processing.FresherThan(pending) || pending.FresherThan(processing) {
		t.Error("expected the later UpdatedAt to win between non-terminal copies")
	}
	if pending.FresherThan(pending) {
		t.Error("equal copies are not fresher")
	}
	if !pending.FresherThan(nil) {
		t.Error("any copy is fresher than none")
	}
}
