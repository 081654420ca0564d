package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(suggestionJobsCreatedTotal.WithLabelValues("activity", "error"))
	IncJobCreated(" Activity ", false)
	if got := testutil.ToFloat64(suggestionJobsCreatedTotal.WithLabelValues("activity", "error")); got != before+1 {
		t.Errorf("expected created counter to grow by 1, got %v -> %v", before, got)
	}

	AddDecisions("decline", "all", 0)
	AddDecisions("decline", "all", 3)
	if got := testutil.ToFloat64(suggestionDecisionsTotal.WithLabelValues("decline", "all")); got != 3 {
		t.Errorf("expected 3 declines, got %v", got)
	}

	IncDeclinedStoreOp("redis", "add", errors.New("boom"))
	if got := testutil.ToFloat64(declinedStoreOpsTotal.WithLabelValues("redis", "add", "error")); got != 1 {
		t.Errorf("expected 1 failed add, got %v", got)
	}

	SetActiveJobs(4)
	if got := testutil.ToFloat64(suggestionActiveJobs); got != 4 {
		t.Errorf("expected gauge 4, got %v", got)
	}
}

func TestMustRegisterIsIdempotent(t *testing.T) {
	MustRegister()
	MustRegister()
}
