package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"ropa-suggestions/internal/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type listerFunc func(ctx context.Context, ref model.EntityRef) ([]model.SuggestionJobSummary, error)

func (f listerFunc) ListJobs(ctx context.Context, ref model.EntityRef) ([]model.SuggestionJobSummary, error) {
	return f(ctx, ref)
}

func TestListJobsNewestFirst(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	ref := model.EntityRef{TenantID: "acme", Type: model.EntityActivity, ID: "activity-42"}
	lister := listerFunc(func(ctx context.Context, got model.EntityRef) ([]model.SuggestionJobSummary, error) {
		assert.Equal(t, ref, got)
		return []model.SuggestionJobSummary{
			{JobID: "job-1", FieldName: "purpose", Status: model.SuggestionJobCompleted, CreatedAt: base},
			{JobID: "job-2", FieldName: "purpose", Status: model.SuggestionJobPending, CreatedAt: base.Add(time.Minute)},
		}, nil
	})

	var out bytes.Buffer
	require.NoError(t, listJobs(context.Background(), &out, lister, ref))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "JOB ID"))
	assert.True(t, strings.HasPrefix(lines[1], "job-2"))
	assert.True(t, strings.HasPrefix(lines[2], "job-1"))
}

func TestListJobsError(t *testing.T) {
	lister := listerFunc(func(context.Context, model.EntityRef) ([]model.SuggestionJobSummary, error) {
		return nil, errors.New("backend down")
	})
	err := listJobs(context.Background(), &bytes.Buffer{}, lister, model.EntityRef{TenantID: "acme", Type: model.EntityRisk, ID: "r-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend down")
}

func TestRootCommandWiring(t *testing.T) {
	root := newRootCommand()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["jobs"])
}
