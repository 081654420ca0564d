package usecase_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ropa-suggestions/internal/domain"
	"ropa-suggestions/internal/domain/model"
	"ropa-suggestions/internal/domain/ports/adapter"
	"ropa-suggestions/internal/domain/ports/repository"
	"ropa-suggestions/internal/infra/logging"

	"github.com/rs/zerolog"
)

func newTestLogger() *zerolog.Logger {
	return logging.Nop()
}

var (
	activity42 = model.EntityRef{TenantID: "acme", Type: model.EntityActivity, ID: "activity-42"}
	activity43 = model.EntityRef{TenantID: "acme", Type: model.EntityActivity, ID: "activity-43"}
	purpose    = model.FieldSpec{Name: "purpose", Type: "text", Label: "Purpose"}
	baseTime   = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
)

// --- Mock SuggestionJobBackend ---

// MockSuggestionBackend is a func-field mock. When no func is set it serves
// jobs from its in-memory map, so tests only override the calls they care about.
type MockSuggestionBackend struct {
	mu   sync.Mutex
	jobs map[string]*model.SuggestionJob

	CreateJobFunc func(ctx context.Context, ref model.EntityRef, req model.CreateSuggestionJobRequest) (*model.CreatedSuggestionJob, error)
	GetJobFunc    func(ctx context.Context, ref model.EntityRef, jobID string) (*model.SuggestionJob, error)
	ListJobsFunc  func(ctx context.Context, ref model.EntityRef) ([]model.SuggestionJobSummary, error)

	createCalls int
	getCalls    int
	listCalls   int
}

func NewMockSuggestionBackend() *MockSuggestionBackend {
	return &MockSuggestionBackend{jobs: make(map[string]*model.SuggestionJob)}
}

// Put stores (or replaces) a job served by GetJob and ListJobs.
func (m *MockSuggestionBackend) Put(job *model.SuggestionJob) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.JobID] = job.Clone()
}

func (m *MockSuggestionBackend) CreateJob(ctx context.Context, ref model.EntityRef, req model.CreateSuggestionJobRequest) (*model.CreatedSuggestionJob, error) {
	m.mu.Lock()
	m.createCalls++
	fn := m.CreateJobFunc
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, ref, req)
	}
	return nil, fmt.Errorf("CreateJob not configured")
}

func (m *MockSuggestionBackend) GetJob(ctx context.Context, ref model.EntityRef, jobID string) (*model.SuggestionJob, error) {
	m.mu.Lock()
	m.getCalls++
	fn := m.GetJobFunc
	job, ok := m.jobs[jobID]
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, ref, jobID)
	}
	if !ok {
		return nil, domain.ErrNotFound
	}
	return job.Clone(), nil
}

func (m *MockSuggestionBackend) ListJobs(ctx context.Context, ref model.EntityRef) ([]model.SuggestionJobSummary, error) {
	m.mu.Lock()
	m.listCalls++
	fn := m.ListJobsFunc
	var items []model.SuggestionJobSummary
	for _, j := range m.jobs {
		items = append(items, model.SuggestionJobSummary{
			JobID:      j.JobID,
			FieldName:  j.FieldName,
			FieldLabel: j.FieldLabel,
			Status:     j.Status,
			CreatedAt:  j.CreatedAt,
		})
	}
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, ref)
	}
	return items, nil
}

func (m *MockSuggestionBackend) Calls() (create, get, list int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createCalls, m.getCalls, m.listCalls
}

// createReturning makes CreateJob hand out the given ids in order, each
// created one minute after the previous.
func createReturning(ids ...string) func(context.Context, model.EntityRef, model.CreateSuggestionJobRequest) (*model.CreatedSuggestionJob, error) {
	var mu sync.Mutex
	next := 0
	return func(ctx context.Context, ref model.EntityRef, req model.CreateSuggestionJobRequest) (*model.CreatedSuggestionJob, error) {
		mu.Lock()
		defer mu.Unlock()
		if next >= len(ids) {
			return nil, fmt.Errorf("no more job ids")
		}
		id := ids[next]
		created := &model.CreatedSuggestionJob{
			JobID:     id,
			Status:    model.SuggestionJobPending,
			CreatedAt: baseTime.Add(time.Duration(next) * time.Minute),
		}
		next++
		return created, nil
	}
}

// --- Mock DeclinedJobRepository ---

type MockDeclinedRepo struct {
	AddFunc  func(ctx context.Context, scope model.DeclinedScope, jobIDs ...string) error
	ListFunc func(ctx context.Context, scope model.DeclinedScope) ([]string, error)
}

var _ repository.DeclinedJobRepository = (*MockDeclinedRepo)(nil)

func (m *MockDeclinedRepo) Add(ctx context.Context, scope model.DeclinedScope, jobIDs ...string) error {
	if m.AddFunc != nil {
		return m.AddFunc(ctx, scope, jobIDs...)
	}
	return nil
}

func (m *MockDeclinedRepo) List(ctx context.Context, scope model.DeclinedScope) ([]string, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, scope)
	}
	return nil, nil
}

// --- Recording Notifier ---

type recordingNotifier struct {
	mu   sync.Mutex
	sent []adapter.Notification
}

func (n *recordingNotifier) Notify(ctx context.Context, note adapter.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, note)
}

func (n *recordingNotifier) All() []adapter.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]adapter.Notification(nil), n.sent...)
}

func completed(jobID, field string, createdAt time.Time, suggestions ...string) *model.SuggestionJob {
	done := createdAt.Add(30 * time.Second)
	return &model.SuggestionJob{
		JobID:       jobID,
		FieldName:   field,
		Status:      model.SuggestionJobCompleted,
		Suggestions: suggestions,
		CreatedAt:   createdAt,
		UpdatedAt:   done,
		CompletedAt: &done,
	}
}

func withStatus(jobID, field string, createdAt time.Time, status model.SuggestionJobStatus) *model.SuggestionJob {
	return &model.SuggestionJob{JobID: jobID, FieldName: field, Status: status, CreatedAt: createdAt, UpdatedAt: createdAt}
}

// gate lets a test hold a backend call open and release it later.
type gate struct {
	entered chan struct{}
	release chan struct{}
}

func newGate() *gate {
	return &gate{entered: make(chan struct{}, 1), release: make(chan struct{})}
}

func (g *gate) wait() {
	g.entered <- struct{}{}
	<-g.release
}
