package ropaapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"ropa-suggestions/internal/domain"
	"ropa-suggestions/internal/domain/model"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// FakeServer serves the suggestion job routes from memory. It mirrors the
// real service closely enough for tests and for running suggestd without a
// backend: a pending job for the same field is returned instead of a new one,
// and reading a job from another entity is forbidden.
type FakeServer struct {
	mu     sync.Mutex
	jobs   map[string]*fakeJob
	now    func() time.Time
	token  string
	step   bool
	router chi.Router

	// Suggest produces the values a job completes with when it is advanced by reads.
	Suggest func(req model.CreateSuggestionJobRequest) []string
}

type fakeJob struct {
	ref model.EntityRef
	req model.CreateSuggestionJobRequest
	job model.SuggestionJob
}

type FakeOption func(*FakeServer)

// WithStepOnRead advances a job one status per GET: pending, processing, completed.
func WithStepOnRead() FakeOption { return func(f *FakeServer) { f.step = true } }

// WithToken requires "Authorization: Bearer <token>".
func WithToken(token string) FakeOption { return func(f *FakeServer) { f.token = token } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) FakeOption { return func(f *FakeServer) { f.now = now } }

func NewFakeServer(opts ...FakeOption) *FakeServer {
	f := &FakeServer{
		jobs: make(map[string]*fakeJob),
		now:  time.Now,
		Suggest: func(req model.CreateSuggestionJobRequest) []string {
			label := req.FieldLabel
			if label == "" {
				label = req.FieldName
			}
			return []string{"Suggested " + strings.ToLower(label)}
		},
	}
	for _, o := range opts {
		o(f)
	}

	const base = "/api/tenants/{tenant}/ropa/{segment}/{entityID}/suggest-field"
	r := chi.NewRouter()
	r.Use(f.auth)
	r.Post(base, f.handleCreate)
	r.Get(base+"/jobs", f.handleList)
	r.Get(base+"/job/{jobID}", f.handleGet)
	f.router = r
	return f
}

func (f *FakeServer) Handler() http.Handler { return f.router }

// clock matches the backend's microsecond timestamp precision.
func (f *FakeServer) clock() time.Time { return f.now().UTC().Truncate(time.Microsecond) }

func (f *FakeServer) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if f.token != "" && r.Header.Get("Authorization") != "Bearer "+f.token {
			writeDetail(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func refFromRequest(r *http.Request) (model.EntityRef, bool) {
	t, ok := model.EntityTypeForSegment(chi.URLParam(r, "segment"))
	if !ok {
		return model.EntityRef{}, false
	}
	return model.EntityRef{TenantID: chi.URLParam(r, "tenant"), Type: t, ID: chi.URLParam(r, "entityID")}, true
}

func (f *FakeServer) handleCreate(w http.ResponseWriter, r *http.Request) {
	ref, ok := refFromRequest(r)
	if !ok {
		writeDetail(w, http.StatusNotFound, "Not Found")
		return
	}
	var body createJobBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.FieldName == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "field_name is required")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if existing := f.latestLocked(ref, body.FieldName, model.SuggestionJobPending); existing != nil {
		writeJSON(w, http.StatusCreated, createJobResponse{
			JobID: existing.job.JobID, Status: string(existing.job.Status), CreatedAt: stamp(existing.job.CreatedAt),
		})
		return
	}
	now := f.clock()
	fj := &fakeJob{
		ref: ref,
		req: model.CreateSuggestionJobRequest{
			FieldName: body.FieldName, FieldType: body.FieldType, FieldLabel: body.FieldLabel,
			CurrentValue: body.CurrentValue, FormData: body.FormData, FieldOptions: body.FieldOptions,
		},
		job: model.SuggestionJob{
			JobID:      uuid.NewString(),
			FieldName:  body.FieldName,
			FieldLabel: body.FieldLabel,
			Status:     model.SuggestionJobPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		},
	}
	f.jobs[fj.job.JobID] = fj
	writeJSON(w, http.StatusCreated, createJobResponse{JobID: fj.job.JobID, Status: string(fj.job.Status), CreatedAt: stamp(now)})
}

func (f *FakeServer) latestLocked(ref model.EntityRef, field string, status model.SuggestionJobStatus) *fakeJob {
	var latest *fakeJob
	for _, fj := range f.jobs {
		if fj.ref != ref || fj.job.FieldName != field || fj.job.Status != status {
			continue
		}
		if latest == nil || fj.job.CreatedAt.After(latest.job.CreatedAt) {
			latest = fj
		}
	}
	return latest
}

func (f *FakeServer) handleList(w http.ResponseWriter, r *http.Request) {
	ref, ok := refFromRequest(r)
	if !ok {
		writeDetail(w, http.StatusNotFound, "Not Found")
		return
	}
	field, status := r.URL.Query().Get("field_name"), r.URL.Query().Get("status")

	f.mu.Lock()
	out := listJobsResponse{Jobs: []listJobItem{}}
	var matched []*fakeJob
	for _, fj := range f.jobs {
		if fj.ref != ref {
			continue
		}
		if field != "" && fj.job.FieldName != field {
			continue
		}
		if status != "" && string(fj.job.Status) != status {
			continue
		}
		matched = append(matched, fj)
	}
	f.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].job.CreatedAt.After(matched[j].job.CreatedAt) })
	for _, fj := range matched {
		out.Jobs = append(out.Jobs, listJobItem{
			JobID:       fj.job.JobID,
			FieldName:   fj.job.FieldName,
			FieldLabel:  fj.job.FieldLabel,
			Status:      string(fj.job.Status),
			CreatedAt:   stamp(fj.job.CreatedAt),
			CompletedAt: stampPtr(fj.job.CompletedAt),
		})
	}
	out.Total = len(out.Jobs)
	writeJSON(w, http.StatusOK, out)
}

func (f *FakeServer) handleGet(w http.ResponseWriter, r *http.Request) {
	ref, ok := refFromRequest(r)
	if !ok {
		writeDetail(w, http.StatusNotFound, "Not Found")
		return
	}
	f.mu.Lock()
	fj, ok := f.jobs[chi.URLParam(r, "jobID")]
	if !ok {
		f.mu.Unlock()
		writeDetail(w, http.StatusNotFound, "Job not found")
		return
	}
	if fj.ref != ref {
		f.mu.Unlock()
		writeDetail(w, http.StatusForbidden, "Access denied")
		return
	}
	if f.step {
		f.advanceLocked(fj)
	}
	job := fj.job.Clone()
	f.mu.Unlock()

	raw := make([]json.RawMessage, 0, len(job.Suggestions))
	for _, s := range job.Suggestions {
		b, _ := json.Marshal(s)
		raw = append(raw, b)
	}
	resp := jobStatusResponse{
		JobID:       job.JobID,
		Status:      string(job.Status),
		FieldName:   job.FieldName,
		FieldLabel:  job.FieldLabel,
		CreatedAt:   stamp(job.CreatedAt),
		UpdatedAt:   stamp(job.UpdatedAt),
		CompletedAt: stampPtr(job.CompletedAt),
	}
	if job.Status == model.SuggestionJobCompleted {
		resp.Suggestions = raw
		resp.GeneralStatement = &job.GeneralStatement
		resp.Model = &job.Model
		resp.TokensUsed = &job.TokensUsed
		resp.CostUSD = &job.CostUSD
	}
	if job.Status == model.SuggestionJobFailed {
		resp.ErrorMessage = &job.ErrorMessage
	}
	writeJSON(w, http.StatusOK, resp)
}

func (f *FakeServer) advanceLocked(fj *fakeJob) {
	switch fj.job.Status {
	case model.SuggestionJobPending:
		fj.job.Status = model.SuggestionJobProcessing
		fj.job.UpdatedAt = f.clock()
	case model.SuggestionJobProcessing:
		f.completeLocked(fj, f.Suggest(fj.req))
	}
}

func (f *FakeServer) completeLocked(fj *fakeJob, suggestions []string) {
	now := f.clock()
	fj.job.Status = model.SuggestionJobCompleted
	fj.job.Suggestions = append([]string(nil), suggestions...)
	fj.job.GeneralStatement = fmt.Sprintf("Based on the record, %d option(s) fit %s.", len(suggestions), fj.job.FieldLabel)
	fj.job.Model = "fake"
	fj.job.UpdatedAt = now
	fj.job.CompletedAt = &now
}

// Complete finishes a job with the given suggestions.
func (f *FakeServer) Complete(jobID string, suggestions ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	fj, ok := f.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	f.completeLocked(fj, suggestions)
	return nil
}

// Fail finishes a job with an error message.
func (f *FakeServer) Fail(jobID, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	fj, ok := f.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	now := f.clock()
	fj.job.Status = model.SuggestionJobFailed
	fj.job.ErrorMessage = message
	fj.job.UpdatedAt = now
	fj.job.CompletedAt = &now
	return nil
}

// Jobs returns a copy of every job known for ref, newest first.
func (f *FakeServer) Jobs(ref model.EntityRef) []model.SuggestionJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.SuggestionJob
	for _, fj := range f.jobs {
		if fj.ref == ref {
			out = append(out, *fj.job.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, map[string]string{"detail": detail})
}
