package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"ropa-suggestions/internal/domain"
	"ropa-suggestions/internal/domain/model"
	"ropa-suggestions/internal/domain/ports/adapter"
	"ropa-suggestions/internal/infra/logging"
	"ropa-suggestions/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Limiter caps how often an entity may request bulk suggestions.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// NotificationSource feeds user-facing notifications into the stream.
type NotificationSource interface {
	Subscribe(buffer int) (<-chan adapter.Notification, func())
}

type Options struct {
	APIKey           string
	DefaultTenant    string
	RequestTimeout   time.Duration
	SuggestAllLimit  int
	SuggestAllWindow time.Duration
	AllowedOrigins   []string
}

// Server projects the suggestion orchestrator over HTTP for UI layers.
type Server struct {
	uc      usecase.SuggestionUseCase
	notes   NotificationSource
	limiter Limiter
	opts    Options
	log     *zerolog.Logger
	router  chi.Router
}

func NewServer(uc usecase.SuggestionUseCase, notes NotificationSource, limiter Limiter, opts Options, logger *zerolog.Logger) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = time.Minute
	}
	if opts.SuggestAllWindow <= 0 {
		opts.SuggestAllWindow = time.Minute
	}
	if logger == nil {
		logger = logging.Nop()
	}
	l := logger.With().Str("component", "ProjectionAPI").Logger()
	s := &Server{uc: uc, notes: notes, limiter: limiter, opts: opts, log: &l}
	s.router = s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(TraceID(), Recover(s.log), RequestLog(s.log))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(BearerAuth(s.opts.APIKey))
		r.Get("/stream", s.handleStream)

		r.Group(func(r chi.Router) {
			r.Use(Timeout(s.opts.RequestTimeout))

			r.Post("/binding", s.handleBind)
			r.Delete("/binding", s.handleUnbind)
			r.Post("/binding/disable", s.handleDisable)

			r.Get("/state", s.handleState)
			r.Get("/suggestions", s.handleSuggestions)

			r.Post("/fields/{field}/suggest", s.handleSuggest)
			r.Delete("/fields/{field}", s.handleClear)
			r.Post("/fields/{field}/accept", s.handleAccept)

			r.Post("/suggest-all", s.handleSuggestAll)
			r.Post("/accept-all", s.handleAcceptAll)
			r.Post("/decline-all", s.handleDeclineAll)
			r.Post("/restore", s.handleRestore)
		})
	})
	return r
}

type bindRequest struct {
	TenantID   string `json:"tenant_id"`
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
}

// handleBind binds, enables polling and starts restoration in the background;
// progress shows up on the stream and in /state.
func (s *Server) handleBind(w http.ResponseWriter, r *http.Request) {
	var req bindRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.TenantID == "" {
		req.TenantID = s.opts.DefaultTenant
	}
	ref := model.EntityRef{TenantID: req.TenantID, Type: model.EntityType(req.EntityType), ID: req.EntityID}
	if err := s.uc.Bind(ref); err != nil {
		s.fail(w, r, err)
		return
	}
	s.uc.Enable()
	go s.uc.RestoreJobs(context.WithoutCancel(r.Context()))
	writeJSON(w, http.StatusOK, s.uc.Snapshot())
}

func (s *Server) handleUnbind(w http.ResponseWriter, _ *http.Request) {
	s.uc.Unbind()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDisable(w http.ResponseWriter, _ *http.Request) {
	s.uc.Disable()
	writeJSON(w, http.StatusOK, s.uc.Snapshot())
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.uc.Snapshot())
}

func (s *Server) handleSuggestions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": s.uc.GetAllActiveSuggestions()})
}

type suggestRequest struct {
	FieldType    string         `json:"field_type"`
	FieldLabel   string         `json:"field_label"`
	CurrentValue string         `json:"current_value"`
	FormContext  map[string]any `json:"form_context"`
	FieldOptions []string       `json:"field_options"`
}

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	var req suggestRequest
	if !s.decode(w, r, &req) {
		return
	}
	field := model.FieldSpec{Name: chi.URLParam(r, "field"), Type: req.FieldType, Label: req.FieldLabel}
	jobID, err := s.uc.CreateJob(r.Context(), field, req.CurrentValue, req.FormContext, req.FieldOptions)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"job_id": jobID, "field_name": field.Name})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.uc.ClearJobStatus(chi.URLParam(r, "field"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	field := chi.URLParam(r, "field")
	values, err := s.uc.AcceptSuggestion(field)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"field_name": field, "suggestions": values})
}

type suggestAllRequest struct {
	Fields       []model.FieldSpec   `json:"fields"`
	FormContext  map[string]any      `json:"form_context"`
	FieldOptions map[string][]string `json:"field_options"`
}

func (s *Server) handleSuggestAll(w http.ResponseWriter, r *http.Request) {
	var req suggestAllRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Fields) == 0 {
		writeError(w, http.StatusBadRequest, "fields are required")
		return
	}
	if ref, ok := s.uc.Entity(); ok && !s.allowSuggestAll(r, ref) {
		writeError(w, http.StatusTooManyRequests, "too many bulk suggestion requests, try again later")
		return
	}
	res, err := s.uc.SuggestAll(r.Context(), req.Fields, req.FormContext, req.FieldOptions)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SuggestAllKey is the rate limit bucket for one entity.
func SuggestAllKey(ref model.EntityRef) string {
	return fmt.Sprintf("rate_limit:suggest_all:%s:%s:%s", ref.TenantID, ref.Type, ref.ID)
}

// allowSuggestAll fails open when the limiter is unavailable.
func (s *Server) allowSuggestAll(r *http.Request, ref model.EntityRef) bool {
	if s.limiter == nil || s.opts.SuggestAllLimit <= 0 {
		return true
	}
	ok, err := s.limiter.Allow(r.Context(), SuggestAllKey(ref), s.opts.SuggestAllLimit, s.opts.SuggestAllWindow)
	if err != nil {
		logging.With(r.Context(), s.log).Warn().Err(err).Msg("rate limiter unavailable")
		return true
	}
	return ok
}

func (s *Server) handleAcceptAll(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": s.uc.AcceptAll()})
}

func (s *Server) handleDeclineAll(w http.ResponseWriter, r *http.Request) {
	n := s.uc.DeclineAll(r.Context())
	writeJSON(w, http.StatusOK, map[string]int{"declined": n})
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.uc.Entity(); !ok {
		s.fail(w, r, domain.ErrMissingEntity)
		return
	}
	s.uc.RestoreJobs(r.Context())
	writeJSON(w, http.StatusOK, s.uc.Snapshot())
}

const maxBodyBytes = 1 << 20

// decode treats an empty body as an empty request.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logging.With(r.Context(), s.log).Error().Err(err).Msg("request failed")
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrMissingEntity), errors.Is(err, domain.ErrJobStillRunning):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrUnknownEntityType):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNoSuggestion), errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrJobCreation):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError uses the same {"detail": ...} shape as the ROPA backend.
func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
