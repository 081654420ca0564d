// Package ropaapi talks to the ROPA service's suggestion job endpoints.
package ropaapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ropa-suggestions/internal/domain"
	"ropa-suggestions/internal/domain/model"
	"ropa-suggestions/internal/domain/ports/adapter"
)

var _ adapter.SuggestionJobBackend = (*Client)(nil)

// APIError is a non-2xx answer from the service. Detail carries the
// FastAPI "detail" field when the body had one.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("ropa api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("ropa api: status %d: %s", e.StatusCode, e.Detail)
}

type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewClient builds a client for baseURL, e.g. https://ropa.example.com.
func NewClient(baseURL, token string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid backend url %q", domain.ErrInvalidArgument, baseURL)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (c *Client) entityPath(ref model.EntityRef) string {
	return fmt.Sprintf("%s/api/tenants/%s/ropa/%s/%s/suggest-field",
		c.baseURL, url.PathEscape(ref.TenantID), ref.Type.PathSegment(), url.PathEscape(ref.ID))
}

type createJobBody struct {
	FieldName    string         `json:"field_name"`
	FieldType    string         `json:"field_type"`
	FieldLabel   string         `json:"field_label"`
	CurrentValue string         `json:"current_value"`
	FormData     map[string]any `json:"form_data"`
	FieldOptions []string       `json:"field_options,omitempty"`
}

type createJobResponse struct {
	JobID     string    `json:"job_id"`
	Status    string    `json:"status"`
	CreatedAt timestamp `json:"created_at"`
}

func (c *Client) CreateJob(ctx context.Context, ref model.EntityRef, req model.CreateSuggestionJobRequest) (*model.CreatedSuggestionJob, error) {
	form := req.FormData
	if form == nil {
		form = map[string]any{}
	}
	body := createJobBody{
		FieldName:    req.FieldName,
		FieldType:    req.FieldType,
		FieldLabel:   req.FieldLabel,
		CurrentValue: req.CurrentValue,
		FormData:     form,
		FieldOptions: req.FieldOptions,
	}
	var out createJobResponse
	if err := c.do(ctx, http.MethodPost, c.entityPath(ref), body, &out); err != nil {
		return nil, err
	}
	status, err := model.ParseSuggestionJobStatus(out.Status)
	if err != nil {
		return nil, err
	}
	return &model.CreatedSuggestionJob{JobID: out.JobID, Status: status, CreatedAt: out.CreatedAt.Time}, nil
}

type jobStatusResponse struct {
	JobID            string            `json:"job_id"`
	Status           string            `json:"status"`
	FieldName        string            `json:"field_name"`
	FieldLabel       string            `json:"field_label"`
	GeneralStatement *string           `json:"general_statement"`
	Suggestions      []json.RawMessage `json:"suggestions"`
	ErrorMessage     *string           `json:"error_message"`
	Model            *string           `json:"openai_model"`
	TokensUsed       *int              `json:"openai_tokens_used"`
	CostUSD          *float64          `json:"openai_cost_usd"`
	CreatedAt        timestamp         `json:"created_at"`
	UpdatedAt        timestamp         `json:"updated_at"`
	CompletedAt      *timestamp        `json:"completed_at"`
}

func (c *Client) GetJob(ctx context.Context, ref model.EntityRef, jobID string) (*model.SuggestionJob, error) {
	var out jobStatusResponse
	if err := c.do(ctx, http.MethodGet, c.entityPath(ref)+"/job/"+url.PathEscape(jobID), nil, &out); err != nil {
		return nil, err
	}
	status, err := model.ParseSuggestionJobStatus(out.Status)
	if err != nil {
		return nil, err
	}
	job := &model.SuggestionJob{
		JobID:       out.JobID,
		FieldName:   out.FieldName,
		FieldLabel:  out.FieldLabel,
		Status:      status,
		CreatedAt:   out.CreatedAt.Time,
		UpdatedAt:   out.UpdatedAt.Time,
		CompletedAt: out.CompletedAt.ptr(),
		Suggestions: decodeSuggestions(out.Suggestions),
	}
	if out.GeneralStatement != nil {
		job.GeneralStatement = *out.GeneralStatement
	}
	if out.ErrorMessage != nil {
		job.ErrorMessage = *out.ErrorMessage
	}
	if out.Model != nil {
		job.Model = *out.Model
	}
	if out.TokensUsed != nil {
		job.TokensUsed = *out.TokensUsed
	}
	if out.CostUSD != nil {
		job.CostUSD = *out.CostUSD
	}
	return job, nil
}

// decodeSuggestions accepts plain strings, objects with a "value" key, and
// falls back to the raw JSON text for anything else.
func decodeSuggestions(raw []json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		var s string
		if json.Unmarshal(r, &s) == nil {
			out = append(out, s)
			continue
		}
		var obj struct {
			Value *string `json:"value"`
		}
		if json.Unmarshal(r, &obj) == nil && obj.Value != nil {
			out = append(out, *obj.Value)
			continue
		}
		out = append(out, string(r))
	}
	return out
}

type listJobItem struct {
	JobID       string     `json:"job_id"`
	FieldName   string     `json:"field_name"`
	FieldLabel  string     `json:"field_label"`
	Status      string     `json:"status"`
	CreatedAt   timestamp  `json:"created_at"`
	CompletedAt *timestamp `json:"completed_at"`
}

type listJobsResponse struct {
	Jobs  []listJobItem `json:"jobs"`
	Total int           `json:"total"`
}

func (c *Client) ListJobs(ctx context.Context, ref model.EntityRef) ([]model.SuggestionJobSummary, error) {
	var out listJobsResponse
	if err := c.do(ctx, http.MethodGet, c.entityPath(ref)+"/jobs", nil, &out); err != nil {
		return nil, err
	}
	items := make([]model.SuggestionJobSummary, 0, len(out.Jobs))
	for _, j := range out.Jobs {
		status, err := model.ParseSuggestionJobStatus(j.Status)
		if err != nil {
			return nil, fmt.Errorf("job %s: %w", j.JobID, err)
		}
		items = append(items, model.SuggestionJobSummary{
			JobID:       j.JobID,
			FieldName:   j.FieldName,
			FieldLabel:  j.FieldLabel,
			Status:      status,
			CreatedAt:   j.CreatedAt.Time,
			CompletedAt: j.CompletedAt.ptr(),
		})
	}
	return items, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, req.URL.Path, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if json.Unmarshal(b, &payload) == nil && len(payload.Detail) > 0 {
		var s string
		if json.Unmarshal(payload.Detail, &s) == nil {
			apiErr.Detail = s
		} else {
			apiErr.Detail = string(payload.Detail) // validation errors come as a list
		}
	} else {
		apiErr.Detail = strings.TrimSpace(string(b))
	}
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %w", domain.ErrNotFound, apiErr)
	}
	return apiErr
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}
