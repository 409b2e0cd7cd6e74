package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/samber/lo"

	"scribedesk/internal/domain"
)

// Config controls the REST adapter.
type Config struct {
	APIBaseURL     string
	RequestTimeout time.Duration
}

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend api error: status %d: %s", e.StatusCode, e.Detail)
}

// Client implements ports.UnitStore and ports.RevisionStore over the
// backend's JSON API.
type Client struct {
	base       string
	httpClient *http.Client
	reqTimeout time.Duration
}

func NewClient(cfg Config) *Client {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "http://localhost:8000"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	return &Client{
		base:       strings.TrimRight(cfg.APIBaseURL, "/"),
		httpClient: &http.Client{},
		reqTimeout: cfg.RequestTimeout,
	}
}

type wireBlock struct {
	ID        string  `json:"id"`
	SessionID string  `json:"session_id"`
	Type      string  `json:"type"`
	Text      *string `json:"text"`
	IsChecked bool    `json:"is_checked"`
	Color     *string `json:"color"`
	IsDeleted bool    `json:"is_deleted"`
}

func (b wireBlock) unit() domain.Unit {
	return domain.Unit{
		ID:          b.ID,
		SessionID:   b.SessionID,
		Kind:        domain.UnitKind(b.Type),
		Content:     lo.FromPtr(b.Text),
		Checked:     b.IsChecked,
		ColorTag:    domain.ColorTag(lo.FromPtr(b.Color)),
		SoftDeleted: b.IsDeleted,
	}
}

type wireRevision struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Content   string    `json:"content"`
	Note      *string   `json:"note"`
	CreatedAt time.Time `json:"created_at"`
}

func (r wireRevision) revision() domain.Revision {
	return domain.Revision{
		ID:        r.ID,
		SessionID: r.SessionID,
		Content:   r.Content,
		Note:      lo.FromPtr(r.Note),
		CreatedAt: r.CreatedAt,
	}
}

func (c *Client) ListUnits(ctx context.Context, sessionID string) ([]domain.Unit, error) {
	var blocks []wireBlock
	if err := c.doJSON(ctx, http.MethodGet, "/api/sessions/"+url.PathEscape(sessionID)+"/blocks", nil, &blocks); err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}
	return lo.Map(blocks, func(b wireBlock, _ int) domain.Unit { return b.unit() }), nil
}

func (c *Client) ReorderUnits(ctx context.Context, sessionID string, ids []string) error {
	body := map[string][]string{"block_ids": ids}
	if err := c.doJSON(ctx, http.MethodPost, "/api/sessions/"+url.PathEscape(sessionID)+"/blocks/reorder", body, nil); err != nil {
		return fmt.Errorf("reorder units: %w", err)
	}
	return nil
}

func (c *Client) UpdateUnit(ctx context.Context, id string, patch domain.UnitPatch) error {
	if err := c.doJSON(ctx, http.MethodPatch, "/api/sessions/blocks/"+url.PathEscape(id), patch, nil); err != nil {
		return fmt.Errorf("update unit: %w", err)
	}
	return nil
}

func (c *Client) SoftDeleteUnit(ctx context.Context, id string) error {
	if err := c.doJSON(ctx, http.MethodDelete, "/api/sessions/blocks/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("delete unit: %w", err)
	}
	return nil
}

func (c *Client) RestoreUnit(ctx context.Context, id string) error {
	if err := c.doJSON(ctx, http.MethodPost, "/api/sessions/blocks/"+url.PathEscape(id)+"/restore", nil, nil); err != nil {
		return fmt.Errorf("restore unit: %w", err)
	}
	return nil
}

// ListRevisions returns revisions newest first.
func (c *Client) ListRevisions(ctx context.Context, sessionID string) ([]domain.Revision, error) {
	var revisions []wireRevision
	if err := c.doJSON(ctx, http.MethodGet, "/api/sessions/"+url.PathEscape(sessionID)+"/revisions", nil, &revisions); err != nil {
		return nil, fmt.Errorf("list revisions: %w", err)
	}
	return lo.Map(revisions, func(r wireRevision, _ int) domain.Revision { return r.revision() }), nil
}

func (c *Client) CreateRevision(ctx context.Context, sessionID string, content string, note string) (domain.Revision, error) {
	body := struct {
		Content string  `json:"content"`
		Note    *string `json:"note,omitempty"`
	}{Content: content, Note: lo.EmptyableToPtr(note)}

	var created wireRevision
	if err := c.doJSON(ctx, http.MethodPost, "/api/sessions/"+url.PathEscape(sessionID)+"/revisions", body, &created); err != nil {
		return domain.Revision{}, fmt.Errorf("create revision: %w", err)
	}
	return created.revision(), nil
}

func (c *Client) doJSON(ctx context.Context, method string, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(in); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = buf
	}

	ctx, cancel := context.WithTimeout(ctx, c.reqTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backend request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// decodeAPIError reads the {"detail": ...} body the backend attaches to
// failures, falling back to the raw body.
func decodeAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	detail := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &payload); err == nil && len(payload.Detail) > 0 {
		var text string
		if err := json.Unmarshal(payload.Detail, &text); err == nil {
			detail = text
		} else {
			detail = string(payload.Detail)
		}
	}
	if detail == "" {
		detail = http.StatusText(resp.StatusCode)
	}
	return &APIError{StatusCode: resp.StatusCode, Detail: detail}
}
