// Package gitlab talks to the GitLab v4 REST API. It is the remote side
// of the sync engine: listing open merge requests newest-first and
// assembling full snapshots from the per-request sub-resources.
package gitlab

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/marcin-skalski/gitlab-hud/internal/model"
)

// HTTPClient is the subset of http.Client the GitLab client needs.
// Injected so tests can substitute a double.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds the connection parameters for one GitLab project.
type Config struct {
	BaseURL      string
	Token        string
	ProjectID    int64
	TargetBranch string
}

// Client fetches merge request snapshots from a single GitLab project.
type Client struct {
	cfg        Config
	httpClient HTTPClient
	logger     *slog.Logger
}

// NewClient creates a GitLab client for the configured project.
func NewClient(cfg Config, httpClient HTTPClient, logger *slog.Logger) *Client {
	return &Client{cfg: cfg, httpClient: httpClient, logger: logger}
}

// ListOpen returns one page of open merge request headers targeting the
// configured branch, ordered by updated_at descending. An empty page
// means the feed is exhausted.
func (c *Client) ListOpen(ctx context.Context, page, perPage int) ([]model.MRHeader, error) {
	url := fmt.Sprintf(
		"%s/api/v4/projects/%d/merge_requests?state=opened&order_by=updated_at&sort=desc&target_branch=%s&page=%d&per_page=%d",
		c.cfg.BaseURL, c.cfg.ProjectID, c.cfg.TargetBranch, page, perPage,
	)

	var glMRs []glMergeRequestHeader
	if err := c.doRequest(ctx, url, &glMRs); err != nil {
		return nil, fmt.Errorf("list merge requests: %w", err)
	}

	headers := make([]model.MRHeader, len(glMRs))
	for i, gl := range glMRs {
		headers[i] = model.MRHeader{ID: gl.ID, IID: gl.IID, UpdatedAt: gl.UpdatedAt}
	}
	return headers, nil
}

// Fetch assembles the full snapshot for one merge request: the detail
// record plus its notes, approval state, and pipelines. Four round trips
// per request, which is why the sync engine only calls it for requests
// ahead of the watermark.
func (c *Client) Fetch(ctx context.Context, h model.MRHeader) (model.MergeRequest, error) {
	base := fmt.Sprintf("%s/api/v4/projects/%d/merge_requests/%d", c.cfg.BaseURL, c.cfg.ProjectID, h.IID)

	var detail glMergeRequest
	if err := c.doRequest(ctx, base, &detail); err != nil {
		return model.MergeRequest{}, fmt.Errorf("get merge request %d: %w", h.IID, err)
	}

	notes, err := c.fetchNotes(ctx, base)
	if err != nil {
		return model.MergeRequest{}, fmt.Errorf("get notes for MR %d: %w", h.IID, err)
	}

	var approvals glApprovals
	if err := c.doRequest(ctx, base+"/approvals", &approvals); err != nil {
		return model.MergeRequest{}, fmt.Errorf("get approvals for MR %d: %w", h.IID, err)
	}

	var pipelines []glPipeline
	if err := c.doRequest(ctx, base+"/pipelines", &pipelines); err != nil {
		return model.MergeRequest{}, fmt.Errorf("get pipelines for MR %d: %w", h.IID, err)
	}

	c.logger.Debug("fetched merge request", "iid", h.IID, "notes", len(notes), "pipelines", len(pipelines))
	return convertMergeRequest(detail, notes, approvals, pipelines), nil
}

// fetchNotes pages through all notes of a merge request.
func (c *Client) fetchNotes(ctx context.Context, base string) ([]glNote, error) {
	const perPage = 100
	var all []glNote
	for page := 1; ; page++ {
		url := fmt.Sprintf("%s/notes?page=%d&per_page=%d", base, page, perPage)
		var notes []glNote
		if err := c.doRequest(ctx, url, &notes); err != nil {
			return nil, err
		}
		all = append(all, notes...)
		if len(notes) < perPage {
			return all, nil
		}
	}
}

// doRequest performs an authenticated GET and decodes the JSON body.
func (c *Client) doRequest(ctx context.Context, url string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("PRIVATE-TOKEN", c.cfg.Token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// GitLab API response types.

type glMergeRequestHeader struct {
	ID        int64     `json:"id"`
	IID       int64     `json:"iid"`
	UpdatedAt time.Time `json:"updated_at"`
}

type glMergeRequest struct {
	ID         int64  `json:"id"`
	IID        int64  `json:"iid"`
	Title      string `json:"title"`
	Author     glUser `json:"author"`
	References struct {
		Full string `json:"full"`
	} `json:"references"`
	WebURL       string     `json:"web_url"`
	UpdatedAt    time.Time  `json:"updated_at"`
	MergedAt     *time.Time `json:"merged_at"`
	ClosedAt     *time.Time `json:"closed_at"`
	Draft        bool       `json:"draft"`
	WIP          bool       `json:"work_in_progress"`
	HasConflicts bool       `json:"has_conflicts"`
}

type glUser struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	ID       int64  `json:"id"`
}

type glNote struct {
	ID           int64     `json:"id"`
	System       bool      `json:"system"`
	Author       glUser    `json:"author"`
	Resolvable   bool      `json:"resolvable"`
	Resolved     bool      `json:"resolved"`
	ResolvedBy   *glUser   `json:"resolved_by"`
	UpdatedAt    time.Time `json:"updated_at"`
	Body         string    `json:"body"`
	NoteableType string    `json:"noteable_type"`
}

type glApprovals struct {
	ID         int64     `json:"id"`
	Approved   bool      `json:"approved"`
	UpdatedAt  time.Time `json:"updated_at"`
	ApprovedBy []struct {
		User glUser `json:"user"`
	} `json:"approved_by"`
}

type glPipeline struct {
	ID        int64     `json:"id"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
	WebURL    string    `json:"web_url"`
}

func convertUser(gl glUser) model.User {
	return model.User{Name: gl.Name, Username: gl.Username, ID: gl.ID}
}

func convertNote(gl glNote) model.Note {
	n := model.Note{
		ID:         gl.ID,
		System:     gl.System,
		Author:     convertUser(gl.Author),
		Resolvable: gl.Resolvable,
		UpdatedAt:  gl.UpdatedAt,
		Body:       gl.Body,
		Type:       gl.NoteableType,
	}
	if gl.Resolvable {
		resolved := gl.Resolved
		n.Resolved = &resolved
		if resolved && gl.ResolvedBy != nil {
			u := convertUser(*gl.ResolvedBy)
			n.ResolvedBy = &u
		}
	}
	return n
}

func convertPipeline(gl glPipeline) model.Pipeline {
	return model.Pipeline{
		ID:        gl.ID,
		Status:    convertStatus(gl.Status),
		UpdatedAt: gl.UpdatedAt,
		Link:      gl.WebURL,
	}
}

// convertStatus folds GitLab's pre-run pipeline states into "queued".
func convertStatus(glStatus string) string {
	switch glStatus {
	case "created", "pending", "waiting_for_resource", "preparing", "manual", "scheduled":
		return "queued"
	default:
		return glStatus
	}
}

func convertMergeRequest(detail glMergeRequest, notes []glNote, approvals glApprovals, pipelines []glPipeline) model.MergeRequest {
	mr := model.MergeRequest{
		ID:           detail.ID,
		Title:        detail.Title,
		Author:       convertUser(detail.Author),
		Ref:          detail.References.Full,
		Link:         detail.WebURL,
		UpdatedAt:    detail.UpdatedAt,
		MergedAt:     detail.MergedAt,
		ClosedAt:     detail.ClosedAt,
		IsDraft:      detail.Draft || detail.WIP,
		HasConflicts: detail.HasConflicts,
	}
	mr.Notes = make([]model.Note, len(notes))
	for i, n := range notes {
		mr.Notes[i] = convertNote(n)
	}
	mr.Pipelines = make([]model.Pipeline, len(pipelines))
	for i, p := range pipelines {
		mr.Pipelines[i] = convertPipeline(p)
	}
	mr.Approvals = model.Approvals{
		ID:        approvals.ID,
		Approved:  approvals.Approved,
		UpdatedAt: approvals.UpdatedAt,
	}
	for _, ab := range approvals.ApprovedBy {
		mr.Approvals.ApprovedBy = append(mr.Approvals.ApprovedBy, convertUser(ab.User))
	}
	return mr
}
