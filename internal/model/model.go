// Package model holds the merge request snapshot types and the pure
// derivations the HUD is built on. A snapshot is always fetched, stored,
// and loaded whole; everything here is safe to serialize with
// encoding/json and round-trips losslessly.
package model

import (
	"strings"
	"time"
)

// User identifies a person on the GitLab side (author, reviewer, commenter).
type User struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	ID       int64  `json:"id"`
}

// Pipeline is one CI run attached to a merge request.
type Pipeline struct {
	ID        int64     `json:"id"`
	Status    string    `json:"status"` // queued|running|success|failed|canceled|skipped
	UpdatedAt time.Time `json:"updated_at"`
	Link      string    `json:"link"`
}

// Note is a comment on a merge request. Resolved is set only when the
// note is resolvable; ResolvedBy only when it has been resolved.
type Note struct {
	System     bool      `json:"system"`
	Author     User      `json:"author"`
	Resolvable bool      `json:"resolvable"`
	Resolved   *bool     `json:"resolved,omitempty"`
	ResolvedBy *User     `json:"resolved_by,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
	Body       string    `json:"body"`
	ID         int64     `json:"id"`
	Type       string    `json:"type,omitempty"`
}

// Relevant reports whether the note counts as review activity: system
// notes and resolvable (thread) notes do, chatter does not.
func (n Note) Relevant() bool {
	return n.Resolvable || n.System
}

// Approvals is the approval state of a merge request.
type Approvals struct {
	Approved   bool      `json:"approved"`
	ApprovedBy []User    `json:"approved_by"`
	UpdatedAt  time.Time `json:"updated_at"`
	ID         int64     `json:"id"`
}

// MergeRequest is the full snapshot of a merge request as of one sync.
// ID is globally unique and is the cache key.
type MergeRequest struct {
	ID           int64      `json:"id"`
	Title        string     `json:"title"`
	Author       User       `json:"author"`
	Ref          string     `json:"ref"`
	Link         string     `json:"link"`
	Notes        []Note     `json:"notes"`
	UpdatedAt    time.Time  `json:"updated_at"`
	MergedAt     *time.Time `json:"merged_at,omitempty"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
	Approvals    Approvals  `json:"approvals"`
	IsDraft      bool       `json:"is_draft"`
	Pipelines    []Pipeline `json:"pipelines"`
	HasConflicts bool       `json:"has_conflicts"`
}

// MRHeader is the lightweight listing record a fetch starts from: enough
// to decide whether the full snapshot (notes, approvals, pipelines) is
// worth the extra round trips.
type MRHeader struct {
	ID        int64     `json:"id"`
	IID       int64     `json:"iid"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Update is the derived "last activity that matters" on a merge request.
type Update struct {
	Author    User      `json:"author"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsOpen reports whether the merge request has not been merged or closed.
func (mr MergeRequest) IsOpen() bool {
	return mr.MergedAt == nil && mr.ClosedAt == nil
}

// LastUpdate derives the most recent relevant activity. With no relevant
// notes it falls back to a synthetic "MR Created" record carrying the
// request's own author and update time. For system notes only the first
// line of the body is kept; GitLab pads the rest with markdown details.
func (mr MergeRequest) LastUpdate() Update {
	var last *Note
	for i := range mr.Notes {
		n := &mr.Notes[i]
		if !n.Relevant() {
			continue
		}
		if last == nil || n.UpdatedAt.After(last.UpdatedAt) {
			last = n
		}
	}

	if last == nil {
		return Update{
			Author:    mr.Author,
			Content:   "MR Created",
			UpdatedAt: mr.UpdatedAt,
		}
	}

	content := last.Body
	if last.System {
		content, _, _ = strings.Cut(content, "\n")
	}
	return Update{
		Author:    last.Author,
		Content:   content,
		UpdatedAt: last.UpdatedAt,
	}
}

// IsImportant reports whether the merge request is waiting on the viewing
// user: it is still open and the last relevant activity was authored by
// someone else. A request whose last word was the viewer's own is
// considered handled.
func (mr MergeRequest) IsImportant(username string) bool {
	if !mr.IsOpen() {
		return false
	}
	return mr.LastUpdate().Author.Username != username
}

// LastPipeline returns the most recently updated CI run. ok is false when
// the request has no pipelines at all (possible on freshly pushed MRs
// before CI picks them up).
func (mr MergeRequest) LastPipeline() (Pipeline, bool) {
	if len(mr.Pipelines) == 0 {
		return Pipeline{}, false
	}
	last := mr.Pipelines[0]
	for _, p := range mr.Pipelines[1:] {
		if p.UpdatedAt.After(last.UpdatedAt) {
			last = p
		}
	}
	return last, true
}

// Freshness buckets a merge request by how recently it was touched.
type Freshness int

const (
	Fresh Freshness = iota // under a day old
	Aging                  // under a week
	Stale                  // older
)

// FreshnessAt classifies updatedAt relative to now.
func FreshnessAt(now, updatedAt time.Time) Freshness {
	age := now.Sub(updatedAt)
	switch {
	case age < 24*time.Hour:
		return Fresh
	case age < 7*24*time.Hour:
		return Aging
	default:
		return Stale
	}
}
