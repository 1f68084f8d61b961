package hud

import (
	"strings"
	"testing"
	"time"

	"github.com/marcin-skalski/gitlab-hud/internal/model"
)

var t0 = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func openMR(id int64, updatedAt time.Time, lastBy string) model.MergeRequest {
	return model.MergeRequest{
		ID:        id,
		Title:     "Add widget",
		Author:    model.User{Name: "Alice", Username: "alice"},
		UpdatedAt: updatedAt,
		Notes: []model.Note{
			{Resolvable: true, Author: model.User{Name: lastBy, Username: lastBy}, Body: "nit", UpdatedAt: updatedAt},
		},
	}
}

func TestAssemble_FiltersAndSorts(t *testing.T) {
	merged := t0
	mrs := []model.MergeRequest{
		openMR(1, t0.Add(1*time.Hour), "bob"),
		openMR(2, t0.Add(3*time.Hour), "bob"),
		openMR(3, t0.Add(2*time.Hour), "alice"), // viewer had the last word
		func() model.MergeRequest {
			mr := openMR(4, t0.Add(4*time.Hour), "bob")
			mr.MergedAt = &merged
			return mr
		}(),
	}

	got := Assemble(mrs, "alice", false)

	if len(got) != 2 {
		t.Fatalf("got %d MRs, want 2", len(got))
	}
	if got[0].ID != 2 || got[1].ID != 1 {
		t.Fatalf("want newest-first [2 1], got [%d %d]", got[0].ID, got[1].ID)
	}
}

func TestAssemble_Drafts(t *testing.T) {
	draft := openMR(1, t0, "bob")
	draft.IsDraft = true
	mrs := []model.MergeRequest{draft}

	if got := Assemble(mrs, "alice", false); len(got) != 0 {
		t.Fatalf("drafts excluded by default, got %d", len(got))
	}
	if got := Assemble(mrs, "alice", true); len(got) != 1 {
		t.Fatalf("include-drafts should keep the draft, got %d", len(got))
	}
}

func TestRender_Empty(t *testing.T) {
	out := Render(nil, t0)
	if !strings.Contains(out, "nothing waiting on you") {
		t.Fatalf("empty view = %q", out)
	}
}

func TestRender_Content(t *testing.T) {
	mr := openMR(1, t0.Add(-time.Hour), "bob")
	mr.Ref = "group/project!1"
	mr.HasConflicts = true
	mr.Pipelines = []model.Pipeline{{ID: 1, Status: "failed", UpdatedAt: t0}}

	out := Render([]model.MergeRequest{mr}, t0)

	for _, want := range []string{
		"Author", "Title", "Link", "Last Update", "CI", "Last Change",
		"Alice",
		"!Add widget", // conflict marker
		"group/project!1",
		"failed",
		"bob: nit",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered table missing %q:\n%s", want, out)
		}
	}
}

func TestFormatPipeline_NoPipelines(t *testing.T) {
	mr := openMR(1, t0, "bob")
	if got := formatPipeline(mr); got != "-" {
		t.Fatalf("no-pipeline cell = %q, want -", got)
	}
}
