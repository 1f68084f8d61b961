// Package hud assembles and renders the merge request table: the open
// requests whose last relevant activity was not the viewing user's.
package hud

import (
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"

	"github.com/marcin-skalski/gitlab-hud/internal/model"
)

const (
	maxTitleWidth  = 60
	maxChangeWidth = 70
)

// Assemble filters the synced population down to the merge requests
// waiting on username (drafts excluded unless asked for) and sorts them
// newest-first.
func Assemble(mrs []model.MergeRequest, username string, includeDrafts bool) []model.MergeRequest {
	var out []model.MergeRequest
	for _, mr := range mrs {
		if mr.IsDraft && !includeDrafts {
			continue
		}
		if !mr.IsImportant(username) {
			continue
		}
		out = append(out, mr)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// Render lays out the HUD table. Rows are colored by how recently the
// request was touched.
func Render(mrs []model.MergeRequest, now time.Time) string {
	if len(mrs) == 0 {
		return emptyStyle.Render("nothing waiting on you")
	}

	rows := make([][]string, len(mrs))
	rowStyles := make([]lipgloss.Style, len(mrs))
	for i, mr := range mrs {
		update := mr.LastUpdate()
		rows[i] = []string{
			mr.Author.Name,
			formatTitle(mr),
			mr.Ref,
			humanize.Time(mr.UpdatedAt),
			formatPipeline(mr),
			truncate(fmt.Sprintf("%s: %s", update.Author.Name, update.Content), maxChangeWidth),
		}
		rowStyles[i] = freshnessStyle(model.FreshnessAt(now, mr.UpdatedAt))
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers("Author", "Title", "Link", "Last Update", "CI", "Last Change").
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return rowStyles[row]
		})

	return t.Render()
}

func freshnessStyle(f model.Freshness) lipgloss.Style {
	switch f {
	case model.Fresh:
		return freshStyle
	case model.Aging:
		return agingStyle
	default:
		return staleStyle
	}
}

func formatTitle(mr model.MergeRequest) string {
	title := truncate(mr.Title, maxTitleWidth)
	if mr.HasConflicts {
		return "!" + title
	}
	return title
}

func formatPipeline(mr model.MergeRequest) string {
	p, ok := mr.LastPipeline()
	if !ok {
		return "-"
	}
	return ciStyle(p.Status).Render("● " + p.Status)
}

func truncate(s string, width int) string {
	return runewidth.Truncate(s, width, "…")
}
