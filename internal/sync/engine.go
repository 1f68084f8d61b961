// Package sync implements the incremental synchronization engine: it
// fetches only the merge requests that changed since the last run,
// merges them into the local store, and hands the view layer the full
// open-request population exactly once per request.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/marcin-skalski/gitlab-hud/internal/model"
)

// Fetcher yields remote merge requests newest-first, paginated.
type Fetcher interface {
	// ListOpen returns one page of open merge request headers ordered
	// by updated_at descending. An empty page ends the feed.
	ListOpen(ctx context.Context, page, perPage int) ([]model.MRHeader, error)
	// Fetch assembles the full snapshot for a header.
	Fetch(ctx context.Context, h model.MRHeader) (model.MergeRequest, error)
}

// Store is the persistence the engine needs: snapshot records plus the
// single global watermark.
type Store interface {
	Put(mr model.MergeRequest) error
	All() ([]model.MergeRequest, error)
	Watermark() (time.Time, error)
	AdvanceWatermark(candidate time.Time) error
}

// Options bound one sync run.
type Options struct {
	PerPage  int // page size for the remote listing
	MaxFetch int // hard cap on full snapshots fetched per run
}

// DefaultOptions match the remote's pagination sweet spot and keep a
// first run against a large project bounded.
func DefaultOptions() Options {
	return Options{PerPage: 10, MaxFetch: 50}
}

// Result is what one sync run produced.
type Result struct {
	// MergeRequests is the union of freshly fetched and previously
	// cached snapshots, one per request ID.
	MergeRequests []model.MergeRequest
	// Fetched counts the snapshots pulled from the remote this run.
	Fetched int
	// Truncated is set when the run stopped at MaxFetch with remote
	// records still ahead of the watermark; the next run picks them up.
	Truncated bool
}

// Engine drives a Fetcher, advances the watermark, and updates the store.
type Engine struct {
	fetcher Fetcher
	store   Store
	opts    Options
	logger  *slog.Logger
}

// New creates a sync engine. Options with zero values fall back to
// DefaultOptions.
func New(fetcher Fetcher, store Store, opts Options, logger *slog.Logger) *Engine {
	def := DefaultOptions()
	if opts.PerPage <= 0 {
		opts.PerPage = def.PerPage
	}
	if opts.MaxFetch <= 0 {
		opts.MaxFetch = def.MaxFetch
	}
	return &Engine{fetcher: fetcher, store: store, opts: opts, logger: logger}
}

// Run performs one synchronization pass.
//
// The remote feed is ordered by updated_at descending, so the first
// record at or below the watermark proves everything after it is already
// cached and fetching stops there. Each fresh snapshot is persisted
// before the watermark advances past it: a crash mid-run re-fetches at
// most the in-flight record and never skips one.
func (e *Engine) Run(ctx context.Context) (Result, error) {
	watermark, err := e.store.Watermark()
	if err != nil {
		return Result{}, err
	}
	e.logger.Debug("sync started", "watermark", watermark)

	var res Result
	fresh := make(map[int64]struct{})

	if err := e.fetchFresh(ctx, watermark, &res, fresh); err != nil {
		return Result{}, err
	}

	// Everything at or below the watermark was not re-fetched; serve it
	// from the cache so the view sees the full population.
	cached, err := e.store.All()
	if err != nil {
		return Result{}, err
	}
	for _, mr := range cached {
		if _, ok := fresh[mr.ID]; ok {
			// Freshness wins; the cache is the fallback for the rest.
			continue
		}
		res.MergeRequests = append(res.MergeRequests, mr)
	}

	e.logger.Info("sync finished",
		"fetched", res.Fetched,
		"total", len(res.MergeRequests),
		"truncated", res.Truncated)
	return res, nil
}

// fetchFresh walks the descending feed until the watermark cutoff, the
// feed end, or the fetch cap, persisting each snapshot as it lands.
func (e *Engine) fetchFresh(ctx context.Context, watermark time.Time, res *Result, fresh map[int64]struct{}) error {
	for page := 1; ; page++ {
		headers, err := e.fetcher.ListOpen(ctx, page, e.opts.PerPage)
		if err != nil {
			return fmt.Errorf("list page %d: %w", page, err)
		}
		if len(headers) == 0 {
			return nil
		}

		for _, h := range headers {
			if !h.UpdatedAt.After(watermark) {
				// Incremental cutoff: the rest of the feed is older
				// than the last completed sync.
				return nil
			}
			if res.Fetched >= e.opts.MaxFetch {
				res.Truncated = true
				e.logger.Warn("fetch cap reached, remote has more changes",
					"cap", e.opts.MaxFetch)
				return nil
			}

			mr, err := e.fetcher.Fetch(ctx, h)
			if err != nil {
				return fmt.Errorf("fetch MR %d: %w", h.ID, err)
			}
			if err := e.store.Put(mr); err != nil {
				return err
			}
			if err := e.store.AdvanceWatermark(mr.UpdatedAt); err != nil {
				return err
			}

			fresh[mr.ID] = struct{}{}
			res.MergeRequests = append(res.MergeRequests, mr)
			res.Fetched++
		}
	}
}
