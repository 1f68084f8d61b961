package sync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/marcin-skalski/gitlab-hud/internal/model"
)

var t0 = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeFetcher serves a fixed feed sorted by UpdatedAt descending, like
// the remote does.
type fakeFetcher struct {
	feed       []model.MergeRequest
	listErr    error
	fetchErr   error
	fetchCalls int
}

func (f *fakeFetcher) ListOpen(_ context.Context, page, perPage int) ([]model.MRHeader, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	start := (page - 1) * perPage
	if start >= len(f.feed) {
		return nil, nil
	}
	end := start + perPage
	if end > len(f.feed) {
		end = len(f.feed)
	}
	var headers []model.MRHeader
	for _, mr := range f.feed[start:end] {
		headers = append(headers, model.MRHeader{ID: mr.ID, IID: mr.ID, UpdatedAt: mr.UpdatedAt})
	}
	return headers, nil
}

func (f *fakeFetcher) Fetch(_ context.Context, h model.MRHeader) (model.MergeRequest, error) {
	if f.fetchErr != nil {
		return model.MergeRequest{}, f.fetchErr
	}
	f.fetchCalls++
	for _, mr := range f.feed {
		if mr.ID == h.ID {
			return mr, nil
		}
	}
	return model.MergeRequest{}, errors.New("not in feed")
}

// fakeStore is an in-memory Store.
type fakeStore struct {
	records   map[int64]model.MergeRequest
	watermark time.Time
	putCalls  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[int64]model.MergeRequest)}
}

func (s *fakeStore) Put(mr model.MergeRequest) error {
	s.putCalls++
	s.records[mr.ID] = mr
	return nil
}

func (s *fakeStore) All() ([]model.MergeRequest, error) {
	var out []model.MergeRequest
	for _, mr := range s.records {
		out = append(out, mr)
	}
	return out, nil
}

func (s *fakeStore) Watermark() (time.Time, error) { return s.watermark, nil }

func (s *fakeStore) AdvanceWatermark(c time.Time) error {
	if c.After(s.watermark) {
		s.watermark = c
	}
	return nil
}

func mr(id int64, updatedAt time.Time) model.MergeRequest {
	return model.MergeRequest{ID: id, Title: "mr", UpdatedAt: updatedAt}
}

func TestRun_CutoffAtWatermark(t *testing.T) {
	fetcher := &fakeFetcher{feed: []model.MergeRequest{
		mr(1, t0.Add(3*time.Hour)),
		mr(2, t0.Add(2*time.Hour)),
		mr(3, t0.Add(-time.Hour)),
	}}
	store := newFakeStore()
	store.watermark = t0

	res, err := New(fetcher, store, Options{}, discardLogger()).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Fetched != 2 {
		t.Errorf("fetched %d, want 2 (stop at first record <= watermark)", res.Fetched)
	}
	if fetcher.fetchCalls != 2 {
		t.Errorf("remote fetch calls = %d, want exactly the prefix ahead of the watermark", fetcher.fetchCalls)
	}
	if store.putCalls != 2 {
		t.Errorf("persisted %d snapshots, want 2", store.putCalls)
	}
	if !store.watermark.Equal(t0.Add(3 * time.Hour)) {
		t.Errorf("watermark = %v, want %v", store.watermark, t0.Add(3*time.Hour))
	}
	if res.Truncated {
		t.Error("run should not report truncation")
	}
}

func TestRun_UnionOfFreshAndCached(t *testing.T) {
	store := newFakeStore()
	store.watermark = t0
	// Cached from earlier runs, older than the watermark.
	store.records[10] = mr(10, t0.Add(-2*time.Hour))
	store.records[11] = mr(11, t0.Add(-3*time.Hour))

	fetcher := &fakeFetcher{feed: []model.MergeRequest{
		mr(1, t0.Add(time.Hour)),
		mr(10, t0.Add(-2*time.Hour)), // below watermark, must not be re-fetched
	}}

	res, err := New(fetcher, store, Options{}, discardLogger()).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	seen := make(map[int64]int)
	for _, m := range res.MergeRequests {
		seen[m.ID]++
	}
	for _, id := range []int64{1, 10, 11} {
		if seen[id] != 1 {
			t.Errorf("MR %d yielded %d times, want exactly once", id, seen[id])
		}
	}
	if len(res.MergeRequests) != 3 {
		t.Errorf("population size %d, want 3", len(res.MergeRequests))
	}
}

func TestRun_CrashRecoveryRefetches(t *testing.T) {
	// A previous run persisted MR 1 but crashed before the watermark
	// passed it: the snapshot sits in the store while the watermark is
	// still behind.
	store := newFakeStore()
	store.watermark = t0
	store.records[1] = mr(1, t0.Add(time.Hour))

	fetcher := &fakeFetcher{feed: []model.MergeRequest{mr(1, t0.Add(time.Hour))}}

	res, err := New(fetcher, store, Options{}, discardLogger()).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Fetched != 1 {
		t.Errorf("fetched %d, want the interrupted record re-fetched", res.Fetched)
	}
	if len(res.MergeRequests) != 1 {
		t.Errorf("MR 1 yielded %d times, want once", len(res.MergeRequests))
	}
	if !store.watermark.Equal(t0.Add(time.Hour)) {
		t.Errorf("watermark = %v, want advanced past the record", store.watermark)
	}
}

func TestRun_WatermarkMonotonicAcrossRuns(t *testing.T) {
	store := newFakeStore()
	fetcher := &fakeFetcher{feed: []model.MergeRequest{mr(1, t0.Add(time.Hour))}}
	engine := New(fetcher, store, Options{}, discardLogger())

	if _, err := engine.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	after1 := store.watermark

	// Same feed again: nothing new, watermark must hold.
	if _, err := engine.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if store.watermark.Before(after1) {
		t.Fatalf("watermark went backwards: %v -> %v", after1, store.watermark)
	}
	if fetcher.fetchCalls != 1 {
		t.Fatalf("second run re-fetched an already-covered record (%d calls)", fetcher.fetchCalls)
	}
}

func TestRun_TruncatesAtMaxFetch(t *testing.T) {
	feed := []model.MergeRequest{
		mr(1, t0.Add(4*time.Hour)),
		mr(2, t0.Add(3*time.Hour)),
		mr(3, t0.Add(2*time.Hour)),
	}
	fetcher := &fakeFetcher{feed: feed}
	store := newFakeStore()
	store.watermark = t0

	res, err := New(fetcher, store, Options{MaxFetch: 2}, discardLogger()).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Fetched != 2 {
		t.Errorf("fetched %d, want 2", res.Fetched)
	}
	if !res.Truncated {
		t.Error("expected Truncated to be reported")
	}
}

func TestRun_ListErrorPropagates(t *testing.T) {
	fetcher := &fakeFetcher{listErr: errors.New("boom")}
	if _, err := New(fetcher, newFakeStore(), Options{}, discardLogger()).Run(context.Background()); err == nil {
		t.Fatal("expected list error to propagate")
	}
}

func TestRun_FetchErrorPropagates(t *testing.T) {
	fetcher := &fakeFetcher{
		feed:     []model.MergeRequest{mr(1, t0.Add(time.Hour))},
		fetchErr: errors.New("boom"),
	}
	if _, err := New(fetcher, newFakeStore(), Options{}, discardLogger()).Run(context.Background()); err == nil {
		t.Fatal("expected fetch error to propagate")
	}
}
