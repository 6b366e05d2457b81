package feed

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/aclr/agg-go/internal/models"
	"github.com/aclr/agg-go/internal/storage"
)

type fakeCollector struct {
	detected []models.FeedUpdate
}

func (f *fakeCollector) DetectFeeds(ctx context.Context, url string) ([]models.FeedUpdate, error) {
	return f.detected, nil
}

func (f *fakeCollector) Fetch(ctx context.Context, url string) (*models.FeedUpdate, error) {
	return nil, nil
}

func newTestStore(t *testing.T) storage.Storage {
	t.Helper()
	s, err := storage.Open(":memory:", zap.NewNop())
	if err != nil {
		t.Fatalf("opening storage: %v", err)
	}
	return s
}

func strPtr(s string) *string { return &s }

func TestFeedIngestNewItem(t *testing.T) {
	store := newTestStore(t)
	p := New(store, &fakeCollector{}, zap.NewNop(), time.Minute, time.Hour)
	ctx := context.Background()

	update := &models.Update{Feed: &models.FeedUpdate{
		Link: "https://x.test/rss",
		Name: "X",
		Items: []models.FeedItem{{
			GUID:    "g1",
			Content: "hello",
			PubDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			Title:   strPtr("T"),
		}},
	}}

	if err := p.ProcessUpdates(ctx, update); err != nil {
		t.Fatalf("process updates: %v", err)
	}

	sources, err := store.SearchSource(ctx, "x.test/rss")
	if err != nil || len(sources) != 1 {
		t.Fatalf("expected 1 source, got %d (err=%v)", len(sources), err)
	}
	if sources[0].Kind != models.SourceKindWeb || sources[0].Name != "X" {
		t.Fatalf("unexpected source: %+v", sources[0])
	}
	if time.Since(sources[0].LastScrapeTime) > time.Minute {
		t.Fatalf("last_scrape_time not updated: %v", sources[0].LastScrapeTime)
	}
}

func TestFeedIngestIdempotent(t *testing.T) {
	store := newTestStore(t)
	p := New(store, &fakeCollector{}, zap.NewNop(), time.Minute, time.Hour)
	ctx := context.Background()

	update := &models.Update{Feed: &models.FeedUpdate{
		Link: "https://x.test/rss",
		Name: "X",
		Items: []models.FeedItem{{
			GUID:    "g1",
			Content: "hello",
			PubDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			Title:   strPtr("T"),
		}},
	}}
	if err := p.ProcessUpdates(ctx, update); err != nil {
		t.Fatalf("first process: %v", err)
	}
	sourcesFirst, _ := store.SearchSource(ctx, "x.test/rss")
	firstID := sourcesFirst[0].ID

	// Replay with changed content: should update in place, not duplicate.
	update.Feed.Items[0].Content = "hello updated"
	if err := p.ProcessUpdates(ctx, update); err != nil {
		t.Fatalf("second process: %v", err)
	}

	sourcesSecond, _ := store.SearchSource(ctx, "x.test/rss")
	if len(sourcesSecond) != 1 || sourcesSecond[0].ID != firstID {
		t.Fatalf("source id changed or duplicated: %+v", sourcesSecond)
	}
}
