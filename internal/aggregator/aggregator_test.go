package aggregator

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/aclr/agg-go/internal/models"
	"github.com/aclr/agg-go/internal/pipeline"
	"github.com/aclr/agg-go/internal/storage"
)

func newTestStore(t *testing.T) storage.Storage {
	t.Helper()
	s, err := storage.Open(":memory:", zap.NewNop())
	if err != nil {
		t.Fatalf("opening storage: %v", err)
	}
	return s
}

type fakeProvider struct {
	kind        models.SourceKind
	searched    []models.Source
	synced      bool
	processedOK int
}

func (f *fakeProvider) GetSourceKind() models.SourceKind { return f.kind }
func (f *fakeProvider) Run(ctx context.Context, sender *pipeline.Sender) {}
func (f *fakeProvider) SearchSource(ctx context.Context, query string) ([]models.Source, error) {
	return f.searched, nil
}
func (f *fakeProvider) Synchronize(ctx context.Context, depth time.Duration) error {
	f.synced = true
	return nil
}
func (f *fakeProvider) ProcessUpdates(ctx context.Context, update *models.Update) error {
	f.processedOK++
	return nil
}

func TestSynchronizeUnknownKindIsConflict(t *testing.T) {
	feed := &fakeProvider{kind: models.SourceKindWeb}
	agg := New(zap.NewNop(), newTestStore(t), feed)

	telegramKind := models.SourceKindTelegram
	err := agg.Synchronize(context.Background(), time.Hour, &telegramKind)
	if err == nil {
		t.Fatal("expected an error for a provider that isn't enabled")
	}
	merr, ok := err.(*models.Error)
	if !ok || merr.Kind != models.KindSourceKindConflict {
		t.Fatalf("expected KindSourceKindConflict, got %v", err)
	}
}

func TestSynchronizeKnownKindRunsThatProviderOnly(t *testing.T) {
	feed := &fakeProvider{kind: models.SourceKindWeb}
	chatP := &fakeProvider{kind: models.SourceKindTelegram}
	agg := New(zap.NewNop(), newTestStore(t), feed, chatP)

	webKind := models.SourceKindWeb
	if err := agg.Synchronize(context.Background(), time.Hour, &webKind); err != nil {
		t.Fatalf("synchronize: %v", err)
	}
	if !feed.synced {
		t.Fatal("expected the web provider to run its backfill")
	}
	if chatP.synced {
		t.Fatal("expected the telegram provider to be left alone")
	}
}

func TestSearchSourceMergesAllProviders(t *testing.T) {
	feed := &fakeProvider{kind: models.SourceKindWeb, searched: []models.Source{{ID: 1, Kind: models.SourceKindWeb}}}
	chatP := &fakeProvider{kind: models.SourceKindTelegram, searched: []models.Source{{ID: 2, Kind: models.SourceKindTelegram}}}
	agg := New(zap.NewNop(), newTestStore(t), feed, chatP)

	sources, err := agg.SearchSource(context.Background(), "news")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(sources) != 2 {
		t.Fatalf("expected 2 merged sources, got %d", len(sources))
	}
}

func TestSearchSourceAppendsStorageAndDedupsByID(t *testing.T) {
	store := newTestStore(t)
	saved, err := store.SaveSources(context.Background(), []models.NewSource{
		{Name: "News", Origin: "https://news.test/feed", Kind: models.SourceKindWeb},
	})
	if err != nil {
		t.Fatalf("seeding storage: %v", err)
	}

	// feed reports the same row storage already knows about (e.g. a
	// provider-side cache echoing back an already-persisted source),
	// plus one it alone knows about.
	feed := &fakeProvider{kind: models.SourceKindWeb, searched: []models.Source{
		saved[0],
		{ID: 999, Kind: models.SourceKindWeb},
	}}
	agg := New(zap.NewNop(), store, feed)

	sources, err := agg.SearchSource(context.Background(), "news")
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	seen := map[int64]int{}
	for _, s := range sources {
		seen[s.ID]++
	}
	if seen[saved[0].ID] != 1 {
		t.Fatalf("expected storage-known source deduped to 1 occurrence, got %d", seen[saved[0].ID])
	}
	if seen[999] != 1 {
		t.Fatalf("expected provider-only source present once, got %d", seen[999])
	}
}

func TestDispatchRoutesUpdateToMatchingProvider(t *testing.T) {
	feed := &fakeProvider{kind: models.SourceKindWeb}
	chatP := &fakeProvider{kind: models.SourceKindTelegram}
	agg := New(zap.NewNop(), newTestStore(t), feed, chatP)

	agg.dispatch(context.Background(), pipeline.Result{Update: &models.Update{Chat: &models.ChatUpdate{}}})
	if chatP.processedOK != 1 {
		t.Fatalf("expected chat provider to process the update, got %d", chatP.processedOK)
	}
	if feed.processedOK != 0 {
		t.Fatalf("expected feed provider untouched, got %d", feed.processedOK)
	}
}
