package storage

import (
	"context"
	"testing"
	"time"

	"github.com/aclr/agg-go/internal/models"
	"go.uber.org/zap"
)

func newTestStorage(t *testing.T) *GormStorage {
	t.Helper()
	s, err := Open(":memory:", zap.NewNop())
	if err != nil {
		t.Fatalf("opening test storage: %v", err)
	}
	return s
}

func strPtr(s string) *string { return &s }

func TestSourceDedupLastWriteWins(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	first, err := s.SaveSources(ctx, []models.NewSource{{Name: "X", Origin: "https://x.test/rss", Kind: models.SourceKindWeb}})
	if err != nil {
		t.Fatalf("first save: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("expected 1 source, got %d", len(first))
	}
	id := first[0].ID

	second, err := s.SaveSources(ctx, []models.NewSource{{Name: "X renamed", Origin: "https://x.test/rss", Kind: models.SourceKindWeb}})
	if err != nil {
		t.Fatalf("second save: %v", err)
	}
	if second[0].ID != id {
		t.Fatalf("id reassigned: got %d want %d", second[0].ID, id)
	}
	if second[0].Name != "X renamed" {
		t.Fatalf("name not updated: got %q", second[0].Name)
	}
}

func TestGetSourceByID(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	saved, err := s.SaveSources(ctx, []models.NewSource{{Name: "X", Origin: "https://x.test/rss", Kind: models.SourceKindWeb}})
	if err != nil {
		t.Fatalf("saving source: %v", err)
	}

	got, err := s.GetSource(ctx, saved[0].ID)
	if err != nil {
		t.Fatalf("getting source: %v", err)
	}
	if got == nil || got.Name != "X" {
		t.Fatalf("expected source %+v, got %+v", saved[0], got)
	}

	missing, err := s.GetSource(ctx, saved[0].ID+1000)
	if err != nil {
		t.Fatalf("getting missing source: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for missing source, got %+v", missing)
	}
}

func TestRecordDedupPreservesTitleUpdatesContent(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	sources, err := s.SaveSources(ctx, []models.NewSource{{Name: "X", Origin: "https://x.test/rss", Kind: models.SourceKindWeb}})
	if err != nil {
		t.Fatalf("save source: %v", err)
	}
	sourceID := sources[0].ID

	inserted, err := s.SaveRecords(ctx, []models.NewRecord{{
		SourceRecordID: "g1",
		SourceID:       sourceID,
		Content:        "hello",
		Title:          strPtr("T"),
		Date:           time.Now(),
	}})
	if err != nil {
		t.Fatalf("first save: %v", err)
	}
	if len(inserted) != 1 {
		t.Fatalf("expected 1 newly inserted row, got %d", len(inserted))
	}

	second, err := s.SaveRecords(ctx, []models.NewRecord{{
		SourceRecordID: "g1",
		SourceID:       sourceID,
		Content:        "hello v2",
		Title:          strPtr("different title"),
		Date:           time.Now(),
	}})
	if err != nil {
		t.Fatalf("second save: %v", err)
	}
	if len(second) != 0 {
		t.Fatalf("expected 0 newly inserted rows on conflict, got %d", len(second))
	}

	rows, err := s.SearchSource(ctx, "x.test")
	if err != nil || len(rows) != 1 {
		t.Fatalf("expected exactly one source row after dedup, got %d err=%v", len(rows), err)
	}

	var got recordRow
	if err := s.db.Where("source_record_id = ? AND source_id = ?", "g1", sourceID).First(&got).Error; err != nil {
		t.Fatalf("reading back record: %v", err)
	}
	if got.Content != "hello v2" {
		t.Fatalf("content not overwritten: got %q", got.Content)
	}
	if got.Title == nil || *got.Title != "T" {
		t.Fatalf("title should be preserved from first insert, got %v", got.Title)
	}
}

func TestFileDedupByRemoteID(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	sources, err := s.SaveSources(ctx, []models.NewSource{{Name: "c", Origin: "100", Kind: models.SourceKindTelegram}})
	if err != nil {
		t.Fatalf("save source: %v", err)
	}
	inserted, err := s.SaveRecords(ctx, []models.NewRecord{{SourceRecordID: "7", SourceID: sources[0].ID, Content: "hi", Date: time.Now()}})
	if err != nil || len(inserted) != 1 {
		t.Fatalf("save record: %v %d", err, len(inserted))
	}
	recordID := inserted[0].ID

	newFile := models.NewFile{RecordID: recordID, Kind: models.SourceKindTelegram, RemotePath: "remote/path", RemoteID: "R1", Type: models.FileTypeImage}
	if err := s.SaveFiles(ctx, []models.NewFile{newFile}); err != nil {
		t.Fatalf("first save files: %v", err)
	}
	if err := s.SaveFiles(ctx, []models.NewFile{newFile}); err != nil {
		t.Fatalf("duplicate save files: %v", err)
	}

	var count int64
	s.db.Model(&fileRow{}).Where("remote_id = ?", "R1").Count(&count)
	if count != 1 {
		t.Fatalf("expected exactly 1 file row, got %d", count)
	}

	f, err := s.GetFileByRemoteID(ctx, "R1")
	if err != nil || f == nil {
		t.Fatalf("get file by remote id: %v %v", err, f)
	}
	if f.LocalPath != nil {
		t.Fatalf("local path should be nil before download, got %v", *f.LocalPath)
	}

	if err := s.SaveFile(ctx, f.ID, "/data/final.jpg", "final.jpg"); err != nil {
		t.Fatalf("save file: %v", err)
	}
	again, err := s.GetFileByRemoteID(ctx, "R1")
	if err != nil || again == nil || again.LocalPath == nil || *again.LocalPath != "/data/final.jpg" {
		t.Fatalf("local path not set exactly once: %+v", again)
	}
}

func TestSetRecordExternalLinkIdempotent(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	sources, err := s.SaveSources(ctx, []models.NewSource{{Name: "X", Origin: "https://x.test/rss", Kind: models.SourceKindWeb}})
	if err != nil {
		t.Fatalf("save source: %v", err)
	}
	if _, err := s.SaveRecords(ctx, []models.NewRecord{{SourceRecordID: "g1", SourceID: sources[0].ID, Content: "hello", Date: time.Now()}}); err != nil {
		t.Fatalf("save record: %v", err)
	}

	if err := s.SetRecordExternalLink(ctx, "g1", sources[0].ID, "g1"); err != nil {
		t.Fatalf("first set: %v", err)
	}
	if err := s.SetRecordExternalLink(ctx, "g1", sources[0].ID, "g1"); err != nil {
		t.Fatalf("second set: %v", err)
	}

	var got recordRow
	if err := s.db.Where("source_record_id = ? AND source_id = ?", "g1", sources[0].ID).First(&got).Error; err != nil {
		t.Fatalf("reading back: %v", err)
	}
	if got.ExternalLink == nil || *got.ExternalLink != "g1" {
		t.Fatalf("external link not set: %v", got.ExternalLink)
	}
}
