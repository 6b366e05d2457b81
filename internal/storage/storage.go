// Package storage defines the persistence port every provider and the
// aggregator depend on, plus a gorm-backed implementation. Backends fail
// operations with *models.Error{Kind: KindStorage}; a "not found" reported
// by the underlying driver is normalized to an empty result here, never
// surfaced as an error.
package storage

import (
	"context"
	"time"

	"github.com/aclr/agg-go/internal/models"
)

// Storage is the abstract persistence port. Any relational backing store
// must satisfy it; migrations and schema DDL are this package's concern
// alone, never the caller's.
type Storage interface {
	// SaveSources bulk-upserts by (origin, kind), updating Name only on
	// conflict, and returns every row (new and pre-existing) with its
	// assigned ID.
	SaveSources(ctx context.Context, sources []models.NewSource) ([]models.Source, error)

	// SearchSource substring-matches origin, external_link and name.
	// Never returns an error for "nothing found" — an empty slice instead.
	SearchSource(ctx context.Context, query string) ([]models.Source, error)

	// GetSourcesForScrape returns sources of the given kind whose
	// LastScrapeTime is older than now-interval.
	GetSourcesForScrape(ctx context.Context, kind models.SourceKind, interval time.Duration) ([]models.Source, error)

	// GetSource returns the row identified by its primary key, or nil if
	// none exists.
	GetSource(ctx context.Context, sourceID int64) (*models.Source, error)

	// SetSourceScrapedNow atomically sets LastScrapeTime = now.
	SetSourceScrapedNow(ctx context.Context, sourceID int64) error

	// SaveRecords upserts by (source_record_id, source_id); on conflict
	// only Content is updated (Title/Image are preserved from the first
	// insert). Returns ONLY the rows that were newly inserted — callers
	// must never schedule file downloads or external-link backfill off
	// the full batch.
	SaveRecords(ctx context.Context, records []models.NewRecord) ([]models.Record, error)

	// SetRecordExternalLink is idempotent: calling it twice with the same
	// arguments has the same effect as calling it once.
	SetRecordExternalLink(ctx context.Context, sourceRecordID string, sourceID int64, link string) error

	// SaveFiles upserts by RemoteID, silently ignoring rows whose
	// RemoteID already exists (registration must never overwrite a file
	// already being tracked).
	SaveFiles(ctx context.Context, files []models.NewFile) error

	// GetFileByRemoteID returns at most one row, or nil if none exists.
	// Finding more than one is a storage integrity error.
	GetFileByRemoteID(ctx context.Context, remoteID string) (*models.File, error)

	// GetFile returns the row identified by its primary key, or nil if
	// none exists.
	GetFile(ctx context.Context, fileID int64) (*models.File, error)

	// SaveFile updates LocalPath and FileName on the row identified by id.
	SaveFile(ctx context.Context, fileID int64, localPath, fileName string) error
}
