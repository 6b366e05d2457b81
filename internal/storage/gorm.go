package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aclr/agg-go/internal/models"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// sourceRow, recordRow and fileRow are the gorm-mapped shapes of the three
// persisted tables named in the engine's external interface. Field order
// and naming follow gorm's default snake_case convention.
type sourceRow struct {
	ID             int64  `gorm:"primaryKey;autoIncrement"`
	Name           string
	Origin         string `gorm:"uniqueIndex:idx_sources_origin_kind"`
	Kind           string `gorm:"uniqueIndex:idx_sources_origin_kind"`
	Image          *string
	LastScrapeTime time.Time
	ExternalLink   *string
}

func (sourceRow) TableName() string { return "sources" }

type recordRow struct {
	ID             int64  `gorm:"primaryKey;autoIncrement"`
	Title          *string
	SourceRecordID string `gorm:"uniqueIndex:idx_records_sri_source"`
	SourceID       int64  `gorm:"uniqueIndex:idx_records_sri_source"`
	Content        string
	Date           time.Time
	Image          *string
	ExternalLink   *string
}

func (recordRow) TableName() string { return "records" }

type fileRow struct {
	ID         int64 `gorm:"primaryKey;autoIncrement"`
	RecordID   int64
	Kind       string
	LocalPath  *string
	RemotePath string
	RemoteID   *string `gorm:"uniqueIndex:idx_files_remote_id"`
	FileName   *string
	Type       string
	Meta       *string
}

func (fileRow) TableName() string { return "files" }

// GormStorage backs Storage with gorm.io/gorm over modernc.org/sqlite (via
// the pure-Go glebarez/sqlite dialector, the same driver this codebase
// already uses for session storage). AutoMigrate is the allowed minimal
// schema bootstrap — no migration runner is provided or expected.
type GormStorage struct {
	db  *gorm.DB
	log *zap.Logger
}

// Open creates (or attaches to) the sqlite database at path and ensures
// the schema exists.
func Open(path string, log *zap.Logger) (*GormStorage, error) {
	log = log.Named("Storage")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("opening storage db: %w", err)
	}
	if err := db.AutoMigrate(&sourceRow{}, &recordRow{}, &fileRow{}); err != nil {
		return nil, fmt.Errorf("migrating storage schema: %w", err)
	}
	log.Info("Storage ready", zap.String("path", path))
	return &GormStorage{db: db, log: log}, nil
}

func sourceFromRow(r sourceRow) models.Source {
	return models.Source{
		ID:             r.ID,
		Name:           r.Name,
		Origin:         r.Origin,
		Kind:           models.SourceKind(r.Kind),
		Image:          r.Image,
		LastScrapeTime: r.LastScrapeTime,
		ExternalLink:   r.ExternalLink,
	}
}

func (s *GormStorage) SaveSources(ctx context.Context, sources []models.NewSource) ([]models.Source, error) {
	if len(sources) == 0 {
		return nil, nil
	}
	rows := make([]sourceRow, len(sources))
	for i, src := range sources {
		rows[i] = sourceRow{
			Name:         src.Name,
			Origin:       src.Origin,
			Kind:         string(src.Kind),
			Image:        src.Image,
			ExternalLink: src.ExternalLink,
		}
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "origin"}, {Name: "kind"}},
		DoUpdates: clause.AssignmentColumns([]string{"name"}),
	}).Create(&rows).Error
	if err != nil {
		return nil, models.NewStorageError(err)
	}
	// sqlite's RETURNING via gorm only reports the rows it actually
	// inserted; re-read by key so callers get every row's assigned id,
	// matching save_sources' "returns the persisted rows" contract.
	out := make([]models.Source, 0, len(sources))
	for _, src := range sources {
		var row sourceRow
		err := s.db.WithContext(ctx).
			Where("origin = ? AND kind = ?", src.Origin, string(src.Kind)).
			First(&row).Error
		if err != nil {
			return nil, models.NewStorageError(err)
		}
		out = append(out, sourceFromRow(row))
	}
	return out, nil
}

func (s *GormStorage) SearchSource(ctx context.Context, query string) ([]models.Source, error) {
	like := "%" + query + "%"
	var rows []sourceRow
	err := s.db.WithContext(ctx).
		Where("origin LIKE ? OR external_link LIKE ? OR name LIKE ?", like, like, like).
		Find(&rows).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return []models.Source{}, nil
		}
		return nil, models.NewStorageError(err)
	}
	out := make([]models.Source, len(rows))
	for i, r := range rows {
		out[i] = sourceFromRow(r)
	}
	return out, nil
}

func (s *GormStorage) GetSourcesForScrape(ctx context.Context, kind models.SourceKind, interval time.Duration) ([]models.Source, error) {
	cutoff := time.Now().Add(-interval)
	var rows []sourceRow
	err := s.db.WithContext(ctx).
		Where("kind = ? AND last_scrape_time < ?", string(kind), cutoff).
		Find(&rows).Error
	if err != nil {
		return nil, models.NewStorageError(err)
	}
	out := make([]models.Source, len(rows))
	for i, r := range rows {
		out[i] = sourceFromRow(r)
	}
	return out, nil
}

func (s *GormStorage) GetSource(ctx context.Context, sourceID int64) (*models.Source, error) {
	var row sourceRow
	err := s.db.WithContext(ctx).First(&row, sourceID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewStorageError(err)
	}
	src := sourceFromRow(row)
	return &src, nil
}

func (s *GormStorage) SetSourceScrapedNow(ctx context.Context, sourceID int64) error {
	err := s.db.WithContext(ctx).
		Model(&sourceRow{}).
		Where("id = ?", sourceID).
		Update("last_scrape_time", time.Now()).Error
	if err != nil {
		return models.NewStorageError(err)
	}
	return nil
}

func recordFromRow(r recordRow) models.Record {
	return models.Record{
		ID:             r.ID,
		Title:          r.Title,
		SourceRecordID: r.SourceRecordID,
		SourceID:       r.SourceID,
		Content:        r.Content,
		Date:           r.Date,
		Image:          r.Image,
		ExternalLink:   r.ExternalLink,
	}
}

// SaveRecords upserts in one transaction, record by record: an existing
// row (keyed by source_record_id+source_id) has its content updated in
// place; any other record is inserted on its own and returned as "newly
// inserted".
func (s *GormStorage) SaveRecords(ctx context.Context, records []models.NewRecord) ([]models.Record, error) {
	if len(records) == 0 {
		return nil, nil
	}
	var inserted []models.Record
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, rec := range records {
			var existing recordRow
			err := tx.Where("source_record_id = ? AND source_id = ?", rec.SourceRecordID, rec.SourceID).
				First(&existing).Error
			switch {
			case err == nil:
				if err := tx.Model(&recordRow{}).Where("id = ?", existing.ID).
					Update("content", rec.Content).Error; err != nil {
					return err
				}
			case errors.Is(err, gorm.ErrRecordNotFound):
				row := recordRow{
					Title:          rec.Title,
					SourceRecordID: rec.SourceRecordID,
					SourceID:       rec.SourceID,
					Content:        rec.Content,
					Date:           rec.Date,
					Image:          rec.Image,
				}
				if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
					return err
				}
				if row.ID == 0 {
					// another writer raced us between the lookup and the
					// insert; the row now exists but wasn't newly
					// inserted by this call.
					continue
				}
				inserted = append(inserted, recordFromRow(row))
			default:
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, models.NewStorageError(err)
	}
	return inserted, nil
}

func (s *GormStorage) SetRecordExternalLink(ctx context.Context, sourceRecordID string, sourceID int64, link string) error {
	err := s.db.WithContext(ctx).
		Model(&recordRow{}).
		Where("source_record_id = ? AND source_id = ?", sourceRecordID, sourceID).
		Update("external_link", link).Error
	if err != nil {
		return models.NewStorageError(err)
	}
	return nil
}

func (s *GormStorage) SaveFiles(ctx context.Context, files []models.NewFile) error {
	if len(files) == 0 {
		return nil
	}
	rows := make([]fileRow, len(files))
	for i, f := range files {
		remoteID := f.RemoteID
		fileName := f.FileName
		meta := f.Meta
		rows[i] = fileRow{
			RecordID:   f.RecordID,
			Kind:       string(f.Kind),
			RemotePath: f.RemotePath,
			RemoteID:   &remoteID,
			FileName:   &fileName,
			Type:       string(f.Type),
			Meta:       &meta,
		}
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
	if err != nil {
		return models.NewStorageError(err)
	}
	return nil
}

func fileFromRow(r fileRow) models.File {
	return models.File{
		ID:         r.ID,
		RecordID:   r.RecordID,
		Kind:       models.SourceKind(r.Kind),
		LocalPath:  r.LocalPath,
		RemotePath: r.RemotePath,
		RemoteID:   r.RemoteID,
		FileName:   r.FileName,
		Type:       models.FileType(r.Type),
		Meta:       r.Meta,
	}
}

func (s *GormStorage) GetFileByRemoteID(ctx context.Context, remoteID string) (*models.File, error) {
	var rows []fileRow
	err := s.db.WithContext(ctx).Where("remote_id = ?", remoteID).Find(&rows).Error
	if err != nil {
		return nil, models.NewStorageError(err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	if len(rows) > 1 {
		return nil, models.NewStorageError(fmt.Errorf("integrity violation: %d files share remote_id %q", len(rows), remoteID))
	}
	f := fileFromRow(rows[0])
	return &f, nil
}

func (s *GormStorage) GetFile(ctx context.Context, fileID int64) (*models.File, error) {
	var row fileRow
	err := s.db.WithContext(ctx).First(&row, fileID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewStorageError(err)
	}
	f := fileFromRow(row)
	return &f, nil
}

func (s *GormStorage) SaveFile(ctx context.Context, fileID int64, localPath, fileName string) error {
	err := s.db.WithContext(ctx).Model(&fileRow{}).Where("id = ?", fileID).
		Updates(map[string]any{"local_path": localPath, "file_name": fileName}).Error
	if err != nil {
		return models.NewStorageError(err)
	}
	return nil
}
