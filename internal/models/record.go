package models

import "time"

// Record is a single ingested item: a feed entry or a chat message.
// (source_record_id, source_id) is unique; upsert on conflict touches
// Content only — Title and Image are preserved from the first insert.
type Record struct {
	ID             int64
	Title          *string
	SourceRecordID string
	SourceID       int64
	Content        string
	Date           time.Time
	Image          *string
	ExternalLink   *string
}

// NewRecord is the insert-or-update shape accepted by Storage.SaveRecords.
type NewRecord struct {
	Title          *string
	SourceRecordID string
	SourceID       int64
	Content        string
	Date           time.Time
	Image          *string
}
