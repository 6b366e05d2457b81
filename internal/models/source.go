package models

import "time"

// SourceKind distinguishes the two upstream protocols a Source can belong to.
type SourceKind string

const (
	SourceKindWeb      SourceKind = "WEB"
	SourceKindTelegram SourceKind = "TELEGRAM"
)

func (k SourceKind) String() string {
	return string(k)
}

// Source is a known upstream: a feed URL or a chat.
// (origin, kind) is unique; upsert on that key only ever touches Name.
type Source struct {
	ID             int64
	Name           string
	Origin         string
	Kind           SourceKind
	Image          *string
	LastScrapeTime time.Time
	ExternalLink   *string
}

// NewSource is the insert-or-update shape accepted by Storage.SaveSources.
type NewSource struct {
	Name         string
	Origin       string
	Kind         SourceKind
	Image        *string
	ExternalLink *string
}
