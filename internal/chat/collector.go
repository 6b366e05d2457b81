// Package chat implements the Chat Provider: a thin domain layer over an
// opaque Telegram collector (Collector), owning the update-stream listener,
// channel search/backfill, and the file download lifecycle.
package chat

import (
	"context"
	"time"

	"github.com/gotd/td/tg"

	"github.com/aclr/agg-go/internal/models"
)

// Channel is the collector's normalized view of a chat/channel, enough to
// persist as a Source.
type Channel struct {
	ChatID     int64
	AccessHash int64
	Title      string
	Username   string // empty if the channel has no public username
}

// HistoryMessage is one message yielded by a bounded history backfill.
type HistoryMessage struct {
	MessageID int
	Date      time.Time
	Raw       tg.MessageClass
}

// DownloadedFile is what the collector reports once a previously
// requested download finishes.
type DownloadedFile struct {
	LocalPath  string
	RemoteFile string
	RemoteID   string
}

// RawUpdate is one item off the collector's update stream: exactly one of
// Message or Downloaded is set.
type RawUpdate struct {
	ChatID     int64
	Message    tg.MessageClass
	Downloaded *DownloadedFile
}

// Collector is the opaque chat-protocol client surface the provider
// depends on: an update stream, chat search, history backfill, and a
// download-file RPC. Concrete backing (gotd/td + gotgproto) is the
// engine's only external collaborator here, per spec.
type Collector interface {
	// Start connects the underlying client. Blocking writer operation.
	Start(ctx context.Context) error

	// Updates returns the live update stream. The provider's Run returns
	// once the channel is closed.
	Updates(ctx context.Context) (<-chan RawUpdate, error)

	// SearchPublicChats is a reader operation.
	SearchPublicChats(ctx context.Context, query string) ([]Channel, error)

	// GetChannel is a reader operation; nil, nil means "no such channel".
	GetChannel(ctx context.Context, chatID int64) (*Channel, error)

	// JoinChat is a writer operation.
	JoinChat(ctx context.Context, chatID int64) error

	// GetAllChannels is a reader operation, bounded by limit.
	GetAllChannels(ctx context.Context, limit int) ([]Channel, error)

	// GetChatHistoryStream is a reader operation: messages older than
	// until are not yielded; the channel closes once the boundary or the
	// end of history is reached.
	GetChatHistoryStream(ctx context.Context, chatID int64, until time.Time) (<-chan HistoryMessage, error)

	// GetMessageLink is a reader operation.
	GetMessageLink(ctx context.Context, chatID int64, messageID int) (string, error)

	// DownloadFile is a writer operation that returns as soon as the
	// request is queued — it must not block on the transfer itself.
	DownloadFile(ctx context.Context, descriptor models.NewFileDescriptor) error
}
