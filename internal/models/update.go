package models

import "time"

// Update is the internal sum type emitted onto the aggregator's central
// channel. Exactly one of Feed or Chat is set. Updates are ephemeral:
// ownership passes to the aggregator dispatcher and ends when the owning
// provider's ProcessUpdates returns.
type Update struct {
	Feed *FeedUpdate
	Chat *ChatUpdate
}

// FeedItem is one entry discovered by a feed crawl.
type FeedItem struct {
	GUID      string
	Content   string
	PubDate   time.Time
	Title     *string
	ImageLink *string
}

// FeedUpdate is one crawl result from the Feed Provider's collector.
type FeedUpdate struct {
	Link  string
	Name  string
	Image *string
	Items []FeedItem
}

// NewFileDescriptor is a file reference discovered by the Content Parser
// while parsing one chat message, not yet persisted.
type NewFileDescriptor struct {
	RemotePath string
	RemoteID   string
	FileName   string
	Type       FileType
	Meta       string
}

// ChatMessage is a freshly observed or edited chat message.
type ChatMessage struct {
	MessageID int
	ChatID    int64
	Date      *time.Time
	Content   *string
	Files     []NewFileDescriptor
}

// FileDownloadFinished signals that the chat collector finished downloading
// a previously-registered file to a temporary local path.
type FileDownloadFinished struct {
	LocalPath  string
	RemoteFile string
	RemoteID   string
}

// ChatUpdate is the Telegram-side half of Update. Exactly one field is set.
type ChatUpdate struct {
	Message              *ChatMessage
	FileDownloadFinished *FileDownloadFinished
}
