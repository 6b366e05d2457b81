package chat

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/celestix/gotgproto"
	"github.com/celestix/gotgproto/dispatcher"
	"github.com/celestix/gotgproto/dispatcher/handlers"
	"github.com/celestix/gotgproto/dispatcher/handlers/filters"
	"github.com/celestix/gotgproto/ext"
	"github.com/celestix/gotgproto/sessionMaker"
	"github.com/glebarez/sqlite"
	"github.com/gotd/td/telegram/downloader"
	"github.com/gotd/td/tg"
	"go.uber.org/zap"

	"github.com/aclr/agg-go/internal/models"
)

// TelegramCollector is the concrete Collector backing the Chat Provider:
// a single gotgproto user-session client plus the raw gotd/td API it
// exposes, with a database-backed session and the flood/ratelimit
// middleware of GetFloodMiddleware — the one long-lived user session this
// domain needs to search and join public chats.
type TelegramCollector struct {
	apiID      int
	apiHash    string
	phone      string
	dbPath     string
	stagingDir string
	log        *zap.Logger

	client *gotgproto.Client

	mu           sync.RWMutex // guards accessHashes and pendingFiles
	accessHashes map[int64]int64
	pendingFiles map[string]fileLocation

	updatesMu sync.Mutex // writer-serializes the single Updates() subscriber
	updatesCh chan RawUpdate
}

type fileLocation struct {
	inputDoc   *tg.InputDocumentFileLocation
	inputPhoto *tg.InputPhotoFileLocation
}

// NewTelegramCollector builds a collector that stages downloads under
// stagingDir, a directory private to this collector — the engine is the
// only thing that ever moves a completed download into files_directory.
func NewTelegramCollector(apiID int, apiHash, phone, dbPath, stagingDir string, log *zap.Logger) *TelegramCollector {
	return &TelegramCollector{
		apiID:        apiID,
		apiHash:      apiHash,
		phone:        phone,
		dbPath:       dbPath,
		stagingDir:   stagingDir,
		log:          log.Named("TelegramCollector"),
		accessHashes: make(map[int64]int64),
		pendingFiles: make(map[string]fileLocation),
		updatesCh:    make(chan RawUpdate, 256),
	}
}

// Start logs in (prompting for a login code on first run, same as any
// gotgproto user session) and wires the dispatcher that feeds Updates().
func (c *TelegramCollector) Start(ctx context.Context) error {
	client, err := gotgproto.NewClient(
		c.apiID,
		c.apiHash,
		gotgproto.ClientTypePhone(c.phone),
		&gotgproto.ClientOpts{
			Session:          sessionMaker.SqlSession(sqlite.Open(c.dbPath)),
			DisableCopyright: true,
			Middlewares:      GetFloodMiddleware(c.log),
		},
	)
	if err != nil {
		return fmt.Errorf("starting telegram client: %w", err)
	}
	c.client = client
	client.Dispatcher.AddHandler(handlers.NewMessage(filters.Message.All, c.onMessage))

	if err := os.MkdirAll(c.stagingDir, 0o755); err != nil {
		return fmt.Errorf("creating staging directory: %w", err)
	}
	return nil
}

func (c *TelegramCollector) onMessage(ctx *ext.Context, u *ext.Update) error {
	msg := u.EffectiveMessage
	if msg == nil {
		return dispatcher.EndGroups
	}
	chatID := peerChatID(msg.PeerID)
	if chatID == 0 {
		return dispatcher.EndGroups
	}
	c.cacheFileLocations(msg)
	c.updatesMu.Lock()
	c.updatesCh <- RawUpdate{ChatID: chatID, Message: msg}
	c.updatesMu.Unlock()
	return dispatcher.EndGroups
}

// peerChatID normalizes any PeerClass variant to a single int64 id,
// matching the scheme internal/chat uses for channel identification.
func peerChatID(peer tg.PeerClass) int64 {
	switch p := peer.(type) {
	case *tg.PeerUser:
		return p.UserID
	case *tg.PeerChat:
		return p.ChatID
	case *tg.PeerChannel:
		return p.ChannelID
	default:
		return 0
	}
}

// cacheFileLocations remembers the raw file-location handles for any
// media on msg, keyed the same way internal/parser derives RemoteID, so
// DownloadFile can later resolve a bare remote id back into something
// gotd/td's downloader accepts.
func (c *TelegramCollector) cacheFileLocations(m *tg.Message) {
	if m == nil || m.Media == nil {
		return
	}
	switch mm := m.Media.(type) {
	case *tg.MessageMediaDocument:
		doc, ok := mm.Document.AsNotEmpty()
		if !ok {
			return
		}
		c.mu.Lock()
		c.pendingFiles[strconv.FormatInt(doc.ID, 10)] = fileLocation{inputDoc: &tg.InputDocumentFileLocation{
			ID:            doc.ID,
			AccessHash:    doc.AccessHash,
			FileReference: doc.FileReference,
		}}
		c.mu.Unlock()
	case *tg.MessageMediaPhoto:
		photo, ok := mm.Photo.AsNotEmpty()
		if !ok {
			return
		}
		c.mu.Lock()
		for _, sizeClass := range photo.Sizes {
			var sizeType string
			switch sz := sizeClass.(type) {
			case *tg.PhotoSize:
				sizeType = sz.Type
			case *tg.PhotoCachedSize:
				sizeType = sz.Type
			case *tg.PhotoSizeProgressive:
				sizeType = sz.Type
			default:
				continue
			}
			key := fmt.Sprintf("%d:%s", photo.ID, sizeType)
			c.pendingFiles[key] = fileLocation{inputPhoto: &tg.InputPhotoFileLocation{
				ID:            photo.ID,
				AccessHash:    photo.AccessHash,
				FileReference: photo.FileReference,
				ThumbSize:     sizeType,
			}}
		}
		c.mu.Unlock()
	}
}

// Updates returns the single channel fed by onMessage and DownloadFile.
// The channel is never closed.
func (c *TelegramCollector) Updates(ctx context.Context) (<-chan RawUpdate, error) {
	return c.updatesCh, nil
}

func (c *TelegramCollector) api() *tg.Client {
	return c.client.API()
}

func (c *TelegramCollector) rememberChannel(ch *tg.Channel) Channel {
	c.mu.Lock()
	c.accessHashes[ch.ID] = ch.AccessHash
	c.mu.Unlock()
	return Channel{ChatID: ch.ID, AccessHash: ch.AccessHash, Title: ch.Title, Username: ch.Username}
}

func (c *TelegramCollector) SearchPublicChats(ctx context.Context, query string) ([]Channel, error) {
	result, err := c.api().ContactsSearch(ctx, &tg.ContactsSearchRequest{Q: query, Limit: 20})
	if err != nil {
		return nil, err
	}
	var out []Channel
	for _, chat := range result.Chats {
		if ch, ok := chat.(*tg.Channel); ok {
			out = append(out, c.rememberChannel(ch))
		}
	}
	return out, nil
}

func (c *TelegramCollector) inputChannel(chatID int64) (*tg.InputChannel, bool) {
	c.mu.RLock()
	hash, ok := c.accessHashes[chatID]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return &tg.InputChannel{ChannelID: chatID, AccessHash: hash}, true
}

func (c *TelegramCollector) GetChannel(ctx context.Context, chatID int64) (*Channel, error) {
	input, ok := c.inputChannel(chatID)
	if !ok {
		return nil, nil
	}
	result, err := c.api().ChannelsGetChannels(ctx, []tg.InputChannelClass{input})
	if err != nil {
		return nil, err
	}
	chats := result.GetChats()
	if len(chats) == 0 {
		return nil, nil
	}
	ch, ok := chats[0].(*tg.Channel)
	if !ok {
		return nil, nil
	}
	out := c.rememberChannel(ch)
	return &out, nil
}

func (c *TelegramCollector) JoinChat(ctx context.Context, chatID int64) error {
	input, ok := c.inputChannel(chatID)
	if !ok {
		return fmt.Errorf("no known access hash for chat %d", chatID)
	}
	_, err := c.api().ChannelsJoinChannel(ctx, input)
	return err
}

func (c *TelegramCollector) GetAllChannels(ctx context.Context, limit int) ([]Channel, error) {
	dialogs, err := c.api().MessagesGetDialogs(ctx, &tg.MessagesGetDialogsRequest{
		OffsetPeer: &tg.InputPeerEmpty{},
		Limit:      limit,
	})
	if err != nil {
		return nil, err
	}
	var chats []tg.ChatClass
	switch d := dialogs.(type) {
	case *tg.MessagesDialogs:
		chats = d.Chats
	case *tg.MessagesDialogsSlice:
		chats = d.Chats
	}
	var out []Channel
	for _, chat := range chats {
		if ch, ok := chat.(*tg.Channel); ok {
			out = append(out, c.rememberChannel(ch))
		}
	}
	return out, nil
}

// GetChatHistoryStream pages backwards from the newest message via
// messages.getHistory, stopping once a message older than until is seen.
func (c *TelegramCollector) GetChatHistoryStream(ctx context.Context, chatID int64, until time.Time) (<-chan HistoryMessage, error) {
	input, ok := c.inputChannel(chatID)
	if !ok {
		return nil, fmt.Errorf("no known access hash for chat %d", chatID)
	}
	out := make(chan HistoryMessage, 64)

	go func() {
		defer close(out)
		offsetID := 0
		for {
			history, err := c.api().MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
				Peer:     &tg.InputPeerChannel{ChannelID: input.ChannelID, AccessHash: input.AccessHash},
				OffsetID: offsetID,
				Limit:    100,
			})
			if err != nil {
				c.log.Warn("history page failed", zap.Int64("chat_id", chatID), zap.Error(err))
				return
			}
			var msgs []tg.MessageClass
			switch h := history.(type) {
			case *tg.MessagesChannelMessages:
				msgs = h.Messages
			case *tg.MessagesMessages:
				msgs = h.Messages
			case *tg.MessagesMessagesSlice:
				msgs = h.Messages
			}
			if len(msgs) == 0 {
				return
			}
			for _, mc := range msgs {
				m, ok := mc.(*tg.Message)
				if !ok {
					continue
				}
				date := time.Unix(int64(m.Date), 0)
				if date.Before(until) {
					return
				}
				c.cacheFileLocations(m)
				select {
				case out <- HistoryMessage{MessageID: m.ID, Date: date, Raw: m}:
				case <-ctx.Done():
					return
				}
				offsetID = m.ID
			}
		}
	}()

	return out, nil
}

func (c *TelegramCollector) GetMessageLink(ctx context.Context, chatID int64, messageID int) (string, error) {
	c.mu.RLock()
	_, known := c.accessHashes[chatID]
	c.mu.RUnlock()
	if !known {
		return "", fmt.Errorf("no known access hash for chat %d", chatID)
	}
	return fmt.Sprintf("https://t.me/c/%d/%d", chatID, messageID), nil
}

// DownloadFile queues a background download against the file location
// cached when the originating message was first observed, landing it
// under this collector's own stagingDir. The reported LocalPath is a
// staging path, not a final one — relocating it into files_directory is
// the engine's job, not this collector's.
func (c *TelegramCollector) DownloadFile(ctx context.Context, descriptor models.NewFileDescriptor) error {
	c.mu.RLock()
	loc, ok := c.pendingFiles[descriptor.RemoteID]
	c.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no cached file location for remote id %q", descriptor.RemoteID)
	}

	go func() {
		dlCtx := context.WithoutCancel(ctx)
		destName := descriptor.FileName
		if destName == "" {
			destName = descriptor.RemoteID
		}
		tmpPath := filepath.Join(c.stagingDir, fmt.Sprintf(".download-%s", descriptor.RemoteID))
		stagedPath := filepath.Join(c.stagingDir, destName)

		var err error
		dl := downloader.NewDownloader()
		if loc.inputDoc != nil {
			_, err = dl.Download(c.api(), loc.inputDoc).ToPath(dlCtx, tmpPath)
		} else if loc.inputPhoto != nil {
			_, err = dl.Download(c.api(), loc.inputPhoto).ToPath(dlCtx, tmpPath)
		} else {
			err = fmt.Errorf("file location for %q has neither document nor photo set", descriptor.RemoteID)
		}
		if err != nil {
			c.log.Error("file download failed", zap.String("remote_id", descriptor.RemoteID), zap.Error(err))
			return
		}
		if err := os.Rename(tmpPath, stagedPath); err != nil {
			c.log.Error("staging downloaded file failed", zap.String("remote_id", descriptor.RemoteID), zap.Error(err))
			return
		}

		c.updatesMu.Lock()
		c.updatesCh <- RawUpdate{Downloaded: &DownloadedFile{
			LocalPath:  stagedPath,
			RemoteFile: destName,
			RemoteID:   descriptor.RemoteID,
		}}
		c.updatesMu.Unlock()
	}()

	return nil
}
