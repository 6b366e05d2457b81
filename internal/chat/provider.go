package chat

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/gotd/td/tg"
	"go.uber.org/zap"

	"github.com/aclr/agg-go/internal/cache"
	"github.com/aclr/agg-go/internal/models"
	"github.com/aclr/agg-go/internal/parser"
	"github.com/aclr/agg-go/internal/pipeline"
	"github.com/aclr/agg-go/internal/storage"
)

// Provider owns the live update listener, channel search/backfill and
// the file download lifecycle, delegating the protocol itself to a
// Collector. The Collector stages downloads in its own directory;
// FilesDirectory is where the Provider relocates a finished one to.
type Provider struct {
	Store          storage.Storage
	Collector      Collector
	FilesDirectory string
	Metrics        *CollectorMetrics
	Log            *zap.Logger
}

func New(store storage.Storage, collector Collector, filesDirectory string, log *zap.Logger) *Provider {
	return &Provider{
		Store:          store,
		Collector:      collector,
		FilesDirectory: filesDirectory,
		Metrics:        NewCollectorMetrics(),
		Log:            log.Named("ChatProvider"),
	}
}

func (p *Provider) GetSourceKind() models.SourceKind {
	return models.SourceKindTelegram
}

// Run starts the collector and forwards every item off its update stream
// onto the central channel, parsed into a ChatUpdate. A parse failure is
// sent as a Result.Err rather than dropped, so the dispatcher can log it;
// UpdateNotSupported content is the exception and is skipped here.
func (p *Provider) Run(ctx context.Context, sender *pipeline.Sender) {
	if err := p.Metrics.Track("Start", func() error { return p.Collector.Start(ctx) }); err != nil {
		sender.Send(pipeline.Result{Err: models.NewChatCollectorError(err)})
		return
	}

	updates, err := p.Collector.Updates(ctx)
	if err != nil {
		sender.Send(pipeline.Result{Err: models.NewChatCollectorError(err)})
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-updates:
			if !ok {
				return
			}
			p.forward(raw, sender)
		}
	}
}

func (p *Provider) forward(raw RawUpdate, sender *pipeline.Sender) {
	if raw.Downloaded != nil {
		sender.Send(pipeline.Result{Update: &models.Update{Chat: &models.ChatUpdate{
			FileDownloadFinished: &models.FileDownloadFinished{
				LocalPath:  raw.Downloaded.LocalPath,
				RemoteFile: raw.Downloaded.RemoteFile,
				RemoteID:   raw.Downloaded.RemoteID,
			},
		}}})
		return
	}
	if raw.Message == nil {
		return
	}

	msg, err := messageToChatMessage(raw.ChatID, raw.Message)
	if err != nil {
		if isUnsupported(err) {
			p.Log.Debug("skipping unsupported message content", zap.Error(err))
			return
		}
		sender.Send(pipeline.Result{Err: err})
		return
	}
	if msg == nil {
		return
	}
	sender.Send(pipeline.Result{Update: &models.Update{Chat: &models.ChatUpdate{Message: msg}}})
}

func messageToChatMessage(chatID int64, raw tg.MessageClass) (*models.ChatMessage, error) {
	text, files, err := parser.ParseMessage(raw)
	if err != nil {
		return nil, err
	}
	if text == nil && len(files) == 0 {
		return nil, nil
	}
	now := time.Now()
	return &models.ChatMessage{
		MessageID: raw.GetID(),
		ChatID:    chatID,
		Date:      &now,
		Content:   text,
		Files:     files,
	}, nil
}

func isUnsupported(err error) bool {
	me, ok := err.(*models.Error)
	return ok && me.Kind == models.KindUpdateNotSupported
}

// SearchSource discovers public channels matching query, persists each as
// a new Source, and continues past per-channel failures rather than
// failing the whole search.
func (p *Provider) SearchSource(ctx context.Context, query string) ([]models.Source, error) {
	var channels []Channel
	err := p.Metrics.Track("SearchPublicChats", func() error {
		var innerErr error
		channels, innerErr = p.Collector.SearchPublicChats(ctx, query)
		return innerErr
	})
	if err != nil {
		return nil, models.NewChatCollectorError(err)
	}
	if len(channels) == 0 {
		return []models.Source{}, nil
	}

	newSources := make([]models.NewSource, len(channels))
	for i, c := range channels {
		newSources[i] = models.NewSource{
			Name:   c.Title,
			Origin: channelOrigin(c),
			Kind:   models.SourceKindTelegram,
		}
	}
	saved := make([]models.Source, 0, len(newSources))
	for i, ns := range newSources {
		rows, err := p.Store.SaveSources(ctx, []models.NewSource{ns})
		if err != nil {
			p.Log.Error("saving searched channel", zap.Int64("chat_id", channels[i].ChatID), zap.Error(err))
			continue
		}
		saved = append(saved, rows...)
	}
	return saved, nil
}

func channelOrigin(c Channel) string {
	if c.Username != "" {
		return c.Username
	}
	return int64ToString(c.ChatID)
}

func int64ToString(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func stringToInt64(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

// Synchronize walks every known channel's history back to now-depth,
// batching each channel's messages into one SaveRecords call and
// registering files only for newly-inserted records.
func (p *Provider) Synchronize(ctx context.Context, depth time.Duration) error {
	var channels []Channel
	err := p.Metrics.Track("GetAllChannels", func() error {
		var innerErr error
		channels, innerErr = p.Collector.GetAllChannels(ctx, 1000)
		return innerErr
	})
	if err != nil {
		return models.NewChatCollectorError(err)
	}

	until := time.Now().Add(-depth)
	for _, channel := range channels {
		source, err := p.upsertChannelSource(ctx, channel)
		if err != nil {
			p.Log.Error("upserting channel source", zap.Int64("chat_id", channel.ChatID), zap.Error(err))
			continue
		}
		if err := p.backfillChannel(ctx, channel, source, until); err != nil {
			p.Log.Error("backfilling channel", zap.Int64("chat_id", channel.ChatID), zap.Error(err))
		}
	}
	return nil
}

func (p *Provider) upsertChannelSource(ctx context.Context, channel Channel) (models.Source, error) {
	saved, err := p.Store.SaveSources(ctx, []models.NewSource{{
		Name:   channel.Title,
		Origin: channelOrigin(channel),
		Kind:   models.SourceKindTelegram,
	}})
	if err != nil {
		return models.Source{}, err
	}
	return saved[0], nil
}

func (p *Provider) backfillChannel(ctx context.Context, channel Channel, source models.Source, until time.Time) error {
	stream, err := p.Collector.GetChatHistoryStream(ctx, channel.ChatID, until)
	if err != nil {
		return models.NewChatCollectorError(err)
	}

	var records []models.NewRecord
	var filesByGUID = map[string][]models.NewFileDescriptor{}
	for hm := range stream {
		text, files, err := parser.ParseMessage(hm.Raw)
		if err != nil {
			if isUnsupported(err) {
				continue
			}
			return err
		}
		if text == nil && len(files) == 0 {
			continue
		}
		guid := int64ToString(int64(hm.MessageID))
		records = append(records, models.NewRecord{
			SourceRecordID: guid,
			SourceID:       source.ID,
			Content:        derefOr(text, ""),
			Date:           hm.Date,
		})
		if len(files) > 0 {
			filesByGUID[guid] = files
		}
	}
	if len(records) == 0 {
		return nil
	}

	inserted, err := p.Store.SaveRecords(ctx, records)
	if err != nil {
		return err
	}
	for _, rec := range inserted {
		files, ok := filesByGUID[rec.SourceRecordID]
		if !ok {
			continue
		}
		if err := p.registerFiles(ctx, rec, files); err != nil {
			p.Log.Error("registering backfilled files", zap.Int64("record_id", rec.ID), zap.Error(err))
		}
	}
	return nil
}

func derefOr(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}

// ProcessUpdates dispatches a ChatUpdate: a new/edited Message upserts one
// Record (registering any attached files only if the row is brand new), a
// FileDownloadFinished finalizes a previously registered File.
func (p *Provider) ProcessUpdates(ctx context.Context, update *models.Update) error {
	if update.Chat == nil {
		return nil
	}
	if msg := update.Chat.Message; msg != nil {
		return p.processMessage(ctx, msg)
	}
	if fin := update.Chat.FileDownloadFinished; fin != nil {
		return p.processFileFinished(ctx, fin)
	}
	return nil
}

func (p *Provider) processMessage(ctx context.Context, msg *models.ChatMessage) error {
	source, err := p.resolveSource(ctx, msg.ChatID)
	if err != nil {
		return err
	}

	date := time.Now()
	if msg.Date != nil {
		date = *msg.Date
	}
	guid := int64ToString(int64(msg.MessageID))
	inserted, err := p.Store.SaveRecords(ctx, []models.NewRecord{{
		SourceRecordID: guid,
		SourceID:       source.ID,
		Content:        derefOr(msg.Content, ""),
		Date:           date,
	}})
	if err != nil {
		return err
	}

	return p.handleRecordInserted(ctx, inserted, msg.Files)
}

// handleRecordInserted branches on how many rows SaveRecords actually
// inserted: zero means the message was already known (edit or replay)
// and is skipped; exactly one row registers its files; more than one is
// a storage contract violation.
func (p *Provider) handleRecordInserted(ctx context.Context, inserted []models.Record, files []models.NewFileDescriptor) error {
	switch len(inserted) {
	case 0:
		return nil
	case 1:
		p.setMessageLink(ctx, inserted[0])
		if len(files) == 0 {
			return nil
		}
		return p.registerFiles(ctx, inserted[0], files)
	default:
		return models.NewSourceCreationError("SaveRecords returned more than one newly-inserted row for a single message")
	}
}

// setMessageLink resolves the record's permalink and persists it. A
// message link never changes once known, so it's cached for a long TTL
// ahead of the Collector round-trip. Failures are logged, not returned:
// a missing link never blocks ingestion of the record itself.
func (p *Provider) setMessageLink(ctx context.Context, rec models.Record) {
	messageID, err := stringToInt64(rec.SourceRecordID)
	if err != nil {
		return
	}

	cacheKey := "msglink:" + int64ToString(rec.SourceID) + ":" + rec.SourceRecordID
	if c := cache.GetCache(); c != nil {
		if link, err := c.GetMessageLink(cacheKey); err == nil && link != "" {
			if err := p.Store.SetRecordExternalLink(ctx, rec.SourceRecordID, rec.SourceID, link); err != nil {
				p.Log.Warn("persisting cached message link", zap.Error(err))
			}
			return
		}
	}

	source, err := p.Store.GetSource(ctx, rec.SourceID)
	if err != nil || source == nil {
		return
	}
	chatID, err := stringToInt64(source.Origin)
	if err != nil {
		return
	}

	var link string
	if err := p.Metrics.Track("GetMessageLink", func() error {
		var err error
		link, err = p.Collector.GetMessageLink(ctx, chatID, int(messageID))
		return err
	}); err != nil || link == "" {
		return
	}

	if c := cache.GetCache(); c != nil {
		if err := c.SetMessageLink(cacheKey, link, cache.MessageLinkTTLSeconds); err != nil {
			p.Log.Debug("caching message link", zap.Error(err))
		}
	}
	if err := p.Store.SetRecordExternalLink(ctx, rec.SourceRecordID, rec.SourceID, link); err != nil {
		p.Log.Warn("persisting message link", zap.Error(err))
	}
}

func (p *Provider) registerFiles(ctx context.Context, rec models.Record, descriptors []models.NewFileDescriptor) error {
	newFiles := make([]models.NewFile, len(descriptors))
	for i, d := range descriptors {
		newFiles[i] = models.NewFile{
			RecordID:   rec.ID,
			Kind:       models.SourceKindTelegram,
			RemotePath: d.RemotePath,
			RemoteID:   d.RemoteID,
			FileName:   d.FileName,
			Type:       d.Type,
			Meta:       d.Meta,
		}
	}
	if err := p.Store.SaveFiles(ctx, newFiles); err != nil {
		return err
	}
	var wg sync.WaitGroup
	for _, d := range descriptors {
		wg.Add(1)
		go func(d models.NewFileDescriptor) {
			defer wg.Done()
			descriptor := models.NewFileDescriptor{
				RemotePath: d.RemotePath,
				RemoteID:   d.RemoteID,
				FileName:   d.FileName,
				Type:       d.Type,
				Meta:       d.Meta,
			}
			if err := p.Metrics.Track("DownloadFile", func() error {
				return p.Collector.DownloadFile(ctx, descriptor)
			}); err != nil {
				p.Log.Warn("queuing file download failed", zap.String("remote_id", d.RemoteID), zap.Error(err))
			}
		}(d)
	}
	wg.Wait()
	return nil
}

// processFileFinished relocates a download the Collector staged in its
// own directory into FilesDirectory: the new path is FilesDirectory
// joined with the staged path's basename, never the Collector's path
// itself, so a collector-side rename scheme can't leak into storage.
func (p *Provider) processFileFinished(ctx context.Context, fin *models.FileDownloadFinished) error {
	file, err := p.Store.GetFileByRemoteID(ctx, fin.RemoteID)
	if err != nil {
		return err
	}
	if file == nil {
		p.Log.Warn("download finished for unknown file", zap.String("remote_id", fin.RemoteID))
		return nil
	}

	basename := filepath.Base(fin.LocalPath)
	newPath := filepath.Join(p.FilesDirectory, basename)
	if err := os.MkdirAll(p.FilesDirectory, 0o755); err != nil {
		return fmt.Errorf("creating files directory: %w", err)
	}
	if err := os.Rename(fin.LocalPath, newPath); err != nil {
		return fmt.Errorf("relocating downloaded file: %w", err)
	}

	fileName := fin.RemoteFile
	if file.FileName != nil && *file.FileName != "" {
		fileName = *file.FileName
	}
	return p.Store.SaveFile(ctx, file.ID, newPath, fileName)
}

func (p *Provider) resolveSource(ctx context.Context, chatID int64) (models.Source, error) {
	originGuess := int64ToString(chatID)
	cacheKey := "source:" + originGuess

	if c := cache.GetCache(); c != nil {
		if cached, err := c.GetSource(cacheKey); err == nil && cached != nil {
			return *cached, nil
		}
	}

	found, err := p.Store.SearchSource(ctx, originGuess)
	if err != nil {
		return models.Source{}, err
	}
	for _, s := range found {
		if s.Kind == models.SourceKindTelegram && s.Origin == originGuess {
			if c := cache.GetCache(); c != nil {
				if err := c.SetSource(cacheKey, s, cache.SourceTTLSeconds); err != nil {
					p.Log.Debug("caching resolved source", zap.Error(err))
				}
			}
			return s, nil
		}
	}

	if err := p.Collector.JoinChat(ctx, chatID); err != nil {
		return models.Source{}, models.NewSourceNotFound()
	}
	channel, err := p.Collector.GetChannel(ctx, chatID)
	if err != nil || channel == nil {
		return models.Source{}, models.NewSourceNotFound()
	}

	saved, err := p.Store.SaveSources(ctx, []models.NewSource{{
		Name:   channel.Title,
		Origin: channelOrigin(*channel),
		Kind:   models.SourceKindTelegram,
	}})
	if err != nil {
		return models.Source{}, err
	}
	if c := cache.GetCache(); c != nil {
		if err := c.SetSource(cacheKey, saved[0], cache.SourceTTLSeconds); err != nil {
			p.Log.Debug("caching newly-joined source", zap.Error(err))
		}
	}
	return saved[0], nil
}
