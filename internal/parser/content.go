package parser

import (
	"fmt"

	"github.com/gotd/td/tg"

	"github.com/aclr/agg-go/internal/models"
)

// ParseMessage classifies one raw Telegram message into the engine's
// normalized (text, files) pair, grounded directly in gotd/td's own
// tg.MessageMediaClass/tg.DocumentAttributeClass sum types rather than an
// invented parallel enum. It returns (nil, nil, nil) for silently-ignored
// system events, and a *models.Error{Kind: KindUpdateNotSupported} for
// explicitly-unsupported structural content — callers must treat that as
// a skip, never a fatal.
func ParseMessage(msg tg.MessageClass) (text *string, files []models.NewFileDescriptor, err error) {
	switch m := msg.(type) {
	case *tg.MessageEmpty:
		return nil, nil, nil
	case *tg.MessageService:
		return parseServiceAction(m.Action)
	case *tg.Message:
		return parseMessageContent(m)
	default:
		return nil, nil, nil
	}
}

func parseServiceAction(action tg.MessageActionClass) (*string, []models.NewFileDescriptor, error) {
	switch a := action.(type) {
	case *tg.MessageActionChatEditTitle, *tg.MessageActionChatEditPhoto, *tg.MessageActionChatDeletePhoto:
		return nil, nil, models.NewUpdateNotSupported(fmt.Sprintf("%T", a))
	default:
		// join/leave, pinned, call, score, migrate, etc: silently ignored.
		return nil, nil, nil
	}
}

func parseMessageContent(m *tg.Message) (*string, []models.NewFileDescriptor, error) {
	entities := convertEntities(m.Entities)
	renderCaption := func() *string {
		rendered := RenderFormattedText(m.Message, entities)
		return &rendered
	}

	if m.Media == nil {
		return renderCaption(), nil, nil
	}

	switch mm := m.Media.(type) {
	case *tg.MessageMediaEmpty, *tg.MessageMediaUnsupported, *tg.MessageMediaDice:
		return renderCaption(), nil, nil
	case *tg.MessageMediaDocument:
		return parseDocumentMedia(mm, renderCaption())
	case *tg.MessageMediaPhoto:
		return parsePhotoMedia(mm, renderCaption())
	case *tg.MessageMediaContact, *tg.MessageMediaGeo, *tg.MessageMediaVenue,
		*tg.MessageMediaPoll, *tg.MessageMediaInvoice:
		return nil, nil, models.NewUpdateNotSupported(fmt.Sprintf("%T", mm))
	default:
		return renderCaption(), nil, nil
	}
}

func parseDocumentMedia(mm *tg.MessageMediaDocument, caption *string) (*string, []models.NewFileDescriptor, error) {
	document, ok := mm.Document.AsNotEmpty()
	if !ok {
		return nil, nil, models.NewUpdateNotSupported("MessageMediaDocument(empty)")
	}

	var fileName string
	var isSticker, isAnimated, isAudio bool
	var isVideo bool
	width, height, duration := 0, 0, 0
	for _, attr := range document.Attributes {
		switch a := attr.(type) {
		case *tg.DocumentAttributeFilename:
			fileName = a.FileName
		case *tg.DocumentAttributeSticker:
			isSticker = true
		case *tg.DocumentAttributeAnimated:
			isAnimated = true
		case *tg.DocumentAttributeAudio:
			isAudio = true
			duration = a.Duration
		case *tg.DocumentAttributeVideo:
			isVideo = true
			duration = int(a.Duration)
			width, height = a.W, a.H
		case *tg.DocumentAttributeImageSize:
			width, height = a.W, a.H
		}
	}

	remoteID := fmt.Sprintf("%d", document.ID)
	remotePath := fmt.Sprintf("document:%d", document.ID)

	switch {
	case isSticker:
		return nil, []models.NewFileDescriptor{{
			RemotePath: remotePath,
			RemoteID:   remoteID,
			FileName:   fileName,
			Type:       models.FileTypeImage,
			Meta:       fmt.Sprintf(`{"width":%d,"height":%d}`, width, height),
		}}, nil
	case isAnimated:
		return caption, []models.NewFileDescriptor{{
			RemotePath: remotePath,
			RemoteID:   remoteID,
			FileName:   fileName,
			Type:       models.FileTypeAnimation,
			Meta:       fmt.Sprintf(`{"width":%d,"height":%d,"duration":%d,"mime":%q}`, width, height, duration, document.MimeType),
		}}, nil
	case isAudio, isVideo:
		// Audio/Video captions are textual variants with no attached
		// File — models.FileType has no AUDIO/VIDEO kind.
		return caption, nil, nil
	default:
		return caption, []models.NewFileDescriptor{{
			RemotePath: remotePath,
			RemoteID:   remoteID,
			FileName:   fileName,
			Type:       models.FileTypeDocument,
		}}, nil
	}
}

func parsePhotoMedia(mm *tg.MessageMediaPhoto, caption *string) (*string, []models.NewFileDescriptor, error) {
	photo, ok := mm.Photo.AsNotEmpty()
	if !ok {
		return nil, nil, models.NewUpdateNotSupported("MessageMediaPhoto(empty)")
	}
	files := make([]models.NewFileDescriptor, 0, len(photo.Sizes))
	for _, sizeClass := range photo.Sizes {
		width, height := 0, 0
		var sizeType string
		switch sz := sizeClass.(type) {
		case *tg.PhotoSize:
			width, height, sizeType = sz.W, sz.H, sz.Type
		case *tg.PhotoCachedSize:
			width, height, sizeType = sz.W, sz.H, sz.Type
		case *tg.PhotoSizeProgressive:
			width, height, sizeType = sz.W, sz.H, sz.Type
		case *tg.PhotoPathSize:
			sizeType = sz.Type
		case *tg.PhotoStrippedSize:
			sizeType = sz.Type
		default:
			continue
		}
		files = append(files, models.NewFileDescriptor{
			RemotePath: fmt.Sprintf("photo:%d:%s", photo.ID, sizeType),
			RemoteID:   fmt.Sprintf("%d:%s", photo.ID, sizeType),
			Type:       models.FileTypeImage,
			Meta:       fmt.Sprintf(`{"width":%d,"height":%d}`, width, height),
		})
	}
	return caption, files, nil
}

// convertEntities maps gotd/td's tg.MessageEntityClass variants onto the
// parser's own Entity/EntityTag. Mentions, emails, bot-commands and
// cashtags are not formatted.
func convertEntities(raw []tg.MessageEntityClass) []Entity {
	out := make([]Entity, 0, len(raw))
	for _, e := range raw {
		switch ent := e.(type) {
		case *tg.MessageEntityBold:
			out = append(out, Entity{Offset: ent.Offset, Length: ent.Length, Tag: TagBold})
		case *tg.MessageEntityItalic:
			out = append(out, Entity{Offset: ent.Offset, Length: ent.Length, Tag: TagItalic})
		case *tg.MessageEntityCode:
			out = append(out, Entity{Offset: ent.Offset, Length: ent.Length, Tag: TagCode})
		case *tg.MessageEntityPre:
			if ent.Language != "" {
				out = append(out, Entity{Offset: ent.Offset, Length: ent.Length, Tag: TagPreCode})
			} else {
				out = append(out, Entity{Offset: ent.Offset, Length: ent.Length, Tag: TagPre})
			}
		case *tg.MessageEntityStrike:
			out = append(out, Entity{Offset: ent.Offset, Length: ent.Length, Tag: TagStrikethrough})
		case *tg.MessageEntityUnderline:
			out = append(out, Entity{Offset: ent.Offset, Length: ent.Length, Tag: TagUnderline})
		case *tg.MessageEntityHashtag:
			out = append(out, Entity{Offset: ent.Offset, Length: ent.Length, Tag: TagHashtag})
		case *tg.MessageEntityPhone:
			out = append(out, Entity{Offset: ent.Offset, Length: ent.Length, Tag: TagPhone})
		case *tg.MessageEntityURL:
			out = append(out, Entity{Offset: ent.Offset, Length: ent.Length, Tag: TagURL})
		case *tg.MessageEntityTextURL:
			out = append(out, Entity{Offset: ent.Offset, Length: ent.Length, Tag: TagTextURL, URL: ent.URL})
		default:
			// Mention, MentionName, BotCommand, Cashtag, Email: unformatted.
		}
	}
	return out
}
