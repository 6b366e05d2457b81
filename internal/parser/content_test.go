package parser

import (
	"errors"
	"testing"

	"github.com/gotd/td/tg"

	"github.com/aclr/agg-go/internal/models"
)

func TestParseMessagePhotoWithCaption(t *testing.T) {
	msg := &tg.Message{
		Message: "Hi",
		Media: &tg.MessageMediaPhoto{
			Photo: &tg.Photo{
				ID: 1,
				Sizes: []tg.PhotoSizeClass{
					&tg.PhotoSize{Type: "x", W: 320, H: 240},
				},
			},
		},
	}
	text, files, err := ParseMessage(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text == nil || *text != "Hi" {
		t.Fatalf("expected text 'Hi', got %v", text)
	}
	if len(files) != 1 {
		t.Fatalf("expected 1 file, got %d", len(files))
	}
	if files[0].Type != models.FileTypeImage {
		t.Fatalf("expected IMAGE type, got %v", files[0].Type)
	}
	if files[0].Meta != `{"width":320,"height":240}` {
		t.Fatalf("unexpected meta: %s", files[0].Meta)
	}
}

func TestParseMessageDocumentWithFilename(t *testing.T) {
	msg := &tg.Message{
		Message: "see attached",
		Media: &tg.MessageMediaDocument{
			Document: &tg.Document{
				ID:       42,
				MimeType: "application/pdf",
				Attributes: []tg.DocumentAttributeClass{
					&tg.DocumentAttributeFilename{FileName: "report.pdf"},
				},
			},
		},
	}
	text, files, err := ParseMessage(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text == nil || *text != "see attached" {
		t.Fatalf("expected caption text, got %v", text)
	}
	if len(files) != 1 || files[0].Type != models.FileTypeDocument || files[0].FileName != "report.pdf" {
		t.Fatalf("unexpected files: %+v", files)
	}
}

func TestParseMessageStickerHasNoText(t *testing.T) {
	msg := &tg.Message{
		Media: &tg.MessageMediaDocument{
			Document: &tg.Document{
				ID: 7,
				Attributes: []tg.DocumentAttributeClass{
					&tg.DocumentAttributeSticker{},
					&tg.DocumentAttributeImageSize{W: 100, H: 100},
				},
			},
		},
	}
	text, files, err := ParseMessage(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != nil {
		t.Fatalf("expected no text for a sticker, got %v", *text)
	}
	if len(files) != 1 || files[0].Type != models.FileTypeImage {
		t.Fatalf("unexpected files: %+v", files)
	}
}

func TestParseMessageUnsupportedMediaKind(t *testing.T) {
	msg := &tg.Message{Media: &tg.MessageMediaGeo{}}
	_, _, err := ParseMessage(msg)
	var agErr *models.Error
	if !errors.As(err, &agErr) || agErr.Kind != models.KindUpdateNotSupported {
		t.Fatalf("expected KindUpdateNotSupported, got %v", err)
	}
}

func TestParseServiceActionChatEditTitleUnsupported(t *testing.T) {
	msg := &tg.MessageService{Action: &tg.MessageActionChatEditTitle{Title: "new"}}
	_, _, err := ParseMessage(msg)
	var agErr *models.Error
	if !errors.As(err, &agErr) || agErr.Kind != models.KindUpdateNotSupported {
		t.Fatalf("expected KindUpdateNotSupported, got %v", err)
	}
}

func TestParseServiceActionJoinIsSilentlyIgnored(t *testing.T) {
	msg := &tg.MessageService{Action: &tg.MessageActionChatAddUser{}}
	text, files, err := ParseMessage(msg)
	if err != nil || text != nil || files != nil {
		t.Fatalf("expected silent ignore, got text=%v files=%v err=%v", text, files, err)
	}
}

func TestParseMessageWithEntities(t *testing.T) {
	msg := &tg.Message{
		Message: "AB",
		Entities: []tg.MessageEntityClass{
			&tg.MessageEntityBold{Offset: 0, Length: 1},
		},
	}
	text, _, err := ParseMessage(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text == nil || *text != "<b>A</b>B" {
		t.Fatalf("expected rendered bold entity, got %v", text)
	}
}
