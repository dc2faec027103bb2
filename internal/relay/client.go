package relay

import (
	"context"
	"io"
	"path/filepath"

	"github.com/gotd/td/tg"
)

// Client is the part of the platform client the relay policy calls into.
type Client interface {
	// Forward forwards ids from source to target keeping the attribution header.
	Forward(ctx context.Context, from, to ResolvedChannel, ids []int) error
	// SendText posts a text message.
	SendText(ctx context.Context, to ResolvedChannel, post TextPost) error
	// SendMedia posts one attachment with a caption.
	SendMedia(ctx context.Context, to ResolvedChannel, item MediaItem) error
	// SendAlbum posts several attachments as one grouped message.
	SendAlbum(ctx context.Context, to ResolvedChannel, items []MediaItem) error
	// DownloadMedia writes the content of an attachment to w.
	DownloadMedia(ctx context.Context, media tg.MessageMediaClass, w io.Writer) error
}

// TextPost is an outgoing text message.
type TextPost struct {
	Text      string
	Entities  []tg.MessageEntityClass
	NoWebpage bool
}

// MediaItem is one outgoing attachment. When Path is empty the media is
// sent by reference to the original file.
type MediaItem struct {
	Media    tg.MessageMediaClass
	Path     string
	Caption  string
	Entities []tg.MessageEntityClass
}

// Attachable reports whether media can be reproduced as an attachment.
// Web pages, polls, locations and similar are not.
func Attachable(media tg.MessageMediaClass) bool {
	switch m := media.(type) {
	case *tg.MessageMediaPhoto:
		_, ok := m.Photo.(*tg.Photo)
		return ok
	case *tg.MessageMediaDocument:
		_, ok := m.Document.(*tg.Document)
		return ok
	}
	return false
}

// mediaExt picks a file extension for a staged attachment.
func mediaExt(media tg.MessageMediaClass) string {
	m, ok := media.(*tg.MessageMediaDocument)
	if !ok {
		return ".jpg"
	}
	doc, ok := m.Document.(*tg.Document)
	if !ok {
		return ""
	}
	for _, attr := range doc.Attributes {
		if fn, ok := attr.(*tg.DocumentAttributeFilename); ok {
			return filepath.Ext(fn.FileName)
		}
	}
	switch doc.MimeType {
	case "video/mp4":
		return ".mp4"
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "audio/mpeg":
		return ".mp3"
	case "audio/ogg":
		return ".ogg"
	}
	return ""
}
