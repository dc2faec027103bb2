package telegram

import (
	"fmt"

	"github.com/gotd/td/tg"
)

// inputMediaRef builds an input media reusing the original file on the
// server. Works for media received in updates and for media returned by
// messages.uploadMedia.
func inputMediaRef(media tg.MessageMediaClass) (tg.InputMediaClass, error) {
	switch m := media.(type) {
	case *tg.MessageMediaPhoto:
		p, ok := m.Photo.(*tg.Photo)
		if !ok {
			return nil, fmt.Errorf("photo is empty")
		}
		return &tg.InputMediaPhoto{
			Spoiler: m.Spoiler,
			ID: &tg.InputPhoto{
				ID:            p.ID,
				AccessHash:    p.AccessHash,
				FileReference: p.FileReference,
			},
		}, nil
	case *tg.MessageMediaDocument:
		d, ok := m.Document.(*tg.Document)
		if !ok {
			return nil, fmt.Errorf("document is empty")
		}
		return &tg.InputMediaDocument{
			Spoiler: m.Spoiler,
			ID: &tg.InputDocument{
				ID:            d.ID,
				AccessHash:    d.AccessHash,
				FileReference: d.FileReference,
			},
		}, nil
	}
	return nil, fmt.Errorf("unsupported media %T", media)
}

// inputMediaUploaded builds an input media around a freshly uploaded
// file, keeping the document metadata of the original.
func inputMediaUploaded(media tg.MessageMediaClass, file tg.InputFileClass) (tg.InputMediaClass, error) {
	switch m := media.(type) {
	case *tg.MessageMediaPhoto:
		return &tg.InputMediaUploadedPhoto{File: file, Spoiler: m.Spoiler}, nil
	case *tg.MessageMediaDocument:
		d, ok := m.Document.(*tg.Document)
		if !ok {
			return nil, fmt.Errorf("document is empty")
		}
		return &tg.InputMediaUploadedDocument{
			File:       file,
			MimeType:   d.MimeType,
			Attributes: d.Attributes,
			Spoiler:    m.Spoiler,
		}, nil
	}
	return nil, fmt.Errorf("unsupported media %T", media)
}

// fileLocation returns the download location of the media content. For
// photos the largest size is picked.
func fileLocation(media tg.MessageMediaClass) (tg.InputFileLocationClass, error) {
	switch m := media.(type) {
	case *tg.MessageMediaPhoto:
		p, ok := m.Photo.(*tg.Photo)
		if !ok {
			return nil, fmt.Errorf("photo is empty")
		}
		size, ok := largestPhotoSize(p.Sizes)
		if !ok {
			return nil, fmt.Errorf("photo %d has no downloadable size", p.ID)
		}
		return &tg.InputPhotoFileLocation{
			ID:            p.ID,
			AccessHash:    p.AccessHash,
			FileReference: p.FileReference,
			ThumbSize:     size,
		}, nil
	case *tg.MessageMediaDocument:
		d, ok := m.Document.(*tg.Document)
		if !ok {
			return nil, fmt.Errorf("document is empty")
		}
		return &tg.InputDocumentFileLocation{
			ID:            d.ID,
			AccessHash:    d.AccessHash,
			FileReference: d.FileReference,
		}, nil
	}
	return nil, fmt.Errorf("unsupported media %T", media)
}

func largestPhotoSize(sizes []tg.PhotoSizeClass) (string, bool) {
	var best string
	var bestArea int
	for _, s := range sizes {
		var typ string
		var w, h int
		switch v := s.(type) {
		case *tg.PhotoSize:
			typ, w, h = v.Type, v.W, v.H
		case *tg.PhotoSizeProgressive:
			typ, w, h = v.Type, v.W, v.H
		default:
			continue
		}
		if area := w * h; best == "" || area > bestArea {
			best, bestArea = typ, area
		}
	}
	return best, best != ""
}
