// Package telegram provides the Telegram MTProto side of the relay.
package telegram

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/gotd/td/crypto"
	"github.com/gotd/td/telegram/downloader"
	"github.com/gotd/td/telegram/uploader"
	"github.com/gotd/td/tg"

	"github.com/blockedby/tg-relay/internal/logger"
	"github.com/blockedby/tg-relay/internal/relay"
)

// dialogScanLimit is how many dialogs are scanned to resolve a numeric id.
const dialogScanLimit = 100

var errNotAuthorized = errors.New("telegram client not authorized")

// Client performs relay operations on top of the raw tg API.
type Client struct {
	api         *tg.Client
	rateLimiter *RateLimiter
	log         *logger.Logger
}

var (
	_ relay.Client   = (*Client)(nil)
	_ relay.Resolver = (*Client)(nil)
)

// NewClient wraps api. A nil limiter gets the default one.
func NewClient(api *tg.Client, limiter *RateLimiter, log *logger.Logger) *Client {
	if limiter == nil {
		limiter = DefaultRateLimiter()
	}
	if log == nil {
		log = logger.Get()
	}
	return &Client{
		api:         api,
		rateLimiter: limiter,
		log:         log,
	}
}

// API returns the raw tg.Client for direct API calls.
func (c *Client) API() (*tg.Client, error) {
	if c.api == nil {
		return nil, errNotAuthorized
	}
	return c.api, nil
}

// call waits for the rate limiter, runs fn and records FLOOD_WAIT errors.
func (c *Client) call(ctx context.Context, method string, fn func(api *tg.Client) error) error {
	api, err := c.API()
	if err != nil {
		return err
	}

	c.log.Debug().Str("method", method).Msg("telegram: waiting for rate limiter")
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return err
	}

	err = fn(api)
	if err == nil {
		return nil
	}
	if wait, ok := c.rateLimiter.Observe(err); ok {
		c.log.Warn().Dur("wait", wait).Str("method", method).Msg("telegram: FLOOD_WAIT detected, updating rate limiter")
	}
	return fmt.Errorf("%s: %w", method, err)
}

// ResolveChannel resolves a username or a numeric channel id.
func (c *Client) ResolveChannel(ctx context.Context, ref relay.ChannelRef) (relay.ResolvedChannel, error) {
	if id, ok := ref.NumericID(); ok {
		return c.resolveByID(ctx, ref, id)
	}

	username := ref.Username()
	if username == "" {
		return relay.ResolvedChannel{}, fmt.Errorf("%w: empty channel ref", relay.ErrResolve)
	}

	c.log.Info().Str("username", username).Msg("telegram: resolving channel username")

	var resolved *tg.ContactsResolvedPeer
	err := c.call(ctx, "contacts.resolveUsername", func(api *tg.Client) error {
		var err error
		resolved, err = api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{
			Username: username,
		})
		return err
	})
	if err != nil {
		return relay.ResolvedChannel{}, fmt.Errorf("%w: %s: %v", relay.ErrResolve, username, err)
	}

	peer, ok := resolved.Peer.(*tg.PeerChannel)
	if !ok {
		return relay.ResolvedChannel{}, fmt.Errorf("%w: %s is not a channel", relay.ErrResolve, username)
	}
	for _, chat := range resolved.Chats {
		if ch, ok := channelFromChat(ref, chat); ok && ch.ID == peer.ChannelID {
			return ch, nil
		}
	}
	return relay.ResolvedChannel{}, fmt.Errorf("%w: channel not found: %s", relay.ErrResolve, username)
}

// resolveByID looks the channel up among the account's dialogs; numeric
// ids carry no access hash on their own.
func (c *Client) resolveByID(ctx context.Context, ref relay.ChannelRef, id int64) (relay.ResolvedChannel, error) {
	c.log.Info().Int64("channel_id", id).Msg("telegram: resolving channel id from dialogs")

	var dialogs tg.MessagesDialogsClass
	err := c.call(ctx, "messages.getDialogs", func(api *tg.Client) error {
		var err error
		dialogs, err = api.MessagesGetDialogs(ctx, &tg.MessagesGetDialogsRequest{
			OffsetPeer: &tg.InputPeerEmpty{},
			Limit:      dialogScanLimit,
		})
		return err
	})
	if err != nil {
		return relay.ResolvedChannel{}, fmt.Errorf("%w: %d: %v", relay.ErrResolve, id, err)
	}

	var chats []tg.ChatClass
	switch d := dialogs.(type) {
	case *tg.MessagesDialogs:
		chats = d.Chats
	case *tg.MessagesDialogsSlice:
		chats = d.Chats
	}

	for _, chat := range chats {
		if ch, ok := channelFromChat(ref, chat); ok && ch.ID == id {
			return ch, nil
		}
	}
	return relay.ResolvedChannel{}, fmt.Errorf("%w: channel %d not found in first %d dialogs", relay.ErrResolve, id, dialogScanLimit)
}

// Forward forwards ids in one call so albums stay grouped.
func (c *Client) Forward(ctx context.Context, from, to relay.ResolvedChannel, ids []int) error {
	randomIDs, err := randomIDs(len(ids))
	if err != nil {
		return err
	}
	return c.call(ctx, "messages.forwardMessages", func(api *tg.Client) error {
		_, err := api.MessagesForwardMessages(ctx, &tg.MessagesForwardMessagesRequest{
			FromPeer: from.InputPeer(),
			ID:       ids,
			RandomID: randomIDs,
			ToPeer:   to.InputPeer(),
		})
		return err
	})
}

// SendText posts a text message.
func (c *Client) SendText(ctx context.Context, to relay.ResolvedChannel, post relay.TextPost) error {
	id, err := randomID()
	if err != nil {
		return err
	}
	return c.call(ctx, "messages.sendMessage", func(api *tg.Client) error {
		_, err := api.MessagesSendMessage(ctx, &tg.MessagesSendMessageRequest{
			Peer:      to.InputPeer(),
			Message:   post.Text,
			Entities:  post.Entities,
			NoWebpage: post.NoWebpage,
			RandomID:  id,
		})
		return err
	})
}

// SendMedia posts one attachment with its caption.
func (c *Client) SendMedia(ctx context.Context, to relay.ResolvedChannel, item relay.MediaItem) error {
	media, err := c.inputMedia(ctx, item)
	if err != nil {
		return err
	}
	id, err := randomID()
	if err != nil {
		return err
	}
	return c.call(ctx, "messages.sendMedia", func(api *tg.Client) error {
		_, err := api.MessagesSendMedia(ctx, &tg.MessagesSendMediaRequest{
			Peer:     to.InputPeer(),
			Media:    media,
			Message:  item.Caption,
			Entities: item.Entities,
			RandomID: id,
		})
		return err
	})
}

// SendAlbum posts items as one grouped message. Album members must be
// server side media, so staged files are uploaded to the target first.
func (c *Client) SendAlbum(ctx context.Context, to relay.ResolvedChannel, items []relay.MediaItem) error {
	multi := make([]tg.InputSingleMedia, 0, len(items))
	for _, item := range items {
		media, err := c.albumMedia(ctx, to, item)
		if err != nil {
			return err
		}
		id, err := randomID()
		if err != nil {
			return err
		}
		multi = append(multi, tg.InputSingleMedia{
			Media:    media,
			RandomID: id,
			Message:  item.Caption,
			Entities: item.Entities,
		})
	}

	return c.call(ctx, "messages.sendMultiMedia", func(api *tg.Client) error {
		_, err := api.MessagesSendMultiMedia(ctx, &tg.MessagesSendMultiMediaRequest{
			Peer:       to.InputPeer(),
			MultiMedia: multi,
		})
		return err
	})
}

func (c *Client) albumMedia(ctx context.Context, to relay.ResolvedChannel, item relay.MediaItem) (tg.InputMediaClass, error) {
	if item.Path == "" {
		return inputMediaRef(item.Media)
	}

	uploaded, err := c.inputMedia(ctx, item)
	if err != nil {
		return nil, err
	}

	var stored tg.MessageMediaClass
	err = c.call(ctx, "messages.uploadMedia", func(api *tg.Client) error {
		var err error
		stored, err = api.MessagesUploadMedia(ctx, &tg.MessagesUploadMediaRequest{
			Peer:  to.InputPeer(),
			Media: uploaded,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return inputMediaRef(stored)
}

// inputMedia references the original file, or uploads the staged copy.
func (c *Client) inputMedia(ctx context.Context, item relay.MediaItem) (tg.InputMediaClass, error) {
	if item.Path == "" {
		return inputMediaRef(item.Media)
	}

	var file tg.InputFileClass
	err := c.call(ctx, "upload", func(api *tg.Client) error {
		var err error
		file, err = uploader.NewUploader(api).FromPath(ctx, item.Path)
		return err
	})
	if err != nil {
		return nil, err
	}
	return inputMediaUploaded(item.Media, file)
}

// DownloadMedia streams the attachment content into w.
func (c *Client) DownloadMedia(ctx context.Context, media tg.MessageMediaClass, w io.Writer) error {
	loc, err := fileLocation(media)
	if err != nil {
		return err
	}
	return c.call(ctx, "download", func(api *tg.Client) error {
		_, err := downloader.NewDownloader().Download(api, loc).Stream(ctx, w)
		return err
	})
}

func randomID() (int64, error) {
	id, err := crypto.RandInt64(rand.Reader)
	if err != nil {
		return 0, fmt.Errorf("random id: %w", err)
	}
	return id, nil
}

func randomIDs(n int) ([]int64, error) {
	out := make([]int64, n)
	for i := range out {
		id, err := randomID()
		if err != nil {
			return nil, err
		}
		out[i] = id
	}
	return out, nil
}
