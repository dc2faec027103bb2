package relay

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gotd/td/tg"

	"github.com/blockedby/tg-relay/internal/logger"
)

// Options configures a Policy.
type Options struct {
	Mode Mode
	// SendDelay separates consecutive target sends.
	SendDelay time.Duration
	// PreserveEntities keeps rich-text formatting spans on copies.
	PreserveEntities bool
	// PreserveLinkPreview disables previews on copies of posts that had none.
	PreserveLinkPreview bool
	// MediaDir is where repost mode stages downloaded media.
	MediaDir string
}

// sendFunc delivers a prepared post to one target.
type sendFunc func(ctx context.Context, target ResolvedChannel) error

// Policy decides how a batch is reproduced on each target and issues the
// calls through the Client.
type Policy struct {
	client Client
	opts   Options
	log    *logger.Logger
}

// NewPolicy creates a relay policy.
func NewPolicy(client Client, opts Options, log *logger.Logger) *Policy {
	if opts.MediaDir == "" {
		opts.MediaDir = os.TempDir()
	}
	return &Policy{client: client, opts: opts, log: log}
}

// Mode returns the configured relay mode.
func (p *Policy) Mode() Mode {
	return p.opts.Mode
}

// Relay reproduces batch on every target in order and returns exactly one
// outcome per target. A failing target never stops the remaining ones.
// Staged media is removed once all targets were attempted.
func (p *Policy) Relay(ctx context.Context, source ResolvedChannel, batch Batch, targets []ResolvedChannel) []RelayOutcome {
	if len(batch) == 0 {
		return nil
	}

	var send sendFunc
	if p.opts.Mode == ModeForward {
		ids := batch.IDs()
		send = func(ctx context.Context, target ResolvedChannel) error {
			return p.client.Forward(ctx, source, target, ids)
		}
	} else {
		var staged []string
		var err error
		send, staged, err = p.prepare(ctx, batch)
		defer p.release(staged)
		if err != nil {
			send = func(context.Context, ResolvedChannel) error { return err }
		}
	}

	return p.fanOut(ctx, targets, send)
}

// fanOut calls send for every target sequentially, pausing between sends.
func (p *Policy) fanOut(ctx context.Context, targets []ResolvedChannel, send sendFunc) []RelayOutcome {
	outcomes := make([]RelayOutcome, 0, len(targets))
	for i, target := range targets {
		if i > 0 {
			p.pause(ctx)
		}

		outcome := RelayOutcome{Target: target, Succeeded: true}
		if err := send(ctx, target); err != nil {
			outcome.Succeeded = false
			outcome.Err = fmt.Errorf("%w %s: %w", ErrRelay, target, err)
			p.log.Error().Err(err).Int("index", i+1).Int64("channel_id", target.ID).Str("title", target.Title).Msg("failed to post to target")
		} else {
			p.log.Info().Int("index", i+1).Int64("channel_id", target.ID).Str("title", target.Title).Msg("posted to target")
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

func (p *Policy) pause(ctx context.Context) {
	if p.opts.SendDelay <= 0 {
		return
	}
	t := time.NewTimer(p.opts.SendDelay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// prepare builds the send call for copy and repost modes. It returns the
// paths of staged files, which the caller must release even on error.
func (p *Policy) prepare(ctx context.Context, batch Batch) (sendFunc, []string, error) {
	if batch.IsAlbum() {
		return p.prepareAlbum(ctx, batch)
	}

	msg := batch[0]
	if Attachable(msg.Media) {
		item, path, err := p.stage(ctx, msg.Media)
		if err != nil {
			return nil, paths(path), err
		}
		item.Caption = msg.Text
		item.Entities = p.entities(msg.Entities)
		return func(ctx context.Context, target ResolvedChannel) error {
			return p.client.SendMedia(ctx, target, item)
		}, paths(path), nil
	}

	return p.prepareText(msg.Text, msg.Entities, !msg.LinkPreview)
}

func (p *Policy) prepareAlbum(ctx context.Context, batch Batch) (sendFunc, []string, error) {
	caption, captionEntities := batch.Caption()

	var staged []string
	var items []MediaItem
	for _, msg := range batch {
		if !Attachable(msg.Media) {
			continue
		}
		item, path, err := p.stage(ctx, msg.Media)
		staged = append(staged, paths(path)...)
		if err != nil {
			return nil, staged, fmt.Errorf("stage album item %d: %w", msg.ID, err)
		}
		items = append(items, item)
	}

	if len(items) == 0 {
		send, _, err := p.prepareText(caption, captionEntities, true)
		return send, staged, err
	}

	items[0].Caption = caption
	items[0].Entities = p.entities(captionEntities)

	if len(items) == 1 {
		item := items[0]
		return func(ctx context.Context, target ResolvedChannel) error {
			return p.client.SendMedia(ctx, target, item)
		}, staged, nil
	}

	return func(ctx context.Context, target ResolvedChannel) error {
		return p.client.SendAlbum(ctx, target, items)
	}, staged, nil
}

func (p *Policy) prepareText(text string, entities []tg.MessageEntityClass, noPreview bool) (sendFunc, []string, error) {
	if text == "" {
		return nil, nil, ErrNothingToSend
	}
	post := TextPost{
		Text:      text,
		Entities:  p.entities(entities),
		NoWebpage: p.opts.PreserveLinkPreview && noPreview,
	}
	return func(ctx context.Context, target ResolvedChannel) error {
		return p.client.SendText(ctx, target, post)
	}, nil, nil
}

// stage returns the outgoing item for media. Repost mode downloads the
// content into a temp file under MediaDir and returns its path.
func (p *Policy) stage(ctx context.Context, media tg.MessageMediaClass) (MediaItem, string, error) {
	item := MediaItem{Media: media}
	if p.opts.Mode != ModeRepost {
		return item, "", nil
	}

	f, err := os.CreateTemp(p.opts.MediaDir, "relay-*"+mediaExt(media))
	if err != nil {
		return item, "", fmt.Errorf("create temp file: %w", err)
	}
	path := f.Name()

	err = p.client.DownloadMedia(ctx, media, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return item, path, fmt.Errorf("download media: %w", err)
	}

	p.log.Debug().Str("path", path).Msg("media staged")
	item.Path = path
	return item, path, nil
}

// release removes staged files.
func (p *Policy) release(staged []string) {
	for _, path := range staged {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			p.log.Warn().Err(err).Str("path", path).Msg("failed to remove staged media")
		}
	}
}

func (p *Policy) entities(in []tg.MessageEntityClass) []tg.MessageEntityClass {
	if !p.opts.PreserveEntities {
		return nil
	}
	return in
}

func paths(path string) []string {
	if path == "" {
		return nil
	}
	return []string{path}
}
