// Package relay republishes posts of one source channel to a list of
// target channels and keeps the connection alive.
package relay

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gotd/td/tg"
)

// ChannelRef is a channel identifier as it appears in configuration:
// a username (optionally prefixed with @ or given as a t.me link) or a
// numeric id (plain or in -100 prefixed form).
type ChannelRef string

// NumericID returns the bare channel id when the ref is numeric.
func (r ChannelRef) NumericID() (int64, bool) {
	s := strings.TrimSpace(string(r))
	if strings.HasPrefix(s, "-100") {
		s = strings.TrimPrefix(s, "-100")
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// Username returns the ref as a bare username.
func (r ChannelRef) Username() string {
	s := strings.TrimSpace(string(r))
	if u, err := url.Parse(s); err == nil && (u.Host == "t.me" || u.Host == "telegram.me") {
		s = strings.Trim(u.Path, "/")
	} else {
		for _, prefix := range []string{"https://t.me/", "http://t.me/", "t.me/"} {
			s = strings.TrimPrefix(s, prefix)
		}
	}
	return strings.TrimPrefix(s, "@")
}

func (r ChannelRef) String() string { return string(r) }

// Refs converts configured strings into channel refs.
func Refs(raw []string) []ChannelRef {
	out := make([]ChannelRef, 0, len(raw))
	for _, s := range raw {
		out = append(out, ChannelRef(s))
	}
	return out
}

// ResolvedChannel is a channel usable for API calls within one connection.
type ResolvedChannel struct {
	Ref        ChannelRef
	ID         int64  // channel id
	AccessHash int64  // access hash for api calls
	Title      string // display name
}

// InputPeer returns the peer used in API requests.
func (c ResolvedChannel) InputPeer() *tg.InputPeerChannel {
	return &tg.InputPeerChannel{ChannelID: c.ID, AccessHash: c.AccessHash}
}

func (c ResolvedChannel) String() string {
	if c.Title != "" {
		return c.Title
	}
	return c.Ref.String()
}

// InboundMessage is a new post observed on the source channel.
type InboundMessage struct {
	ID          int
	ChannelID   int64
	Text        string
	Media       tg.MessageMediaClass    // nil when the post has no attachment
	GroupID     int64                   // album id, 0 when not grouped
	Entities    []tg.MessageEntityClass // rich-text spans of Text
	LinkPreview bool                    // post carried a web page preview
	Date        time.Time
}

// HasMedia reports whether the message carries an attachment.
func (m InboundMessage) HasMedia() bool {
	return m.Media != nil
}

// Batch is a single message or all members of one album, in id order.
type Batch []InboundMessage

// IsAlbum reports whether the batch holds more than one grouped message.
func (b Batch) IsAlbum() bool {
	return len(b) > 1 && b[0].GroupID != 0
}

// IDs returns the message ids of the batch.
func (b Batch) IDs() []int {
	ids := make([]int, 0, len(b))
	for _, m := range b {
		ids = append(ids, m.ID)
	}
	return ids
}

// Caption returns the first non-empty text of the batch with its entities.
func (b Batch) Caption() (string, []tg.MessageEntityClass) {
	for _, m := range b {
		if m.Text != "" {
			return m.Text, m.Entities
		}
	}
	return "", nil
}

// RelayOutcome is the result of relaying one batch to one target.
type RelayOutcome struct {
	Target    ResolvedChannel
	Succeeded bool
	Err       error
}

// OutcomeEvent summarizes one relayed batch for external consumers.
type OutcomeEvent struct {
	BatchID    uuid.UUID       `json:"batch_id"`
	SourceID   int64           `json:"source_id"`
	MessageIDs []int           `json:"message_ids"`
	Mode       string          `json:"mode"`
	Outcomes   []TargetOutcome `json:"outcomes"`
	RelayedAt  time.Time       `json:"relayed_at"`
}

// TargetOutcome is the serialized form of a RelayOutcome.
type TargetOutcome struct {
	TargetID  int64  `json:"target_id"`
	Title     string `json:"title"`
	Succeeded bool   `json:"succeeded"`
	Error     string `json:"error,omitempty"`
}

// NewOutcomeEvent builds the event for a relayed batch.
func NewOutcomeEvent(id uuid.UUID, source ResolvedChannel, batch Batch, mode Mode, outcomes []RelayOutcome) OutcomeEvent {
	ev := OutcomeEvent{
		BatchID:    id,
		SourceID:   source.ID,
		MessageIDs: batch.IDs(),
		Mode:       mode.String(),
		RelayedAt:  time.Now().UTC(),
	}
	for _, o := range outcomes {
		t := TargetOutcome{TargetID: o.Target.ID, Title: o.Target.Title, Succeeded: o.Succeeded}
		if o.Err != nil {
			t.Error = o.Err.Error()
		}
		ev.Outcomes = append(ev.Outcomes, t)
	}
	return ev
}

// OutcomePublisher receives a summary of every relayed batch.
type OutcomePublisher interface {
	PublishOutcome(ctx context.Context, event OutcomeEvent) error
}

// Mode selects how posts are reproduced on targets.
type Mode int

const (
	// ModeRepost downloads media and uploads it again as a new post.
	ModeRepost Mode = iota
	// ModeCopy sends a new post reusing the original media by reference.
	ModeCopy
	// ModeForward forwards the post with the source attribution header.
	ModeForward
)

// ParseMode maps a configuration value to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "repost", "":
		return ModeRepost, nil
	case "copy":
		return ModeCopy, nil
	case "forward":
		return ModeForward, nil
	}
	return 0, fmt.Errorf("%w: unknown relay mode %q", ErrFatalConfig, s)
}

func (m Mode) String() string {
	switch m {
	case ModeRepost:
		return "repost"
	case ModeCopy:
		return "copy"
	case ModeForward:
		return "forward"
	}
	return "unknown"
}
