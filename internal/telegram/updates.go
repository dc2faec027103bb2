package telegram

import (
	"time"

	"github.com/gotd/td/tg"

	"github.com/blockedby/tg-relay/internal/relay"
)

// InboundFromMessage converts a channel post of sourceID. ok is false for
// posts of other peers and for posts with neither text nor media.
func InboundFromMessage(msg *tg.Message, sourceID int64) (relay.InboundMessage, bool) {
	if msg == nil {
		return relay.InboundMessage{}, false
	}
	peer, ok := msg.PeerID.(*tg.PeerChannel)
	if !ok || peer.ChannelID != sourceID {
		return relay.InboundMessage{}, false
	}

	in := relay.InboundMessage{
		ID:        msg.ID,
		ChannelID: peer.ChannelID,
		Text:      msg.Message,
		GroupID:   msg.GroupedID,
		Entities:  msg.Entities,
		Date:      time.Unix(int64(msg.Date), 0),
	}

	switch m := msg.Media.(type) {
	case nil, *tg.MessageMediaEmpty:
	case *tg.MessageMediaWebPage:
		// a preview is a property of the text, not an attachment
		in.LinkPreview = true
	default:
		in.Media = m
	}

	if in.Text == "" && in.Media == nil {
		return relay.InboundMessage{}, false
	}
	return in, true
}
