package telegram

import (
	"github.com/gotd/td/tg"

	"github.com/blockedby/tg-relay/internal/relay"
)

// Status represents the Telegram client status.
type Status string

// Status constants define the possible states of the Telegram client.
const (
	StatusInitializing Status = "INITIALIZING"
	StatusReady        Status = "READY"
	StatusUnauthorized Status = "UNAUTHORIZED"
	StatusError        Status = "ERROR"
)

// channelFromChat converts a chat to a resolved channel. Only broadcast
// channels and supergroups the account can see qualify.
func channelFromChat(ref relay.ChannelRef, chat tg.ChatClass) (relay.ResolvedChannel, bool) {
	ch, ok := chat.(*tg.Channel)
	if !ok {
		return relay.ResolvedChannel{}, false
	}
	return relay.ResolvedChannel{
		Ref:        ref,
		ID:         ch.ID,
		AccessHash: ch.AccessHash,
		Title:      ch.Title,
	}, true
}
