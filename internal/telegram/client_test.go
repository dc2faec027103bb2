package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gotd/td/bin"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockedby/tg-relay/internal/relay"
)

// fakeInvoker answers tg requests by type id.
type fakeInvoker struct {
	mu        sync.Mutex
	calls     []bin.Encoder
	responses map[uint32]bin.Encoder
	errs      map[uint32]error
}

func newFakeInvoker() *fakeInvoker {
	return &fakeInvoker{
		responses: map[uint32]bin.Encoder{},
		errs:      map[uint32]error{},
	}
}

func (f *fakeInvoker) Invoke(_ context.Context, input bin.Encoder, output bin.Decoder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, input)

	typed, ok := input.(interface{ TypeID() uint32 })
	if !ok {
		return errors.New("untyped request")
	}
	if err := f.errs[typed.TypeID()]; err != nil {
		return err
	}
	resp, ok := f.responses[typed.TypeID()]
	if !ok {
		return errors.New("unexpected request")
	}

	var b bin.Buffer
	if err := resp.Encode(&b); err != nil {
		return err
	}
	return output.Decode(&b)
}

func (f *fakeInvoker) last() bin.Encoder {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return nil
	}
	return f.calls[len(f.calls)-1]
}

func testChannel(id int64, title string) *tg.Channel {
	return &tg.Channel{
		ID:         id,
		AccessHash: id * 10,
		Title:      title,
		Photo:      &tg.ChatPhotoEmpty{},
	}
}

func newTestClient(inv *fakeInvoker) *Client {
	return NewClient(tg.NewClient(inv), NewRateLimiter(1000, 100), nil)
}

var testTarget = relay.ResolvedChannel{Ref: "dst", ID: 2, AccessHash: 22}

func TestClient_API_UnauthorizedError(t *testing.T) {
	client := NewClient(nil, nil, nil)

	api, err := client.API()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "telegram client not authorized")
	assert.Nil(t, api)
}

func TestClient_ResolveChannel_UnauthorizedError(t *testing.T) {
	client := NewClient(nil, nil, nil)

	_, err := client.ResolveChannel(context.Background(), "testchannel")

	assert.ErrorIs(t, err, relay.ErrResolve)
	assert.Contains(t, err.Error(), "telegram client not authorized")
}

func TestClient_ResolveChannel_Username(t *testing.T) {
	inv := newFakeInvoker()
	inv.responses[tg.ContactsResolveUsernameRequestTypeID] = &tg.ContactsResolvedPeer{
		Peer:  &tg.PeerChannel{ChannelID: 42},
		Chats: []tg.ChatClass{testChannel(7, "other"), testChannel(42, "News")},
	}
	client := newTestClient(inv)

	ch, err := client.ResolveChannel(context.Background(), "@news")
	require.NoError(t, err)

	assert.Equal(t, int64(42), ch.ID)
	assert.Equal(t, int64(420), ch.AccessHash)
	assert.Equal(t, "News", ch.Title)
	assert.Equal(t, relay.ChannelRef("@news"), ch.Ref)

	req, ok := inv.last().(*tg.ContactsResolveUsernameRequest)
	require.True(t, ok)
	assert.Equal(t, "news", req.Username)
}

func TestClient_ResolveChannel_NotAChannel(t *testing.T) {
	inv := newFakeInvoker()
	inv.responses[tg.ContactsResolveUsernameRequestTypeID] = &tg.ContactsResolvedPeer{
		Peer: &tg.PeerUser{UserID: 5},
	}
	client := newTestClient(inv)

	_, err := client.ResolveChannel(context.Background(), "someone")
	assert.ErrorIs(t, err, relay.ErrResolve)
	assert.Contains(t, err.Error(), "not a channel")
}

func TestClient_ResolveChannel_NumericFromDialogs(t *testing.T) {
	inv := newFakeInvoker()
	inv.responses[tg.MessagesGetDialogsRequestTypeID] = &tg.MessagesDialogsSlice{
		Count: 2,
		Chats: []tg.ChatClass{testChannel(100, "a"), testChannel(12345, "target")},
	}
	client := newTestClient(inv)

	ch, err := client.ResolveChannel(context.Background(), "-10012345")
	require.NoError(t, err)
	assert.Equal(t, int64(12345), ch.ID)
	assert.Equal(t, "target", ch.Title)

	req, ok := inv.last().(*tg.MessagesGetDialogsRequest)
	require.True(t, ok)
	assert.Equal(t, dialogScanLimit, req.Limit)
}

func TestClient_ResolveChannel_NumericNotFound(t *testing.T) {
	inv := newFakeInvoker()
	inv.responses[tg.MessagesGetDialogsRequestTypeID] = &tg.MessagesDialogs{
		Chats: []tg.ChatClass{testChannel(100, "a")},
	}
	client := newTestClient(inv)

	_, err := client.ResolveChannel(context.Background(), "999")
	assert.ErrorIs(t, err, relay.ErrResolve)
}

func TestClient_Forward(t *testing.T) {
	inv := newFakeInvoker()
	inv.responses[tg.MessagesForwardMessagesRequestTypeID] = &tg.Updates{}
	client := newTestClient(inv)

	from := relay.ResolvedChannel{ID: 1, AccessHash: 11}
	require.NoError(t, client.Forward(context.Background(), from, testTarget, []int{5, 6}))

	req, ok := inv.last().(*tg.MessagesForwardMessagesRequest)
	require.True(t, ok)
	assert.Equal(t, []int{5, 6}, req.ID)
	assert.Len(t, req.RandomID, 2)
	assert.NotEqual(t, req.RandomID[0], req.RandomID[1])
	assert.Equal(t, testTarget.InputPeer(), req.ToPeer)
	assert.Equal(t, from.InputPeer(), req.FromPeer)
}

func TestClient_SendText(t *testing.T) {
	inv := newFakeInvoker()
	inv.responses[tg.MessagesSendMessageRequestTypeID] = &tg.Updates{}
	client := newTestClient(inv)

	entities := []tg.MessageEntityClass{&tg.MessageEntityBold{Offset: 0, Length: 5}}
	err := client.SendText(context.Background(), testTarget, relay.TextPost{
		Text:      "hello world",
		Entities:  entities,
		NoWebpage: true,
	})
	require.NoError(t, err)

	req, ok := inv.last().(*tg.MessagesSendMessageRequest)
	require.True(t, ok)
	assert.Equal(t, "hello world", req.Message)
	assert.True(t, req.NoWebpage)
	assert.Equal(t, entities, req.Entities)
	assert.NotZero(t, req.RandomID)
}

func TestClient_SendMedia_ByReference(t *testing.T) {
	inv := newFakeInvoker()
	inv.responses[tg.MessagesSendMediaRequestTypeID] = &tg.Updates{}
	client := newTestClient(inv)

	err := client.SendMedia(context.Background(), testTarget, relay.MediaItem{
		Media:   testPhoto(),
		Caption: "caption",
	})
	require.NoError(t, err)

	req, ok := inv.last().(*tg.MessagesSendMediaRequest)
	require.True(t, ok)
	assert.Equal(t, "caption", req.Message)
	_, isRef := req.Media.(*tg.InputMediaPhoto)
	assert.True(t, isRef)
}

func TestClient_SendMedia_Unsupported(t *testing.T) {
	client := newTestClient(newFakeInvoker())

	err := client.SendMedia(context.Background(), testTarget, relay.MediaItem{Media: &tg.MessageMediaGeo{}})
	assert.Error(t, err)
}

func TestClient_SendAlbum_ByReference(t *testing.T) {
	inv := newFakeInvoker()
	inv.responses[tg.MessagesSendMultiMediaRequestTypeID] = &tg.Updates{}
	client := newTestClient(inv)

	err := client.SendAlbum(context.Background(), testTarget, []relay.MediaItem{
		{Media: testPhoto(), Caption: "first"},
		{Media: testDocument()},
	})
	require.NoError(t, err)

	req, ok := inv.last().(*tg.MessagesSendMultiMediaRequest)
	require.True(t, ok)
	require.Len(t, req.MultiMedia, 2)
	assert.Equal(t, "first", req.MultiMedia[0].Message)
	assert.Empty(t, req.MultiMedia[1].Message)
}

func TestClient_FloodWaitUpdatesLimiter(t *testing.T) {
	inv := newFakeInvoker()
	inv.errs[tg.MessagesSendMessageRequestTypeID] = tgerr.New(420, "FLOOD_WAIT_3")
	client := newTestClient(inv)

	err := client.SendText(context.Background(), testTarget, relay.TextPost{Text: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "messages.sendMessage")

	assert.True(t, client.rateLimiter.floodWaitUntil.After(time.Now().Add(2*time.Second)))
}

func TestChannelFromChat(t *testing.T) {
	ch, ok := channelFromChat("ref", testChannel(3, "three"))
	require.True(t, ok)
	assert.Equal(t, relay.ResolvedChannel{Ref: "ref", ID: 3, AccessHash: 30, Title: "three"}, ch)

	_, ok = channelFromChat("ref", &tg.Chat{ID: 3})
	assert.False(t, ok)

	_, ok = channelFromChat("ref", &tg.ChannelForbidden{ID: 3})
	assert.False(t, ok)
}
