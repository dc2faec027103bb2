package relay

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"

	"github.com/gotd/td/tg"
)

// call records one client invocation.
type call struct {
	Method string
	Target int64
	IDs    []int
	Text   string
	Items  []MediaItem
	Post   TextPost
}

// MockClient records calls and fails for configured target ids.
type MockClient struct {
	mu          sync.Mutex
	Calls       []call
	FailTargets map[int64]error
	DownloadErr error
	// FailPhotos fails the download of the photos with these ids.
	FailPhotos map[int64]error
	Downloads  int
	// StagedSeen records whether each staged file existed at send time.
	StagedSeen []bool
}

func (m *MockClient) record(c call) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, c)
	for _, it := range c.Items {
		if it.Path != "" {
			_, err := os.Stat(it.Path)
			m.StagedSeen = append(m.StagedSeen, err == nil)
		}
	}
	if err, ok := m.FailTargets[c.Target]; ok {
		return err
	}
	return nil
}

func (m *MockClient) Forward(_ context.Context, _, to ResolvedChannel, ids []int) error {
	return m.record(call{Method: "forward", Target: to.ID, IDs: ids})
}

func (m *MockClient) SendText(_ context.Context, to ResolvedChannel, post TextPost) error {
	return m.record(call{Method: "text", Target: to.ID, Text: post.Text, Post: post})
}

func (m *MockClient) SendMedia(_ context.Context, to ResolvedChannel, item MediaItem) error {
	return m.record(call{Method: "media", Target: to.ID, Text: item.Caption, Items: []MediaItem{item}})
}

func (m *MockClient) SendAlbum(_ context.Context, to ResolvedChannel, items []MediaItem) error {
	return m.record(call{Method: "album", Target: to.ID, Text: items[0].Caption, Items: items})
}

func (m *MockClient) DownloadMedia(_ context.Context, media tg.MessageMediaClass, w io.Writer) error {
	m.mu.Lock()
	m.Downloads++
	m.mu.Unlock()
	if m.DownloadErr != nil {
		return m.DownloadErr
	}
	if p, ok := media.(*tg.MessageMediaPhoto); ok && p.Photo != nil {
		if err, ok := m.FailPhotos[p.Photo.GetID()]; ok {
			return err
		}
	}
	_, err := w.Write([]byte("media-bytes"))
	return err
}

func (m *MockClient) calls() []call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]call(nil), m.Calls...)
}

// MockResolver resolves refs from a fixed table.
type MockResolver struct {
	mu       sync.Mutex
	Channels map[ChannelRef]ResolvedChannel
	Asked    []ChannelRef
}

func (r *MockResolver) ResolveChannel(_ context.Context, ref ChannelRef) (ResolvedChannel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Asked = append(r.Asked, ref)
	ch, ok := r.Channels[ref]
	if !ok {
		return ResolvedChannel{}, errors.New("channel not found: " + ref.String())
	}
	return ch, nil
}

func (r *MockResolver) asked() []ChannelRef {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ChannelRef(nil), r.Asked...)
}

func photo(id int64) *tg.MessageMediaPhoto {
	return &tg.MessageMediaPhoto{Photo: &tg.Photo{ID: id, AccessHash: id * 10}}
}

func channels(ids ...int64) []ResolvedChannel {
	out := make([]ResolvedChannel, 0, len(ids))
	for _, id := range ids {
		out = append(out, ResolvedChannel{ID: id, Title: "target"})
	}
	return out
}
