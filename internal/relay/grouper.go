package relay

import (
	"sort"
	"sync"
	"time"
)

// Grouper turns the stream of pushed messages into batches. Album members
// arrive as separate events; they are held until a message outside the
// album arrives or no member arrived for the quiet window.
type Grouper struct {
	wait time.Duration
	out  chan Batch

	mu      sync.Mutex
	pending Batch
	timer   *time.Timer
	gen     uint64
	closed  bool
}

// NewGrouper creates a grouper emitting into a channel of the given capacity.
func NewGrouper(wait time.Duration, buffer int) *Grouper {
	return &Grouper{
		wait: wait,
		out:  make(chan Batch, buffer),
	}
}

// Batches returns the channel batches are emitted on. It is closed by Close.
func (g *Grouper) Batches() <-chan Batch {
	return g.out
}

// Add accepts one message. It blocks while the output channel is full.
func (g *Grouper) Add(msg InboundMessage) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}

	if len(g.pending) > 0 && (msg.GroupID == 0 || msg.GroupID != g.pending[0].GroupID) {
		g.flushLocked()
	}

	if msg.GroupID == 0 {
		g.out <- Batch{msg}
		return
	}

	g.pending = append(g.pending, msg)
	g.gen++
	if g.timer != nil {
		g.timer.Stop()
	}
	gen := g.gen
	g.timer = time.AfterFunc(g.wait, func() { g.expire(gen) })
}

// Close flushes a pending album and closes the output channel.
func (g *Grouper) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	g.flushLocked()
	g.closed = true
	close(g.out)
}

func (g *Grouper) expire(gen uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	// a newer member reset the window
	if g.closed || gen != g.gen {
		return
	}
	g.flushLocked()
}

func (g *Grouper) flushLocked() {
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	if len(g.pending) == 0 {
		return
	}
	batch := g.pending
	g.pending = nil
	g.gen++
	sort.Slice(batch, func(i, j int) bool { return batch[i].ID < batch[j].ID })
	g.out <- batch
}
