// Package projection builds local timelines from observed envelopes.
// Handles ordering, deduplication, and the bounded history window.
// Does not publish or interact with UI directly.
package projection

import (
	"sync"

	"github.com/aindrajaya/ask-football/domain"
)

// DefaultWindow is the number of trailing messages sent as AI context.
const DefaultWindow = 10

// Timeline holds the trailing messages of one channel, oldest first.
// Safe for concurrent use, since bus deliveries may come from transport goroutines.
type Timeline struct {
	mu       sync.RWMutex
	Channel  domain.ChannelID
	size     int
	messages []domain.Message
	seen     map[string]struct{}
}

func NewTimeline(channel domain.ChannelID, size int) *Timeline {
	if size <= 0 {
		size = DefaultWindow
	}
	return &Timeline{
		Channel: channel,
		size:    size,
		seen:    make(map[string]struct{}),
	}
}

// Consume keeps MESSAGE envelopes of its channel and ignores everything else.
// A message already seen is dropped.
func (t *Timeline) Consume(env domain.Envelope) {
	if env.Type != domain.MessageEvent || env.Message == nil || env.Message.Channel != t.Channel {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.append(*env.Message)
}

// Prime loads previously stored messages, oldest first.
func (t *Timeline) Prime(messages []domain.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, m := range messages {
		if m.Channel == t.Channel {
			t.append(m)
		}
	}
}

// Window returns a copy of the trailing messages.
func (t *Timeline) Window() []domain.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]domain.Message(nil), t.messages...)
}

func (t *Timeline) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

func (t *Timeline) append(m domain.Message) {
	if _, ok := t.seen[m.ID]; ok {
		return
	}
	t.seen[m.ID] = struct{}{}
	t.messages = append(t.messages, m)
	if overflow := len(t.messages) - t.size; overflow > 0 {
		for _, evicted := range t.messages[:overflow] {
			delete(t.seen, evicted.ID)
		}
		t.messages = append([]domain.Message(nil), t.messages[overflow:]...)
	}
}
