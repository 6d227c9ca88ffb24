// Package broadcast provides an in-process broadcast medium shared by several
// buses, one per simulated tab. Like a browser BroadcastChannel, a frame is
// never delivered back to the binding that sent it.
package broadcast

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/aindrajaya/ask-football/contract"
	"github.com/aindrajaya/ask-football/domain"
	"github.com/aindrajaya/ask-football/errors"
)

const defaultQueueSize = 64

type Hub struct {
	mu        sync.RWMutex
	log       *slog.Logger
	queueSize int
	channels  map[domain.ChannelID]map[*binding]struct{}
	closed    bool
}

func NewHub(log *slog.Logger, queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Hub{
		log:       log,
		queueSize: queueSize,
		channels:  make(map[domain.ChannelID]map[*binding]struct{}),
	}
}

// Open implements contract.Transport.
// deliver is called from a dedicated goroutine, in the order frames were sent.
// Hub bindings only end through Close, so lost is never called.
func (h *Hub) Open(channel domain.ChannelID, deliver func(contract.Frame), _ func(error)) (contract.Binding, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, fmt.Errorf("%w: hub closed", errors.ErrTransportUnavailable)
	}

	b := &binding{
		hub:     h,
		channel: channel,
		deliver: deliver,
		queue:   make(chan contract.Frame, h.queueSize),
		done:    make(chan struct{}),
	}
	if _, ok := h.channels[channel]; !ok {
		h.channels[channel] = make(map[*binding]struct{})
	}
	h.channels[channel][b] = struct{}{}

	go b.drain()
	return b, nil
}

// Bindings returns how many bindings are open on channel.
func (h *Hub) Bindings(channel domain.ChannelID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

// Close closes every binding; further Open calls fail.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var all []*binding
	for _, set := range h.channels {
		for b := range set {
			all = append(all, b)
		}
	}
	h.mu.Unlock()

	for _, b := range all {
		_ = b.Close()
	}
}

func (h *Hub) broadcast(from *binding, f contract.Frame) {
	h.mu.RLock()
	peers := make([]*binding, 0, len(h.channels[from.channel]))
	for b := range h.channels[from.channel] {
		if b != from {
			peers = append(peers, b)
		}
	}
	h.mu.RUnlock()

	for _, p := range peers {
		p.enqueue(f)
	}
}

func (h *Hub) leave(b *binding) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.channels[b.channel]; ok {
		delete(set, b)
		if len(set) == 0 {
			delete(h.channels, b.channel)
		}
	}
}

type binding struct {
	hub       *Hub
	channel   domain.ChannelID
	deliver   func(contract.Frame)
	queue     chan contract.Frame
	done      chan struct{}
	closeOnce sync.Once
}

func (b *binding) Send(f contract.Frame) error {
	select {
	case <-b.done:
		return errors.ErrBindingClosed
	default:
	}
	b.hub.broadcast(b, f)
	return nil
}

func (b *binding) Close() error {
	b.closeOnce.Do(func() {
		b.hub.leave(b)
		close(b.done)
	})
	return nil
}

// enqueue blocks when the peer is slow rather than dropping a frame.
func (b *binding) enqueue(f contract.Frame) {
	select {
	case b.queue <- f:
	case <-b.done:
	}
}

func (b *binding) drain() {
	for {
		select {
		case <-b.done:
			return
		case f := <-b.queue:
			b.safeDeliver(f)
		}
	}
}

func (b *binding) safeDeliver(f contract.Frame) {
	defer func() {
		if r := recover(); r != nil {
			b.hub.log.Error("Delivery panicked", "channel", b.channel, "panic", r)
		}
	}()
	b.deliver(f)
}
