package runtime

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aindrajaya/ask-football/contract"
	"github.com/aindrajaya/ask-football/domain"
	"github.com/aindrajaya/ask-football/errors"
	"github.com/google/uuid"
)

type subscriber struct {
	id      uint64
	handler contract.Handler
}

// Bus is the per-process pub/sub fabric.
//
// Every local subscriber of a channel receives each envelope published on it
// exactly once, whether it was published by this bus or arrived through the
// transport from another execution context. Local delivery never depends on
// the transport: frames carrying this bus's origin are dropped on receipt and
// local subscribers are always served by an explicit fan-out.
//
// When the transport loses a binding, the channel is bound again in the
// background for as long as it has local subscribers.
//
// Bus is safe for concurrent use. Handlers must be as well, since remote
// deliveries run on transport goroutines.
type Bus struct {
	mu          sync.RWMutex
	bindMu      sync.Mutex
	closeOnce   sync.Once
	log         *slog.Logger
	origin      string
	transport   contract.Transport
	observer    contract.Observer
	bindings    map[domain.ChannelID]contract.Binding
	subscribers map[domain.ChannelID][]subscriber
	rebinding   map[domain.ChannelID]bool
	nextID      uint64
	minBackoff  time.Duration
	maxBackoff  time.Duration
	done        chan struct{}
}

// NewBus creates a bus with a fresh origin. transport may be nil, in which case
// the bus only delivers locally.
func NewBus(log *slog.Logger, transport contract.Transport, observer contract.Observer) *Bus {
	return &Bus{
		log:         log,
		origin:      uuid.NewString(),
		transport:   transport,
		observer:    observer,
		bindings:    make(map[domain.ChannelID]contract.Binding),
		subscribers: make(map[domain.ChannelID][]subscriber),
		rebinding:   make(map[domain.ChannelID]bool),
		minBackoff:  500 * time.Millisecond,
		maxBackoff:  10 * time.Second,
		done:        make(chan struct{}),
	}
}

// WithRebindBackoff sets the delays between attempts to bind a lost channel again.
func (b *Bus) WithRebindBackoff(min, max time.Duration) *Bus {
	b.minBackoff = min
	b.maxBackoff = max
	return b
}

func (b *Bus) Origin() string { return b.origin }

// Subscribe registers handler for channel and binds the channel to the
// transport on first use. The returned function removes exactly this
// handler; calling it again is a no-op and it never closes the binding.
func (b *Bus) Subscribe(channel domain.ChannelID, handler contract.Handler) func() {
	b.bind(channel)

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subscribers[channel] = append(b.subscribers[channel], subscriber{id: id, handler: handler})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(channel, id) })
	}
}

// Publish delivers env to every local subscriber of channel, then hands it to
// the transport for the other execution contexts. Transport failures are
// reported to the observer and never returned.
func (b *Bus) Publish(channel domain.ChannelID, env domain.Envelope) {
	b.fanout(channel, env)
	b.observer.MessagePublished(channel, env.Type)

	binding := b.bind(channel)
	if binding == nil {
		return
	}
	err := binding.Send(contract.Frame{Origin: b.origin, Channel: channel, Envelope: env})
	if err != nil {
		b.unbind(channel, binding)
		b.reportTransport(channel, err)
	}
}

// Subscribers returns the number of local handlers registered on channel.
func (b *Bus) Subscribers(channel domain.ChannelID) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[channel])
}

// Close releases every transport binding and stops rebinding.
// Local subscribers keep working.
func (b *Bus) Close() {
	b.closeOnce.Do(func() { close(b.done) })
	b.mu.Lock()
	bindings := b.bindings
	b.bindings = make(map[domain.ChannelID]contract.Binding)
	b.mu.Unlock()

	for channel, binding := range bindings {
		if err := binding.Close(); err != nil {
			b.log.Debug("Closing binding failed", "channel", channel, "error", err)
		}
	}
}

// bind returns the binding for channel, opening it if needed.
// At most one binding per channel exists; a failed open is retried on next use.
func (b *Bus) bind(channel domain.ChannelID) contract.Binding {
	if b.transport == nil {
		return nil
	}
	if binding := b.binding(channel); binding != nil {
		return binding
	}

	b.bindMu.Lock()
	defer b.bindMu.Unlock()
	if binding := b.binding(channel); binding != nil {
		return binding
	}

	// lost may fire from the transport before Open has returned.
	opened := make(chan struct{})
	var binding contract.Binding
	binding, err := b.transport.Open(channel, func(f contract.Frame) {
		b.receive(channel, f)
	}, func(err error) {
		<-opened
		b.lost(channel, binding, err)
	})
	close(opened)
	if err != nil {
		b.reportTransport(channel, err)
		return nil
	}

	b.mu.Lock()
	b.bindings[channel] = binding
	b.mu.Unlock()
	b.log.Debug("Channel bound to transport", "channel", channel)
	return binding
}

func (b *Bus) binding(channel domain.ChannelID) contract.Binding {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bindings[channel]
}

func (b *Bus) unbind(channel domain.ChannelID, binding contract.Binding) {
	b.mu.Lock()
	if current, ok := b.bindings[channel]; ok && current == binding {
		delete(b.bindings, channel)
	}
	b.mu.Unlock()
	_ = binding.Close()
}

// lost drops a binding the transport ended on its own and starts binding the
// channel again.
func (b *Bus) lost(channel domain.ChannelID, binding contract.Binding, err error) {
	if b.isClosed() || binding == nil {
		return
	}
	b.unbind(channel, binding)
	b.reportTransport(channel, err)

	b.mu.Lock()
	if b.rebinding[channel] {
		b.mu.Unlock()
		return
	}
	b.rebinding[channel] = true
	b.mu.Unlock()
	go b.rebind(channel)
}

// rebind retries with exponential backoff until the channel is bound, has no
// local subscriber left, or the bus is closed.
func (b *Bus) rebind(channel domain.ChannelID) {
	defer func() {
		b.mu.Lock()
		delete(b.rebinding, channel)
		b.mu.Unlock()
	}()

	delay := b.minBackoff
	for attempt := 1; ; attempt++ {
		select {
		case <-b.done:
			return
		case <-time.After(delay):
		}
		if b.Subscribers(channel) == 0 {
			return
		}
		if b.bind(channel) != nil {
			b.log.Info("Channel bound again", "channel", channel, "attempts", attempt)
			return
		}
		delay = min(delay*2, b.maxBackoff)
	}
}

func (b *Bus) isClosed() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

// receive handles a frame coming from another execution context.
func (b *Bus) receive(channel domain.ChannelID, f contract.Frame) {
	if f.Origin == b.origin {
		// Never deliver our own publish twice.
		return
	}
	b.fanout(channel, f.Envelope)
}

func (b *Bus) fanout(channel domain.ChannelID, env domain.Envelope) {
	b.mu.RLock()
	snapshot := append([]subscriber(nil), b.subscribers[channel]...)
	b.mu.RUnlock()

	for _, s := range snapshot {
		b.deliver(channel, s, env)
	}
}

func (b *Bus) deliver(channel domain.ChannelID, s subscriber, env domain.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("Subscriber panicked", "channel", channel, "subscriber", s.id, "panic", r)
		}
	}()
	s.handler(env)
}

// remove drops one handler and ensures no empty entry is left behind.
func (b *Bus) remove(channel domain.ChannelID, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[channel]
	for i, s := range subs {
		if s.id == id {
			subs = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(b.subscribers, channel)
		return
	}
	b.subscribers[channel] = subs
}

func (b *Bus) reportTransport(channel domain.ChannelID, err error) {
	if !errors.Is(err, errors.ErrTransportUnavailable) {
		err = fmt.Errorf("%w: %v", errors.ErrTransportUnavailable, err)
	}
	b.log.Warn("Cross-context delivery unavailable", "channel", channel, "error", err)
	b.observer.TransportFailed(channel, err)
}
