package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aindrajaya/ask-football/contract"
	"github.com/aindrajaya/ask-football/domain"
	"github.com/aindrajaya/ask-football/errors"
	"github.com/aindrajaya/ask-football/infrastructure/grpc/wire"
	"google.golang.org/grpc"
)

// RelayTransport reaches other processes through the relay server.
// Each binding is one Stream call joined to its channel.
type RelayTransport struct {
	ctx  context.Context
	conn grpc.ClientConnInterface
	log  *slog.Logger
}

func NewRelayTransport(ctx context.Context, conn grpc.ClientConnInterface, log *slog.Logger) *RelayTransport {
	return &RelayTransport{ctx: ctx, conn: conn, log: log}
}

func (t *RelayTransport) Open(channel domain.ChannelID, deliver func(contract.Frame), lost func(error)) (contract.Binding, error) {
	ctx, cancel := context.WithCancel(t.ctx)
	stream, err := wire.OpenStream(ctx, t.conn)
	if err != nil {
		cancel()
		return nil, err
	}
	if err := stream.Send(wire.JoinPacket(channel)); err != nil {
		cancel()
		return nil, err
	}
	b := &relayBinding{parent: t.ctx, channel: channel, stream: stream, cancel: cancel, log: t.log}
	go b.receive(deliver, lost)
	return b, nil
}

type relayBinding struct {
	mu      sync.Mutex
	once    sync.Once
	parent  context.Context
	channel domain.ChannelID
	stream  *wire.ClientStream
	cancel  context.CancelFunc
	log     *slog.Logger
	closed  bool
}

// Send is serialized since a client stream does not allow concurrent SendMsg.
func (b *relayBinding) Send(f contract.Frame) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errors.ErrBindingClosed
	}
	return b.stream.Send(wire.PublishPacket(f))
}

// end closes the binding and reports whether it was already closed.
func (b *relayBinding) end() bool {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	_ = b.Close()
	return closed
}

func (b *relayBinding) Close() error {
	b.once.Do(func() {
		b.mu.Lock()
		b.closed = true
		b.mu.Unlock()
		b.cancel()
	})
	return nil
}

// receive delivers frames until the stream ends, then marks the binding
// closed. An end the owner did not ask for is reported through lost.
func (b *relayBinding) receive(deliver func(contract.Frame), lost func(error)) {
	for {
		packet, err := b.stream.Recv()
		if errors.Is(err, errors.ErrInvalidFrame) {
			b.log.Warn("Relay frame dropped", "channel", b.channel, "error", err)
			continue
		}
		if err != nil {
			// Shutting down the process is not a loss.
			if b.end() || lost == nil || b.parent.Err() != nil {
				b.log.Debug("Relay binding closed", "channel", b.channel)
				return
			}
			b.log.Debug("Relay binding lost", "channel", b.channel, "error", err)
			lost(fmt.Errorf("%w: relay stream ended: %v", errors.ErrTransportUnavailable, err))
			return
		}
		if packet.Kind != wire.KindPublish || packet.Channel != b.channel {
			continue
		}
		deliver(packet.Frame())
	}
}
