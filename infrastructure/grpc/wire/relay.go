// Package wire declares the relay gRPC service by hand.
//
// The relay only moves opaque frames, so each message is a
// google.protobuf.BytesValue carrying a CBOR-encoded Packet. This keeps the
// service free of generated code while staying on the default proto codec.
package wire

import (
	"context"
	"fmt"

	"github.com/aindrajaya/ask-football/contract"
	"github.com/aindrajaya/ask-football/domain"
	"github.com/aindrajaya/ask-football/errors"
	"github.com/fxamacker/cbor/v2"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	ServiceName  = "relay.v1.Relay"
	StreamMethod = "/relay.v1.Relay/Stream"
)

type Kind uint8

const (
	// KindJoin must be the first packet of a stream, it scopes the stream to a channel.
	KindJoin Kind = iota + 1
	KindPublish
)

type Packet struct {
	Kind     Kind             `cbor:"kind"`
	Channel  domain.ChannelID `cbor:"channel"`
	Origin   string           `cbor:"origin,omitempty"`
	Envelope *domain.Envelope `cbor:"envelope,omitempty"`
}

func JoinPacket(channel domain.ChannelID) Packet {
	return Packet{Kind: KindJoin, Channel: channel}
}

func PublishPacket(f contract.Frame) Packet {
	env := f.Envelope
	return Packet{Kind: KindPublish, Channel: f.Channel, Origin: f.Origin, Envelope: &env}
}

// Frame converts a publish packet back to a bus frame.
func (p Packet) Frame() contract.Frame {
	return contract.Frame{Origin: p.Origin, Channel: p.Channel, Envelope: *p.Envelope}
}

func Encode(p Packet) (*wrapperspb.BytesValue, error) {
	b, err := cbor.Marshal(p)
	if err != nil {
		return nil, err
	}
	return wrapperspb.Bytes(b), nil
}

// Decode rejects packets that cannot be routed.
func Decode(msg *wrapperspb.BytesValue) (Packet, error) {
	var p Packet
	if msg == nil {
		return p, fmt.Errorf("%w: nil message", errors.ErrInvalidFrame)
	}
	if err := cbor.Unmarshal(msg.GetValue(), &p); err != nil {
		return p, fmt.Errorf("%w: %v", errors.ErrInvalidFrame, err)
	}
	if p.Channel == "" {
		return p, fmt.Errorf("%w: missing channel", errors.ErrInvalidFrame)
	}
	switch p.Kind {
	case KindJoin:
	case KindPublish:
		if p.Envelope == nil || p.Origin == "" {
			return p, fmt.Errorf("%w: publish without envelope or origin", errors.ErrInvalidFrame)
		}
	default:
		return p, fmt.Errorf("%w: unknown kind %d", errors.ErrInvalidFrame, p.Kind)
	}
	return p, nil
}

// RelayStream is the server side of one bidirectional Stream call.
type RelayStream interface {
	Send(*wrapperspb.BytesValue) error
	Recv() (*wrapperspb.BytesValue, error)
	Context() context.Context
}

type RelayServer interface {
	Stream(stream RelayStream) error
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RelayServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Stream",
			Handler:       streamHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "relay/v1/relay.proto",
}

func RegisterRelayServer(s grpc.ServiceRegistrar, srv RelayServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func streamHandler(srv any, stream grpc.ServerStream) error {
	return srv.(RelayServer).Stream(&serverStream{stream})
}

type serverStream struct {
	grpc.ServerStream
}

func (s *serverStream) Send(m *wrapperspb.BytesValue) error {
	return s.ServerStream.SendMsg(m)
}

func (s *serverStream) Recv() (*wrapperspb.BytesValue, error) {
	m := new(wrapperspb.BytesValue)
	if err := s.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// ClientStream is the client side of one Stream call.
type ClientStream struct {
	grpc.ClientStream
}

func OpenStream(ctx context.Context, cc grpc.ClientConnInterface, opts ...grpc.CallOption) (*ClientStream, error) {
	stream, err := cc.NewStream(ctx, &ServiceDesc.Streams[0], StreamMethod, opts...)
	if err != nil {
		return nil, err
	}
	return &ClientStream{stream}, nil
}

func (c *ClientStream) Send(p Packet) error {
	msg, err := Encode(p)
	if err != nil {
		return err
	}
	return c.ClientStream.SendMsg(msg)
}

func (c *ClientStream) Recv() (Packet, error) {
	m := new(wrapperspb.BytesValue)
	if err := c.ClientStream.RecvMsg(m); err != nil {
		return Packet{}, err
	}
	return Decode(m)
}
