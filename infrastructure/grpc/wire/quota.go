package wire

import (
	"context"
	"fmt"

	"github.com/aindrajaya/ask-football/domain"
	"github.com/aindrajaya/ask-football/errors"
	"github.com/fxamacker/cbor/v2"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// The quota service lets every chat process joined to a relay share one set
// of daily counters. Requests carry a CBOR-encoded QuotaRequest.
const (
	QuotaServiceName = "relay.v1.Quota"
	CountMethod      = "/relay.v1.Quota/Count"
	IncrementMethod  = "/relay.v1.Quota/Increment"
	ResetMethod      = "/relay.v1.Quota/Reset"
)

type QuotaRequest struct {
	Identity domain.Identity  `cbor:"identity"`
	Day      domain.DayBucket `cbor:"day"`
}

func EncodeKey(key domain.QuotaKey) (*wrapperspb.BytesValue, error) {
	b, err := cbor.Marshal(QuotaRequest{Identity: key.Identity, Day: key.Day})
	if err != nil {
		return nil, err
	}
	return wrapperspb.Bytes(b), nil
}

// DecodeKey rejects requests that do not address a single counter.
func DecodeKey(msg *wrapperspb.BytesValue) (domain.QuotaKey, error) {
	var req QuotaRequest
	if msg == nil {
		return domain.QuotaKey{}, fmt.Errorf("%w: nil quota request", errors.ErrInvalidFrame)
	}
	if err := cbor.Unmarshal(msg.GetValue(), &req); err != nil {
		return domain.QuotaKey{}, fmt.Errorf("%w: %v", errors.ErrInvalidFrame, err)
	}
	if req.Identity == "" || req.Day == "" {
		return domain.QuotaKey{}, fmt.Errorf("%w: quota request without identity or day", errors.ErrInvalidFrame)
	}
	return domain.QuotaKey{Identity: req.Identity, Day: req.Day}, nil
}

type QuotaServer interface {
	Count(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.Int64Value, error)
	Increment(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.Int64Value, error)
	Reset(ctx context.Context, in *wrapperspb.BytesValue) (*emptypb.Empty, error)
}

var QuotaServiceDesc = grpc.ServiceDesc{
	ServiceName: QuotaServiceName,
	HandlerType: (*QuotaServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Count", Handler: unaryHandler(CountMethod, QuotaServer.Count)},
		{MethodName: "Increment", Handler: unaryHandler(IncrementMethod, QuotaServer.Increment)},
		{MethodName: "Reset", Handler: unaryHandler(ResetMethod, QuotaServer.Reset)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "relay/v1/quota.proto",
}

func RegisterQuotaServer(s grpc.ServiceRegistrar, srv QuotaServer) {
	s.RegisterService(&QuotaServiceDesc, srv)
}

func unaryHandler[R any](method string, call func(QuotaServer, context.Context, *wrapperspb.BytesValue) (R, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(wrapperspb.BytesValue)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(QuotaServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(QuotaServer), ctx, req.(*wrapperspb.BytesValue))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// QuotaClient is the client side of the quota service.
type QuotaClient struct {
	cc grpc.ClientConnInterface
}

func NewQuotaClient(cc grpc.ClientConnInterface) *QuotaClient {
	return &QuotaClient{cc: cc}
}

func (c *QuotaClient) Count(ctx context.Context, key domain.QuotaKey, opts ...grpc.CallOption) (int, error) {
	return c.counter(ctx, CountMethod, key, opts...)
}

func (c *QuotaClient) Increment(ctx context.Context, key domain.QuotaKey, opts ...grpc.CallOption) (int, error) {
	return c.counter(ctx, IncrementMethod, key, opts...)
}

func (c *QuotaClient) Reset(ctx context.Context, key domain.QuotaKey, opts ...grpc.CallOption) error {
	in, err := EncodeKey(key)
	if err != nil {
		return err
	}
	return c.cc.Invoke(ctx, ResetMethod, in, new(emptypb.Empty), opts...)
}

func (c *QuotaClient) counter(ctx context.Context, method string, key domain.QuotaKey, opts ...grpc.CallOption) (int, error) {
	in, err := EncodeKey(key)
	if err != nil {
		return 0, err
	}
	out := new(wrapperspb.Int64Value)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return 0, err
	}
	return int(out.GetValue()), nil
}
