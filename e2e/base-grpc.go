package e2e

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aindrajaya/ask-football/infrastructure/grpc/wire"
	"github.com/gookit/color"
	"github.com/stretchr/testify/suite"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type BaseGrpcSuite struct {
	suite.Suite
	Config Config
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseGrpcSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.RelayAddr == "" {
		s.T().Skip("RELAY_ADDR not set, start cmd/relay to run the e2e suite")
	}
}

// GrpcConn initializes a gRPC connection with logging, colors, and frame dumps
func (s *BaseGrpcSuite) GrpcConn(t *testing.T, name string, addr string) *grpc.ClientConn {
	// 1. Print a colorized header for the connection step in logs
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	t.Log(header)

	// 2. Create the client with a Stream Interceptor for logging
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStreamInterceptor(func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn,
			method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
			start := time.Now()
			stream, err := streamer(ctx, desc, cc, method, opts...)
			t.Logf("GRPC %s opened in %v (err=%v)", method, time.Since(start), err)
			if err != nil || !s.Config.DebugFrames {
				return stream, err
			}
			return &loggingStream{ClientStream: stream, t: t}, nil
		}),
	)
	s.Require().NoError(err, "Failed to connect to gRPC server at "+addr)
	return conn
}

// WithRelay provides a relay connection within a contextual test step
func (s *BaseGrpcSuite) WithRelay(name string, fn func(ctx context.Context, conn *grpc.ClientConn)) {
	conn := s.GrpcConn(s.T(), name, s.Config.RelayAddr)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fn(ctx, conn)
}

type loggingStream struct {
	grpc.ClientStream
	t *testing.T
}

func (l *loggingStream) SendMsg(m any) error {
	l.dump("SEND", m)
	return l.ClientStream.SendMsg(m)
}

func (l *loggingStream) RecvMsg(m any) error {
	err := l.ClientStream.RecvMsg(m)
	if err == nil {
		l.dump("RECV", m)
	}
	return err
}

func (l *loggingStream) dump(direction string, m any) {
	msg, ok := m.(*wrapperspb.BytesValue)
	if !ok {
		return
	}
	packet, err := wire.Decode(msg)
	if err != nil {
		l.t.Logf("%s undecodable frame: %v", direction, err)
		return
	}
	l.t.Logf("%s %+v", direction, packet)
}
