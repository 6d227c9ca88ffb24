package server

import (
	"context"
	"log/slog"

	"github.com/aindrajaya/ask-football/contract"
	"github.com/aindrajaya/ask-football/domain"
	"github.com/aindrajaya/ask-football/errors"
	"github.com/aindrajaya/ask-football/infrastructure/grpc/wire"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// QuotaServer exposes one quota store to every process joined to the relay,
// so that all of them count against the same daily counters.
type QuotaServer struct {
	log      *slog.Logger
	store    contract.QuotaStore
	requests *prometheus.CounterVec
}

func NewQuotaServer(log *slog.Logger, store contract.QuotaStore, reg prometheus.Registerer) *QuotaServer {
	s := &QuotaServer{
		log:   log,
		store: store,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "quota_requests_total",
			Help:      "Quota requests by operation and result.",
		}, []string{"op", "result"}),
	}
	reg.MustRegister(s.requests)
	return s
}

func (s *QuotaServer) Count(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.Int64Value, error) {
	key, err := s.key("count", in)
	if err != nil {
		return nil, err
	}
	count, err := s.store.Count(ctx, key)
	if err != nil {
		return nil, s.failed("count", key, err)
	}
	s.requests.WithLabelValues("count", "ok").Inc()
	return wrapperspb.Int64(int64(count)), nil
}

func (s *QuotaServer) Increment(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.Int64Value, error) {
	key, err := s.key("increment", in)
	if err != nil {
		return nil, err
	}
	count, err := s.store.Increment(ctx, key)
	if err != nil {
		return nil, s.failed("increment", key, err)
	}
	s.requests.WithLabelValues("increment", "ok").Inc()
	s.log.Debug("Quota incremented", "key", key.String(), "count", count)
	return wrapperspb.Int64(int64(count)), nil
}

func (s *QuotaServer) Reset(ctx context.Context, in *wrapperspb.BytesValue) (*emptypb.Empty, error) {
	key, err := s.key("reset", in)
	if err != nil {
		return nil, err
	}
	if err := s.store.Reset(ctx, key); err != nil {
		return nil, s.failed("reset", key, err)
	}
	s.requests.WithLabelValues("reset", "ok").Inc()
	s.log.Info("Quota reset", "key", key.String())
	return &emptypb.Empty{}, nil
}

func (s *QuotaServer) key(op string, in *wrapperspb.BytesValue) (domain.QuotaKey, error) {
	key, err := wire.DecodeKey(in)
	if err != nil {
		s.requests.WithLabelValues(op, "invalid").Inc()
		return key, status.Error(codes.InvalidArgument, err.Error())
	}
	return key, nil
}

func (s *QuotaServer) failed(op string, key domain.QuotaKey, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		s.requests.WithLabelValues(op, "cancelled").Inc()
		return status.FromContextError(err).Err()
	}
	s.requests.WithLabelValues(op, "error").Inc()
	s.log.Warn("Quota store failed", "op", op, "key", key.String(), "error", err)
	return status.Error(codes.Unavailable, err.Error())
}
