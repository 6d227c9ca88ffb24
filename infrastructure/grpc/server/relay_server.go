package server

import (
	"io"
	"log/slog"
	"sync"

	"github.com/aindrajaya/ask-football/domain"
	"github.com/aindrajaya/ask-football/infrastructure/grpc/wire"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type peer struct {
	id   string
	out  chan *wrapperspb.BytesValue
	done chan struct{}
}

// RelayServer forwards frames between the processes joined to the same channel.
//
// A frame is never sent back to the stream it came from. Frames of one
// sender reach every other peer in arrival order: forwarding runs on the
// sender's goroutine and waits for room in each peer queue rather than
// dropping.
type RelayServer struct {
	mu        sync.RWMutex
	log       *slog.Logger
	queueSize int
	peers     map[domain.ChannelID]map[*peer]struct{}
	forwarded *prometheus.CounterVec
	rejected  prometheus.Counter
	connected *prometheus.GaugeVec
}

func NewRelayServer(log *slog.Logger, queueSize int, reg prometheus.Registerer) *RelayServer {
	if queueSize <= 0 {
		queueSize = 64
	}
	s := &RelayServer{
		log:       log,
		queueSize: queueSize,
		peers:     make(map[domain.ChannelID]map[*peer]struct{}),
		forwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "frames_forwarded_total",
			Help:      "Frames delivered to a peer, by channel.",
		}, []string{"channel"}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "frames_rejected_total",
			Help:      "Frames that could not be decoded or routed.",
		}),
		connected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "relay",
			Name:      "peers",
			Help:      "Streams currently joined, by channel.",
		}, []string{"channel"}),
	}
	reg.MustRegister(s.forwarded, s.rejected, s.connected)
	return s
}

func (s *RelayServer) Stream(stream wire.RelayStream) error {
	ctx := stream.Context()
	first, err := stream.Recv()
	if err != nil {
		return err
	}
	join, err := wire.Decode(first)
	if err != nil || join.Kind != wire.KindJoin {
		s.rejected.Inc()
		return status.Error(codes.InvalidArgument, "first frame must join a channel")
	}

	channel := join.Channel
	p := &peer{
		id:   uuid.NewString(),
		out:  make(chan *wrapperspb.BytesValue, s.queueSize),
		done: make(chan struct{}),
	}
	s.join(channel, p)
	defer s.leave(channel, p)

	sendErr := make(chan error, 1)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.done:
				return
			case msg := <-p.out:
				if err := stream.Send(msg); err != nil {
					sendErr <- err
					return
				}
			}
		}
	}()

	for {
		msg, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			s.log.Debug("Relay stream ended", "peer", p.id, "channel", channel, "error", err)
			return err
		}
		select {
		case err := <-sendErr:
			return err
		default:
		}

		packet, err := wire.Decode(msg)
		if err != nil || packet.Kind != wire.KindPublish || packet.Channel != channel {
			s.rejected.Inc()
			s.log.Warn("Relay frame rejected", "peer", p.id, "channel", channel, "error", err)
			continue
		}
		s.forward(channel, p, msg)
	}
}

// Peers returns the number of streams joined to channel.
func (s *RelayServer) Peers(channel domain.ChannelID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.peers[channel])
}

func (s *RelayServer) forward(channel domain.ChannelID, from *peer, msg *wrapperspb.BytesValue) {
	s.mu.RLock()
	targets := make([]*peer, 0, len(s.peers[channel]))
	for p := range s.peers[channel] {
		if p != from {
			targets = append(targets, p)
		}
	}
	s.mu.RUnlock()

	for _, p := range targets {
		select {
		case p.out <- msg:
			s.forwarded.WithLabelValues(string(channel)).Inc()
		case <-p.done:
		case <-from.done:
			return
		}
	}
}

func (s *RelayServer) join(channel domain.ChannelID, p *peer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.peers[channel] == nil {
		s.peers[channel] = make(map[*peer]struct{})
	}
	s.peers[channel][p] = struct{}{}
	s.connected.WithLabelValues(string(channel)).Inc()
	s.log.Debug("Peer joined", "peer", p.id, "channel", channel)
}

func (s *RelayServer) leave(channel domain.ChannelID, p *peer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	close(p.done)
	delete(s.peers[channel], p)
	if len(s.peers[channel]) == 0 {
		delete(s.peers, channel)
	}
	s.connected.WithLabelValues(string(channel)).Dec()
	s.log.Debug("Peer left", "peer", p.id, "channel", channel)
}
