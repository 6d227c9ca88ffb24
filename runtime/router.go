package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aindrajaya/ask-football/contract"
	"github.com/aindrajaya/ask-football/domain"
	"github.com/aindrajaya/ask-football/errors"
	"github.com/aindrajaya/ask-football/projection"
	"github.com/aindrajaya/ask-football/runtime/workers"
)

// BotSender is the identity of AI replies.
var BotSender = domain.Sender{ID: "ai-bot", DisplayName: "Tactics Bot", IsBot: true}

type SendRequest struct {
	Text      string
	Channel   domain.ChannelID
	Sender    domain.Sender
	AIEnabled bool
}

// SendResult tells the caller whether the message went out and how much
// quota is left. Message is nil when the send was rejected.
type SendResult struct {
	Accepted bool
	Status   domain.QuotaStatus
	Message  *domain.Message
}

// ChannelSet restricts the channels a router accepts.
type ChannelSet interface {
	Has(channel domain.ChannelID) bool
}

type RouterConfig struct {
	ReplyWorkers  int
	QueueSize     int
	ReplyTimeout  time.Duration
	ReplyDelay    time.Duration
	HistoryWindow int
	Bot           domain.Sender
}

func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		ReplyWorkers:  2,
		QueueSize:     32,
		ReplyTimeout:  20 * time.Second,
		ReplyDelay:    600 * time.Millisecond,
		HistoryWindow: projection.DefaultWindow,
		Bot:           BotSender,
	}
}

type RouterOption func(*Router)

// WithCensor masks user text before the message is built.
func WithCensor(censor contract.Censor) RouterOption {
	return func(r *Router) { r.censor = censor }
}

// WithChannels rejects sends to channels outside set with ErrUnknownChannel.
func WithChannels(set ChannelSet) RouterOption {
	return func(r *Router) { r.channels = set }
}

func WithRouterClock(now func() time.Time) RouterOption {
	return func(r *Router) { r.now = now }
}

// Router turns a send intent into a published message: it gates on the
// daily quota, publishes, records, then hands the AI reply to the worker
// pool without waiting for it.
type Router struct {
	mu         sync.Mutex
	log        *slog.Logger
	bus        contract.IBus
	limiter    contract.IRateLimiter
	observer   contract.Observer
	censor     contract.Censor
	channels   ChannelSet
	cfg        RouterConfig
	timelines  map[domain.ChannelID]*projection.Timeline
	jobs       chan workers.ReplyJob
	supervisor *workers.Supervisor
	now        func() time.Time
}

func NewRouter(log *slog.Logger, bus contract.IBus, limiter contract.IRateLimiter,
	generator contract.ReplyGenerator, observer contract.Observer, cfg RouterConfig, opts ...RouterOption) *Router {
	def := DefaultRouterConfig()
	if cfg.ReplyWorkers <= 0 {
		cfg.ReplyWorkers = def.ReplyWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.ReplyTimeout <= 0 {
		cfg.ReplyTimeout = def.ReplyTimeout
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = def.HistoryWindow
	}
	if cfg.Bot.ID == "" {
		cfg.Bot = def.Bot
	}

	r := &Router{
		log:        log,
		bus:        bus,
		limiter:    limiter,
		observer:   observer,
		cfg:        cfg,
		timelines:  make(map[domain.ChannelID]*projection.Timeline),
		jobs:       make(chan workers.ReplyJob, cfg.QueueSize),
		supervisor: workers.NewSupervisor(log),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	for i := 0; i < cfg.ReplyWorkers; i++ {
		r.supervisor.Add(workers.NewReplyWorker(log, r.jobs, generator, bus, observer, cfg.Bot, cfg.ReplyTimeout, cfg.ReplyDelay))
	}
	return r
}

// Start runs the reply workers until ctx is done or Stop is called.
func (r *Router) Start(ctx context.Context) {
	r.supervisor.StartAll(ctx)
}

func (r *Router) Stop() {
	r.supervisor.Stop()
}

// Send publishes text on channel when the quota allows it.
//
// A rejected send is not an error: the result carries the status and nothing
// is published or recorded. Errors are only returned for invalid input.
func (r *Router) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return SendResult{}, errors.ErrEmptyMessage
	}
	if r.channels != nil && !r.channels.Has(req.Channel) {
		return SendResult{}, fmt.Errorf("%w: %q", errors.ErrUnknownChannel, req.Channel)
	}
	timeline := r.Watch(req.Channel)

	status := r.limiter.Check(ctx)
	if !status.CanSend {
		r.log.Info("Daily limit reached", "channel", req.Channel, "used", status.Used, "reset_at", status.ResetAt)
		r.observer.SendRejected(req.Channel)
		return SendResult{Status: status}, nil
	}

	if r.censor != nil {
		text = r.censor.Censor(text)
	}
	msg := domain.NewMessage(text, req.Sender, req.Channel, r.now())
	r.bus.Publish(req.Channel, domain.NewMessageEnvelope(msg))
	r.limiter.Record(ctx)

	if req.AIEnabled {
		r.dispatch(workers.ReplyJob{
			Text:    msg.Text,
			History: timeline.Window(),
			Channel: req.Channel,
		})
	}

	return SendResult{Accepted: true, Status: r.limiter.Check(ctx), Message: &msg}, nil
}

// Watch returns the history timeline of channel, subscribing it to the bus
// on first use.
func (r *Router) Watch(channel domain.ChannelID) *projection.Timeline {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.timelines[channel]; ok {
		return t
	}
	t := projection.NewTimeline(channel, r.cfg.HistoryWindow)
	r.bus.Subscribe(channel, t.Consume)
	r.timelines[channel] = t
	return t
}

// Prime seeds the history of channel with stored messages.
func (r *Router) Prime(channel domain.ChannelID, messages []domain.Message) {
	r.Watch(channel).Prime(messages)
}

// dispatch never blocks the send path, a full queue drops the reply.
func (r *Router) dispatch(job workers.ReplyJob) {
	select {
	case r.jobs <- job:
	default:
		r.log.Warn("Reply queue full, dropping reply", "channel", job.Channel)
		r.observer.CapabilityFailed(job.Channel, errors.ErrReplyQueueFull)
	}
}
