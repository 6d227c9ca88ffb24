package workers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aindrajaya/ask-football/contract"
	"github.com/aindrajaya/ask-football/domain"
	"github.com/aindrajaya/ask-football/errors"
)

// ReplyJob carries everything a reply needs, by value.
// History is a copy and is never shared with the caller.
type ReplyJob struct {
	Text    string
	History []domain.Message
	Channel domain.ChannelID
}

// ReplyWorker consumes reply jobs, asks the generator for a reply and
// publishes it as a bot message on the job's channel.
// A failed job publishes no message and never stops the worker.
type ReplyWorker struct {
	log       *slog.Logger
	jobs      <-chan ReplyJob
	generator contract.ReplyGenerator
	bus       contract.IBus
	observer  contract.Observer
	bot       domain.Sender
	timeout   time.Duration
	delay     time.Duration
	now       func() time.Time
}

func NewReplyWorker(log *slog.Logger, jobs <-chan ReplyJob, generator contract.ReplyGenerator,
	bus contract.IBus, observer contract.Observer, bot domain.Sender,
	timeout, delay time.Duration) *ReplyWorker {
	return &ReplyWorker{
		log:       log,
		jobs:      jobs,
		generator: generator,
		bus:       bus,
		observer:  observer,
		bot:       bot,
		timeout:   timeout,
		delay:     delay,
		now:       time.Now,
	}
}

func (w *ReplyWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping reply worker")
			return ctx.Err()
		case job, ok := <-w.jobs:
			if !ok {
				w.log.Debug("Reply queue is closed")
				return nil
			}
			w.Handle(ctx, job)
		}
	}
}

// Handle is the error boundary of a single reply.
func (w *ReplyWorker) Handle(ctx context.Context, job ReplyJob) {
	defer func() {
		if r := recover(); r != nil {
			w.fail(job.Channel, fmt.Errorf("%w: %v", errors.ErrWorkerPanic, r))
		}
	}()

	w.typing(job.Channel, true)
	defer w.typing(job.Channel, false)

	if w.delay > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.delay):
		}
	}

	text, err := w.generate(ctx, job)
	if err != nil {
		w.fail(job.Channel, err)
		return
	}

	msg := domain.NewMessage(text, w.bot, job.Channel, w.now())
	w.bus.Publish(job.Channel, domain.NewMessageEnvelope(msg))
	w.log.Debug("Bot reply published", "channel", job.Channel, "message_id", msg.ID)
}

// generate enforces the timeout even when the generator ignores its context.
func (w *ReplyWorker) generate(ctx context.Context, job ReplyJob) (string, error) {
	jobCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	resChan := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resChan <- result{err: fmt.Errorf("%w: %v", errors.ErrWorkerPanic, r)}
			}
		}()
		text, err := w.generator.Generate(jobCtx, job.Text, job.History, job.Channel)
		resChan <- result{text: text, err: err}
	}()

	select {
	case <-jobCtx.Done():
		return "", fmt.Errorf("%w: %v", errors.ErrCapabilityFailure, jobCtx.Err())
	case res := <-resChan:
		if res.err != nil {
			return "", fmt.Errorf("%w: %v", errors.ErrCapabilityFailure, res.err)
		}
		if strings.TrimSpace(res.text) == "" {
			return "", errors.ErrEmptyReply
		}
		return res.text, nil
	}
}

func (w *ReplyWorker) typing(channel domain.ChannelID, active bool) {
	w.bus.Publish(channel, domain.NewTypingEnvelope(domain.Typing{
		Sender:  w.bot,
		Channel: channel,
		Active:  active,
	}))
}

func (w *ReplyWorker) fail(channel domain.ChannelID, err error) {
	w.log.Warn("No bot reply", "channel", channel, "error", err)
	w.observer.CapabilityFailed(channel, err)
}
