package workers

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/aindrajaya/ask-football/contract"
	"github.com/aindrajaya/ask-football/domain"
	"github.com/aindrajaya/ask-football/errors"
	"github.com/aindrajaya/ask-football/mocks"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type recordingBus struct {
	mu        sync.Mutex
	published []domain.Envelope
}

func (b *recordingBus) Subscribe(domain.ChannelID, contract.Handler) func() { return func() {} }

func (b *recordingBus) Publish(_ domain.ChannelID, env domain.Envelope) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, env)
}

func (b *recordingBus) messages() []domain.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	var res []domain.Message
	for _, env := range b.published {
		if env.Type == domain.MessageEvent {
			res = append(res, *env.Message)
		}
	}
	return res
}

func (b *recordingBus) typing() []bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	var res []bool
	for _, env := range b.published {
		if env.Type == domain.TypingEvent {
			res = append(res, env.Typing.Active)
		}
	}
	return res
}

var bot = domain.Sender{ID: "ai-bot", DisplayName: "Football AI", IsBot: true}

func newReplyWorker(generator contract.ReplyGenerator, bus contract.IBus, observer contract.Observer, timeout time.Duration) *ReplyWorker {
	return NewReplyWorker(slog.New(slog.DiscardHandler), nil, generator, bus, observer, bot, timeout, 0)
}

func TestReplyWorker_Handle_PublishesBotMessage(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	generator := mocks.NewMockReplyGenerator(ctrl)
	observer := mocks.NewMockObserver(ctrl)
	bus := &recordingBus{}
	history := []domain.Message{{ID: "1", Text: "earlier", Channel: "match-analysis"}}

	// Given a generator answering with a reply
	generator.EXPECT().
		Generate(gomock.Any(), "Who wins tonight?", history, domain.ChannelID("match-analysis")).
		Return("City, 2-1.", nil)

	// When the job is handled
	w := newReplyWorker(generator, bus, observer, time.Second)
	w.Handle(context.Background(), ReplyJob{Text: "Who wins tonight?", History: history, Channel: "match-analysis"})

	// Then one bot message is published on the same channel
	msgs := bus.messages()
	req.Len(msgs, 1)
	req.Equal("City, 2-1.", msgs[0].Text)
	req.Equal(domain.ChannelID("match-analysis"), msgs[0].Channel)
	req.True(msgs[0].Sender.IsBot)
	// And typing started then stopped
	req.Equal([]bool{true, false}, bus.typing())
}

func TestReplyWorker_Handle_NoMessageOnFailure(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		err     error
		wantErr error
	}{
		{name: "generator error", err: fmt.Errorf("provider down"), wantErr: errors.ErrCapabilityFailure},
		{name: "empty reply", reply: "", wantErr: errors.ErrEmptyReply},
		{name: "blank reply", reply: "   \n", wantErr: errors.ErrEmptyReply},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			ctrl := gomock.NewController(t)
			generator := mocks.NewMockReplyGenerator(ctrl)
			observer := mocks.NewMockObserver(ctrl)
			bus := &recordingBus{}

			generator.EXPECT().Generate(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(tt.reply, tt.err)
			observer.EXPECT().CapabilityFailed(domain.ChannelID("transfer-talk"), gomock.Any()).
				Do(func(_ domain.ChannelID, err error) { req.ErrorIs(err, tt.wantErr) })

			w := newReplyWorker(generator, bus, observer, time.Second)
			w.Handle(context.Background(), ReplyJob{Text: "Any news on Mbappe?", Channel: "transfer-talk"})

			req.Empty(bus.messages())
			req.Equal([]bool{true, false}, bus.typing())
		})
	}
}

func TestReplyWorker_Handle_TimeoutPublishesNothing(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	generator := mocks.NewMockReplyGenerator(ctrl)
	observer := mocks.NewMockObserver(ctrl)
	bus := &recordingBus{}
	release := make(chan struct{})
	defer close(release)

	// Given a generator that ignores its context and never answers in time
	generator.EXPECT().Generate(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, string, []domain.Message, domain.ChannelID) (string, error) {
			<-release
			return "too late", nil
		})
	observer.EXPECT().CapabilityFailed(gomock.Any(), gomock.Any()).
		Do(func(_ domain.ChannelID, err error) { req.ErrorIs(err, errors.ErrCapabilityFailure) })

	w := newReplyWorker(generator, bus, observer, 20*time.Millisecond)
	start := time.Now()
	w.Handle(context.Background(), ReplyJob{Text: "Score?", Channel: "matchday-chat"})

	req.Less(time.Since(start), time.Second)
	req.Empty(bus.messages())
}

func TestReplyWorker_Handle_RecoversGeneratorPanic(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	generator := mocks.NewMockReplyGenerator(ctrl)
	observer := mocks.NewMockObserver(ctrl)
	bus := &recordingBus{}

	generator.EXPECT().Generate(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, string, []domain.Message, domain.ChannelID) (string, error) {
			panic("boom")
		})
	observer.EXPECT().CapabilityFailed(gomock.Any(), gomock.Any()).
		Do(func(_ domain.ChannelID, err error) { req.ErrorIs(err, errors.ErrWorkerPanic) })

	w := newReplyWorker(generator, bus, observer, time.Second)
	req.NotPanics(func() {
		w.Handle(context.Background(), ReplyJob{Text: "Score?", Channel: "matchday-chat"})
	})
	req.Empty(bus.messages())
}

func TestReplyWorker_Run_ConsumesQueueUntilClosed(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	generator := mocks.NewMockReplyGenerator(ctrl)
	observer := mocks.NewMockObserver(ctrl)
	bus := &recordingBus{}
	jobs := make(chan ReplyJob, 2)

	generator.EXPECT().Generate(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, current string, _ []domain.Message, _ domain.ChannelID) (string, error) {
			return "re: " + current, nil
		}).Times(2)

	jobs <- ReplyJob{Text: "one", Channel: "match-analysis"}
	jobs <- ReplyJob{Text: "two", Channel: "match-analysis"}
	close(jobs)

	w := NewReplyWorker(slog.New(slog.DiscardHandler), jobs, generator, bus, observer, bot, time.Second, time.Millisecond)
	err := w.Run(context.Background())

	req.NoError(err)
	msgs := bus.messages()
	req.Len(msgs, 2)
	req.Equal("re: one", msgs[0].Text)
	req.Equal("re: two", msgs[1].Text)
}

func TestReplyWorker_Run_StopsOnCancel(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	jobs := make(chan ReplyJob)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := NewReplyWorker(slog.New(slog.DiscardHandler), jobs, mocks.NewMockReplyGenerator(ctrl),
		&recordingBus{}, mocks.NewMockObserver(ctrl), bot, time.Second, 0)

	req.ErrorIs(w.Run(ctx), context.Canceled)
}
