package projection

import (
	"fmt"
	"testing"
	"time"

	"github.com/aindrajaya/ask-football/domain"
	"github.com/stretchr/testify/require"
)

var alice = domain.Sender{ID: "a", DisplayName: "Alice"}

func TestTimeline_Consume_Messages(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline("match-analysis", 10)

	m1 := domain.NewMessage("Hello Bob", alice, "match-analysis", time.Now())
	m2 := domain.NewMessage("Hi Alice", domain.Sender{ID: "b", DisplayName: "Bob"}, "match-analysis", time.Now().Add(time.Second))

	timeline.Consume(domain.NewMessageEnvelope(m1))
	timeline.Consume(domain.NewMessageEnvelope(m2))

	window := timeline.Window()
	req.Len(window, 2)
	req.Equal("Alice", window[0].Sender.DisplayName)
	req.Equal("Bob", window[1].Sender.DisplayName)
}

func TestTimeline_Ignores_Other_Channels_And_Typing(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline("match-analysis", 10)

	timeline.Consume(domain.NewMessageEnvelope(domain.NewMessage("elsewhere", alice, "transfer-talk", time.Now())))
	timeline.Consume(domain.NewTypingEnvelope(domain.Typing{Sender: alice, Channel: "match-analysis", Active: true}))

	req.Equal(0, timeline.Len())
}

func TestTimeline_Deduplicates_By_ID(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline("match-analysis", 10)
	m := domain.NewMessage("once", alice, "match-analysis", time.Now())

	timeline.Consume(domain.NewMessageEnvelope(m))
	timeline.Consume(domain.NewMessageEnvelope(m))
	timeline.Prime([]domain.Message{m})

	req.Equal(1, timeline.Len())
}

func TestTimeline_Keeps_Trailing_Window(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline("match-analysis", 3)

	for i := 0; i < 5; i++ {
		timeline.Consume(domain.NewMessageEnvelope(domain.NewMessage(fmt.Sprintf("m%d", i), alice, "match-analysis", time.Now())))
	}

	window := timeline.Window()
	req.Len(window, 3)
	req.Equal([]string{"m2", "m3", "m4"}, []string{window[0].Text, window[1].Text, window[2].Text})
}

func TestTimeline_Window_Is_A_Copy(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline("match-analysis", 10)
	timeline.Consume(domain.NewMessageEnvelope(domain.NewMessage("original", alice, "match-analysis", time.Now())))

	window := timeline.Window()
	window[0].Text = "changed"

	req.Equal("original", timeline.Window()[0].Text)
}
