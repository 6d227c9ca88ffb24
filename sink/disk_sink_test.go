package sink

import (
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/aindrajaya/ask-football/domain"
	"github.com/aindrajaya/ask-football/mocks"
	"github.com/aindrajaya/ask-football/repositories"
	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestDiskSink_StoresMessagesOnly(t *testing.T) {
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	defer db.Close()
	repository := repositories.NewMessageRepository(db, slog.Default(), nil)
	sink := NewDiskSink(repository, slog.Default())
	sender := domain.Sender{ID: "a", DisplayName: "Alice"}

	// Given a message and a typing indicator
	msg := domain.NewMessage("Who starts up front?", sender, "matchday-chat", time.Now())
	sink.Consume(domain.NewMessageEnvelope(msg))
	sink.Consume(domain.NewTypingEnvelope(domain.Typing{Sender: sender, Channel: "matchday-chat", Active: true}))

	// Then only the message is persisted
	stored, err := repository.Recent("matchday-chat", 10)
	req.NoError(err)
	req.Len(stored, 1)
	req.Equal(msg.ID, stored[0].ID)
	req.Equal(msg.Text, stored[0].Text)
}

func TestDiskSink_StoreFailureIsLoggedNotRaised(t *testing.T) {
	ctrl := gomock.NewController(t)
	repository := mocks.NewMockIMessageRepository(ctrl)
	sink := NewDiskSink(repository, slog.New(slog.DiscardHandler))
	msg := domain.NewMessage("Late winner", domain.Sender{ID: "a", DisplayName: "Alice"}, "matchday-chat", time.Now())

	// Given a store that fails
	repository.EXPECT().StoreMessage(msg).Return(fmt.Errorf("disk full"))

	// When consuming, nothing panics and no further call is made
	sink.Consume(domain.NewMessageEnvelope(msg))
}
