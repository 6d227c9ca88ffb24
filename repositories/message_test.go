package repositories

import (
	"log/slog"
	"testing"
	"time"

	"github.com/aindrajaya/ask-football/domain"
	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

func openDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func channelMessages(channel domain.ChannelID, at time.Time) []domain.Message {
	alice := domain.Sender{ID: "a", DisplayName: "Alice"}
	bob := domain.Sender{ID: "b", DisplayName: "Bob"}
	return []domain.Message{
		domain.NewMessage("kick-off", alice, channel, at),
		domain.NewMessage("what a save", bob, channel, at.Add(1*time.Minute)),
		domain.NewMessage("full time", alice, channel, at.Add(2*time.Minute)),
	}
}

func Test_Record_Multiple_Message(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openDB(t), slog.Default(), nil)
	messages := channelMessages("matchday-chat", time.Now())

	for _, m := range messages {
		req.NoError(repository.StoreMessage(m))
	}
	fetched, cursor, err := repository.GetMessages("matchday-chat", nil)

	req.NoError(err)
	req.NotNil(cursor)
	req.Len(fetched, len(messages))
	// Newest first
	req.Equal(messages[2].ID, fetched[0].ID)
	req.Equal(messages[0].ID, fetched[2].ID)
	req.Equal(messages[1].Sender, fetched[1].Sender)
	req.True(messages[1].Timestamp.Equal(fetched[1].Timestamp))
}

func Test_Record_Multiple_Message_And_Limit(t *testing.T) {
	req := require.New(t)
	limit := 2
	repository := NewMessageRepository(openDB(t), slog.Default(), &limit)
	for _, m := range channelMessages("matchday-chat", time.Now()) {
		req.NoError(repository.StoreMessage(m))
	}

	firstPage, cursor, err := repository.GetMessages("matchday-chat", nil)
	req.NoError(err)
	req.Len(firstPage, limit)

	secondPage, _, err := repository.GetMessages("matchday-chat", cursor)
	req.NoError(err)
	req.Len(secondPage, 1)
	req.Equal("kick-off", secondPage[0].Text)
}

func Test_Messages_Are_Scoped_By_Channel(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openDB(t), slog.Default(), nil)
	at := time.Now()
	for _, m := range channelMessages("transfer-talk", at) {
		req.NoError(repository.StoreMessage(m))
	}
	for _, m := range channelMessages("transfer-talk-archive", at) {
		req.NoError(repository.StoreMessage(m))
	}

	fetched, _, err := repository.GetMessages("transfer-talk", nil)
	req.NoError(err)
	req.Len(fetched, 3)
	for _, m := range fetched {
		req.Equal(domain.ChannelID("transfer-talk"), m.Channel)
	}
}

func Test_Recent_Returns_Oldest_First(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openDB(t), slog.Default(), nil)
	for _, m := range channelMessages("match-analysis", time.Now()) {
		req.NoError(repository.StoreMessage(m))
	}

	recent, err := repository.Recent("match-analysis", 2)

	req.NoError(err)
	req.Len(recent, 2)
	req.Equal("what a save", recent[0].Text)
	req.Equal("full time", recent[1].Text)
}

func Test_Messages_Of_A_Colon_Suffixed_Channel_Stay_Apart(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openDB(t), slog.Default(), nil)
	at := time.Now()
	for _, m := range channelMessages("transfer-talk", at) {
		req.NoError(repository.StoreMessage(m))
	}
	for _, m := range channelMessages("transfer-talk:archive", at) {
		req.NoError(repository.StoreMessage(m))
	}

	fetched, _, err := repository.GetMessages("transfer-talk", nil)
	req.NoError(err)
	req.Len(fetched, 3)
	for _, m := range fetched {
		req.Equal(domain.ChannelID("transfer-talk"), m.Channel)
	}

	archived, err := repository.Recent("transfer-talk:archive", 10)
	req.NoError(err)
	req.Len(archived, 3)
}
