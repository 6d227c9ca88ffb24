package sink

import (
	"log/slog"

	"github.com/aindrajaya/ask-football/domain"
	"github.com/aindrajaya/ask-football/repositories"
)

// DiskSink stores every MESSAGE envelope it is handed.
// It is meant to be subscribed to the bus, one subscription per channel.
type DiskSink struct {
	repository repositories.IMessageRepository
	log        *slog.Logger
}

func NewDiskSink(repository repositories.IMessageRepository, log *slog.Logger) DiskSink {
	return DiskSink{repository: repository, log: log}
}

func (d DiskSink) Consume(env domain.Envelope) {
	switch env.Type {
	case domain.MessageEvent:
		if env.Message == nil {
			return
		}
		if err := d.repository.StoreMessage(*env.Message); err != nil {
			d.log.Warn("Message not persisted", "channel", env.Message.Channel, "message_id", env.Message.ID, "error", err)
		}
	default:
		// Typing indicators are transient.
	}
}
