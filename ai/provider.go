// Package ai provides the reply capability and its interchangeable backends.
package ai

import (
	"context"
	"log/slog"

	"github.com/aindrajaya/ask-football/contract"
	"github.com/aindrajaya/ask-football/domain"
)

// NoProviderReply is what the capability answers when no backend is configured.
const NoProviderReply = "Error: No AI provider configured. Please check your environment setup."

// Backend describes one candidate provider.
// Build is only called when Configured is true.
type Backend struct {
	Name       string
	Configured bool
	Build      func(ctx context.Context) (contract.ReplyGenerator, error)
}

// Select returns the first configured backend that builds, in the given
// priority order. It is meant to be called once at startup.
func Select(ctx context.Context, log *slog.Logger, backends ...Backend) contract.ReplyGenerator {
	for _, b := range backends {
		if !b.Configured {
			log.Debug("AI backend not configured", "backend", b.Name)
			continue
		}
		generator, err := b.Build(ctx)
		if err != nil {
			log.Warn("AI backend unavailable", "backend", b.Name, "error", err)
			continue
		}
		log.Info("AI backend selected", "backend", b.Name)
		return generator
	}
	log.Warn("No AI backend configured")
	return Unconfigured{}
}

// Unconfigured answers every request with NoProviderReply.
type Unconfigured struct{}

func (Unconfigured) Generate(context.Context, string, []domain.Message, domain.ChannelID) (string, error) {
	return NoProviderReply, nil
}
