package ai

import (
	"context"
	"fmt"

	"github.com/aindrajaya/ask-football/contract"
	"github.com/aindrajaya/ask-football/domain"
	"golang.org/x/time/rate"
)

// Throttled spaces out provider calls. Callers wait for a token, bounded by
// their context, so a burst of replies never exceeds the provider's quota.
type Throttled struct {
	next    contract.ReplyGenerator
	limiter *rate.Limiter
}

func NewThrottled(next contract.ReplyGenerator, perSecond float64, burst int) *Throttled {
	if burst <= 0 {
		burst = 1
	}
	return &Throttled{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (t *Throttled) Generate(ctx context.Context, current string, history []domain.Message, channel domain.ChannelID) (string, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("throttled: %w", err)
	}
	return t.next.Generate(ctx, current, history, channel)
}
