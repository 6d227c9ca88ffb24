//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"github.com/aindrajaya/ask-football/domain"
)

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Handler receives every envelope published on the channel it subscribed to.
// It may be called from the publishing goroutine or from a transport goroutine.
type Handler func(env domain.Envelope)

// Frame is what travels between execution contexts.
// Origin identifies the bus that published it.
type Frame struct {
	Origin   string
	Channel  domain.ChannelID
	Envelope domain.Envelope
}

// Transport opens cross-context bindings scoped by channel name.
// A binding must not deliver a frame back to the binding that sent it.
// lost is called at most once, when the binding ends without its owner
// closing it.
type Transport interface {
	Open(channel domain.ChannelID, deliver func(Frame), lost func(error)) (Binding, error)
}

type Binding interface {
	Send(frame Frame) error
	Close() error
}

type IBus interface {
	Subscribe(channel domain.ChannelID, handler Handler) (unsubscribe func())
	Publish(channel domain.ChannelID, env domain.Envelope)
}

type QuotaStore interface {
	Count(ctx context.Context, key domain.QuotaKey) (int, error)
	Increment(ctx context.Context, key domain.QuotaKey) (int, error)
	Reset(ctx context.Context, key domain.QuotaKey) error
}

type IdentityResolver interface {
	Resolve(ctx context.Context) (domain.Identity, error)
}

// IdentityCache persists a resolved identity across restarts.
type IdentityCache interface {
	Load(ctx context.Context) (domain.Identity, bool, error)
	Save(ctx context.Context, identity domain.Identity) error
}

// AddressLookup returns the caller's network address as seen from outside.
type AddressLookup interface {
	Lookup(ctx context.Context) (string, error)
}

type IRateLimiter interface {
	Check(ctx context.Context) domain.QuotaStatus
	Record(ctx context.Context)
	Reset(ctx context.Context)
}

// ReplyGenerator is the AI reply capability.
// history may be empty.
type ReplyGenerator interface {
	Generate(ctx context.Context, current string, history []domain.Message, channel domain.ChannelID) (string, error)
}

type Censor interface {
	Censor(text string) string
}

// Observer is the observability hook for failures recovered below the router.
type Observer interface {
	TransportFailed(channel domain.ChannelID, err error)
	IdentityFallback(err error)
	QuotaStoreFailed(op string, err error)
	CapabilityFailed(channel domain.ChannelID, err error)
	MessagePublished(channel domain.ChannelID, eventType domain.EventType)
	SendRejected(channel domain.ChannelID)
}
