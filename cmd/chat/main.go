package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aindrajaya/ask-football/ai"
	"github.com/aindrajaya/ask-football/contract"
	"github.com/aindrajaya/ask-football/domain"
	"github.com/aindrajaya/ask-football/errors"
	"github.com/aindrajaya/ask-football/infrastructure/broadcast"
	"github.com/aindrajaya/ask-football/infrastructure/grpc/client"
	"github.com/aindrajaya/ask-football/infrastructure/ipify"
	"github.com/aindrajaya/ask-football/internal"
	"github.com/aindrajaya/ask-football/moderation"
	"github.com/aindrajaya/ask-football/observability"
	"github.com/aindrajaya/ask-football/projection"
	"github.com/aindrajaya/ask-football/prompt"
	"github.com/aindrajaya/ask-football/repositories"
	"github.com/aindrajaya/ask-football/runtime"
	"github.com/aindrajaya/ask-football/sink"
	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	// 1. Flags & configuration
	flagSet := pflag.NewFlagSet("chat", pflag.ContinueOnError)
	envFile := flagSet.String("env-file", ".env", "Optional dotenv file")
	channel := flagSet.StringP("channel", "c", "", "Channel to join first, defaults to the catalogue default")
	name := flagSet.StringP("name", "n", "", "Display name, defaults to a random guest name")
	noAI := flagSet.Bool("no-ai", false, "Start with AI replies disabled")
	noColour := flagSet.Bool("no-colour", false, "Disable coloured output")
	relayAddr := flagSet.String("relay", "", "Relay address, overrides RELAY_ADDR")
	metricsAddr := flagSet.String("metrics-addr", "", "Serve Prometheus metrics on this address")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	config, err := internal.LoadConfig(*envFile)
	if err != nil {
		return err
	}
	if *relayAddr != "" {
		config.RelayAddr = *relayAddr
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Database (BadgerDB)
	db, err := openDatabase(config)
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Observability
	registry := prometheus.NewRegistry()
	hook := observability.NewHook(log, registry)
	if *metricsAddr != "" {
		go serveMetrics(log, *metricsAddr, registry)
	}

	// 4. Transport & quota, both shared through the relay when there is one
	transport, quotas, disconnect, err := connect(ctx, log, config.RelayAddr, db)
	if err != nil {
		return err
	}
	defer disconnect()
	resolver := runtime.NewIdentityResolver(log, ipify.NewLookup(config.IdentityLookupURL),
		repositories.NewIdentityRepository(db), hook, config.IdentityTimeout)
	limiter := runtime.NewLimiter(log, resolver, quotas, hook, config.DailyLimit)

	// 5. Channels, moderation & AI
	catalogue, err := prompt.LoadCatalogue(config.ChannelsFile)
	if err != nil {
		return err
	}
	moderator, err := newModerator(log, config.CharReplacement)
	if err != nil {
		return err
	}
	generator := ai.NewThrottled(
		ai.Select(ctx, log, backends(config, prompt.NewBuilder(catalogue))...),
		config.AIRatePerSecond, 1,
	)

	// 6. Bus
	bus := runtime.NewBus(log, transport, hook)
	defer bus.Close()

	// 7. Router
	router := runtime.NewRouter(log, bus, limiter, generator, hook,
		runtime.RouterConfig{
			ReplyWorkers:  config.ReplyWorkers,
			QueueSize:     config.ReplyQueueSize,
			ReplyTimeout:  config.ReplyTimeout,
			ReplyDelay:    config.ReplyDelay,
			HistoryWindow: catalogue.HistoryWindow,
			Bot:           runtime.BotSender,
		},
		runtime.WithCensor(moderator),
		runtime.WithChannels(catalogue),
	)
	if config.HistoryPersist && config.RelayAddr != "" {
		log.Warn("History persistence is not available with a relay, ignoring HISTORY_PERSIST")
	} else if config.HistoryPersist {
		if err := persistHistory(log, db, bus, router, catalogue); err != nil {
			return err
		}
	}
	router.Start(ctx)
	defer router.Stop()

	// 8. Console
	console := NewConsole(os.Stdout, router, bus, limiter, catalogue, sessionUser(*name), !*noColour)
	console.SetAI(!*noAI)
	first := catalogue.Default
	if *channel != "" {
		first = domain.ChannelID(*channel)
	}
	if err := console.Join(first); err != nil {
		return err
	}
	defer console.Leave()

	err = console.Run(ctx, os.Stdin)
	log.Info("Program stopped cleanly")
	return err
}

// sessionUser is the display identity of this process, independent of the
// quota identity.
func sessionUser(name string) domain.Sender {
	id := rand.IntN(10000)
	if name == "" {
		name = fmt.Sprintf("Guest%d", id)
	}
	return domain.Sender{
		ID:          fmt.Sprintf("user-%d", id),
		DisplayName: name,
		AvatarRef:   fmt.Sprintf("https://picsum.photos/seed/%d/200/200", id),
	}
}

func backends(config internal.Config, builder prompt.Builder) []ai.Backend {
	return []ai.Backend{
		{
			Name:       "perplexity",
			Configured: config.PerplexityAPIKey != "",
			Build: func(context.Context) (contract.ReplyGenerator, error) {
				return ai.NewPerplexity(config.PerplexityAPIKey, config.PerplexityEndpoint, config.PerplexityModel, builder), nil
			},
		},
		{
			Name:       "gemini",
			Configured: config.GeminiAPIKey != "",
			Build: func(ctx context.Context) (contract.ReplyGenerator, error) {
				return ai.NewGemini(ctx, config.GeminiAPIKey, config.GeminiModel, builder)
			},
		},
	}
}

func newModerator(log *slog.Logger, replacement string) (*moderation.Moderator, error) {
	char, err := internal.CharacterRune(replacement)
	if err != nil {
		return nil, err
	}
	dictionary, err := moderation.LoadDictionary(moderation.Dictionaries, "censored")
	if err != nil {
		return nil, err
	}
	log.Debug("Moderation dictionary loaded", "words", len(dictionary.Words), "languages", dictionary.Languages)
	return moderation.NewModerator(dictionary.Words, char, log)
}

// openDatabase keeps the local store in memory when a relay is used: several
// chat processes then run side by side and the directory lock would let only
// one of them in. Their shared state lives on the relay.
func openDatabase(config internal.Config) (*badger.DB, error) {
	opts := badger.DefaultOptions(config.BadgerFilepath)
	if config.RelayAddr != "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	return badger.Open(opts.WithLoggingLevel(badger.WARNING))
}

// connect dials the relay when an address is given. Without one the bus
// still goes through an in-process hub so that every bus in this process
// shares the same channels, and the quota stays in the local database.
func connect(ctx context.Context, log *slog.Logger, addr string, db *badger.DB) (contract.Transport, contract.QuotaStore, func(), error) {
	if addr == "" {
		hub := broadcast.NewHub(log, 0)
		return hub, repositories.NewQuotaRepository(db, log), hub.Close, nil
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("relay dial failed: %w", err)
	}
	log.Info("Using relay", "address", addr)
	return client.NewRelayTransport(ctx, conn, log), client.NewRelayQuotaStore(conn), func() { _ = conn.Close() }, nil
}

// persistHistory stores every message of the catalogue channels and seeds
// the AI history with what was stored before.
func persistHistory(log *slog.Logger, db *badger.DB, bus *runtime.Bus, router *runtime.Router, catalogue prompt.Catalogue) error {
	messages := repositories.NewMessageRepository(db, log, nil)
	disk := sink.NewDiskSink(messages, log)
	window := catalogue.HistoryWindow
	if window <= 0 {
		window = projection.DefaultWindow
	}
	for _, id := range catalogue.IDs() {
		recent, err := messages.Recent(id, window)
		if err != nil {
			return fmt.Errorf("loading history of %s: %w", id, err)
		}
		router.Prime(id, recent)
		bus.Subscribe(id, disk.Consume)
	}
	return nil
}

func serveMetrics(log *slog.Logger, addr string, registry *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	log.Info("Serving metrics", "address", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Warn("Metrics server stopped", "error", err)
	}
}
