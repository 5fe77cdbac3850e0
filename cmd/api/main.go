package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/rasa-chat/backend/internal/config"
	"github.com/zhouzirui/rasa-chat/backend/internal/handler"
	"github.com/zhouzirui/rasa-chat/backend/internal/logging"
	"github.com/zhouzirui/rasa-chat/backend/internal/service/session"
	"github.com/zhouzirui/rasa-chat/backend/internal/service/transport"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Setup(cfg.Log.Level, cfg.Log.Pretty, os.Stderr)
	if envErr != nil {
		log.Debug().Err(envErr).Msg("no .env file, using system environment only")
	}

	client, err := newTransport(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("transport", cfg.Transport.Kind).Msg("failed to initialize transport")
	}
	log.Info().Str("transport", cfg.Transport.Kind).Msg("transport initialized")

	registry := session.NewRegistry(client,
		session.WithSenderID(cfg.Chat.SenderID),
		session.WithSessionScopedSender(cfg.Chat.SessionScopedSender),
		session.WithFallbackText(cfg.Chat.FallbackText),
	)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler.NewRouter(registry),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info().Str("addr", cfg.Server.Addr).Msg("rasa chat backend listening")
	if err := runServer(ctx, srv); err != nil {
		log.Error().Err(err).Msg("server error")
	}

	registry.Shutdown()
	log.Info().Msg("bye")
}

func newTransport(ctx context.Context, cfg *config.Config) (transport.Client, error) {
	switch cfg.Transport.Kind {
	case config.TransportArk:
		chatModel, err := cfg.AI.NewChatModel(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "create ark chat model")
		}
		return transport.NewAgentClient(ctx, chatModel, transport.AgentConfig{
			SystemPrompt: cfg.AI.SystemPrompt,
			HistoryLimit: cfg.AI.HistoryLimit,
		})
	default:
		var opts []transport.RasaOption
		if cfg.Transport.Timeout > 0 {
			opts = append(opts, transport.WithHTTPClient(&http.Client{Timeout: cfg.Transport.Timeout}))
		}
		return transport.NewRasaClient(cfg.Transport.WebhookURL, opts...), nil
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
