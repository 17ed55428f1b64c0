// Package main is the entry point for the assistant companion process.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/capitalize-ai/estate-assistant/internal/alert"
	"github.com/capitalize-ai/estate-assistant/internal/auth"
	"github.com/capitalize-ai/estate-assistant/internal/backend"
	"github.com/capitalize-ai/estate-assistant/internal/config"
	"github.com/capitalize-ai/estate-assistant/internal/handler"
	"github.com/capitalize-ai/estate-assistant/internal/llm"
	"github.com/capitalize-ai/estate-assistant/internal/model"
	natsclient "github.com/capitalize-ai/estate-assistant/internal/nats"
	"github.com/capitalize-ai/estate-assistant/internal/service"
	"github.com/capitalize-ai/estate-assistant/internal/store"
	"github.com/capitalize-ai/estate-assistant/internal/ws"
	"github.com/capitalize-ai/estate-assistant/pkg/logger"
	"github.com/capitalize-ai/estate-assistant/pkg/tracing"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "assistant: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting assistant", zap.String("port", cfg.ServerPort))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize tracing if enabled
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "estate-assistant", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	// Durable state
	persister, err := store.NewSQLitePersister(cfg.StateDBPath)
	if err != nil {
		return fmt.Errorf("failed to open state: %w", err)
	}
	defer persister.Close()

	st := store.New(persister, log)
	if err := st.Load(); err != nil {
		log.Warn("failed to load durable state", zap.Error(err))
	}
	restoreIdentity(st, log)

	// Backend
	b, err := newBackend(cfg, st, log)
	if err != nil {
		return err
	}

	// Services
	alerts := alert.NewQueue(cfg.AlertDuration)
	defer alerts.Close()

	exchange := service.NewExchange(b, alerts, st, log)
	defer exchange.Wait()

	history := service.NewHistoryPager(b, cfg.HistoryPageSize, log)
	chat := service.NewChatManager(b, st, exchange, history, alerts, model.Mode(cfg.DefaultChatMode), log)
	transport := newTransport(cfg, st, log)
	channel := service.NewNotificationChannel(transport, b, st, alerts, log)

	router := handler.NewRouter(handler.Deps{
		Store:    st,
		Chat:     chat,
		Exchange: exchange,
		History:  history,
		Channel:  channel,
		Alerts:   alerts,
		Logger:   log,
	}, handler.RouterConfig{
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
		LiveRequired:      transport != nil,
	})

	server := &http.Server{
		Addr:         "127.0.0.1:" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := channel.Start(gctx); err != nil {
			log.Warn("live channel unavailable", zap.Error(err))
		}
		if st.Authenticated() {
			if err := channel.Refresh(gctx); err != nil {
				log.Warn("failed to load notifications", zap.Error(err))
			}
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("server forced to shutdown", zap.Error(err))
		}
		if err := channel.Stop(); err != nil {
			log.Warn("failed to stop live channel", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("assistant stopped")
	return nil
}

// restoreIdentity signs the stored credential back in when it has not expired.
func restoreIdentity(st *store.Store, log *logger.Logger) {
	token := st.AuthToken()
	if token == "" {
		return
	}

	info, err := auth.ParseToken(token)
	if err != nil || info.Expired(time.Now()) {
		log.Info("stored credential is no longer usable; signing out")
		st.Logout()
		return
	}

	st.SetIdentity(&info.Identity)
	st.SetAuthenticated(true)
	if !st.UserModeChosen() && info.UserMode.Valid() {
		st.SetUserMode(info.UserMode)
	}
	log.Info("restored identity", zap.String("identity_id", info.Identity.ID))
}

func newBackend(cfg *config.Config, st *store.Store, log *logger.Logger) (backend.Backend, error) {
	if !cfg.DevBackend {
		return backend.NewHTTPClient(cfg.APIBaseURL, cfg.APITimeout, st.AuthToken, log), nil
	}

	var responder backend.Responder
	switch {
	case cfg.AnthropicAPIKey != "":
		client, err := llm.NewClient(llm.ProviderAnthropic, cfg.AnthropicAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create Anthropic client: %w", err)
		}
		responder = llm.NewResponder(client, "")
	case cfg.OpenAIAPIKey != "":
		client, err := llm.NewClient(llm.ProviderOpenAI, cfg.OpenAIAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create OpenAI client: %w", err)
		}
		responder = llm.NewResponder(client, "")
	default:
		log.Info("no LLM key configured, dev backend uses canned replies")
	}

	log.Info("using in-process dev backend")
	return backend.NewMemory(responder), nil
}

// newTransport returns nil when the live channel is disabled.
func newTransport(cfg *config.Config, st *store.Store, log *logger.Logger) service.Transport {
	switch cfg.LiveTransport {
	case config.TransportNATS:
		return natsclient.New(natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
	case config.TransportWebSocket:
		return ws.New(ws.Config{URL: cfg.WSURL, Token: st.AuthToken}, log)
	case config.TransportNone:
		log.Info("live channel disabled")
		return nil
	default:
		log.Warn("unknown live transport, live channel disabled", zap.String("transport", cfg.LiveTransport))
		return nil
	}
}
