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

	"github.com/Rrens/slack-gpt/internal/api"
	"github.com/Rrens/slack-gpt/internal/config"
	"github.com/Rrens/slack-gpt/internal/domain"
	"github.com/Rrens/slack-gpt/internal/llm"
	"github.com/Rrens/slack-gpt/internal/llm/anthropic"
	"github.com/Rrens/slack-gpt/internal/llm/gemini"
	"github.com/Rrens/slack-gpt/internal/llm/ollama"
	"github.com/Rrens/slack-gpt/internal/llm/openai"
	"github.com/Rrens/slack-gpt/internal/repository/logfile"
	"github.com/Rrens/slack-gpt/internal/repository/memory"
	"github.com/Rrens/slack-gpt/internal/repository/mongo"
	"github.com/Rrens/slack-gpt/internal/repository/postgres"
	"github.com/Rrens/slack-gpt/internal/repository/redis"
	"github.com/Rrens/slack-gpt/internal/repository/sqldb"
	"github.com/Rrens/slack-gpt/internal/security"
	"github.com/Rrens/slack-gpt/internal/service"
	"github.com/Rrens/slack-gpt/internal/slackbot"
	"github.com/Rrens/slack-gpt/internal/usage"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"
)

// sessionBackend is a session store that can also claim sessions atomically
type sessionBackend interface {
	domain.SessionStore
	domain.SessionAcquirer
}

func main() {
	// Load .env file - try multiple locations
	for _, p := range []string{".env", "../.env", "../../.env"} {
		if err := godotenv.Load(p); err == nil {
			break
		}
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	setupLogger(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("session_store", cfg.Session.Store).
		Str("usage_backend", cfg.Usage.Backend).
		Str("provider", cfg.LLM.DefaultProvider).
		Msg("Starting Slack GPT bot")

	// Initialize Redis when a component needs it
	var redisClient *redis.Client
	if cfg.Session.Store == "redis" {
		redisClient, err = redis.NewClient(cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer redisClient.Close()
	}

	// Initialize session store
	store := openSessionStore(ctx, cfg, redisClient)

	var acquirer domain.SessionAcquirer = store
	if cfg.Session.Guard == "unguarded" {
		log.Warn().Msg("Session guard is unguarded, concurrent messages may race")
		acquirer = service.NewUnguardedAcquirer(store)
	}

	// Initialize usage log
	usageRepo, err := openUsageRepository(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Usage.Backend).Msg("Failed to open usage log")
	}
	defer usageRepo.Close()

	recorder := usage.NewRecorder(usageRepo)
	reporter := usage.NewReporter(usageRepo, cfg.Usage.PricePerToken)

	// Initialize LLM providers
	llmRouter, openaiProvider := buildProviders(cfg.LLM)
	if _, err := llmRouter.GetProvider(""); err != nil {
		log.Fatal().Err(err).Msg("Default LLM provider is not usable")
	}

	encoder, err := llm.NewTiktokenEncoder(cfg.LLM.TokenizerModel)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load tokenizer")
	}
	tokenizer, err := llm.NewTokenCounter(cfg.LLM.TokenizerModel, encoder)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create token counter")
	}

	// Initialize Slack clients
	slackAPI := slack.New(
		cfg.Slack.BotToken,
		slack.OptionAppLevelToken(cfg.Slack.AppToken),
		slack.OptionDebug(cfg.Slack.Debug),
	)
	socketClient := socketmode.New(slackAPI, socketmode.OptionDebug(cfg.Slack.Debug))
	messenger := slackbot.NewMessenger(slackAPI)

	// Initialize services
	streamer := service.NewStreamer(messenger, tokenizer, service.StreamConfig{
		BatchSize:     cfg.LLM.EditBatchSize,
		Placeholder:   cfg.Messages.Placeholder,
		FailureNotice: cfg.Messages.Failure,
	})

	conversations := service.NewConversationService(store, acquirer, llmRouter, streamer, messenger, recorder, service.ConversationConfig{
		Provider:      cfg.LLM.DefaultProvider,
		SystemPrompt:  cfg.LLM.SystemPrompt,
		HistoryLimit:  cfg.Session.HistoryLimit,
		SessionTTL:    cfg.Session.TTL,
		StreamTimeout: cfg.LLM.StreamTimeout,
		MaxTokens:     cfg.LLM.MaxTokens,
		Temperature:   cfg.LLM.Temperature,
		Greeting:      cfg.Messages.Greeting,
		Waiting:       cfg.Messages.Waiting,
		Failure:       cfg.Messages.Failure,
	})

	commands := service.NewCommandService(store, cfg.Session.TTL, service.CommandMessages{
		Greeting:    cfg.Messages.Greeting,
		Farewell:    cfg.Messages.Farewell,
		Reset:       cfg.Messages.Reset,
		ChannelOnly: cfg.Messages.ChannelOnly,
	})

	images := service.NewImageService(llmRouter, openaiProvider, messenger, messenger, recorder, service.ImageConfig{
		Provider:        cfg.LLM.DefaultProvider,
		Tokens:          cfg.Usage.ImageTokens,
		Drawing:         cfg.Messages.Drawing,
		Done:            cfg.Messages.DrawingDone,
		TranslatePrompt: cfg.Messages.TranslatePrompt,
	})

	usageService := service.NewUsageService(reporter, openaiProvider)

	// Start ops API
	var server *http.Server
	if cfg.Server.Enabled {
		server = startServer(cfg, usageService, store, llmRouter, redisClient)
	}

	// Run the bot until interrupted
	bot := slackbot.NewBot(slackAPI, socketClient, conversations, commands, images, usageService, cfg.Slack, cfg.Messages.Waiting)
	if err := bot.Run(ctx, socketClient); err != nil {
		log.Error().Err(err).Msg("Bot stopped with error")
	}

	log.Info().Msg("Shutting down...")

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
	}

	log.Info().Msg("Bot stopped")
}

func setupLogger(cfg config.LoggingConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

func openSessionStore(ctx context.Context, cfg *config.Config, redisClient *redis.Client) sessionBackend {
	if cfg.Session.Store == "memory" {
		store := memory.NewSessionStore()
		go store.RunJanitor(ctx, memory.DefaultCleanupInterval)
		return store
	}

	store := redis.NewSessionStore(redisClient)
	if cfg.Session.FlushOnStart {
		removed, err := store.FlushAll(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to flush sessions")
		}
		log.Info().Int64("removed", removed).Msg("Flushed sessions on start")
	}
	return store
}

func openUsageRepository(ctx context.Context, cfg *config.Config) (domain.UsageRepository, error) {
	switch cfg.Usage.Backend {
	case "postgres":
		if err := postgres.RunMigrations(cfg.Database.Postgres.DSN()); err != nil {
			return nil, err
		}
		db, err := postgres.NewDB(ctx, cfg.Database.Postgres)
		if err != nil {
			return nil, err
		}
		return postgres.NewUsageRepository(db), nil
	case "mysql":
		return sqldb.Open(ctx, sqldb.MySQL, cfg.Database.MySQL.DSN)
	case "sqlite":
		return sqldb.Open(ctx, sqldb.SQLite, cfg.Database.SQLite.DSN)
	case "mongo":
		return mongo.Connect(ctx, cfg.Database.Mongo)
	case "file", "":
		return logfile.NewUsageRepository(cfg.Usage.LogDir)
	}
	return nil, fmt.Errorf("unknown usage backend: %s", cfg.Usage.Backend)
}

// buildProviders registers every provider. The OpenAI provider is returned on its own
// because it also serves image generation and billing.
func buildProviders(cfg config.LLMConfig) (*llm.Router, *openai.Provider) {
	router := llm.NewRouter(cfg.DefaultProvider)

	var openaiOpts []openai.Option
	if cfg.OpenAI.BaseURL != "" {
		openaiOpts = append(openaiOpts, openai.WithBaseURL(cfg.OpenAI.BaseURL))
	}
	openaiProvider := openai.NewProvider(cfg.OpenAI.APIKey, cfg.OpenAI.Model, openaiOpts...)
	router.RegisterProvider(openaiProvider)

	router.RegisterProvider(openai.NewProvider(
		cfg.DeepSeek.APIKey,
		cfg.DeepSeek.Model,
		openai.WithName("deepseek"),
		openai.WithBaseURL(cfg.DeepSeek.BaseURL),
		openai.WithModels("deepseek-chat", "deepseek-reasoner"),
	))

	router.RegisterProvider(anthropic.NewProvider(cfg.Anthropic.APIKey, cfg.Anthropic.Model))

	geminiCfg := cfg.Gemini
	router.RegisterFactory("gemini", func() llm.Provider {
		return gemini.NewProvider(geminiCfg)
	})

	if cfg.Ollama.Host != "" {
		router.RegisterProvider(ollama.NewProvider(cfg.Ollama.Host, cfg.Ollama.DefaultModel))
	}

	log.Info().Strs("providers", router.ListProviders()).Msg("LLM providers registered")
	return router, openaiProvider
}

func startServer(
	cfg *config.Config,
	usageService *service.UsageService,
	store domain.SessionStore,
	providers *llm.Router,
	redisClient *redis.Client,
) *http.Server {
	jwtManager := security.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)

	deps := api.Dependencies{
		Auth:      service.NewAuthService(cfg.Auth.AdminPasswordHash, jwtManager),
		Usage:     usageService,
		Sessions:  service.NewSessionService(store),
		Providers: providers,
		JWT:       jwtManager,
	}
	if redisClient != nil {
		deps.RateLimiter = redis.NewRateLimiter(redisClient, cfg.Security.RateLimit.RequestsPerMinute, cfg.Security.RateLimit.Burst)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(cfg, deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Msgf("Ops API listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	return server
}
