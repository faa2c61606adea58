package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Slack    SlackConfig    `mapstructure:"slack"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Session  SessionConfig  `mapstructure:"session"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Usage    UsageConfig    `mapstructure:"usage"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Security SecurityConfig `mapstructure:"security"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Messages MessagesConfig `mapstructure:"messages"`
}

type ServerConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port" validate:"min=0,max=65535"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	MiddlewareTimeout time.Duration `mapstructure:"middleware_timeout"`
}

type SlackConfig struct {
	BotToken string        `mapstructure:"bot_token" validate:"required"`
	AppToken string        `mapstructure:"app_token" validate:"required"`
	Debug    bool          `mapstructure:"debug"`
	Commands SlackCommands `mapstructure:"commands"`
}

// SlackCommands maps each bot action to its slash command
type SlackCommands struct {
	Start string `mapstructure:"start" validate:"required"`
	End   string `mapstructure:"end" validate:"required"`
	Reset string `mapstructure:"reset" validate:"required"`
	Usage string `mapstructure:"usage" validate:"required"`
	Draw  string `mapstructure:"draw" validate:"required"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type SessionConfig struct {
	// Store is "redis" or "memory"
	Store string `mapstructure:"store" validate:"oneof=redis memory"`
	// Guard is "atomic" (production) or "unguarded" (reproduces the check-then-set race)
	Guard        string        `mapstructure:"guard" validate:"oneof=atomic unguarded"`
	TTL          time.Duration `mapstructure:"ttl" validate:"gt=0"`
	HistoryLimit int           `mapstructure:"history_limit" validate:"min=1"`
	FlushOnStart bool          `mapstructure:"flush_on_start"`
}

type LLMConfig struct {
	DefaultProvider string          `mapstructure:"default_provider" validate:"oneof=openai deepseek anthropic gemini ollama"`
	SystemPrompt    string          `mapstructure:"system_prompt"`
	TokenizerModel  string          `mapstructure:"tokenizer_model"`
	StreamTimeout   time.Duration   `mapstructure:"stream_timeout"`
	EditBatchSize   int             `mapstructure:"edit_batch_size" validate:"min=1"`
	MaxTokens       int             `mapstructure:"max_tokens"`
	Temperature     float64         `mapstructure:"temperature"`
	OpenAI          OpenAIConfig    `mapstructure:"openai"`
	DeepSeek        DeepSeekConfig  `mapstructure:"deepseek"`
	Anthropic       AnthropicConfig `mapstructure:"anthropic"`
	Gemini          GeminiConfig    `mapstructure:"gemini"`
	Ollama          OllamaConfig    `mapstructure:"ollama"`
}

type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

type DeepSeekConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type OllamaConfig struct {
	Host         string `mapstructure:"host"`
	DefaultModel string `mapstructure:"default_model"`
}

type UsageConfig struct {
	// Backend is where usage records go: "file", "postgres", "mysql", "sqlite" or "mongo"
	Backend       string  `mapstructure:"backend" validate:"oneof=file postgres mysql sqlite mongo"`
	LogDir        string  `mapstructure:"log_dir"`
	PricePerToken float64 `mapstructure:"price_per_token"`
	ImageTokens   int     `mapstructure:"image_tokens"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	MySQL    SQLConfig      `mapstructure:"mysql"`
	SQLite   SQLConfig      `mapstructure:"sqlite"`
	Mongo    MongoConfig    `mapstructure:"mongo"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

type SQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

type MongoConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

type AuthConfig struct {
	JWTSecret         string        `mapstructure:"jwt_secret"`
	AdminPasswordHash string        `mapstructure:"admin_password_hash"`
	AccessTokenTTL    time.Duration `mapstructure:"access_token_ttl"`
}

type SecurityConfig struct {
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	Burst             int `mapstructure:"burst"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MessagesConfig holds every user-visible string so the bot can be localized
type MessagesConfig struct {
	Greeting        string `mapstructure:"greeting"`
	Waiting         string `mapstructure:"waiting"`
	Placeholder     string `mapstructure:"placeholder"`
	Failure         string `mapstructure:"failure"`
	ChannelOnly     string `mapstructure:"channel_only"`
	Farewell        string `mapstructure:"farewell"`
	Reset           string `mapstructure:"reset"`
	Drawing         string `mapstructure:"drawing"`
	DrawingDone     string `mapstructure:"drawing_done"`
	TranslatePrompt string `mapstructure:"translate_prompt"`
}

// Load reads configuration from file and environment variables
func Load() (*Config, error) {
	v := viper.New()

	// Set config file path
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./configs/config.yaml"
	}

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// Set defaults
	setDefaults(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and env vars
	}

	// Override with environment variables
	v.AutomaticEnv()
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks struct tags on the loaded configuration
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.middleware_timeout", "60s")

	// Slack
	v.SetDefault("slack.commands.start", "/대화시작")
	v.SetDefault("slack.commands.end", "/대화끝")
	v.SetDefault("slack.commands.reset", "/대화초기화")
	v.SetDefault("slack.commands.usage", "/사용량")
	v.SetDefault("slack.commands.draw", "/그림그리기")

	// Redis
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	// Session
	v.SetDefault("session.store", "redis")
	v.SetDefault("session.guard", "atomic")
	v.SetDefault("session.ttl", "300s")
	v.SetDefault("session.history_limit", 6)
	v.SetDefault("session.flush_on_start", false)

	// LLM
	v.SetDefault("llm.default_provider", "openai")
	v.SetDefault("llm.system_prompt", "You are a helpful PHD professor talking to your students")
	v.SetDefault("llm.tokenizer_model", "gpt-3.5-turbo-0301")
	v.SetDefault("llm.stream_timeout", "120s")
	v.SetDefault("llm.edit_batch_size", 2)
	v.SetDefault("llm.max_tokens", 500)
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.openai.model", "gpt-3.5-turbo")
	v.SetDefault("llm.deepseek.model", "deepseek-chat")
	v.SetDefault("llm.deepseek.base_url", "https://api.deepseek.com/v1")
	v.SetDefault("llm.anthropic.model", "claude-3-5-haiku-latest")
	v.SetDefault("llm.gemini.model", "gemini-2.5-flash")
	v.SetDefault("llm.ollama.default_model", "llama3")

	// Usage
	v.SetDefault("usage.backend", "file")
	v.SetDefault("usage.log_dir", "logs")
	v.SetDefault("usage.price_per_token", 0.0000027)
	v.SetDefault("usage.image_tokens", 9)

	// Database
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "slackgpt")
	v.SetDefault("database.postgres.database", "slackgpt")
	v.SetDefault("database.postgres.ssl_mode", "disable")
	v.SetDefault("database.postgres.max_conns", 10)
	v.SetDefault("database.postgres.min_conns", 1)
	v.SetDefault("database.sqlite.dsn", "file:logs/usage.db?_pragma=busy_timeout(5000)")
	v.SetDefault("database.mongo.database", "slackgpt")
	v.SetDefault("database.mongo.collection", "usage_records")

	// Auth
	v.SetDefault("auth.access_token_ttl", "1h")

	// Security
	v.SetDefault("security.rate_limit.requests_per_minute", 60)
	v.SetDefault("security.rate_limit.burst", 10)

	// Logging
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Messages
	v.SetDefault("messages.greeting", "안녕하세요! 지피티선생님입니다. 무엇이든 물어보세요. :smile:")
	v.SetDefault("messages.waiting", "잠시만 기다려주세요... :hourglass_flowing_sand:")
	v.SetDefault("messages.placeholder", ":hourglass_flowing_sand:")
	v.SetDefault("messages.failure", "대화 중 알 수 없는 오류가 발생했습니다. :cry:")
	v.SetDefault("messages.channel_only", ":no_entry_sign: 해당 명령어는 채널에서만 사용 가능합니다.")
	v.SetDefault("messages.farewell", "감사합니다. 대화를 종료합니다! :wave:")
	v.SetDefault("messages.reset", "대화를 처음부터 다시 시작합니다! 무엇이든 물어보세요. :smile:")
	v.SetDefault("messages.drawing", "그림을 그리는 중입니다... 잠시만 기다려주세요")
	v.SetDefault("messages.drawing_done", "그림이 완성되었습니다! :tada:")
	v.SetDefault("messages.translate_prompt", "아래를 영어로 번역해줘 \n %s")
}

func bindEnvVars(v *viper.Viper) {
	// Slack
	v.BindEnv("slack.bot_token", "BOT_TOKEN")
	v.BindEnv("slack.app_token", "APP_TOKEN")

	// Redis
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.db", "REDIS_DB")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// Database
	v.BindEnv("database.postgres.password", "POSTGRES_PASSWORD")
	v.BindEnv("database.mysql.dsn", "MYSQL_DSN")
	v.BindEnv("database.mongo.uri", "MONGO_URI")

	// Auth
	v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	v.BindEnv("auth.admin_password_hash", "ADMIN_PASSWORD_HASH")

	// LLM API Keys
	v.BindEnv("llm.openai.api_key", "API_KEY", "OPENAI_API_KEY")
	v.BindEnv("llm.anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("llm.deepseek.api_key", "DEEPSEEK_API_KEY")
	v.BindEnv("llm.gemini.api_key", "GEMINI_API_KEY")
	v.BindEnv("llm.ollama.host", "OLLAMA_HOST")
}
