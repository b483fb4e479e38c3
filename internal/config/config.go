// Package config defines the configuration contract and handles loading and validating environment configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// Canonical environment variable keys.
	KeyBotToken           = "BOT_TOKEN"
	KeyWebhookURL         = "WEBHOOK_URL"
	KeyWebhookPath        = "WEBHOOK_PATH"
	KeyWebhookSecret      = "WEBHOOK_SECRET"
	KeySudoUsers          = "SUDO_USERS"
	KeyStoreBackend       = "STORE_BACKEND"
	KeyMongoURI           = "MONGO_URI"
	KeyMongoDB            = "MONGO_DB"
	KeyDataFile           = "DATA_FILE"
	KeyUpdateMode         = "UPDATE_MODE"
	KeyPendingTTL         = "PENDING_TTL"
	KeyRateLimitPerMinute = "RATE_LIMIT_PER_MINUTE"
	KeyAppEnv             = "APP_ENV"
	KeyLogLevel           = "LOG_LEVEL"
	KeyHTTPPort           = "HTTP_PORT"

	// Allowed environment values.
	EnvDevelopment = "development"
	EnvProduction  = "production"

	// Storage backends.
	BackendMongo = "mongo"
	BackendFile  = "file"

	// Update delivery modes.
	ModeWebhook = "webhook"
	ModePolling = "polling"

	// Defaults for optional settings.
	DefaultAppEnv             = EnvProduction
	DefaultLogLevel           = "info"
	DefaultHTTPPort           = 8000
	DefaultStoreBackend       = BackendMongo
	DefaultDataFile           = "buttons.json"
	DefaultUpdateMode         = ModeWebhook
	DefaultWebhookPath        = "/webhook"
	DefaultPendingTTL         = 10 * time.Minute
	DefaultRateLimitPerMinute = 30

	// Recommended database names by environment.
	DefaultMongoDBProd = "adl_links"
	DefaultMongoDBDev  = "adl_links_dev"
)

// VarSpec describes a single configuration key.
type VarSpec struct {
	Key         string // environment variable name
	Example     string // human-friendly sample value
	Required    bool   // whether the bot must refuse to start without this value
	Default     string // default when unset (empty when required)
	Description string // what the variable controls
	Notes       string // extra guidance or policies
}

// Contract enumerates the authoritative configuration keys for the bot.
// .env loading is only permitted when APP_ENV=development; production must rely
// on environment variables supplied by the runtime.
var Contract = []VarSpec{
	{
		Key:         KeyBotToken,
		Example:     "123:ABC",
		Required:    true,
		Description: "Telegram Bot Token issued by BotFather.",
	},
	{
		Key:         KeyWebhookURL,
		Example:     "https://links.example.com",
		Required:    true,
		Description: "Public base URL Telegram delivers webhook updates to.",
		Notes:       "Only required when " + KeyUpdateMode + "=" + ModeWebhook + ". " + KeyWebhookPath + " is appended.",
	},
	{
		Key:         KeySudoUsers,
		Example:     "11111111,22222222",
		Required:    true,
		Description: "Comma-separated Telegram user_ids seeded as operators at startup.",
	},
	{
		Key:         KeyStoreBackend,
		Example:     BackendMongo + " / " + BackendFile,
		Default:     DefaultStoreBackend,
		Description: "Content store backend.",
	},
	{
		Key:         KeyMongoURI,
		Example:     "mongodb://localhost:27017",
		Required:    true,
		Description: "MongoDB connection string.",
		Notes:       "Only required when " + KeyStoreBackend + "=" + BackendMongo + ".",
	},
	{
		Key:         KeyMongoDB,
		Example:     DefaultMongoDBProd + " / " + DefaultMongoDBDev,
		Required:    true,
		Description: "MongoDB database name.",
		Notes:       "Recommended: production=" + DefaultMongoDBProd + ", development=" + DefaultMongoDBDev + ".",
	},
	{
		Key:         KeyDataFile,
		Example:     DefaultDataFile,
		Default:     DefaultDataFile,
		Description: "JSON document path used by the file backend.",
	},
	{
		Key:         KeyUpdateMode,
		Example:     ModeWebhook + " / " + ModePolling,
		Default:     DefaultUpdateMode,
		Description: "How updates are received from Telegram.",
	},
	{
		Key:         KeyWebhookPath,
		Example:     DefaultWebhookPath,
		Default:     DefaultWebhookPath,
		Description: "HTTP path serving webhook updates.",
	},
	{
		Key:         KeyWebhookSecret,
		Example:     "s3cr3t-token",
		Description: "Secret token Telegram echoes in X-Telegram-Bot-Api-Secret-Token.",
	},
	{
		Key:         KeyPendingTTL,
		Example:     DefaultPendingTTL.String(),
		Default:     DefaultPendingTTL.String(),
		Description: "How long an operator's pending thumbnail upload stays valid.",
	},
	{
		Key:         KeyRateLimitPerMinute,
		Example:     strconv.Itoa(DefaultRateLimitPerMinute),
		Default:     strconv.Itoa(DefaultRateLimitPerMinute),
		Description: "Updates accepted per user per minute; 0 disables throttling.",
	},
	{
		Key:         KeyAppEnv,
		Example:     EnvDevelopment + " / " + EnvProduction,
		Default:     DefaultAppEnv,
		Description: "Runtime environment; controls log format and dotenv usage.",
		Notes:       "Load .env files only when APP_ENV=" + EnvDevelopment + ".",
	},
	{
		Key:         KeyLogLevel,
		Example:     DefaultLogLevel,
		Default:     DefaultLogLevel,
		Description: "Overrides default log level.",
	},
	{
		Key:         KeyHTTPPort,
		Example:     strconv.Itoa(DefaultHTTPPort),
		Default:     strconv.Itoa(DefaultHTTPPort),
		Description: "HTTP port serving the webhook and health endpoints.",
	},
}

// Config mirrors resolved configuration values after loading.
type Config struct {
	BotToken           string
	WebhookURL         string
	WebhookPath        string
	WebhookSecret      string
	SudoUsers          []int64
	StoreBackend       string
	MongoURI           string
	MongoDB            string
	DataFile           string
	UpdateMode         string
	PendingTTL         time.Duration
	RateLimitPerMinute int
	AppEnv             string
	LogLevel           string
	HTTPPort           int
}

// Load resolves configuration from the environment (with optional dotenv in development).
func Load() (Config, error) {
	appEnv, err := resolveAppEnv()
	if err != nil {
		return Config{}, err
	}

	if err := loadDotEnv(appEnv); err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:             firstNonEmpty(normalizeEnv(os.Getenv(KeyAppEnv)), appEnv),
		BotToken:           strings.TrimSpace(os.Getenv(KeyBotToken)),
		WebhookURL:         strings.TrimRight(strings.TrimSpace(os.Getenv(KeyWebhookURL)), "/"),
		WebhookPath:        firstNonEmpty(os.Getenv(KeyWebhookPath), DefaultWebhookPath),
		WebhookSecret:      strings.TrimSpace(os.Getenv(KeyWebhookSecret)),
		StoreBackend:       firstNonEmpty(normalizeEnv(os.Getenv(KeyStoreBackend)), DefaultStoreBackend),
		MongoURI:           strings.TrimSpace(os.Getenv(KeyMongoURI)),
		MongoDB:            strings.TrimSpace(os.Getenv(KeyMongoDB)),
		DataFile:           firstNonEmpty(os.Getenv(KeyDataFile), DefaultDataFile),
		UpdateMode:         firstNonEmpty(normalizeEnv(os.Getenv(KeyUpdateMode)), DefaultUpdateMode),
		PendingTTL:         DefaultPendingTTL,
		RateLimitPerMinute: DefaultRateLimitPerMinute,
		LogLevel:           firstNonEmpty(strings.TrimSpace(os.Getenv(KeyLogLevel)), DefaultLogLevel),
		HTTPPort:           DefaultHTTPPort,
	}

	if err := validateAppEnv(cfg.AppEnv); err != nil {
		return Config{}, err
	}
	if err := validateChoice(KeyStoreBackend, cfg.StoreBackend, BackendMongo, BackendFile); err != nil {
		return Config{}, err
	}
	if err := validateChoice(KeyUpdateMode, cfg.UpdateMode, ModeWebhook, ModePolling); err != nil {
		return Config{}, err
	}

	missing := make([]string, 0)

	if cfg.BotToken == "" {
		missing = append(missing, KeyBotToken)
	}

	if cfg.UpdateMode == ModeWebhook && cfg.WebhookURL == "" {
		missing = append(missing, KeyWebhookURL)
	}

	sudoRaw := strings.TrimSpace(os.Getenv(KeySudoUsers))
	if sudoRaw == "" {
		missing = append(missing, KeySudoUsers)
	} else {
		ids, parseErr := parseUserIDs(sudoRaw)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeySudoUsers, parseErr)
		}
		cfg.SudoUsers = ids
	}

	if cfg.StoreBackend == BackendMongo {
		if cfg.MongoURI == "" {
			missing = append(missing, KeyMongoURI)
		}
		if cfg.MongoDB == "" {
			missing = append(missing, KeyMongoDB)
		}
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variable(s): %s", strings.Join(missing, ", "))
	}

	if cfg.StoreBackend == BackendMongo && !isMongoURI(cfg.MongoURI) {
		return Config{}, fmt.Errorf("invalid %s: must start with mongodb:// or mongodb+srv://", KeyMongoURI)
	}

	if cfg.UpdateMode == ModeWebhook {
		if err := validateWebhookURL(cfg.WebhookURL); err != nil {
			return Config{}, err
		}
	}

	if !strings.HasPrefix(cfg.WebhookPath, "/") {
		cfg.WebhookPath = "/" + cfg.WebhookPath
	}

	if raw := strings.TrimSpace(os.Getenv(KeyHTTPPort)); raw != "" {
		port, parseErr := strconv.Atoi(raw)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyHTTPPort, parseErr)
		}
		if port <= 0 {
			return Config{}, fmt.Errorf("%s must be greater than 0", KeyHTTPPort)
		}
		cfg.HTTPPort = port
	}

	if raw := strings.TrimSpace(os.Getenv(KeyPendingTTL)); raw != "" {
		ttl, parseErr := time.ParseDuration(raw)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyPendingTTL, parseErr)
		}
		if ttl <= 0 {
			return Config{}, fmt.Errorf("%s must be greater than 0", KeyPendingTTL)
		}
		cfg.PendingTTL = ttl
	}

	if raw := strings.TrimSpace(os.Getenv(KeyRateLimitPerMinute)); raw != "" {
		limit, parseErr := strconv.Atoi(raw)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyRateLimitPerMinute, parseErr)
		}
		if limit < 0 {
			return Config{}, fmt.Errorf("%s must not be negative", KeyRateLimitPerMinute)
		}
		cfg.RateLimitPerMinute = limit
	}

	return cfg, nil
}

// IsDevelopment reports if APP_ENV is development.
func (c Config) IsDevelopment() bool {
	return c.AppEnv == EnvDevelopment
}

// WebhookEndpoint is the full public URL registered with Telegram.
func (c Config) WebhookEndpoint() string {
	return c.WebhookURL + c.WebhookPath
}

// FormatRedacted renders the resolved configuration with secrets masked.
func FormatRedacted(c Config) string {
	ids := make([]string, 0, len(c.SudoUsers))
	for _, id := range c.SudoUsers {
		ids = append(ids, strconv.FormatInt(id, 10))
	}

	lines := []string{
		"bot_token: " + redactToken(c.BotToken),
		"webhook_url: " + c.WebhookURL,
		"webhook_path: " + c.WebhookPath,
		"webhook_secret: " + redactToken(c.WebhookSecret),
		"sudo_users: " + strings.Join(ids, ","),
		"store_backend: " + c.StoreBackend,
		"mongo_uri: " + redactURI(c.MongoURI),
		"mongo_db: " + c.MongoDB,
		"data_file: " + c.DataFile,
		"update_mode: " + c.UpdateMode,
		"pending_ttl: " + c.PendingTTL.String(),
		"rate_limit_per_minute: " + strconv.Itoa(c.RateLimitPerMinute),
		"app_env: " + c.AppEnv,
		"log_level: " + c.LogLevel,
		"http_port: " + strconv.Itoa(c.HTTPPort),
	}

	return strings.Join(lines, "\n")
}

func redactToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 4 {
		return "...redacted"
	}
	return token[:4] + "...redacted"
}

func redactURI(raw string) string {
	if raw == "" {
		return ""
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "...redacted"
	}
	parsed.User = nil
	return parsed.String()
}

func parseUserIDs(raw string) ([]int64, error) {
	seen := make(map[int64]struct{})
	ids := make([]int64, 0)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		if id <= 0 {
			return nil, fmt.Errorf("user id %d must be positive", id)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, errors.New("no user ids listed")
	}
	return ids, nil
}

func isMongoURI(uri string) bool {
	return strings.HasPrefix(uri, "mongodb://") || strings.HasPrefix(uri, "mongodb+srv://")
}

func validateWebhookURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", KeyWebhookURL, err)
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return fmt.Errorf("invalid %s: scheme must be http or https", KeyWebhookURL)
	}
	if parsed.Host == "" {
		return fmt.Errorf("invalid %s: host is required", KeyWebhookURL)
	}
	return nil
}

func resolveAppEnv() (string, error) {
	if explicit := normalizeEnv(os.Getenv(KeyAppEnv)); explicit != "" {
		return explicit, nil
	}

	dotEnvValues, err := godotenv.Read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultAppEnv, nil
		}
		return "", fmt.Errorf("read .env: %w", err)
	}

	if envFromFile := normalizeEnv(dotEnvValues[KeyAppEnv]); envFromFile != "" {
		return envFromFile, nil
	}

	return DefaultAppEnv, nil
}

func loadDotEnv(appEnv string) error {
	if appEnv != EnvDevelopment {
		return nil
	}

	if err := godotenv.Load(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load .env: %w", err)
	}

	return nil
}

func validateAppEnv(appEnv string) error {
	if appEnv == EnvDevelopment || appEnv == EnvProduction {
		return nil
	}

	return fmt.Errorf("invalid %s: must be %q or %q", KeyAppEnv, EnvDevelopment, EnvProduction)
}

func validateChoice(key, value string, allowed ...string) error {
	for _, candidate := range allowed {
		if value == candidate {
			return nil
		}
	}

	return fmt.Errorf("invalid %s: must be one of %s", key, strings.Join(allowed, ", "))
}

func normalizeEnv(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func firstNonEmpty(values ...string) string {
	for _, val := range values {
		if strings.TrimSpace(val) != "" {
			return strings.TrimSpace(val)
		}
	}
	return ""
}
