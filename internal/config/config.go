package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration required by the api and worker processes.
// All values must come from env (or the env-file named by DOTENV_PATH).
// No business logic should depend on raw environment variables.
type Config struct {
	App      AppConfig
	LiveKit  LiveKitConfig
	Trunk    TrunkConfig
	Agent    AgentConfig
	Dispatch DispatchConfig
	Redis    RedisConfig
	DB       DBConfig
	Auth     AuthConfig
	Provider ProviderConfig
}

// ProviderConfig carries speech and language vendor credentials. The
// worker validates them at startup; the api process never needs them.
type ProviderConfig struct {
	DeepgramAPIKey string
	OpenAIAPIKey   string
	OpenAIBaseURL  string
	CartesiaAPIKey string
}

type AppConfig struct {
	Env  string
	Port int
}

type LiveKitConfig struct {
	URL       string
	APIKey    string
	APISecret string
}

// TrunkConfig identifies the outbound SIP route.
// OutboundTrunkID must carry the control plane's "ST_" prefix.
type TrunkConfig struct {
	OutboundTrunkID string
}

type AgentConfig struct {
	// Name is the agent identity used for dispatch jobs.
	Name string

	// Variant selects a persona from the registry.
	Variant string

	RingTimeout  time.Duration
	PollInterval time.Duration

	VADThreshold float64
	STTModel     string
	LLMModel     string
	TTSModel     string
	TTSVoice     string

	// StrictMetadata fails a job on malformed metadata instead of
	// falling back to the inbound path.
	StrictMetadata bool

	// MaxActiveCalls caps simultaneous calls per worker fleet.
	// Zero means unlimited.
	MaxActiveCalls int
	CallCapTTL     time.Duration
}

type DispatchConfig struct {
	// CLIPath is the dispatch CLI binary ("lk" unless overridden).
	CLIPath string

	// DedupeCalls rejects a second dispatch for the same room+number
	// while the first is in flight. Off by default: duplicate dispatches
	// create duplicate jobs, matching the historical behavior.
	DedupeCalls bool
	DedupeTTL   time.Duration
}

type RedisConfig struct {
	Host string
	Port int
}

func (c RedisConfig) Enabled() bool { return c.Host != "" }

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

func (c DBConfig) Enabled() bool { return c.Host != "" }

type AuthConfig struct {
	// JWTSecret protects the dispatch API when set; empty leaves
	// /start_call open (matching the original deployment).
	JWTSecret string
	JWTIssuer string
	TokenTTL  time.Duration
}

func (c AuthConfig) Enabled() bool { return c.JWTSecret != "" }

const trunkIDPrefix = "ST_"

func Load() (Config, error) {
	// Optional env-file, loaded before anything else is read.
	if path := strings.TrimSpace(os.Getenv("DOTENV_PATH")); path != "" {
		if err := godotenv.Load(path); err != nil {
			return Config{}, fmt.Errorf("load env file %q: %w", path, err)
		}
	} else {
		// Best effort on the conventional name.
		_ = godotenv.Load()
	}

	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	if c.App.Env == "" {
		c.App.Env = "local"
	}
	c.App.Port = optInt("APP_PORT", 8000, &parseErrs)

	c.LiveKit.URL = strings.TrimSpace(os.Getenv("LIVEKIT_URL"))
	c.LiveKit.APIKey = strings.TrimSpace(os.Getenv("LIVEKIT_API_KEY"))
	c.LiveKit.APISecret = os.Getenv("LIVEKIT_API_SECRET")

	c.Trunk.OutboundTrunkID = strings.TrimSpace(os.Getenv("SIP_OUTBOUND_TRUNK_ID"))

	c.Agent.Name = envDefault("AGENT_NAME", "unified-caller")
	c.Agent.Variant = envDefault("AGENT_VARIANT", "alexis")
	c.Agent.RingTimeout = optDuration("RING_TIMEOUT", 30*time.Second)
	c.Agent.PollInterval = optDuration("CALL_STATUS_POLL_INTERVAL", 100*time.Millisecond)
	c.Agent.VADThreshold = optFloat("VAD_THRESHOLD", 0.6, &parseErrs)
	c.Agent.STTModel = envDefault("STT_MODEL", "nova-2-phonecall")
	c.Agent.LLMModel = envDefault("LLM_MODEL", "gpt-4o-mini")
	c.Agent.TTSModel = envDefault("TTS_MODEL", "sonic")
	c.Agent.TTSVoice = strings.TrimSpace(os.Getenv("TTS_VOICE"))
	c.Agent.StrictMetadata = optBool("STRICT_METADATA", false, &parseErrs)
	c.Agent.MaxActiveCalls = optInt("MAX_ACTIVE_CALLS", 0, &parseErrs)
	c.Agent.CallCapTTL = optDuration("CALL_CAP_TTL", time.Hour)

	c.Dispatch.CLIPath = envDefault("DISPATCH_CLI", "lk")
	c.Dispatch.DedupeCalls = optBool("DISPATCH_DEDUPE", false, &parseErrs)
	c.Dispatch.DedupeTTL = optDuration("DISPATCH_DEDUPE_TTL", time.Minute)

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	c.Redis.Port = optInt("REDIS_PORT", 6379, &parseErrs)

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	c.DB.Port = optInt("DB_PORT", 5432, &parseErrs)
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Provider.DeepgramAPIKey = strings.TrimSpace(os.Getenv("DEEPGRAM_API_KEY"))
	c.Provider.OpenAIAPIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	c.Provider.OpenAIBaseURL = strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))
	c.Provider.CartesiaAPIKey = strings.TrimSpace(os.Getenv("CARTESIA_API_KEY"))

	c.Auth.JWTSecret = os.Getenv("API_JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("API_JWT_ISSUER"))
	c.Auth.TokenTTL = optDuration("API_TOKEN_TTL", 15*time.Minute)

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	var errs []error

	if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.LiveKit.URL == "" {
		errs = append(errs, errors.New("LIVEKIT_URL is required"))
	}
	if c.LiveKit.APIKey == "" {
		errs = append(errs, errors.New("LIVEKIT_API_KEY is required"))
	}
	if c.LiveKit.APISecret == "" {
		errs = append(errs, errors.New("LIVEKIT_API_SECRET is required"))
	}

	if c.Trunk.OutboundTrunkID == "" {
		errs = append(errs, errors.New("SIP_OUTBOUND_TRUNK_ID is required"))
	} else if !strings.HasPrefix(c.Trunk.OutboundTrunkID, trunkIDPrefix) {
		errs = append(errs, fmt.Errorf("SIP_OUTBOUND_TRUNK_ID must start with %q, got %q", trunkIDPrefix, c.Trunk.OutboundTrunkID))
	}

	if c.Agent.RingTimeout <= 0 {
		errs = append(errs, errors.New("RING_TIMEOUT must be positive"))
	}
	if c.Agent.PollInterval <= 0 {
		errs = append(errs, errors.New("CALL_STATUS_POLL_INTERVAL must be positive"))
	}
	if c.Agent.VADThreshold <= 0 || c.Agent.VADThreshold >= 1 {
		errs = append(errs, fmt.Errorf("VAD_THRESHOLD must be in (0, 1), got %v", c.Agent.VADThreshold))
	}
	if c.Agent.MaxActiveCalls < 0 {
		errs = append(errs, fmt.Errorf("MAX_ACTIVE_CALLS must not be negative, got %d", c.Agent.MaxActiveCalls))
	}

	if c.Redis.Enabled() && (c.Redis.Port <= 0 || c.Redis.Port > 65535) {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.DB.Enabled() {
		if c.DB.Port <= 0 || c.DB.Port > 65535 {
			errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
		}
		if c.DB.User == "" {
			errs = append(errs, errors.New("DB_USER is required when DB_HOST is set"))
		}
		if c.DB.Name == "" {
			errs = append(errs, errors.New("DB_NAME is required when DB_HOST is set"))
		}
		if c.DB.SSLMode == "" {
			if c.IsProduction() {
				errs = append(errs, errors.New("DB_SSLMODE is required in production"))
			} else {
				c.DB.SSLMode = "disable"
			}
		}
		if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
			errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
		}
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func envDefault(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func optInt(key string, def int, errs *[]error) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s must be an integer, got %q", key, v))
		return def
	}
	return n
}

func optFloat(key string, def float64, errs *[]error) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s must be a number, got %q", key, v))
		return def
	}
	return f
}

func optBool(key string, def bool, errs *[]error) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s must be a boolean, got %q", key, v))
		return def
	}
	return b
}

func optDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
