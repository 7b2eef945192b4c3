// Package config loads the worldline runtime's configuration from a flat
// key-value environment map, following the conventions already established
// by this codebase's envexpand/errors helpers.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// EventDiceConfig tunes how often the Prompt Builder asks the model to
// introduce random world events, and how many.
type EventDiceConfig struct {
	Enabled     bool
	GoodProb    float64
	BadProb     float64
	RebelProb   float64
	MinEvents   int
	MaxEvents   int
	Hemisphere  string
}

// ProviderDefaults holds the provider base URLs read from the environment
// by Load. Nothing reads these values after Load: a session's
// ProviderConfig with no base URL does not fall back to them.
type ProviderDefaults struct {
	OpenAIBaseURL   string
	DeepSeekBaseURL string
	OllamaBaseURL   string
	GeminiBaseURL   string
}

// Config is the process-wide configuration object built once at startup by
// Load; afterwards only ApplyDebug changes it. Apart from ENV_FILE, which
// cmd/worldlined reads to locate the .env file, environment variables are
// read only in this package.
type Config struct {
	AppEnv      string
	AppHost     string
	AppPort     int
	CORSOrigins []string

	DBURL string

	AppSecretKey string

	DefaultPostGenDelaySec int
	DefaultTickLabel       string

	ProviderDefaults ProviderDefaults

	MemoryMode   MemoryMode
	EmbedProvider string
	EmbedDim      int

	EventDice EventDiceConfig
}

// DebugSettings is the non-secret, runtime-patchable subset of Config
// exposed via GET/PATCH /api/debug/settings.
type DebugSettings struct {
	DefaultPostGenDelaySec int             `json:"default_post_gen_delay_sec"`
	DefaultTickLabel       string          `json:"default_tick_label"`
	EventDice              EventDiceConfig `json:"event_dice"`
}

// Debug returns the patchable subset of c.
func (c *Config) Debug() DebugSettings {
	return DebugSettings{
		DefaultPostGenDelaySec: c.DefaultPostGenDelaySec,
		DefaultTickLabel:       c.DefaultTickLabel,
		EventDice:              c.EventDice,
	}
}

// ApplyDebug patches the runtime-tunable subset of c from a PATCH request.
// Zero-value fields in patch are treated as "not supplied" except where a
// bool/explicit zero is meaningful (EventDice.Enabled, MinEvents/MaxEvents
// use pointer-free partial semantics resolved by the caller beforehand).
func (c *Config) ApplyDebug(patch DebugSettings) {
	if patch.DefaultPostGenDelaySec > 0 {
		c.DefaultPostGenDelaySec = patch.DefaultPostGenDelaySec
	}
	if patch.DefaultTickLabel != "" {
		c.DefaultTickLabel = patch.DefaultTickLabel
	}
	c.EventDice = patch.EventDice
}

// Load reads the environment (already populated by godotenv.Load, see
// cmd/worldlined/main.go) into a validated Config. It aggregates every
// validation failure via errors.Join rather than failing on the first one,
// so an operator sees every missing/invalid key in one startup error.
func Load() (*Config, error) {
	var errs []error

	cfg := &Config{
		AppEnv:      getEnvOrDefault("APP_ENV", "development"),
		AppHost:     getEnvOrDefault("APP_HOST", "0.0.0.0"),
		DBURL:       getEnvOrDefault("DB_URL", "./worldline.db"),
		AppSecretKey: os.Getenv("APP_SECRET_KEY"),

		DefaultTickLabel: getEnvOrDefault("DEFAULT_TICK_LABEL", "1 month"),

		ProviderDefaults: ProviderDefaults{
			OpenAIBaseURL:   getEnvOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			DeepSeekBaseURL: getEnvOrDefault("DEEPSEEK_BASE_URL", "https://api.deepseek.com/v1"),
			OllamaBaseURL:   getEnvOrDefault("OLLAMA_BASE_URL", "http://localhost:11434"),
			GeminiBaseURL:   getEnvOrDefault("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
		},

		MemoryMode:    MemoryMode(getEnvOrDefault("MEMORY_MODE", string(MemoryOff))),
		EmbedProvider: os.Getenv("EMBED_PROVIDER"),
	}

	if cfg.AppSecretKey == "" {
		errs = append(errs, errors.New("APP_SECRET_KEY is required and must be non-empty"))
	}

	port, err := strconv.Atoi(getEnvOrDefault("APP_PORT", "8090"))
	if err != nil {
		errs = append(errs, NewValidationError("config", "APP_PORT", "", err))
	}
	cfg.AppPort = port

	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		cfg.CORSOrigins = strings.Split(origins, ",")
	}

	delay, err := strconv.Atoi(getEnvOrDefault("DEFAULT_POST_GEN_DELAY_SEC", "5"))
	if err != nil {
		errs = append(errs, NewValidationError("config", "DEFAULT_POST_GEN_DELAY_SEC", "", err))
	} else if delay < 0 {
		errs = append(errs, NewValidationError("config", "DEFAULT_POST_GEN_DELAY_SEC", "", fmt.Errorf("must be >= 0, got %d", delay)))
	}
	cfg.DefaultPostGenDelaySec = delay

	if !cfg.MemoryMode.IsValid() {
		errs = append(errs, NewValidationError("config", "MEMORY_MODE", "", fmt.Errorf("unrecognized value %q", cfg.MemoryMode)))
	}

	if dim := os.Getenv("EMBED_DIM"); dim != "" {
		d, err := strconv.Atoi(dim)
		if err != nil {
			errs = append(errs, NewValidationError("config", "EMBED_DIM", "", err))
		}
		cfg.EmbedDim = d
	}

	cfg.EventDice = loadEventDice(&errs)

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

func loadEventDice(errs *[]error) EventDiceConfig {
	dice := EventDiceConfig{
		Enabled:    getEnvBool("EVENT_DICE_ENABLED", true),
		GoodProb:   getEnvFloat("EVENT_DICE_GOOD_PROB", 0.5, errs),
		BadProb:    getEnvFloat("EVENT_DICE_BAD_PROB", 0.3, errs),
		RebelProb:  getEnvFloat("EVENT_DICE_REBEL_PROB", 0.2, errs),
		MinEvents:  getEnvInt("EVENT_DICE_MIN_EVENTS", 0, errs),
		MaxEvents:  getEnvInt("EVENT_DICE_MAX_EVENTS", 3, errs),
		Hemisphere: getEnvOrDefault("EVENT_DICE_HEMISPHERE", "northern"),
	}
	if dice.MaxEvents < dice.MinEvents {
		*errs = append(*errs, NewValidationError("config", "EVENT_DICE_MAX_EVENTS", "", fmt.Errorf("must be >= EVENT_DICE_MIN_EVENTS (%d), got %d", dice.MinEvents, dice.MaxEvents)))
	}
	return dice
}

func getEnvOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvInt(key string, defaultVal int, errs *[]error) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, NewValidationError("config", key, "", err))
		return defaultVal
	}
	return n
}

func getEnvFloat(key string, defaultVal float64, errs *[]error) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*errs = append(*errs, NewValidationError("config", key, "", err))
		return defaultVal
	}
	return f
}
