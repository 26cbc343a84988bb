package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"opinionbot/internal/domain"
	"opinionbot/internal/reference"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const defaultExternalHTTPTimeout = 90 * time.Second
const defaultExternalHTTPTimeoutSeconds = int(defaultExternalHTTPTimeout / time.Second)

var defaultGenres = []string{"Politics", "Economy", "Gender", "Other"}

type Config struct {
	SlackBotToken string `yaml:"slack_bot_token"`
	SlackAppToken string `yaml:"slack_app_token"`

	LLMProvider     string  `yaml:"llm_provider"`
	LLMModel        string  `yaml:"llm_model"`
	LLMTemperature  float64 `yaml:"llm_temperature"`
	LLMMaxTokens    int     `yaml:"llm_max_tokens"`
	AnthropicAPIKey string  `yaml:"anthropic_api_key"`
	OpenAIAPIKey    string  `yaml:"openai_api_key"`
	OpenAIBaseURL   string  `yaml:"openai_base_url"`
	GeminiAPIKey    string  `yaml:"gemini_api_key"`

	MaxInputLength   int      `yaml:"max_input_length"`
	CommentLength    int      `yaml:"comment_length"`
	ResponseLanguage string   `yaml:"response_language"`
	NegativePole     string   `yaml:"negative_pole"`
	PositivePole     string   `yaml:"positive_pole"`
	Genres           []string `yaml:"genres"`

	ReferencePointsPath string `yaml:"reference_points_path"`

	TrendBiasThreshold float64 `yaml:"trend_bias_threshold"`
	TrendMildBelow     float64 `yaml:"trend_mild_below"`
	TrendStrongAbove   float64 `yaml:"trend_strong_above"`

	DBPath               string `yaml:"db_path"`
	MaxSessions          int    `yaml:"max_sessions"`
	SessionTTLMinutes    int    `yaml:"session_ttl_minutes"`
	SessionSweepSchedule string `yaml:"session_sweep_schedule"`

	ExportDelimiter string `yaml:"export_delimiter"`
	ExportUTF8BOM   bool   `yaml:"export_utf8_bom"`

	ExternalHTTPTimeoutSeconds int    `yaml:"external_http_timeout_seconds"`
	Timezone                   string `yaml:"timezone"`

	Location        *time.Location          `yaml:"-"` // computed from Timezone
	ReferencePoints []domain.ReferencePoint `yaml:"-"` // loaded from ReferencePointsPath or built in
}

func LoadConfig() Config {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	// Zero is a meaningful value for these, so their defaults are set before
	// the YAML and env layers instead of filling zeros afterwards.
	cfg := Config{
		LLMTemperature:     0.3,
		TrendBiasThreshold: 0.2,
		TrendMildBelow:     0.4,
		TrendStrongAbove:   0.7,
	}

	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatalf("Error parsing %s: %v", configPath, err)
		}
		log.Printf("Loaded config from %s", configPath)
	}

	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.SlackAppToken, "SLACK_APP_TOKEN")
	envOverride(&cfg.LLMProvider, "LLM_PROVIDER")
	envOverride(&cfg.LLMModel, "LLM_MODEL")
	envOverrideFloat(&cfg.LLMTemperature, "LLM_TEMPERATURE")
	envOverrideInt(&cfg.LLMMaxTokens, "LLM_MAX_TOKENS")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	envOverride(&cfg.OpenAIBaseURL, "OPENAI_BASE_URL")
	envOverride(&cfg.GeminiAPIKey, "GEMINI_API_KEY")
	envOverrideInt(&cfg.MaxInputLength, "MAX_INPUT_LENGTH")
	envOverrideInt(&cfg.CommentLength, "COMMENT_LENGTH")
	envOverrideAllowEmpty(&cfg.ResponseLanguage, "RESPONSE_LANGUAGE")
	envOverride(&cfg.NegativePole, "NEGATIVE_POLE")
	envOverride(&cfg.PositivePole, "POSITIVE_POLE")
	envOverride(&cfg.ReferencePointsPath, "REFERENCE_POINTS_PATH")
	envOverrideFloat(&cfg.TrendBiasThreshold, "TREND_BIAS_THRESHOLD")
	envOverrideFloat(&cfg.TrendMildBelow, "TREND_MILD_BELOW")
	envOverrideFloat(&cfg.TrendStrongAbove, "TREND_STRONG_ABOVE")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverrideInt(&cfg.MaxSessions, "MAX_SESSIONS")
	envOverrideInt(&cfg.SessionTTLMinutes, "SESSION_TTL_MINUTES")
	envOverride(&cfg.SessionSweepSchedule, "SESSION_SWEEP_SCHEDULE")
	envOverride(&cfg.ExportDelimiter, "EXPORT_DELIMITER")
	envOverrideBool(&cfg.ExportUTF8BOM, "EXPORT_UTF8_BOM")
	envOverrideInt(&cfg.ExternalHTTPTimeoutSeconds, "EXTERNAL_HTTP_TIMEOUT_SECONDS")
	envOverride(&cfg.Timezone, "TIMEZONE")

	if genres := os.Getenv("GENRES"); genres != "" {
		cfg.Genres = nil
		for _, g := range strings.Split(genres, ",") {
			g = strings.TrimSpace(g)
			if g != "" {
				cfg.Genres = append(cfg.Genres, g)
			}
		}
	}

	if cfg.LLMProvider == "" {
		cfg.LLMProvider = "anthropic"
	}
	if cfg.LLMMaxTokens == 0 {
		cfg.LLMMaxTokens = 1024
	}
	if cfg.MaxInputLength == 0 {
		cfg.MaxInputLength = 200
	}
	if cfg.CommentLength == 0 {
		cfg.CommentLength = 200
	}
	if cfg.NegativePole == "" {
		cfg.NegativePole = "conservative"
	}
	if cfg.PositivePole == "" {
		cfg.PositivePole = "liberal"
	}
	if len(cfg.Genres) == 0 {
		cfg.Genres = append([]string(nil), defaultGenres...)
	}
	if cfg.DBPath == "" {
		cfg.DBPath = ":memory:"
	}
	if cfg.MaxSessions == 0 {
		cfg.MaxSessions = 1000
	}
	if cfg.SessionTTLMinutes == 0 {
		cfg.SessionTTLMinutes = 120
	}
	if cfg.SessionSweepSchedule == "" {
		cfg.SessionSweepSchedule = "*/15 * * * *"
	}
	if cfg.ExportDelimiter == "" {
		cfg.ExportDelimiter = ","
	}
	if cfg.ExternalHTTPTimeoutSeconds == 0 {
		cfg.ExternalHTTPTimeoutSeconds = defaultExternalHTTPTimeoutSeconds
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Local"
	}

	required := map[string]string{
		"slack_bot_token": cfg.SlackBotToken,
		"slack_app_token": cfg.SlackAppToken,
	}
	for name, val := range required {
		if val == "" {
			log.Fatalf("Required config '%s' is not set (via config.yaml or env var)", name)
		}
	}

	switch cfg.LLMProvider {
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			log.Fatalf("anthropic_api_key is required when llm_provider=anthropic")
		}
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			log.Fatalf("openai_api_key is required when llm_provider=openai")
		}
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			log.Fatalf("gemini_api_key is required when llm_provider=gemini")
		}
	default:
		log.Fatalf("llm_provider must be 'anthropic', 'openai' or 'gemini', got '%s'", cfg.LLMProvider)
	}

	if strings.EqualFold(cfg.Timezone, "Local") {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			log.Fatalf("invalid timezone '%s': %v", cfg.Timezone, err)
		}
		cfg.Location = loc
	}

	if cfg.LLMTemperature < 0 || cfg.LLMTemperature > 2 {
		log.Fatalf("invalid llm_temperature '%f': must be between 0 and 2", cfg.LLMTemperature)
	}
	if cfg.LLMMaxTokens < 64 {
		log.Fatalf("invalid llm_max_tokens '%d': must be >= 64", cfg.LLMMaxTokens)
	}
	if cfg.MaxInputLength < 1 {
		log.Fatalf("invalid max_input_length '%d': must be >= 1", cfg.MaxInputLength)
	}
	if cfg.CommentLength < 1 {
		log.Fatalf("invalid comment_length '%d': must be >= 1", cfg.CommentLength)
	}
	if cfg.TrendBiasThreshold < 0 || cfg.TrendBiasThreshold > 1 {
		log.Fatalf("invalid trend_bias_threshold '%f': must be between 0 and 1", cfg.TrendBiasThreshold)
	}
	if cfg.TrendMildBelow < 0 || cfg.TrendStrongAbove > 1 || cfg.TrendMildBelow > cfg.TrendStrongAbove {
		log.Fatalf("invalid trend strength thresholds mild_below=%f strong_above=%f", cfg.TrendMildBelow, cfg.TrendStrongAbove)
	}
	if cfg.MaxSessions < 1 {
		log.Fatalf("invalid max_sessions '%d': must be >= 1", cfg.MaxSessions)
	}
	if cfg.SessionTTLMinutes < 1 {
		log.Fatalf("invalid session_ttl_minutes '%d': must be >= 1", cfg.SessionTTLMinutes)
	}
	if _, err := cron.ParseStandard(cfg.SessionSweepSchedule); err != nil {
		log.Fatalf("invalid session_sweep_schedule '%s': %v", cfg.SessionSweepSchedule, err)
	}
	if utf8.RuneCountInString(cfg.ExportDelimiter) != 1 {
		log.Fatalf("invalid export_delimiter '%s': must be a single character", cfg.ExportDelimiter)
	}
	if cfg.ExternalHTTPTimeoutSeconds < 5 {
		log.Fatalf("invalid external_http_timeout_seconds '%d': must be >= 5", cfg.ExternalHTTPTimeoutSeconds)
	}

	if cfg.ReferencePointsPath != "" {
		points, err := reference.LoadPoints(cfg.ReferencePointsPath)
		if err != nil {
			log.Fatalf("invalid reference_points_path '%s': %v", cfg.ReferencePointsPath, err)
		}
		cfg.ReferencePoints = points
	} else {
		cfg.ReferencePoints = reference.DefaultPoints()
	}

	return cfg
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideAllowEmpty(field *string, envKey string) {
	if val, ok := os.LookupEnv(envKey); ok {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}

func envOverrideBool(field *bool, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = strings.EqualFold(val, "true") || val == "1"
	}
}

func envOverrideFloat(field *float64, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}

func (c Config) ExportDelimiterRune() rune {
	r, _ := utf8.DecodeRuneInString(c.ExportDelimiter)
	return r
}

func (c Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

// MatchGenre returns the configured genre equal to s, ignoring case.
func (c Config) MatchGenre(s string) (string, bool) {
	s = strings.TrimSpace(s)
	for _, g := range c.Genres {
		if strings.EqualFold(g, s) {
			return g, true
		}
	}
	return "", false
}

// DefaultGenre is the last configured genre, the catch-all slot.
func (c Config) DefaultGenre() string {
	if len(c.Genres) == 0 {
		return ""
	}
	return c.Genres[len(c.Genres)-1]
}
