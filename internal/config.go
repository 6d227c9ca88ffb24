package internal

import (
	"fmt"
	"os"
	"time"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	LogLevel           string        `env:"LOG_LEVEL,default=INFO" validate:"oneof=DEBUG INFO WARN ERROR"`
	BadgerFilepath     string        `env:"BADGER_FILEPATH,default=./data/badger" validate:"required"`
	DailyLimit         int           `env:"DAILY_LIMIT,default=3" validate:"gte=1"`
	RelayAddr          string        `env:"RELAY_ADDR"`
	PerplexityAPIKey   string        `env:"PERPLEXITY_API_KEY"`
	PerplexityEndpoint string        `env:"PERPLEXITY_ENDPOINT,default=https://api.perplexity.ai/chat/completions" validate:"url"`
	PerplexityModel    string        `env:"PERPLEXITY_MODEL,default=sonar-pro"`
	GeminiAPIKey       string        `env:"GEMINI_API_KEY"`
	GeminiModel        string        `env:"GEMINI_MODEL,default=gemini-2.5-flash"`
	AIRatePerSecond    float64       `env:"AI_RATE_PER_SECOND,default=1" validate:"gt=0"`
	ReplyTimeout       time.Duration `env:"REPLY_TIMEOUT,default=20s" validate:"gt=0"`
	ReplyDelay         time.Duration `env:"REPLY_DELAY,default=600ms" validate:"gte=0"`
	ReplyWorkers       int           `env:"REPLY_WORKERS,default=2" validate:"gte=1"`
	ReplyQueueSize     int           `env:"REPLY_QUEUE_SIZE,default=32" validate:"gte=1"`
	HistoryPersist     bool          `env:"HISTORY_PERSIST,default=false"`
	ChannelsFile       string        `env:"CHANNELS_FILE"`
	CharReplacement    string        `env:"CHARACTER_REPLACEMENT,default=*"`
	IdentityLookupURL  string        `env:"IDENTITY_LOOKUP_URL,default=https://api.ipify.org?format=json" validate:"url"`
	IdentityTimeout    time.Duration `env:"IDENTITY_TIMEOUT,default=5s" validate:"gt=0"`
}

// LoadConfig reads an optional .env file then the environment.
// Variables already set in the environment win over the file.
func LoadConfig(files ...string) (Config, error) {
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("loading %s: %w", file, err)
		}
	}
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if err := validator.New().Struct(config); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	if _, err := CharacterRune(config.CharReplacement); err != nil {
		return Config{}, err
	}
	return config, nil
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
