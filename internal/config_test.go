package internal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// unset clears keys for the duration of the test.
func unset(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	req := require.New(t)
	unset(t, "DAILY_LIMIT", "PERPLEXITY_MODEL", "GEMINI_MODEL", "REPLY_TIMEOUT", "REPLY_DELAY", "HISTORY_PERSIST")

	config, err := LoadConfig()

	req.NoError(err)
	req.Equal(3, config.DailyLimit)
	req.Equal("sonar-pro", config.PerplexityModel)
	req.Equal("gemini-2.5-flash", config.GeminiModel)
	req.Equal(20*time.Second, config.ReplyTimeout)
	req.Equal(600*time.Millisecond, config.ReplyDelay)
	req.False(config.HistoryPersist)
}

func TestLoadConfig_EnvironmentOverridesFile(t *testing.T) {
	req := require.New(t)
	// Given a .env file and one variable already exported
	file := filepath.Join(t.TempDir(), ".env")
	req.NoError(os.WriteFile(file, []byte("DAILY_LIMIT=5\nRELAY_ADDR=localhost:9090\n"), 0o600))
	t.Setenv("DAILY_LIMIT", "7")
	unset(t, "RELAY_ADDR")

	// When loading
	config, err := LoadConfig(file)

	// Then the exported value wins and the file fills the rest
	req.NoError(err)
	req.Equal(7, config.DailyLimit)
	req.Equal("localhost:9090", config.RelayAddr)
}

func TestLoadConfig_MissingFileIsIgnored(t *testing.T) {
	req := require.New(t)

	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.env"))

	req.NoError(err)
}

func TestLoadConfig_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "Zero daily limit", key: "DAILY_LIMIT", value: "0"},
		{name: "Unknown log level", key: "LOG_LEVEL", value: "LOUD"},
		{name: "Two replacement characters", key: "CHARACTER_REPLACEMENT", value: "**"},
		{name: "Negative reply delay", key: "REPLY_DELAY", value: "-1s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			t.Setenv(tt.key, tt.value)

			_, err := LoadConfig()

			req.Error(err)
		})
	}
}

func TestCharacterRune(t *testing.T) {
	req := require.New(t)

	r, err := CharacterRune("#")
	req.NoError(err)
	req.Equal('#', r)

	_, err = CharacterRune("")
	req.Error(err)
}
