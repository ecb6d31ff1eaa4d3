package logger

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNew_WritesMessages(t *testing.T) {
	log := New(Config{Level: "info", Pretty: false})

	var buf bytes.Buffer
	log = log.Output(&buf)
	log.Info().Msg("test message")

	assert.Contains(t, buf.String(), "test message")
}

func TestNew_LevelParsing(t *testing.T) {
	testCases := []struct {
		level         string
		expectedLevel zerolog.Level
		name          string
	}{
		{"debug", zerolog.DebugLevel, "debug"},
		{"info", zerolog.InfoLevel, "info"},
		{"warn", zerolog.WarnLevel, "warn"},
		{"error", zerolog.ErrorLevel, "error"},
		{"bogus", zerolog.InfoLevel, "unknown defaults to info"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			New(Config{Level: tc.level})
			assert.Equal(t, tc.expectedLevel, zerolog.GlobalLevel())
		})
	}
}

func TestNew_BelowLevelSuppressed(t *testing.T) {
	log := New(Config{Level: "warn", Pretty: false})

	var buf bytes.Buffer
	log = log.Output(&buf)
	log.Info().Msg("should not appear")
	log.Warn().Msg("should appear")

	assert.NotContains(t, buf.String(), "should not appear")
	assert.Contains(t, buf.String(), "should appear")
}
