package logger

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"info", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
		{"nonsense", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestNewWritesToConfiguredOutput(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Output: &buf})
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	log.Info().Str("component", "test").Msg("hello")

	assert.Contains(t, buf.String(), `"message":"hello"`)
	assert.Contains(t, buf.String(), `"component":"test"`)
}
