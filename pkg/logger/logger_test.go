package logger

import (
	"bytes"
	"errors"
	"net/smtp"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DefaultConfig(t *testing.T) {
	logger := New(Config{Level: "info"})

	var buf bytes.Buffer
	logger = logger.Output(&buf)
	logger.Info().Msg("test message")

	assert.Contains(t, buf.String(), "test message")
}

func TestNew_AllLogLevels(t *testing.T) {
	testCases := []struct {
		level         string
		expectedLevel zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"unknown", zerolog.InfoLevel},
	}

	for _, tc := range testCases {
		t.Run(tc.level, func(t *testing.T) {
			New(Config{Level: tc.level})
			assert.Equal(t, tc.expectedLevel, zerolog.GlobalLevel())
		})
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func TestNew_FileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.log")
	logger := New(Config{Level: "info", File: &FileConfig{Path: path}})

	logger.Info().Str("adapter", "dividends").Msg("written to file")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
}

func TestErrorBuffer_CapturesErrorsOnly(t *testing.T) {
	buf := NewErrorBuffer(10)
	var out bytes.Buffer
	logger := zerolog.New(zerolog.MultiLevelWriter(&out, buf))

	logger.Info().Msg("fine")
	logger.Warn().Msg("careful")
	logger.Error().Msg("broken")

	assert.Equal(t, 1, buf.Count())
	assert.Contains(t, buf.Lines()[0], "broken")
}

func TestErrorBuffer_LimitCountsDropped(t *testing.T) {
	buf := NewErrorBuffer(2)
	logger := zerolog.New(zerolog.MultiLevelWriter(buf))

	for i := 0; i < 5; i++ {
		logger.Error().Int("i", i).Msg("boom")
	}

	assert.Equal(t, 5, buf.Count())
	assert.Len(t, buf.Lines(), 2)
}

func TestFlushErrors(t *testing.T) {
	original := sendMailFunc
	defer func() { sendMailFunc = original }()

	var sent []byte
	var recipients []string
	sendMailFunc = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		assert.Equal(t, "smtp.example.com:25", addr)
		recipients = to
		sent = msg
		return nil
	}

	cfg := MailConfig{
		Host:      "smtp.example.com",
		Port:      25,
		From:      "pipeline@example.com",
		To:        []string{"ops@example.com"},
		Threshold: 2,
	}

	buf := NewErrorBuffer(10)
	logger := zerolog.New(zerolog.MultiLevelWriter(buf))
	logger.Error().Msg("first")

	ok, err := FlushErrors(cfg, buf)
	require.NoError(t, err)
	assert.False(t, ok, "below threshold")

	logger.Error().Msg("second")
	ok, err = FlushErrors(cfg, buf)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"ops@example.com"}, recipients)
	assert.Contains(t, string(sent), "second")
	assert.Contains(t, string(sent), "Subject: trinistocks pipeline errors (2)")
}

func TestFlushErrors_SendFailure(t *testing.T) {
	original := sendMailFunc
	defer func() { sendMailFunc = original }()
	sendMailFunc = func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("relay down")
	}

	buf := NewErrorBuffer(10)
	zerolog.New(zerolog.MultiLevelWriter(buf)).Error().Msg("x")

	_, err := FlushErrors(MailConfig{Host: "h", Port: 25, From: "a@b", To: []string{"c@d"}}, buf)
	assert.Error(t, err)
}

func TestFlushErrors_Disabled(t *testing.T) {
	ok, err := FlushErrors(MailConfig{}, NewErrorBuffer(1))
	require.NoError(t, err)
	assert.False(t, ok)
}
