package main

import (
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/app"
)

func TestSetupLogger_Text(t *testing.T) {
	logger := log.New()
	cfg := app.DefaultConfig()
	cfg.LogLevel = "debug"

	require.NoError(t, setupLogger(logger, cfg))
	assert.Equal(t, log.DebugLevel, logger.GetLevel())
	assert.IsType(t, &log.TextFormatter{}, logger.Formatter)
}

func TestSetupLogger_JSON(t *testing.T) {
	logger := log.New()
	cfg := app.DefaultConfig()
	cfg.LogFormat = app.LogFormatJSON
	cfg.LogLevel = "warn"

	require.NoError(t, setupLogger(logger, cfg))
	assert.Equal(t, log.WarnLevel, logger.GetLevel())
	assert.IsType(t, &log.JSONFormatter{}, logger.Formatter)
}

func TestSetupLogger_InvalidLevel(t *testing.T) {
	logger := log.New()
	cfg := app.DefaultConfig()
	cfg.LogLevel = "loud"

	err := setupLogger(logger, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse log level")
}
