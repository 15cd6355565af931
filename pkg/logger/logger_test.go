package logger_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/inventario-conteo/pkg/logger"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, logger.ParseLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, logger.ParseLevel("warn"))
	assert.Equal(t, zerolog.InfoLevel, logger.ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, logger.ParseLevel("ruidoso"))
}

func TestComponent_AgregaCampoYRespetaNivel(t *testing.T) {
	var buf bytes.Buffer
	l := logger.New(logger.Config{Env: "production", Level: "warn", Out: &buf})

	l.Component("sync").Info().Msg("no sale")
	l.Component("sync").Warn().Int("pendientes", 3).Msg("envío fallido")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "sync", line["component"])
	assert.Equal(t, "envío fallido", line["message"])
	assert.EqualValues(t, 3, line["pendientes"])
}

func TestNop_LoggerNilUsaNop(t *testing.T) {
	var l *logger.Logger
	assert.NotPanics(t, func() { l.Component("x").Error().Msg("descartado") })
}
