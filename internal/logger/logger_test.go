package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"settlement/internal/config"
)

func TestNewWritesToRotatedFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "logs", "app.log")

	log, err := New(config.LogConfig{Level: "debug", Format: "json", File: file, MaxSizeMB: 1})
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())

	log.WithField("order_id", "o-1").Info("order paid")

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"order_id":"o-1"`)
}

func TestNewFallsBackToInfo(t *testing.T) {
	log, err := New(config.LogConfig{Level: "loud", Format: "text"})
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
}
