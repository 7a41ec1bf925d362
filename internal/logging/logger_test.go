package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_LevelAndFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "gamify.log")

	logger, closer, err := New(Config{Level: "debug", JSONFormat: true, OutputFile: path})
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	logger.WithField("organization", "contoso").Info("crawl started")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"organization":"contoso"`)
	assert.Contains(t, string(data), `"msg":"crawl started"`)
}

func TestNew_DefaultsToInfo(t *testing.T) {
	logger, closer, err := New(Config{})
	require.NoError(t, err)
	defer closer.Close()

	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
}

func TestNew_RejectsUnknownLevel(t *testing.T) {
	_, _, err := New(Config{Level: "chatty"})
	assert.Error(t, err)
}

func TestComponent_NilLogger(t *testing.T) {
	entry := Component(nil, "crawler")
	require.NotNil(t, entry)
	entry.Info("dropped")
}
