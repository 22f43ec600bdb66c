package logger

import (
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitParsesLevelAndFormat(t *testing.T) {
	l := Init(Config{Level: "debug", Format: "text", Output: "stdout"})
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())
	_, ok := l.Formatter.(*logrus.TextFormatter)
	assert.True(t, ok)

	l = Init(Config{Level: "nonsense"})
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())
	_, ok = l.Formatter.(*logrus.JSONFormatter)
	assert.True(t, ok)
}

func TestNewTagsService(t *testing.T) {
	Init(DefaultConfig())
	entry := New("kds-display")
	require.NotNil(t, entry)
	assert.Equal(t, "kds-display", entry.Data["service"])
}

func TestFileOutputWritesThroughRotation(t *testing.T) {
	file := filepath.Join(t.TempDir(), "kds.log")
	l := Init(Config{Level: "info", Output: "file", File: file, MaxSizeMB: 1})
	l.Info("hello")
	assert.FileExists(t, file)
}
