package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestFileLogger_CreatesDirectoryAndWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "app.log")

	f, logger, err := FileLogger(logrus.InfoLevel, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	logger.WithField("scope", "client-1").Info("scope selected")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"scope":"client-1"`)
	require.Contains(t, string(data), "scope selected")
}

func TestNop_DiscardsBelowPanic(t *testing.T) {
	entry := Nop()
	require.Equal(t, logrus.PanicLevel, entry.Logger.GetLevel())
	entry.Error("ignored")
}
