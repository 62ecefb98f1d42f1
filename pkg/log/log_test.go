package log

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	t.Run("JSONFormat", func(t *testing.T) {
		err := Init(Config{Level: "debug", Format: "json"})
		require.NoError(t, err)

		var buf bytes.Buffer
		GetLogger().SetOutput(&buf)

		WithFields(logrus.Fields{
			"platform":   "mercari",
			"listing_id": "lst-001",
		}).Info("listing created")

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "listing created", entry["msg"])
		assert.Equal(t, "mercari", entry["platform"])
		assert.Equal(t, "lst-001", entry["listing_id"])
	})

	t.Run("InvalidLevelFallsBackToInfo", func(t *testing.T) {
		err := Init(Config{Level: "nonsense", Format: "text"})
		require.NoError(t, err)
		assert.Equal(t, logrus.InfoLevel, GetLogger().GetLevel())
	})

	t.Run("FileOutput", func(t *testing.T) {
		dir := t.TempDir()
		err := Init(Config{
			Level:    "info",
			Format:   "json",
			Output:   "file",
			Filename: filepath.Join(dir, "logs", "crosslister.log"),
			MaxSize:  1,
		})
		require.NoError(t, err)
		assert.DirExists(t, filepath.Join(dir, "logs"))
	})
}

func TestGetLoggerLazy(t *testing.T) {
	logger = nil
	assert.NotNil(t, GetLogger())
}
