package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	l := newLogger()

	formatter, ok := l.Formatter.(*logrus.TextFormatter)
	require.True(t, ok)
	assert.Equal(t, time.RFC3339Nano, formatter.TimestampFormat)
	assert.True(t, formatter.FullTimestamp)
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())
}

func TestGetLogger_FallsBackToGlobal(t *testing.T) {
	entry := G(context.Background())
	assert.Equal(t, L.Logger, entry.Logger)
}

func TestWithLogger(t *testing.T) {
	custom := logrus.NewEntry(logrus.New()).WithField("component", "test")
	ctx := WithLogger(context.Background(), custom)

	got := G(ctx)
	assert.Equal(t, custom.Logger, got.Logger)
	assert.Equal(t, "test", got.Data["component"])
}

func TestWithFields(t *testing.T) {
	base := logrus.NewEntry(logrus.New()).WithField("a", 1)
	ctx := WithLogger(context.Background(), base)
	ctx = WithFields(ctx, logrus.Fields{"b": 2})

	got := G(ctx)
	assert.Equal(t, 1, got.Data["a"])
	assert.Equal(t, 2, got.Data["b"])
}

func TestConfigure(t *testing.T) {
	origLevel := L.Logger.GetLevel()
	origFormatter := L.Logger.Formatter
	origOut := L.Logger.Out
	t.Cleanup(func() {
		L.Logger.SetLevel(origLevel)
		L.Logger.Formatter = origFormatter
		L.Logger.SetOutput(origOut)
	})

	t.Run("json format", func(t *testing.T) {
		var buf bytes.Buffer
		SetLogOutput(&buf)
		require.NoError(t, Configure("debug", "json"))

		G(context.Background()).WithField("path", "agents/x.md").Debug("converted")

		var payload map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &payload))
		assert.Equal(t, "converted", payload["message"])
		assert.Equal(t, "debug", payload["logLevel"])
		assert.Equal(t, "agents/x.md", payload["path"])
		assert.Contains(t, payload, "timestamp")
	})

	t.Run("empty level keeps current", func(t *testing.T) {
		require.NoError(t, Configure("warn", "text"))
		require.NoError(t, Configure("", "text"))
		assert.Equal(t, logrus.WarnLevel, L.Logger.GetLevel())
	})

	t.Run("invalid level", func(t *testing.T) {
		err := Configure("loud", "text")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})
}
