package logging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	apperrors "github.com/turtacn/fragrance-etl/pkg/errors"
)

func newObservedLogger(level zapcore.Level) (Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return NewLoggerFromCore(core), logs
}

func TestNewLogger_Formats(t *testing.T) {
	for _, format := range []string{"json", "console", ""} {
		l, err := NewLogger(LogConfig{Level: "debug", Format: format, OutputPaths: []string{"stdout"}})
		require.NoError(t, err, format)
		assert.NotNil(t, l)
	}
}

func TestNewLogger_BadOutputPath(t *testing.T) {
	_, err := NewLogger(LogConfig{OutputPaths: []string{"/nonexistent-dir/sub/log.txt"}})
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, lvl)

	lvl, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, lvl)

	lvl, err = ParseLevel("loud")
	assert.Error(t, err)
	assert.Equal(t, zapcore.InfoLevel, lvl)
}

func TestZapLogger_LevelsAndFields(t *testing.T) {
	l, logs := newObservedLogger(zapcore.DebugLevel)

	l.Debug("d", Int("n", 1))
	l.Info("i", Strings("notes", []string{"rose", "musk"}))
	l.Warn("w", Float64("threshold", 10))
	l.Error("e", Bool("fatal", false))

	entries := logs.All()
	require.Len(t, entries, 4)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, int64(1), entries[0].ContextMap()["n"])
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, 10.0, entries[2].ContextMap()["threshold"])
}

func TestZapLogger_WithContext_AddsRunID(t *testing.T) {
	l, logs := newObservedLogger(zapcore.InfoLevel)

	ctx := WithRunID(context.Background(), "run-42")
	l.WithContext(ctx).Info("started")
	l.WithContext(context.Background()).Info("plain")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "run-42", entries[0].ContextMap()[FieldRunID])
	_, ok := entries[1].ContextMap()[FieldRunID]
	assert.False(t, ok)
}

func TestZapLogger_WithError(t *testing.T) {
	l, logs := newObservedLogger(zapcore.InfoLevel)

	l.WithError(apperrors.New(apperrors.ErrCodeUpsertFailed, "batch")).Error("sync")
	l.WithError(errors.New("plain")).Error("other")
	l.WithError(nil).Info("none")

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, "LOAD_004", entries[0].ContextMap()[FieldErrorCode])
	assert.Equal(t, "plain", entries[1].ContextMap()["error"])
	_, hasCode := entries[1].ContextMap()[FieldErrorCode]
	assert.False(t, hasCode)
	assert.Empty(t, entries[2].Context)
}

func TestNopLogger(t *testing.T) {
	l := NewNopLogger()
	l.Debug("x")
	l.Info("x")
	l.Warn("x")
	l.Error("x")
	assert.Equal(t, l, l.With(String("k", "v")))
	assert.Equal(t, l, l.Named("n"))
	assert.Equal(t, l, l.WithError(errors.New("e")))
	assert.NoError(t, l.Sync())
}

func TestSetDefault(t *testing.T) {
	orig := Default()
	defer SetDefault(orig)

	l, _ := newObservedLogger(zapcore.InfoLevel)
	SetDefault(l)
	assert.Equal(t, l, Default())

	SetDefault(nil)
	assert.Equal(t, l, Default())
}

func TestLogStageDuration(t *testing.T) {
	l, logs := newObservedLogger(zapcore.InfoLevel)

	LogStageDuration(l, "dedup", time.Now(), time.Hour)
	LogStageDuration(l, "score", time.Now().Add(-2*time.Second), time.Second)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "stage completed", entries[0].Message)
	assert.Equal(t, "dedup", entries[0].ContextMap()[FieldStage])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
}

func TestSetLevel(t *testing.T) {
	l, err := NewLogger(LogConfig{Level: "info", OutputPaths: []string{"stdout"}})
	require.NoError(t, err)
	child := l.Named("worker").With(String("k", "v"))

	ok, err := SetLevel(l, "debug")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, child.(*zapLogger).z.Core().Enabled(zapcore.DebugLevel))

	_, err = SetLevel(l, "loud")
	assert.Error(t, err)

	ok, err = SetLevel(NewNopLogger(), "debug")
	require.NoError(t, err)
	assert.False(t, ok)
}
