package log

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T) *observer.ObservedLogs {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	t.Cleanup(restore)
	return logs
}

func TestFatal(t *testing.T) {
	logs := observe(t)
	ExitOnFatal = false
	defer func() {
		ExitOnFatal = true
	}()

	Fatal("test-string", errors.New("boom"))

	require.Equal(t, 1, logs.FilterMessage("test-string").Len())
}

func TestWarnIfErr(t *testing.T) {
	logs := observe(t)
	testDescr := "description"

	WarnIfErr(testDescr, errors.New("test-string"))
	WarnIfErr(testDescr, nil)

	entries := logs.FilterMessage(testDescr).All()
	require.Len(t, entries, 1)
	require.Equal(t, zapcore.WarnLevel, entries[0].Level)
	require.Equal(t, "test-string", entries[0].ContextMap()["error"])
}

func TestErrIfErr(t *testing.T) {
	logs := observe(t)
	testDescr := "description"

	ErrIfErr(testDescr, errors.New("test-string"))
	ErrIfErr(testDescr, nil)

	entries := logs.FilterMessage(testDescr).All()
	require.Len(t, entries, 1)
	require.Equal(t, zapcore.ErrorLevel, entries[0].Level)
}

func TestInit(t *testing.T) {
	restore := zap.ReplaceGlobals(zap.NewNop())
	defer restore()

	logger, err := Init("debug")

	require.NoError(t, err)
	require.Equal(t, logger, zap.L())
	require.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	logger, err = Init("nonsense")

	require.NoError(t, err)
	require.False(t, logger.Core().Enabled(zapcore.DebugLevel))
}
