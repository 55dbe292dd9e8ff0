package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromFallsBackToSingleton(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	restore := Replace(zap.New(core))
	defer restore()

	From(context.Background()).Info("hello", Provider("tcp"))
	require.Equal(t, 1, logs.Len())
	require.Equal(t, "tcp", logs.All()[0].ContextMap()["provider"])
}

func TestFromUsesScopedLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ctx := ToContext(context.Background(), zap.New(core).With(RequestID("r-1")))

	From(ctx).Info("scoped")
	require.Equal(t, "r-1", logs.All()[0].ContextMap()["request_id"])
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, zapcore.DebugLevel, parseLevel("DEBUG"))
	require.Equal(t, zapcore.WarnLevel, parseLevel(" warning "))
	require.Equal(t, zapcore.InfoLevel, parseLevel("nope"))
}
