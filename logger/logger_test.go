package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitialize(t *testing.T) {
	tests := []struct {
		name       string
		jsonOutput bool
	}{
		{name: "JSON output mode", jsonOutput: true},
		{name: "Console output mode", jsonOutput: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := Logger
			t.Cleanup(func() { Logger = original; JSONOutput = false })

			require.NoError(t, Initialize(tt.jsonOutput))
			assert.NotNil(t, Logger)
			assert.Equal(t, tt.jsonOutput, JSONOutput)
		})
	}
}

func TestVerbosityToLevel(t *testing.T) {
	assert.Equal(t, zapcore.WarnLevel, VerbosityToLevel(0))
	assert.Equal(t, zapcore.InfoLevel, VerbosityToLevel(1))
	assert.Equal(t, zapcore.DebugLevel, VerbosityToLevel(2))
	assert.Equal(t, zapcore.DebugLevel, VerbosityToLevel(5))
}

func TestFieldsFromContext(t *testing.T) {
	t.Run("empty context has no fields", func(t *testing.T) {
		assert.Empty(t, FieldsFromContext(context.Background()))
	})

	t.Run("request and job fields", func(t *testing.T) {
		ctx := WithRequestID(context.Background(), "req-1")
		ctx = WithJobName(ctx, "kv.cleanup.pkce")

		fields := FieldsFromContext(ctx)
		assert.Equal(t, []interface{}{FieldRequestID, "req-1", FieldJobName, "kv.cleanup.pkce"}, fields)
		assert.Equal(t, "req-1", RequestIDFromContext(ctx))
	})
}

func TestLoggerFromContext(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core).Sugar()

	ctx := WithRequestID(context.Background(), "req-42")
	LoggerFromContext(ctx, base).Infow("handled")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "req-42", entries[0].ContextMap()[FieldRequestID])
}
