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

func TestNewWithConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{name: "defaults", config: &Config{}},
		{name: "console development", config: &Config{Level: "debug", Format: "console", Development: true}},
		{name: "json warn", config: &Config{Level: "warn", Format: "json"}},
		{name: "nil config", config: nil, wantErr: true},
		{name: "invalid level", config: &Config{Level: "verbose"}, wantErr: true},
		{name: "invalid format", config: &Config{Format: "xml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewWithConfig(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, logger)
		})
	}
}

func TestNewWithConfig_DoesNotMutateConfig(t *testing.T) {
	cfg := &Config{}
	_, err := NewWithConfig(cfg)
	require.NoError(t, err)
	assert.Empty(t, cfg.Level)
	assert.Empty(t, cfg.OutputPaths)
}

func TestContextRoundTrip(t *testing.T) {
	core, _ := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	ctx := WithLogger(context.Background(), logger)
	assert.Same(t, logger, FromContext(ctx))

	assert.NotNil(t, FromContext(context.Background()))
	//nolint:staticcheck // nil context is handled explicitly
	assert.NotNil(t, FromContext(nil))
}

func TestFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := WithComponent(zap.New(core), "orchestrator")

	logger.Info("refresh", Wallet("0xabc"), BlockRange(10, 20))

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "orchestrator", fields["component"])
	assert.Equal(t, "0xabc", fields["wallet"])
	assert.Equal(t, map[string]interface{}{"from": uint64(10), "to": uint64(20)}, fields["blocks"])
}
