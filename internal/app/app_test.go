package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"asset-synth-studio/internal/config"
	"asset-synth-studio/internal/descriptor"
	"asset-synth-studio/internal/gemini"
	"asset-synth-studio/internal/genaisdk"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewServiceSelectsBackend(t *testing.T) {
	ctx := context.Background()
	cfg := config.Config{GeminiAPIKey: "key", GeminiBackend: config.BackendREST}

	svc, err := NewService(ctx, cfg, http.DefaultClient, descriptor.Default(), testLogger())
	require.NoError(t, err)
	assert.IsType(t, &gemini.Client{}, svc)

	cfg.GeminiBackend = config.BackendGenAI
	svc, err = NewService(ctx, cfg, http.DefaultClient, descriptor.Default(), testLogger())
	require.NoError(t, err)
	assert.IsType(t, &genaisdk.Client{}, svc)
}

func TestNewWithRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Config{
		GeminiAPIKey:  "key",
		GeminiBackend: config.BackendREST,
		RedisAddr:     mr.Addr(),
		RedisPrefix:   "t:",
	}

	a, err := New(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	defer a.Close()

	st, err := a.Studio.Create(context.Background())
	require.NoError(t, err)
	assert.True(t, mr.Exists("t:"+st.ID))
}

func TestNewRedisUnreachable(t *testing.T) {
	cfg := config.Config{
		GeminiAPIKey:  "key",
		GeminiBackend: config.BackendREST,
		RedisAddr:     "127.0.0.1:1",
	}
	_, err := New(context.Background(), cfg, testLogger())
	assert.Error(t, err)
}
