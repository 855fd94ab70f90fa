package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kanban/api/internal/config"
	"kanban/api/internal/session"
)

// missingEnv keeps a developer's .env out of the test.
func missingEnv(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, path := range [][]string{{"serve"}, {"migrate", "up"}, {"migrate", "down"}, {"token", "issue"}} {
		sub, _, err := cmd.Find(path)
		require.NoError(t, err, strings.Join(path, " "))
		assert.Equal(t, path[len(path)-1], sub.Name())
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	envFile := cmd.PersistentFlags().Lookup("env-file")
	require.NotNil(t, envFile)
	assert.Equal(t, ".env", envFile.DefValue)
	require.NotNil(t, cmd.PersistentFlags().Lookup("log-level"))
	require.NotNil(t, cmd.PersistentFlags().Lookup("log-format"))
}

func TestInvalidLogFlagsAreRejected(t *testing.T) {
	for _, args := range [][]string{
		{"--log-format", "xml", "migrate", "up"},
		{"--log-level", "loud", "migrate", "up"},
	} {
		cmd := NewRootCommand()
		cmd.SetArgs(append([]string{"--env-file", missingEnv(t)}, args...))
		cmd.SetOut(io.Discard)
		cmd.SetErr(io.Discard)
		err := cmd.Execute()
		require.Error(t, err, args)
		assert.Contains(t, err.Error(), "invalid log")
	}
}

func TestMigrateRefusesMemoryStore(t *testing.T) {
	t.Setenv("DATABASE_URL", "memory")
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--env-file", missingEnv(t), "migrate", "up"})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	assert.ErrorIs(t, cmd.Execute(), errMemoryMigrations)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, config.Config{LogLevel: "warn", LogFormat: "json"})
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)

	buf.Reset()
	newLogger(&buf, config.Config{LogLevel: "debug", LogFormat: "text"}).Debug("plain")
	assert.Contains(t, buf.String(), "msg=plain")
}

func TestCheckBudget(t *testing.T) {
	cfg := config.Config{
		TxTimeout:       5 * time.Second,
		RequestTimeout:  30 * time.Second,
		MoveMaxAttempts: 5,
		MoveBaseDelay:   200 * time.Millisecond,
	}
	require.NoError(t, checkBudget(cfg))

	cfg.MoveMaxAttempts = 6
	err := checkBudget(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds request timeout")

	cfg.RequestTimeout = 0
	assert.NoError(t, checkBudget(cfg))
}

func TestRetryPolicyFromConfig(t *testing.T) {
	policy := retryPolicy(config.Config{MoveMaxAttempts: 3, MoveBaseDelay: 50 * time.Millisecond})
	assert.Equal(t, 3, policy.MaxAttempts)
	assert.Equal(t, 50*time.Millisecond, policy.BaseDelay)
	assert.Equal(t, 100*time.Millisecond, policy.Delay(2))

	policy = retryPolicy(config.Config{})
	assert.Equal(t, 5, policy.MaxAttempts)
	assert.Equal(t, 200*time.Millisecond, policy.BaseDelay)
}

func TestMemoryStackServesRequests(t *testing.T) {
	cfg := config.Config{
		DatabaseURL:      config.MemoryDatabase,
		CORSOrigin:       "*",
		TrustActorHeader: true,
		TxTimeout:        time.Second,
		RequestTimeout:   30 * time.Second,
	}
	st, err := newStack(context.Background(), cfg, quietLogger(), true)
	require.NoError(t, err)
	t.Cleanup(st.Close)

	rr := httptest.NewRecorder()
	st.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/ready", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/boards", strings.NewReader(`{"title":"Roadmap","columns":["Todo"]}`))
	req.Header.Set("X-Actor-Id", "user-1")
	rr = httptest.NewRecorder()
	st.handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = httptest.NewRecorder()
	st.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}

func TestStackRejectsOverBudgetConfig(t *testing.T) {
	_, err := newStack(context.Background(), config.Config{
		DatabaseURL:     config.MemoryDatabase,
		TxTimeout:       10 * time.Second,
		RequestTimeout:  time.Second,
		MoveMaxAttempts: 2,
	}, quietLogger(), false)
	assert.Error(t, err)
}

func TestTokenIssue(t *testing.T) {
	mr := miniredis.RunT(t)
	t.Setenv("REDIS_URL", "redis://"+mr.Addr())

	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--env-file", missingEnv(t), "token", "issue", "--user-id", "user-1", "--name", "Ada", "--ttl", "1h"})
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	token := strings.TrimSpace(out.String())
	require.NotEmpty(t, token)

	sessions, err := session.NewRedisStore("redis://" + mr.Addr())
	require.NoError(t, err)
	defer sessions.Close()
	actor, err := sessions.Lookup(context.Background(), session.HashToken(token))
	require.NoError(t, err)
	assert.Equal(t, "user-1", actor.UserID)
	assert.Equal(t, "Ada", actor.DisplayName)
}

func TestTokenIssueRequiresUser(t *testing.T) {
	mr := miniredis.RunT(t)
	t.Setenv("REDIS_URL", "redis://"+mr.Addr())

	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--env-file", missingEnv(t), "token", "issue"})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	assert.Error(t, cmd.Execute())
}
