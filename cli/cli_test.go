package cli

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/auth"
	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/config"
)

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(dir, "bot.db"))
	t.Setenv("GIN_MODE", "test")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("JWT_ACCESS_SECRET", "cli-secret")
	t.Setenv("ADMIN_USER_IDS", "")
	return filepath.Join(dir, "missing.env")
}

func run(t *testing.T, envFile string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--env-file", envFile}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestAdminAddListRemove(t *testing.T) {
	envFile := setupEnv(t)

	out, err := run(t, envFile, "admin", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Нет администраторов")

	out, err = run(t, envFile, "admin", "add", "42")
	require.NoError(t, err)
	assert.Contains(t, out, "ещё не зарегистрировался")

	out, err = run(t, envFile, "admin", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "ID: 42")

	out, err = run(t, envFile, "admin", "remove", "42")
	require.NoError(t, err)
	assert.Contains(t, out, "убран статус администратора")

	out, err = run(t, envFile, "admin", "remove", "7")
	require.NoError(t, err)
	assert.Contains(t, out, "не найден")
}

func TestAdminAddRejectsBadID(t *testing.T) {
	envFile := setupEnv(t)

	_, err := run(t, envFile, "admin", "add", "abc")
	assert.Error(t, err)
	_, err = run(t, envFile, "admin", "add", "-5")
	assert.Error(t, err)
}

func TestAdminTokenOnlyForAdmins(t *testing.T) {
	envFile := setupEnv(t)

	_, err := run(t, envFile, "admin", "token", "42")
	assert.Error(t, err)

	_, err = run(t, envFile, "admin", "add", "42")
	require.NoError(t, err)

	out, err := run(t, envFile, "admin", "token", "42")
	require.NoError(t, err)

	claims, err := auth.ValidateAccessToken(config.Load(), strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
}

func TestParseUserID(t *testing.T) {
	id, err := parseUserID("123")
	require.NoError(t, err)
	assert.Equal(t, int64(123), id)

	_, err = parseUserID("0")
	assert.Error(t, err)
}
