package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"learnquest_backend/internal/app"
	"learnquest_backend/internal/config"
	"learnquest_backend/pkg/database"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func startService(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:cli_%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.AutoMigrate(db))

	progression := config.DefaultProgression()
	// 终端输入瞬间完成，关闭时长校验
	progression.MinSecondsPerQuestion = 0
	cfg := &config.Config{
		Server:      config.ServerConfig{Port: "0", Mode: gin.TestMode},
		JWT:         config.JWTConfig{Secret: "cli-test-secret", ExpireTime: time.Hour},
		Progression: progression,
	}
	srv := httptest.NewServer(app.Build(cfg, db, nil).Router)
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, serverURL string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "progressctl.yaml")
	content := fmt.Sprintf("server: %s\nstate: %s\nretry_delay: 0s\ntimezone: UTC\n",
		serverURL, filepath.Join(dir, "state.db"))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func run(t *testing.T, cfgPath, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func writeQuiz(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "quiz.json")
	quiz := `{"testId":"fractions-1","questions":[
		{"id":"q1","prompt":"1/2 + 1/2","options":["1","2"],"correct":0},
		{"id":"q2","prompt":"1/4 * 4","options":["1","4"],"correct":0}
	]}`
	require.NoError(t, os.WriteFile(path, []byte(quiz), 0o600))
	return path
}

func TestFullClientFlow(t *testing.T) {
	srv := startService(t)
	cfgPath := writeConfig(t, srv.URL)

	out, err := run(t, cfgPath, "", "register", "--name", "ada", "--email", "ada@example.com", "--password", "secret123")
	require.NoError(t, err, out)

	out, err = run(t, cfgPath, "", "login", "--email", "ada@example.com", "--password", "secret123")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Logged in as")

	saved, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Contains(t, string(saved), "token:")

	for _, lesson := range []string{"l-1", "l-2"} {
		out, err = run(t, cfgPath, "", "lesson", lesson)
		require.NoError(t, err, out)
	}

	out, err = run(t, cfgPath, "", "claim", "daily", "lesson")
	require.NoError(t, err, out)
	assert.Contains(t, out, "+20 XP")

	out, err = run(t, cfgPath, "", "claim", "daily", "lesson")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Already claimed")

	out, err = run(t, cfgPath, "1\n2\n", "play", "--quiz", writeQuiz(t))
	require.NoError(t, err, out)
	assert.Contains(t, out, "1/2 correct")
	assert.Contains(t, out, "+10 XP")

	out, err = run(t, cfgPath, "", "status", "--format", "json")
	require.NoError(t, err, out)
	var status struct {
		State struct {
			TotalXP       int64 `json:"totalXP"`
			CurrentEnergy int   `json:"currentEnergy"`
		} `json:"state"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Equal(t, int64(60), status.State.TotalXP)

	out, err = run(t, cfgPath, "", "leaderboard")
	require.NoError(t, err, out)
	assert.Contains(t, out, "ada")

	out, err = run(t, cfgPath, "", "logout")
	require.NoError(t, err, out)
	_, err = run(t, cfgPath, "", "claim", "weekly")
	assert.ErrorContains(t, err, "not logged in")
}

func TestAnonymousProgressStaysLocal(t *testing.T) {
	srv := startService(t)
	cfgPath := writeConfig(t, srv.URL)

	out, err := run(t, cfgPath, "", "lesson", "l-1")
	require.NoError(t, err, out)
	assert.Contains(t, out, "+15 XP")

	out, err = run(t, cfgPath, "", "status")
	require.NoError(t, err, out)
	assert.Contains(t, out, "anonymous")
	assert.Contains(t, out, "lessons 1/2")

	_, err = run(t, cfgPath, "", "claim", "daily", "lesson")
	assert.Error(t, err)
}

func TestRejectsUnknownFormat(t *testing.T) {
	_, err := run(t, filepath.Join(t.TempDir(), "none.yaml"), "", "status", "--format", "xml")
	assert.ErrorContains(t, err, "invalid format")
}
