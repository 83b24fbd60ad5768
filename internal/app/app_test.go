package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"learnquest_backend/internal/config"
	"learnquest_backend/internal/model"
	"learnquest_backend/pkg/database"
	"learnquest_backend/pkg/ledger"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	gin.SetMode(gin.TestMode)

	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.AutoMigrate(db))

	cfg := &config.Config{
		Server:      config.ServerConfig{Port: "0", Mode: gin.TestMode},
		JWT:         config.JWTConfig{Secret: "router-test-secret", ExpireTime: time.Hour},
		Progression: config.DefaultProgression(),
	}
	return Build(cfg, db, nil)
}

func doJSON(t *testing.T, a *App, method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.Router.ServeHTTP(w, req)

	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func registerAndLogin(t *testing.T, a *App, email string) (uint, string) {
	t.Helper()
	w, _ := doJSON(t, a, http.MethodPost, "/api/register", "", gin.H{
		"name": "learner", "email": email, "password": "password123", "timezone": "UTC",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w, env := doJSON(t, a, http.MethodPost, "/api/login", "", gin.H{"email": email, "password": "password123"})
	require.Equal(t, http.StatusOK, w.Code)
	var login struct {
		Token  string `json:"token"`
		UserID uint   `json:"userId"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &login))
	return login.UserID, login.Token
}

func TestHealth(t *testing.T) {
	a := newTestApp(t)
	w, env := doJSON(t, a, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"cache":"disabled"`)
}

func TestProgressionRoutesRequireOwnership(t *testing.T) {
	a := newTestApp(t)
	aliceID, aliceToken := registerAndLogin(t, a, "alice@example.com")
	bobID, _ := registerAndLogin(t, a, "bob@example.com")

	w, _ := doJSON(t, a, http.MethodGet, fmt.Sprintf("/api/users/%d/profile", aliceID), "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, env := doJSON(t, a, http.MethodGet, fmt.Sprintf("/api/users/%d/profile", aliceID), aliceToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var profile struct {
		TotalXP       int64 `json:"totalXP"`
		CurrentLevel  int   `json:"currentLevel"`
		CurrentEnergy int   `json:"currentEnergy"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &profile))
	assert.Equal(t, 1, profile.CurrentLevel)
	assert.Equal(t, 6, profile.CurrentEnergy)

	w, _ = doJSON(t, a, http.MethodGet, fmt.Sprintf("/api/users/%d/profile", bobID), aliceToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = doJSON(t, a, http.MethodPost, fmt.Sprintf("/api/admin/users/%d/reset-progress", aliceID), aliceToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSubmitTestResultOverHTTP(t *testing.T) {
	a := newTestApp(t)
	id, token := registerAndLogin(t, a, "carol@example.com")
	path := fmt.Sprintf("/api/users/%d/test-results", id)

	body := gin.H{
		"attemptId": "att-1", "testId": "fiqh-1", "correctAnswers": 4, "totalQuestions": 5, "durationSeconds": 60,
	}
	w, env := doJSON(t, a, http.MethodPost, path, token, body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"newXP":40`)

	w, env = doJSON(t, a, http.MethodPost, path, token, body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"replayed":true`)

	body["correctAnswers"] = 5
	w, _ = doJSON(t, a, http.MethodPost, path, token, body)
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = doJSON(t, a, http.MethodPost, path, token, gin.H{
		"attemptId": "att-2", "testId": "fiqh-1", "correctAnswers": 5, "totalQuestions": 5, "durationSeconds": 1,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w, _ = doJSON(t, a, http.MethodPost, fmt.Sprintf("/api/users/%d/daily-progress/claim", id), token, gin.H{"taskType": "test"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w, _ = doJSON(t, a, http.MethodPost, fmt.Sprintf("/api/users/%d/daily-progress/claim", id), token, gin.H{"taskType": "quiz"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = doJSON(t, a, http.MethodGet, "/api/leaderboard?limit=5", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"totalXP":40`)
}

func TestStatsPatchRejectsXPAboveCap(t *testing.T) {
	a := newTestApp(t)
	id, token := registerAndLogin(t, a, "dara@example.com")
	path := fmt.Sprintf("/api/users/%d/stats", id)

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		w, _ := doJSON(t, a, http.MethodPatch, path, token, map[string]int64{"totalXP": math.MaxInt64})
		done <- w
	}()
	select {
	case w := <-done:
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	case <-time.After(5 * time.Second):
		t.Fatal("stats patch with huge totalXP did not return")
	}

	w, env := doJSON(t, a, http.MethodPatch, path, token, map[string]int64{"totalXP": ledger.MaxXP})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), fmt.Sprintf(`"totalXP":%d`, ledger.MaxXP))

	w, env = doJSON(t, a, http.MethodGet, "/api/leaderboard?limit=3", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), fmt.Sprintf(`"level":%d`, ledger.LevelForXP(ledger.MaxXP)))
}

func TestAdminResetOverHTTP(t *testing.T) {
	a := newTestApp(t)
	studentID, studentToken := registerAndLogin(t, a, "dina@example.com")

	admin := &model.User{Name: "root", Email: "root@example.com", Password: "password123", Role: model.Admin}
	require.NoError(t, a.services.auth.Register(admin))
	adminToken, _, err := a.services.auth.Login("root@example.com", "password123")
	require.NoError(t, err)

	w, _ := doJSON(t, a, http.MethodPost, fmt.Sprintf("/api/users/%d/lessons/intro/complete", studentID), studentToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, env := doJSON(t, a, http.MethodPost, fmt.Sprintf("/api/admin/users/%d/reset-progress", studentID), adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"totalXP":0`)

	// 管理员可以查看任意用户
	w, _ = doJSON(t, a, http.MethodGet, fmt.Sprintf("/api/users/%d/energy", studentID), adminToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestConfigCallbackUpdatesTunables(t *testing.T) {
	a := newTestApp(t)
	next := *a.Config
	next.Progression.MaxEnergy = 10
	a.ApplyConfig(&next)
	assert.Equal(t, 10, a.services.tunables.Get().MaxEnergy)
}
