package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"learnquest_backend/pkg/ledger"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultTimeout = 15 * time.Second

// envelope 服务端统一响应结构
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// HTTPClient 通过 JSON API 访问成长服务
type HTTPClient struct {
	BaseURL string
	HTTP    *http.Client
	Log     *zap.Logger

	mu    sync.RWMutex
	token string
}

func NewHTTPClient(baseURL string, timeout time.Duration, log *zap.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &HTTPClient{
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		HTTP:    &http.Client{Timeout: timeout},
		Log:     log,
	}
}

func (c *HTTPClient) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *HTTPClient) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.Log.Debug("request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrNetworkUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrNetworkUnavailable, err)
	}

	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil && resp.StatusCode < 300 {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := env.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &StatusError{Status: resp.StatusCode, Message: msg}
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}

func userPath(userID uint, suffix string) string {
	return fmt.Sprintf("/api/users/%d%s", userID, suffix)
}

func (c *HTTPClient) GetProfile(ctx context.Context, userID uint) (*Profile, error) {
	var out Profile
	if err := c.do(ctx, http.MethodGet, userPath(userID, "/profile"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) UpdateProfileStats(ctx context.Context, userID uint, patch StatsPatch) (*Profile, error) {
	var out Profile
	if err := c.do(ctx, http.MethodPatch, userPath(userID, "/stats"), patch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) SubmitTestResult(ctx context.Context, userID uint, req TestSubmission) (*SubmissionResult, error) {
	var out SubmissionResult
	if err := c.do(ctx, http.MethodPost, userPath(userID, "/test-results"), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) CompleteLesson(ctx context.Context, userID uint, lessonID string) (*LessonResult, error) {
	var out LessonResult
	path := userPath(userID, "/lessons/"+url.PathEscape(lessonID)+"/complete")
	if err := c.do(ctx, http.MethodPost, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) GetDailyProgress(ctx context.Context, userID uint) (*DailyProgress, error) {
	var out DailyProgress
	if err := c.do(ctx, http.MethodGet, userPath(userID, "/daily-progress"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) ClaimDailyTask(ctx context.Context, userID uint, task ledger.TaskType) (*ClaimResult, error) {
	var out ClaimResult
	body := map[string]string{"taskType": string(task)}
	if err := c.do(ctx, http.MethodPost, userPath(userID, "/daily-progress/claim"), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) GetEnergy(ctx context.Context, userID uint) (*Energy, error) {
	var out Energy
	if err := c.do(ctx, http.MethodGet, userPath(userID, "/energy"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) GetLeaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	var out []LeaderboardEntry
	path := fmt.Sprintf("/api/leaderboard?limit=%d", limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) ClaimWeeklyReward(ctx context.Context, userID uint) (*ClaimResult, error) {
	var out ClaimResult
	if err := c.do(ctx, http.MethodPost, userPath(userID, "/streak/claim"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) ListMilestones(ctx context.Context, userID uint) ([]Milestone, error) {
	var out []Milestone
	if err := c.do(ctx, http.MethodGet, userPath(userID, "/milestones"), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) ClaimMilestone(ctx context.Context, userID uint, code string) (*ClaimResult, error) {
	var out ClaimResult
	path := userPath(userID, "/milestones/"+url.PathEscape(code)+"/claim")
	if err := c.do(ctx, http.MethodPost, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type LoginResult struct {
	Token  string `json:"token"`
	UserID uint   `json:"userId"`
	Role   string `json:"role"`
}

// Login 成功后自动携带令牌
func (c *HTTPClient) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	var out LoginResult
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/login", body, &out); err != nil {
		return nil, err
	}
	c.SetToken(out.Token)
	return &out, nil
}

func (c *HTTPClient) Register(ctx context.Context, name, email, password, timezone string) (uint, error) {
	var out struct {
		ID uint `json:"id"`
	}
	body := map[string]string{"name": name, "email": email, "password": password, "timezone": timezone}
	if err := c.do(ctx, http.MethodPost, "/api/register", body, &out); err != nil {
		return 0, err
	}
	return out.ID, nil
}

// Reachable 用健康检查判断是否联网，失败不区分原因
func (c *HTTPClient) Reachable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	err := c.do(ctx, http.MethodGet, "/api/health", nil, nil)
	if err != nil && !errors.Is(err, ErrServerFailure) {
		return false
	}
	return true
}
