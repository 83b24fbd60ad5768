package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"learnquest_backend/pkg/ledger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEnvelope(w http.ResponseWriter, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"code": status, "message": message, "data": data})
}

func TestHTTPClientDecodesEnvelopeAndSendsToken(t *testing.T) {
	var gotAuth, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		switch r.URL.Path {
		case "/api/users/7/daily-progress/claim":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			gotBody = body["taskType"]
			writeEnvelope(w, http.StatusOK, "success", ClaimResult{Status: ClaimOK, XPAwarded: 30, NewXP: 130, NewLevel: 2})
		case "/api/users/7/profile":
			writeEnvelope(w, http.StatusOK, "success", Profile{UserID: 7, TotalXP: 130, CurrentLevel: 2})
		default:
			writeEnvelope(w, http.StatusNotFound, "not found", nil)
		}
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL+"/", time.Second, nil)
	c.SetToken("abc")
	ctx := context.Background()

	res, err := c.ClaimDailyTask(ctx, 7, ledger.TaskTest)
	require.NoError(t, err)
	assert.Equal(t, ClaimOK, res.Status)
	assert.Equal(t, int64(130), res.NewXP)
	assert.Equal(t, "Bearer abc", gotAuth)
	assert.Equal(t, "test", gotBody)

	p, err := c.GetProfile(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, p.CurrentLevel)
}

func TestHTTPClientErrorTaxonomy(t *testing.T) {
	var status atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, int(status.Load()), "nope", nil)
	}))
	ctx := context.Background()
	c := NewHTTPClient(srv.URL, time.Second, nil)

	tests := []struct {
		status    int
		want      error
		transient bool
	}{
		{http.StatusUnprocessableEntity, ErrRemoteRejected, false},
		{http.StatusConflict, ErrRemoteRejected, false},
		{http.StatusUnauthorized, ErrUnauthorized, false},
		{http.StatusInternalServerError, ErrServerFailure, false},
		{http.StatusServiceUnavailable, ErrServerFailure, true},
	}
	for _, tt := range tests {
		status.Store(int32(tt.status))
		_, err := c.GetEnergy(ctx, 1)
		require.Error(t, err)
		assert.ErrorIs(t, err, tt.want, "status %d", tt.status)
		assert.Equal(t, tt.transient, IsTransient(err), "status %d", tt.status)

		var se *StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "nope", se.Message)
	}

	srv.Close()
	_, err := c.GetEnergy(ctx, 1)
	assert.ErrorIs(t, err, ErrNetworkUnavailable)
	assert.True(t, IsTransient(err))
	assert.False(t, c.Reachable(ctx))
}

func TestLoginStoresToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/health" {
			writeEnvelope(w, http.StatusOK, "success", nil)
			return
		}
		writeEnvelope(w, http.StatusOK, "success", LoginResult{Token: "tok", UserID: 3, Role: "student"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second, nil)
	res, err := c.Login(context.Background(), "a@b.c", "pw")
	require.NoError(t, err)
	assert.Equal(t, uint(3), res.UserID)
	assert.Equal(t, "tok", c.Token())
	assert.True(t, c.Reachable(context.Background()))
}
