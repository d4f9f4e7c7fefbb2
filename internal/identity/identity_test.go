package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/natidev-sh/natiweb/internal/config"
	"github.com/natidev-sh/natiweb/internal/observability/metrics"
	"github.com/natidev-sh/natiweb/internal/upstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testUserID = "6f1c2b1e-8a53-4a0a-9a53-4c1f1b2f7d10"

func signToken(t *testing.T, secret, subject string, expiresAt time.Time) string {
	t.Helper()
	claims := tokenClaims{
		Email: "dev@nati.dev",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	return newTestClientWithMetrics(t, handler, nil)
}

func newTestClientWithMetrics(t *testing.T, handler http.HandlerFunc, m *metrics.Metrics) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Params{
		Cfg: config.Config{Identity: config.IdentityConfig{
			URL:            srv.URL,
			AnonKey:        "anon",
			ServiceRoleKey: "service-role",
			Timeout:        time.Second,
		}},
		Log:     zap.NewNop(),
		Metrics: m,
	})
}

func TestVerifyLocalAcceptsValidToken(t *testing.T) {
	v := NewTokenVerifier("secret", nil, zap.NewNop())
	token := signToken(t, "secret", testUserID, time.Now().Add(time.Hour))

	principal, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, testUserID, principal.UserID)
	assert.Equal(t, "dev@nati.dev", principal.Email)
}

func TestVerifyLocalRejects(t *testing.T) {
	v := NewTokenVerifier("secret", nil, zap.NewNop())

	cases := map[string]string{
		"expired":      signToken(t, "secret", testUserID, time.Now().Add(-time.Minute)),
		"wrong secret": signToken(t, "other", testUserID, time.Now().Add(time.Hour)),
		"bad subject":  signToken(t, "secret", "not-a-uuid", time.Now().Add(time.Hour)),
		"garbage":      "abc.def.ghi",
		"empty":        "",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), token)
			require.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestVerifyRemoteCachesResult(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/auth/v1/user", r.URL.Path)
		assert.Equal(t, "anon", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer user-token", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"id":"` + testUserID + `","email":"dev@nati.dev"}`))
	})
	v := NewTokenVerifier("", client, zap.NewNop())

	for i := 0; i < 3; i++ {
		principal, err := v.Verify(context.Background(), "user-token")
		require.NoError(t, err)
		assert.Equal(t, testUserID, principal.UserID)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestVerifyRemoteRejectsUnauthorized(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	v := NewTokenVerifier("", client, zap.NewNop())

	_, err := v.Verify(context.Background(), "bad-token")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestSetBanDurationSendsServiceRole(t *testing.T) {
	var body map[string]string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/auth/v1/admin/users/"+testUserID, r.URL.Path)
		assert.Equal(t, "Bearer service-role", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{"id":"` + testUserID + `","email":"dev@nati.dev","banned_until":"2126-01-01T00:00:00Z"}`))
	})

	user, err := client.SetBanDuration(context.Background(), testUserID, "876000h")
	require.NoError(t, err)
	assert.Equal(t, "876000h", body["ban_duration"])
	require.NotNil(t, user.BannedUntil)

	encoded, err := json.Marshal(user)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), "banned_until")
}

func TestGetUserNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.GetUser(context.Background(), testUserID)
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestGetUserUpstreamFailure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.GetUser(context.Background(), testUserID)
	up, ok := upstream.As(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusInternalServerError, up.Status)
}

func TestGetUserRejectsBadID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("no request expected")
	})
	_, err := client.GetUser(context.Background(), "nope")
	require.ErrorIs(t, err, ErrInvalidUser)
}

func TestUpstreamFailuresAreCounted(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegisterer(reg, config.Config{})
	client := newTestClientWithMetrics(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}, m)

	_, err := client.GetUser(context.Background(), testUserID)
	require.Error(t, err)

	count, err := testutil.GatherAndCount(reg, "natiweb_upstream_failures_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRejectedTokenIsNotAnUpstreamFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegisterer(reg, config.Config{})
	client := newTestClientWithMetrics(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}, m)

	_, err := client.CurrentUser(context.Background(), "bad-token")
	require.ErrorIs(t, err, ErrInvalidToken)

	count, err := testutil.GatherAndCount(reg, "natiweb_upstream_failures_total")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
