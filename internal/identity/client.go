package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/natidev-sh/natiweb/internal/config"
	"github.com/natidev-sh/natiweb/internal/observability/metrics"
	"github.com/natidev-sh/natiweb/internal/observability/tracing"
	"github.com/natidev-sh/natiweb/internal/upstream"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const serviceName = "identity"

// Client calls the provider's auth REST API.
type Client struct {
	baseURL        string
	anonKey        string
	serviceRoleKey string
	http           *http.Client
	log            *zap.Logger
	metrics        *metrics.Metrics
}

type Params struct {
	fx.In

	Cfg     config.Config
	Log     *zap.Logger
	Metrics *metrics.Metrics `optional:"true"`
}

func NewClient(p Params) *Client {
	cfg, log := p.Cfg, p.Log
	timeout := cfg.Identity.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	anon := cfg.Identity.AnonKey
	if anon == "" {
		anon = cfg.Identity.ServiceRoleKey
	}
	return &Client{
		baseURL:        strings.TrimRight(cfg.Identity.URL, "/"),
		anonKey:        anon,
		serviceRoleKey: cfg.Identity.ServiceRoleKey,
		http:           tracing.WrapHTTPClient(&http.Client{Timeout: timeout}, "identity"),
		log:            log.Named("identity.client"),
		metrics:        p.Metrics,
	}
}

// CurrentUser resolves the account that owns an access token.
func (c *Client) CurrentUser(ctx context.Context, accessToken string) (*User, error) {
	raw, status, err := c.do(ctx, "get_current_user", http.MethodGet, "/auth/v1/user", c.anonKey, accessToken, nil)
	if err != nil {
		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	return decodeUser(raw)
}

func (c *Client) GetUser(ctx context.Context, userID string) (*User, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, ErrInvalidUser
	}
	raw, status, err := c.do(ctx, "admin_get_user", http.MethodGet, "/auth/v1/admin/users/"+url.PathEscape(userID), c.serviceRoleKey, c.serviceRoleKey, nil)
	if err != nil {
		if status == http.StatusNotFound {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return decodeUser(raw)
}

func (c *Client) SetBanDuration(ctx context.Context, userID string, duration string) (*User, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, ErrInvalidUser
	}
	body := map[string]string{"ban_duration": duration}
	raw, status, err := c.do(ctx, "admin_update_user", http.MethodPut, "/auth/v1/admin/users/"+url.PathEscape(userID), c.serviceRoleKey, c.serviceRoleKey, body)
	if err != nil {
		if status == http.StatusNotFound {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return decodeUser(raw)
}

func (c *Client) do(ctx context.Context, operation, method, path, apiKey, bearer string, body any) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, 0, err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("apikey", apiKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.IncUpstreamFailure(serviceName, operation)
		return nil, 0, &upstream.Error{Service: serviceName, Operation: operation, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.IncUpstreamFailure(serviceName, operation)
		return nil, resp.StatusCode, &upstream.Error{Service: serviceName, Operation: operation, Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Warn("identity request rejected", zap.String("operation", operation), zap.Int("status", resp.StatusCode))
		// 4xx answers are verdicts on the caller's input.
		if resp.StatusCode >= http.StatusInternalServerError {
			c.metrics.IncUpstreamFailure(serviceName, operation)
		}
		return nil, resp.StatusCode, &upstream.Error{
			Service:   serviceName,
			Operation: operation,
			Status:    resp.StatusCode,
			Body:      string(payload),
			Err:       fmt.Errorf("%s", http.StatusText(resp.StatusCode)),
		}
	}
	return payload, resp.StatusCode, nil
}

func decodeUser(raw []byte) (*User, error) {
	var user User
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, fmt.Errorf("decode identity user: %w", err)
	}
	if strings.TrimSpace(user.ID) == "" {
		return nil, ErrUserNotFound
	}
	user.Raw = json.RawMessage(raw)
	return &user, nil
}
