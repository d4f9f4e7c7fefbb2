package metering

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/natidev-sh/natiweb/internal/config"
	"github.com/natidev-sh/natiweb/internal/observability/metrics"
	"github.com/natidev-sh/natiweb/internal/observability/tracing"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	serviceName  = "metering"
	maxErrorBody = 2048
)

// Gateway is the subset of the metering gateway the workflows depend on.
type Gateway interface {
	RegisterEndUser(ctx context.Context, userID string, maxBudgetDollars float64, budgetDurationDays int) error
	CreateVirtualKey(ctx context.Context, req CreateKeyRequest) (*CreatedKey, error)
	GetKeyInfo(ctx context.Context, keys []string) ([]json.RawMessage, error)
	GetUserInfo(ctx context.Context, apiKey string) (*BudgetInfo, error)
	DeleteKeys(ctx context.Context, aliases []string) error
}

type Params struct {
	fx.In

	Cfg     config.Config
	Log     *zap.Logger
	Metrics *metrics.Metrics `optional:"true"`
}

// Client talks to the LiteLLM-style proxy with the master key.
type Client struct {
	baseURL   string
	masterKey string
	http      *http.Client
	log       *zap.Logger
	metrics   *metrics.Metrics
}

func NewClient(p Params) *Client {
	timeout := p.Cfg.Metering.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL:   strings.TrimRight(p.Cfg.Metering.BaseURL, "/"),
		masterKey: p.Cfg.Metering.MasterKey,
		http:      tracing.WrapHTTPClient(&http.Client{Timeout: timeout}, "metering"),
		log:       log.Named("metering.client"),
		metrics:   p.Metrics,
	}
}

// RegisterEndUser creates the budget-tracked end user. An existing user is
// reported by the gateway as 409 and treated as success.
func (c *Client) RegisterEndUser(ctx context.Context, userID string, maxBudgetDollars float64, budgetDurationDays int) error {
	if strings.TrimSpace(userID) == "" {
		return ErrInvalidRequest
	}
	body := endUserRequest{
		UserID:         userID,
		MaxBudget:      maxBudgetDollars,
		BudgetDuration: budgetDuration(budgetDurationDays),
	}
	_, err := c.do(ctx, "end_user_new", http.MethodPost, "/end_user/new", c.masterKey, body, http.StatusConflict)
	return err
}

func (c *Client) CreateVirtualKey(ctx context.Context, req CreateKeyRequest) (*CreatedKey, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, ErrInvalidRequest
	}
	body := generateKeyRequest{
		UserID:         req.UserID,
		MaxBudget:      req.MaxBudgetDollars,
		BudgetDuration: budgetDuration(req.BudgetDurationDays),
		BudgetID:       req.Tier,
		KeyAlias:       req.Alias,
		Metadata:       req.Metadata,
	}
	raw, err := c.do(ctx, "key_generate", http.MethodPost, "/key/generate", c.masterKey, body)
	if err != nil {
		return nil, err
	}

	var parsed generateKeyResponse
	if err := json.Unmarshal(raw, &parsed); err != nil || strings.TrimSpace(parsed.Key) == "" {
		return nil, fmt.Errorf("%w: key/generate returned no key", ErrInvalidResponse)
	}
	alias := parsed.KeyAlias
	if alias == "" {
		alias = req.Alias
	}
	return &CreatedKey{Key: parsed.Key, Alias: alias, Raw: json.RawMessage(raw)}, nil
}

// GetKeyInfo returns the gateway's info object for each key, in the order
// the gateway lists them.
func (c *Client) GetKeyInfo(ctx context.Context, keys []string) ([]json.RawMessage, error) {
	if len(keys) == 0 {
		return []json.RawMessage{}, nil
	}
	raw, err := c.do(ctx, "key_info_v2", http.MethodPost, "/v2/key/info", c.masterKey, keyInfoRequest{Keys: keys})
	if err != nil {
		return nil, err
	}

	var parsed keyInfoListResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if parsed.Info == nil {
		return []json.RawMessage{}, nil
	}
	return parsed.Info, nil
}

// GetUserInfo reads the spend of apiKey using the key itself as the
// credential.
func (c *Client) GetUserInfo(ctx context.Context, apiKey string) (*BudgetInfo, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrInvalidRequest
	}
	raw, err := c.do(ctx, "key_info", http.MethodGet, "/key/info", apiKey, nil)
	if err != nil {
		return nil, err
	}

	var parsed keyInfoResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	info := &BudgetInfo{
		Spend: parsed.Info.Spend,
		Raw:   json.RawMessage(raw),
	}
	if parsed.Info.MaxBudget != nil {
		info.MaxBudget = *parsed.Info.MaxBudget
	}
	if parsed.Info.BudgetResetAt != nil {
		if ts, ok := parseTimestamp(*parsed.Info.BudgetResetAt); ok {
			info.BudgetResetAt = &ts
		}
	}
	return info, nil
}

// DeleteKeys removes keys by alias. Unknown aliases are not an error.
func (c *Client) DeleteKeys(ctx context.Context, aliases []string) error {
	if len(aliases) == 0 {
		return nil
	}
	_, err := c.do(ctx, "key_delete", http.MethodPost, "/key/delete", c.masterKey, deleteKeysRequest{KeyAliases: aliases}, http.StatusNotFound)
	return err
}

func (c *Client) do(ctx context.Context, operation, method, path, bearer string, body any, tolerated ...int) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.IncUpstreamFailure(serviceName, operation)
		c.log.Warn("metering request failed", zap.String("operation", operation), zap.Error(err))
		return nil, &UpstreamError{Service: serviceName, Operation: operation, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.IncUpstreamFailure(serviceName, operation)
		return nil, &UpstreamError{Service: serviceName, Operation: operation, Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return payload, nil
	}
	for _, status := range tolerated {
		if resp.StatusCode == status {
			c.log.Debug("metering status tolerated",
				zap.String("operation", operation),
				zap.Int("status", resp.StatusCode),
			)
			return payload, nil
		}
	}

	c.metrics.IncUpstreamFailure(serviceName, operation)
	c.log.Warn("metering request rejected",
		zap.String("operation", operation),
		zap.Int("status", resp.StatusCode),
	)
	return nil, &UpstreamError{
		Service:   serviceName,
		Operation: operation,
		Status:    resp.StatusCode,
		Body:      truncate(string(payload), maxErrorBody),
		Err:       errors.New(http.StatusText(resp.StatusCode)),
	}
}

func budgetDuration(days int) string {
	if days <= 0 {
		return ""
	}
	return fmt.Sprintf("%dd", days)
}

func parseTimestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit]
}
