// Package provider is the HTTP gateway to the upstream SMM panel API.
// Every call POSTs {key, action, ...} as a form, retries transport failures
// up to maxRetries with a fixed backoff, and leaves exactly one audit log
// record per call with the API key redacted. A structured "error" key in a
// successful HTTP response is a terminal business failure and is not retried.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/0xRedwolf/caryvn-backend/internal/config"
	"github.com/0xRedwolf/caryvn-backend/internal/metrics"
	"github.com/0xRedwolf/caryvn-backend/internal/model"
)

const redactedKey = "***HIDDEN***"

// Error is a provider failure: exhausted transport retries or a business
// error returned by the panel.
type Error struct {
	Action  string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("smm provider %s: %s", e.Action, e.Message)
}

// Store is the slice of the repository the client needs: audit rows and the
// catalog cache.
type Store interface {
	CreateAPILog(ctx context.Context, rec *model.APILog) error
	CacheServices(ctx context.Context, payload []byte, ttl time.Duration) error
	CachedServices(ctx context.Context) ([]byte, error)
}

// Client is safe for concurrent use; it holds no mutable state beyond the
// HTTP client and configuration.
type Client struct {
	apiURL     string
	apiKey     string
	maxRetries int
	retryWait  time.Duration
	cacheTTL   time.Duration
	http       *http.Client
	store      Store
	log        *zap.SugaredLogger
}

// NewClient builds the gateway from config.
func NewClient(cfg config.ProviderConfig, store Store, logger *zap.SugaredLogger) *Client {
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 3
	}
	return &Client{
		apiURL:     cfg.APIURL,
		apiKey:     cfg.APIKey,
		maxRetries: retries,
		retryWait:  time.Second,
		cacheTTL:   cfg.CacheTTL(),
		http:       &http.Client{Timeout: cfg.Timeout()},
		store:      store,
		log:        logger,
	}
}

// demoMode is on when no real provider is configured.
func (c *Client) demoMode() bool {
	return c.apiURL == "" || c.apiKey == "" || c.apiKey == "demo-key"
}

// request performs one audited call. userID/orderID correlate the audit row.
func (c *Client) request(ctx context.Context, action string, params map[string]string, userID string, orderID *uint64) (json.RawMessage, error) {
	start := time.Now()

	form := url.Values{}
	form.Set("key", c.apiKey)
	form.Set("action", action)
	logged := map[string]string{"key": redactedKey, "action": action}
	for k, v := range params {
		form.Set(k, v)
		logged[k] = v
	}

	var (
		raw    json.RawMessage
		code   *int
		errMsg string
		bizErr bool
	)

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, strings.NewReader(form.Encode()))
		if err != nil {
			errMsg = err.Error()
			break
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := c.http.Do(req)
		if err != nil {
			errMsg = fmt.Sprintf("request failed (attempt %d/%d): %v", attempt+1, c.maxRetries, err)
			c.log.Warnw("smm provider transport failure", "action", action, "attempt", attempt+1, "err", err)
			if attempt < c.maxRetries-1 {
				select {
				case <-time.After(c.retryWait):
				case <-ctx.Done():
					errMsg = ctx.Err().Error()
					attempt = c.maxRetries // bail out
				}
			}
			continue
		}

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		sc := resp.StatusCode
		code = &sc
		if readErr != nil {
			errMsg = readErr.Error()
			break
		}

		if json.Valid(body) {
			raw = body
		} else {
			trunc := string(body)
			if len(trunc) > 500 {
				trunc = trunc[:500]
			}
			wrapped, _ := json.Marshal(map[string]string{"raw": trunc})
			raw = wrapped
		}

		errMsg = ""
		if msg, ok := businessError(raw); ok {
			errMsg = msg
			bizErr = true
			c.log.Warnw("smm provider error", "action", action, "err", msg)
		}
		break
	}

	elapsed := time.Since(start)
	reqJSON, _ := json.Marshal(logged)
	respJSON := "{}"
	if raw != nil {
		respJSON = string(raw)
	}
	rec := &model.APILog{
		Action:       action,
		RequestData:  string(reqJSON),
		ResponseData: respJSON,
		ResponseCode: code,
		Error:        errMsg,
		DurationMS:   elapsed.Milliseconds(),
		UserID:       userID,
		OrderID:      orderID,
	}
	if err := c.store.CreateAPILog(ctx, rec); err != nil {
		c.log.Errorf("record api log: %v", err)
	}

	metrics.ProviderRequestDuration.WithLabelValues(action).Observe(elapsed.Seconds())
	outcome := "ok"
	if errMsg != "" {
		outcome = "error"
	}
	metrics.ProviderRequestsTotal.WithLabelValues(action, outcome).Inc()

	if errMsg != "" && !bizErr {
		return nil, &Error{Action: action, Message: errMsg}
	}
	return raw, nil
}

// businessError extracts a top-level "error" value from an object response.
func businessError(raw json.RawMessage) (string, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", false
	}
	v, ok := obj["error"]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return string(v), true
	}
	return s, true
}

// GetServices fetches the provider catalog. Results are cached; on provider
// failure the last cached catalog (or the demo catalog) is returned rather
// than an error, so catalog sync never hard-fails.
func (c *Client) GetServices(ctx context.Context, forceRefresh bool) ([]Service, error) {
	if !forceRefresh {
		if cached := c.cachedServices(ctx); cached != nil {
			return cached, nil
		}
	}
	if c.demoMode() {
		return DemoServices(), nil
	}

	raw, err := c.request(ctx, model.APIActionServices, nil, "", nil)
	if err != nil {
		c.log.Warnf("get services failed, serving fallback: %v", err)
		return c.fallbackServices(ctx), nil
	}

	var services []Service
	if err := json.Unmarshal(raw, &services); err != nil {
		// Object response: business error already logged by request.
		return c.fallbackServices(ctx), nil
	}

	if err := c.store.CacheServices(ctx, raw, c.cacheTTL); err != nil {
		c.log.Warnf("cache services: %v", err)
	}
	return services, nil
}

func (c *Client) cachedServices(ctx context.Context) []Service {
	payload, err := c.store.CachedServices(ctx)
	if err != nil {
		return nil
	}
	var services []Service
	if err := json.Unmarshal(payload, &services); err != nil {
		return nil
	}
	return services
}

func (c *Client) fallbackServices(ctx context.Context) []Service {
	if cached := c.cachedServices(ctx); cached != nil {
		return cached
	}
	return DemoServices()
}

// GetBalance fetches the reseller account balance at the provider.
func (c *Client) GetBalance(ctx context.Context, userID string) (Balance, error) {
	if c.demoMode() {
		return Balance{Balance: "999.99", Currency: model.DefaultCurrency}, nil
	}
	raw, err := c.request(ctx, model.APIActionBalance, nil, userID, nil)
	if err != nil {
		return Balance{}, err
	}
	if msg, ok := businessError(raw); ok {
		return Balance{}, &Error{Action: model.APIActionBalance, Message: msg}
	}
	var b Balance
	if err := json.Unmarshal(raw, &b); err != nil {
		return Balance{}, &Error{Action: model.APIActionBalance, Message: err.Error()}
	}
	return b, nil
}

// CreateOrder places an order upstream and returns the provider order id.
func (c *Client) CreateOrder(ctx context.Context, serviceID int64, link string, quantity int, comments, userID string, orderID *uint64) (string, error) {
	if c.demoMode() {
		return fmt.Sprintf("%d", 10000+rand.Intn(90000)), nil
	}
	params := map[string]string{
		"service":  fmt.Sprintf("%d", serviceID),
		"link":     link,
		"quantity": fmt.Sprintf("%d", quantity),
	}
	if comments != "" {
		params["comments"] = comments
	}
	raw, err := c.request(ctx, model.APIActionAdd, params, userID, orderID)
	if err != nil {
		return "", err
	}
	var resp struct {
		Order FlexInt `json:"order"`
		Error string  `json:"error"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", &Error{Action: model.APIActionAdd, Message: err.Error()}
	}
	if resp.Error != "" {
		return "", &Error{Action: model.APIActionAdd, Message: resp.Error}
	}
	if resp.Order == 0 {
		return "", &Error{Action: model.APIActionAdd, Message: "no order id in response"}
	}
	return fmt.Sprintf("%d", resp.Order), nil
}

// GetOrderStatus queries the upstream state of an order.
func (c *Client) GetOrderStatus(ctx context.Context, providerOrderID, userID string, orderID *uint64) (OrderStatus, error) {
	if c.demoMode() {
		statuses := []string{"Pending", "In progress", "Completed", "Processing"}
		return OrderStatus{
			Status:     statuses[rand.Intn(len(statuses))],
			Charge:     "0.50",
			StartCount: Count{Set: true, N: 100 + rand.Intn(900)},
			Remains:    Count{Set: true, N: rand.Intn(500)},
			Currency:   model.DefaultCurrency,
		}, nil
	}
	raw, err := c.request(ctx, model.APIActionStatus, map[string]string{"order": providerOrderID}, userID, orderID)
	if err != nil {
		return OrderStatus{}, err
	}
	if msg, ok := businessError(raw); ok {
		return OrderStatus{}, &Error{Action: model.APIActionStatus, Message: msg}
	}
	var st OrderStatus
	if err := json.Unmarshal(raw, &st); err != nil {
		return OrderStatus{}, &Error{Action: model.APIActionStatus, Message: err.Error()}
	}
	return st, nil
}
