package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/0xRedwolf/caryvn-backend/internal/config"
	"github.com/0xRedwolf/caryvn-backend/internal/logger"
	"github.com/0xRedwolf/caryvn-backend/internal/model"
)

type memStore struct {
	mu    sync.Mutex
	logs  []model.APILog
	cache []byte
}

func (m *memStore) CreateAPILog(ctx context.Context, rec *model.APILog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, *rec)
	return nil
}

func (m *memStore) CacheServices(ctx context.Context, payload []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache = payload
	return nil
}

func (m *memStore) CachedServices(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cache == nil {
		return nil, errors.New("cache miss")
	}
	return m.cache, nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestClient(t *testing.T, apiURL string, maxRetries int) (*Client, *memStore) {
	store := &memStore{}
	log, _ := logger.NewLogger("error")
	c := NewClient(config.ProviderConfig{
		APIURL:         apiURL,
		APIKey:         "real-secret-key",
		TimeoutSeconds: 5,
		MaxRetries:     maxRetries,
	}, store, log)
	return c, store
}

func TestCreateOrder_RetriesTransportFailure(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			// drop the connection mid-flight
			conn, _, _ := w.(http.Hijacker).Hijack()
			conn.Close()
			return
		}
		w.Write([]byte(`{"order": 12345}`))
	}))
	defer srv.Close()

	c, store := newTestClient(t, srv.URL, 3)
	id, err := c.CreateOrder(context.Background(), 101, "https://x.com/a", 500, "", "u1", nil)
	assert.NoError(t, err)
	assert.Equal(t, "12345", id)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))

	// one audit row for the whole attempt batch, not one per attempt
	assert.Len(t, store.logs, 1)
	assert.Empty(t, store.logs[0].Error)
}

func TestCreateOrder_BusinessErrorNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{"error": "not enough funds"}`))
	}))
	defer srv.Close()

	c, store := newTestClient(t, srv.URL, 3)
	_, err := c.CreateOrder(context.Background(), 101, "https://x.com/a", 500, "", "u1", nil)

	var provErr *Error
	assert.ErrorAs(t, err, &provErr)
	assert.Contains(t, provErr.Message, "not enough funds")
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "business errors are terminal")
	assert.Len(t, store.logs, 1)
	assert.Equal(t, "not enough funds", store.logs[0].Error)
}

func TestCreateOrder_ExhaustedRetries(t *testing.T) {
	srv := httptest.NewServer(nil)
	srv.Close() // every attempt is refused

	c, store := newTestClient(t, srv.URL, 1)
	_, err := c.CreateOrder(context.Background(), 101, "https://x.com/a", 500, "", "u1", nil)

	var provErr *Error
	assert.ErrorAs(t, err, &provErr)
	assert.Len(t, store.logs, 1)
	assert.NotEmpty(t, store.logs[0].Error)
}

func TestCreateOrder_QuotedOrderID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"order": "456"}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, 1)
	id, err := c.CreateOrder(context.Background(), 101, "https://x.com/a", 10, "", "u1", nil)
	assert.NoError(t, err)
	assert.Equal(t, "456", id)
}

func TestAPILog_RedactsKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "real-secret-key", r.PostForm.Get("key"), "real key goes over the wire")
		w.Write([]byte(`{"balance": "10.00", "currency": "NGN"}`))
	}))
	defer srv.Close()

	c, store := newTestClient(t, srv.URL, 1)
	_, err := c.GetBalance(context.Background(), "u1")
	assert.NoError(t, err)

	assert.Len(t, store.logs, 1)
	assert.Contains(t, store.logs[0].RequestData, "***HIDDEN***")
	assert.NotContains(t, store.logs[0].RequestData, "real-secret-key")
	assert.Equal(t, model.APIActionBalance, store.logs[0].Action)
}

func TestGetServices_DemoMode(t *testing.T) {
	store := &memStore{}
	log, _ := logger.NewLogger("error")
	c := NewClient(config.ProviderConfig{APIKey: "demo-key"}, store, log)

	services, err := c.GetServices(context.Background(), false)
	assert.NoError(t, err)
	assert.Equal(t, DemoServices(), services)
}

func TestGetServices_CachePreferred(t *testing.T) {
	store := &memStore{}
	log, _ := logger.NewLogger("error")
	c := NewClient(config.ProviderConfig{APIKey: "demo-key"}, store, log)

	cached := []Service{{Service: 7, Name: "Cached Followers", Category: "Instagram", Rate: dec("5")}}
	payload, _ := json.Marshal(cached)
	store.cache = payload

	services, err := c.GetServices(context.Background(), false)
	assert.NoError(t, err)
	assert.Len(t, services, 1)
	assert.Equal(t, "Cached Followers", services[0].Name)

	// forceRefresh skips the cache
	services, err = c.GetServices(context.Background(), true)
	assert.NoError(t, err)
	assert.Equal(t, DemoServices(), services)
}

func TestGetServices_FallsBackOnTransportFailure(t *testing.T) {
	srv := httptest.NewServer(nil)
	srv.Close()

	c, store := newTestClient(t, srv.URL, 1)
	cached := []Service{{Service: 7, Name: "Cached Followers", Category: "Instagram", Rate: dec("5")}}
	payload, _ := json.Marshal(cached)
	store.cache = payload

	services, err := c.GetServices(context.Background(), true)
	assert.NoError(t, err, "catalog fetch never hard-fails")
	assert.Len(t, services, 1)
	assert.Equal(t, "Cached Followers", services[0].Name)
}

func TestGetServices_FallsBackToDemoWithoutCache(t *testing.T) {
	srv := httptest.NewServer(nil)
	srv.Close()

	c, _ := newTestClient(t, srv.URL, 1)
	services, err := c.GetServices(context.Background(), true)
	assert.NoError(t, err)
	assert.Equal(t, DemoServices(), services)
}
