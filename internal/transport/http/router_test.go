package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redismock/v8"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/0xRedwolf/caryvn-backend/internal/auth"
	"github.com/0xRedwolf/caryvn-backend/internal/catalog"
	"github.com/0xRedwolf/caryvn-backend/internal/config"
	"github.com/0xRedwolf/caryvn-backend/internal/ledger"
	"github.com/0xRedwolf/caryvn-backend/internal/logger"
	"github.com/0xRedwolf/caryvn-backend/internal/model"
	"github.com/0xRedwolf/caryvn-backend/internal/orders"
	"github.com/0xRedwolf/caryvn-backend/internal/payment"
	"github.com/0xRedwolf/caryvn-backend/internal/provider"
	"github.com/0xRedwolf/caryvn-backend/internal/repo"
)

func newTestRouter(t *testing.T) (*gin.Engine, *auth.TokenManager, *gorm.DB) {
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(
		&model.Wallet{}, &model.Transaction{}, &model.OutboxEvent{},
		&model.Order{}, &model.Service{}, &model.MarkupRule{}, &model.APILog{},
	))

	rdb, _ := redismock.NewClientMock()
	log, _ := logger.NewLogger("error")
	repository := repo.NewRepository(db, rdb, &kafka.Writer{}, log)
	led := ledger.New(repository, log)
	prov := provider.NewClient(config.ProviderConfig{APIKey: "demo-key"}, repository, log)
	engine := orders.NewEngine(repository, led, prov, log)
	squad := payment.NewSquadClient(config.SquadConfig{SecretKey: "sk_test"}, log)
	reconciler := payment.NewReconciler(repository, led, squad, config.SquadConfig{SecretKey: "sk_test"}, log)
	syncer := catalog.NewSyncer(repository, prov, log)
	tokens := auth.NewTokenManager("router-test-secret")

	router := NewRouter(Deps{
		Repo:       repository,
		Ledger:     led,
		Engine:     engine,
		Reconciler: reconciler,
		Syncer:     syncer,
		Provider:   prov,
		Tokens:     tokens,
		Log:        log,
	}, config.RateLimitConfig{RPS: 1000, Burst: 1000})
	return router, tokens, db
}

func bearer(t *testing.T, tm *auth.TokenManager, id auth.Identity) string {
	token, err := tm.GenerateToken(id, time.Hour)
	assert.NoError(t, err)
	return "Bearer " + token
}

func do(router *gin.Engine, method, path, token, body string) *httptest.ResponseRecorder {
	var rdr *strings.Reader
	if body == "" {
		rdr = strings.NewReader("")
	} else {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.RemoteAddr = "10.0.0.1:50000"
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRouter_AuthRequired(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := do(router, http.MethodGet, "/v1/wallet/balance", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(router, http.MethodGet, "/v1/wallet/balance", "Bearer garbage", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_WalletBalance(t *testing.T) {
	router, tokens, _ := newTestRouter(t)
	token := bearer(t, tokens, auth.Identity{UserID: "u1"})

	w := do(router, http.MethodGet, "/v1/wallet/balance", token, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"balance"`)
	assert.Contains(t, w.Body.String(), "NGN")
}

func TestRouter_AdminGated(t *testing.T) {
	router, tokens, _ := newTestRouter(t)
	user := bearer(t, tokens, auth.Identity{UserID: "u1"})
	admin := bearer(t, tokens, auth.Identity{UserID: "a1", Admin: true})

	w := do(router, http.MethodGet, "/v1/admin/api-logs", user, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(router, http.MethodGet, "/v1/admin/api-logs", admin, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_AdminSyncAndListServices(t *testing.T) {
	router, tokens, _ := newTestRouter(t)
	admin := bearer(t, tokens, auth.Identity{UserID: "a1", Admin: true})
	user := bearer(t, tokens, auth.Identity{UserID: "u1"})

	// demo catalog sync populates the service table
	w := do(router, http.MethodPost, "/v1/admin/services/sync", admin, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"synced":10`)

	w = do(router, http.MethodGet, "/v1/services", user, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Instagram")
}

func TestRouter_PlaceOrderInsufficientFunds(t *testing.T) {
	router, tokens, db := newTestRouter(t)
	user := bearer(t, tokens, auth.Identity{UserID: "u1"})

	svc := &model.Service{
		ProviderID: 101, Name: "Instagram Followers", CategoryName: "Instagram",
		ProviderRate: decimal.NewFromInt(10), UserRate: decimal.NewFromInt(12),
		MinQuantity: 10, MaxQuantity: 1000, IsActive: true,
	}
	assert.NoError(t, db.Create(svc).Error)

	w := do(router, http.MethodPost, "/v1/orders", user,
		`{"service_id":1,"link":"https://x.com/a","quantity":500}`)
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
}

func TestRouter_WebhookBadSignature(t *testing.T) {
	router, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/payments/webhook",
		strings.NewReader(`{"Event":"charge_successful"}`))
	req.RemoteAddr = "10.0.0.1:50000"
	req.Header.Set("x-squad-encrypted-body", "deadbeef")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_UnknownOrderIs404(t *testing.T) {
	router, tokens, _ := newTestRouter(t)
	user := bearer(t, tokens, auth.Identity{UserID: "u1"})

	w := do(router, http.MethodGet, "/v1/orders/999", user, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_Healthz(t *testing.T) {
	router, _, _ := newTestRouter(t)
	w := do(router, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
}
