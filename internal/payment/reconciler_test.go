package payment

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/go-redis/redismock/v8"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/0xRedwolf/caryvn-backend/internal/config"
	"github.com/0xRedwolf/caryvn-backend/internal/ledger"
	"github.com/0xRedwolf/caryvn-backend/internal/logger"
	"github.com/0xRedwolf/caryvn-backend/internal/model"
	"github.com/0xRedwolf/caryvn-backend/internal/repo"
)

const testSecret = "sk_test_secret"

type fakeGateway struct {
	mu          sync.Mutex
	refs        int
	initErr     error
	checkoutURL string
	verify      VerifyResult
	verifyErr   error
	verifyCalls int
}

func (g *fakeGateway) GenerateReference() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refs++
	return "CRV-TEST" + string(rune('0'+g.refs))
}

func (g *fakeGateway) InitiatePayment(ctx context.Context, email string, amount decimal.Decimal, transactionRef, callbackURL, customerName string) (string, error) {
	if g.initErr != nil {
		return "", g.initErr
	}
	return g.checkoutURL, nil
}

func (g *fakeGateway) VerifyPayment(ctx context.Context, transactionRef string) (VerifyResult, error) {
	g.mu.Lock()
	g.verifyCalls++
	g.mu.Unlock()
	if g.verifyErr != nil {
		return VerifyResult{}, g.verifyErr
	}
	return g.verify, nil
}

func newTestReconciler(t *testing.T, gw *fakeGateway) (*Reconciler, *gorm.DB, context.Context) {
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(&model.Wallet{}, &model.Transaction{}, &model.OutboxEvent{}))

	rdb, _ := redismock.NewClientMock()
	log, _ := logger.NewLogger("error")
	repository := repo.NewRepository(db, rdb, &kafka.Writer{}, log)
	led := ledger.New(repository, log)
	rec := NewReconciler(repository, led, gw, config.SquadConfig{SecretKey: testSecret}, log)
	return rec, db, context.Background()
}

func TestInitiateTopup_Bounds(t *testing.T) {
	rec, _, ctx := newTestReconciler(t, &fakeGateway{checkoutURL: "https://pay/x"})

	_, err := rec.InitiateTopup(ctx, "u1", "a@b.c", "Ada", decimal.NewFromInt(50), "")
	assert.ErrorIs(t, err, ErrInvalidTopup)

	_, err = rec.InitiateTopup(ctx, "u1", "a@b.c", "Ada", decimal.NewFromInt(600000), "")
	assert.ErrorIs(t, err, ErrInvalidTopup)
}

func TestInitiateTopup_Success(t *testing.T) {
	rec, db, ctx := newTestReconciler(t, &fakeGateway{checkoutURL: "https://pay/x"})

	intent, err := rec.InitiateTopup(ctx, "u1", "a@b.c", "Ada", decimal.NewFromInt(500), "https://app/cb")
	assert.NoError(t, err)
	assert.Equal(t, "https://pay/x", intent.CheckoutURL)
	assert.NotEmpty(t, intent.Reference)

	var tx model.Transaction
	assert.NoError(t, db.Where("payment_reference = ?", intent.Reference).First(&tx).Error)
	assert.Equal(t, model.TxStatusPending, tx.Status)
	assert.Equal(t, "squad", tx.PaymentGateway)
	assert.Equal(t, "500.0000", tx.Amount.StringFixed(4))

	var w model.Wallet
	assert.NoError(t, db.Where("user_id = ?", "u1").First(&w).Error)
	assert.True(t, w.Balance.IsZero(), "no credit before confirmation")
}

func TestInitiateTopup_GatewayRejectionFailsDeposit(t *testing.T) {
	gw := &fakeGateway{initErr: &GatewayError{Message: "initiate failed: invalid amount"}}
	rec, db, ctx := newTestReconciler(t, gw)

	_, err := rec.InitiateTopup(ctx, "u1", "a@b.c", "Ada", decimal.NewFromInt(500), "")
	var gwErr *GatewayError
	assert.ErrorAs(t, err, &gwErr)

	var tx model.Transaction
	assert.NoError(t, db.Where("payment_gateway = ?", "squad").First(&tx).Error)
	assert.Equal(t, model.TxStatusFailed, tx.Status)
}

func TestVerifyTopup_CreditsExactlyOnce(t *testing.T) {
	gw := &fakeGateway{checkoutURL: "https://pay/x"}
	rec, db, ctx := newTestReconciler(t, gw)

	intent, err := rec.InitiateTopup(ctx, "u1", "a@b.c", "Ada", decimal.NewFromInt(500), "")
	assert.NoError(t, err)
	gw.verify = VerifyResult{Success: true, Amount: decimal.NewFromInt(500), Reference: intent.Reference}

	st, err := rec.VerifyTopup(ctx, "u1", intent.Reference)
	assert.NoError(t, err)
	assert.Equal(t, "success", st.Status)
	assert.Equal(t, "500.0000", st.Balance.StringFixed(4))

	// settled transactions short-circuit without another gateway call
	st, err = rec.VerifyTopup(ctx, "u1", intent.Reference)
	assert.NoError(t, err)
	assert.Equal(t, "success", st.Status)
	assert.Equal(t, 1, gw.verifyCalls)

	var w model.Wallet
	assert.NoError(t, db.Where("user_id = ?", "u1").First(&w).Error)
	assert.Equal(t, "500.0000", w.Balance.StringFixed(4))
}

func TestVerifyTopup_AmountMismatch(t *testing.T) {
	gw := &fakeGateway{checkoutURL: "https://pay/x"}
	rec, db, ctx := newTestReconciler(t, gw)

	intent, err := rec.InitiateTopup(ctx, "u1", "a@b.c", "Ada", decimal.NewFromInt(500), "")
	assert.NoError(t, err)
	gw.verify = VerifyResult{Success: true, Amount: decimal.NewFromInt(400)}

	_, err = rec.VerifyTopup(ctx, "u1", intent.Reference)
	assert.ErrorIs(t, err, ErrAmountMismatch)

	// left pending for manual review
	var tx model.Transaction
	assert.NoError(t, db.Where("payment_reference = ?", intent.Reference).First(&tx).Error)
	assert.Equal(t, model.TxStatusPending, tx.Status)
}

func TestVerifyTopup_WithinTolerance(t *testing.T) {
	gw := &fakeGateway{checkoutURL: "https://pay/x"}
	rec, _, ctx := newTestReconciler(t, gw)

	intent, err := rec.InitiateTopup(ctx, "u1", "a@b.c", "Ada", decimal.NewFromInt(500), "")
	assert.NoError(t, err)
	gw.verify = VerifyResult{Success: true, Amount: decimal.RequireFromString("499.50")}

	st, err := rec.VerifyTopup(ctx, "u1", intent.Reference)
	assert.NoError(t, err)
	assert.Equal(t, "success", st.Status)
	// the pending amount is credited, not the reported one
	assert.Equal(t, "500.0000", st.Balance.StringFixed(4))
}

func TestVerifyTopup_FailedPayment(t *testing.T) {
	gw := &fakeGateway{checkoutURL: "https://pay/x"}
	rec, db, ctx := newTestReconciler(t, gw)

	intent, err := rec.InitiateTopup(ctx, "u1", "a@b.c", "Ada", decimal.NewFromInt(500), "")
	assert.NoError(t, err)
	gw.verify = VerifyResult{Success: false, Status: "failed"}

	st, err := rec.VerifyTopup(ctx, "u1", intent.Reference)
	assert.NoError(t, err)
	assert.Equal(t, "failed", st.Status)

	var tx model.Transaction
	assert.NoError(t, db.Where("payment_reference = ?", intent.Reference).First(&tx).Error)
	assert.Equal(t, model.TxStatusFailed, tx.Status)
}

func TestVerifyTopup_ForeignReferenceHidden(t *testing.T) {
	gw := &fakeGateway{checkoutURL: "https://pay/x"}
	rec, _, ctx := newTestReconciler(t, gw)

	intent, err := rec.InitiateTopup(ctx, "u1", "a@b.c", "Ada", decimal.NewFromInt(500), "")
	assert.NoError(t, err)

	// another user probing someone else's reference
	_, err = rec.VerifyTopup(ctx, "u2", intent.Reference)
	assert.ErrorIs(t, err, ErrTransactionNotFound)

	_, err = rec.VerifyTopup(ctx, "u1", "CRV-NOPE")
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}

func webhookBody(t *testing.T, reference string) []byte {
	body, err := json.Marshal(map[string]any{
		"Event":          "charge_successful",
		"TransactionRef": reference,
		"Body": map[string]any{
			"transaction_ref": reference,
			"amount":          50000,
		},
	})
	assert.NoError(t, err)
	return body
}

func TestHandleWebhook_InvalidSignature(t *testing.T) {
	rec, _, ctx := newTestReconciler(t, &fakeGateway{checkoutURL: "https://pay/x"})

	body := webhookBody(t, "CRV-TEST1")
	err := rec.HandleWebhook(ctx, body, "deadbeef")
	assert.ErrorIs(t, err, ErrInvalidSignature)

	err = rec.HandleWebhook(ctx, body, "")
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestHandleWebhook_CreditsOnce(t *testing.T) {
	gw := &fakeGateway{checkoutURL: "https://pay/x"}
	rec, db, ctx := newTestReconciler(t, gw)

	intent, err := rec.InitiateTopup(ctx, "u1", "a@b.c", "Ada", decimal.NewFromInt(500), "")
	assert.NoError(t, err)

	body := webhookBody(t, intent.Reference)
	assert.NoError(t, rec.HandleWebhook(ctx, body, sign(body, testSecret)))

	var w model.Wallet
	assert.NoError(t, db.Where("user_id = ?", "u1").First(&w).Error)
	assert.Equal(t, "500.0000", w.Balance.StringFixed(4))

	// redelivery is a no-op
	assert.NoError(t, rec.HandleWebhook(ctx, body, sign(body, testSecret)))
	assert.NoError(t, db.Where("user_id = ?", "u1").First(&w).Error)
	assert.Equal(t, "500.0000", w.Balance.StringFixed(4))
}

func TestHandleWebhook_ThenVerifyDoesNotDoubleCredit(t *testing.T) {
	gw := &fakeGateway{checkoutURL: "https://pay/x"}
	rec, db, ctx := newTestReconciler(t, gw)

	intent, err := rec.InitiateTopup(ctx, "u1", "a@b.c", "Ada", decimal.NewFromInt(500), "")
	assert.NoError(t, err)
	gw.verify = VerifyResult{Success: true, Amount: decimal.NewFromInt(500)}

	body := webhookBody(t, intent.Reference)
	assert.NoError(t, rec.HandleWebhook(ctx, body, sign(body, testSecret)))

	st, err := rec.VerifyTopup(ctx, "u1", intent.Reference)
	assert.NoError(t, err)
	assert.Equal(t, "success", st.Status)
	assert.Equal(t, 0, gw.verifyCalls, "settled before verify reached the gateway")

	var w model.Wallet
	assert.NoError(t, db.Where("user_id = ?", "u1").First(&w).Error)
	assert.Equal(t, "500.0000", w.Balance.StringFixed(4))
}

func TestHandleWebhook_UnknownReferenceDropped(t *testing.T) {
	rec, db, ctx := newTestReconciler(t, &fakeGateway{checkoutURL: "https://pay/x"})

	body := webhookBody(t, "CRV-UNKNOWN")
	assert.NoError(t, rec.HandleWebhook(ctx, body, sign(body, testSecret)))

	var count int64
	db.Model(&model.Transaction{}).Count(&count)
	assert.EqualValues(t, 0, count)
}

func TestHandleWebhook_NonSuccessEventIgnored(t *testing.T) {
	gw := &fakeGateway{checkoutURL: "https://pay/x"}
	rec, db, ctx := newTestReconciler(t, gw)

	intent, err := rec.InitiateTopup(ctx, "u1", "a@b.c", "Ada", decimal.NewFromInt(500), "")
	assert.NoError(t, err)

	body, _ := json.Marshal(map[string]any{
		"Event":          "charge_failed",
		"TransactionRef": intent.Reference,
	})
	assert.NoError(t, rec.HandleWebhook(ctx, body, sign(body, testSecret)))

	var tx model.Transaction
	assert.NoError(t, db.Where("payment_reference = ?", intent.Reference).First(&tx).Error)
	assert.Equal(t, model.TxStatusPending, tx.Status)
}
