package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/0xRedwolf/caryvn-backend/internal/config"
	"github.com/0xRedwolf/caryvn-backend/internal/ledger"
	"github.com/0xRedwolf/caryvn-backend/internal/metrics"
	"github.com/0xRedwolf/caryvn-backend/internal/model"
	"github.com/0xRedwolf/caryvn-backend/internal/repo"
)

const gatewayName = "squad"

var (
	// ErrInvalidSignature rejects a webhook before any lookup.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrInvalidPayload rejects an unparseable webhook body.
	ErrInvalidPayload = errors.New("invalid webhook payload")
	// ErrInvalidTopup covers amount bounds violations.
	ErrInvalidTopup = errors.New("invalid top-up amount")
	// ErrAmountMismatch means the gateway reported a different amount than
	// the pending deposit expects; the deposit is left for manual review.
	ErrAmountMismatch = errors.New("amount mismatch")
	// ErrTransactionNotFound covers unknown or foreign references.
	ErrTransactionNotFound = errors.New("transaction not found")
)

// Gateway is the slice of the Squad client the reconciler uses.
type Gateway interface {
	GenerateReference() string
	InitiatePayment(ctx context.Context, email string, amount decimal.Decimal, transactionRef, callbackURL, customerName string) (string, error)
	VerifyPayment(ctx context.Context, transactionRef string) (VerifyResult, error)
}

// Reconciler drives the deposit lifecycle: pending ledger entry on initiate,
// exactly-once credit on confirmation via either verify or webhook.
type Reconciler struct {
	repo      repo.RepositoryInterface
	ledger    *ledger.Ledger
	gateway   Gateway
	secretKey string
	minTopup  decimal.Decimal
	maxTopup  decimal.Decimal
	tolerance decimal.Decimal
	log       *zap.SugaredLogger
}

func NewReconciler(r repo.RepositoryInterface, l *ledger.Ledger, g Gateway, cfg config.SquadConfig, logger *zap.SugaredLogger) *Reconciler {
	return &Reconciler{
		repo:      r,
		ledger:    l,
		gateway:   g,
		secretKey: cfg.SecretKey,
		minTopup:  boundOr(cfg.MinTopup, decimal.NewFromInt(100)),
		maxTopup:  boundOr(cfg.MaxTopup, decimal.NewFromInt(500000)),
		tolerance: decimal.NewFromInt(1),
		log:       logger,
	}
}

func boundOr(s string, fallback decimal.Decimal) decimal.Decimal {
	if s == "" {
		return fallback
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsPositive() {
		return fallback
	}
	return d
}

// TopupIntent is the initiate response handed back to the client.
type TopupIntent struct {
	CheckoutURL string          `json:"checkout_url"`
	Reference   string          `json:"reference"`
	Amount      decimal.Decimal `json:"amount"`
}

// InitiateTopup creates the pending deposit and asks the gateway for a
// checkout URL. A gateway rejection fails the pending deposit immediately:
// the attempt never reached a state where money could move.
func (p *Reconciler) InitiateTopup(ctx context.Context, userID, email, customerName string, amount decimal.Decimal, callbackURL string) (*TopupIntent, error) {
	if amount.LessThan(p.minTopup) {
		return nil, fmt.Errorf("%w: minimum top-up is ₦%s", ErrInvalidTopup, p.minTopup.StringFixed(0))
	}
	if amount.GreaterThan(p.maxTopup) {
		return nil, fmt.Errorf("%w: maximum top-up is ₦%s", ErrInvalidTopup, p.maxTopup.StringFixed(0))
	}

	wallet, err := p.ledger.GetOrCreateWallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	reference := p.gateway.GenerateReference()
	pending, err := p.ledger.CreatePendingDeposit(ctx, wallet.ID, amount, reference, gatewayName,
		fmt.Sprintf("Wallet top-up via Squad (₦%s)", amount.StringFixed(2)))
	if err != nil {
		return nil, err
	}

	checkoutURL, err := p.gateway.InitiatePayment(ctx, email, amount, reference, callbackURL, customerName)
	if err != nil {
		if failErr := p.ledger.FailDeposit(ctx, pending.ID); failErr != nil {
			p.log.Errorw("fail pending deposit after initiate rejection", "reference", reference, "err", failErr)
		}
		return nil, err
	}
	return &TopupIntent{CheckoutURL: checkoutURL, Reference: reference, Amount: amount}, nil
}

// TopupStatus is the verify response; Status is success, failed or pending.
type TopupStatus struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Balance decimal.Decimal `json:"balance"`
	Amount  decimal.Decimal `json:"amount"`
}

// VerifyTopup is the client-polled confirmation path. Settled transactions
// return their terminal state without another gateway call. A gateway error
// leaves the deposit PENDING so a later webhook can still settle it.
func (p *Reconciler) VerifyTopup(ctx context.Context, userID, reference string) (*TopupStatus, error) {
	t, err := p.repo.GetTransactionByReference(ctx, reference)
	if err != nil {
		return nil, ErrTransactionNotFound
	}
	wallet, err := p.repo.GetWalletByUser(ctx, userID)
	if err != nil || wallet.ID != t.WalletID {
		return nil, ErrTransactionNotFound
	}

	switch t.Status {
	case model.TxStatusSuccess:
		bal, err := p.ledger.Balance(ctx, wallet.ID)
		if err != nil {
			return nil, err
		}
		return &TopupStatus{Status: "success", Message: "Payment already confirmed", Balance: bal, Amount: t.Amount}, nil
	case model.TxStatusFailed:
		return &TopupStatus{Status: "failed", Message: "Payment failed"}, nil
	}

	result, err := p.gateway.VerifyPayment(ctx, reference)
	if err != nil {
		return nil, err
	}
	if !result.Success {
		if err := p.ledger.FailDeposit(ctx, t.ID); err != nil {
			return nil, err
		}
		return &TopupStatus{Status: "failed", Message: "Payment was not successful"}, nil
	}

	if t.Amount.Sub(result.Amount).Abs().GreaterThan(p.tolerance) {
		p.log.Warnw("top-up amount mismatch", "reference", reference,
			"expected", t.Amount, "actual", result.Amount)
		return nil, ErrAmountMismatch
	}

	balance, err := p.ledger.ConfirmDeposit(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	metrics.DepositsConfirmedTotal.WithLabelValues("verify").Inc()
	return &TopupStatus{Status: "success", Message: "Payment confirmed", Balance: balance, Amount: t.Amount}, nil
}

// HandleWebhook is the gateway-pushed confirmation path. The HMAC signature
// is validated over the raw body before anything is looked up; an unknown
// reference is logged and dropped, not an error, so the gateway stops
// retrying deliveries we can never match.
func (p *Reconciler) HandleWebhook(ctx context.Context, rawBody []byte, signature string) error {
	if !ValidateWebhookSignature(rawBody, signature, p.secretKey) {
		return ErrInvalidSignature
	}

	var payload struct {
		Event             string         `json:"Event"`
		TransactionRef    string         `json:"TransactionRef"`
		TransactionStatus string         `json:"transaction_status"`
		Body              map[string]any `json:"Body"`
	}
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return ErrInvalidPayload
	}

	successful := payload.Event == "charge_successful" ||
		strings.EqualFold(payload.TransactionStatus, "success")
	if !successful {
		return nil
	}

	reference := firstString(payload.Body, "transaction_ref", "TransactionRef")
	if reference == "" {
		reference = payload.TransactionRef
	}
	if reference == "" {
		p.log.Warn("webhook missing transaction_ref")
		return nil
	}

	t, err := p.repo.GetTransactionByReference(ctx, reference)
	if err != nil {
		p.log.Warnw("webhook for unknown transaction", "reference", reference)
		return nil
	}
	if t.Status != model.TxStatusPending {
		return nil
	}

	balance, err := p.ledger.ConfirmDeposit(ctx, t.ID)
	if err != nil {
		return err
	}
	metrics.DepositsConfirmedTotal.WithLabelValues("webhook").Inc()
	p.log.Infow("webhook credited wallet", "reference", reference,
		"amount", t.Amount, "balance", balance)
	return nil
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
