// Package orders orchestrates the order lifecycle: placement (charge, then
// provider submission, with a compensating refund when submission fails) and
// reconciliation of active orders against the provider. The charge always
// commits before the provider is called; provider calls never run while a
// wallet lock is held.
package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/0xRedwolf/caryvn-backend/internal/ledger"
	"github.com/0xRedwolf/caryvn-backend/internal/metrics"
	"github.com/0xRedwolf/caryvn-backend/internal/model"
	"github.com/0xRedwolf/caryvn-backend/internal/pricing"
	"github.com/0xRedwolf/caryvn-backend/internal/provider"
	"github.com/0xRedwolf/caryvn-backend/internal/repo"
)

var (
	// ErrValidation covers bad order input: unknown service, quantity out
	// of bounds, empty link.
	ErrValidation = errors.New("validation failed")
	// ErrNotRefundable rejects cancel-and-refund on settled orders.
	ErrNotRefundable = errors.New("order cannot be refunded")
	// ErrNotRetryable rejects retry on orders already submitted upstream.
	ErrNotRetryable = errors.New("order cannot be retried")
	// ErrNotFound covers missing orders and orders owned by another user.
	ErrNotFound = errors.New("order not found")
)

// ProviderAPI is the slice of the provider gateway the engine uses.
type ProviderAPI interface {
	CreateOrder(ctx context.Context, serviceID int64, link string, quantity int, comments, userID string, orderID *uint64) (string, error)
	GetOrderStatus(ctx context.Context, providerOrderID, userID string, orderID *uint64) (provider.OrderStatus, error)
}

// Engine coordinates orders between the ledger, catalog and provider.
type Engine struct {
	repo     repo.RepositoryInterface
	ledger   *ledger.Ledger
	provider ProviderAPI
	log      *zap.SugaredLogger
}

func NewEngine(r repo.RepositoryInterface, l *ledger.Ledger, p ProviderAPI, logger *zap.SugaredLogger) *Engine {
	return &Engine{repo: r, ledger: l, provider: p, log: logger}
}

// PlaceResult reports the outcome of PlaceOrder. Refunded is set when the
// provider rejected the submission and the charge was compensated.
type PlaceResult struct {
	Order    *model.Order
	Refunded bool
	Message  string
}

// PlaceOrder validates, charges the wallet, then submits to the provider.
// Charge-before-submit is deliberate: the provider is never called for money
// the wallet does not have. A provider failure (business error or exhausted
// transport retries) is compensated with a full refund and a FAILED order,
// not surfaced as a bare error.
func (e *Engine) PlaceOrder(ctx context.Context, userID string, serviceID uint64, link string, quantity int, comments string) (*PlaceResult, error) {
	svc, err := e.repo.GetService(ctx, serviceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: service not found", ErrValidation)
		}
		return nil, err
	}
	if !svc.IsActive {
		return nil, fmt.Errorf("%w: service is not available", ErrValidation)
	}
	if strings.TrimSpace(link) == "" {
		return nil, fmt.Errorf("%w: link is required", ErrValidation)
	}
	if quantity < svc.MinQuantity || quantity > svc.MaxQuantity {
		return nil, fmt.Errorf("%w: quantity must be between %d and %d", ErrValidation, svc.MinQuantity, svc.MaxQuantity)
	}

	charge := pricing.OrderCharge(svc.UserRate, quantity)
	wallet, err := e.ledger.GetOrCreateWallet(ctx, userID)
	if err != nil {
		return nil, err
	}

	order := &model.Order{
		UserID:       userID,
		ServiceID:    svc.ID,
		Link:         link,
		Quantity:     quantity,
		ProviderRate: svc.ProviderRate,
		UserRate:     svc.UserRate,
		Charge:       charge,
		Profit:       pricing.Profit(svc.ProviderRate, svc.UserRate, quantity),
		Currency:     wallet.Currency,
		Status:       model.OrderPending,
	}

	var balanceAfter decimal.Decimal
	err = e.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		if err := e.repo.CreateOrder(ctx, tx, order); err != nil {
			return err
		}
		chargeTx, newBal, err := e.ledger.ChargeTx(ctx, tx, wallet.ID, charge,
			fmt.Sprintf("Order #%d - %s", order.ID, svc.Name))
		if err != nil {
			return err
		}
		order.ChargeTransactionID = &chargeTx.ID
		if err := e.repo.SaveOrder(ctx, tx, order); err != nil {
			return err
		}
		payload := fmt.Sprintf(`{"order_id":%d,"user_id":%q,"charge":%q}`, order.ID, userID, charge.String())
		evt := &model.OutboxEvent{
			Aggregate: "Order", AggregateID: order.ID,
			EventType: model.EventOrderPlaced, Payload: payload,
		}
		if err := e.repo.CreateOutboxEvent(ctx, tx, evt); err != nil {
			return err
		}
		balanceAfter = newBal
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.ledger.RefreshBalanceCache(ctx, wallet.ID, balanceAfter)

	providerOrderID, submitErr := e.provider.CreateOrder(ctx, svc.ProviderID, link, quantity, comments, userID, &order.ID)
	if submitErr != nil {
		if err := e.compensate(ctx, wallet.ID, order,
			fmt.Sprintf("Refund - provider failed: Order #%d", order.ID)); err != nil {
			// Compensation failure leaves a charged FAILED-submission order
			// for the orphan sweep; surface it loudly.
			e.log.Errorw("compensating refund failed", "order", order.ID, "err", err)
			return nil, err
		}
		e.log.Errorw("order failed, wallet refunded", "order", order.ID, "charge", charge, "err", submitErr)
		metrics.OrdersPlacedTotal.WithLabelValues("failed").Inc()
		return &PlaceResult{
			Order:    order,
			Refunded: true,
			Message:  "Order could not be placed with provider. Your wallet has been refunded.",
		}, nil
	}

	order.ProviderOrderID = providerOrderID
	order.Status = model.OrderProcessing
	if err := e.repo.SaveOrder(ctx, nil, order); err != nil {
		return nil, err
	}
	metrics.OrdersPlacedTotal.WithLabelValues("placed").Inc()
	return &PlaceResult{Order: order, Message: "Order placed successfully"}, nil
}

// compensate refunds the order's charge and marks the order FAILED, in one
// transaction.
func (e *Engine) compensate(ctx context.Context, walletID uint64, order *model.Order, description string) error {
	var balanceAfter decimal.Decimal
	err := e.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		_, newBal, err := e.ledger.CreditTx(ctx, tx, walletID, order.Charge,
			model.TxTypeRefund, description, order.ChargeTransactionID)
		if err != nil {
			return err
		}
		order.Status = model.OrderFailed
		if err := e.repo.SaveOrder(ctx, tx, order); err != nil {
			return err
		}
		balanceAfter = newBal
		return nil
	})
	if err != nil {
		return err
	}
	e.ledger.RefreshBalanceCache(ctx, walletID, balanceAfter)
	return nil
}

// GetUserOrder fetches an order scoped to its owner. Orders belonging to
// other users are indistinguishable from missing ones.
func (e *Engine) GetUserOrder(ctx context.Context, userID string, orderID uint64) (*model.Order, error) {
	o, err := e.repo.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrNotFound
	}
	return o, nil
}

// ListOrders pages through a user's orders, newest first.
func (e *Engine) ListOrders(ctx context.Context, userID, status string, limit, offset int) ([]model.Order, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return e.repo.ListOrders(ctx, userID, status, limit, offset)
}

// ReconcileActiveOrders refreshes every active order from the provider.
// Orders are processed independently; a single failure is counted and the
// batch continues.
func (e *Engine) ReconcileActiveOrders(ctx context.Context) (updated, failed int, err error) {
	active, err := e.repo.ActiveOrders(ctx)
	if err != nil {
		return 0, 0, err
	}
	for i := range active {
		o := &active[i]
		changed, refreshErr := e.RefreshOrder(ctx, o)
		if refreshErr != nil {
			failed++
			e.log.Warnw("reconcile order failed", "order", o.ID, "err", refreshErr)
			continue
		}
		if changed {
			updated++
		}
	}
	return updated, failed, nil
}

// RefreshOrder queries the provider and applies the upstream status to the
// order. Unknown upstream status strings are ignored, not errors.
func (e *Engine) RefreshOrder(ctx context.Context, o *model.Order) (bool, error) {
	if o.ProviderOrderID == "" {
		return false, nil
	}
	st, err := e.provider.GetOrderStatus(ctx, o.ProviderOrderID, o.UserID, &o.ID)
	if err != nil {
		return false, err
	}
	return e.applyStatus(ctx, o, st)
}

func (e *Engine) applyStatus(ctx context.Context, o *model.Order, st provider.OrderStatus) (bool, error) {
	changed := false
	if st.StartCount.Set {
		if o.StartCount == nil || *o.StartCount != st.StartCount.N {
			n := st.StartCount.N
			o.StartCount = &n
			changed = true
		}
	}
	if st.Remains.Set {
		if o.Remains == nil || *o.Remains != st.Remains.N {
			n := st.Remains.N
			o.Remains = &n
			changed = true
		}
	}
	if mapped, ok := MapProviderStatus(st.Status); ok && mapped != o.Status {
		o.Status = mapped
		if mapped == model.OrderCompleted {
			now := time.Now()
			o.CompletedAt = &now
		}
		changed = true
	}
	if !changed {
		return false, nil
	}
	if err := e.repo.SaveOrder(ctx, nil, o); err != nil {
		return false, err
	}
	metrics.OrdersReconciledTotal.Inc()
	return true, nil
}

// CancelAndRefund refunds the order's charge and cancels it. Forbidden for
// orders already completed, canceled or refunded.
func (e *Engine) CancelAndRefund(ctx context.Context, orderID uint64) (*model.Order, error) {
	order, err := e.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.Refundable() {
		return nil, fmt.Errorf("%w: status is %s", ErrNotRefundable, order.Status)
	}
	wallet, err := e.ledger.GetOrCreateWallet(ctx, order.UserID)
	if err != nil {
		return nil, err
	}
	var balanceAfter decimal.Decimal
	err = e.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		_, newBal, err := e.ledger.CreditTx(ctx, tx, wallet.ID, order.Charge,
			model.TxTypeRefund, fmt.Sprintf("Admin refund: Order #%d", order.ID), order.ChargeTransactionID)
		if err != nil {
			return err
		}
		order.Status = model.OrderCanceled
		balanceAfter = newBal
		return e.repo.SaveOrder(ctx, tx, order)
	})
	if err != nil {
		return nil, err
	}
	e.ledger.RefreshBalanceCache(ctx, wallet.ID, balanceAfter)
	return order, nil
}

// Retry resubmits an order that never reached the provider. The original
// charge stands; no second charge is taken.
func (e *Engine) Retry(ctx context.Context, orderID uint64) (*model.Order, error) {
	order, err := e.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.ProviderOrderID != "" || (order.Status != model.OrderPending && order.Status != model.OrderFailed) {
		return nil, fmt.Errorf("%w: already submitted or not in a retryable state", ErrNotRetryable)
	}
	svc, err := e.repo.GetService(ctx, order.ServiceID)
	if err != nil {
		return nil, err
	}
	providerOrderID, err := e.provider.CreateOrder(ctx, svc.ProviderID, order.Link, order.Quantity, "", order.UserID, &order.ID)
	if err != nil {
		return nil, err
	}
	order.ProviderOrderID = providerOrderID
	order.Status = model.OrderProcessing
	if err := e.repo.SaveOrder(ctx, nil, order); err != nil {
		return nil, err
	}
	return order, nil
}

// SweepOrphanedCharges resolves the crash window between charge and provider
// submission: PENDING orders with no provider order id older than maxAge are
// refunded and failed.
func (e *Engine) SweepOrphanedCharges(ctx context.Context, maxAge time.Duration) (int, error) {
	orphans, err := e.repo.OrphanedOrders(ctx, time.Now().Add(-maxAge))
	if err != nil {
		return 0, err
	}
	swept := 0
	for i := range orphans {
		o := &orphans[i]
		wallet, err := e.ledger.GetOrCreateWallet(ctx, o.UserID)
		if err != nil {
			e.log.Errorw("orphan sweep: wallet lookup failed", "order", o.ID, "err", err)
			continue
		}
		if err := e.compensate(ctx, wallet.ID, o,
			fmt.Sprintf("Refund - orphaned charge: Order #%d", o.ID)); err != nil {
			e.log.Errorw("orphan sweep: refund failed", "order", o.ID, "err", err)
			continue
		}
		e.log.Infow("orphaned charge refunded", "order", o.ID, "charge", o.Charge)
		swept++
	}
	return swept, nil
}

// MapProviderStatus maps an upstream status string to the internal enum.
// Matching is case-insensitive; unknown strings report ok=false.
func MapProviderStatus(s string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending":
		return model.OrderPending, true
	case "processing":
		return model.OrderProcessing, true
	case "in progress":
		return model.OrderInProgress, true
	case "completed":
		return model.OrderCompleted, true
	case "partial":
		return model.OrderPartial, true
	case "canceled", "cancelled":
		return model.OrderCanceled, true
	case "refunded":
		return model.OrderRefunded, true
	case "failed":
		return model.OrderFailed, true
	}
	return "", false
}
