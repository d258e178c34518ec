// Package ledger owns wallet balances and the transaction log. Every
// balance mutation runs in one database transaction, takes the wallet row
// lock first, writes exactly one transaction row, and never calls out to an
// external API while the lock is held.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/0xRedwolf/caryvn-backend/internal/model"
	"github.com/0xRedwolf/caryvn-backend/internal/repo"
)

var (
	// ErrInvalidAmount means non-positive amount passed.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrInsufficientFunds is returned by Charge before any side effect.
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// Ledger glues wallet business logic and the repository.
type Ledger struct {
	repo repo.RepositoryInterface
	log  *zap.SugaredLogger
}

// New returns a Ledger.
func New(r repo.RepositoryInterface, logger *zap.SugaredLogger) *Ledger {
	return &Ledger{repo: r, log: logger}
}

// GetOrCreateWallet returns the user's wallet, creating it on first use.
func (l *Ledger) GetOrCreateWallet(ctx context.Context, userID string) (*model.Wallet, error) {
	return l.repo.GetOrCreateWallet(ctx, userID)
}

// Deposit credits the wallet immediately (admin adjustment, non-gateway
// credit) and records a SUCCESS deposit transaction.
func (l *Ledger) Deposit(ctx context.Context, walletID uint64, amt decimal.Decimal, description string) (decimal.Decimal, error) {
	return l.credit(ctx, walletID, amt, model.TxTypeDeposit, description, nil)
}

// Bonus credits the wallet with a bonus transaction.
func (l *Ledger) Bonus(ctx context.Context, walletID uint64, amt decimal.Decimal, description string) (decimal.Decimal, error) {
	return l.credit(ctx, walletID, amt, model.TxTypeBonus, description, nil)
}

// Refund credits the wallet, reversing a prior charge. relatedID links the
// refund to the charge transaction it compensates.
func (l *Ledger) Refund(ctx context.Context, walletID uint64, amt decimal.Decimal, description string, relatedID *uint64) (decimal.Decimal, error) {
	return l.credit(ctx, walletID, amt, model.TxTypeRefund, description, relatedID)
}

func (l *Ledger) credit(ctx context.Context, walletID uint64, amt decimal.Decimal, txType, description string, relatedID *uint64) (decimal.Decimal, error) {
	if amt.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, ErrInvalidAmount
	}
	var finalBal decimal.Decimal
	err := l.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		_, bal, err := l.CreditTx(ctx, tx, walletID, amt, txType, description, relatedID)
		if err != nil {
			return err
		}
		finalBal = bal
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	l.cacheBalance(ctx, walletID, finalBal)
	return finalBal, nil
}

// CreditTx performs a credit inside an already-open transaction. Used by the
// order engine to keep a compensating refund atomic with the order update.
func (l *Ledger) CreditTx(ctx context.Context, tx *gorm.DB, walletID uint64, amt decimal.Decimal, txType, description string, relatedID *uint64) (*model.Transaction, decimal.Decimal, error) {
	if amt.LessThanOrEqual(decimal.Zero) {
		return nil, decimal.Zero, ErrInvalidAmount
	}
	w, err := l.repo.GetWalletForUpdate(ctx, tx, walletID)
	if err != nil {
		return nil, decimal.Zero, err
	}
	newBal := w.Balance.Add(amt)
	if err := l.repo.UpdateWallet(ctx, tx, walletID, newBal, w.Version); err != nil {
		return nil, decimal.Zero, err
	}
	t := &model.Transaction{
		WalletID:             walletID,
		Type:                 txType,
		Amount:               amt,
		Description:          description,
		BalanceAfter:         newBal,
		Status:               model.TxStatusSuccess,
		RelatedTransactionID: relatedID,
	}
	if err := l.repo.CreateTransaction(ctx, tx, t); err != nil {
		return nil, decimal.Zero, err
	}
	return t, newBal, nil
}

// Charge debits the wallet, failing with ErrInsufficientFunds before any
// side effect when the balance does not cover the amount.
func (l *Ledger) Charge(ctx context.Context, walletID uint64, amt decimal.Decimal, description string) (*model.Transaction, decimal.Decimal, error) {
	var (
		finalBal decimal.Decimal
		charge   *model.Transaction
	)
	err := l.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		t, bal, err := l.ChargeTx(ctx, tx, walletID, amt, description)
		if err != nil {
			return err
		}
		charge, finalBal = t, bal
		return nil
	})
	if err != nil {
		return nil, decimal.Zero, err
	}
	l.cacheBalance(ctx, walletID, finalBal)
	return charge, finalBal, nil
}

// ChargeTx performs a charge inside an already-open transaction.
func (l *Ledger) ChargeTx(ctx context.Context, tx *gorm.DB, walletID uint64, amt decimal.Decimal, description string) (*model.Transaction, decimal.Decimal, error) {
	if amt.LessThanOrEqual(decimal.Zero) {
		return nil, decimal.Zero, ErrInvalidAmount
	}
	w, err := l.repo.GetWalletForUpdate(ctx, tx, walletID)
	if err != nil {
		return nil, decimal.Zero, err
	}
	if w.Balance.LessThan(amt) {
		return nil, decimal.Zero, ErrInsufficientFunds
	}
	newBal := w.Balance.Sub(amt)
	if err := l.repo.UpdateWallet(ctx, tx, walletID, newBal, w.Version); err != nil {
		return nil, decimal.Zero, err
	}
	t := &model.Transaction{
		WalletID:     walletID,
		Type:         model.TxTypeCharge,
		Amount:       amt.Neg(),
		Description:  description,
		BalanceAfter: newBal,
		Status:       model.TxStatusSuccess,
	}
	if err := l.repo.CreateTransaction(ctx, tx, t); err != nil {
		return nil, decimal.Zero, err
	}
	return t, newBal, nil
}

// CreatePendingDeposit records a deposit awaiting gateway confirmation. The
// balance is untouched; the unique payment reference is the idempotency key.
func (l *Ledger) CreatePendingDeposit(ctx context.Context, walletID uint64, amt decimal.Decimal, reference, gateway, description string) (*model.Transaction, error) {
	if amt.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	w, err := l.repo.GetWallet(ctx, walletID)
	if err != nil {
		return nil, err
	}
	t := &model.Transaction{
		WalletID:         walletID,
		Type:             model.TxTypeDeposit,
		Amount:           amt,
		Description:      description,
		BalanceAfter:     w.Balance, // not yet credited
		Status:           model.TxStatusPending,
		PaymentReference: &reference,
		PaymentGateway:   gateway,
	}
	if err := l.repo.CreateTransaction(ctx, l.repo.DB(ctx), t); err != nil {
		return nil, err
	}
	return t, nil
}

// ConfirmDeposit settles a pending deposit, crediting the wallet exactly
// once no matter how many confirmation paths race. It locks the wallet row,
// then the transaction row (same ordering as Charge/Refund, so the two can
// never deadlock), re-reads the status under the lock and no-ops when the
// transaction is already settled.
func (l *Ledger) ConfirmDeposit(ctx context.Context, transactionID uint64) (decimal.Decimal, error) {
	t, err := l.repo.GetTransaction(ctx, transactionID)
	if err != nil {
		return decimal.Zero, err
	}
	walletID := t.WalletID

	var finalBal decimal.Decimal
	err = l.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		w, err := l.repo.GetWalletForUpdate(ctx, tx, walletID)
		if err != nil {
			return err
		}
		locked, err := l.repo.GetTransactionForUpdate(ctx, tx, transactionID)
		if err != nil {
			return err
		}
		if locked.Status != model.TxStatusPending {
			// Already settled by the other confirmation path.
			finalBal = w.Balance
			return nil
		}
		newBal := w.Balance.Add(locked.Amount)
		if err := l.repo.UpdateWallet(ctx, tx, walletID, newBal, w.Version); err != nil {
			return err
		}
		res := tx.WithContext(ctx).Model(&model.Transaction{}).
			Where("id = ?", transactionID).
			Updates(map[string]interface{}{
				"status":        model.TxStatusSuccess,
				"balance_after": newBal,
			})
		if res.Error != nil {
			return res.Error
		}
		payload, _ := json.Marshal(map[string]interface{}{
			"wallet_id": walletID,
			"amount":    locked.Amount,
			"balance":   newBal,
			"reference": locked.PaymentReference,
		})
		evt := &model.OutboxEvent{
			Aggregate: "Wallet", AggregateID: walletID,
			EventType: model.EventDepositConfirmed, Payload: string(payload),
		}
		if err := l.repo.CreateOutboxEvent(ctx, tx, evt); err != nil {
			return err
		}
		finalBal = newBal
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	l.cacheBalance(ctx, walletID, finalBal)
	return finalBal, nil
}

// FailDeposit moves a pending deposit to FAILED. No balance effect; settled
// transactions are left alone.
func (l *Ledger) FailDeposit(ctx context.Context, transactionID uint64) error {
	return l.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := l.repo.GetTransactionForUpdate(ctx, tx, transactionID)
		if err != nil {
			return err
		}
		if locked.Status != model.TxStatusPending {
			return nil
		}
		return tx.WithContext(ctx).Model(&model.Transaction{}).
			Where("id = ?", transactionID).
			Update("status", model.TxStatusFailed).Error
	})
}

// Balance returns the wallet balance, preferring the cache.
func (l *Ledger) Balance(ctx context.Context, walletID uint64) (decimal.Decimal, error) {
	if bal, err := l.repo.GetCachedBalance(ctx, walletID); err == nil {
		return bal, nil
	}
	w, err := l.repo.GetWallet(ctx, walletID)
	if err != nil {
		return decimal.Zero, err
	}
	l.cacheBalance(ctx, walletID, w.Balance)
	return w.Balance, nil
}

// History fetches recent transactions, newest first.
func (l *Ledger) History(ctx context.Context, walletID uint64, limit int, since time.Time) ([]model.Transaction, error) {
	return l.repo.ListTransactions(ctx, walletID, limit, since)
}

// RefreshBalanceCache updates the cached balance after a caller-managed
// transaction that used ChargeTx/CreditTx commits.
func (l *Ledger) RefreshBalanceCache(ctx context.Context, walletID uint64, bal decimal.Decimal) {
	l.cacheBalance(ctx, walletID, bal)
}

func (l *Ledger) cacheBalance(ctx context.Context, walletID uint64, bal decimal.Decimal) {
	if err := l.repo.CacheBalance(ctx, walletID, bal); err != nil {
		l.log.Warnf("cache balance wallet=%d: %v", walletID, err)
	}
}
