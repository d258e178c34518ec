package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction types.
const (
	TxTypeDeposit = "deposit"
	TxTypeCharge  = "charge"
	TxTypeRefund  = "refund"
	TxTypeBonus   = "bonus"
)

// Transaction statuses. A transaction is immutable once it reaches a
// terminal status; the only permitted transition is pending -> success|failed.
const (
	TxStatusPending = "pending"
	TxStatusSuccess = "success"
	TxStatusFailed  = "failed"
)

// Transaction is one ledger entry. Amount is signed: deposits, refunds and
// bonuses are positive, charges negative. PaymentReference is the idempotency
// key for gateway deposits and is globally unique when set.
type Transaction struct {
	ID                   uint64          `gorm:"primaryKey" json:"id"`
	WalletID             uint64          `gorm:"not null;index" json:"wallet_id"`
	Type                 string          `gorm:"size:20;not null" json:"type"`
	Amount               decimal.Decimal `gorm:"type:numeric(12,4);not null" json:"amount"`
	Description          string          `gorm:"size:255" json:"description"`
	BalanceAfter         decimal.Decimal `gorm:"type:numeric(12,4);not null" json:"balance_after"`
	Status               string          `gorm:"size:20;not null;default:'success'" json:"status"`
	PaymentReference     *string         `gorm:"size:100;uniqueIndex" json:"payment_reference,omitempty"`
	PaymentGateway       string          `gorm:"size:20" json:"payment_gateway,omitempty"`
	RelatedTransactionID *uint64         `json:"related_transaction_id,omitempty"`
	CreatedAt            time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (Transaction) TableName() string { return "transaction" }
