package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is the only settlement currency the platform supports.
const DefaultCurrency = "NGN"

// Wallet holds a user's balance. The balance is mutated only by the ledger,
// always under a row lock, and must equal the sum of all SUCCESS transaction
// amounts for the wallet.
type Wallet struct {
	ID        uint64          `gorm:"primaryKey" json:"id"`
	UserID    string          `gorm:"size:64;uniqueIndex;not null" json:"user_id"`
	Balance   decimal.Decimal `gorm:"type:numeric(12,4);not null;default:'0'" json:"balance"`
	Currency  string          `gorm:"size:3;not null;default:'NGN'" json:"currency"`
	Version   uint64          `gorm:"not null;default:0" json:"-"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Wallet) TableName() string { return "wallet" }
