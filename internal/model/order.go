package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order statuses. COMPLETED, CANCELED, REFUNDED and FAILED are terminal.
const (
	OrderPending    = "pending"
	OrderProcessing = "processing"
	OrderInProgress = "in_progress"
	OrderCompleted  = "completed"
	OrderPartial    = "partial"
	OrderCanceled   = "canceled"
	OrderRefunded   = "refunded"
	OrderFailed     = "failed"
)

// ActiveOrderStatuses are the states still worth reconciling against the
// provider.
var ActiveOrderStatuses = []string{OrderPending, OrderProcessing, OrderInProgress}

// Order is a placed SMM order. Charge and the rate snapshots are fixed at
// creation time and never recomputed; ChargeTransactionID links the order to
// the ledger entry that paid for it.
type Order struct {
	ID                  uint64          `gorm:"primaryKey" json:"id"`
	UserID              string          `gorm:"size:64;not null;index" json:"user_id"`
	ServiceID           uint64          `gorm:"not null" json:"service_id"`
	ProviderOrderID     string          `gorm:"size:100" json:"provider_order_id"`
	Link                string          `gorm:"size:500;not null" json:"link"`
	Quantity            int             `gorm:"not null" json:"quantity"`
	StartCount          *int            `json:"start_count,omitempty"`
	Remains             *int            `json:"remains,omitempty"`
	ProviderRate        decimal.Decimal `gorm:"type:numeric(12,4);not null" json:"provider_rate"`
	UserRate            decimal.Decimal `gorm:"type:numeric(12,4);not null" json:"user_rate"`
	Charge              decimal.Decimal `gorm:"type:numeric(12,4);not null" json:"charge"`
	Profit              decimal.Decimal `gorm:"type:numeric(12,4);not null;default:'0'" json:"profit"`
	Currency            string          `gorm:"size:3;not null;default:'NGN'" json:"currency"`
	Status              string          `gorm:"size:20;not null;default:'pending';index" json:"status"`
	ChargeTransactionID *uint64         `json:"charge_transaction_id,omitempty"`
	StatusUpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"status_updated_at"`
	CreatedAt           time.Time       `gorm:"autoCreateTime" json:"created_at"`
	CompletedAt         *time.Time      `json:"completed_at,omitempty"`
}

func (Order) TableName() string { return "order" }

// Refundable reports whether an admin cancel-and-refund may touch the order.
func (o *Order) Refundable() bool {
	switch o.Status {
	case OrderCompleted, OrderCanceled, OrderRefunded:
		return false
	}
	return true
}
