package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Service is a catalog entry cached from the SMM provider. UserRate is a
// projection recomputed by catalog sync; the provider_id is the upstream key.
type Service struct {
	ID           uint64          `gorm:"primaryKey" json:"id"`
	ProviderID   int64           `gorm:"uniqueIndex;not null" json:"provider_id"`
	Name         string          `gorm:"size:255;not null" json:"name"`
	CategoryName string          `gorm:"size:100" json:"category_name"`
	ProviderRate decimal.Decimal `gorm:"type:numeric(12,4);not null" json:"provider_rate"`
	UserRate     decimal.Decimal `gorm:"type:numeric(12,4);not null" json:"user_rate"`
	MinQuantity  int             `gorm:"not null;default:10" json:"min_quantity"`
	MaxQuantity  int             `gorm:"not null;default:10000" json:"max_quantity"`
	ServiceType  string          `gorm:"size:50;default:'Default'" json:"service_type"`
	HasRefill    bool            `gorm:"not null;default:false" json:"has_refill"`
	HasCancel    bool            `gorm:"not null;default:false" json:"has_cancel"`
	IsActive     bool            `gorm:"not null;default:true;index" json:"is_active"`
	LastSyncedAt time.Time       `gorm:"autoUpdateTime" json:"last_synced_at"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (Service) TableName() string { return "service" }

// Price returns the user-facing cost of a quantity at the cached rate.
func (s *Service) Price(quantity int) decimal.Decimal {
	return s.UserRate.Div(decimal.NewFromInt(1000)).Mul(decimal.NewFromInt(int64(quantity))).RoundBank(4)
}
