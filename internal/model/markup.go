package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Markup rule levels, narrowest first. Resolution precedence is
// service > category > platform > global.
const (
	MarkupLevelGlobal   = "global"
	MarkupLevelPlatform = "platform"
	MarkupLevelCategory = "category"
	MarkupLevelService  = "service"
)

// MarkupRule turns a provider rate into a user rate. Platform rules match by
// platform name, category rules by raw provider category name, service rules
// by local service id. Percentage is e.g. 20.00 for +20%.
type MarkupRule struct {
	ID            uint64          `gorm:"primaryKey" json:"id"`
	Name          string          `gorm:"size:100;not null" json:"name"`
	Level         string          `gorm:"size:20;not null" json:"level"`
	Platform      string          `gorm:"size:50" json:"platform,omitempty"`
	CategoryName  string          `gorm:"size:100" json:"category_name,omitempty"`
	ServiceID     *uint64         `json:"service_id,omitempty"`
	Percentage    decimal.Decimal `gorm:"type:numeric(5,2);not null;default:'0'" json:"percentage"`
	FixedAddition decimal.Decimal `gorm:"type:numeric(12,4);not null;default:'0'" json:"fixed_addition"`
	Priority      int             `gorm:"not null;default:0" json:"priority"`
	IsActive      bool            `gorm:"not null;default:true" json:"is_active"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (MarkupRule) TableName() string { return "markup_rule" }
