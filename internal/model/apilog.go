package model

import "time"

// Provider API actions.
const (
	APIActionServices = "services"
	APIActionBalance  = "balance"
	APIActionAdd      = "add"
	APIActionStatus   = "status"
)

// APILog is the audit record for one provider call (all retry attempts
// collapse into a single record). RequestData never contains the API key.
type APILog struct {
	ID           uint64    `gorm:"primaryKey" json:"id"`
	Action       string    `gorm:"size:20;not null" json:"action"`
	RequestData  string    `gorm:"type:jsonb;not null;default:'{}'" json:"request_data"`
	ResponseData string    `gorm:"type:jsonb;not null;default:'{}'" json:"response_data"`
	ResponseCode *int      `json:"response_code,omitempty"`
	Error        string    `gorm:"type:text" json:"error,omitempty"`
	DurationMS   int64     `json:"duration_ms"`
	UserID       string    `gorm:"size:64" json:"user_id,omitempty"`
	OrderID      *uint64   `json:"order_id,omitempty"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (APILog) TableName() string { return "api_log" }
