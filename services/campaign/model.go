package campaign

import (
	"time"

	"gorm.io/datatypes"
)

type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusActive    Status = "ACTIVE"
	StatusPaused    Status = "PAUSED"
	StatusExhausted Status = "EXHAUSTED"
	StatusExpired   Status = "EXPIRED"
	StatusCancelled Status = "CANCELLED"
)

// IsTerminal reports whether no further lifecycle transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusCancelled || s == StatusExpired
}

// Campaign is a developer-funded reward budget scoped to one project.
type Campaign struct {
	CampaignID            string         `gorm:"column:campaign_id;primaryKey" json:"campaign_id"`
	DeveloperID           string         `gorm:"column:developer_id;index;not null" json:"developer_id"`
	ProjectID             string         `gorm:"column:project_id;index;not null" json:"project_id"`
	Code                  string         `gorm:"column:code;uniqueIndex" json:"code"`
	Name                  string         `gorm:"column:name;type:varchar(255);not null" json:"name"`
	Description           string         `gorm:"column:description;type:text" json:"description,omitempty"`
	BudgetTotal           int64          `gorm:"column:budget_total;not null" json:"budget_total"`
	BudgetRemaining       int64          `gorm:"column:budget_remaining;not null" json:"budget_remaining"`
	Currency              string         `gorm:"column:currency;type:varchar(3);not null" json:"currency"`
	StartAt               *time.Time     `gorm:"column:start_at" json:"start_at,omitempty"`
	EndAt                 *time.Time     `gorm:"column:end_at" json:"end_at,omitempty"`
	MaxAwardsPerCase      *int           `gorm:"column:max_awards_per_case" json:"max_awards_per_case,omitempty"`
	MaxAwardsPerRecipient *int           `gorm:"column:max_awards_per_recipient" json:"max_awards_per_recipient,omitempty"`
	Status                Status         `gorm:"column:status;type:varchar(20);index;not null;default:'DRAFT'" json:"status"`
	CreatedBy             string         `gorm:"column:created_by" json:"created_by,omitempty"`
	ActivatedAt           *time.Time     `gorm:"column:activated_at" json:"activated_at,omitempty"`
	PausedAt              *time.Time     `gorm:"column:paused_at" json:"paused_at,omitempty"`
	ExhaustedAt           *time.Time     `gorm:"column:exhausted_at" json:"exhausted_at,omitempty"`
	ExpiredAt             *time.Time     `gorm:"column:expired_at" json:"expired_at,omitempty"`
	CancelledAt           *time.Time     `gorm:"column:cancelled_at" json:"cancelled_at,omitempty"`
	Metadata              datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`
	CreatedAt             time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Campaign) TableName() string { return "campaigns" }

// IsActive checks if campaign is currently active based on time range & status.
func (c *Campaign) IsActive(now time.Time) bool {
	if c.Status != StatusActive {
		return false
	}
	if c.StartAt != nil && now.Before(*c.StartAt) {
		return false
	}
	if c.EndAt != nil && now.After(*c.EndAt) {
		return false
	}
	return true
}

// Spent is the amount already committed to approved or paid awards.
func (c *Campaign) Spent() int64 {
	return c.BudgetTotal - c.BudgetRemaining
}
