package rule

import (
	"time"

	"partner-incentives/services/recipient"
	"partner-incentives/services/trigger"
)

type RewardType string

const (
	RewardCash    RewardType = "CASH"
	RewardVoucher RewardType = "VOUCHER"
	RewardPoints  RewardType = "POINTS"
)

func (t RewardType) Valid() bool {
	switch t {
	case RewardCash, RewardVoucher, RewardPoints:
		return true
	}
	return false
}

// Rule maps a workflow trigger to a reward for one recipient type inside a
// campaign. Rules are deactivated, never deleted.
type Rule struct {
	RuleID                string          `gorm:"column:rule_id;primaryKey" json:"rule_id"`
	CampaignID            string          `gorm:"column:campaign_id;index;not null" json:"campaign_id"`
	Name                  string          `gorm:"column:name;not null" json:"name"`
	Description           string          `gorm:"column:description" json:"description,omitempty"`
	Trigger               trigger.Trigger `gorm:"column:trigger_name;type:varchar(64);index;not null" json:"trigger"`
	RecipientType         recipient.Type  `gorm:"column:recipient_type;type:varchar(16);not null" json:"recipient_type"`
	RewardType            RewardType      `gorm:"column:reward_type;type:varchar(16);not null" json:"reward_type"`
	RewardAmount          int64           `gorm:"column:reward_amount;not null" json:"reward_amount"`
	Conditions            string          `gorm:"column:conditions;type:text" json:"conditions,omitempty"`
	MaxAwardsPerCase      *int            `gorm:"column:max_awards_per_case" json:"max_awards_per_case,omitempty"`
	MaxAwardsPerRecipient *int            `gorm:"column:max_awards_per_recipient" json:"max_awards_per_recipient,omitempty"`
	MaxTotalAwards        *int            `gorm:"column:max_total_awards" json:"max_total_awards,omitempty"`
	IsActive              bool            `gorm:"column:is_active;index;not null" json:"is_active"`
	CreatedBy             string          `gorm:"column:created_by" json:"created_by,omitempty"`
	DeactivatedBy         string          `gorm:"column:deactivated_by" json:"deactivated_by,omitempty"`
	DeactivatedAt         *time.Time      `gorm:"column:deactivated_at" json:"deactivated_at,omitempty"`
	CreatedAt             time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// TableName sets the table name for the Rule model.
func (Rule) TableName() string { return "rules" }
