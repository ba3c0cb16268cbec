package award

import (
	"time"

	"partner-incentives/services/recipient"
	"partner-incentives/services/rule"
	"partner-incentives/services/trigger"

	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusVerified Status = "VERIFIED"
	StatusApproved Status = "APPROVED"
	StatusPaid     Status = "PAID"
	StatusRejected Status = "REJECTED"
	StatusClawback Status = "CLAWBACK"
)

// transitions lists every legal move. Anything else is an invalid status.
var transitions = map[Status][]Status{
	StatusPending:  {StatusVerified, StatusRejected},
	StatusVerified: {StatusApproved, StatusRejected},
	StatusApproved: {StatusPaid, StatusRejected},
	StatusPaid:     {StatusClawback},
}

// CanTransition reports whether an award may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Counted reports whether an award in status s counts against caps.
func (s Status) Counted() bool {
	return s != StatusRejected && s != StatusClawback
}

// Committed reports whether an award in status s holds campaign budget.
func (s Status) Committed() bool {
	return s == StatusApproved || s == StatusPaid
}

type Award struct {
	AwardID         string          `gorm:"column:award_id;primaryKey" json:"award_id"`
	RuleID          string          `gorm:"column:rule_id;index;not null" json:"rule_id"`
	CampaignID      string          `gorm:"column:campaign_id;index;not null" json:"campaign_id"`
	CaseID          string          `gorm:"column:case_id;index;not null" json:"case_id"`
	RecipientID     string          `gorm:"column:recipient_id;index;not null" json:"recipient_id"`
	RecipientType   recipient.Type  `gorm:"column:recipient_type;type:varchar(16);not null" json:"recipient_type"`
	RewardType      rule.RewardType `gorm:"column:reward_type;type:varchar(16);not null" json:"reward_type"`
	RewardAmount    int64           `gorm:"column:reward_amount;not null" json:"reward_amount"`
	Currency        string          `gorm:"column:currency;type:varchar(3);not null" json:"currency"`
	Status          Status          `gorm:"column:status;type:varchar(16);index;not null" json:"status"`
	Trigger         trigger.Trigger `gorm:"column:trigger_name;type:varchar(64);not null" json:"trigger"`
	ProofEventID    string          `gorm:"column:proof_event_id;index" json:"proof_event_id,omitempty"`
	Metadata        datatypes.JSON  `gorm:"column:metadata" json:"metadata,omitempty"`
	VerifiedBy      string          `gorm:"column:verified_by" json:"verified_by,omitempty"`
	VerifiedAt      *time.Time      `gorm:"column:verified_at" json:"verified_at,omitempty"`
	ApprovedBy      string          `gorm:"column:approved_by" json:"approved_by,omitempty"`
	ApprovedAt      *time.Time      `gorm:"column:approved_at" json:"approved_at,omitempty"`
	PaidAt          *time.Time      `gorm:"column:paid_at" json:"paid_at,omitempty"`
	PayoutReference string          `gorm:"column:payout_reference" json:"payout_reference,omitempty"`
	PayoutMethod    string          `gorm:"column:payout_method" json:"payout_method,omitempty"`
	RejectedBy      string          `gorm:"column:rejected_by" json:"rejected_by,omitempty"`
	RejectedAt      *time.Time      `gorm:"column:rejected_at" json:"rejected_at,omitempty"`
	RejectionReason string          `gorm:"column:rejection_reason" json:"rejection_reason,omitempty"`
	ClawedBackBy    string          `gorm:"column:clawed_back_by" json:"clawed_back_by,omitempty"`
	ClawedBackAt    *time.Time      `gorm:"column:clawed_back_at" json:"clawed_back_at,omitempty"`
	ClawbackReason  string          `gorm:"column:clawback_reason" json:"clawback_reason,omitempty"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Award) TableName() string { return "awards" }
