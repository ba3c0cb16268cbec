package fraud

import (
	"time"

	"partner-incentives/services/recipient"
)

// ReferralCheck is the input of one referral validation from buyer onboarding.
type ReferralCheck struct {
	ReferrerPhone string `json:"referrer_phone"`
	BuyerPhone    string `json:"buyer_phone"`
	ReferralCode  string `json:"referral_code"`
}

// ReferralResult is what the onboarding flow sees. Invalid referrals are not
// errors; Reason says why.
type ReferralResult struct {
	Valid      bool                 `json:"valid"`
	Reason     string               `json:"reason,omitempty"`
	FraudFlag  *recipient.FraudFlag `json:"fraud_flag,omitempty"`
	ReferrerID string               `json:"referrer_id,omitempty"`
	LinkID     string               `json:"link_id,omitempty"`
}

// ReferralAttempt is the audit row written for every validation.
type ReferralAttempt struct {
	AttemptID     string             `gorm:"column:attempt_id;primaryKey" json:"attempt_id"`
	ReferralCode  string             `gorm:"column:referral_code;index;not null" json:"referral_code"`
	ReferrerID    string             `gorm:"column:referrer_id;index" json:"referrer_id,omitempty"`
	LinkID        string             `gorm:"column:link_id" json:"link_id,omitempty"`
	BuyerPhone    string             `gorm:"column:buyer_phone;index;not null" json:"buyer_phone"`
	ReferrerPhone string             `gorm:"column:referrer_phone" json:"referrer_phone,omitempty"`
	Valid         bool               `gorm:"column:valid;not null" json:"valid"`
	FlagType      recipient.FlagType `gorm:"column:flag_type;type:varchar(32)" json:"flag_type,omitempty"`
	Reason        string             `gorm:"column:reason" json:"reason,omitempty"`
	CreatedAt     time.Time          `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (ReferralAttempt) TableName() string { return "referral_attempts" }
