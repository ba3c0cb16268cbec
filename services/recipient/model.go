package recipient

import (
	"time"
)

// Type is the role a recipient plays in a mortgage case.
type Type string

const (
	TypeBuyer    Type = "BUYER"
	TypeReferrer Type = "REFERRER"
	TypeLawyer   Type = "LAWYER"
)

func (t Type) Valid() bool {
	switch t {
	case TypeBuyer, TypeReferrer, TypeLawyer:
		return true
	}
	return false
}

type ReferrerStatus string

const (
	ReferrerPending   ReferrerStatus = "PENDING"
	ReferrerActive    ReferrerStatus = "ACTIVE"
	ReferrerSuspended ReferrerStatus = "SUSPENDED"
	ReferrerBlocked   ReferrerStatus = "BLOCKED"
)

type LawyerStatus string

const (
	LawyerPending  LawyerStatus = "PENDING"
	LawyerVerified LawyerStatus = "VERIFIED"
	LawyerActive   LawyerStatus = "ACTIVE"
	LawyerInactive LawyerStatus = "INACTIVE"
)

// BankAccount is a payout destination registered by a recipient.
type BankAccount struct {
	BankName          string `gorm:"column:bank_name" json:"bank_name,omitempty"`
	BankAccountNumber string `gorm:"column:bank_account_number" json:"bank_account_number,omitempty"`
	BankAccountHolder string `gorm:"column:bank_account_holder" json:"bank_account_holder,omitempty"`
}

type Referrer struct {
	ReferrerID          string         `gorm:"column:referrer_id;primaryKey" json:"referrer_id"`
	Name                string         `gorm:"column:name;not null" json:"name"`
	Phone               string         `gorm:"column:phone;index;not null" json:"phone"`
	Email               string         `gorm:"column:email" json:"email,omitempty"`
	ReferralCode        string         `gorm:"column:referral_code;uniqueIndex;not null" json:"referral_code"`
	Status              ReferrerStatus `gorm:"column:status;type:varchar(20);index;not null" json:"status"`
	TotalReferrals      int64          `gorm:"column:total_referrals;not null;default:0" json:"total_referrals"`
	SuccessfulReferrals int64          `gorm:"column:successful_referrals;not null;default:0" json:"successful_referrals"`
	RiskScore           int            `gorm:"column:risk_score;not null;default:0" json:"risk_score"`
	BankAccount         `gorm:"embedded"`
	VerifiedBy          string     `gorm:"column:verified_by" json:"verified_by,omitempty"`
	VerifiedAt          *time.Time `gorm:"column:verified_at" json:"verified_at,omitempty"`
	SuspendedAt         *time.Time `gorm:"column:suspended_at" json:"suspended_at,omitempty"`
	BlockedAt           *time.Time `gorm:"column:blocked_at" json:"blocked_at,omitempty"`
	StatusReason        string     `gorm:"column:status_reason" json:"status_reason,omitempty"`
	CreatedAt           time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Referrer) TableName() string { return "referrers" }

type Lawyer struct {
	LawyerID    string       `gorm:"column:lawyer_id;primaryKey" json:"lawyer_id"`
	Name        string       `gorm:"column:name;not null" json:"name"`
	Firm        string       `gorm:"column:firm" json:"firm,omitempty"`
	BarNumber   string       `gorm:"column:bar_number;uniqueIndex;not null" json:"bar_number"`
	Phone       string       `gorm:"column:phone" json:"phone,omitempty"`
	Email       string       `gorm:"column:email" json:"email,omitempty"`
	Status      LawyerStatus `gorm:"column:status;type:varchar(20);index;not null" json:"status"`
	BankAccount `gorm:"embedded"`
	VerifiedBy  string     `gorm:"column:verified_by" json:"verified_by,omitempty"`
	VerifiedAt  *time.Time `gorm:"column:verified_at" json:"verified_at,omitempty"`
	ActivatedAt *time.Time `gorm:"column:activated_at" json:"activated_at,omitempty"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Lawyer) TableName() string { return "lawyers" }

// ReferralLink is a shareable code owned by a referrer, optionally scoped to a
// developer or project.
type ReferralLink struct {
	LinkID          string     `gorm:"column:link_id;primaryKey" json:"link_id"`
	ReferrerID      string     `gorm:"column:referrer_id;index;not null" json:"referrer_id"`
	Code            string     `gorm:"column:code;uniqueIndex;not null" json:"code"`
	DeveloperID     string     `gorm:"column:developer_id" json:"developer_id,omitempty"`
	ProjectID       string     `gorm:"column:project_id" json:"project_id,omitempty"`
	ClickCount      int64      `gorm:"column:click_count;not null;default:0" json:"click_count"`
	ConversionCount int64      `gorm:"column:conversion_count;not null;default:0" json:"conversion_count"`
	IsActive        bool       `gorm:"column:is_active;not null" json:"is_active"`
	ExpiresAt       *time.Time `gorm:"column:expires_at" json:"expires_at,omitempty"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (ReferralLink) TableName() string { return "referral_links" }

// Usable reports whether the link can still attribute referrals at now.
func (l *ReferralLink) Usable(now time.Time) bool {
	if !l.IsActive {
		return false
	}
	return l.ExpiresAt == nil || now.Before(*l.ExpiresAt)
}

// FraudFlag is append-only; resolution is recorded in place, rows are never deleted.
type FraudFlag struct {
	FlagID         string     `gorm:"column:flag_id;primaryKey" json:"flag_id"`
	ReferrerID     string     `gorm:"column:referrer_id;index;not null" json:"referrer_id"`
	Type           FlagType   `gorm:"column:type;type:varchar(32);not null" json:"type"`
	Severity       Severity   `gorm:"column:severity;type:varchar(16);not null" json:"severity"`
	Details        string     `gorm:"column:details;type:text" json:"details,omitempty"`
	DetectedAt     time.Time  `gorm:"column:detected_at;not null" json:"detected_at"`
	Resolved       bool       `gorm:"column:resolved;not null;default:false" json:"resolved"`
	ResolvedBy     string     `gorm:"column:resolved_by" json:"resolved_by,omitempty"`
	ResolvedAt     *time.Time `gorm:"column:resolved_at" json:"resolved_at,omitempty"`
	ResolutionNote string     `gorm:"column:resolution_note" json:"resolution_note,omitempty"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (FraudFlag) TableName() string { return "fraud_flags" }

// CaseAssignment pins the recipient of a given type for one case.
type CaseAssignment struct {
	CaseID        string    `gorm:"column:case_id;primaryKey" json:"case_id"`
	RecipientType Type      `gorm:"column:recipient_type;primaryKey;type:varchar(16)" json:"recipient_type"`
	RecipientID   string    `gorm:"column:recipient_id;not null" json:"recipient_id"`
	AssignedBy    string    `gorm:"column:assigned_by" json:"assigned_by,omitempty"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (CaseAssignment) TableName() string { return "case_assignments" }
