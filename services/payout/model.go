package payout

import (
	"time"

	"partner-incentives/services/recipient"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusApproved   Status = "APPROVED"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusRejected   Status = "REJECTED"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
)

var transitions = map[Status][]Status{
	StatusPending:    {StatusApproved, StatusRejected, StatusCancelled},
	StatusApproved:   {StatusProcessing, StatusRejected, StatusCancelled},
	StatusProcessing: {StatusCompleted, StatusFailed},
	StatusFailed:     {StatusProcessing},
}

func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type Method string

const (
	MethodBankTransfer Method = "BANK_TRANSFER"
	MethodEWallet      Method = "E_WALLET"
)

func (m Method) Valid() bool {
	return m == MethodBankTransfer || m == MethodEWallet
}

// Wallet is an e-wallet payout destination.
type Wallet struct {
	WalletProvider string `gorm:"column:wallet_provider" json:"wallet_provider,omitempty"`
	WalletID       string `gorm:"column:wallet_id" json:"wallet_id,omitempty"`
}

// PayoutRequest settles one APPROVED award. The award stays the source of
// truth for the amount owed.
type PayoutRequest struct {
	PayoutID      string         `gorm:"column:payout_id;primaryKey" json:"payout_id"`
	AwardID       string         `gorm:"column:award_id;uniqueIndex;not null" json:"award_id"`
	CampaignID    string         `gorm:"column:campaign_id;index;not null" json:"campaign_id"`
	RecipientID   string         `gorm:"column:recipient_id;index;not null" json:"recipient_id"`
	RecipientType recipient.Type `gorm:"column:recipient_type;type:varchar(16);not null" json:"recipient_type"`
	Amount        int64          `gorm:"column:amount;not null" json:"amount"`
	Currency      string         `gorm:"column:currency;type:varchar(3);not null" json:"currency"`
	Reference     string         `gorm:"column:reference;uniqueIndex;not null" json:"reference"`
	Method        Method         `gorm:"column:method;type:varchar(20);not null" json:"method"`

	recipient.BankAccount `gorm:"embedded"`
	Wallet                `gorm:"embedded"`

	Status            Status     `gorm:"column:status;type:varchar(16);index;not null" json:"status"`
	RequestedBy       string     `gorm:"column:requested_by;not null" json:"requested_by"`
	ApprovedBy        string     `gorm:"column:approved_by" json:"approved_by,omitempty"`
	ApprovedAt        *time.Time `gorm:"column:approved_at" json:"approved_at,omitempty"`
	RejectedBy        string     `gorm:"column:rejected_by" json:"rejected_by,omitempty"`
	RejectedAt        *time.Time `gorm:"column:rejected_at" json:"rejected_at,omitempty"`
	RejectionReason   string     `gorm:"column:rejection_reason" json:"rejection_reason,omitempty"`
	ProcessedBy       string     `gorm:"column:processed_by" json:"processed_by,omitempty"`
	ProcessedAt       *time.Time `gorm:"column:processed_at" json:"processed_at,omitempty"`
	CompletedAt       *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
	ExternalReference string     `gorm:"column:external_reference" json:"external_reference,omitempty"`
	FailedAt          *time.Time `gorm:"column:failed_at" json:"failed_at,omitempty"`
	FailureReason     string     `gorm:"column:failure_reason" json:"failure_reason,omitempty"`
	RetryCount        int        `gorm:"column:retry_count;not null;default:0" json:"retry_count"`
	MaxRetries        int        `gorm:"column:max_retries;not null" json:"max_retries"`
	CancelledBy       string     `gorm:"column:cancelled_by" json:"cancelled_by,omitempty"`
	CancelledAt       *time.Time `gorm:"column:cancelled_at" json:"cancelled_at,omitempty"`
	CreatedAt         time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (PayoutRequest) TableName() string { return "payout_requests" }

// DispatchPayload is the payout:dispatch task body.
type DispatchPayload struct {
	PayoutID string `json:"payout_id"`
	Attempt  int    `json:"attempt"`
}
