package award

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
)

type EntryType string

const (
	EntryDebit  EntryType = "DEBIT"
	EntryCredit EntryType = "CREDIT"
)

// BudgetEntry is one movement of a campaign's budget. Entries of a campaign
// form a hash chain ordered by Sequence.
type BudgetEntry struct {
	EntryID      string    `gorm:"column:entry_id;primaryKey" json:"entry_id"`
	CampaignID   string    `gorm:"column:campaign_id;uniqueIndex:idx_budget_entry_seq;not null" json:"campaign_id"`
	Sequence     int64     `gorm:"column:sequence;uniqueIndex:idx_budget_entry_seq;not null" json:"sequence"`
	AwardID      string    `gorm:"column:award_id;index;not null" json:"award_id"`
	Type         EntryType `gorm:"column:type;type:varchar(8);not null" json:"type"`
	Amount       int64     `gorm:"column:amount;not null" json:"amount"`
	BalanceAfter int64     `gorm:"column:balance_after;not null" json:"balance_after"`
	Actor        string    `gorm:"column:actor" json:"actor,omitempty"`
	Reason       string    `gorm:"column:reason" json:"reason,omitempty"`
	PreviousHash string    `gorm:"column:previous_hash" json:"previous_hash,omitempty"`
	Hash         string    `gorm:"column:hash;not null" json:"hash"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (BudgetEntry) TableName() string { return "budget_entries" }

func (e *BudgetEntry) hashFields() map[string]string {
	return map[string]string{
		"entry_id":      e.EntryID,
		"campaign_id":   e.CampaignID,
		"sequence":      fmt.Sprintf("%d", e.Sequence),
		"award_id":      e.AwardID,
		"type":          string(e.Type),
		"amount":        fmt.Sprintf("%d", e.Amount),
		"balance_after": fmt.Sprintf("%d", e.BalanceAfter),
		"actor":         e.Actor,
		"reason":        e.Reason,
		"previous_hash": e.PreviousHash,
	}
}

// GenerateHash digests the entry's fields in key order.
func (e *BudgetEntry) GenerateHash() string {
	fields := e.hashFields()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, fields[k]))
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// VerifyChain reports whether entries, ordered by sequence, link up and hash
// to their stored values.
func VerifyChain(entries []*BudgetEntry) bool {
	var last string
	for i, e := range entries {
		if e.Sequence != int64(i+1) {
			return false
		}
		if e.PreviousHash != last || e.Hash != e.GenerateHash() {
			return false
		}
		last = e.Hash
	}
	return true
}

func formatAmount(v int64, currency string) string {
	return fmt.Sprintf("%d %s", v, currency)
}
