package milestone

import (
	"partner-incentives/services/award"
)

// MilestoneEvent is one workflow milestone reached by a case.
type MilestoneEvent struct {
	CaseID       string         `json:"case_id"`
	Trigger      string         `json:"trigger"`
	ProofEventID string         `json:"proof_event_id,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// SkipReason says why a matching rule did not issue an award.
type SkipReason string

const (
	SkipConditionNotMet     SkipReason = "CONDITION_NOT_MET"
	SkipConditionError      SkipReason = "CONDITION_ERROR"
	SkipRecipientUnresolved SkipReason = "RECIPIENT_UNRESOLVED"
	SkipCampaignNotFound    SkipReason = "CAMPAIGN_NOT_FOUND"
	SkipCampaignNotActive   SkipReason = "CAMPAIGN_NOT_ACTIVE"
	SkipInsufficientBudget  SkipReason = "INSUFFICIENT_BUDGET"
	SkipCaseCapReached      SkipReason = "CASE_CAP_REACHED"
	SkipRecipientCapReached SkipReason = "RECIPIENT_CAP_REACHED"
	SkipTotalCapReached     SkipReason = "TOTAL_CAP_REACHED"
	SkipDuplicateProofEvent SkipReason = "DUPLICATE_PROOF_EVENT"
)

type Skip struct {
	RuleID string     `json:"rule_id"`
	Reason SkipReason `json:"reason"`
}

type Blocked struct {
	ForbiddenTrigger bool `json:"forbidden_trigger"`
}

// EvaluationResult reports what one milestone did. TriggeredRules lists the
// rules that issued an award; every other matching rule appears in Skipped.
type EvaluationResult struct {
	Evaluated      bool           `json:"evaluated"`
	TriggeredRules []string       `json:"triggered_rules"`
	AwardsIssued   []*award.Award `json:"awards_issued"`
	Skipped        []Skip         `json:"skipped,omitempty"`
	Blocked        *Blocked       `json:"blocked,omitempty"`
}
