// Package trigger holds the closed vocabulary of workflow milestones that a
// rule may reward, and the set of milestones that must never be rewarded
// because they imply a loan-approval decision.
package trigger

import (
	"sort"
	"strings"
)

type Trigger string

const (
	CaseCreated           Trigger = "CASE_CREATED"
	DocumentUploaded      Trigger = "DOCUMENT_UPLOADED"
	FirstDocumentUploaded Trigger = "FIRST_DOCUMENT_UPLOADED"
	DocumentsCompleted    Trigger = "DOCUMENTS_COMPLETED"
	ConsentGranted        Trigger = "CONSENT_GRANTED"
	ApplicationSubmitted  Trigger = "APPLICATION_SUBMITTED"
	SubmissionAttested    Trigger = "SUBMISSION_ATTESTED"
	LawyerAssigned        Trigger = "LAWYER_ASSIGNED"
	SPASigned             Trigger = "SPA_SIGNED"
	ValuationCompleted    Trigger = "VALUATION_COMPLETED"
	ReferralConverted     Trigger = "REFERRAL_CONVERTED"
)

var allowed = map[Trigger]struct{}{
	CaseCreated:           {},
	DocumentUploaded:      {},
	FirstDocumentUploaded: {},
	DocumentsCompleted:    {},
	ConsentGranted:        {},
	ApplicationSubmitted:  {},
	SubmissionAttested:    {},
	LawyerAssigned:        {},
	SPASigned:             {},
	ValuationCompleted:    {},
	ReferralConverted:     {},
}

// forbidden triggers imply the lender's approval decision.
var forbidden = map[Trigger]struct{}{
	"LOAN_APPROVED":         {},
	"LOAN_APPROVAL":         {},
	"LOAN_DISBURSED":        {},
	"LOAN_OFFER_ACCEPTED":   {},
	"LETTER_OF_OFFER":       {},
	"BANK_APPROVED":         {},
	"CREDIT_APPROVED":       {},
	"APPROVAL_GRANTED":      {},
	"FINANCING_APPROVED":    {},
	"MORTGAGE_APPROVED":     {},
	"LOAN_APPROVED_BY_BANK": {},
}

// Normalize upper-cases and trims s.
func Normalize(s string) Trigger {
	return Trigger(strings.ToUpper(strings.TrimSpace(s)))
}

// IsForbidden reports whether s names a forbidden trigger, ignoring case.
func IsForbidden(s string) bool {
	_, ok := forbidden[Normalize(s)]
	return ok
}

// IsAllowed reports whether s is on the allow-list, ignoring case. A forbidden
// trigger is never allowed.
func IsAllowed(s string) bool {
	t := Normalize(s)
	if _, bad := forbidden[t]; bad {
		return false
	}
	_, ok := allowed[t]
	return ok
}

func Allowed() []Trigger {
	return sorted(allowed)
}

func Forbidden() []Trigger {
	return sorted(forbidden)
}

func sorted(m map[Trigger]struct{}) []Trigger {
	out := make([]Trigger, 0, len(m))
	for t := range m {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
