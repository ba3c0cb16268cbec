package recipient

type FlagType string

const (
	FlagSelfReferral      FlagType = "SELF_REFERRAL"
	FlagDuplicateReferral FlagType = "DUPLICATE_REFERRAL"
	FlagRapidReferrals    FlagType = "RAPID_REFERRALS"
	FlagSuspiciousPattern FlagType = "SUSPICIOUS_PATTERN"
	FlagBankMismatch      FlagType = "BANK_MISMATCH"
	FlagFarmingSuspected  FlagType = "FARMING_SUSPECTED"
)

type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

const maxRiskScore = 100

// Points is the risk-score weight of one unresolved flag of this severity.
func (s Severity) Points() int {
	switch s {
	case SeverityCritical:
		return 40
	case SeverityHigh:
		return 25
	case SeverityMedium:
		return 15
	case SeverityLow:
		return 5
	}
	return 0
}

// FlagRule describes how a detection rule is weighted and whether it blocks
// the referrer on its own.
type FlagRule struct {
	Severity  Severity
	AutoBlock bool
}

var flagRules = map[FlagType]FlagRule{
	FlagSelfReferral:      {Severity: SeverityCritical, AutoBlock: true},
	FlagDuplicateReferral: {Severity: SeverityMedium},
	FlagRapidReferrals:    {Severity: SeverityHigh},
	FlagSuspiciousPattern: {Severity: SeverityMedium},
	FlagBankMismatch:      {Severity: SeverityHigh},
	FlagFarmingSuspected:  {Severity: SeverityCritical, AutoBlock: true},
}

// RuleFor returns the rule of t and whether t is a known flag type.
func RuleFor(t FlagType) (FlagRule, bool) {
	r, ok := flagRules[t]
	return r, ok
}

// RiskScore sums the severity points of unresolved flags, capped at 100.
func RiskScore(flags []*FraudFlag) int {
	score := 0
	for _, f := range flags {
		if f == nil || f.Resolved {
			continue
		}
		score += f.Severity.Points()
	}
	if score > maxRiskScore {
		return maxRiskScore
	}
	return score
}

// RequiresBlock reports whether any unresolved flag's type is auto-blocking.
func RequiresBlock(flags []*FraudFlag) (FlagType, bool) {
	for _, f := range flags {
		if f == nil || f.Resolved {
			continue
		}
		if rule, ok := flagRules[f.Type]; ok && rule.AutoBlock {
			return f.Type, true
		}
	}
	return "", false
}
