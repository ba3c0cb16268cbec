package milestone

import (
	"context"
	"strings"
	"time"

	"partner-incentives/pkg/config"
	"partner-incentives/pkg/db"
	"partner-incentives/pkg/db/option"
	"partner-incentives/pkg/errutil"
	"partner-incentives/pkg/featureflags"
	"partner-incentives/pkg/logger"
	"partner-incentives/pkg/repository"
	"partner-incentives/services/award"
	"partner-incentives/services/campaign"
	"partner-incentives/services/recipient"
	"partner-incentives/services/rule"
	"partner-incentives/services/trigger"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// maxAttempts bounds how often one rule is retried after a serialization
// conflict with a concurrent evaluation.
const maxAttempts = 3

// Rules is the read side of the rule store.
type Rules interface {
	ListActiveByTrigger(ctx context.Context, t trigger.Trigger) ([]*rule.Rule, error)
	Matches(r *rule.Rule, f rule.Facts) (bool, error)
}

// Ledger issues awards and answers cap queries inside the evaluator's
// transaction.
type Ledger interface {
	Issue(ctx context.Context, tx *gorm.DB, in award.IssueInput) (*award.Award, error)
	CountForCaps(ctx context.Context, tx *gorm.DB, ruleID, caseID, recipientID string) (award.Counts, error)
	HasProofEvent(ctx context.Context, tx *gorm.DB, ruleID, proofEventID string) (bool, error)
	Announce(ctx context.Context, a *award.Award)
}

type Service struct {
	db       *gorm.DB
	rules    Rules
	ledger   Ledger
	resolver recipient.Resolver
	campaign repository.Repository[campaign.Campaign]
	logger   *zap.Logger
	now      func() time.Time
	dedupe   bool
	flags    featureflags.FeatureFlag
}

type ServiceParams struct {
	fx.In

	DB       *gorm.DB
	Rules    Rules
	Ledger   Ledger
	Resolver recipient.Resolver
	Flags    featureflags.FeatureFlag `optional:"true"`
	Config   *config.Config           `optional:"true"`
	Logger   *zap.Logger              `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	log := p.Logger
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{
		db:       p.DB,
		rules:    p.Rules,
		ledger:   p.Ledger,
		resolver: p.Resolver,
		campaign: repository.ProvideStore[campaign.Campaign](p.DB),
		logger:   log.Named("milestone"),
		now:      func() time.Time { return time.Now().UTC() },
		flags:    p.Flags,
	}
	if p.Config != nil {
		s.dedupe = p.Config.Incentive.DedupeProofEvents
	}
	return s
}

func (s *Service) dedupeEnabled(ctx context.Context) bool {
	if s.flags == nil {
		return s.dedupe
	}
	return s.flags.Enabled(ctx, featureflags.DedupeProofEvents, s.dedupe)
}

// EvaluateMilestone runs every active rule listening on the event's trigger.
// A forbidden trigger stops the evaluation before any rule is read. Rules are
// independent: each one's guards and award insert commit in their own
// transaction, and a guard that fails skips that rule only.
func (s *Service) EvaluateMilestone(ctx context.Context, ev MilestoneEvent) (*EvaluationResult, error) {
	return s.evaluate(ctx, ev, s.dedupeEnabled(ctx))
}

// evaluate is EvaluateMilestone with the proof event dedupe decided by the
// caller. Redelivered tasks always dedupe so a retry after a partial failure
// only issues the rules that did not commit.
func (s *Service) evaluate(ctx context.Context, ev MilestoneEvent, dedupe bool) (*EvaluationResult, error) {
	log := logger.Ctx(ctx, s.logger).With(
		zap.String("case_id", ev.CaseID),
		zap.String("trigger", ev.Trigger),
		zap.String("proof_event_id", ev.ProofEventID),
	)

	if trigger.IsForbidden(ev.Trigger) {
		log.Warn("milestone blocked: forbidden trigger")
		evaluationsTotal.WithLabelValues("blocked").Inc()
		return &EvaluationResult{
			Evaluated:      false,
			TriggeredRules: []string{},
			AwardsIssued:   []*award.Award{},
			Blocked:        &Blocked{ForbiddenTrigger: true},
		}, nil
	}
	if strings.TrimSpace(ev.CaseID) == "" {
		return nil, errutil.ValidationFailed("invalid milestone event", nil,
			errutil.WithDetails(errutil.Detail{Field: "case_id", Message: "is required"}))
	}

	t := trigger.Normalize(ev.Trigger)
	rules, err := s.rules.ListActiveByTrigger(ctx, t)
	if err != nil {
		log.Error("failed to load rules", zap.Error(err))
		return nil, err
	}

	out := &EvaluationResult{
		Evaluated:      true,
		TriggeredRules: []string{},
		AwardsIssued:   []*award.Award{},
	}
	facts := rule.Facts{
		CaseID:       ev.CaseID,
		Trigger:      string(t),
		ProofEventID: ev.ProofEventID,
		Metadata:     ev.Metadata,
	}

	for _, r := range rules {
		a, reason, err := s.evaluateRule(ctx, r, ev, facts, dedupe)
		if err != nil {
			log.Error("rule evaluation failed", zap.String("rule_id", r.RuleID), zap.Error(err))
			evaluationsTotal.WithLabelValues("error").Inc()
			return nil, err
		}
		if a == nil {
			log.Info("rule skipped", zap.String("rule_id", r.RuleID), zap.String("reason", string(reason)))
			ruleSkipsTotal.WithLabelValues(string(reason)).Inc()
			out.Skipped = append(out.Skipped, Skip{RuleID: r.RuleID, Reason: reason})
			continue
		}

		log.Info("award issued",
			zap.String("rule_id", r.RuleID),
			zap.String("award_id", a.AwardID),
			zap.String("recipient_id", a.RecipientID),
			zap.Int64("reward_amount", a.RewardAmount),
		)
		awardsIssuedTotal.Inc()
		s.ledger.Announce(ctx, a)
		out.TriggeredRules = append(out.TriggeredRules, r.RuleID)
		out.AwardsIssued = append(out.AwardsIssued, a)
	}

	evaluationsTotal.WithLabelValues("evaluated").Inc()
	return out, nil
}

func (s *Service) evaluateRule(ctx context.Context, r *rule.Rule, ev MilestoneEvent, facts rule.Facts, dedupe bool) (*award.Award, SkipReason, error) {
	ok, err := s.rules.Matches(r, facts)
	if err != nil {
		logger.Ctx(ctx, s.logger).Warn("rule condition failed to evaluate",
			zap.String("rule_id", r.RuleID), zap.Error(err))
		return nil, SkipConditionError, nil
	}
	if !ok {
		return nil, SkipConditionNotMet, nil
	}

	recipientID, err := s.resolver.Resolve(ctx, ev.CaseID, r.RecipientType)
	if err != nil {
		logger.Ctx(ctx, s.logger).Warn("recipient could not be resolved",
			zap.String("rule_id", r.RuleID), zap.Error(err))
		return nil, SkipRecipientUnresolved, nil
	}

	for attempt := 1; ; attempt++ {
		a, reason, err := s.guardAndIssue(ctx, r, ev, recipientID, dedupe)
		if err != nil && errutil.ReasonOf(err) == errutil.ReasonRetry && attempt < maxAttempts {
			logger.Ctx(ctx, s.logger).Warn("retrying rule after conflict",
				zap.String("rule_id", r.RuleID), zap.Int("attempt", attempt))
			continue
		}
		return a, reason, err
	}
}

// guardAndIssue re-checks the campaign and caps with the campaign row locked
// and inserts the award in the same transaction.
func (s *Service) guardAndIssue(ctx context.Context, r *rule.Rule, ev MilestoneEvent, recipientID string, dedupe bool) (*award.Award, SkipReason, error) {
	var (
		issued *award.Award
		reason SkipReason
	)
	err := db.Transact(ctx, s.db, func(tx *gorm.DB) error {
		issued, reason = nil, ""
		if r.CampaignID == "" {
			reason = SkipCampaignNotFound
			return nil
		}

		c, err := s.campaign.WithTrx(tx).FindOne(ctx, &campaign.Campaign{CampaignID: r.CampaignID}, option.WithLockingUpdate())
		if err != nil {
			return err
		}
		if c == nil {
			reason = SkipCampaignNotFound
			return nil
		}
		if !c.IsActive(s.now()) {
			reason = SkipCampaignNotActive
			return nil
		}
		if c.BudgetRemaining < r.RewardAmount {
			reason = SkipInsufficientBudget
			return nil
		}

		counts, err := s.ledger.CountForCaps(ctx, tx, r.RuleID, ev.CaseID, recipientID)
		if err != nil {
			return err
		}
		if reason = capReason(r, c, counts); reason != "" {
			return nil
		}

		if dedupe {
			seen, err := s.ledger.HasProofEvent(ctx, tx, r.RuleID, ev.ProofEventID)
			if err != nil {
				return err
			}
			if seen {
				reason = SkipDuplicateProofEvent
				return nil
			}
		}

		issued, err = s.ledger.Issue(ctx, tx, award.IssueInput{
			Rule:         r,
			Campaign:     c,
			CaseID:       ev.CaseID,
			RecipientID:  recipientID,
			ProofEventID: ev.ProofEventID,
			Metadata:     ev.Metadata,
		})
		return err
	})
	if err != nil {
		return nil, "", err
	}
	return issued, reason, nil
}

// capReason applies the rule's caps, falling back to the campaign's per-case
// and per-recipient caps when the rule leaves them unset.
func capReason(r *rule.Rule, c *campaign.Campaign, n award.Counts) SkipReason {
	if limit := firstSet(r.MaxAwardsPerCase, c.MaxAwardsPerCase); limit != nil && n.PerCase >= int64(*limit) {
		return SkipCaseCapReached
	}
	if limit := firstSet(r.MaxAwardsPerRecipient, c.MaxAwardsPerRecipient); limit != nil && n.PerRecipient >= int64(*limit) {
		return SkipRecipientCapReached
	}
	if r.MaxTotalAwards != nil && n.Total >= int64(*r.MaxTotalAwards) {
		return SkipTotalCapReached
	}
	return ""
}

func firstSet(vals ...*int) *int {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}
