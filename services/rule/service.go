package rule

import (
	"context"
	"errors"
	"strings"
	"time"

	"partner-incentives/pkg/db"
	"partner-incentives/pkg/db/pagination"
	"partner-incentives/pkg/errutil"
	"partner-incentives/pkg/logger"
	"partner-incentives/services/campaign"
	"partner-incentives/services/recipient"
	"partner-incentives/services/trigger"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CampaignLookup finds the campaign owning a rule.
type CampaignLookup interface {
	GetCampaign(ctx context.Context, campaignID string) (*campaign.Campaign, error)
}

type Service struct {
	repo      Repository
	campaigns CampaignLookup
	evaluator *Evaluator
	logger    *zap.Logger
	node      *snowflake.Node
	now       func() time.Time
}

// ServiceParams defines dependencies for Service construction.
type ServiceParams struct {
	fx.In

	Repository Repository
	Campaigns  CampaignLookup
	Evaluator  *Evaluator
	Logger     *zap.Logger `optional:"true"`
	Node       *snowflake.Node
}

// NewService constructs a new Service instance.
func NewService(p ServiceParams) *Service {
	log := p.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if p.Repository == nil {
		panic("rule service requires repository dependency")
	}
	return &Service{
		repo:      p.Repository,
		campaigns: p.Campaigns,
		evaluator: p.Evaluator,
		logger:    log.Named("rule"),
		node:      p.Node,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type CreateRuleInput struct {
	CampaignID            string         `json:"campaign_id"`
	Name                  string         `json:"name"`
	Description           string         `json:"description"`
	Trigger               string         `json:"trigger"`
	RecipientType         recipient.Type `json:"recipient_type"`
	RewardType            RewardType     `json:"reward_type"`
	RewardAmount          int64          `json:"reward_amount"`
	Conditions            string         `json:"conditions"`
	MaxAwardsPerCase      *int           `json:"max_awards_per_case"`
	MaxAwardsPerRecipient *int           `json:"max_awards_per_recipient"`
	MaxTotalAwards        *int           `json:"max_total_awards"`
	CreatedBy             string         `json:"-"`
}

// CreateRule stores an active rule. The trigger is screened before anything
// else: a forbidden trigger, then one outside the allow-list, then a missing
// campaign each fail with their own reason.
func (s *Service) CreateRule(ctx context.Context, in CreateRuleInput) (*Rule, error) {
	if trigger.IsForbidden(in.Trigger) {
		logger.Ctx(ctx, s.logger).Warn("rejected rule with forbidden trigger",
			zap.String("campaign_id", in.CampaignID),
			zap.String("trigger", in.Trigger),
		)
		return nil, errutil.UnprocessableEntity("trigger "+string(trigger.Normalize(in.Trigger))+" rewards a loan decision and is forbidden", nil,
			errutil.WithReason(errutil.ReasonForbiddenTrigger))
	}
	if !trigger.IsAllowed(in.Trigger) {
		return nil, errutil.UnprocessableEntity("trigger "+string(trigger.Normalize(in.Trigger))+" is not an allowed milestone", nil,
			errutil.WithReason(errutil.ReasonInvalidTrigger))
	}
	c, err := s.campaigns.GetCampaign(ctx, in.CampaignID)
	if err != nil {
		return nil, err
	}

	in.RecipientType = recipient.Type(strings.ToUpper(string(in.RecipientType)))
	if in.RewardType == "" {
		in.RewardType = RewardCash
	}
	in.RewardType = RewardType(strings.ToUpper(string(in.RewardType)))
	if err := s.validate(in); err != nil {
		return nil, err
	}

	rule := &Rule{
		RuleID:                s.node.Generate().String(),
		CampaignID:            c.CampaignID,
		Name:                  strings.TrimSpace(in.Name),
		Description:           in.Description,
		Trigger:               trigger.Normalize(in.Trigger),
		RecipientType:         in.RecipientType,
		RewardType:            in.RewardType,
		RewardAmount:          in.RewardAmount,
		Conditions:            strings.TrimSpace(in.Conditions),
		MaxAwardsPerCase:      in.MaxAwardsPerCase,
		MaxAwardsPerRecipient: in.MaxAwardsPerRecipient,
		MaxTotalAwards:        in.MaxTotalAwards,
		IsActive:              true,
		CreatedBy:             in.CreatedBy,
	}
	if err := s.repo.Create(ctx, rule); err != nil {
		logger.Ctx(ctx, s.logger).Error("failed to create rule", zap.Error(err))
		return nil, db.Classify(err)
	}

	logger.Ctx(ctx, s.logger).Info("rule created",
		zap.String("rule_id", rule.RuleID),
		zap.String("campaign_id", rule.CampaignID),
		zap.String("trigger", string(rule.Trigger)),
		zap.Int64("reward_amount", rule.RewardAmount),
	)
	return rule, nil
}

func (s *Service) validate(in CreateRuleInput) error {
	var details []errutil.Detail
	if strings.TrimSpace(in.Name) == "" {
		details = append(details, errutil.Detail{Field: "name", Message: "is required"})
	}
	if !in.RecipientType.Valid() {
		details = append(details, errutil.Detail{Field: "recipient_type", Message: "must be BUYER, REFERRER or LAWYER"})
	}
	if !in.RewardType.Valid() {
		details = append(details, errutil.Detail{Field: "reward_type", Message: "must be CASH, VOUCHER or POINTS"})
	}
	if in.RewardAmount <= 0 {
		details = append(details, errutil.Detail{Field: "reward_amount", Message: "must be greater than zero"})
	}
	for field, v := range map[string]*int{
		"max_awards_per_case":      in.MaxAwardsPerCase,
		"max_awards_per_recipient": in.MaxAwardsPerRecipient,
		"max_total_awards":         in.MaxTotalAwards,
	} {
		if v != nil && *v < 1 {
			details = append(details, errutil.Detail{Field: field, Message: "must be at least 1"})
		}
	}
	if cond := strings.TrimSpace(in.Conditions); cond != "" {
		if err := s.evaluator.Check(cond); err != nil {
			details = append(details, errutil.Detail{Field: "conditions", Message: err.Error()})
		}
	}
	if len(details) > 0 {
		return errutil.ValidationFailed("invalid rule", nil, errutil.WithDetails(details...))
	}
	return nil
}

func (s *Service) GetRule(ctx context.Context, ruleID string) (*Rule, error) {
	if strings.TrimSpace(ruleID) == "" {
		return nil, errutil.NotFound("rule not found", nil)
	}
	rule, err := s.repo.GetByID(ctx, ruleID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errutil.NotFound("rule not found", nil)
	}
	if err != nil {
		logger.Ctx(ctx, s.logger).Error("failed to get rule", zap.String("rule_id", ruleID), zap.Error(err))
		return nil, err
	}
	return rule, nil
}

type ListRulesInput struct {
	CampaignID      string `form:"campaign_id"`
	Trigger         string `form:"trigger"`
	IncludeInactive bool   `form:"include_inactive"`
	pagination.Pagination
}

func (s *Service) ListRules(ctx context.Context, in ListRulesInput) ([]*Rule, *pagination.PageInfo, error) {
	params := ListParams{
		CampaignID:      in.CampaignID,
		IncludeInactive: in.IncludeInactive,
		Page:            in.Pagination,
	}
	if in.Trigger != "" {
		params.Triggers = []trigger.Trigger{trigger.Normalize(in.Trigger)}
	}

	rules, err := s.repo.List(ctx, params)
	if err != nil {
		logger.Ctx(ctx, s.logger).Error("failed to list rules", zap.Error(err))
		return nil, nil, err
	}

	rules, info := pagination.Page(rules, in.Size(), func(r *Rule) pagination.Cursor {
		return pagination.NewCursor(r.CreatedAt, r.RuleID)
	})
	return rules, info, nil
}

// DeactivateRule soft-deletes a rule. Awards it already issued are kept.
func (s *Service) DeactivateRule(ctx context.Context, ruleID, actor string) (*Rule, error) {
	rule, err := s.GetRule(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	if !rule.IsActive {
		return nil, errutil.UnprocessableEntity("rule is already inactive", nil, errutil.WithReason(errutil.ReasonInvalidStatus))
	}

	now := s.now()
	if err := s.repo.Deactivate(ctx, ruleID, actor, now); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errutil.Aborted("rule changed concurrently", nil)
		}
		return nil, err
	}

	rule.IsActive = false
	rule.DeactivatedBy = actor
	rule.DeactivatedAt = &now

	logger.Ctx(ctx, s.logger).Info("rule deactivated", zap.String("rule_id", ruleID), zap.String("actor", actor))
	return rule, nil
}

// ListActiveByTrigger returns the active rules listening on t.
func (s *Service) ListActiveByTrigger(ctx context.Context, t trigger.Trigger) ([]*Rule, error) {
	return s.repo.ListActiveByTrigger(ctx, trigger.Normalize(string(t)))
}

// Matches evaluates the rule's condition against facts.
func (s *Service) Matches(r *Rule, f Facts) (bool, error) {
	return s.evaluator.Match(r, f)
}
