package award

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"partner-incentives/pkg/db"
	"partner-incentives/pkg/db/option"
	"partner-incentives/pkg/db/pagination"
	"partner-incentives/pkg/errutil"
	"partner-incentives/pkg/events"
	"partner-incentives/pkg/logger"
	"partner-incentives/pkg/repository"
	"partner-incentives/services/campaign"
	"partner-incentives/services/rule"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Service struct {
	db     *gorm.DB
	node   *snowflake.Node
	logger *zap.Logger
	now    func() time.Time
	events events.Publisher

	award    repository.Repository[Award]
	entry    repository.Repository[BudgetEntry]
	campaign repository.Repository[campaign.Campaign]

	settlements Settlements
}

// Settlements follows an award rejection inside its transaction: a payout
// not yet handed off is released, one in flight vetoes the rejection.
type Settlements interface {
	ReleaseForReject(ctx context.Context, tx *gorm.DB, awardID, actor string) error
}

type ServiceParams struct {
	fx.In

	DB     *gorm.DB
	Node   *snowflake.Node
	Events events.Publisher `optional:"true"`
	Logger *zap.Logger      `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	log := p.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		db:       p.DB,
		node:     p.Node,
		logger:   log.Named("award"),
		now:      func() time.Time { return time.Now().UTC() },
		events:   p.Events,
		award:    repository.ProvideStore[Award](p.DB),
		entry:    repository.ProvideStore[BudgetEntry](p.DB),
		campaign: repository.ProvideStore[campaign.Campaign](p.DB),
	}
}

// UseSettlements registers the payout workflow. It is set after construction
// because the payout service depends on this one.
func (s *Service) UseSettlements(st Settlements) {
	s.settlements = st
}

func notFound() error {
	return errutil.NotFound("award not found", nil)
}

func invalidTransition(from, to Status) error {
	return errutil.UnprocessableEntity("award cannot move from "+string(from)+" to "+string(to), nil,
		errutil.WithReason(errutil.ReasonInvalidStatus))
}

// ========================================================
// Issuing and cap counting (called inside the evaluator's transaction)
// ========================================================

type IssueInput struct {
	Rule         *rule.Rule
	Campaign     *campaign.Campaign
	CaseID       string
	RecipientID  string
	ProofEventID string
	Metadata     map[string]any
}

// Issue records a PENDING award inside tx. Budget is untouched until approval.
func (s *Service) Issue(ctx context.Context, tx *gorm.DB, in IssueInput) (*Award, error) {
	a := &Award{
		AwardID:       s.node.Generate().String(),
		RuleID:        in.Rule.RuleID,
		CampaignID:    in.Campaign.CampaignID,
		CaseID:        in.CaseID,
		RecipientID:   in.RecipientID,
		RecipientType: in.Rule.RecipientType,
		RewardType:    in.Rule.RewardType,
		RewardAmount:  in.Rule.RewardAmount,
		Currency:      in.Campaign.Currency,
		Status:        StatusPending,
		Trigger:       in.Rule.Trigger,
		ProofEventID:  in.ProofEventID,
	}
	if len(in.Metadata) > 0 {
		raw, err := json.Marshal(in.Metadata)
		if err != nil {
			return nil, errutil.ValidationFailed("metadata must be a JSON object", err)
		}
		a.Metadata = datatypes.JSON(raw)
	}

	if err := s.award.WithTrx(tx).Create(ctx, a); err != nil {
		return nil, err
	}
	transitionsTotal.WithLabelValues(string(StatusPending)).Inc()
	return a, nil
}

// Counts are the cap-relevant award counts for one rule.
type Counts struct {
	PerCase      int64
	PerRecipient int64
	Total        int64
}

// CountForCaps counts the rule's awards that still hold a slot, inside tx.
func (s *Service) CountForCaps(ctx context.Context, tx *gorm.DB, ruleID, caseID, recipientID string) (Counts, error) {
	var out Counts
	counted := []Status{StatusPending, StatusVerified, StatusApproved, StatusPaid}

	base := func() *gorm.DB {
		return tx.WithContext(ctx).Model(&Award{}).Where("rule_id = ? AND status IN ?", ruleID, counted)
	}
	if err := base().Where("case_id = ?", caseID).Count(&out.PerCase).Error; err != nil {
		return out, err
	}
	if err := base().Where("recipient_id = ?", recipientID).Count(&out.PerRecipient).Error; err != nil {
		return out, err
	}
	if err := base().Count(&out.Total).Error; err != nil {
		return out, err
	}
	return out, nil
}

// HasProofEvent reports whether ruleID already awarded for proofEventID.
func (s *Service) HasProofEvent(ctx context.Context, tx *gorm.DB, ruleID, proofEventID string) (bool, error) {
	if proofEventID == "" {
		return false, nil
	}
	var n int64
	err := tx.WithContext(ctx).Model(&Award{}).
		Where("rule_id = ? AND proof_event_id = ?", ruleID, proofEventID).
		Count(&n).Error
	return n > 0, err
}

// ========================================================
// Lifecycle
// ========================================================

func (s *Service) Verify(ctx context.Context, awardID, verifier string) (*Award, error) {
	if strings.TrimSpace(verifier) == "" {
		return nil, errutil.ValidationFailed("verifier identity is required", nil)
	}
	return s.transition(ctx, awardID, StatusVerified, func(_ *gorm.DB, a *Award, now time.Time) (map[string]any, error) {
		return map[string]any{"verified_by": verifier, "verified_at": now}, nil
	})
}

// Approve moves a VERIFIED award to APPROVED and debits its campaign in the
// same transaction. A debit that empties the budget exhausts the campaign.
func (s *Service) Approve(ctx context.Context, awardID, approver string) (*Award, error) {
	if strings.TrimSpace(approver) == "" {
		return nil, errutil.ValidationFailed("approver identity is required", nil)
	}
	return s.transition(ctx, awardID, StatusApproved, func(tx *gorm.DB, a *Award, now time.Time) (map[string]any, error) {
		if err := s.debit(ctx, tx, a, approver, now); err != nil {
			return nil, err
		}
		return map[string]any{"approved_by": approver, "approved_at": now}, nil
	})
}

type MarkPaidInput struct {
	PayoutReference string `json:"payout_reference"`
	PayoutMethod    string `json:"payout_method"`
}

func (s *Service) MarkPaid(ctx context.Context, awardID string, in MarkPaidInput) (*Award, error) {
	var out *Award
	err := db.Transact(ctx, s.db, func(tx *gorm.DB) error {
		var err error
		out, err = s.MarkPaidTx(ctx, tx, awardID, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.Announce(ctx, out)
	return out, nil
}

// MarkPaidTx is MarkPaid inside the caller's transaction, for settlement flows
// that complete a payout and its award together.
func (s *Service) MarkPaidTx(ctx context.Context, tx *gorm.DB, awardID string, in MarkPaidInput) (*Award, error) {
	if strings.TrimSpace(in.PayoutReference) == "" {
		return nil, errutil.ValidationFailed("payout reference is required", nil)
	}
	return s.transitionTx(ctx, tx, awardID, StatusPaid, func(_ *gorm.DB, a *Award, now time.Time) (map[string]any, error) {
		return map[string]any{
			"paid_at":          now,
			"payout_reference": in.PayoutReference,
			"payout_method":    in.PayoutMethod,
		}, nil
	})
}

// Reject closes an award that has not been paid. Rejecting an APPROVED award
// returns its amount to the campaign and cancels a payout that has not been
// handed off; a PROCESSING payout blocks the rejection.
func (s *Service) Reject(ctx context.Context, awardID, actor, reason string) (*Award, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, errutil.ValidationFailed("rejection reason is required", nil)
	}
	return s.transition(ctx, awardID, StatusRejected, func(tx *gorm.DB, a *Award, now time.Time) (map[string]any, error) {
		if a.Status == StatusApproved {
			if s.settlements != nil {
				if err := s.settlements.ReleaseForReject(ctx, tx, a.AwardID, actor); err != nil {
					return nil, err
				}
			}
			if err := s.credit(ctx, tx, a, actor, "rejected: "+reason, now); err != nil {
				return nil, err
			}
		}
		return map[string]any{"rejected_by": actor, "rejected_at": now, "rejection_reason": reason}, nil
	})
}

// Clawback reverses a PAID award and credits the campaign.
func (s *Service) Clawback(ctx context.Context, awardID, actor, reason string) (*Award, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, errutil.ValidationFailed("clawback reason is required", nil)
	}
	return s.transition(ctx, awardID, StatusClawback, func(tx *gorm.DB, a *Award, now time.Time) (map[string]any, error) {
		if err := s.credit(ctx, tx, a, actor, "clawback: "+reason, now); err != nil {
			return nil, err
		}
		return map[string]any{"clawed_back_by": actor, "clawed_back_at": now, "clawback_reason": reason}, nil
	})
}

type mutateFunc func(tx *gorm.DB, a *Award, now time.Time) (map[string]any, error)

func (s *Service) transition(ctx context.Context, awardID string, to Status, fn mutateFunc) (*Award, error) {
	var out *Award
	err := db.Transact(ctx, s.db, func(tx *gorm.DB) error {
		var err error
		out, err = s.transitionTx(ctx, tx, awardID, to, fn)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.Announce(ctx, out)
	return out, nil
}

var routingKeys = map[Status]string{
	StatusPending:  events.AwardIssued,
	StatusVerified: events.AwardVerified,
	StatusApproved: events.AwardApproved,
	StatusPaid:     events.AwardPaid,
	StatusRejected: events.AwardRejected,
	StatusClawback: events.AwardClawback,
}

// Announce publishes the award's current status. Callers that commit awards
// in their own transaction call it after commit.
func (s *Service) Announce(ctx context.Context, a *Award) {
	if a == nil {
		return
	}
	events.Emit(ctx, s.events, logger.Ctx(ctx, s.logger), routingKeys[a.Status], a)
}

// transitionTx locks the award, checks the move against the state machine,
// runs fn and writes the new status only if nobody changed it meanwhile.
func (s *Service) transitionTx(ctx context.Context, tx *gorm.DB, awardID string, to Status, fn mutateFunc) (*Award, error) {
	if awardID == "" {
		return nil, notFound()
	}

	a, err := s.award.WithTrx(tx).FindOne(ctx, &Award{AwardID: awardID}, option.WithLockingUpdate())
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, notFound()
	}
	if !CanTransition(a.Status, to) {
		return nil, invalidTransition(a.Status, to)
	}

	now := s.now()
	changes, err := fn(tx, a, now)
	if err != nil {
		return nil, err
	}
	changes["status"] = to
	changes["updated_at"] = now

	res := tx.WithContext(ctx).Model(&Award{}).
		Where("award_id = ? AND status = ?", a.AwardID, a.Status).
		Updates(changes)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, errutil.Aborted("award changed concurrently", nil)
	}

	from := a.Status
	out, err := s.award.WithTrx(tx).FindOne(ctx, &Award{AwardID: awardID})
	if err != nil {
		return nil, err
	}

	transitionsTotal.WithLabelValues(string(to)).Inc()
	logger.Ctx(ctx, s.logger).Info("award status changed",
		zap.String("award_id", awardID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.Int64("reward_amount", a.RewardAmount),
	)
	return out, nil
}

// ========================================================
// Budget
// ========================================================

func (s *Service) lockCampaign(ctx context.Context, tx *gorm.DB, campaignID string) (*campaign.Campaign, error) {
	c, err := s.campaign.WithTrx(tx).FindOne(ctx, &campaign.Campaign{CampaignID: campaignID}, option.WithLockingUpdate())
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, errutil.NotFound("campaign not found", nil, errutil.WithReason(errutil.ReasonCampaignNotFound))
	}
	return c, nil
}

func (s *Service) debit(ctx context.Context, tx *gorm.DB, a *Award, actor string, now time.Time) error {
	c, err := s.lockCampaign(ctx, tx, a.CampaignID)
	if err != nil {
		return err
	}
	if c.BudgetRemaining < a.RewardAmount {
		return errutil.UnprocessableEntity("campaign budget cannot cover this award", nil,
			errutil.WithReason(errutil.ReasonInsufficientFunds),
			errutil.WithDetails(
				errutil.Detail{Field: "budget_remaining", Message: formatAmount(c.BudgetRemaining, c.Currency)},
				errutil.Detail{Field: "reward_amount", Message: formatAmount(a.RewardAmount, a.Currency)},
			))
	}

	remaining := c.BudgetRemaining - a.RewardAmount
	changes := map[string]any{
		"budget_remaining": gorm.Expr("budget_remaining - ?", a.RewardAmount),
		"updated_at":       now,
	}
	if remaining <= 0 && (c.Status == campaign.StatusActive || c.Status == campaign.StatusPaused) {
		changes["status"] = campaign.StatusExhausted
		changes["exhausted_at"] = now
	}

	res := tx.WithContext(ctx).Model(&campaign.Campaign{}).
		Where("campaign_id = ? AND budget_remaining >= ?", c.CampaignID, a.RewardAmount).
		Updates(changes)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errutil.Aborted("campaign budget changed concurrently", nil)
	}

	if status, ok := changes["status"]; ok {
		logger.Ctx(ctx, s.logger).Info("campaign exhausted",
			zap.String("campaign_id", c.CampaignID),
			zap.Any("status", status),
		)
	}
	budgetMoved.WithLabelValues(string(EntryDebit)).Add(float64(a.RewardAmount))
	return s.appendEntry(ctx, tx, c.CampaignID, a.AwardID, EntryDebit, a.RewardAmount, remaining, actor, "approved")
}

func (s *Service) credit(ctx context.Context, tx *gorm.DB, a *Award, actor, reason string, now time.Time) error {
	c, err := s.lockCampaign(ctx, tx, a.CampaignID)
	if err != nil {
		return err
	}

	remaining := c.BudgetRemaining + a.RewardAmount
	if remaining > c.BudgetTotal {
		return errutil.Internal("credit would exceed the campaign's total budget", nil)
	}

	changes := map[string]any{
		"budget_remaining": gorm.Expr("budget_remaining + ?", a.RewardAmount),
		"updated_at":       now,
	}
	if c.Status == campaign.StatusExhausted && remaining > 0 {
		changes["status"] = campaign.StatusActive
		changes["exhausted_at"] = nil
	}

	res := tx.WithContext(ctx).Model(&campaign.Campaign{}).
		Where("campaign_id = ? AND budget_remaining = ?", c.CampaignID, c.BudgetRemaining).
		Updates(changes)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errutil.Aborted("campaign budget changed concurrently", nil)
	}

	if _, ok := changes["status"]; ok {
		logger.Ctx(ctx, s.logger).Info("campaign reactivated after credit",
			zap.String("campaign_id", c.CampaignID),
			zap.Int64("budget_remaining", remaining),
		)
	}
	budgetMoved.WithLabelValues(string(EntryCredit)).Add(float64(a.RewardAmount))
	return s.appendEntry(ctx, tx, c.CampaignID, a.AwardID, EntryCredit, a.RewardAmount, remaining, actor, reason)
}

// appendEntry chains a new budget entry after the campaign's latest one. The
// campaign row is already locked by the caller.
func (s *Service) appendEntry(ctx context.Context, tx *gorm.DB, campaignID, awardID string, t EntryType, amount, balance int64, actor, reason string) error {
	last, err := s.entry.WithTrx(tx).FindOne(ctx, &BudgetEntry{CampaignID: campaignID},
		option.WithSortBy(option.QuerySortBy{SortBy: "sequence", OrderBy: "desc"}))
	if err != nil {
		return err
	}

	e := &BudgetEntry{
		EntryID:      s.node.Generate().String(),
		CampaignID:   campaignID,
		Sequence:     1,
		AwardID:      awardID,
		Type:         t,
		Amount:       amount,
		BalanceAfter: balance,
		Actor:        actor,
		Reason:       reason,
	}
	if last != nil {
		e.Sequence = last.Sequence + 1
		e.PreviousHash = last.Hash
	}
	e.Hash = e.GenerateHash()

	return s.entry.WithTrx(tx).Create(ctx, e)
}

// ========================================================
// Queries
// ========================================================

func (s *Service) GetAward(ctx context.Context, awardID string) (*Award, error) {
	if awardID == "" {
		return nil, notFound()
	}
	a, err := s.award.FindOne(ctx, &Award{AwardID: awardID})
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, notFound()
	}
	return a, nil
}

type ListAwardsInput struct {
	CaseID      string `form:"case_id"`
	CampaignID  string `form:"campaign_id"`
	RuleID      string `form:"rule_id"`
	RecipientID string `form:"recipient_id"`
	Status      Status `form:"status"`
	pagination.Pagination
}

func (s *Service) ListAwards(ctx context.Context, in ListAwardsInput) ([]*Award, *pagination.PageInfo, error) {
	rows, err := s.award.Find(ctx, &Award{
		CaseID:      in.CaseID,
		CampaignID:  in.CampaignID,
		RuleID:      in.RuleID,
		RecipientID: in.RecipientID,
		Status:      in.Status,
	}, option.ApplyPagination(in.Pagination, "award_id"))
	if err != nil {
		return nil, nil, err
	}
	rows, info := pagination.Page(rows, in.Size(), func(a *Award) pagination.Cursor {
		return pagination.NewCursor(a.CreatedAt, a.AwardID)
	})
	return rows, info, nil
}

func (s *Service) ListEntries(ctx context.Context, campaignID string) ([]*BudgetEntry, error) {
	return s.entry.Find(ctx, &BudgetEntry{CampaignID: campaignID},
		option.WithSortBy(option.QuerySortBy{SortBy: "sequence", OrderBy: "asc"}))
}

// BudgetReport compares a campaign's spent budget against the awards holding
// it and checks the budget journal.
type BudgetReport struct {
	CampaignID      string `json:"campaign_id"`
	Currency        string `json:"currency"`
	BudgetTotal     int64  `json:"budget_total"`
	BudgetRemaining int64  `json:"budget_remaining"`
	Spent           int64  `json:"spent"`
	Committed       int64  `json:"committed"`
	Balanced        bool   `json:"balanced"`
	JournalEntries  int    `json:"journal_entries"`
	JournalValid    bool   `json:"journal_valid"`
}

func (s *Service) BudgetReport(ctx context.Context, campaignID string) (*BudgetReport, error) {
	if campaignID == "" {
		return nil, errutil.NotFound("campaign not found", nil, errutil.WithReason(errutil.ReasonCampaignNotFound))
	}
	c, err := s.campaign.FindOne(ctx, &campaign.Campaign{CampaignID: campaignID})
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, errutil.NotFound("campaign not found", nil, errutil.WithReason(errutil.ReasonCampaignNotFound))
	}

	var committed int64
	if err := s.db.WithContext(ctx).Model(&Award{}).
		Where("campaign_id = ? AND status IN ?", campaignID, []Status{StatusApproved, StatusPaid}).
		Select("COALESCE(SUM(reward_amount), 0)").
		Scan(&committed).Error; err != nil {
		return nil, err
	}

	entries, err := s.ListEntries(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	return &BudgetReport{
		CampaignID:      c.CampaignID,
		Currency:        c.Currency,
		BudgetTotal:     c.BudgetTotal,
		BudgetRemaining: c.BudgetRemaining,
		Spent:           c.Spent(),
		Committed:       committed,
		Balanced:        c.Spent() == committed,
		JournalEntries:  len(entries),
		JournalValid:    VerifyChain(entries),
	}, nil
}
