package recipient

import (
	"context"
	"strings"
	"time"

	"partner-incentives/pkg/config"
	"partner-incentives/pkg/db"
	"partner-incentives/pkg/db/option"
	"partner-incentives/pkg/db/pagination"
	"partner-incentives/pkg/errutil"
	"partner-incentives/pkg/logger"
	"partner-incentives/pkg/repository"
	"partner-incentives/pkg/sequence"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultCountryCode = "60"

// Service is the recipient registry: referrers, lawyers, referral links,
// fraud flags and case assignments.
type Service struct {
	db          *gorm.DB
	node        *snowflake.Node
	seq         sequence.Generator
	logger      *zap.Logger
	countryCode string
	now         func() time.Time

	referrer   repository.Repository[Referrer]
	lawyer     repository.Repository[Lawyer]
	link       repository.Repository[ReferralLink]
	flag       repository.Repository[FraudFlag]
	assignment repository.Repository[CaseAssignment]
}

type ServiceParams struct {
	fx.In

	DB     *gorm.DB
	Node   *snowflake.Node
	Config *config.Config     `optional:"true"`
	Seq    sequence.Generator `optional:"true"`
	Logger *zap.Logger        `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	log := p.Logger
	if log == nil {
		log = zap.NewNop()
	}
	seq := p.Seq
	if seq == nil {
		seq = sequence.Fallback{}
	}
	cc := defaultCountryCode
	if p.Config != nil && p.Config.Incentive.DefaultCountryCode != "" {
		cc = p.Config.Incentive.DefaultCountryCode
	}

	return &Service{
		db:          p.DB,
		node:        p.Node,
		seq:         seq,
		logger:      log.Named("recipient"),
		countryCode: cc,
		now:         func() time.Time { return time.Now().UTC() },
		referrer:    repository.ProvideStore[Referrer](p.DB),
		lawyer:      repository.ProvideStore[Lawyer](p.DB),
		link:        repository.ProvideStore[ReferralLink](p.DB),
		flag:        repository.ProvideStore[FraudFlag](p.DB),
		assignment:  repository.ProvideStore[CaseAssignment](p.DB),
	}
}

// Normalize canonicalises phone with the registry's default country code.
func (s *Service) Normalize(phone string) string {
	return NormalizePhone(phone, s.countryCode)
}

func notFound(what string) error {
	return errutil.NotFound(what+" not found", nil)
}

func invalidStatus(msg string) error {
	return errutil.UnprocessableEntity(msg, nil, errutil.WithReason(errutil.ReasonInvalidStatus))
}

// ========================================================
// Referrers
// ========================================================

type RegisterReferrerInput struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
	BankAccount
}

func (s *Service) RegisterReferrer(ctx context.Context, in RegisterReferrerInput) (*Referrer, error) {
	phone := s.Normalize(in.Phone)
	var details []errutil.Detail
	if strings.TrimSpace(in.Name) == "" {
		details = append(details, errutil.Detail{Field: "name", Message: "is required"})
	}
	if len(phone) < 8 {
		details = append(details, errutil.Detail{Field: "phone", Message: "is not a valid phone number"})
	}
	if len(details) > 0 {
		return nil, errutil.ValidationFailed("invalid referrer", nil, errutil.WithDetails(details...))
	}

	code, err := s.seq.NextReferralCode(ctx)
	if err != nil {
		return nil, errutil.Internal("failed to allocate referral code", err)
	}

	r := &Referrer{
		ReferrerID:   s.node.Generate().String(),
		Name:         strings.TrimSpace(in.Name),
		Phone:        phone,
		Email:        strings.TrimSpace(in.Email),
		ReferralCode: code,
		Status:       ReferrerPending,
		BankAccount:  in.BankAccount,
	}
	if err := s.referrer.Create(ctx, r); err != nil {
		logger.Ctx(ctx, s.logger).Error("failed to register referrer", zap.Error(err))
		return nil, db.Classify(err)
	}
	return r, nil
}

func (s *Service) GetReferrer(ctx context.Context, referrerID string) (*Referrer, error) {
	if referrerID == "" {
		return nil, notFound("referrer")
	}
	r, err := s.referrer.FindOne(ctx, &Referrer{ReferrerID: referrerID})
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, notFound("referrer")
	}
	return r, nil
}

type ListReferrersInput struct {
	Status ReferrerStatus `form:"status"`
	pagination.Pagination
}

func (s *Service) ListReferrers(ctx context.Context, in ListReferrersInput) ([]*Referrer, *pagination.PageInfo, error) {
	rows, err := s.referrer.Find(ctx, &Referrer{Status: in.Status}, option.ApplyPagination(in.Pagination, "referrer_id"))
	if err != nil {
		return nil, nil, err
	}
	rows, info := pagination.Page(rows, in.Size(), func(r *Referrer) pagination.Cursor {
		return pagination.NewCursor(r.CreatedAt, r.ReferrerID)
	})
	return rows, info, nil
}

// ResolveReferralCode finds the referrer behind code, looking at referral
// links first and the referrer's own code second. A nil link means the code
// was the referrer's own.
func (s *Service) ResolveReferralCode(ctx context.Context, tx *gorm.DB, code string) (*Referrer, *ReferralLink, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, nil, nil
	}

	link, err := s.link.WithTrx(tx).FindOne(ctx, &ReferralLink{Code: code})
	if err != nil {
		return nil, nil, err
	}
	if link != nil {
		if !link.Usable(s.now()) {
			return nil, link, nil
		}
		r, err := s.referrer.WithTrx(tx).FindOne(ctx, &Referrer{ReferrerID: link.ReferrerID}, option.WithLockingUpdate())
		return r, link, err
	}

	r, err := s.referrer.WithTrx(tx).FindOne(ctx, &Referrer{ReferralCode: code}, option.WithLockingUpdate())
	return r, nil, err
}

// VerifyReferrer activates a PENDING referrer.
func (s *Service) VerifyReferrer(ctx context.Context, referrerID, verifier string) (*Referrer, error) {
	return s.updateReferrer(ctx, referrerID, func(r *Referrer, now time.Time) (map[string]any, error) {
		if r.Status != ReferrerPending {
			return nil, invalidStatus("only PENDING referrers can be verified")
		}
		return map[string]any{"status": ReferrerActive, "verified_by": verifier, "verified_at": now}, nil
	})
}

func (s *Service) SuspendReferrer(ctx context.Context, referrerID, reason string) (*Referrer, error) {
	return s.updateReferrer(ctx, referrerID, func(r *Referrer, now time.Time) (map[string]any, error) {
		if r.Status != ReferrerActive {
			return nil, invalidStatus("only ACTIVE referrers can be suspended")
		}
		return map[string]any{"status": ReferrerSuspended, "suspended_at": now, "status_reason": reason}, nil
	})
}

// ReinstateReferrer returns a SUSPENDED or BLOCKED referrer to ACTIVE. A block
// can only be lifted once every auto-blocking flag has been resolved.
func (s *Service) ReinstateReferrer(ctx context.Context, referrerID string) (*Referrer, error) {
	return s.updateReferrerTx(ctx, referrerID, func(tx *gorm.DB, r *Referrer, now time.Time) (map[string]any, error) {
		switch r.Status {
		case ReferrerSuspended:
		case ReferrerBlocked:
			flags, err := s.flag.WithTrx(tx).Find(ctx, &FraudFlag{ReferrerID: r.ReferrerID},
				option.ApplyOperator(option.Condition{Field: "resolved", Operator: option.EQ, Value: false}))
			if err != nil {
				return nil, err
			}
			if t, blocked := RequiresBlock(flags); blocked {
				return nil, invalidStatus("unresolved " + string(t) + " flag keeps the referrer blocked")
			}
		default:
			return nil, invalidStatus("only SUSPENDED or BLOCKED referrers can be reinstated")
		}
		return map[string]any{"status": ReferrerActive, "status_reason": ""}, nil
	})
}

func (s *Service) BlockReferrer(ctx context.Context, referrerID, reason string) (*Referrer, error) {
	return s.updateReferrer(ctx, referrerID, func(r *Referrer, now time.Time) (map[string]any, error) {
		if r.Status == ReferrerBlocked {
			return nil, invalidStatus("referrer is already blocked")
		}
		return map[string]any{"status": ReferrerBlocked, "blocked_at": now, "status_reason": reason}, nil
	})
}

func (s *Service) UpdateReferrerBankAccount(ctx context.Context, referrerID string, acct BankAccount) (*Referrer, error) {
	return s.updateReferrer(ctx, referrerID, func(r *Referrer, now time.Time) (map[string]any, error) {
		return map[string]any{
			"bank_name":           acct.BankName,
			"bank_account_number": acct.BankAccountNumber,
			"bank_account_holder": acct.BankAccountHolder,
		}, nil
	})
}

func (s *Service) updateReferrer(ctx context.Context, referrerID string, fn func(*Referrer, time.Time) (map[string]any, error)) (*Referrer, error) {
	return s.updateReferrerTx(ctx, referrerID, func(_ *gorm.DB, r *Referrer, now time.Time) (map[string]any, error) {
		return fn(r, now)
	})
}

func (s *Service) updateReferrerTx(ctx context.Context, referrerID string, fn func(*gorm.DB, *Referrer, time.Time) (map[string]any, error)) (*Referrer, error) {
	if referrerID == "" {
		return nil, notFound("referrer")
	}

	var out *Referrer
	err := db.Transact(ctx, s.db, func(tx *gorm.DB) error {
		repo := s.referrer.WithTrx(tx)
		r, err := repo.FindOne(ctx, &Referrer{ReferrerID: referrerID}, option.WithLockingUpdate())
		if err != nil {
			return err
		}
		if r == nil {
			return notFound("referrer")
		}

		changes, err := fn(tx, r, s.now())
		if err != nil {
			return err
		}
		if err := repo.Update(ctx, referrerID, changes); err != nil {
			return err
		}

		out, err = repo.FindOne(ctx, &Referrer{ReferrerID: referrerID})
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ========================================================
// Fraud flags
// ========================================================

// AppendFlag records a fraud flag against a referrer inside tx, recomputes the
// risk score and blocks the referrer when an unresolved flag demands it. The
// caller owns the transaction.
func (s *Service) AppendFlag(ctx context.Context, tx *gorm.DB, referrerID string, t FlagType, details string) (*FraudFlag, *Referrer, error) {
	rule, ok := RuleFor(t)
	if !ok {
		return nil, nil, errutil.ValidationFailed("unknown fraud flag type "+string(t), nil)
	}

	r, err := s.referrer.WithTrx(tx).FindOne(ctx, &Referrer{ReferrerID: referrerID}, option.WithLockingUpdate())
	if err != nil {
		return nil, nil, err
	}
	if r == nil {
		return nil, nil, notFound("referrer")
	}

	now := s.now()
	flag := &FraudFlag{
		FlagID:     s.node.Generate().String(),
		ReferrerID: referrerID,
		Type:       t,
		Severity:   rule.Severity,
		Details:    details,
		DetectedAt: now,
	}
	if err := s.flag.WithTrx(tx).Create(ctx, flag); err != nil {
		return nil, nil, err
	}

	r, err = s.rescore(ctx, tx, r, now)
	if err != nil {
		return nil, nil, err
	}

	logger.Ctx(ctx, s.logger).Warn("fraud flag raised",
		zap.String("referrer_id", referrerID),
		zap.String("flag_type", string(t)),
		zap.String("severity", string(rule.Severity)),
		zap.Int("risk_score", r.RiskScore),
		zap.String("referrer_status", string(r.Status)),
	)
	return flag, r, nil
}

// rescore recomputes the risk score from unresolved flags and applies auto-block.
func (s *Service) rescore(ctx context.Context, tx *gorm.DB, r *Referrer, now time.Time) (*Referrer, error) {
	flags, err := s.flag.WithTrx(tx).Find(ctx, &FraudFlag{ReferrerID: r.ReferrerID},
		option.ApplyOperator(option.Condition{Field: "resolved", Operator: option.EQ, Value: false}))
	if err != nil {
		return nil, err
	}

	changes := map[string]any{"risk_score": RiskScore(flags)}
	r.RiskScore = RiskScore(flags)
	if t, block := RequiresBlock(flags); block && r.Status != ReferrerBlocked {
		changes["status"] = ReferrerBlocked
		changes["blocked_at"] = now
		changes["status_reason"] = "auto-blocked: " + string(t)
		r.Status = ReferrerBlocked
		r.BlockedAt = &now
		r.StatusReason = "auto-blocked: " + string(t)
	}

	if err := s.referrer.WithTrx(tx).Update(ctx, r.ReferrerID, changes); err != nil {
		return nil, err
	}
	return r, nil
}

// RaiseFlag is the back-office entry point for flags found outside the
// automatic screens.
func (s *Service) RaiseFlag(ctx context.Context, referrerID string, t FlagType, details string) (*FraudFlag, error) {
	var flag *FraudFlag
	err := db.Transact(ctx, s.db, func(tx *gorm.DB) error {
		var err error
		flag, _, err = s.AppendFlag(ctx, tx, referrerID, t, details)
		return err
	})
	return flag, err
}

// ResolveFlag marks a flag resolved and lowers the referrer's risk score. It
// never unblocks the referrer; use ReinstateReferrer for that.
func (s *Service) ResolveFlag(ctx context.Context, flagID, resolver, note string) (*FraudFlag, error) {
	if strings.TrimSpace(resolver) == "" {
		return nil, errutil.ValidationFailed("resolver identity is required", nil)
	}
	if flagID == "" {
		return nil, notFound("fraud flag")
	}

	var out *FraudFlag
	err := db.Transact(ctx, s.db, func(tx *gorm.DB) error {
		repo := s.flag.WithTrx(tx)
		f, err := repo.FindOne(ctx, &FraudFlag{FlagID: flagID}, option.WithLockingUpdate())
		if err != nil {
			return err
		}
		if f == nil {
			return notFound("fraud flag")
		}
		if f.Resolved {
			return invalidStatus("fraud flag is already resolved")
		}

		now := s.now()
		if err := repo.Update(ctx, flagID, map[string]any{
			"resolved":        true,
			"resolved_by":     resolver,
			"resolved_at":     now,
			"resolution_note": note,
		}); err != nil {
			return err
		}
		f.Resolved, f.ResolvedBy, f.ResolvedAt, f.ResolutionNote = true, resolver, &now, note

		r, err := s.referrer.WithTrx(tx).FindOne(ctx, &Referrer{ReferrerID: f.ReferrerID}, option.WithLockingUpdate())
		if err != nil {
			return err
		}
		if r != nil {
			if _, err := s.rescore(ctx, tx, r, now); err != nil {
				return err
			}
		}
		out = f
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) ListFlags(ctx context.Context, referrerID string, unresolvedOnly bool) ([]*FraudFlag, error) {
	var opts []option.QueryOption
	if unresolvedOnly {
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "resolved", Operator: option.EQ, Value: false}))
	}
	opts = append(opts, option.WithSortBy(option.QuerySortBy{SortBy: "detected_at", OrderBy: "asc"}))
	return s.flag.Find(ctx, &FraudFlag{ReferrerID: referrerID}, opts...)
}

// ========================================================
// Referral links
// ========================================================

type CreateLinkInput struct {
	ReferrerID  string     `json:"-"`
	DeveloperID string     `json:"developer_id"`
	ProjectID   string     `json:"project_id"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

func (s *Service) CreateReferralLink(ctx context.Context, in CreateLinkInput) (*ReferralLink, error) {
	r, err := s.GetReferrer(ctx, in.ReferrerID)
	if err != nil {
		return nil, err
	}
	if r.Status != ReferrerActive {
		return nil, errutil.UnprocessableEntity("only ACTIVE referrers can create links", nil,
			errutil.WithReason(errutil.ReasonRecipientBlocked))
	}
	if in.ExpiresAt != nil && !in.ExpiresAt.After(s.now()) {
		return nil, errutil.ValidationFailed("expires_at must be in the future", nil)
	}

	code, err := s.seq.NextLinkCode(ctx, r.ReferralCode)
	if err != nil {
		return nil, errutil.Internal("failed to allocate link code", err)
	}

	link := &ReferralLink{
		LinkID:      s.node.Generate().String(),
		ReferrerID:  r.ReferrerID,
		Code:        strings.ToUpper(code),
		DeveloperID: in.DeveloperID,
		ProjectID:   in.ProjectID,
		IsActive:    true,
		ExpiresAt:   in.ExpiresAt,
	}
	if err := s.link.Create(ctx, link); err != nil {
		return nil, db.Classify(err)
	}
	return link, nil
}

// RecordClick counts a visit on a referral link.
func (s *Service) RecordClick(ctx context.Context, code string) (*ReferralLink, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, notFound("referral link")
	}
	res := s.db.WithContext(ctx).Model(&ReferralLink{}).
		Where("code = ? AND is_active = ?", code, true).
		Update("click_count", gorm.Expr("click_count + 1"))
	if res.Error != nil {
		return nil, db.Classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, notFound("referral link")
	}
	return s.link.FindOne(ctx, &ReferralLink{Code: code})
}

// RecordConversion counts a successful referral on a link inside tx.
func (s *Service) RecordConversion(ctx context.Context, tx *gorm.DB, linkID string) error {
	return tx.WithContext(ctx).Model(&ReferralLink{}).
		Where("link_id = ?", linkID).
		Update("conversion_count", gorm.Expr("conversion_count + 1")).Error
}

// DeactivateLink stops a referral link from attributing further referrals.
func (s *Service) DeactivateLink(ctx context.Context, code string) (*ReferralLink, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, notFound("referral link")
	}
	res := s.db.WithContext(ctx).Model(&ReferralLink{}).
		Where("code = ?", code).
		Update("is_active", false)
	if res.Error != nil {
		return nil, db.Classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, notFound("referral link")
	}
	return s.link.FindOne(ctx, &ReferralLink{Code: code})
}

func (s *Service) ListLinks(ctx context.Context, referrerID string) ([]*ReferralLink, error) {
	return s.link.Find(ctx, &ReferralLink{ReferrerID: referrerID},
		option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "desc"}))
}

// IncrementReferrals bumps the referrer's referral counter inside tx.
func (s *Service) IncrementReferrals(ctx context.Context, tx *gorm.DB, referrerID string) error {
	return tx.WithContext(ctx).Model(&Referrer{}).
		Where("referrer_id = ?", referrerID).
		Update("total_referrals", gorm.Expr("total_referrals + 1")).Error
}

// ========================================================
// Lawyers
// ========================================================

type RegisterLawyerInput struct {
	Name      string `json:"name"`
	Firm      string `json:"firm"`
	BarNumber string `json:"bar_number"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
	BankAccount
}

func (s *Service) RegisterLawyer(ctx context.Context, in RegisterLawyerInput) (*Lawyer, error) {
	var details []errutil.Detail
	if strings.TrimSpace(in.Name) == "" {
		details = append(details, errutil.Detail{Field: "name", Message: "is required"})
	}
	if strings.TrimSpace(in.BarNumber) == "" {
		details = append(details, errutil.Detail{Field: "bar_number", Message: "is required"})
	}
	if len(details) > 0 {
		return nil, errutil.ValidationFailed("invalid lawyer", nil, errutil.WithDetails(details...))
	}

	l := &Lawyer{
		LawyerID:    s.node.Generate().String(),
		Name:        strings.TrimSpace(in.Name),
		Firm:        strings.TrimSpace(in.Firm),
		BarNumber:   strings.ToUpper(strings.TrimSpace(in.BarNumber)),
		Phone:       s.Normalize(in.Phone),
		Email:       strings.TrimSpace(in.Email),
		Status:      LawyerPending,
		BankAccount: in.BankAccount,
	}
	if err := s.lawyer.Create(ctx, l); err != nil {
		return nil, db.Classify(err)
	}
	return l, nil
}

func (s *Service) GetLawyer(ctx context.Context, lawyerID string) (*Lawyer, error) {
	if lawyerID == "" {
		return nil, notFound("lawyer")
	}
	l, err := s.lawyer.FindOne(ctx, &Lawyer{LawyerID: lawyerID})
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, notFound("lawyer")
	}
	return l, nil
}

func (s *Service) ListLawyers(ctx context.Context, status LawyerStatus) ([]*Lawyer, error) {
	return s.lawyer.Find(ctx, &Lawyer{Status: status},
		option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "desc"}))
}

func (s *Service) VerifyLawyer(ctx context.Context, lawyerID, verifier string) (*Lawyer, error) {
	if strings.TrimSpace(verifier) == "" {
		return nil, errutil.ValidationFailed("verifier identity is required", nil)
	}
	return s.transitionLawyer(ctx, lawyerID, []LawyerStatus{LawyerPending}, LawyerVerified, func(now time.Time) map[string]any {
		return map[string]any{"verified_by": verifier, "verified_at": now}
	})
}

func (s *Service) ActivateLawyer(ctx context.Context, lawyerID string) (*Lawyer, error) {
	return s.transitionLawyer(ctx, lawyerID, []LawyerStatus{LawyerVerified, LawyerInactive}, LawyerActive, func(now time.Time) map[string]any {
		return map[string]any{"activated_at": now}
	})
}

func (s *Service) DeactivateLawyer(ctx context.Context, lawyerID string) (*Lawyer, error) {
	return s.transitionLawyer(ctx, lawyerID, []LawyerStatus{LawyerVerified, LawyerActive}, LawyerInactive, nil)
}

func (s *Service) transitionLawyer(ctx context.Context, lawyerID string, from []LawyerStatus, to LawyerStatus, extra func(time.Time) map[string]any) (*Lawyer, error) {
	if lawyerID == "" {
		return nil, notFound("lawyer")
	}

	var out *Lawyer
	err := db.Transact(ctx, s.db, func(tx *gorm.DB) error {
		repo := s.lawyer.WithTrx(tx)
		l, err := repo.FindOne(ctx, &Lawyer{LawyerID: lawyerID}, option.WithLockingUpdate())
		if err != nil {
			return err
		}
		if l == nil {
			return notFound("lawyer")
		}

		allowed := false
		for _, st := range from {
			if l.Status == st {
				allowed = true
				break
			}
		}
		if !allowed {
			return invalidStatus("lawyer cannot move from " + string(l.Status) + " to " + string(to))
		}

		now := s.now()
		changes := map[string]any{"status": to}
		if extra != nil {
			for k, v := range extra(now) {
				changes[k] = v
			}
		}
		if err := repo.Update(ctx, lawyerID, changes); err != nil {
			return err
		}
		out, err = repo.FindOne(ctx, &Lawyer{LawyerID: lawyerID})
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ========================================================
// Payout eligibility
// ========================================================

// Destination returns the registered bank account of a referrer or lawyer and
// fails when the recipient may not be paid. Buyers are asserted upstream and
// have no registry entry, so their destination is empty.
func (s *Service) Destination(ctx context.Context, t Type, recipientID string) (*BankAccount, error) {
	switch t {
	case TypeReferrer:
		r, err := s.GetReferrer(ctx, recipientID)
		if err != nil {
			return nil, err
		}
		if r.Status == ReferrerBlocked || r.Status == ReferrerSuspended {
			return nil, errutil.UnprocessableEntity("referrer is "+strings.ToLower(string(r.Status)), nil,
				errutil.WithReason(errutil.ReasonRecipientBlocked))
		}
		return &r.BankAccount, nil
	case TypeLawyer:
		l, err := s.GetLawyer(ctx, recipientID)
		if err != nil {
			return nil, err
		}
		if l.Status == LawyerInactive {
			return nil, errutil.UnprocessableEntity("lawyer is inactive", nil,
				errutil.WithReason(errutil.ReasonRecipientBlocked))
		}
		return &l.BankAccount, nil
	default:
		return &BankAccount{}, nil
	}
}
