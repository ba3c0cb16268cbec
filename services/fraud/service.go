package fraud

import (
	"context"
	"fmt"
	"strings"
	"time"

	"partner-incentives/pkg/config"
	"partner-incentives/pkg/db"
	"partner-incentives/pkg/errutil"
	"partner-incentives/pkg/logger"
	"partner-incentives/pkg/ratelimit"
	"partner-incentives/services/recipient"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	rapidScope = "referral"

	defaultRapidLimit  = 10
	defaultRapidWindow = time.Hour
)

// Registry is the part of the recipient registry the screen writes to. Every
// method taking a tx runs inside the caller's transaction.
type Registry interface {
	Normalize(phone string) string
	ResolveReferralCode(ctx context.Context, tx *gorm.DB, code string) (*recipient.Referrer, *recipient.ReferralLink, error)
	AppendFlag(ctx context.Context, tx *gorm.DB, referrerID string, t recipient.FlagType, details string) (*recipient.FraudFlag, *recipient.Referrer, error)
	IncrementReferrals(ctx context.Context, tx *gorm.DB, referrerID string) error
	RecordConversion(ctx context.Context, tx *gorm.DB, linkID string) error
}

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	registry Registry
	counter  ratelimit.Counter
	logger   *zap.Logger

	rapidLimit  int
	rapidWindow time.Duration
}

type ServiceParams struct {
	fx.In

	DB       *gorm.DB
	Node     *snowflake.Node
	Registry Registry
	Counter  ratelimit.Counter `optional:"true"`
	Config   *config.Config    `optional:"true"`
	Logger   *zap.Logger       `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	log := p.Logger
	if log == nil {
		log = zap.NewNop()
	}

	limit, window := defaultRapidLimit, defaultRapidWindow
	if p.Config != nil {
		if p.Config.Incentive.RapidReferralLimit > 0 {
			limit = p.Config.Incentive.RapidReferralLimit
		}
		if p.Config.Incentive.RapidReferralWindow > 0 {
			window = p.Config.Incentive.RapidReferralWindow
		}
	}

	return &Service{
		db:          p.DB,
		node:        p.Node,
		registry:    p.Registry,
		counter:     p.Counter,
		logger:      log.Named("fraud"),
		rapidLimit:  limit,
		rapidWindow: window,
	}
}

// ValidateReferral screens a referral presented at buyer onboarding. Invalid
// referrals come back as Valid=false with a reason; only storage failures are
// returned as errors. The attempt and any raised flag are stored atomically
// whatever the outcome.
func (s *Service) ValidateReferral(ctx context.Context, in ReferralCheck) (*ReferralResult, error) {
	code := strings.ToUpper(strings.TrimSpace(in.ReferralCode))
	buyer := s.registry.Normalize(in.BuyerPhone)
	claimed := s.registry.Normalize(in.ReferrerPhone)

	var details []errutil.Detail
	if code == "" {
		details = append(details, errutil.Detail{Field: "referral_code", Message: "is required"})
	}
	if buyer == "" {
		details = append(details, errutil.Detail{Field: "buyer_phone", Message: "is required"})
	}
	if len(details) > 0 {
		return nil, errutil.ValidationFailed("invalid referral check", nil, errutil.WithDetails(details...))
	}

	var result *ReferralResult
	err := db.Transact(ctx, s.db, func(tx *gorm.DB) error {
		var err error
		result, err = s.screen(ctx, tx, code, buyer, claimed)
		if err != nil {
			return err
		}

		attempt := &ReferralAttempt{
			AttemptID:     s.node.Generate().String(),
			ReferralCode:  code,
			ReferrerID:    result.ReferrerID,
			LinkID:        result.LinkID,
			BuyerPhone:    buyer,
			ReferrerPhone: claimed,
			Valid:         result.Valid,
			Reason:        result.Reason,
		}
		if result.FraudFlag != nil {
			attempt.FlagType = result.FraudFlag.Type
		}
		return tx.WithContext(ctx).Create(attempt).Error
	})
	if err != nil {
		logger.Ctx(ctx, s.logger).Error("referral validation failed", zap.String("referral_code", code), zap.Error(err))
		return nil, err
	}

	outcome := "valid"
	if !result.Valid {
		outcome = "invalid"
		if result.FraudFlag != nil {
			outcome = strings.ToLower(string(result.FraudFlag.Type))
		}
	}
	referralValidations.WithLabelValues(outcome).Inc()

	logger.Ctx(ctx, s.logger).Info("referral validated",
		zap.String("referral_code", code),
		zap.String("referrer_id", result.ReferrerID),
		zap.Bool("valid", result.Valid),
		zap.String("reason", result.Reason),
	)
	return result, nil
}

func (s *Service) screen(ctx context.Context, tx *gorm.DB, code, buyer, claimed string) (*ReferralResult, error) {
	r, link, err := s.registry.ResolveReferralCode(ctx, tx, code)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return &ReferralResult{Reason: "referral code not found"}, nil
	}

	res := &ReferralResult{ReferrerID: r.ReferrerID}
	if link != nil {
		res.LinkID = link.LinkID
	}

	switch r.Status {
	case recipient.ReferrerBlocked:
		res.Reason = "referrer is blocked"
		return res, nil
	case recipient.ReferrerSuspended:
		res.Reason = "referrer is suspended"
		return res, nil
	}

	if buyer == r.Phone || (claimed != "" && buyer == claimed) {
		flag, _, err := s.registry.AppendFlag(ctx, tx, r.ReferrerID, recipient.FlagSelfReferral,
			fmt.Sprintf("buyer phone %s matches referrer", buyer))
		if err != nil {
			return nil, err
		}
		res.FraudFlag = flag
		res.Reason = "self-referral detected"
		return res, nil
	}

	var prior int64
	if err := tx.WithContext(ctx).Model(&ReferralAttempt{}).
		Where("buyer_phone = ? AND valid = ?", buyer, true).
		Count(&prior).Error; err != nil {
		return nil, err
	}
	if prior > 0 {
		flag, _, err := s.registry.AppendFlag(ctx, tx, r.ReferrerID, recipient.FlagDuplicateReferral,
			fmt.Sprintf("buyer phone %s was already referred", buyer))
		if err != nil {
			return nil, err
		}
		res.FraudFlag = flag
		res.Reason = "buyer already referred"
		return res, nil
	}

	if s.counter != nil {
		count, _, err := s.counter.Consume(ctx, rapidScope, r.ReferrerID, s.rapidWindow)
		if err != nil {
			logger.Ctx(ctx, s.logger).Warn("rapid referral counter unavailable", zap.Error(err))
		} else if count > s.rapidLimit {
			flag, updated, err := s.registry.AppendFlag(ctx, tx, r.ReferrerID, recipient.FlagRapidReferrals,
				fmt.Sprintf("%d referrals within %s", count, s.rapidWindow))
			if err != nil {
				return nil, err
			}
			res.FraudFlag = flag
			if updated.Status == recipient.ReferrerBlocked {
				res.Reason = "referrer is blocked"
				return res, nil
			}
		}
	}

	if err := s.registry.IncrementReferrals(ctx, tx, r.ReferrerID); err != nil {
		return nil, err
	}
	if link != nil {
		if err := s.registry.RecordConversion(ctx, tx, link.LinkID); err != nil {
			return nil, err
		}
	}

	res.Valid = true
	return res, nil
}

// ListAttempts returns the audit trail for a referrer, newest first.
func (s *Service) ListAttempts(ctx context.Context, referrerID string) ([]*ReferralAttempt, error) {
	var out []*ReferralAttempt
	err := s.db.WithContext(ctx).
		Where("referrer_id = ?", referrerID).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}
