package campaign

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"partner-incentives/pkg/db"
	"partner-incentives/pkg/db/option"
	"partner-incentives/pkg/db/pagination"
	"partner-incentives/pkg/errutil"
	"partner-incentives/pkg/logger"
	"partner-incentives/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

type Service struct {
	db     *gorm.DB
	node   *snowflake.Node
	logger *zap.Logger
	now    func() time.Time

	campaign repository.Repository[Campaign]
}

type ServiceParams struct {
	fx.In

	DB     *gorm.DB
	Node   *snowflake.Node
	Logger *zap.Logger `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	log := p.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		db:       p.DB,
		node:     p.Node,
		logger:   log.Named("campaign"),
		now:      func() time.Time { return time.Now().UTC() },
		campaign: repository.ProvideStore[Campaign](p.DB),
	}
}

type CreateCampaignInput struct {
	DeveloperID           string         `json:"developer_id"`
	ProjectID             string         `json:"project_id"`
	Name                  string         `json:"name"`
	Description           string         `json:"description"`
	BudgetTotal           int64          `json:"budget_total"`
	Currency              string         `json:"currency"`
	StartAt               *time.Time     `json:"start_at"`
	EndAt                 *time.Time     `json:"end_at"`
	MaxAwardsPerCase      *int           `json:"max_awards_per_case"`
	MaxAwardsPerRecipient *int           `json:"max_awards_per_recipient"`
	Metadata              map[string]any `json:"metadata"`
	CreatedBy             string         `json:"-"`
}

func (in CreateCampaignInput) validate() error {
	var details []errutil.Detail
	if strings.TrimSpace(in.DeveloperID) == "" {
		details = append(details, errutil.Detail{Field: "developer_id", Message: "is required"})
	}
	if strings.TrimSpace(in.ProjectID) == "" {
		details = append(details, errutil.Detail{Field: "project_id", Message: "is required"})
	}
	if strings.TrimSpace(in.Name) == "" {
		details = append(details, errutil.Detail{Field: "name", Message: "is required"})
	}
	if in.BudgetTotal <= 0 {
		details = append(details, errutil.Detail{Field: "budget_total", Message: "must be greater than zero"})
	}
	if !currencyPattern.MatchString(in.Currency) {
		details = append(details, errutil.Detail{Field: "currency", Message: "must be an ISO 4217 code"})
	}
	if in.StartAt != nil && in.EndAt != nil && !in.EndAt.After(*in.StartAt) {
		details = append(details, errutil.Detail{Field: "end_at", Message: "must be after start_at"})
	}
	if in.MaxAwardsPerCase != nil && *in.MaxAwardsPerCase < 1 {
		details = append(details, errutil.Detail{Field: "max_awards_per_case", Message: "must be at least 1"})
	}
	if in.MaxAwardsPerRecipient != nil && *in.MaxAwardsPerRecipient < 1 {
		details = append(details, errutil.Detail{Field: "max_awards_per_recipient", Message: "must be at least 1"})
	}
	if len(details) > 0 {
		return errutil.ValidationFailed("invalid campaign", nil, errutil.WithDetails(details...))
	}
	return nil
}

// CreateCampaign stores a new DRAFT campaign with its full budget remaining.
func (s *Service) CreateCampaign(ctx context.Context, in CreateCampaignInput) (*Campaign, error) {
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	if err := in.validate(); err != nil {
		return nil, err
	}

	id := s.node.Generate()
	c := &Campaign{
		CampaignID:            id.String(),
		DeveloperID:           in.DeveloperID,
		ProjectID:             in.ProjectID,
		Code:                  slug.Make(in.Name) + "-" + strings.ToLower(id.Base36()),
		Name:                  in.Name,
		Description:           in.Description,
		BudgetTotal:           in.BudgetTotal,
		BudgetRemaining:       in.BudgetTotal,
		Currency:              in.Currency,
		StartAt:               in.StartAt,
		EndAt:                 in.EndAt,
		MaxAwardsPerCase:      in.MaxAwardsPerCase,
		MaxAwardsPerRecipient: in.MaxAwardsPerRecipient,
		Status:                StatusDraft,
		CreatedBy:             in.CreatedBy,
	}

	if len(in.Metadata) > 0 {
		raw, err := json.Marshal(in.Metadata)
		if err != nil {
			return nil, errutil.ValidationFailed("metadata must be a JSON object", err)
		}
		c.Metadata = datatypes.JSON(raw)
	}

	if err := s.campaign.Create(ctx, c); err != nil {
		logger.Ctx(ctx, s.logger).Error("failed to create campaign", zap.Error(err))
		return nil, db.Classify(err)
	}

	logger.Ctx(ctx, s.logger).Info("campaign created",
		zap.String("campaign_id", c.CampaignID),
		zap.Int64("budget_total", c.BudgetTotal),
		zap.String("currency", c.Currency),
	)
	return c, nil
}

func (s *Service) GetCampaign(ctx context.Context, campaignID string) (*Campaign, error) {
	if campaignID == "" {
		return nil, errutil.NotFound("campaign not found", nil, errutil.WithReason(errutil.ReasonCampaignNotFound))
	}
	c, err := s.campaign.FindOne(ctx, &Campaign{CampaignID: campaignID})
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, errutil.NotFound("campaign not found", nil, errutil.WithReason(errutil.ReasonCampaignNotFound))
	}
	return c, nil
}

type ListCampaignsInput struct {
	DeveloperID string `form:"developer_id"`
	ProjectID   string `form:"project_id"`
	Status      Status `form:"status"`
	pagination.Pagination
}

func (s *Service) ListCampaigns(ctx context.Context, in ListCampaignsInput) ([]*Campaign, *pagination.PageInfo, error) {
	rows, err := s.campaign.Find(ctx, &Campaign{
		DeveloperID: in.DeveloperID,
		ProjectID:   in.ProjectID,
		Status:      in.Status,
	}, option.ApplyPagination(in.Pagination, "campaign_id"))
	if err != nil {
		return nil, nil, err
	}

	rows, info := pagination.Page(rows, in.Size(), func(c *Campaign) pagination.Cursor {
		return pagination.NewCursor(c.CreatedAt, c.CampaignID)
	})
	return rows, info, nil
}

func (s *Service) ActivateCampaign(ctx context.Context, campaignID string) (*Campaign, error) {
	return s.transition(ctx, campaignID, StatusActive, func(c *Campaign) bool {
		return c.Status == StatusDraft || c.Status == StatusPaused
	}, "activated_at")
}

func (s *Service) PauseCampaign(ctx context.Context, campaignID string) (*Campaign, error) {
	return s.transition(ctx, campaignID, StatusPaused, func(c *Campaign) bool {
		return c.Status == StatusActive
	}, "paused_at")
}

func (s *Service) CancelCampaign(ctx context.Context, campaignID string) (*Campaign, error) {
	return s.transition(ctx, campaignID, StatusCancelled, func(c *Campaign) bool {
		return !c.Status.IsTerminal()
	}, "cancelled_at")
}

// transition moves a campaign to target when allowed accepts its current state.
// The status read and the write happen under one row lock.
func (s *Service) transition(ctx context.Context, campaignID string, target Status, allowed func(*Campaign) bool, stampColumn string) (*Campaign, error) {
	if campaignID == "" {
		return nil, errutil.NotFound("campaign not found", nil, errutil.WithReason(errutil.ReasonCampaignNotFound))
	}

	var out *Campaign
	err := db.Transact(ctx, s.db, func(tx *gorm.DB) error {
		repo := s.campaign.WithTrx(tx)

		c, err := repo.FindOne(ctx, &Campaign{CampaignID: campaignID}, option.WithLockingUpdate())
		if err != nil {
			return err
		}
		if c == nil {
			return errutil.NotFound("campaign not found", nil, errutil.WithReason(errutil.ReasonCampaignNotFound))
		}
		if !allowed(c) {
			return errutil.UnprocessableEntity(
				"campaign cannot move from "+string(c.Status)+" to "+string(target), nil,
				errutil.WithReason(errutil.ReasonInvalidStatus),
			)
		}

		now := s.now()
		res := tx.Model(&Campaign{}).
			Where("campaign_id = ? AND status = ?", c.CampaignID, c.Status).
			Updates(map[string]any{"status": target, stampColumn: now, "updated_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errutil.Aborted("campaign changed concurrently", nil)
		}

		c.Status = target
		c.UpdatedAt = now
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Ctx(ctx, s.logger).Info("campaign status changed",
		zap.String("campaign_id", campaignID),
		zap.String("status", string(target)),
	)
	return out, nil
}

// ExpireDue moves every live campaign whose end date has passed to EXPIRED and
// returns how many were updated.
func (s *Service) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&Campaign{}).
		Where("status IN ? AND end_at IS NOT NULL AND end_at < ?",
			[]Status{StatusActive, StatusPaused, StatusExhausted, StatusDraft}, now).
		Updates(map[string]any{"status": StatusExpired, "expired_at": now, "updated_at": now})
	if res.Error != nil {
		return 0, db.Classify(res.Error)
	}
	if res.RowsAffected > 0 {
		logger.Ctx(ctx, s.logger).Info("campaigns expired", zap.Int64("count", res.RowsAffected))
	}
	return res.RowsAffected, nil
}
