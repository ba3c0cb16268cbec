package rule

import (
	"context"
	"time"

	"partner-incentives/pkg/db/option"
	"partner-incentives/pkg/db/pagination"
	"partner-incentives/services/trigger"

	"gorm.io/gorm"
)

// ListParams describes filters applied when listing rules from the repository.
type ListParams struct {
	CampaignID      string
	Triggers        []trigger.Trigger
	IncludeInactive bool
	Page            pagination.Pagination
}

// Repository describes database operations available for rules.
type Repository interface {
	Create(ctx context.Context, rule *Rule) error
	GetByID(ctx context.Context, ruleID string) (*Rule, error)
	List(ctx context.Context, params ListParams) ([]*Rule, error)
	Deactivate(ctx context.Context, ruleID, actor string, at time.Time) error
	ListActiveByTrigger(ctx context.Context, t trigger.Trigger) ([]*Rule, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository returns a gorm backed Repository implementation.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Create(ctx context.Context, rule *Rule) error {
	if r == nil || r.db == nil {
		return gorm.ErrInvalidDB
	}
	return r.db.WithContext(ctx).Create(rule).Error
}

func (r *gormRepository) GetByID(ctx context.Context, ruleID string) (*Rule, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	var rule Rule
	err := r.db.WithContext(ctx).
		Where("rule_id = ?", ruleID).
		First(&rule).Error
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *gormRepository) List(ctx context.Context, params ListParams) ([]*Rule, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	query := r.db.WithContext(ctx).Model(&Rule{})
	if params.CampaignID != "" {
		query = query.Where("campaign_id = ?", params.CampaignID)
	}
	if len(params.Triggers) > 0 {
		query = query.Where("trigger_name IN ?", params.Triggers)
	}
	if !params.IncludeInactive {
		query = query.Where("is_active = ?", true)
	}
	query = option.ApplyPagination(params.Page, "rule_id")(query)

	var rules []*Rule
	if err := query.Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

// Deactivate flips an active rule off. An already inactive or missing rule
// reports gorm.ErrRecordNotFound.
func (r *gormRepository) Deactivate(ctx context.Context, ruleID, actor string, at time.Time) error {
	if r == nil || r.db == nil {
		return gorm.ErrInvalidDB
	}

	res := r.db.WithContext(ctx).
		Model(&Rule{}).
		Where("rule_id = ? AND is_active = ?", ruleID, true).
		Updates(map[string]any{
			"is_active":      false,
			"deactivated_by": actor,
			"deactivated_at": at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *gormRepository) ListActiveByTrigger(ctx context.Context, t trigger.Trigger) ([]*Rule, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	query := r.db.WithContext(ctx).Model(&Rule{}).
		Where("trigger_name = ? AND is_active = ?", t, true).
		Order("created_at ASC").Order("rule_id ASC")

	var rules []*Rule
	if err := query.Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}
