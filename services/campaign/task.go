package campaign

import (
	"context"

	"partner-incentives/pkg/logger"
	"partner-incentives/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// HandleExpireTask runs the periodic sweep that closes campaigns past end_at.
func (s *Service) HandleExpireTask(ctx context.Context, t *asynq.Task) error {
	n, err := s.ExpireDue(ctx, s.now())
	if err != nil {
		logger.Ctx(ctx, s.logger).Error("campaign expiry sweep failed", zap.Error(err))
		return err
	}
	logger.Ctx(ctx, s.logger).Debug("campaign expiry sweep done", zap.String("task", taskname.CampaignExpire), zap.Int64("expired", n))
	return nil
}
