package main

import (
	"log"

	"partner-incentives/pkg/config"
	"partner-incentives/pkg/db"
	"partner-incentives/pkg/events"
	"partner-incentives/pkg/featureflags"
	"partner-incentives/pkg/gen"
	"partner-incentives/pkg/logger"
	"partner-incentives/pkg/otelcol"
	"partner-incentives/pkg/profiling"
	"partner-incentives/pkg/redis"
	"partner-incentives/pkg/sequence"
	"partner-incentives/pkg/task"
	"partner-incentives/services/award"
	"partner-incentives/services/campaign"
	"partner-incentives/services/milestone"
	"partner-incentives/services/payout"
	"partner-incentives/services/recipient"
	"partner-incentives/services/rule"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// The worker drains milestone:evaluate and payout:dispatch and runs the
// campaign expiry schedule. It never serves HTTP.
func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		otelcol.Module,
		profiling.Module,
		featureflags.Module,
		db.Module,
		redis.Module,
		events.Module,
		sequence.Module,
		task.Client,
		task.Server,
		task.Scheduler,
		gen.Module,

		recipient.Module,
		campaign.Module,
		campaign.Worker,
		rule.Module,
		award.Module,
		milestone.Module,
		milestone.Worker,
		payout.Module,
		payout.Worker,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	fx.New(opts...).Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})
