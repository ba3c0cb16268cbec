package main

import (
	"context"
	"log"

	"partner-incentives/pkg/config"
	"partner-incentives/pkg/db"
	"partner-incentives/pkg/events"
	"partner-incentives/pkg/featureflags"
	"partner-incentives/pkg/gen"
	"partner-incentives/pkg/health"
	"partner-incentives/pkg/httpapi"
	"partner-incentives/pkg/logger"
	"partner-incentives/pkg/otelcol"
	"partner-incentives/pkg/profiling"
	"partner-incentives/pkg/redis"
	"partner-incentives/pkg/sequence"
	"partner-incentives/pkg/server"
	"partner-incentives/pkg/task"
	"partner-incentives/services/award"
	"partner-incentives/services/campaign"
	"partner-incentives/services/fraud"
	"partner-incentives/services/milestone"
	"partner-incentives/services/payout"
	"partner-incentives/services/recipient"
	"partner-incentives/services/rule"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

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
		task.Client,
		sequence.Module,
		health.Module,
		gen.Module,
		fx.Module("migrate", fx.Invoke(migrate)),
		httpapi.Module,

		recipient.Module,
		recipient.Gateway,
		fraud.Module,
		fraud.Gateway,
		campaign.Module,
		campaign.Gateway,
		rule.Module,
		rule.Gateway,
		award.Module,
		award.Gateway,
		milestone.Module,
		milestone.Gateway,
		payout.Module,
		payout.Gateway,

		server.ProvideGRPCServer,
		server.ProvideHTTPServer,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func migrate(lc fx.Lifecycle, cfg *config.Config, conn *gorm.DB) {
	if !cfg.Database.AutoMigrate {
		return
	}

	var models []any
	for _, m := range [][]any{
		recipient.Models(),
		fraud.Models(),
		campaign.Models(),
		rule.Models(),
		award.Models(),
		payout.Models(),
	} {
		models = append(models, m...)
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := conn.WithContext(ctx).AutoMigrate(models...); err != nil {
				zap.L().Error("[DB] auto migrate failed", zap.Error(err))
				return err
			}
			zap.L().Info("[DB] schema migrated", zap.Int("tables", len(models)))
			return nil
		},
	})
}
