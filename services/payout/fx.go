package payout

import (
	"partner-incentives/pkg/taskname"
	"partner-incentives/services/award"
	"partner-incentives/services/recipient"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payout.service",
	fx.Provide(
		NewService,
		func(s *award.Service) Awards { return s },
		func(s *recipient.Service) Registry { return s },
	),
	fx.Invoke(func(a *award.Service, p *Service) { a.UseSettlements(p) }),
)

var Gateway = fx.Module("payout.gateway",
	fx.Provide(NewHandler),
	fx.Invoke(registerRoutes),
)

// Worker registers the payout:dispatch handler.
var Worker = fx.Module("payout.worker",
	fx.Provide(
		NewDispatcher,
		func(log *zap.Logger) Processor { return LogProcessor{Logger: log.Named("processor")} },
	),
	fx.Invoke(registerTasks),
)

func registerRoutes(r *gin.Engine, h *Handler) {
	h.Register(r)
}

func registerTasks(mux *asynq.ServeMux, d *Dispatcher) {
	mux.HandleFunc(taskname.PayoutDispatch, d.HandleDispatchTask)
}

func Models() []any {
	return []any{&PayoutRequest{}}
}
