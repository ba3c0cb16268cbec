package milestone

import (
	"partner-incentives/pkg/taskname"
	"partner-incentives/services/award"
	"partner-incentives/services/rule"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

var Module = fx.Module("milestone.service",
	fx.Provide(
		NewService,
		func(s *rule.Service) Rules { return s },
		func(s *award.Service) Ledger { return s },
	),
)

var Gateway = fx.Module("milestone.gateway",
	fx.Provide(NewPublisher, NewHandler),
	fx.Invoke(registerRoutes),
)

// Worker registers the milestone:evaluate handler on the asynq mux.
var Worker = fx.Module("milestone.worker",
	fx.Invoke(registerTasks),
)

func registerRoutes(r *gin.Engine, h *Handler) {
	h.Register(r)
}

func registerTasks(mux *asynq.ServeMux, s *Service) {
	mux.HandleFunc(taskname.MilestoneEvaluate, s.HandleEvaluateTask)
}
