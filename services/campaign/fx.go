package campaign

import (
	"partner-incentives/pkg/taskname"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

var Module = fx.Module("campaign.service",
	fx.Provide(NewService),
)

var Gateway = fx.Module("campaign.gateway",
	fx.Provide(NewHandler),
	fx.Invoke(registerRoutes),
)

func registerRoutes(r *gin.Engine, h *Handler) {
	h.Register(r)
}

var Worker = fx.Module("campaign.worker",
	fx.Invoke(registerTasks),
)

func registerTasks(mux *asynq.ServeMux, s *Service) {
	mux.HandleFunc(taskname.CampaignExpire, s.HandleExpireTask)
}

// Models lists the tables owned by this package.
func Models() []any {
	return []any{&Campaign{}}
}
