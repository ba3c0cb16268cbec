package rule

import (
	"partner-incentives/services/campaign"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("rule.service",
	fx.Provide(
		NewRepository,
		NewEvaluator,
		NewService,
		func(s *campaign.Service) CampaignLookup { return s },
	),
)

var Gateway = fx.Module("rule.gateway",
	fx.Provide(NewHandler),
	fx.Invoke(registerRoutes),
)

func registerRoutes(r *gin.Engine, h *Handler) {
	h.Register(r)
}

func Models() []any {
	return []any{&Rule{}}
}
