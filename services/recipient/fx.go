package recipient

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("recipient.service",
	fx.Provide(
		NewService,
		func(s *Service) Resolver { return s },
	),
)

var Gateway = fx.Module("recipient.gateway",
	fx.Provide(NewHandler),
	fx.Invoke(registerRoutes),
)

func registerRoutes(r *gin.Engine, h *Handler) {
	h.Register(r)
}

func Models() []any {
	return []any{
		&Referrer{},
		&Lawyer{},
		&ReferralLink{},
		&FraudFlag{},
		&CaseAssignment{},
	}
}
