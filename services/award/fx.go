package award

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("award.service",
	fx.Provide(NewService),
)

var Gateway = fx.Module("award.gateway",
	fx.Provide(NewHandler),
	fx.Invoke(registerRoutes),
)

func registerRoutes(r *gin.Engine, h *Handler) {
	h.Register(r)
}

func Models() []any {
	return []any{&Award{}, &BudgetEntry{}}
}
