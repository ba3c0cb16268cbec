package fraud

import (
	"partner-incentives/pkg/ratelimit"
	"partner-incentives/services/recipient"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var Module = fx.Module("fraud.service",
	fx.Provide(
		NewService,
		func(s *recipient.Service) Registry { return s },
		func(rdb *redis.Client) ratelimit.Counter { return ratelimit.NewRedisCounter(rdb) },
	),
)

var Gateway = fx.Module("fraud.gateway",
	fx.Provide(NewHandler),
	fx.Invoke(registerRoutes),
)

func registerRoutes(r *gin.Engine, h *Handler) {
	h.Register(r)
}

func Models() []any {
	return []any{&ReferralAttempt{}}
}
