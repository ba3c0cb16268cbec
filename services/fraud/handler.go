package fraud

import (
	"partner-incentives/pkg/errutil"
	"partner-incentives/pkg/httpapi"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(r gin.IRouter) {
	r.POST("/v1/referrals/validate", h.validate)
	r.GET("/v1/referrers/:id/attempts", h.attempts)
}

func (h *Handler) validate(c *gin.Context) {
	var in ReferralCheck
	if err := c.ShouldBindJSON(&in); err != nil {
		httpapi.Fail(c, errutil.BadRequest("invalid request body", err))
		return
	}

	out, err := h.service.ValidateReferral(c.Request.Context(), in)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, out)
}

func (h *Handler) attempts(c *gin.Context) {
	out, err := h.service.ListAttempts(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, gin.H{"attempts": out})
}
