package rule

import (
	"partner-incentives/pkg/errutil"
	"partner-incentives/pkg/httpapi"
	"partner-incentives/services/trigger"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(r gin.IRouter) {
	g := r.Group("/v1/rules")
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.POST("/:id/deactivate", h.deactivate)

	r.GET("/v1/triggers", h.triggers)
}

func (h *Handler) create(c *gin.Context) {
	var in CreateRuleInput
	if err := c.ShouldBindJSON(&in); err != nil {
		httpapi.Fail(c, errutil.BadRequest("invalid request body", err))
		return
	}
	in.CreatedBy = httpapi.Actor(c)

	out, err := h.service.CreateRule(c.Request.Context(), in)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.Created(c, out)
}

func (h *Handler) list(c *gin.Context) {
	var in ListRulesInput
	if err := c.ShouldBindQuery(&in); err != nil {
		httpapi.Fail(c, errutil.BadRequest("invalid query", err))
		return
	}

	rows, page, err := h.service.ListRules(c.Request.Context(), in)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, gin.H{"rules": rows, "page_info": page})
}

func (h *Handler) get(c *gin.Context) {
	out, err := h.service.GetRule(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, out)
}

func (h *Handler) deactivate(c *gin.Context) {
	out, err := h.service.DeactivateRule(c.Request.Context(), c.Param("id"), httpapi.Actor(c))
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, out)
}

func (h *Handler) triggers(c *gin.Context) {
	httpapi.OK(c, gin.H{"allowed": trigger.Allowed(), "forbidden": trigger.Forbidden()})
}
