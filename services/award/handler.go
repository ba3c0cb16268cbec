package award

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
	g := r.Group("/v1/awards")
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.POST("/:id/verify", h.verify)
	g.POST("/:id/approve", h.approve)
	g.POST("/:id/mark-paid", h.markPaid)
	g.POST("/:id/reject", h.reject)
	g.POST("/:id/clawback", h.clawback)

	r.GET("/v1/campaigns/:id/budget", h.budget)
	r.GET("/v1/campaigns/:id/budget/entries", h.entries)
}

type reasonBody struct {
	Reason string `json:"reason"`
}

func (h *Handler) list(c *gin.Context) {
	var in ListAwardsInput
	if err := c.ShouldBindQuery(&in); err != nil {
		httpapi.Fail(c, errutil.BadRequest("invalid query", err))
		return
	}
	rows, page, err := h.service.ListAwards(c.Request.Context(), in)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, gin.H{"awards": rows, "page_info": page})
}

func (h *Handler) get(c *gin.Context) {
	out, err := h.service.GetAward(c.Request.Context(), c.Param("id"))
	respond(c, out, err)
}

func (h *Handler) verify(c *gin.Context) {
	out, err := h.service.Verify(c.Request.Context(), c.Param("id"), httpapi.Actor(c))
	respond(c, out, err)
}

func (h *Handler) approve(c *gin.Context) {
	out, err := h.service.Approve(c.Request.Context(), c.Param("id"), httpapi.Actor(c))
	respond(c, out, err)
}

func (h *Handler) markPaid(c *gin.Context) {
	var in MarkPaidInput
	if err := c.ShouldBindJSON(&in); err != nil {
		httpapi.Fail(c, errutil.BadRequest("invalid request body", err))
		return
	}
	out, err := h.service.MarkPaid(c.Request.Context(), c.Param("id"), in)
	respond(c, out, err)
}

func (h *Handler) reject(c *gin.Context) {
	var body reasonBody
	if err := c.ShouldBindJSON(&body); err != nil {
		httpapi.Fail(c, errutil.BadRequest("invalid request body", err))
		return
	}
	out, err := h.service.Reject(c.Request.Context(), c.Param("id"), httpapi.Actor(c), body.Reason)
	respond(c, out, err)
}

func (h *Handler) clawback(c *gin.Context) {
	var body reasonBody
	if err := c.ShouldBindJSON(&body); err != nil {
		httpapi.Fail(c, errutil.BadRequest("invalid request body", err))
		return
	}
	out, err := h.service.Clawback(c.Request.Context(), c.Param("id"), httpapi.Actor(c), body.Reason)
	respond(c, out, err)
}

func (h *Handler) budget(c *gin.Context) {
	out, err := h.service.BudgetReport(c.Request.Context(), c.Param("id"))
	respond(c, out, err)
}

func (h *Handler) entries(c *gin.Context) {
	out, err := h.service.ListEntries(c.Request.Context(), c.Param("id"))
	respond(c, gin.H{"entries": out}, err)
}

func respond[T any](c *gin.Context, out T, err error) {
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, out)
}
