package payout

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
	g := r.Group("/v1/payouts")
	g.POST("", h.request)
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.POST("/:id/approve", h.approve)
	g.POST("/:id/reject", h.reject)
	g.POST("/:id/process", h.process)
	g.POST("/:id/complete", h.complete)
	g.POST("/:id/fail", h.fail)
	g.POST("/:id/retry", h.retry)
	g.POST("/:id/cancel", h.cancel)
}

type reasonBody struct {
	Reason string `json:"reason"`
}

func (h *Handler) request(c *gin.Context) {
	var in RequestPayoutInput
	if err := c.ShouldBindJSON(&in); err != nil {
		httpapi.Fail(c, errutil.BadRequest("invalid request body", err))
		return
	}
	in.RequestedBy = httpapi.Actor(c)

	out, err := h.service.RequestPayout(c.Request.Context(), in)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.Created(c, out)
}

func (h *Handler) list(c *gin.Context) {
	var in ListPayoutsInput
	if err := c.ShouldBindQuery(&in); err != nil {
		httpapi.Fail(c, errutil.BadRequest("invalid query", err))
		return
	}
	rows, page, err := h.service.ListPayouts(c.Request.Context(), in)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, gin.H{"payouts": rows, "page_info": page})
}

func (h *Handler) get(c *gin.Context) {
	out, err := h.service.GetPayout(c.Request.Context(), c.Param("id"))
	respond(c, out, err)
}

func (h *Handler) approve(c *gin.Context) {
	out, err := h.service.Approve(c.Request.Context(), c.Param("id"), httpapi.Actor(c))
	respond(c, out, err)
}

func (h *Handler) reject(c *gin.Context) {
	var body reasonBody
	if !bind(c, &body) {
		return
	}
	out, err := h.service.Reject(c.Request.Context(), c.Param("id"), httpapi.Actor(c), body.Reason)
	respond(c, out, err)
}

func (h *Handler) process(c *gin.Context) {
	out, err := h.service.Process(c.Request.Context(), c.Param("id"), httpapi.Actor(c))
	respond(c, out, err)
}

func (h *Handler) complete(c *gin.Context) {
	var in CompleteInput
	if !bind(c, &in) {
		return
	}
	out, err := h.service.Complete(c.Request.Context(), c.Param("id"), in)
	respond(c, out, err)
}

func (h *Handler) fail(c *gin.Context) {
	var body reasonBody
	if !bind(c, &body) {
		return
	}
	out, err := h.service.Fail(c.Request.Context(), c.Param("id"), body.Reason)
	respond(c, out, err)
}

func (h *Handler) retry(c *gin.Context) {
	out, err := h.service.Retry(c.Request.Context(), c.Param("id"), httpapi.Actor(c))
	respond(c, out, err)
}

func (h *Handler) cancel(c *gin.Context) {
	out, err := h.service.Cancel(c.Request.Context(), c.Param("id"), httpapi.Actor(c))
	respond(c, out, err)
}

func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		httpapi.Fail(c, errutil.BadRequest("invalid request body", err))
		return false
	}
	return true
}

func respond(c *gin.Context, out *PayoutRequest, err error) {
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, out)
}
