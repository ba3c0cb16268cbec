package campaign

import (
	"context"

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
	g := r.Group("/v1/campaigns")
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.POST("/:id/activate", h.activate)
	g.POST("/:id/pause", h.pause)
	g.POST("/:id/cancel", h.cancel)
}

func (h *Handler) create(c *gin.Context) {
	var in CreateCampaignInput
	if err := c.ShouldBindJSON(&in); err != nil {
		httpapi.Fail(c, errutil.BadRequest("invalid request body", err))
		return
	}
	in.CreatedBy = httpapi.Actor(c)

	out, err := h.service.CreateCampaign(c.Request.Context(), in)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.Created(c, out)
}

func (h *Handler) list(c *gin.Context) {
	var in ListCampaignsInput
	if err := c.ShouldBindQuery(&in); err != nil {
		httpapi.Fail(c, errutil.BadRequest("invalid query", err))
		return
	}

	rows, page, err := h.service.ListCampaigns(c.Request.Context(), in)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, gin.H{"campaigns": rows, "page_info": page})
}

func (h *Handler) get(c *gin.Context) {
	out, err := h.service.GetCampaign(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, out)
}

func (h *Handler) activate(c *gin.Context) {
	h.respond(c, h.service.ActivateCampaign)
}

func (h *Handler) pause(c *gin.Context) {
	h.respond(c, h.service.PauseCampaign)
}

func (h *Handler) cancel(c *gin.Context) {
	h.respond(c, h.service.CancelCampaign)
}

func (h *Handler) respond(c *gin.Context, op func(ctx context.Context, id string) (*Campaign, error)) {
	out, err := op(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, out)
}
