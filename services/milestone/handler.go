package milestone

import (
	"net/http"

	"partner-incentives/pkg/errutil"
	"partner-incentives/pkg/httpapi"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service   *Service
	publisher *Publisher
}

func NewHandler(service *Service, publisher *Publisher) *Handler {
	return &Handler{service: service, publisher: publisher}
}

func (h *Handler) Register(r gin.IRouter) {
	r.POST("/v1/milestones/evaluate", h.evaluate)
	r.POST("/v1/milestones", h.publish)
}

func (h *Handler) evaluate(c *gin.Context) {
	var ev MilestoneEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		httpapi.Fail(c, errutil.BadRequest("invalid request body", err))
		return
	}

	out, err := h.service.EvaluateMilestone(c.Request.Context(), ev)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, out)
}

// publish accepts the event for asynchronous evaluation by the worker.
func (h *Handler) publish(c *gin.Context) {
	var ev MilestoneEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		httpapi.Fail(c, errutil.BadRequest("invalid request body", err))
		return
	}
	if ev.CaseID == "" || ev.Trigger == "" {
		httpapi.Fail(c, errutil.ValidationFailed("case_id and trigger are required", nil))
		return
	}

	info, err := h.publisher.Publish(c.Request.Context(), ev)
	if err != nil {
		httpapi.Fail(c, errutil.ServiceUnavailable("milestone queue unavailable", err))
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"task_id": info.ID, "queue": info.Queue})
}
