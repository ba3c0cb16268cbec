package recipient

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
	ref := r.Group("/v1/referrers")
	ref.POST("", h.registerReferrer)
	ref.GET("", h.listReferrers)
	ref.GET("/:id", h.getReferrer)
	ref.POST("/:id/verify", h.verifyReferrer)
	ref.POST("/:id/suspend", h.suspendReferrer)
	ref.POST("/:id/reinstate", h.reinstateReferrer)
	ref.POST("/:id/block", h.blockReferrer)
	ref.PUT("/:id/bank-account", h.updateBankAccount)
	ref.GET("/:id/flags", h.listFlags)
	ref.POST("/:id/flags", h.raiseFlag)
	ref.GET("/:id/links", h.listLinks)
	ref.POST("/:id/links", h.createLink)

	r.POST("/v1/fraud-flags/:id/resolve", h.resolveFlag)
	r.POST("/v1/referral-links/:code/click", h.recordClick)
	r.POST("/v1/referral-links/:code/deactivate", h.deactivateLink)

	law := r.Group("/v1/lawyers")
	law.POST("", h.registerLawyer)
	law.GET("", h.listLawyers)
	law.GET("/:id", h.getLawyer)
	law.POST("/:id/verify", h.verifyLawyer)
	law.POST("/:id/activate", h.activateLawyer)
	law.POST("/:id/deactivate", h.deactivateLawyer)

	r.PUT("/v1/cases/:case_id/recipients", h.assign)
	r.GET("/v1/cases/:case_id/recipients", h.listAssignments)
}

type reasonBody struct {
	Reason string `json:"reason"`
}

func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		httpapi.Fail(c, errutil.BadRequest("invalid request body", err))
		return false
	}
	return true
}

func reply[T any](c *gin.Context, out T, err error) {
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, out)
}

func (h *Handler) registerReferrer(c *gin.Context) {
	var in RegisterReferrerInput
	if !bindJSON(c, &in) {
		return
	}
	out, err := h.service.RegisterReferrer(c.Request.Context(), in)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.Created(c, out)
}

func (h *Handler) listReferrers(c *gin.Context) {
	var in ListReferrersInput
	if err := c.ShouldBindQuery(&in); err != nil {
		httpapi.Fail(c, errutil.BadRequest("invalid query", err))
		return
	}
	rows, page, err := h.service.ListReferrers(c.Request.Context(), in)
	reply(c, gin.H{"referrers": rows, "page_info": page}, err)
}

func (h *Handler) getReferrer(c *gin.Context) {
	out, err := h.service.GetReferrer(c.Request.Context(), c.Param("id"))
	reply(c, out, err)
}

func (h *Handler) verifyReferrer(c *gin.Context) {
	out, err := h.service.VerifyReferrer(c.Request.Context(), c.Param("id"), httpapi.Actor(c))
	reply(c, out, err)
}

func (h *Handler) suspendReferrer(c *gin.Context) {
	h.withReason(c, h.service.SuspendReferrer)
}

func (h *Handler) blockReferrer(c *gin.Context) {
	h.withReason(c, h.service.BlockReferrer)
}

func (h *Handler) withReason(c *gin.Context, op func(ctx context.Context, id, reason string) (*Referrer, error)) {
	var body reasonBody
	if !bindJSON(c, &body) {
		return
	}
	out, err := op(c.Request.Context(), c.Param("id"), body.Reason)
	reply(c, out, err)
}

func (h *Handler) reinstateReferrer(c *gin.Context) {
	out, err := h.service.ReinstateReferrer(c.Request.Context(), c.Param("id"))
	reply(c, out, err)
}

func (h *Handler) updateBankAccount(c *gin.Context) {
	var in BankAccount
	if !bindJSON(c, &in) {
		return
	}
	out, err := h.service.UpdateReferrerBankAccount(c.Request.Context(), c.Param("id"), in)
	reply(c, out, err)
}

func (h *Handler) listFlags(c *gin.Context) {
	out, err := h.service.ListFlags(c.Request.Context(), c.Param("id"), c.Query("unresolved") == "true")
	reply(c, gin.H{"flags": out}, err)
}

func (h *Handler) raiseFlag(c *gin.Context) {
	var body struct {
		Type    FlagType `json:"type"`
		Details string   `json:"details"`
	}
	if !bindJSON(c, &body) {
		return
	}
	out, err := h.service.RaiseFlag(c.Request.Context(), c.Param("id"), body.Type, body.Details)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.Created(c, out)
}

func (h *Handler) resolveFlag(c *gin.Context) {
	var body struct {
		Note string `json:"note"`
	}
	if !bindJSON(c, &body) {
		return
	}
	out, err := h.service.ResolveFlag(c.Request.Context(), c.Param("id"), httpapi.Actor(c), body.Note)
	reply(c, out, err)
}

func (h *Handler) listLinks(c *gin.Context) {
	out, err := h.service.ListLinks(c.Request.Context(), c.Param("id"))
	reply(c, gin.H{"links": out}, err)
}

func (h *Handler) createLink(c *gin.Context) {
	var in CreateLinkInput
	if !bindJSON(c, &in) {
		return
	}
	in.ReferrerID = c.Param("id")
	out, err := h.service.CreateReferralLink(c.Request.Context(), in)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.Created(c, out)
}

func (h *Handler) recordClick(c *gin.Context) {
	out, err := h.service.RecordClick(c.Request.Context(), c.Param("code"))
	reply(c, out, err)
}

func (h *Handler) deactivateLink(c *gin.Context) {
	out, err := h.service.DeactivateLink(c.Request.Context(), c.Param("code"))
	reply(c, out, err)
}

func (h *Handler) registerLawyer(c *gin.Context) {
	var in RegisterLawyerInput
	if !bindJSON(c, &in) {
		return
	}
	out, err := h.service.RegisterLawyer(c.Request.Context(), in)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.Created(c, out)
}

func (h *Handler) listLawyers(c *gin.Context) {
	out, err := h.service.ListLawyers(c.Request.Context(), LawyerStatus(c.Query("status")))
	reply(c, gin.H{"lawyers": out}, err)
}

func (h *Handler) getLawyer(c *gin.Context) {
	out, err := h.service.GetLawyer(c.Request.Context(), c.Param("id"))
	reply(c, out, err)
}

func (h *Handler) verifyLawyer(c *gin.Context) {
	out, err := h.service.VerifyLawyer(c.Request.Context(), c.Param("id"), httpapi.Actor(c))
	reply(c, out, err)
}

func (h *Handler) activateLawyer(c *gin.Context) {
	out, err := h.service.ActivateLawyer(c.Request.Context(), c.Param("id"))
	reply(c, out, err)
}

func (h *Handler) deactivateLawyer(c *gin.Context) {
	out, err := h.service.DeactivateLawyer(c.Request.Context(), c.Param("id"))
	reply(c, out, err)
}

func (h *Handler) assign(c *gin.Context) {
	var in AssignRecipientInput
	if !bindJSON(c, &in) {
		return
	}
	in.CaseID = c.Param("case_id")
	in.AssignedBy = httpapi.Actor(c)
	out, err := h.service.AssignRecipient(c.Request.Context(), in)
	reply(c, out, err)
}

func (h *Handler) listAssignments(c *gin.Context) {
	out, err := h.service.ListAssignments(c.Request.Context(), c.Param("case_id"))
	reply(c, gin.H{"assignments": out}, err)
}
