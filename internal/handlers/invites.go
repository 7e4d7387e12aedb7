package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Gresham24/invite-ai/internal/invite"
	"github.com/Gresham24/invite-ai/internal/middleware"
	"github.com/Gresham24/invite-ai/internal/models"
)

// InviteHandler serves the invite API
type InviteHandler struct {
	svc     *invite.Service
	pageURL func(id string) string
	logger  *zap.Logger
}

// NewInviteHandler creates a new invite handler. pageURL builds the public
// link of an invite page.
func NewInviteHandler(svc *invite.Service, pageURL func(id string) string, logger *zap.Logger) *InviteHandler {
	return &InviteHandler{svc: svc, pageURL: pageURL, logger: logger}
}

// CreateInviteRequest is the request body for generating an invite. InviteID
// is the id reserved by an earlier upload, if any.
type CreateInviteRequest struct {
	FormData       models.EventFields `json:"formData"`
	UploadedImages models.ImageRefs   `json:"uploadedImages"`
	InviteID       string             `json:"inviteId"`
}

// InviteResponse wraps a stored invite with its public page URL
type InviteResponse struct {
	Invite *models.Invite `json:"invite"`
	URL    string         `json:"url"`
}

func (h *InviteHandler) response(inv *models.Invite) InviteResponse {
	return InviteResponse{Invite: inv, URL: h.pageURL(inv.ID)}
}

// Create generates and stores a new invite
func (h *InviteHandler) Create(c *gin.Context) {
	var req CreateInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.BadRequest(c, "Invalid request body")
		return
	}

	inv, err := h.svc.Generate(c.Request.Context(), models.GenerationRequest{
		Event:  req.FormData,
		Images: req.UploadedImages,
	}, req.InviteID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, h.response(inv))
}

// Get returns a stored invite and counts a view
func (h *InviteHandler) Get(c *gin.Context) {
	inv, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, h.response(inv))
}

// Regenerate runs a fresh generation for the stored inputs
func (h *InviteHandler) Regenerate(c *gin.Context) {
	inv, err := h.svc.Regenerate(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, h.response(inv))
}

// Analytics returns view figures for an invite
func (h *InviteHandler) Analytics(c *gin.Context) {
	a, err := h.svc.Analytics(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// Delete soft-deletes an invite owned by the caller. Admins may delete any invite.
func (h *InviteHandler) Delete(c *gin.Context) {
	email, _ := middleware.GetEmail(c)
	actor := invite.Actor{Email: email, Admin: middleware.IsAdmin(c)}

	if err := h.svc.Delete(c.Request.Context(), c.Param("id"), actor); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListForOwner lists the newest invites of the owner in the path
func (h *InviteHandler) ListForOwner(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			middleware.BadRequest(c, "limit must be a positive integer")
			return
		}
		limit = n
	}

	list, err := h.svc.ListForOwner(c.Request.Context(), c.Param("email"), limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invites": list, "count": len(list)})
}

// Cleanup expires invites older than daysOld (default from config)
func (h *InviteHandler) Cleanup(defaultDaysOld int) gin.HandlerFunc {
	return func(c *gin.Context) {
		days := defaultDaysOld
		if raw := c.Query("daysOld"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				middleware.BadRequest(c, "daysOld must be a positive integer")
				return
			}
			days = n
		}

		report, err := h.svc.Cleanup(c.Request.Context(), days, time.Now())
		if err != nil {
			respondError(c, h.logger, err)
			return
		}
		h.logger.Info("Cleanup run via API",
			zap.Int("days_old", days),
			zap.Int("processed", report.Processed),
			zap.Int("deleted", report.Deleted),
		)
		c.JSON(http.StatusOK, report)
	}
}
