package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Gresham24/invite-ai/internal/invite"
	"github.com/Gresham24/invite-ai/internal/middleware"
	"github.com/Gresham24/invite-ai/internal/render"
)

const htmlContentType = "text/html; charset=utf-8"

// PageHandler serves the public invite pages
type PageHandler struct {
	svc      *invite.Service
	renderer *render.Renderer
	logger   *zap.Logger
}

// NewPageHandler creates a new page handler
func NewPageHandler(svc *invite.Service, renderer *render.Renderer, logger *zap.Logger) *PageHandler {
	return &PageHandler{svc: svc, renderer: renderer, logger: logger}
}

// FramePath is the route of the sandboxed document of an invite.
func FramePath(id string) string {
	return "/invite/" + id + "/frame"
}

// Page serves the host page. A rendered invite is shown in a sandboxed frame;
// anything else gets the static fallback view.
func (h *PageHandler) Page(c *gin.Context) {
	id := c.Param("id")
	page, err := h.svc.Page(c.Request.Context(), id, FramePath(id))
	if err != nil {
		h.pageError(c, err)
		return
	}

	c.Header("Content-Security-Policy", render.HostCSP)
	c.Header("X-Content-Type-Options", "nosniff")
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, htmlContentType, page.HTML)
}

// Frame serves the artifact document. It only runs inside the opaque origin
// the sandbox CSP gives it.
func (h *PageHandler) Frame(c *gin.Context) {
	out, err := h.svc.Frame(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.pageError(c, err)
		return
	}

	body := out.Frame
	if out.State != render.Rendered {
		body = out.Fallback
	}
	c.Header("Content-Security-Policy", h.renderer.FrameCSP())
	c.Header("X-Content-Type-Options", "nosniff")
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, htmlContentType, body)
}

func (h *PageHandler) pageError(c *gin.Context, err error) {
	c.Header("Content-Security-Policy", render.HostCSP)
	if errors.Is(err, invite.ErrNotFound) {
		c.Data(http.StatusNotFound, htmlContentType, h.renderer.NotFoundPage())
		return
	}
	h.logger.Error("Failed to render invite page",
		zap.String("invite_id", c.Param("id")),
		zap.String("request_id", middleware.GetRequestID(c)),
		zap.Error(err),
	)
	c.Data(http.StatusInternalServerError, htmlContentType, []byte("<!DOCTYPE html><title>Error</title><p>Something went wrong. Please try again.</p>"))
}
