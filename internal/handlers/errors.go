package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Gresham24/invite-ai/internal/imagestore"
	"github.com/Gresham24/invite-ai/internal/invite"
	"github.com/Gresham24/invite-ai/internal/middleware"
)

// respondError maps service errors onto the JSON error envelope.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	var (
		validation  *invite.ValidationError
		upstream    *invite.UpstreamGenerationError
		persistence *invite.PersistenceError
	)
	switch {
	case errors.As(err, &validation):
		middleware.ValidationFailed(c, validation.Fields)
	case errors.As(err, &upstream):
		middleware.GenerationFailed(c)
	case errors.As(err, &persistence):
		logger.Error("Persistence failure",
			zap.String("op", persistence.Op),
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.Error(persistence.Err),
		)
		middleware.RespondErrorWithRetry(c, http.StatusInternalServerError, middleware.ErrCodePersistence,
			"Failed to "+persistence.Op+" invite", int(persistence.RetryAfter.Milliseconds()))
	case errors.Is(err, invite.ErrNotFound):
		middleware.NotFound(c, "Invite not found")
	case errors.Is(err, invite.ErrIDTaken):
		middleware.Conflict(c, "Invite id already in use")
	case errors.Is(err, invite.ErrForbidden):
		middleware.Forbidden(c, "Not allowed to modify this invite")
	case errors.Is(err, imagestore.ErrNotFound):
		middleware.NotFound(c, "Image not found")
	default:
		logger.Error("Unhandled error",
			zap.String("path", c.FullPath()),
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.Error(err),
		)
		middleware.InternalError(c, "Internal server error")
	}
}
