package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Gresham24/invite-ai/internal/imagestore"
	"github.com/Gresham24/invite-ai/internal/middleware"
)

// assetCSP keeps a stored object from running script if a browser ever
// treats it as a document.
const assetCSP = "sandbox; default-src 'none'"

// AssetHandler streams uploaded images from the object store
type AssetHandler struct {
	bucket imagestore.Bucket
	logger *zap.Logger
}

// NewAssetHandler creates a new asset handler
func NewAssetHandler(bucket imagestore.Bucket, logger *zap.Logger) *AssetHandler {
	return &AssetHandler{bucket: bucket, logger: logger}
}

// Serve streams the object at the wildcard path
func (h *AssetHandler) Serve(c *gin.Context) {
	p, err := imagestore.CleanPath(c.Param("path"))
	if err != nil {
		middleware.NotFound(c, "Image not found")
		return
	}

	obj, err := h.bucket.Open(c.Request.Context(), p)
	if errors.Is(err, imagestore.ErrNotFound) {
		middleware.NotFound(c, "Image not found")
		return
	}
	if err != nil {
		h.logger.Error("Failed to open image", zap.String("path", p), zap.Error(err))
		middleware.RespondError(c, http.StatusInternalServerError, middleware.ErrCodeStorageError, "Failed to load image")
		return
	}
	defer obj.Close()

	c.DataFromReader(http.StatusOK, obj.Size, obj.ContentType, obj, map[string]string{
		"Cache-Control":           "public, max-age=86400",
		"Content-Security-Policy": assetCSP,
		"X-Content-Type-Options": "nosniff",
	})
}
