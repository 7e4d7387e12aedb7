package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Gresham24/invite-ai/internal/imagestore"
	"github.com/Gresham24/invite-ai/internal/invite"
	"github.com/Gresham24/invite-ai/internal/middleware"
	"github.com/Gresham24/invite-ai/internal/models"
)

// multipartMemory is how much of a multipart body is buffered in memory
// before spilling to temp files.
const multipartMemory = 32 << 20

// UploadHandler stores the image set of an invite ahead of generation
type UploadHandler struct {
	svc      *invite.Service
	uploader *imagestore.Uploader
	maxBytes int64
	logger   *zap.Logger
}

// NewUploadHandler creates a new upload handler. maxBytes is the per-file limit.
func NewUploadHandler(svc *invite.Service, uploader *imagestore.Uploader, maxBytes int64, logger *zap.Logger) *UploadHandler {
	return &UploadHandler{svc: svc, uploader: uploader, maxBytes: maxBytes, logger: logger}
}

// UploadResponse carries the reserved invite id and the stored image URLs
type UploadResponse struct {
	InviteID       string           `json:"inviteId"`
	UploadedImages models.ImageRefs `json:"uploadedImages"`
}

// Upload accepts multipart image fields (heroImage, eventLogo, themeImages,
// additionalImages). The returned inviteId is passed to invite creation so
// the invite and its images share one id. A supplied inviteId must be unused.
func (h *UploadHandler) Upload(c *gin.Context) {
	if err := c.Request.ParseMultipartForm(multipartMemory); err != nil {
		middleware.BadRequest(c, "Invalid multipart form")
		return
	}
	form := c.Request.MultipartForm
	defer form.RemoveAll()

	inviteID := c.Request.FormValue("inviteId")
	if inviteID == "" {
		inviteID = uuid.NewString()
	} else if err := h.svc.CheckUploadID(c.Request.Context(), inviteID); err != nil {
		var ve *invite.ValidationError
		if errors.As(err, &ve) {
			middleware.ValidationFailed(c, map[string]string{"inviteId": "must be a UUID"})
			return
		}
		respondError(c, h.logger, err)
		return
	}

	files, err := h.readFiles(form)
	if err != nil {
		h.respondUploadError(c, err)
		return
	}
	if len(files) == 0 {
		middleware.ValidationFailed(c, map[string]string{"files": "at least one image is required"})
		return
	}

	refs, err := h.uploader.Upload(c.Request.Context(), inviteID, files)
	if err != nil {
		h.respondUploadError(c, err)
		return
	}
	c.JSON(http.StatusCreated, UploadResponse{InviteID: inviteID, UploadedImages: refs})
}

// readFiles collects the files of every known slot field in a stable order.
func (h *UploadHandler) readFiles(form *multipart.Form) ([]imagestore.File, error) {
	fields := make([]string, 0, len(form.File))
	for field := range form.File {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var files []imagestore.File
	for _, field := range fields {
		slot, ok := imagestore.ParseSlot(field)
		if !ok {
			return nil, &imagestore.FileError{Slot: imagestore.Slot(field), Err: imagestore.ErrUnknownSlot}
		}
		for _, fh := range form.File[field] {
			data, err := h.readFile(fh)
			if err != nil {
				return nil, &imagestore.FileError{Slot: slot, Name: fh.Filename, Err: err}
			}
			files = append(files, imagestore.File{Slot: slot, Name: fh.Filename, Data: data})
		}
	}
	return files, nil
}

func (h *UploadHandler) readFile(fh *multipart.FileHeader) ([]byte, error) {
	if h.maxBytes > 0 && fh.Size > h.maxBytes {
		return nil, imagestore.ErrTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	r := io.Reader(f)
	if h.maxBytes > 0 {
		r = io.LimitReader(f, h.maxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if h.maxBytes > 0 && int64(len(data)) > h.maxBytes {
		return nil, imagestore.ErrTooLarge
	}
	return data, nil
}

func (h *UploadHandler) respondUploadError(c *gin.Context, err error) {
	var fileErr *imagestore.FileError
	if !errors.As(err, &fileErr) {
		h.logger.Error("Image upload failed",
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.Error(err),
		)
		middleware.RespondError(c, http.StatusInternalServerError, middleware.ErrCodeStorageError, "Failed to store images")
		return
	}

	details := map[string]string{string(fileErr.Slot): fileErr.Error()}
	if errors.Is(err, imagestore.ErrTooLarge) {
		middleware.RespondErrorWithDetails(c, http.StatusRequestEntityTooLarge, middleware.ErrCodePayloadTooLarge,
			"Image exceeds the upload limit", details)
		return
	}
	middleware.ValidationFailed(c, details)
}
