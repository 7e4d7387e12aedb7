package imagestore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Gresham24/invite-ai/internal/metrics"
	"github.com/Gresham24/invite-ai/internal/models"
)

// Slot names the role an uploaded image plays in the invite
type Slot string

const (
	SlotHero       Slot = "hero"
	SlotLogo       Slot = "logo"
	SlotTheme      Slot = "theme"
	SlotAdditional Slot = "additional"
)

// MaxFilesPerSlot bounds the multi-image slots.
const MaxFilesPerSlot = 10

var (
	ErrUnknownSlot     = errors.New("unknown image slot")
	ErrTooManyFiles    = errors.New("too many files for slot")
	ErrTooLarge        = errors.New("file exceeds upload limit")
	ErrEmptyFile       = errors.New("file is empty")
	ErrUnsupportedType = errors.New("file is not an image")
)

// ParseSlot maps a multipart field name onto a slot. Both the form field
// names and the bare slot names are accepted.
func ParseSlot(field string) (Slot, bool) {
	switch field {
	case "heroImage", "hero":
		return SlotHero, true
	case "eventLogo", "logo":
		return SlotLogo, true
	case "themeImages", "theme":
		return SlotTheme, true
	case "additionalImages", "additional":
		return SlotAdditional, true
	}
	return "", false
}

func (s Slot) single() bool {
	return s == SlotHero || s == SlotLogo
}

// File is one uploaded image
type File struct {
	Slot Slot
	Name string
	Data []byte
}

// FileError reports which file of an upload set was rejected.
type FileError struct {
	Slot Slot
	Name string
	Err  error
}

func (e *FileError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("%s: %v", e.Slot, e.Err)
	}
	return fmt.Sprintf("%s (%s): %v", e.Slot, e.Name, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// Uploader validates and stores the image set of one invite.
type Uploader struct {
	bucket   Bucket
	maxBytes int64
	logger   *zap.Logger
}

// NewUploader creates an uploader. maxBytes <= 0 disables the size check.
func NewUploader(bucket Bucket, maxBytes int64, logger *zap.Logger) *Uploader {
	return &Uploader{bucket: bucket, maxBytes: maxBytes, logger: logger}
}

type pending struct {
	file        File
	path        string
	contentType string
	url         string
}

// Upload stores every file concurrently under invites/<inviteID>/<slot>/.
// Either all files are stored or, on failure, the ones already written are
// removed again.
func (u *Uploader) Upload(ctx context.Context, inviteID string, files []File) (models.ImageRefs, error) {
	var refs models.ImageRefs

	jobs, err := u.prepare(inviteID, files)
	if err != nil {
		return refs, err
	}
	if len(jobs) == 0 {
		return refs, nil
	}

	var (
		mu     sync.Mutex
		stored []string
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, job := range jobs {
		g.Go(func() error {
			url, err := u.bucket.Store(gctx, job.file.Data, job.contentType, job.path)
			if err != nil {
				metrics.UploadsTotal.WithLabelValues(string(job.file.Slot), "error").Inc()
				return fmt.Errorf("store %s: %w", job.path, err)
			}
			metrics.UploadsTotal.WithLabelValues(string(job.file.Slot), "stored").Inc()
			job.url = url

			mu.Lock()
			stored = append(stored, job.path)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		u.logger.Error("Image upload failed, removing partial set",
			zap.String("invite_id", inviteID),
			zap.Int("stored", len(stored)),
			zap.Error(err),
		)
		// The request context may already be cancelled.
		if derr := u.bucket.Delete(context.WithoutCancel(ctx), stored); derr != nil {
			u.logger.Warn("Failed to remove partial upload", zap.String("invite_id", inviteID), zap.Error(derr))
		}
		return models.ImageRefs{}, err
	}

	for _, job := range jobs {
		switch job.file.Slot {
		case SlotHero:
			refs.Hero = job.url
		case SlotLogo:
			refs.Logo = job.url
		case SlotTheme:
			refs.Theme = append(refs.Theme, job.url)
		case SlotAdditional:
			refs.Additional = append(refs.Additional, job.url)
		}
	}

	u.logger.Info("Stored invite images",
		zap.String("invite_id", inviteID),
		zap.Int("files", len(jobs)),
	)
	return refs, nil
}

// allowedTypes are the raster formats accepted for upload. Vector and
// markup-bearing formats such as SVG can carry script and are refused.
var allowedTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

// prepare validates the whole set before anything is written.
func (u *Uploader) prepare(inviteID string, files []File) ([]*pending, error) {
	counts := map[Slot]int{}
	jobs := make([]*pending, 0, len(files))

	for _, f := range files {
		switch f.Slot {
		case SlotHero, SlotLogo, SlotTheme, SlotAdditional:
		default:
			return nil, &FileError{Slot: f.Slot, Name: f.Name, Err: ErrUnknownSlot}
		}

		counts[f.Slot]++
		n := counts[f.Slot]
		if (f.Slot.single() && n > 1) || n > MaxFilesPerSlot {
			return nil, &FileError{Slot: f.Slot, Name: f.Name, Err: ErrTooManyFiles}
		}

		if len(f.Data) == 0 {
			return nil, &FileError{Slot: f.Slot, Name: f.Name, Err: ErrEmptyFile}
		}
		if u.maxBytes > 0 && int64(len(f.Data)) > u.maxBytes {
			return nil, &FileError{Slot: f.Slot, Name: f.Name, Err: ErrTooLarge}
		}

		mt := mimetype.Detect(f.Data)
		if !allowedTypes[mt.String()] {
			return nil, &FileError{Slot: f.Slot, Name: f.Name, Err: fmt.Errorf("%w: %s", ErrUnsupportedType, mt.String())}
		}

		name := string(f.Slot)
		if !f.Slot.single() {
			name = fmt.Sprintf("%s-%d", f.Slot, n)
		}
		jobs = append(jobs, &pending{
			file:        f,
			path:        InvitePrefix(inviteID) + string(f.Slot) + "/" + name + mt.Extension(),
			contentType: mt.String(),
		})
	}
	return jobs, nil
}

// HasImages reports whether any image is stored for an invite.
func (u *Uploader) HasImages(ctx context.Context, inviteID string) (bool, error) {
	paths, err := u.bucket.List(ctx, InvitePrefix(inviteID))
	if err != nil {
		return false, fmt.Errorf("list images: %w", err)
	}
	return len(paths) > 0, nil
}

// DeleteInvite removes every image stored for an invite and reports how many
// objects were removed.
func (u *Uploader) DeleteInvite(ctx context.Context, inviteID string) (int, error) {
	paths, err := u.bucket.List(ctx, InvitePrefix(inviteID))
	if err != nil {
		return 0, fmt.Errorf("list images: %w", err)
	}
	if len(paths) == 0 {
		return 0, nil
	}
	if err := u.bucket.Delete(ctx, paths); err != nil {
		return 0, fmt.Errorf("delete images: %w", err)
	}
	return len(paths), nil
}
