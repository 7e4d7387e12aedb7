package imagestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when no object exists at a path
	ErrNotFound = errors.New("image not found")
	// ErrInvalidPath rejects object paths outside the invite namespace
	ErrInvalidPath = errors.New("invalid image path")
)

// RootPrefix is the namespace every invite image lives under.
const RootPrefix = "invites/"

// Object is an opened image ready to be streamed to a client.
type Object struct {
	io.ReadCloser
	ContentType string
	Size        int64
	ModTime     time.Time
}

// Bucket stores uploaded images addressed by path.
type Bucket interface {
	// Store writes data at path and returns its public URL. Existing objects are replaced.
	Store(ctx context.Context, data []byte, contentType, path string) (string, error)
	// Delete removes the given paths. Missing paths are ignored.
	Delete(ctx context.Context, paths []string) error
	// List returns the paths under prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
	// Open returns the object at path or ErrNotFound.
	Open(ctx context.Context, path string) (*Object, error)
}

// URLFunc maps an object path to the URL it is served from.
type URLFunc func(path string) string

// AssetURL serves objects from baseURL + "/assets/".
func AssetURL(baseURL string) URLFunc {
	base := strings.TrimRight(baseURL, "/") + "/assets/"
	return func(p string) string {
		return base + p
	}
}

// CleanPath validates an object path and returns its canonical form.
func CleanPath(p string) (string, error) {
	p = strings.TrimLeft(p, "/")
	if p == "" || strings.Contains(p, "\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	cleaned := path.Clean(p)
	if cleaned != p || !strings.HasPrefix(cleaned, RootPrefix) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	return cleaned, nil
}

// InvitePrefix is the folder holding every image of one invite.
func InvitePrefix(inviteID string) string {
	return RootPrefix + inviteID + "/"
}

// PathFromURL recovers the object path from a URL produced by AssetURL.
func PathFromURL(u string) (string, bool) {
	i := strings.Index(u, "/assets/")
	if i < 0 {
		return "", false
	}
	p, err := CleanPath(u[i+len("/assets/"):])
	if err != nil {
		return "", false
	}
	return p, true
}
