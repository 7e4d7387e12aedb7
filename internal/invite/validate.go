package invite

import (
	"net/mail"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/Gresham24/invite-ai/internal/models"
)

// Validate checks a generation request before anything is sent to the model.
func Validate(req models.GenerationRequest) error {
	fields := map[string]string{}

	required := []struct{ name, value string }{
		{"eventTitle", req.Event.Title},
		{"eventDate", req.Event.Date},
		{"eventTime", req.Event.Time},
		{"venue", req.Event.Venue},
		{"eventDescription", req.Event.Description},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			fields[f.name] = "is required"
		}
	}

	if email := strings.TrimSpace(req.Event.OwnerEmail); email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			fields["userEmail"] = "is not a valid email address"
		}
	}

	images := map[string][]string{
		"uploadedImages.hero":        nonEmpty(req.Images.Hero),
		"uploadedImages.logo":        nonEmpty(req.Images.Logo),
		"uploadedImages.themeImages": req.Images.Theme,
		"uploadedImages.additional":  req.Images.Additional,
	}
	for name, urls := range images {
		for _, u := range urls {
			if !isWebURL(u) {
				fields[name] = "must be an http(s) URL"
				break
			}
		}
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// ValidateID rejects ids that are not UUIDs.
func ValidateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return &ValidationError{Fields: map[string]string{"id": "must be a UUID"}}
	}
	return nil
}

func nonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return []string{s}
}

func isWebURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
