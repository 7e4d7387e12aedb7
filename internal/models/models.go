package models

import (
	"time"
)

// EventFields holds the structured description of the event as entered in the form.
// Optional fields are empty when absent.
type EventFields struct {
	Title       string `json:"eventTitle"`
	Date        string `json:"eventDate"`
	Time        string `json:"eventTime"`
	Venue       string `json:"venue"`
	Description string `json:"eventDescription"`

	DressCode    string `json:"dressCode,omitempty"`
	Theme        string `json:"eventTheme,omitempty"`
	ColorScheme  string `json:"colorScheme,omitempty"`
	RSVPWhatsApp string `json:"rsvpWhatsApp,omitempty"`
	RSVPContact  string `json:"rsvpContact,omitempty"`
	OwnerEmail   string `json:"userEmail,omitempty"`
}

// ImageRefs maps upload slots to their public URLs
type ImageRefs struct {
	Hero       string   `json:"hero,omitempty"`
	Logo       string   `json:"logo,omitempty"`
	Theme      []string `json:"themeImages,omitempty"`
	Additional []string `json:"additional,omitempty"`
}

// Empty reports whether no slot holds an image.
func (r ImageRefs) Empty() bool {
	return r.Hero == "" && r.Logo == "" && len(r.Theme) == 0 && len(r.Additional) == 0
}

// GenerationRequest is the input of one generation run. It is not modified
// after it has been turned into a prompt.
type GenerationRequest struct {
	Event  EventFields `json:"formData"`
	Images ImageRefs   `json:"uploadedImages"`
}

// GeneratedArtifact is the outcome of one generation call after extraction and
// sanitization. An unsafe artifact is still an artifact: IsSafe is false and
// SanitizedCode is empty.
type GeneratedArtifact struct {
	RawText         string  `json:"-"`
	SanitizedCode   string  `json:"-"`
	IsSafe          bool    `json:"is_safe"`
	RejectionReason *string `json:"rejection_reason,omitempty"`
	Model           string  `json:"model,omitempty"`
	CodeHash        string  `json:"code_hash,omitempty"`
	Seal            string  `json:"-"`
}

// Reason returns the rejection reason or an empty string.
func (a GeneratedArtifact) Reason() string {
	if a.RejectionReason == nil {
		return ""
	}
	return *a.RejectionReason
}

// Invite is the persisted record of one generated invitation
type Invite struct {
	ID         string            `json:"id"`
	Inputs     GenerationRequest `json:"inputs"`
	Artifact   GeneratedArtifact `json:"artifact"`
	OwnerEmail string            `json:"owner_email,omitempty"`
	ViewCount  int64             `json:"view_count"`
	IsActive   bool              `json:"is_active"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
	DeletedAt  *time.Time        `json:"deleted_at,omitempty"`
}

// Usage reports token consumption of a generation call
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

// GenerationLog tracks generation costs
type GenerationLog struct {
	ID        string    `json:"id"`
	InviteID  string    `json:"invite_id"`
	ModelID   string    `json:"model_id"`
	TokensIn  int       `json:"tokens_in"`
	TokensOut int       `json:"tokens_out"`
	LatencyMs int64     `json:"latency_ms"`
	Cost      float64   `json:"cost"`
	Safe      bool      `json:"safe"`
	CreatedAt time.Time `json:"created_at"`
}

// Analytics summarizes how often an invite has been viewed
type Analytics struct {
	ViewCount          int64     `json:"viewCount"`
	CreatedAt          time.Time `json:"createdAt"`
	DaysSinceCreation  int       `json:"daysSinceCreation"`
	AverageViewsPerDay float64   `json:"averageViewsPerDay"`
}

// NewAnalytics derives the per-day figures relative to now.
func NewAnalytics(viewCount int64, createdAt, now time.Time) Analytics {
	days := int(now.Sub(createdAt).Hours() / 24)
	if days < 0 {
		days = 0
	}
	avg := float64(viewCount)
	if days > 0 {
		avg = float64(viewCount) / float64(days)
	}
	return Analytics{
		ViewCount:          viewCount,
		CreatedAt:          createdAt,
		DaysSinceCreation:  days,
		AverageViewsPerDay: avg,
	}
}

// InviteSummary is the owner-facing listing entry
type InviteSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Date      string    `json:"date"`
	CreatedAt time.Time `json:"createdAt"`
	ViewCount int64     `json:"viewCount"`
}
