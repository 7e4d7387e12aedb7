package models

import (
	"testing"
	"time"
)

func TestNewAnalytics(t *testing.T) {
	created := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("same day uses raw count", func(t *testing.T) {
		a := NewAnalytics(7, created, created.Add(3*time.Hour))
		if a.DaysSinceCreation != 0 {
			t.Errorf("Expected 0 days, got %d", a.DaysSinceCreation)
		}
		if a.AverageViewsPerDay != 7 {
			t.Errorf("Expected average 7, got %f", a.AverageViewsPerDay)
		}
	})

	t.Run("averages over whole days", func(t *testing.T) {
		a := NewAnalytics(10, created, created.Add(4*24*time.Hour+time.Hour))
		if a.DaysSinceCreation != 4 {
			t.Errorf("Expected 4 days, got %d", a.DaysSinceCreation)
		}
		if a.AverageViewsPerDay != 2.5 {
			t.Errorf("Expected average 2.5, got %f", a.AverageViewsPerDay)
		}
	})

	t.Run("clock skew never goes negative", func(t *testing.T) {
		a := NewAnalytics(1, created, created.Add(-48*time.Hour))
		if a.DaysSinceCreation != 0 {
			t.Errorf("Expected 0 days, got %d", a.DaysSinceCreation)
		}
	})
}

func TestImageRefsEmpty(t *testing.T) {
	if !(ImageRefs{}).Empty() {
		t.Error("Zero value should be empty")
	}
	if (ImageRefs{Theme: []string{"https://x/1.jpg"}}).Empty() {
		t.Error("Refs with a theme image should not be empty")
	}
}

func TestArtifactReason(t *testing.T) {
	if (GeneratedArtifact{}).Reason() != "" {
		t.Error("Expected empty reason for a safe artifact")
	}
	reason := "empty code"
	if (GeneratedArtifact{RejectionReason: &reason}).Reason() != "empty code" {
		t.Error("Expected the rejection reason to be returned")
	}
}
