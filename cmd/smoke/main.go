package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/Gresham24/invite-ai/internal/config"
	"github.com/Gresham24/invite-ai/internal/middleware"
)

// smoke drives a running server through create, view, list and delete.
func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	base := strings.TrimRight(cfg.PublicBaseURL, "/")

	email := fmt.Sprintf("smoke-%s@example.com", uuid.NewString()[:8])
	token, err := middleware.IssueToken(cfg.JWTSecret, email, middleware.RoleUser, time.Hour)
	if err != nil {
		log.Fatalf("Failed to sign token: %v", err)
	}

	client := &http.Client{Timeout: cfg.GenerationTimeout + 10*time.Second}

	// 1. Generate
	log.Printf("Creating invite for %s...", email)
	payload := map[string]any{
		"formData": map[string]string{
			"eventTitle":       "Smoke Test 30th Birthday",
			"eventDate":        "2026-12-31",
			"eventTime":        "19:00",
			"venue":            "The Test Hall",
			"eventDescription": "Checking the whole pipeline end to end.",
			"userEmail":        email,
		},
	}
	var created struct {
		Invite struct {
			ID       string `json:"id"`
			Artifact struct {
				IsSafe          bool   `json:"is_safe"`
				RejectionReason string `json:"rejection_reason"`
				Model           string `json:"model"`
			} `json:"artifact"`
		} `json:"invite"`
		URL string `json:"url"`
	}
	call(client, http.MethodPost, base+"/api/v1/invites", "", payload, http.StatusCreated, &created)
	log.Printf("Invite %s created (safe=%v reason=%q model=%s)",
		created.Invite.ID, created.Invite.Artifact.IsSafe, created.Invite.Artifact.RejectionReason, created.Invite.Artifact.Model)

	// 2. View the page
	call(client, http.MethodGet, created.URL, "", nil, http.StatusOK, nil)
	log.Printf("Page served at %s", created.URL)

	// 3. Owner listing
	var listing struct {
		Count int `json:"count"`
	}
	call(client, http.MethodGet, base+"/api/v1/users/"+email+"/invites", token, nil, http.StatusOK, &listing)
	log.Printf("Owner has %d invite(s)", listing.Count)

	// 4. Delete
	call(client, http.MethodDelete, base+"/api/v1/invites/"+created.Invite.ID, token, nil, http.StatusNoContent, nil)
	call(client, http.MethodGet, base+"/api/v1/invites/"+created.Invite.ID, "", nil, http.StatusNotFound, nil)

	log.Println("SUCCESS: smoke test passed")
}

func call(client *http.Client, method, url, token string, payload any, want int, out any) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			log.Fatalf("Failed to encode request: %v", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, url, body)
	if err != nil {
		log.Fatalf("Failed to build request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("%s %s failed: %v", method, url, err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != want {
		log.Fatalf("%s %s: expected %d, got %d. Body: %s", method, url, want, resp.StatusCode, data)
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			log.Fatalf("%s %s: invalid response: %v", method, url, err)
		}
	}
}
