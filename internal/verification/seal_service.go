// Package verification seals sanitized artifacts so that code altered in
// storage is never handed to the renderer.
package verification

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/Gresham24/invite-ai/internal/models"
)

// SealService creates and checks artifact seals
type SealService struct {
	signingKey []byte
}

// NewSealService creates a seal service keyed with signingKey
func NewSealService(signingKey string) *SealService {
	return &SealService{
		signingKey: []byte(signingKey),
	}
}

// Seal stamps the artifact with the hash of its sanitized code and an HMAC
// binding that hash and the verdict to the invite id.
func (s *SealService) Seal(inviteID string, a *models.GeneratedArtifact) {
	a.CodeHash = CodeHash(a.SanitizedCode)
	a.Seal = s.sign(sealPayload(inviteID, a))
}

// Verify reports whether the stored artifact still matches its seal.
func (s *SealService) Verify(inviteID string, a models.GeneratedArtifact) bool {
	if a.Seal == "" || a.CodeHash != CodeHash(a.SanitizedCode) {
		return false
	}
	want := s.sign(sealPayload(inviteID, &a))
	return hmac.Equal([]byte(want), []byte(a.Seal))
}

// CodeHash computes the SHA-256 hex digest of code
func CodeHash(code string) string {
	hash := sha256.Sum256([]byte(code))
	return hex.EncodeToString(hash[:])
}

func sealPayload(inviteID string, a *models.GeneratedArtifact) string {
	return fmt.Sprintf("%s:%t:%s:%s", inviteID, a.IsSafe, a.CodeHash, a.Reason())
}

// sign creates an HMAC-SHA256 signature
func (s *SealService) sign(data string) string {
	h := hmac.New(sha256.New, s.signingKey)
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}
