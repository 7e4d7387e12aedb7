package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Context keys set by Auth
const (
	ContextEmail = "auth_email"
	ContextRole  = "auth_role"
)

// Claims are the JWT claims accepted for owner and admin routes.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for email with the given role.
func IssueToken(secret, email, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: strings.ToLower(strings.TrimSpace(email)),
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken validates a token signed with secret and returns its claims.
func ParseToken(secret, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Email == "" {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// Auth requires a valid bearer token and stores its email and role in the
// request context.
func Auth(secret string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abortWithError(c, http.StatusUnauthorized, APIError{Code: ErrCodeUnauthorized, Message: "missing authorization header"})
			return
		}

		tokenString := strings.TrimPrefix(header, "Bearer ")
		if tokenString == header {
			abortWithError(c, http.StatusUnauthorized, APIError{Code: ErrCodeUnauthorized, Message: "invalid authorization format"})
			return
		}

		claims, err := ParseToken(secret, tokenString)
		if err != nil {
			logger.Warn("JWT parse failed", zap.Error(err), zap.String("request_id", GetRequestID(c)))
			abortWithError(c, http.StatusUnauthorized, APIError{Code: ErrCodeUnauthorized, Message: "invalid token"})
			return
		}

		c.Set(ContextEmail, strings.ToLower(claims.Email))
		c.Set(ContextRole, claims.Role)
		c.Next()
	}
}

// GetEmail returns the authenticated email.
func GetEmail(c *gin.Context) (string, bool) {
	email := c.GetString(ContextEmail)
	return email, email != ""
}

// GetRole returns the authenticated role.
func GetRole(c *gin.Context) string {
	return c.GetString(ContextRole)
}

// IsAdmin reports whether the caller holds the admin role.
func IsAdmin(c *gin.Context) bool {
	return GetRole(c) == RoleAdmin
}
