package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/envie/envie-server/src/logging"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// UserIDKey is the context key for the authenticated user
const UserIDKey = "user_id"

// MinJWTSecretLength is the shortest accepted HS256 secret
const MinJWTSecretLength = 32

// UserClaims contains JWT claims for user authentication
type UserClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// CheckJWTSecret rejects secrets too short for HS256
func CheckJWTSecret(secret string) error {
	if secret == "" {
		return fmt.Errorf("JWT_SECRET cannot be empty")
	}
	if len(secret) < MinJWTSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters long", MinJWTSecretLength)
	}
	return nil
}

// GenerateUserToken creates an HS256 token for userID.
// Sessions are issued elsewhere; this serves tests and local tooling.
func GenerateUserToken(secret string, userID uuid.UUID, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("JWT secret not initialized")
	}

	now := time.Now()
	claims := UserClaims{
		UserID: userID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "envie",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateUserToken parses and validates a user JWT
func ValidateUserToken(secret, tokenString string) (*UserClaims, error) {
	if secret == "" {
		return nil, fmt.Errorf("JWT secret not initialized")
	}

	claims := &UserClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if _, err := uuid.Parse(claims.UserID); err != nil {
		return nil, fmt.Errorf("invalid user_id claim: %w", err)
	}

	return claims, nil
}

// UserAuthMiddleware validates the bearer JWT and stores the user ID
func UserAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		tokenString, found := strings.CutPrefix(authHeader, "Bearer ")
		if !found || tokenString == "" {
			abortWithError(c, http.StatusUnauthorized, "unauthorized", "missing or invalid authorization header")
			return
		}

		claims, err := ValidateUserToken(secret, tokenString)
		if err != nil {
			abortWithError(c, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
			return
		}

		userID := uuid.MustParse(claims.UserID)
		c.Set(UserIDKey, userID)
		c.Request = c.Request.WithContext(logging.WithFields(c.Request.Context(), "user_id", claims.UserID))
		c.Next()
	}
}

// GetUserID returns the authenticated user, if any
func GetUserID(c *gin.Context) (uuid.UUID, bool) {
	v, exists := c.Get(UserIDKey)
	if !exists {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}
