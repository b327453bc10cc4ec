// JWT authentication. The token claims carry the tenant the session is
// scoped to; every protected handler reads tenancy from the claims, never
// from the request.
package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// ─── JWT auth ────────────────────────────────────────────────────────────────

// jwtSecret is set once at server start from config.
var jwtSecret []byte

// SetJWTSecret stores the signing key; call this before registering routes.
func SetJWTSecret(secret string) {
	jwtSecret = []byte(secret)
}

// adminUser / adminPassHash / adminTenantID are set at startup from config.
// Only the bcrypt hash of the password is kept in memory.
var (
	adminUser     string
	adminPassHash []byte
	adminTenantID uint
)

// SetAdminCredentials hashes and stores credentials for /api/login.
func SetAdminCredentials(user, pass string, tenantID uint) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pass), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	adminUser = user
	adminPassHash = hash
	adminTenantID = tenantID
	return nil
}

// checkPassword compares a login attempt against the stored hash.
func checkPassword(user, pass string) bool {
	if user != adminUser {
		return false
	}
	return bcrypt.CompareHashAndPassword(adminPassHash, []byte(pass)) == nil
}

// Claims is the payload embedded in every JWT issued by /api/login.
type Claims struct {
	Username string `json:"username"`
	TenantID uint   `json:"tenant_id"`
	jwt.RegisteredClaims
}

// GenerateJWT creates a signed HS256 JWT valid for 24 hours.
func GenerateJWT(username string, tenantID uint) (string, error) {
	claims := Claims{
		Username: username,
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "otmap",
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret)
}

// parseJWT validates a token string and returns the claims.
func parseJWT(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, err
	}
	return claims, nil
}

// JWTMiddleware validates tokens on protected routes.
// It expects the header:  Authorization: Bearer <jwt>
// On success it stores the username and tenant ID in the Gin context.
func JWTMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("Authorization")
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing Authorization header",
			})
			return
		}

		parts := strings.SplitN(raw, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid Authorization format, expected: Bearer <token>",
			})
			return
		}

		claims, err := parseJWT(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or expired token",
			})
			return
		}

		c.Set("username", claims.Username)
		c.Set("tenant_id", claims.TenantID)
		c.Next()
	}
}
