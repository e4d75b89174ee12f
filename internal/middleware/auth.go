package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/genresorter/api/internal/auth"
	"github.com/genresorter/api/pkg/response"
)

const (
	HeaderSessionID     = "X-Session-Id"
	HeaderProviderToken = "X-Provider-Token"

	localUserID        = "userId"
	localSessionKey    = "sessionKey"
	localProviderToken = "providerToken"
)

// AuthMiddleware resolves the caller into a session key. With a JWT secret
// or an OIDC verifier the key is the token's user id; with neither the
// X-Session-Id header is trusted as-is, which suits a gateway that already
// authenticated the user.
type AuthMiddleware struct {
	verifier  auth.TokenVerifier
	jwtSecret string
}

type UserClaims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// NewAuthMiddleware creates auth middleware using only HMAC signing.
func NewAuthMiddleware(jwtSecret string) *AuthMiddleware {
	return &AuthMiddleware{jwtSecret: jwtSecret}
}

// NewAuthMiddlewareWithVerifier checks tokens against verifier first and
// falls back to HMAC tokens when jwtSecret is set.
func NewAuthMiddlewareWithVerifier(verifier auth.TokenVerifier, jwtSecret string) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier, jwtSecret: jwtSecret}
}

// Authenticate validates the caller and stores the session key in context.
// The provider access token, if sent, is kept for handlers that call the
// provider on the user's behalf.
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if m.verifier == nil && m.jwtSecret == "" {
			sessionID := c.Get(HeaderSessionID)
			if sessionID == "" {
				sessionID = c.Query("session")
			}
			if sessionID == "" {
				return response.Unauthorized(c, "Missing session header")
			}
			c.Locals(localUserID, sessionID)
			c.Locals(localSessionKey, "session:"+sessionID)
			c.Locals(localProviderToken, c.Get(HeaderProviderToken))
			return c.Next()
		}

		// EventSource cannot set headers, so streams may pass the token as a query parameter.
		tokenString := c.Query("access_token")
		if authHeader := c.Get("Authorization"); authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				return response.Unauthorized(c, "Invalid authorization header format")
			}
			tokenString = parts[1]
		}
		if tokenString == "" {
			return response.Unauthorized(c, "Missing authorization header")
		}

		userID, ok := m.userFromToken(tokenString)
		if !ok {
			return response.Unauthorized(c, "Invalid or expired token")
		}

		c.Locals(localUserID, userID)
		c.Locals(localSessionKey, "user:"+userID)
		c.Locals(localProviderToken, c.Get(HeaderProviderToken))

		return c.Next()
	}
}

// userFromToken tries the OIDC verifier, then the HMAC secret.
func (m *AuthMiddleware) userFromToken(tokenString string) (string, bool) {
	if m.verifier != nil {
		if claims, err := m.verifier.Validate(tokenString); err == nil {
			return claims.UserID, true
		}
	}
	if m.jwtSecret == "" {
		return "", false
	}

	token, err := jwt.ParseWithClaims(tokenString, &UserClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(m.jwtSecret), nil
	})
	if err != nil {
		return "", false
	}
	claims, ok := token.Claims.(*UserClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return "", false
	}
	return claims.UserID, true
}

// GetUserID extracts user ID from context
func GetUserID(c *fiber.Ctx) string {
	if userID, ok := c.Locals(localUserID).(string); ok {
		return userID
	}
	return ""
}

// GetSessionKey returns the key the session cache is indexed by.
func GetSessionKey(c *fiber.Ctx) string {
	if key, ok := c.Locals(localSessionKey).(string); ok {
		return key
	}
	return ""
}

// GetProviderToken returns the caller's provider access token, if any.
func GetProviderToken(c *fiber.Ctx) string {
	if token, ok := c.Locals(localProviderToken).(string); ok {
		return token
	}
	return ""
}

// GenerateToken creates a new JWT token (useful for testing)
func (m *AuthMiddleware) GenerateToken(userID string) (string, error) {
	claims := UserClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer: "genresorter-api",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(m.jwtSecret))
}
