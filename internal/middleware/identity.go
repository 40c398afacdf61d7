package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"settlement/internal/model"
	"settlement/pkg/response"
)

const (
	identityKey       = "identity"
	SessionHeader     = "X-Session-ID"
	sessionCookie     = "session_id"
	accessTokenCookie = "access_token"
)

// IssueToken signs a staff token carrying the user id and role.
func IssueToken(secret []byte, userID uuid.UUID, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  userID.String(),
		"role": role,
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	})
	return token.SignedString(secret)
}

// Identity resolves who is calling. Every request gets a session id (header,
// cookie or a fresh one); a valid bearer token adds the staff user and role.
// A token that is present but invalid is rejected.
func Identity(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := model.Identity{SessionID: sessionID(c)}

		if tokenString := bearerToken(c); tokenString != "" {
			claims, err := parseToken(tokenString, secret)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid token: "+err.Error()))
				return
			}
			if sub, ok := claims["sub"].(string); ok {
				if id, err := uuid.Parse(sub); err == nil {
					identity.UserID = &id
				}
			}
			identity.UserRoleID, _ = claims["role"].(string)
		}

		c.Set(identityKey, identity)
		c.Next()
	}
}

// RequireRole only lets staff with one of the allowed roles through. It must
// run after Identity.
func RequireRole(allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := GetIdentity(c)
		if identity.UserRoleID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
			return
		}
		for _, role := range allowedRoles {
			if identity.UserRoleID == role {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, response.Error(http.StatusForbidden, "Access denied: insufficient permissions"))
	}
}

// GetIdentity returns the identity stored by the Identity middleware.
func GetIdentity(c *gin.Context) model.Identity {
	if v, ok := c.Get(identityKey); ok {
		if identity, ok := v.(model.Identity); ok {
			return identity
		}
	}
	return model.Identity{}
}

func sessionID(c *gin.Context) string {
	if id := strings.TrimSpace(c.GetHeader(SessionHeader)); id != "" {
		return id
	}
	if id, err := c.Cookie(sessionCookie); err == nil && id != "" {
		return id
	}
	id := uuid.NewString()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookie, id, 3600*24*365, "/", "", false, true)
	c.Header(SessionHeader, id)
	return id
}

// bearerToken reads the token from the cookie, the Authorization header or,
// for EventSource and WebSocket clients that cannot set headers, ?token=.
func bearerToken(c *gin.Context) string {
	if token, err := c.Cookie(accessTokenCookie); err == nil && token != "" {
		return token
	}
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
		return header
	}
	return c.Query("token")
}

func parseToken(tokenString string, secret []byte) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}
