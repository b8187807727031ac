package mw

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/flplemos/senac-agenda-central/internal/booking"
)

const (
	identityKey = "identity"
	// verifiedKey marks an identity that came from a signed token.
	verifiedKey = "identity_verified"
)

// AuthConfig selects how the caller's identity is read.
type AuthConfig struct {
	// JWTSecret enables HS256 bearer tokens. Empty means trusted gateway headers.
	JWTSecret  string
	UserHeader string
	RoleHeader string
}

// Claims carried by the bearer token.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticate attaches the caller's identity to the context. A request
// without credentials continues anonymously; handlers decide whether that is
// enough. A malformed or expired token is rejected outright.
func Authenticate(cfg AuthConfig) gin.HandlerFunc {
	if cfg.UserHeader == "" {
		cfg.UserHeader = "X-User-ID"
	}
	if cfg.RoleHeader == "" {
		cfg.RoleHeader = "X-User-Role"
	}
	secret := []byte(cfg.JWTSecret)

	return func(c *gin.Context) {
		var id booking.Identity
		if len(secret) > 0 {
			raw, ok := bearerToken(c.GetHeader("Authorization"))
			if ok {
				parsed, err := parseToken(raw, secret)
				if err != nil {
					c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token: " + err.Error(), "kind": "unauthenticated"})
					return
				}
				id = parsed
				c.Set(verifiedKey, true)
			}
		} else {
			id = booking.Identity{
				UserID: strings.TrimSpace(c.GetHeader(cfg.UserHeader)),
				Role:   normalizeRole(c.GetHeader(cfg.RoleHeader)),
			}
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

// IdentityFrom returns the identity set by Authenticate, or the anonymous identity.
func IdentityFrom(c *gin.Context) booking.Identity {
	if v, ok := c.Get(identityKey); ok {
		if id, ok := v.(booking.Identity); ok {
			return id
		}
	}
	return booking.Identity{}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func parseToken(raw string, secret []byte) (booking.Identity, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return booking.Identity{}, err
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return booking.Identity{}, errors.New("token has no subject")
	}
	return booking.Identity{UserID: claims.Subject, Role: normalizeRole(claims.Role)}, nil
}

// normalizeRole maps unknown or missing roles to the least privileged one.
func normalizeRole(raw string) booking.Role {
	r := booking.Role(strings.ToLower(strings.TrimSpace(raw)))
	if !r.Valid() {
		return booking.RoleStudent
	}
	return r
}
