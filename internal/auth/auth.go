package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/sellista/marketplace/internal/models"
)

const AccessTokenTTL = 24 * time.Hour

const identityKey = "identity"

// Identity is the capability handed to handlers and the order ledger after a
// request credential has been verified. The ledger never parses tokens itself.
type Identity struct {
	UserID uint
	Role   string
	Email  string
}

func (i Identity) IsBuyer() bool  { return i.Role == models.RoleBuyer }
func (i Identity) IsSeller() bool { return i.Role == models.RoleSeller }

func SignAccessToken(user models.User, secret []byte) (string, error) {
	claims := jwt.MapClaims{
		"sub":   user.ID,
		"role":  user.Role,
		"email": user.Email,
		"exp":   time.Now().Add(AccessTokenTTL).Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(secret)
}

func ParseAccessToken(raw string, secret []byte) (Identity, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return Identity{}, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, fmt.Errorf("invalid token claims")
	}
	sub, ok := claims["sub"].(float64)
	if !ok {
		return Identity{}, fmt.Errorf("invalid subject claim")
	}
	role, ok := claims["role"].(string)
	if !ok {
		return Identity{}, fmt.Errorf("invalid role claim")
	}
	email, _ := claims["email"].(string)

	return Identity{UserID: uint(sub), Role: role, Email: email}, nil
}

// Middleware resolves the Authorization bearer header into an Identity.
func Middleware(secret []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "access token required")
			}
			raw, found := strings.CutPrefix(header, "Bearer ")
			if !found || raw == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "access token required")
			}

			ident, err := ParseAccessToken(raw, secret)
			if err != nil {
				return echo.NewHTTPError(http.StatusForbidden, "invalid or expired token")
			}

			c.Set(identityKey, ident)
			return next(c)
		}
	}
}

// RequireRole gates a route group to a single role. Must run after Middleware.
func RequireRole(role string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ident, err := FromContext(c)
			if err != nil {
				return err
			}
			if ident.Role != role {
				return echo.NewHTTPError(http.StatusForbidden, fmt.Sprintf("%s access required", role))
			}
			return next(c)
		}
	}
}

func FromContext(c echo.Context) (Identity, error) {
	ident, ok := c.Get(identityKey).(Identity)
	if !ok {
		return Identity{}, echo.NewHTTPError(http.StatusUnauthorized, "access token required")
	}
	return ident, nil
}

// SetIdentity seeds an Identity into the echo context, bypassing token
// verification. Test hook only.
func SetIdentity(c echo.Context, ident Identity) {
	c.Set(identityKey, ident)
}
