// Package shared
package shared

import (
	"strings"
	"unicode/utf8"

	"github.com/labstack/echo/v4"
)

// ExtractBearer returns the token of a "Bearer <token>" authorization header
func ExtractBearer(c echo.Context) (string, error) {
	auth := c.Request().Header.Get("Authorization")
	if auth == "" {
		return "", ErrUnauthorized
	}

	parts := strings.Split(auth, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
		return "", ErrUnauthorized
	}
	return parts[1], nil
}

// Truncate shortens s to at most max bytes for logging, never splitting a
// multi-byte character
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "... (truncated)"
}
