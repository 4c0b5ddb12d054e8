package middleware

import "github.com/labstack/echo/v4"

// Context keys set by JWTAuth.
const (
	ctxSubject = "user_id"
	ctxRole    = "role"
)

// RoleAdmin is the role claim required by catalog writes and reservation
// administration.
const RoleAdmin = "ADMIN"

// Subject returns the authenticated subject or "anon".
func Subject(c echo.Context) string {
	if s, ok := c.Get(ctxSubject).(string); ok && s != "" {
		return s
	}
	return "anon"
}

// Role returns the role claim of the request, if any.
func Role(c echo.Context) string {
	s, _ := c.Get(ctxRole).(string)
	return s
}

// deny writes an error body in the same shape the handlers use.
func deny(c echo.Context, status int, kind, msg string) error {
	return c.JSON(status, map[string]any{"message": msg, "kind": kind})
}
