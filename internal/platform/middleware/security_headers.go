package middleware

import (
	"github.com/labstack/echo/v4"
)

// securityHeaders is the fixed response header set for the lifecycle API.
// The API serves JSON about simulated patients to authenticated tooling, so
// the policy is maximally strict: nothing embeds it, it loads nothing, and
// nothing it returns may be cached (snapshot exports pass through here too).
var securityHeaders = [...][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	// Legacy XSS filter off; Content-Security-Policy is the control.
	{"X-XSS-Protection", "0"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"Strict-Transport-Security", "max-age=31536000; includeSubDomains"},
	{"Referrer-Policy", "no-referrer"},
	{"Permissions-Policy", "camera=(), microphone=(), geolocation=()"},
	{"Cache-Control", "no-store"},
}

// SecurityHeaders sets the fixed header set on every response.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			for _, kv := range securityHeaders {
				h.Set(kv[0], kv[1])
			}
			return next(c)
		}
	}
}
