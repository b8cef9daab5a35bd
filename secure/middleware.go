// Package secure sets the response headers of the preview server.
package secure

import (
	"github.com/gobuffalo/buffalo"
)

// Options configures the header middleware
type Options struct {
	// DevMode stops browsers from caching pages, so an edit shows up on
	// the next reload, and relaxes framing to the same origin.
	DevMode bool

	// ContentTypeNosniff sets X-Content-Type-Options
	ContentTypeNosniff bool

	// FrameDeny sets X-Frame-Options to DENY
	FrameDeny bool

	// ContentSecurityPolicy sets the CSP header. The default allows inline
	// scripts, which the live reload client is, and event streams to the
	// same origin.
	ContentSecurityPolicy string

	// ReferrerPolicy sets Referrer-Policy
	ReferrerPolicy string
}

// DefaultOptions returns the defaults for serving a static site
func DefaultOptions() Options {
	return Options{
		ContentTypeNosniff: true,
		FrameDeny:          true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'self'; " +
			"script-src 'self' 'unsafe-inline'; " +
			"style-src 'self' 'unsafe-inline'; " +
			"img-src 'self' data: https:; " +
			"font-src 'self' data:; " +
			"connect-src 'self'; " +
			"frame-ancestors 'self';",
	}
}

// Middleware returns header middleware for Buffalo. It only sets headers,
// so streaming handlers keep their flushing writer.
func Middleware(opts Options) buffalo.MiddlewareFunc {
	frame := ""
	switch {
	case opts.DevMode:
		frame = "SAMEORIGIN"
	case opts.FrameDeny:
		frame = "DENY"
	}

	return func(next buffalo.Handler) buffalo.Handler {
		return func(c buffalo.Context) error {
			h := c.Response().Header()

			if opts.ContentTypeNosniff {
				h.Set("X-Content-Type-Options", "nosniff")
			}
			if frame != "" {
				h.Set("X-Frame-Options", frame)
			}
			if opts.ContentSecurityPolicy != "" {
				h.Set("Content-Security-Policy", opts.ContentSecurityPolicy)
			}
			if opts.ReferrerPolicy != "" {
				h.Set("Referrer-Policy", opts.ReferrerPolicy)
			}
			if opts.DevMode {
				h.Set("Cache-Control", "no-store")
			}

			return next(c)
		}
	}
}
