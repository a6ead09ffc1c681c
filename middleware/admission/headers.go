package admission

import "net/http"

// DefaultContentSecurityPolicy libera só o próprio site, fontes do Google e o relay de planilhas.
const DefaultContentSecurityPolicy = "default-src 'self'; " +
	"script-src 'self' 'unsafe-inline' 'unsafe-eval' https://script.google.com https://www.google.com https://www.gstatic.com; " +
	"style-src 'self' 'unsafe-inline' https://fonts.googleapis.com; " +
	"font-src 'self' https://fonts.gstatic.com; " +
	"img-src 'self' data: https:; " +
	"connect-src 'self' https://script.google.com https://script.googleusercontent.com; " +
	"frame-src https://www.google.com; " +
	"object-src 'none'; " +
	"base-uri 'self';"

type SecurityHeadersOptions struct {
	ContentSecurityPolicy string
	// HSTSMaxAge em segundos; 0 usa um ano.
	HSTSMaxAge int
}

// SecurityHeaders adiciona os headers de segurança em toda resposta, inclusive 403/429.
func SecurityHeaders(opts SecurityHeadersOptions) func(next http.Handler) http.Handler {
	if opts.ContentSecurityPolicy == "" {
		opts.ContentSecurityPolicy = DefaultContentSecurityPolicy
	}
	if opts.HSTSMaxAge <= 0 {
		opts.HSTSMaxAge = 31536000
	}
	hsts := "max-age=" + formatInt(opts.HSTSMaxAge) + "; includeSubDomains"

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-XSS-Protection", "1; mode=block")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
			h.Set("Content-Security-Policy", opts.ContentSecurityPolicy)
			h.Set("Strict-Transport-Security", hsts)

			next.ServeHTTP(w, r)
		})
	}
}
