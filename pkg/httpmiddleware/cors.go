package httpmiddleware

import (
	"net/http"
	"strconv"
	"strings"
)

// Defaults used when CORSConfig leaves a list empty.
var (
	DefaultCORSMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	DefaultCORSHeaders = []string{"api", "Keep-Alive", "User-Agent", "Content-Type"}
)

// CORSConfig configures the CORS middleware behaviour.
type CORSConfig struct {
	// AllowOrigins is a list of origins that are allowed to make cross-origin
	// requests. An empty list or the single entry "*" means all origins are
	// allowed and "*" is sent.
	AllowOrigins []string

	// AllowMethods is sent as Access-Control-Allow-Methods.
	// Defaults to DefaultCORSMethods.
	AllowMethods []string

	// AllowHeaders is sent as Access-Control-Allow-Headers.
	// Defaults to DefaultCORSHeaders.
	AllowHeaders []string

	// MaxAge indicates how long (in seconds) preflight results can be cached.
	// Zero omits the header.
	MaxAge int
}

// CORS returns a middleware that sets the CORS response headers on every
// response it wraps, preflight or not. Preflight handling itself is left to
// the wrapped handler.
func CORS(cfg CORSConfig) Middleware {
	allowAll := len(cfg.AllowOrigins) == 0
	allowed := make(map[string]string, len(cfg.AllowOrigins)) // lowercase -> original
	for _, o := range cfg.AllowOrigins {
		if o == "*" {
			allowAll = true
			break
		}
		allowed[strings.ToLower(o)] = o
	}

	methods := cfg.AllowMethods
	if len(methods) == 0 {
		methods = DefaultCORSMethods
	}
	headers := cfg.AllowHeaders
	if len(headers) == 0 {
		headers = DefaultCORSHeaders
	}
	allowMethods := strings.Join(methods, ", ")
	allowHeaders := strings.Join(headers, ",")

	maxAge := ""
	if cfg.MaxAge > 0 {
		maxAge = strconv.Itoa(cfg.MaxAge)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			if allowAll {
				h.Set("Access-Control-Allow-Origin", "*")
			} else {
				// Vary on Origin so caches do not replay another origin's answer.
				h.Add("Vary", "Origin")
				if origin, ok := allowed[strings.ToLower(r.Header.Get("Origin"))]; ok {
					h.Set("Access-Control-Allow-Origin", origin)
				}
			}
			h.Set("Access-Control-Allow-Methods", allowMethods)
			h.Set("Access-Control-Allow-Headers", allowHeaders)
			if maxAge != "" {
				h.Set("Access-Control-Max-Age", maxAge)
			}

			next.ServeHTTP(w, r)
		})
	}
}
