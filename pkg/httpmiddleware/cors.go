package httpmiddleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig configures the CORS middleware.
type CORSConfig struct {
	// AllowOrigins lists origins permitted to make cross-origin requests.
	// Empty, or the single entry "*", allows every origin.
	AllowOrigins []string

	// AllowMethods lists the HTTP methods clients may use. Defaults to
	// "GET, POST, PUT, PATCH, DELETE, OPTIONS" when empty.
	AllowMethods []string

	// AllowHeaders lists request headers clients may send. When empty the
	// preflight's Access-Control-Request-Headers value is echoed back.
	AllowHeaders []string

	// ExposeHeaders lists response headers the browser may read.
	ExposeHeaders []string

	// AllowCredentials permits cookies and auth headers on cross-origin
	// requests. Incompatible with the wildcard origin: when both are set the
	// middleware echoes the specific origin instead.
	AllowCredentials bool

	// MaxAge is the preflight cache lifetime in seconds. Zero omits the
	// header; a negative value sends "0".
	MaxAge int
}

// corsPolicy is the precomputed form of CORSConfig: joined header values and
// a case-insensitive origin set, built once at construction.
type corsPolicy struct {
	allowAll      bool
	origins       map[string]string // lowercase -> original case
	methods       string
	headers       string
	exposeHeaders string
	credentials   bool
	maxAge        string
}

func newCORSPolicy(cfg CORSConfig) *corsPolicy {
	p := &corsPolicy{
		allowAll:      len(cfg.AllowOrigins) == 0,
		origins:       make(map[string]string, len(cfg.AllowOrigins)),
		methods:       strings.Join(cfg.AllowMethods, ", "),
		headers:       strings.Join(cfg.AllowHeaders, ", "),
		exposeHeaders: strings.Join(cfg.ExposeHeaders, ", "),
		credentials:   cfg.AllowCredentials,
	}
	for _, o := range cfg.AllowOrigins {
		if o == "*" {
			p.allowAll = true
			break
		}
		p.origins[strings.ToLower(o)] = o
	}
	if p.credentials && p.allowAll {
		// Browsers reject credentials with a wildcard origin; echo the
		// specific origin instead.
		p.allowAll = false
	}
	if p.methods == "" {
		p.methods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	}
	switch {
	case cfg.MaxAge > 0:
		p.maxAge = strconv.Itoa(cfg.MaxAge)
	case cfg.MaxAge < 0:
		p.maxAge = "0"
	}
	return p
}

// allowOrigin resolves the Access-Control-Allow-Origin value for an incoming
// origin, "" when the origin is not allowed. Matching is case-insensitive but
// the configured case is echoed.
func (p *corsPolicy) allowOrigin(origin string) string {
	if p.allowAll {
		return "*"
	}
	return p.origins[strings.ToLower(origin)]
}

// CORS returns a middleware handling Cross-Origin Resource Sharing:
// preflight detection via Access-Control-Request-Method, Vary headers to keep
// CDN caches from poisoning responses across origins, and credential and
// expose-header support.
func CORS(cfg CORSConfig) Middleware {
	p := newCORSPolicy(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			// Same-origin request. Still vary on Origin so caches keep CORS
			// and non-CORS responses apart.
			if origin == "" {
				if !p.allowAll {
					w.Header().Add("Vary", "Origin")
				}
				next.ServeHTTP(w, r)
				return
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				p.preflight(w, r, origin)
				return
			}

			p.actual(w, origin)
			next.ServeHTTP(w, r)
		})
	}
}

func (p *corsPolicy) preflight(w http.ResponseWriter, r *http.Request, origin string) {
	h := w.Header()
	h.Add("Vary", "Origin")
	h.Add("Vary", "Access-Control-Request-Method")
	h.Add("Vary", "Access-Control-Request-Headers")

	allowed := p.allowOrigin(origin)
	if allowed == "" {
		// Disallowed origin: 204 with no CORS headers, the browser blocks it.
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.Set("Access-Control-Allow-Origin", allowed)
	h.Set("Access-Control-Allow-Methods", p.methods)

	if p.headers != "" {
		h.Set("Access-Control-Allow-Headers", p.headers)
	} else if requested := r.Header.Get("Access-Control-Request-Headers"); requested != "" {
		h.Set("Access-Control-Allow-Headers", requested)
	}
	if p.credentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
	if p.maxAge != "" {
		h.Set("Access-Control-Max-Age", p.maxAge)
	}

	w.WriteHeader(http.StatusNoContent)
}

func (p *corsPolicy) actual(w http.ResponseWriter, origin string) {
	h := w.Header()
	if !p.allowAll {
		h.Add("Vary", "Origin")
	}

	allowed := p.allowOrigin(origin)
	if allowed == "" {
		return
	}

	h.Set("Access-Control-Allow-Origin", allowed)
	if p.credentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
	if p.exposeHeaders != "" {
		h.Set("Access-Control-Expose-Headers", p.exposeHeaders)
	}
}
