package httpapi

import (
	_ "embed"
	"encoding/json"
	"net/http"
	hpprof "net/http/pprof"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	logx "vocabremind/pkg/logx"
)

// Registrar mounts a group of endpoints.
type Registrar interface {
	Register(r chi.Router)
}

// Routes is what the router serves. Nil members are not mounted.
type Routes struct {
	API     Registrar
	Health  func() any
	Metrics http.Handler

	// Token guards /api, /healthz and /metrics when set.
	Token string
	Pprof bool

	// CORSOrigins lists origins allowed to call the API from a browser.
	// Empty allows any origin.
	CORSOrigins []string
}

//go:embed openapi.json
var openAPIDoc []byte

// NewRouter builds the HTTP surface:
//
//	GET  /                       greeting
//	GET  /api-docs               OpenAPI document for /api
//	GET  /healthz                health snapshot
//	GET  /metrics                prometheus exposition
//	*    /api/...                reminder endpoints
//	GET  /debug/pprof/...        profiling, when enabled
func NewRouter(rt Routes, log logx.Logger) http.Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))
	r.Use(cors(rt.CORSOrigins))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "Hello, World!"})
	})
	r.Get("/api-docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write(openAPIDoc)
	})

	r.Group(func(r chi.Router) {
		r.Use(bearerAuth(rt.Token))

		if rt.Health != nil {
			r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, rt.Health())
			})
		}
		if rt.Metrics != nil {
			r.Method(http.MethodGet, "/metrics", rt.Metrics)
		}
		if rt.API != nil {
			r.Route("/api", rt.API.Register)
		}
		if rt.Pprof {
			r.Get("/debug/pprof/*", hpprof.Index)
			r.Get("/debug/pprof/cmdline", hpprof.Cmdline)
			r.Get("/debug/pprof/profile", hpprof.Profile)
			r.Get("/debug/pprof/symbol", hpprof.Symbol)
			r.Get("/debug/pprof/trace", hpprof.Trace)
		}
	})
	return r
}

func requestLogger(log logx.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("http request",
				logx.String("method", r.Method),
				logx.String("path", r.URL.Path),
				logx.Int("status", ww.Status()),
				logx.Duration("took", time.Since(start)),
				logx.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

// bearerAuth accepts "Authorization: Bearer <token>" or ?token=<token>.
func bearerAuth(token string) func(http.Handler) http.Handler {
	tok := strings.TrimSpace(token)
	return func(next http.Handler) http.Handler {
		if tok == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("token"); got != "" {
				if got == tok {
					next.ServeHTTP(w, r)
					return
				}
				unauthorized(w)
				return
			}
			const p = "Bearer "
			if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, p) && strings.TrimSpace(strings.TrimPrefix(ah, p)) == tok {
				next.ServeHTTP(w, r)
				return
			}
			unauthorized(w)
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
