// Package httpapi exposes the service over JSON HTTP.
package httpapi

import (
	"bufio"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strings"
	"time"
)

// NewRouter wires every endpoint behind CORS and request logging.
func NewRouter(handler *Handler, corsOrigins []string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", handler.root)
	mux.HandleFunc("GET /healthz", handler.healthz)
	mux.HandleFunc("GET /readyz", handler.readyz)

	mux.HandleFunc("POST /submit_kc", handler.submitKC)
	mux.HandleFunc("GET /get_kc", handler.getKC)
	mux.HandleFunc("GET /list_kcs", handler.listKCs)

	mux.HandleFunc("GET /get-student-history", handler.studentHistory)
	mux.HandleFunc("GET /export-history", handler.exportHistory)
	mux.HandleFunc("POST /analyze-response", handler.analyzeResponse)
	mux.HandleFunc("POST /store-history", handler.storeHistory)
	mux.HandleFunc("POST /generate-reaction", handler.generateReaction)

	if handler.feed != nil {
		mux.Handle("GET /ws/history", handler.feed)
	}

	return withRequestLogging(withCORS(corsOrigins, mux))
}

func withRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.RequestURI(),
			"status", rec.status,
			"duration", time.Since(start).Truncate(time.Millisecond),
			"remote", r.RemoteAddr,
		)
	})
}

func withCORS(origins []string, next http.Handler) http.Handler {
	anyOrigin := len(origins) == 0 || slices.Contains(origins, "*")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case anyOrigin:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && slices.ContainsFunc(origins, func(o string) bool { return strings.EqualFold(o, origin) }):
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.status = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// Hijack lets the WebSocket feed upgrade through the logging middleware.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	r.status = http.StatusSwitchingProtocols
	return http.NewResponseController(r.ResponseWriter).Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
