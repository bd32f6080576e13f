// Package httpx holds the HTTP response envelope, security headers, and
// CORS helpers shared by every handler in internal/api.
package httpx

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"iconserve/internal/apierr"
)

// RequestID returns a new "req_<uuid>" correlation id, per spec.md §6.
func RequestID() string {
	return "req_" + uuid.NewString()
}

// Meta is the envelope metadata carried on every response.
type Meta struct {
	RequestID string         `json:"request_id"`
	Timestamp string         `json:"timestamp"`
	Extra     map[string]any `json:"-"`
}

func (m Meta) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"request_id": m.RequestID,
		"timestamp":  m.Timestamp,
	}
	for k, v := range m.Extra {
		out[k] = v
	}
	return json.Marshal(out)
}

// NewMeta builds a Meta with the given request id and extra fields.
func NewMeta(requestID string, extra map[string]any) Meta {
	return Meta{RequestID: requestID, Timestamp: time.Now().UTC().Format(time.RFC3339), Extra: extra}
}

type envelope struct {
	Data any  `json:"data"`
	Meta Meta `json:"meta"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
	Meta  Meta      `json:"meta"`
}

type errorBody struct {
	Code    apierr.Code    `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// WriteJSON writes a {data, meta} success envelope.
func WriteJSON(w http.ResponseWriter, status int, requestID string, data any, extraMeta map[string]any) {
	SetSecurityHeaders(w, false)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Data: data, Meta: NewMeta(requestID, extraMeta)})
}

// WriteError writes a {error, meta} envelope from an *apierr.Error.
func WriteError(w http.ResponseWriter, requestID string, err *apierr.Error) {
	SetSecurityHeaders(w, false)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Status())
	_ = json.NewEncoder(w).Encode(errorEnvelope{
		Error: errorBody{Code: err.Code, Message: err.PublicMessage(), Details: err.Details},
		Meta:  NewMeta(requestID, nil),
	})
}

// WriteSVG writes a raw SVG body with the image content type.
func WriteSVG(w http.ResponseWriter, status int, body []byte) {
	SetSecurityHeaders(w, true)
	w.Header().Set("Content-Type", "image/svg+xml; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// SetSecurityHeaders sets the fixed security header set from spec.md §6.
// svg selects between the SVG and JSON Content-Security-Policy variants.
func SetSecurityHeaders(w http.ResponseWriter, svg bool) {
	h := w.Header()
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Frame-Options", "DENY")
	h.Set("X-XSS-Protection", "1; mode=block")
	h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
	if svg {
		h.Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'")
	} else {
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
	}
}

// CORS builds middleware that applies the CORS contract from spec.md §6.
// allowedOrigins is the parsed ALLOWED_ORIGINS CSV; empty means "*".
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			w.Header().Set("Access-Control-Allow-Origin", resolveOrigin(allowedOrigins, origin))
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, If-None-Match")
			w.Header().Set("Access-Control-Max-Age", "86400")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func resolveOrigin(allowed []string, origin string) string {
	if len(allowed) == 0 {
		return "*"
	}
	for _, a := range allowed {
		if strings.EqualFold(a, origin) {
			return origin
		}
	}
	return allowed[0]
}
