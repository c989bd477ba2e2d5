// Package adminhttp exposes runtime inspection and administrative state
// transitions for named circuit breakers over HTTP. All endpoints are
// protected by an IP allowlist and, when a secret is configured, JWT
// Bearer authentication.
package adminhttp

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/SiftScience/resilience4j/circuitbreaker"
	"github.com/golang-jwt/jwt/v5"
)

// Handler provides the admin API endpoints.
type Handler struct {
	breakers    map[string]*circuitbreaker.CircuitBreaker
	allowedNets []*net.IPNet
	jwtSecret   string // empty disables bearer auth
	logger      *slog.Logger
}

// New creates an admin Handler over the given named breakers. The allowlist
// CIDRs must be pre-validated (config validation ensures this). An empty
// jwtSecret disables bearer authentication; the IP allowlist still applies.
func New(breakers map[string]*circuitbreaker.CircuitBreaker, allowlist []string, jwtSecret string, logger *slog.Logger) *Handler {
	nets := make([]*net.IPNet, 0, len(allowlist))
	for _, cidr := range allowlist {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			continue // already validated by config
		}
		nets = append(nets, ipNet)
	}
	return &Handler{
		breakers:    breakers,
		allowedNets: nets,
		jwtSecret:   jwtSecret,
		logger:      logger,
	}
}

// RegisterRoutes adds admin routes to the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/admin/breakers", h.guard(h.listHandler))
	mux.HandleFunc("/admin/breakers/", h.guard(h.breakerHandler))
}

// guard wraps a handler with IP allowlist and bearer token checking.
func (h *Handler) guard(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := extractIP(r.RemoteAddr)
		if !h.isAllowed(ip) {
			h.logger.Warn("admin access denied", "client_ip", ip, "path", r.URL.Path)
			writeJSON(w, http.StatusForbidden, map[string]string{
				"error": "Forbidden",
			})
			return
		}

		if h.jwtSecret != "" {
			if err := h.checkBearer(r); err != nil {
				h.logger.Warn("admin auth failure", "client_ip", ip, "path", r.URL.Path, "error", err)
				writeJSON(w, http.StatusUnauthorized, map[string]string{
					"error":   "Unauthorized",
					"message": err.Error(),
				})
				return
			}
		}

		next(w, r)
	}
}

// checkBearer validates an HS256 JWT Bearer token against the shared secret.
func (h *Handler) checkBearer(r *http.Request) error {
	auth := r.Header.Get("Authorization")
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return fmt.Errorf("missing or malformed Authorization header")
	}

	_, err := jwt.Parse(strings.TrimSpace(parts[1]), func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(h.jwtSecret), nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return fmt.Errorf("invalid token: %w", err)
	}
	return nil
}

func (h *Handler) isAllowed(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, n := range h.allowedNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func extractIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

// breakerStatus is the response type for breaker listings.
type breakerStatus struct {
	Name              string  `json:"name"`
	State             string  `json:"state"`
	TotalCalls        int     `json:"total_calls"`
	FailedCalls       int     `json:"failed_calls"`
	SlowCalls         int     `json:"slow_calls"`
	FailureRate       float64 `json:"failure_rate"`
	SlowCallRate      float64 `json:"slow_call_rate"`
	NotPermittedCalls int64   `json:"not_permitted_calls"`
}

func status(b *circuitbreaker.CircuitBreaker) breakerStatus {
	snap := b.Metrics()
	return breakerStatus{
		Name:              b.Name(),
		State:             b.State().String(),
		TotalCalls:        snap.TotalCalls,
		FailedCalls:       snap.FailedCalls,
		SlowCalls:         snap.SlowCalls,
		FailureRate:       snap.FailureRate,
		SlowCallRate:      snap.SlowCallRate,
		NotPermittedCalls: snap.NotPermittedCalls,
	}
}

// listHandler serves GET /admin/breakers.
func (h *Handler) listHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{
			"error": "Method Not Allowed",
		})
		return
	}

	statuses := make([]breakerStatus, 0, len(h.breakers))
	for _, b := range h.breakers {
		statuses = append(statuses, status(b))
	}
	writeJSON(w, http.StatusOK, statuses)
}

// breakerHandler serves /admin/breakers/{name} and its subresources:
//
//	GET  /admin/breakers/{name}        current state and metrics
//	POST /admin/breakers/{name}/state  administrative transition
//	POST /admin/breakers/{name}/reset  drop all observations
func (h *Handler) breakerHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/admin/breakers/")
	name, action, _ := strings.Cut(rest, "/")

	b, ok := h.breakers[name]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error":   "Not Found",
			"message": fmt.Sprintf("no circuit breaker named %q", name),
		})
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, status(b))

	case action == "state" && r.Method == http.MethodPost:
		h.transitionHandler(w, r, b)

	case action == "reset" && r.Method == http.MethodPost:
		b.Reset()
		h.logger.Info("admin reset", "breaker", name, "client_ip", extractIP(r.RemoteAddr))
		writeJSON(w, http.StatusOK, status(b))

	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{
			"error": "Method Not Allowed",
		})
	}
}

// transitionRequest is the body of POST /admin/breakers/{name}/state.
type transitionRequest struct {
	State string `json:"state"`
}

func (h *Handler) transitionHandler(w http.ResponseWriter, r *http.Request, b *circuitbreaker.CircuitBreaker) {
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":   "Bad Request",
			"message": "invalid JSON body",
		})
		return
	}

	target, ok := circuitbreaker.ParseState(req.State)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":   "Bad Request",
			"message": fmt.Sprintf("unknown state %q", req.State),
		})
		return
	}

	switch target {
	case circuitbreaker.StateClosed:
		b.TransitionToClosed()
	case circuitbreaker.StateOpen:
		b.TransitionToOpen()
	case circuitbreaker.StateHalfOpen:
		b.TransitionToHalfOpen()
	case circuitbreaker.StateDisabled:
		b.TransitionToDisabled()
	case circuitbreaker.StateForcedOpen:
		b.TransitionToForcedOpen()
	}

	h.logger.Info("admin state transition",
		"breaker", b.Name(),
		"to", target.String(),
		"client_ip", extractIP(r.RemoteAddr),
	)
	writeJSON(w, http.StatusOK, status(b))
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
