// Package app exposes the authoring engine over HTTP: session tokens in,
// lifecycle operations on items out. All editorial semantics live in the
// inner packages; this layer only routes, decodes and maps errors.
package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"newsdesk/authoring/internal/actions"
	"newsdesk/authoring/internal/archive"
	"newsdesk/authoring/internal/auth"
	"newsdesk/authoring/internal/authoring"
	"newsdesk/authoring/internal/session"
	"newsdesk/authoring/internal/store"
	"newsdesk/authoring/internal/util"
	"newsdesk/authoring/internal/workflow"
)

type itemGateway interface {
	GetItem(ctx context.Context, id string) (*archive.Item, error)
	Ping(ctx context.Context) error
}

type pinger interface {
	Ping(ctx context.Context) error
}

type HTTPServer struct {
	service    *authoring.Service
	items      itemGateway
	redis      pinger
	secret     []byte
	tokenTTL   time.Duration
	corsOrigin string
	logger     zerolog.Logger
	metrics    http.Handler
}

type HTTPConfig struct {
	Secret     []byte
	TokenTTL   time.Duration
	CORSOrigin string
	// Redis is nil when no workqueue registry is configured.
	Redis pinger
	// Gatherer backs /metrics; nil falls back to the default registry.
	Gatherer prometheus.Gatherer
}

func NewHTTPServer(service *authoring.Service, items itemGateway, cfg HTTPConfig, logger zerolog.Logger) *HTTPServer {
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &HTTPServer{
		service:    service,
		items:      items,
		redis:      cfg.Redis,
		secret:     cfg.Secret,
		tokenTTL:   cfg.TokenTTL,
		corsOrigin: cfg.CORSOrigin,
		logger:     logger.With().Str("component", "http").Logger(),
		metrics:    promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}),
	}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/metrics" {
		w.Header().Del("Content-Type")
		s.metrics.ServeHTTP(w, r)
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		s.handleReady(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session" {
		s.handleSessionStart(w, r)
		return
	}

	caller, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/workqueue" {
		entries, err := s.service.Workqueue(r.Context(), caller)
		if err != nil {
			s.writeMapped(w, err)
			return
		}
		if entries == nil {
			entries = []session.WorkqueueEntry{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": entries})
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "items" {
		itemID := parts[2]
		switch {
		case len(parts) == 3 && r.Method == http.MethodPatch:
			s.handleEdit(w, r, caller, itemID)
		case len(parts) == 4 && r.Method == http.MethodGet && parts[3] == "actions":
			s.handleActions(w, r, caller, itemID)
		case len(parts) == 4 && r.Method == http.MethodPost:
			s.handleItemVerb(w, r, caller, itemID, parts[3])
		default:
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		}
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := map[string]any{
		"store": map[string]any{"status": "ok"},
	}
	if err := s.items.Ping(ctx); err != nil {
		status = http.StatusServiceUnavailable
		checks["store"] = map[string]any{"status": "error", "error": err.Error()}
	}
	if s.redis != nil {
		checks["redis"] = map[string]any{"status": "ok"}
		if err := s.redis.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			checks["redis"] = map[string]any{"status": "error", "error": err.Error()}
		}
	}
	writeJSON(w, status, map[string]any{"ok": status == http.StatusOK, "checks": checks})
}

// handleSessionStart binds an editing session for an already-authenticated
// user. Identity and privileges come from the upstream auth proxy; this
// gateway only mints the token that ties locks to a session id.
func (s *HTTPServer) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID     string             `json:"user_id"`
		Desks      []string           `json:"desks"`
		Privileges session.Privileges `json:"privileges"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeMapped(w, invalidBody(err.Error()))
		return
	}
	if body.UserID == "" {
		s.writeMapped(w, invalidBody("user_id is required"))
		return
	}

	caller := session.Context{
		SessionID:  util.NewSessionID(),
		UserID:     body.UserID,
		Desks:      body.Desks,
		Privileges: body.Privileges,
	}
	token, err := auth.IssueToken(s.secret, caller, s.tokenTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Token issue failed", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"session_id": caller.SessionID,
		"user_id":    caller.UserID,
	})
}

func (s *HTTPServer) handleEdit(w http.ResponseWriter, r *http.Request, caller session.Context, itemID string) {
	sess, ok := s.openSession(w, caller, itemID)
	if !ok {
		return
	}
	var patch archive.Patch
	if err := decodeBody(r, &patch); err != nil {
		s.writeMapped(w, invalidBody(err.Error()))
		return
	}
	if err := s.service.Edit(sess, patch); err != nil {
		s.writeMapped(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item": sess.Item(), "dirty": sess.Dirty()})
}

func (s *HTTPServer) handleActions(w http.ResponseWriter, r *http.Request, caller session.Context, itemID string) {
	if sess, ok := s.service.Lookup(caller, itemID); ok {
		writeJSON(w, http.StatusOK, map[string]any{"actions": s.service.Actions(sess)})
		return
	}
	item, err := s.items.GetItem(r.Context(), itemID)
	if err != nil {
		s.writeMapped(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"actions": actions.ForItem(item, caller, false)})
}

func (s *HTTPServer) handleItemVerb(w http.ResponseWriter, r *http.Request, caller session.Context, itemID, verb string) {
	if verb == "open" {
		var body struct {
			ReadOnly bool `json:"read_only"`
		}
		if err := decodeBody(r, &body); err != nil {
			s.writeMapped(w, invalidBody(err.Error()))
			return
		}
		sess, err := s.service.Open(r.Context(), caller, itemID, body.ReadOnly)
		if err != nil {
			s.writeMapped(w, err)
			return
		}
		response := map[string]any{
			"item":     sess.Item(),
			"editable": !sess.ReadOnly(),
			"actions":  s.service.Actions(sess),
		}
		if sess.Shadow != nil {
			response["shadow"] = sess.Shadow
		}
		writeJSON(w, http.StatusOK, response)
		return
	}

	sess, ok := s.openSession(w, caller, itemID)
	if !ok {
		return
	}

	switch verb {
	case "save":
		item, err := s.service.Save(r.Context(), sess)
		if err != nil {
			s.writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"item": item})

	case "close":
		var body struct {
			KeepLock  bool `json:"keep_lock"`
			Confirmed bool `json:"confirmed"`
		}
		if err := decodeBody(r, &body); err != nil {
			s.writeMapped(w, invalidBody(err.Error()))
			return
		}
		if err := s.service.Close(r.Context(), sess, authoring.StaticConfirmer(body.Confirmed), body.KeepLock); err != nil {
			s.writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"closed": true})

	case "publish":
		var body struct {
			Action    string `json:"action"`
			Confirmed bool   `json:"confirmed"`
		}
		if err := decodeBody(r, &body); err != nil {
			s.writeMapped(w, invalidBody(err.Error()))
			return
		}
		var item *archive.Item
		var err error
		switch body.Action {
		case "deschedule":
			item, err = s.service.Deschedule(r.Context(), sess)
		case "publish", "correct", "kill", "":
			action := store.PublishAction(body.Action)
			if body.Action == "" {
				action = store.ActionPublish
			}
			item, err = s.service.Publish(r.Context(), sess, action, authoring.StaticConfirmer(body.Confirmed))
		default:
			s.writeMapped(w, invalidBody("unknown publish action"))
			return
		}
		if err != nil {
			s.writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"item": item})

	case "rewrite":
		draft, err := s.service.Rewrite(r.Context(), sess)
		if err != nil {
			s.writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"item":     draft.Item(),
			"editable": !draft.ReadOnly(),
		})

	case "send":
		var body struct {
			Desk      string `json:"desk"`
			Stage     string `json:"stage"`
			Confirmed bool   `json:"confirmed"`
		}
		if err := decodeBody(r, &body); err != nil {
			s.writeMapped(w, invalidBody(err.Error()))
			return
		}
		if body.Desk == "" {
			s.writeMapped(w, invalidBody("desk is required"))
			return
		}
		item, err := s.service.SendTo(r.Context(), sess, body.Desk, body.Stage, authoring.StaticConfirmer(body.Confirmed))
		if err != nil {
			s.writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"item": item})

	case "spike":
		item, err := s.service.Spike(r.Context(), sess)
		if err != nil {
			s.writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"item": item})

	case "unspike":
		item, err := s.service.Unspike(r.Context(), sess)
		if err != nil {
			s.writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"item": item})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) openSession(w http.ResponseWriter, caller session.Context, itemID string) (*authoring.Session, bool) {
	sess, ok := s.service.Lookup(caller, itemID)
	if !ok {
		s.writeMapped(w, errNotOpen)
		return nil, false
	}
	return sess, true
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (session.Context, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return session.Context{}, false
	}
	caller, err := auth.ParseToken(s.secret, token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return session.Context{}, false
	}
	return caller, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		s.logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", writer.status).
			Dur("duration", time.Since(started)).
			Msg("request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func (s *HTTPServer) writeMapped(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	writeError(w, status, code, message, details)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return errors.New("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}

	var locked *store.LockedError
	var conflict *store.ConflictError
	var storeInvalid *store.ValidationError
	var invalid *workflow.ValidationError
	var unavailable *store.UnavailableError
	var denied *authoring.PrivilegeError
	var transition *authoring.TransitionError

	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, store.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN", "Forbidden", nil
	case errors.Is(err, authoring.ErrCancelled):
		// an intentional abort, not a server failure
		return http.StatusConflict, "CANCELLED", "Cancelled by user", nil
	case errors.Is(err, authoring.ErrReadOnly):
		return http.StatusForbidden, "READ_ONLY", "Session is read-only", nil
	case errors.As(err, &locked):
		return http.StatusConflict, "LOCKED", "Item is locked by another session", map[string]any{
			"holder_id":  locked.UserID,
			"session_id": locked.SessionID,
		}
	case errors.As(err, &conflict):
		return http.StatusPreconditionFailed, "CONFLICT", "Item changed since last read, reload required", nil
	case errors.As(err, &storeInvalid):
		return http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed", storeInvalid.Issues
	case errors.As(err, &invalid):
		return http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed", map[string]any{
			"field":  invalid.Field,
			"reason": invalid.Reason,
		}
	case errors.As(err, &denied):
		return http.StatusForbidden, "PRIVILEGE_DENIED", "Action not permitted", map[string]any{
			"action": denied.Action,
		}
	case errors.As(err, &transition):
		return http.StatusConflict, "ILLEGAL_TRANSITION", transition.Error(), nil
	case errors.As(err, &unavailable):
		return http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Archive store unavailable", nil
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
