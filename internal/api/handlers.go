// Package api exposes HTTP and websocket handlers for the tracker and alert services.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/mayowaagbi/CampusHealthSystem-sub000/internal/auth"
	"github.com/mayowaagbi/CampusHealthSystem-sub000/internal/domain"
	"github.com/mayowaagbi/CampusHealthSystem-sub000/internal/events"
	"github.com/mayowaagbi/CampusHealthSystem-sub000/internal/persistence"
	"github.com/mayowaagbi/CampusHealthSystem-sub000/internal/realtime"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	maxBodyBytes     = 64 << 10
)

// Option configures optional Handler behaviour.
type Option func(*Handler)

// WithLogger overrides the handler logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithWSOptions tunes live channels opened through /ws.
func WithWSOptions(opts realtime.WSOptions) Option {
	return func(h *Handler) {
		h.wsOptions = opts
	}
}

// WithCheckOrigin replaces the websocket origin check.
func WithCheckOrigin(check func(r *http.Request) bool) Option {
	return func(h *Handler) {
		h.upgrader.CheckOrigin = check
	}
}

// Handler coordinates HTTP requests with the domain services.
type Handler struct {
	tracker   *domain.Tracker
	alerts    *domain.AlertService
	registry  *realtime.Registry
	validate  *validator.Validate
	upgrader  websocket.Upgrader
	wsOptions realtime.WSOptions
	logger    logrus.FieldLogger
}

// NewHandler builds a Handler. registry receives the live channels opened through /ws.
func NewHandler(tracker *domain.Tracker, alerts *domain.AlertService, registry *realtime.Registry, opts ...Option) *Handler {
	h := &Handler{
		tracker:  tracker,
		alerts:   alerts,
		registry: registry,
		validate: newValidator(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logrus.StandardLogger().WithField("component", "api"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/geo/track", h.track)
	mux.HandleFunc("/geo/progress", h.progress)
	mux.HandleFunc("/alerts", h.alertsCollection)
	mux.HandleFunc("/alerts/", h.alertByID)
	mux.HandleFunc("/ws", h.serveWS)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) track(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeGeoTrack)
	if !ok {
		return
	}

	var req TrackRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.tracker.Track(r.Context(), domain.TrackInput{
		UserID: claims.Subject,
		Lat:    *req.Lat,
		Lng:    *req.Lng,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, TrackResponse{
		StepsAdded: result.StepsAdded,
		TotalSteps: result.TotalSteps,
	})
}

func (h *Handler) progress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}

	entry, err := h.tracker.Progress(r.Context(), claims.Subject)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ProgressResponse{
		Steps: entry.Steps,
		Date:  entry.Date.UTC().Format(time.DateOnly),
	})
}

func (h *Handler) alertsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createAlert(w, r)
	case http.MethodGet:
		h.listAlerts(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) alertByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/alerts/"), "/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing alert id")
		return
	}

	switch {
	case action == "publish" && r.Method == http.MethodPatch:
		h.publishAlert(w, r, id)
	case action == "" && r.Method == http.MethodDelete:
		h.deleteAlert(w, r, id)
	case action == "" && r.Method == http.MethodGet:
		h.getAlert(w, r, id)
	case action != "" && action != "publish":
		writeError(w, http.StatusNotFound, "not_found", "unknown alert action")
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) createAlert(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeAlertsWrite)
	if !ok {
		return
	}

	var req CreateAlertRequest
	if !h.decode(w, r, &req) {
		return
	}

	alert, err := h.alerts.Create(r.Context(), domain.CreateAlertInput{
		Title:       req.Title,
		Message:     req.Message,
		Priority:    domain.AlertPriority(req.Priority),
		Duration:    time.Duration(req.DurationHours * float64(time.Hour)),
		CreatedByID: claims.Subject,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, h.alertView(*alert))
}

func (h *Handler) publishAlert(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := requireScope(w, r, auth.ScopeAlertsWrite); !ok {
		return
	}

	alert, err := h.alerts.Publish(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.alertView(*alert))
}

func (h *Handler) deleteAlert(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := requireScope(w, r, auth.ScopeAlertsWrite); !ok {
		return
	}

	if err := h.alerts.Delete(r.Context(), id); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getAlert(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}

	alert, err := h.alerts.Get(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	// Recipients only see alerts addressed to them; authors see everything.
	if !claims.HasScope(auth.ScopeAlertsWrite) && !addressedTo(*alert, claims.Subject) {
		writeError(w, http.StatusNotFound, "not_found", domain.ErrAlertNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.alertView(*alert))
}

func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}

	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = min(parsed, maxListLimit)
		}
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	alerts, next, err := h.alerts.ListForRecipient(r.Context(), claims.Subject, cursor, limit)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	items := make([]events.Alert, 0, len(alerts))
	for _, alert := range alerts {
		items = append(items, h.alertView(alert))
	}
	writeJSON(w, http.StatusOK, ListAlertsResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(next),
	})
}

// decode reads and validates a JSON body, writing the 400 itself on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", describeValidation(err))
		return false
	}
	return true
}

func (h *Handler) alertView(a domain.Alert) events.Alert {
	return domain.AlertEvent(a, h.alerts.Now())
}

func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidLocation):
		writeError(w, http.StatusBadRequest, "invalid_location", err.Error())
	case errors.Is(err, domain.ErrInvalidAlert):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, domain.ErrNoProgress):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrAlertNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrStoreUnavailable):
		h.logger.WithField("path", r.URL.Path).WithError(err).Error("store unavailable")
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{
			Type:        "store_unavailable",
			Detail:      "storage is temporarily unavailable",
			RetryUnsafe: true,
		})
	default:
		h.logger.WithField("path", r.URL.Path).WithError(err).Error("unhandled error")
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

func requireScope(w http.ResponseWriter, r *http.Request, scope string) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	if !claims.HasScope(scope) {
		writeError(w, http.StatusForbidden, "forbidden", "scope "+scope+" required")
		return nil, false
	}
	return claims, true
}

func addressedTo(a domain.Alert, recipientID string) bool {
	for _, id := range a.Recipients {
		if id == recipientID {
			return true
		}
	}
	return false
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func describeValidation(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msg := fe.Field() + " failed " + fe.Tag()
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		parts = append(parts, msg)
	}
	return strings.Join(parts, "; ")
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, ErrorResponse{Type: code, Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
