package apihttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	alerts "signal-alerts/internal/alerts/domain"
	"signal-alerts/internal/audit"
	"signal-alerts/internal/auth"
	notifications "signal-alerts/internal/notifications/domain"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const timeLayout = time.RFC3339

// AlertQueries is the read side of the alert service.
type AlertQueries interface {
	ListAlerts(ctx context.Context, filter alerts.Filter) ([]alerts.Alert, error)
	GetAlert(ctx context.Context, id uuid.UUID) (*alerts.Alert, error)
}

// SignalCache evicts cached signal metadata.
type SignalCache interface {
	InvalidateSignal(signalID uuid.UUID)
}

// Inbox serves the caller's notifications.
type Inbox interface {
	List(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]notifications.InboxItem, error)
	MarkRead(ctx context.Context, notificationID, userID uuid.UUID) error
	Acknowledge(ctx context.Context, notificationID, userID uuid.UUID) error
}

// AlertsHandler serves alert queries.
type AlertsHandler struct {
	alerts AlertQueries
}

// NewAlertsHandler constructs an AlertsHandler.
func NewAlertsHandler(queries AlertQueries) *AlertsHandler {
	return &AlertsHandler{alerts: queries}
}

// List handles GET /api/v1/alerts.
func (h *AlertsHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.alerts == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}
	filter, err := parseAlertFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	list, err := h.alerts.ListAlerts(r.Context(), filter)
	if err != nil {
		http.Error(w, "query alerts error", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []alerts.Alert{}
	}
	writeJSON(w, http.StatusOK, list)
}

// Get handles GET /api/v1/alerts/{id}.
func (h *AlertsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.alerts == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "id must be a uuid", http.StatusBadRequest)
		return
	}
	alert, err := h.alerts.GetAlert(r.Context(), id)
	if errors.Is(err, alerts.ErrNotFound) {
		http.Error(w, "alert not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "query alert error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

// SignalsHandler serves signal cache administration.
type SignalsHandler struct {
	cache       SignalCache
	auditLogger audit.Logger
}

// NewSignalsHandler constructs a SignalsHandler. auditLogger may be nil.
func NewSignalsHandler(cache SignalCache, auditLogger audit.Logger) *SignalsHandler {
	return &SignalsHandler{cache: cache, auditLogger: auditLogger}
}

// Invalidate handles POST /api/v1/signals/{id}/invalidate.
func (h *SignalsHandler) Invalidate(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.cache == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "id must be a uuid", http.StatusBadRequest)
		return
	}
	h.cache.InvalidateSignal(id)
	logAudit(r, h.auditLogger, audit.ActionSignalInvalidate, "signal", id.String())
	w.WriteHeader(http.StatusNoContent)
}

// NotificationsHandler serves the caller's inbox.
type NotificationsHandler struct {
	inbox       Inbox
	auditLogger audit.Logger
}

// NewNotificationsHandler constructs a NotificationsHandler. auditLogger may be nil.
func NewNotificationsHandler(inbox Inbox, auditLogger audit.Logger) *NotificationsHandler {
	return &NotificationsHandler{inbox: inbox, auditLogger: auditLogger}
}

// List handles GET /api/v1/notifications.
func (h *NotificationsHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}
	unread, err := parseBoolQuery(r, "unread")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	limit, err := parseIntQuery(r, "limit")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	items, err := h.inbox.List(r.Context(), userID, unread, limit)
	if err != nil {
		http.Error(w, "query notifications error", http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []notifications.InboxItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

// MarkRead handles POST /api/v1/notifications/{id}/read.
func (h *NotificationsHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, audit.ActionNotificationRead, h.inboxMarkRead)
}

// Acknowledge handles POST /api/v1/notifications/{id}/ack.
func (h *NotificationsHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, audit.ActionNotificationAcknowledge, h.inboxAcknowledge)
}

func (h *NotificationsHandler) inboxMarkRead(ctx context.Context, notificationID, userID uuid.UUID) error {
	return h.inbox.MarkRead(ctx, notificationID, userID)
}

func (h *NotificationsHandler) inboxAcknowledge(ctx context.Context, notificationID, userID uuid.UUID) error {
	return h.inbox.Acknowledge(ctx, notificationID, userID)
}

func (h *NotificationsHandler) update(w http.ResponseWriter, r *http.Request, action string, apply func(context.Context, uuid.UUID, uuid.UUID) error) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}
	notificationID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "id must be a uuid", http.StatusBadRequest)
		return
	}
	err = apply(r.Context(), notificationID, userID)
	if errors.Is(err, notifications.ErrNotFound) {
		http.Error(w, "notification not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "update notification error", http.StatusInternalServerError)
		return
	}
	logAudit(r, h.auditLogger, action, "notification", notificationID.String())
	w.WriteHeader(http.StatusNoContent)
}

func (h *NotificationsHandler) caller(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	if h == nil || h.inbox == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return uuid.Nil, false
	}
	userID, ok := auth.UserFromRequest(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return uuid.Nil, false
	}
	return userID, true
}

func parseAlertFilter(r *http.Request) (alerts.Filter, error) {
	var filter alerts.Filter
	q := r.URL.Query()
	active, err := parseBoolQuery(r, "active")
	if err != nil {
		return filter, err
	}
	filter.ActiveOnly = active
	if value := q.Get("signal_id"); value != "" {
		id, err := uuid.Parse(value)
		if err != nil {
			return filter, errors.New("signal_id must be a uuid")
		}
		filter.SignalID = id
	}
	if filter.From, err = parseOptionalTime(r, "from"); err != nil {
		return filter, err
	}
	if filter.To, err = parseOptionalTime(r, "to"); err != nil {
		return filter, err
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && !filter.To.After(filter.From) {
		return filter, errors.New("to must be after from")
	}
	if filter.Limit, err = parseIntQuery(r, "limit"); err != nil {
		return filter, err
	}
	return filter, nil
}

func parseOptionalTime(r *http.Request, key string) (time.Time, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return time.Time{}, nil
	}
	parsed, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, errors.New(key + " must be RFC3339")
	}
	return parsed.UTC(), nil
}

func parseBoolQuery(r *http.Request, key string) (bool, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return false, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, errors.New(key + " must be a boolean")
	}
	return parsed, nil
}

func parseIntQuery(r *http.Request, key string) (int, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return 0, errors.New(key + " must be a non-negative integer")
	}
	return parsed, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
