package notifications

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound indicates a missing notification or recipient row.
var ErrNotFound = errors.New("notification: not found")

// Kind names the alert transition a notification announces.
type Kind string

const (
	KindStart    Kind = "start"
	KindResolved Kind = "resolved"
)

// Payload is the fixed JSON body carried in Notification.Text.
type Payload interface {
	Kind() Kind
	Title() string
}

// StartPayload announces a new alert.
type StartPayload struct {
	Asset     string    `json:"asset"`
	Signal    string    `json:"signal"`
	Value     float64   `json:"value"`
	Min       float64   `json:"min"`
	Max       float64   `json:"max"`
	Status    string    `json:"status"`
	Percent   float64   `json:"percent"`
	Timestamp time.Time `json:"timestamp"`
}

func (StartPayload) Kind() Kind { return KindStart }

func (p StartPayload) Title() string {
	return fmt.Sprintf("%s %s alert on %s", p.Signal, p.Status, p.Asset)
}

// ResolvedPayload announces a closed alert. Min and Max are the observed extremes.
type ResolvedPayload struct {
	Asset           string    `json:"asset"`
	Signal          string    `json:"signal"`
	From            time.Time `json:"from"`
	To              time.Time `json:"to"`
	DurationSeconds int64     `json:"durationSeconds"`
	Min             float64   `json:"min"`
	Max             float64   `json:"max"`
}

func (ResolvedPayload) Kind() Kind { return KindResolved }

func (p ResolvedPayload) Title() string {
	return fmt.Sprintf("%s alert resolved on %s", p.Signal, p.Asset)
}

// Notification is one broadcast record.
type Notification struct {
	ID         uuid.UUID `json:"id"`
	Kind       Kind      `json:"kind"`
	AlertID    uuid.UUID `json:"alert_id"`
	Title      string    `json:"title"`
	Text       string    `json:"text"`
	Priority   int       `json:"priority"`
	CreatedUTC time.Time `json:"created_utc"`
	ExpiresUTC time.Time `json:"expires_utc"`
}

// Event is the body of a ReceiveNotification push.
func (n Notification) Event() Event {
	return Event{
		ID:        n.ID,
		Title:     n.Title,
		Text:      n.Text,
		CreatedAt: n.CreatedUTC,
		ExpiresAt: n.ExpiresUTC,
		Priority:  n.Priority,
	}
}

// Event is what a subscribed user receives in real time.
type Event struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	Priority  int       `json:"priority"`
}

// EventName is the real-time event type.
const EventName = "ReceiveNotification"

// Recipient tracks one user's read and acknowledge state.
type Recipient struct {
	NotificationID  uuid.UUID `json:"notification_id"`
	UserID          uuid.UUID `json:"user_id"`
	IsRead          bool      `json:"is_read"`
	ReadUTC         time.Time `json:"read_utc,omitempty"`
	IsAcknowledged  bool      `json:"is_acknowledged"`
	AcknowledgedUTC time.Time `json:"acknowledged_utc,omitempty"`
}

// InboxItem is a notification as seen by one recipient.
type InboxItem struct {
	Notification
	IsRead          bool      `json:"is_read"`
	ReadUTC         time.Time `json:"read_utc,omitempty"`
	IsAcknowledged  bool      `json:"is_acknowledged"`
	AcknowledgedUTC time.Time `json:"acknowledged_utc,omitempty"`
}

// User is a notification target.
type User struct {
	ID       uuid.UUID
	Email    string
	IsActive bool
}
