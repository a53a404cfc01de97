package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	notifications "signal-alerts/internal/notifications/domain"
	"signal-alerts/internal/notifications/email"
	"signal-alerts/internal/notifications/notify"
	"signal-alerts/internal/observability/metrics"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
)

const (
	channelStore = "store"
	channelPush  = "push"
	channelEmail = "email"
)

// Store persists a notification and its recipients atomically.
type Store interface {
	Create(ctx context.Context, n notifications.Notification, userIDs []uuid.UUID) error
}

// UserDirectory lists the users a notification is addressed to.
type UserDirectory interface {
	ListActiveUsers(ctx context.Context) ([]notifications.User, error)
}

// Publisher pushes a real-time event to one user.
type Publisher interface {
	Publish(ctx context.Context, userID uuid.UUID, event notifications.Event) error
}

// Mailer sends one email.
type Mailer interface {
	Send(ctx context.Context, msg *email.Message) error
}

// Clock provides time for notification timestamps.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// FanOut records a notification for every active user, then pushes and emails it.
type FanOut struct {
	store            Store
	users            UserDirectory
	publisher        Publisher
	mailer           Mailer
	template         *notify.Template
	clock            Clock
	logger           *slog.Logger
	priority         int
	expiresAfter     time.Duration
	emailTimeout     time.Duration
	emailConcurrency int
}

// FanOutOption configures the fan-out.
type FanOutOption func(*FanOut)

// WithPublisher enables real-time push.
func WithPublisher(publisher Publisher) FanOutOption {
	return func(f *FanOut) {
		f.publisher = publisher
	}
}

// WithMailer enables email delivery.
func WithMailer(mailer Mailer) FanOutOption {
	return func(f *FanOut) {
		f.mailer = mailer
	}
}

// WithTemplate overrides the email body template.
func WithTemplate(template *notify.Template) FanOutOption {
	return func(f *FanOut) {
		if template != nil {
			f.template = template
		}
	}
}

// WithPriority sets the notification priority.
func WithPriority(priority int) FanOutOption {
	return func(f *FanOut) {
		f.priority = priority
	}
}

// WithExpiresAfter sets how long a notification stays current.
func WithExpiresAfter(d time.Duration) FanOutOption {
	return func(f *FanOut) {
		if d > 0 {
			f.expiresAfter = d
		}
	}
}

// WithEmailTimeout bounds each email send.
func WithEmailTimeout(d time.Duration) FanOutOption {
	return func(f *FanOut) {
		if d > 0 {
			f.emailTimeout = d
		}
	}
}

// WithEmailConcurrency bounds parallel sends.
func WithEmailConcurrency(n int) FanOutOption {
	return func(f *FanOut) {
		if n > 0 {
			f.emailConcurrency = n
		}
	}
}

// WithFanOutClock overrides the default clock.
func WithFanOutClock(clock Clock) FanOutOption {
	return func(f *FanOut) {
		if clock != nil {
			f.clock = clock
		}
	}
}

// WithFanOutLogger overrides the default logger.
func WithFanOutLogger(logger *slog.Logger) FanOutOption {
	return func(f *FanOut) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewFanOut constructs a fan-out.
func NewFanOut(store Store, users UserDirectory, opts ...FanOutOption) (*FanOut, error) {
	if store == nil {
		return nil, errors.New("notification fan-out: nil store")
	}
	if users == nil {
		return nil, errors.New("notification fan-out: nil user directory")
	}
	template, err := notify.NewTemplate("")
	if err != nil {
		return nil, err
	}
	f := &FanOut{
		store:            store,
		users:            users,
		template:         template,
		clock:            systemClock{},
		logger:           slog.Default(),
		priority:         1,
		expiresAfter:     24 * time.Hour,
		emailTimeout:     10 * time.Second,
		emailConcurrency: 4,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Notify persists the notification and returns only persistence errors.
func (f *FanOut) Notify(ctx context.Context, alertID uuid.UUID, payload notifications.Payload) error {
	if payload == nil {
		return errors.New("notification fan-out: nil payload")
	}
	text, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notification fan-out: encode payload: %w", err)
	}
	now := f.clock.Now().UTC()
	n := notifications.Notification{
		ID:         uuid.New(),
		Kind:       payload.Kind(),
		AlertID:    alertID,
		Title:      payload.Title(),
		Text:       string(text),
		Priority:   f.priority,
		CreatedUTC: now,
		ExpiresUTC: now.Add(f.expiresAfter),
	}

	users, err := f.users.ListActiveUsers(ctx)
	if err != nil {
		metrics.IncNotification(channelStore, metrics.ResultError)
		return fmt.Errorf("notification fan-out: list users: %w", err)
	}
	ids := make([]uuid.UUID, 0, len(users))
	for _, user := range users {
		ids = append(ids, user.ID)
	}
	if err := f.store.Create(ctx, n, ids); err != nil {
		metrics.IncNotification(channelStore, metrics.ResultError)
		return fmt.Errorf("notification fan-out: persist: %w", err)
	}
	metrics.IncNotification(channelStore, metrics.ResultSuccess)

	f.push(ctx, n, ids)
	f.email(ctx, n, payload, users)
	return nil
}

func (f *FanOut) push(ctx context.Context, n notifications.Notification, userIDs []uuid.UUID) {
	if f.publisher == nil {
		return
	}
	event := n.Event()
	for _, userID := range userIDs {
		if err := f.publisher.Publish(ctx, userID, event); err != nil {
			metrics.IncNotification(channelPush, metrics.ResultError)
			f.logger.Warn("notification push failed", "notification_id", n.ID, "user_id", userID, "error", err)
			continue
		}
		metrics.IncNotification(channelPush, metrics.ResultSuccess)
	}
}

func (f *FanOut) email(ctx context.Context, n notifications.Notification, payload notifications.Payload, users []notifications.User) {
	if f.mailer == nil {
		return
	}
	body, err := f.template.RenderPayload(payload)
	if err != nil {
		f.logger.Warn("notification email render failed", "notification_id", n.ID, "error", err)
		return
	}

	var (
		mu     sync.Mutex
		failed *multierror.Error
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(f.emailConcurrency)
	for _, user := range users {
		if user.Email == "" {
			continue
		}
		address := user.Email
		group.Go(func() error {
			sendCtx, cancel := context.WithTimeout(groupCtx, f.emailTimeout)
			defer cancel()
			err := f.mailer.Send(sendCtx, &email.Message{
				To:      []string{address},
				Subject: n.Title,
				Body:    body,
			})
			if err != nil {
				metrics.IncNotification(channelEmail, metrics.ResultError)
				mu.Lock()
				failed = multierror.Append(failed, fmt.Errorf("%s: %w", address, err))
				mu.Unlock()
				return nil
			}
			metrics.IncNotification(channelEmail, metrics.ResultSuccess)
			return nil
		})
	}
	_ = group.Wait()
	if failed != nil {
		f.logger.Warn("notification email failed", "notification_id", n.ID, "failed", len(failed.Errors), "error", failed.ErrorOrNil())
	}
}
