package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrNoProvider is returned when no configured provider can send.
var ErrNoProvider = errors.New("email: no configured provider")

// Message is one outbound email.
type Message struct {
	From    string
	To      []string
	Subject string
	Body    string
}

// Provider delivers email through one backend.
type Provider interface {
	Name() string
	Send(ctx context.Context, msg *Message) error
	IsConfigured() bool
}

// Registry sends through a primary provider and falls back in order on failure.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	primary   string
	fallback  []string
	from      string
	logger    *slog.Logger
}

// NewRegistry constructs an empty registry. from is applied to messages without a sender.
func NewRegistry(from string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		providers: make(map[string]Provider),
		from:      from,
		logger:    logger,
	}
}

// Register adds a provider under its name.
func (r *Registry) Register(provider Provider) {
	if r == nil || provider == nil {
		return
	}
	r.mu.Lock()
	r.providers[provider.Name()] = provider
	r.mu.Unlock()
	r.logger.Info("email provider registered", "name", provider.Name(), "configured", provider.IsConfigured())
}

// SetPrimary selects the provider tried first.
func (r *Registry) SetPrimary(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[name]; !ok {
		return fmt.Errorf("email: provider %q not registered", name)
	}
	r.primary = name
	return nil
}

// SetFallback sets the providers tried after the primary, in order.
func (r *Registry) SetFallback(names ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range names {
		if _, ok := r.providers[name]; !ok {
			return fmt.Errorf("email: provider %q not registered", name)
		}
	}
	r.fallback = append([]string(nil), names...)
	return nil
}

// Configured reports whether any registered provider can send.
func (r *Registry) Configured() bool {
	if r == nil {
		return false
	}
	return len(r.candidates()) > 0
}

// Send delivers msg with the first provider that succeeds. The first error is returned when all fail.
func (r *Registry) Send(ctx context.Context, msg *Message) error {
	if r == nil {
		return ErrNoProvider
	}
	if msg == nil || len(msg.To) == 0 {
		return errors.New("email: no recipients")
	}
	if msg.From == "" {
		msg.From = r.from
	}
	candidates := r.candidates()
	if len(candidates) == 0 {
		return ErrNoProvider
	}

	var first error
	for i, provider := range candidates {
		err := provider.Send(ctx, msg)
		if err == nil {
			if i > 0 {
				r.logger.Warn("email sent via fallback provider", "provider", provider.Name())
			}
			return nil
		}
		if first == nil {
			first = err
		}
		if ctx.Err() != nil {
			break
		}
	}
	return first
}

func (r *Registry) candidates() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Provider
	seen := make(map[string]bool)
	add := func(name string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		if p, ok := r.providers[name]; ok && p.IsConfigured() {
			out = append(out, p)
		}
	}
	add(r.primary)
	for _, name := range r.fallback {
		add(name)
	}
	return out
}
