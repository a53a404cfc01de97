package application

import (
	"context"
	"errors"
	"sync"
	"time"

	alerts "signal-alerts/internal/alerts/domain"

	"github.com/google/uuid"
)

// Store pairs the durable alert repository with an in-memory mirror of active alerts.
// Every accessor writes the durable row first and mutates the mirror only after the
// write succeeded, so a failed write leaves the mirror as it was.
//
// The mirror is a process-local view used for the active alert gauge and startup
// rehydration. Decisions and notification payloads always come from the durable row.
type Store struct {
	mu     sync.RWMutex
	mirror map[uuid.UUID]alerts.ActiveState
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{mirror: make(map[uuid.UUID]alerts.ActiveState)}
}

// Active returns the active alert of a signal as stored in the durable row. The mirror
// is overwritten with that row, or dropped when the row is gone.
func (s *Store) Active(ctx context.Context, repo alerts.Repository, signalID uuid.UUID) (alerts.ActiveState, bool, error) {
	if s == nil {
		return alerts.ActiveState{}, false, errors.New("alert store: nil store")
	}
	if repo == nil {
		return alerts.ActiveState{}, false, errors.New("alert store: nil repository")
	}
	row, err := repo.FindActiveBySignal(ctx, signalID)
	if err != nil {
		return alerts.ActiveState{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if row == nil {
		delete(s.mirror, signalID)
		return alerts.ActiveState{}, false, nil
	}
	state := alerts.StateOf(*row)
	s.mirror[signalID] = state
	return state, true, nil
}

// Start creates the active alert and its mirror entry. It reports false when the
// signal already had an active row, in which case the mirror adopts that row.
func (s *Store) Start(ctx context.Context, repo alerts.Repository, alert *alerts.Alert) (bool, error) {
	if s == nil {
		return false, errors.New("alert store: nil store")
	}
	if repo == nil {
		return false, errors.New("alert store: nil repository")
	}
	if alert == nil {
		return false, errors.New("alert store: nil alert")
	}
	created, err := repo.CreateActive(ctx, alert)
	if err != nil {
		return false, err
	}
	if !created {
		if _, _, err := s.Active(ctx, repo, alert.SignalID); err != nil {
			return false, err
		}
		return false, nil
	}

	s.mu.Lock()
	s.mirror[alert.SignalID] = alerts.StateOf(*alert)
	s.mu.Unlock()
	return true, nil
}

// Extend folds value into the extremes of an active alert. It reports false when
// the alert was closed in the meantime.
func (s *Store) Extend(ctx context.Context, repo alerts.Repository, active alerts.ActiveState, value float64, at time.Time) (alerts.ActiveState, bool, error) {
	if s == nil {
		return alerts.ActiveState{}, false, errors.New("alert store: nil store")
	}
	if repo == nil {
		return alerts.ActiveState{}, false, errors.New("alert store: nil repository")
	}
	min, max, ok, err := repo.ExtendObserved(ctx, active.AlertID, value, at)
	if err != nil {
		return alerts.ActiveState{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !ok {
		s.forgetLocked(active)
		return alerts.ActiveState{}, false, nil
	}
	next := active
	next.MinValue = min
	next.MaxValue = max
	s.mirror[active.SignalID] = next
	return next, true, nil
}

// Resolve closes an active alert, clears its mirror entry and returns the episode.
// It reports false when another delivery closed it first.
func (s *Store) Resolve(ctx context.Context, repo alerts.Repository, active alerts.ActiveState, at time.Time) (alerts.Snapshot, bool, error) {
	if s == nil {
		return alerts.Snapshot{}, false, errors.New("alert store: nil store")
	}
	if repo == nil {
		return alerts.Snapshot{}, false, errors.New("alert store: nil repository")
	}
	snapshot, ok, err := repo.CloseActive(ctx, active.AlertID, at)
	if err != nil {
		return alerts.Snapshot{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.forgetLocked(active)
	if !ok {
		return alerts.Snapshot{}, false, nil
	}
	return snapshot, true, nil
}

// Rehydrate replaces the mirror with the active rows of repo and returns their count.
func (s *Store) Rehydrate(ctx context.Context, repo alerts.Repository) (int, error) {
	if s == nil {
		return 0, errors.New("alert store: nil store")
	}
	if repo == nil {
		return 0, errors.New("alert store: nil repository")
	}
	rows, err := repo.ListActive(ctx)
	if err != nil {
		return 0, err
	}
	mirror := make(map[uuid.UUID]alerts.ActiveState, len(rows))
	for _, row := range rows {
		mirror[row.SignalID] = alerts.StateOf(row)
	}

	s.mu.Lock()
	s.mirror = mirror
	s.mu.Unlock()
	return len(mirror), nil
}

// MirrorSize returns the number of mirrored active alerts.
func (s *Store) MirrorSize() int {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.mirror)
}

func (s *Store) forgetLocked(active alerts.ActiveState) {
	if current, ok := s.mirror[active.SignalID]; ok && current.AlertID == active.AlertID {
		delete(s.mirror, active.SignalID)
	}
}
