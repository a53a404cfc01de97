package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	masterdata "signal-alerts/internal/masterdata/domain"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

type signalIdentity struct {
	signal    masterdata.Signal
	assetName string
}

// Directory resolves readings to their signal metadata.
// Signal identity and asset names are cached for the configured TTL; threshold
// templates and the signal mapping are read on every call so threshold edits
// and unmapped signals apply to the next reading.
type Directory struct {
	cache *cache.Cache
}

// NewDirectory constructs a directory. A zero ttl disables caching.
func NewDirectory(ttl time.Duration) *Directory {
	d := &Directory{}
	if ttl > 0 {
		d.cache = cache.New(ttl, 2*ttl)
	}
	return d
}

// Resolve loads metadata for a signal using reader, which is bound to the caller's unit of work.
// It returns masterdata.ErrUnknownSignal when the signal or its threshold template is missing.
func (d *Directory) Resolve(ctx context.Context, reader masterdata.SignalReader, signalID uuid.UUID) (*masterdata.SignalMetadata, error) {
	if d == nil {
		return nil, errors.New("signal directory: nil directory")
	}
	if reader == nil {
		return nil, errors.New("signal directory: nil reader")
	}
	if signalID == uuid.Nil {
		return nil, fmt.Errorf("%w: nil id", masterdata.ErrUnknownSignal)
	}

	identity, cached := d.cached(signalID)
	if !cached {
		loaded, err := d.load(ctx, reader, signalID)
		if err != nil {
			return nil, err
		}
		identity = loaded
	}

	// The type lookup also confirms the mapping, so a cached identity for a
	// deleted or remapped signal is caught here.
	signalType, err := reader.GetSignalType(ctx, signalID, identity.signal.SignalTypeID)
	if err != nil {
		return nil, fmt.Errorf("signal directory: load signal type: %w", err)
	}
	if signalType == nil && cached {
		d.Invalidate(signalID)
		if identity, err = d.load(ctx, reader, signalID); err != nil {
			return nil, err
		}
		signalType, err = reader.GetSignalType(ctx, signalID, identity.signal.SignalTypeID)
		if err != nil {
			return nil, fmt.Errorf("signal directory: load signal type: %w", err)
		}
	}
	if signalType == nil {
		d.Invalidate(signalID)
		return nil, fmt.Errorf("%w: signal %s has no signal type %s", masterdata.ErrUnknownSignal, signalID, identity.signal.SignalTypeID)
	}
	if err := signalType.Validate(); err != nil {
		return nil, err
	}

	return &masterdata.SignalMetadata{
		Signal:    identity.signal,
		AssetName: identity.assetName,
		Type:      *signalType,
	}, nil
}

func (d *Directory) load(ctx context.Context, reader masterdata.SignalReader, signalID uuid.UUID) (signalIdentity, error) {
	signal, err := reader.GetSignalByID(ctx, signalID)
	if err != nil {
		return signalIdentity{}, fmt.Errorf("signal directory: load signal: %w", err)
	}
	if signal == nil {
		return signalIdentity{}, fmt.Errorf("%w: %s", masterdata.ErrUnknownSignal, signalID)
	}
	assetName, err := reader.GetAssetName(ctx, signal.AssetID)
	if err != nil {
		return signalIdentity{}, fmt.Errorf("signal directory: load asset name: %w", err)
	}
	if assetName == "" {
		assetName = signal.AssetID.String()
	}
	identity := signalIdentity{signal: *signal, assetName: assetName}
	d.remember(signalID, identity)
	return identity, nil
}

// Invalidate evicts the cached identity of a signal.
func (d *Directory) Invalidate(signalID uuid.UUID) {
	if d == nil || d.cache == nil {
		return
	}
	d.cache.Delete(signalID.String())
}

func (d *Directory) cached(signalID uuid.UUID) (signalIdentity, bool) {
	if d.cache == nil {
		return signalIdentity{}, false
	}
	value, ok := d.cache.Get(signalID.String())
	if !ok {
		return signalIdentity{}, false
	}
	identity, ok := value.(signalIdentity)
	return identity, ok
}

func (d *Directory) remember(signalID uuid.UUID, identity signalIdentity) {
	if d.cache == nil {
		return
	}
	d.cache.SetDefault(signalID.String(), identity)
}
