package application

import (
	"context"
	"errors"
	"testing"
	"time"

	masterdata "signal-alerts/internal/masterdata/domain"

	"github.com/google/uuid"
)

type stubReader struct {
	signals     map[uuid.UUID]masterdata.Signal
	assets      map[uuid.UUID]string
	types       map[uuid.UUID]masterdata.SignalType
	signalCalls int
	typeCalls   int
}

func (s *stubReader) GetSignalByID(_ context.Context, id uuid.UUID) (*masterdata.Signal, error) {
	s.signalCalls++
	signal, ok := s.signals[id]
	if !ok {
		return nil, nil
	}
	return &signal, nil
}

func (s *stubReader) GetAssetName(_ context.Context, id uuid.UUID) (string, error) {
	return s.assets[id], nil
}

func (s *stubReader) GetSignalType(_ context.Context, signalID, typeID uuid.UUID) (*masterdata.SignalType, error) {
	s.typeCalls++
	if signal, ok := s.signals[signalID]; !ok || signal.SignalTypeID != typeID {
		return nil, nil
	}
	signalType, ok := s.types[typeID]
	if !ok {
		return nil, nil
	}
	return &signalType, nil
}

func newStubReader() (*stubReader, masterdata.Signal) {
	signal := masterdata.Signal{
		ID:           uuid.New(),
		AssetID:      uuid.New(),
		DeviceID:     uuid.New(),
		SignalTypeID: uuid.New(),
		Name:         "temperature",
		Unit:         "C",
	}
	reader := &stubReader{
		signals: map[uuid.UUID]masterdata.Signal{signal.ID: signal},
		assets:  map[uuid.UUID]string{signal.AssetID: "Boiler 1"},
		types: map[uuid.UUID]masterdata.SignalType{
			signal.SignalTypeID: {ID: signal.SignalTypeID, MinThreshold: 18, MaxThreshold: 26},
		},
	}
	return reader, signal
}

func TestDirectoryResolve(t *testing.T) {
	reader, signal := newStubReader()
	directory := NewDirectory(0)

	meta, err := directory.Resolve(context.Background(), reader, signal.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if meta.AssetName != "Boiler 1" {
		t.Fatalf("expected asset Boiler 1, got %q", meta.AssetName)
	}
	if meta.Type.MinThreshold != 18 || meta.Type.MaxThreshold != 26 {
		t.Fatalf("unexpected thresholds: %+v", meta.Type)
	}
	if meta.Signal.Name != "temperature" {
		t.Fatalf("expected signal name temperature, got %q", meta.Signal.Name)
	}
}

func TestDirectoryResolveUnknownSignal(t *testing.T) {
	reader, _ := newStubReader()
	directory := NewDirectory(time.Minute)

	_, err := directory.Resolve(context.Background(), reader, uuid.New())
	if !errors.Is(err, masterdata.ErrUnknownSignal) {
		t.Fatalf("expected ErrUnknownSignal, got %v", err)
	}
}

func TestDirectoryResolveMissingSignalType(t *testing.T) {
	reader, signal := newStubReader()
	delete(reader.types, signal.SignalTypeID)

	_, err := NewDirectory(time.Minute).Resolve(context.Background(), reader, signal.ID)
	if !errors.Is(err, masterdata.ErrUnknownSignal) {
		t.Fatalf("expected ErrUnknownSignal, got %v", err)
	}
}

func TestDirectoryCachesIdentityButRereadsThresholds(t *testing.T) {
	reader, signal := newStubReader()
	directory := NewDirectory(time.Minute)
	ctx := context.Background()

	if _, err := directory.Resolve(ctx, reader, signal.ID); err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	reader.types[signal.SignalTypeID] = masterdata.SignalType{ID: signal.SignalTypeID, MinThreshold: 10, MaxThreshold: 40}

	meta, err := directory.Resolve(ctx, reader, signal.ID)
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if reader.signalCalls != 1 {
		t.Fatalf("expected cached signal lookup, got %d calls", reader.signalCalls)
	}
	if reader.typeCalls != 2 {
		t.Fatalf("expected thresholds read per call, got %d calls", reader.typeCalls)
	}
	if meta.Type.MinThreshold != 10 || meta.Type.MaxThreshold != 40 {
		t.Fatalf("expected updated thresholds, got %+v", meta.Type)
	}

	directory.Invalidate(signal.ID)
	if _, err := directory.Resolve(ctx, reader, signal.ID); err != nil {
		t.Fatalf("third resolve: %v", err)
	}
	if reader.signalCalls != 2 {
		t.Fatalf("expected reload after invalidate, got %d calls", reader.signalCalls)
	}
}

func TestDirectoryFallsBackToAssetID(t *testing.T) {
	reader, signal := newStubReader()
	delete(reader.assets, signal.AssetID)

	meta, err := NewDirectory(0).Resolve(context.Background(), reader, signal.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if meta.AssetName != signal.AssetID.String() {
		t.Fatalf("expected asset id fallback, got %q", meta.AssetName)
	}
}

func TestDirectoryRejectsInvertedThresholds(t *testing.T) {
	reader, signal := newStubReader()
	reader.types[signal.SignalTypeID] = masterdata.SignalType{ID: signal.SignalTypeID, MinThreshold: 30, MaxThreshold: 10}

	if _, err := NewDirectory(0).Resolve(context.Background(), reader, signal.ID); err == nil {
		t.Fatalf("expected error for inverted thresholds")
	}
}

func TestDirectoryDropsCachedSignalOnceUnmapped(t *testing.T) {
	reader, signal := newStubReader()
	directory := NewDirectory(time.Minute)
	ctx := context.Background()

	if _, err := directory.Resolve(ctx, reader, signal.ID); err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	delete(reader.signals, signal.ID)

	meta, err := directory.Resolve(ctx, reader, signal.ID)
	if !errors.Is(err, masterdata.ErrUnknownSignal) {
		t.Fatalf("expected ErrUnknownSignal after unmapping, got meta=%v err=%v", meta != nil, err)
	}
	if _, ok := directory.cached(signal.ID); ok {
		t.Fatalf("expected identity to be evicted")
	}
}

func TestDirectoryFollowsRemappedSignalType(t *testing.T) {
	reader, signal := newStubReader()
	directory := NewDirectory(time.Minute)
	ctx := context.Background()

	if _, err := directory.Resolve(ctx, reader, signal.ID); err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	newTypeID := uuid.New()
	reader.types[newTypeID] = masterdata.SignalType{ID: newTypeID, MinThreshold: 0, MaxThreshold: 5}
	remapped := signal
	remapped.SignalTypeID = newTypeID
	reader.signals[signal.ID] = remapped

	meta, err := directory.Resolve(ctx, reader, signal.ID)
	if err != nil {
		t.Fatalf("resolve after remap: %v", err)
	}
	if meta.Type.ID != newTypeID || meta.Type.MaxThreshold != 5 {
		t.Fatalf("expected remapped type, got %+v", meta.Type)
	}
	if reader.signalCalls != 2 {
		t.Fatalf("expected identity reload after remap, got %d calls", reader.signalCalls)
	}
}
