package state

import (
	"context"
	"testing"
)

type mapStore struct {
	data map[string]string
}

func (s *mapStore) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *mapStore) Set(_ context.Context, key, value string) error {
	s.data[key] = value
	return nil
}

func (s *mapStore) Delete(_ context.Context, key string) error {
	delete(s.data, key)
	return nil
}

func (s *mapStore) Keys(_ context.Context, _ string) ([]string, error) { return nil, nil }

func (s *mapStore) Close() error { return nil }

func TestSessionSnapshotRoundTrip(t *testing.T) {
	store := &mapStore{data: make(map[string]string)}
	ctx := context.Background()
	in := SessionSnapshot{
		EtfPosition:    42,
		FuturePosition: -21,
		HedgeDeficit:   -1,
		Beta:           0.512,
		EtfMid:         10050,
		FutureMid:      19600,
		UnrealizedPnL:  -310.5,
		OpenOrders:     2,
		QuoteState:     "QUOTING",
		UpdatedAtMS:    1724670000000,
	}
	if err := SaveSessionSnapshot(ctx, store, in); err != nil {
		t.Fatalf("save: %v", err)
	}
	out, ok, err := LoadSessionSnapshot(ctx, store)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if out != in {
		t.Fatalf("got %+v want %+v", out, in)
	}
}

func TestSessionSnapshotAbsent(t *testing.T) {
	store := &mapStore{data: make(map[string]string)}
	_, ok, err := LoadSessionSnapshot(context.Background(), store)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ok {
		t.Fatalf("expected no snapshot in a fresh store")
	}
}

func TestSessionSnapshotBlankValue(t *testing.T) {
	store := &mapStore{data: map[string]string{SessionSnapshotKey: "  "}}
	_, ok, err := LoadSessionSnapshot(context.Background(), store)
	if err != nil || ok {
		t.Fatalf("expected blank value treated as absent, ok=%v err=%v", ok, err)
	}
}

func TestSessionSnapshotNilStore(t *testing.T) {
	ctx := context.Background()
	if err := SaveSessionSnapshot(ctx, nil, SessionSnapshot{}); err != nil {
		t.Fatalf("save with nil store: %v", err)
	}
	if _, ok, err := LoadSessionSnapshot(ctx, nil); ok || err != nil {
		t.Fatalf("load with nil store: ok=%v err=%v", ok, err)
	}
}
