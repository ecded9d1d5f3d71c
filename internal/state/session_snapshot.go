package state

import (
	"context"
	"encoding/json"
	"strings"
)

const SessionSnapshotKey = "session:last_snapshot"

// SessionSnapshot is the periodic risk picture the session persists for
// post-mortems. It is observability output, not recovery state: a new
// session always starts with a zeroed position and an empty order table.
type SessionSnapshot struct {
	EtfPosition    int64   `json:"etf_position"`
	FuturePosition int64   `json:"future_position"`
	HedgeDeficit   int64   `json:"hedge_deficit"`
	Beta           float64 `json:"beta"`
	EtfMid         float64 `json:"etf_mid"`
	FutureMid      float64 `json:"future_mid"`
	UnrealizedPnL  float64 `json:"unrealized_pnl"`
	OpenOrders     int     `json:"open_orders"`
	QuoteState     string  `json:"quote_state"`
	UpdatedAtMS    int64   `json:"updated_at_ms"`
}

func LoadSessionSnapshot(ctx context.Context, store Store) (SessionSnapshot, bool, error) {
	if store == nil {
		return SessionSnapshot{}, false, nil
	}
	raw, ok, err := store.Get(ctx, SessionSnapshotKey)
	if err != nil {
		return SessionSnapshot{}, false, err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return SessionSnapshot{}, false, nil
	}
	var snapshot SessionSnapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return SessionSnapshot{}, false, err
	}
	return snapshot, true, nil
}

func SaveSessionSnapshot(ctx context.Context, store Store, snapshot SessionSnapshot) error {
	if store == nil {
		return nil
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return store.Set(ctx, SessionSnapshotKey, string(payload))
}
