package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// UserStats is a player's progress snapshot (coins, level, inventory, ...).
// The transport relays it wholesale and never looks inside.
type UserStats json.RawMessage

var jsonNull = []byte("null")

// NewUserStats marshals v into an opaque snapshot.
func NewUserStats(v any) (UserStats, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal user stats: %w", err)
	}
	return UserStats(data), nil
}

// MarshalJSON emits the raw snapshot, or null when empty.
func (s UserStats) MarshalJSON() ([]byte, error) {
	if len(s) == 0 {
		return jsonNull, nil
	}
	return s, nil
}

// UnmarshalJSON stores a copy of the raw snapshot.
func (s *UserStats) UnmarshalJSON(data []byte) error {
	if s == nil {
		return fmt.Errorf("domain.UserStats: UnmarshalJSON on nil pointer")
	}
	*s = append((*s)[0:0], data...)
	return nil
}

// IsZero reports whether the snapshot is absent or JSON null.
func (s UserStats) IsZero() bool {
	return len(s) == 0 || bytes.Equal(bytes.TrimSpace(s), jsonNull)
}

// Decode unmarshals the snapshot into v.
func (s UserStats) Decode(v any) error {
	if s.IsZero() {
		return nil
	}
	if err := json.Unmarshal(s, v); err != nil {
		return fmt.Errorf("decode user stats: %w", err)
	}
	return nil
}

func (s UserStats) String() string {
	if len(s) == 0 {
		return "null"
	}
	return string(s)
}
