package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChatMessage(t *testing.T) {
	before := time.Now().UnixMilli()
	m := NewChatMessage("u1", "Alice", "hello")
	after := time.Now().UnixMilli()

	assert.NotEmpty(t, m.ID)
	assert.Equal(t, "u1", m.SenderID)
	assert.Equal(t, "Alice", m.SenderName)
	assert.Equal(t, "hello", m.Text)
	assert.GreaterOrEqual(t, m.Timestamp, before)
	assert.LessOrEqual(t, m.Timestamp, after)
	assert.False(t, m.FromSystem())

	assert.NotEqual(t, m.ID, NewChatMessage("u1", "Alice", "hello").ID)
}

func TestNewSystemMessage(t *testing.T) {
	m := NewSystemMessage("Using local mode")

	assert.True(t, strings.HasPrefix(m.ID, "sys_"), m.ID)
	assert.Equal(t, SystemSenderID, m.SenderID)
	assert.Equal(t, "System", m.SenderName)
	assert.True(t, m.IsSystem)
	assert.True(t, m.FromSystem())
	assert.WithinDuration(t, time.Now(), m.Time(), time.Second)
}

func TestChatMessage_WireShape(t *testing.T) {
	m := ChatMessage{ID: "m1", SenderID: "u1", SenderName: "Alice", Text: "hi", Timestamp: 1700000000000}
	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"m1","senderId":"u1","senderName":"Alice","text":"hi","timestamp":1700000000000}`, string(data))

	// A system sender id is enough, even without the flag.
	var in ChatMessage
	require.NoError(t, json.Unmarshal([]byte(`{"id":"x","senderId":"system","text":"t"}`), &in))
	assert.True(t, in.FromSystem())
}

func TestUserStats(t *testing.T) {
	t.Run("empty marshals as null", func(t *testing.T) {
		data, err := json.Marshal(struct {
			Stats UserStats `json:"stats"`
		}{})
		require.NoError(t, err)
		assert.JSONEq(t, `{"stats":null}`, string(data))
		assert.True(t, UserStats(nil).IsZero())
		assert.True(t, UserStats("null").IsZero())
		assert.Equal(t, "null", UserStats(nil).String())
	})

	t.Run("raw snapshot is preserved", func(t *testing.T) {
		var w struct {
			Stats UserStats `json:"stats"`
		}
		require.NoError(t, json.Unmarshal([]byte(`{"stats":{"coins":500,"inventory":["a","b"]}}`), &w))
		assert.False(t, w.Stats.IsZero())
		assert.JSONEq(t, `{"coins":500,"inventory":["a","b"]}`, w.Stats.String())

		var decoded struct {
			Coins     int      `json:"coins"`
			Inventory []string `json:"inventory"`
		}
		require.NoError(t, w.Stats.Decode(&decoded))
		assert.Equal(t, 500, decoded.Coins)
		assert.Equal(t, []string{"a", "b"}, decoded.Inventory)
	})

	t.Run("decode of empty snapshot is a no-op", func(t *testing.T) {
		var v map[string]any
		require.NoError(t, UserStats(nil).Decode(&v))
		assert.Nil(t, v)
	})

	t.Run("decode type mismatch", func(t *testing.T) {
		var n int
		assert.Error(t, UserStats(`{"coins":1}`).Decode(&n))
	})

	t.Run("new from value", func(t *testing.T) {
		s, err := NewUserStats(map[string]int{"level": 4})
		require.NoError(t, err)
		assert.JSONEq(t, `{"level":4}`, string(s))

		_, err = NewUserStats(make(chan int))
		assert.Error(t, err)
	})
}
