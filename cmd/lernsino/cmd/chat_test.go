package cmd

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nfrund/lernsino/internal/domain"
	"github.com/nfrund/lernsino/internal/multiplayer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	mu       sync.Mutex
	logins   []string
	sent     []domain.ChatMessage
	updates  []domain.UserStats
	messages []func(domain.ChatMessage)
	conn     []func(bool)
	states   []func(domain.UserStats)
	unsubbed int
}

func (f *fakeSession) ID() string { return "client-1" }

func (f *fakeSession) Login(username string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins = append(f.logins, username)
}

func (f *fakeSession) SendMessage(msg domain.ChatMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
}

func (f *fakeSession) UpdateState(stats domain.UserStats) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, stats)
}

func (f *fakeSession) unsubscribe() multiplayer.Unsubscribe {
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.unsubbed++
	}
}

func (f *fakeSession) SubscribeToMessages(fn func(domain.ChatMessage)) multiplayer.Unsubscribe {
	f.messages = append(f.messages, fn)
	return f.unsubscribe()
}

func (f *fakeSession) SubscribeToConnection(fn func(bool)) multiplayer.Unsubscribe {
	f.conn = append(f.conn, fn)
	fn(false)
	return f.unsubscribe()
}

func (f *fakeSession) SubscribeToState(fn func(domain.UserStats)) multiplayer.Unsubscribe {
	f.states = append(f.states, fn)
	return f.unsubscribe()
}

func TestRunChat_RelaysInput(t *testing.T) {
	s := &fakeSession{}
	in := strings.NewReader("hello there\n\n/stats {\"coins\":5}\n/stats nope\n/dance\nbye\n")
	var out bytes.Buffer

	require.NoError(t, runChat(context.Background(), s, " alice ", in, &out))

	assert.Equal(t, []string{"alice"}, s.logins)
	require.Len(t, s.sent, 2)
	assert.Equal(t, "hello there", s.sent[0].Text)
	assert.Equal(t, "alice", s.sent[0].SenderName)
	assert.Equal(t, "client-1", s.sent[0].SenderID)
	assert.Equal(t, "bye", s.sent[1].Text)

	require.Len(t, s.updates, 1)
	assert.JSONEq(t, `{"coins":5}`, string(s.updates[0]))

	assert.Contains(t, out.String(), "-- hub unreachable, retrying")
	assert.Contains(t, out.String(), "!! /stats needs a JSON value")
	assert.Contains(t, out.String(), "!! unknown command /dance")
	assert.Equal(t, 3, s.unsubbed, "listeners are removed when the chat ends")
}

func TestRunChat_QuitStopsReading(t *testing.T) {
	s := &fakeSession{}
	in := strings.NewReader("first\n/quit\nnever sent\n")

	require.NoError(t, runChat(context.Background(), s, "bob", in, &bytes.Buffer{}))
	require.Len(t, s.sent, 1)
	assert.Equal(t, "first", s.sent[0].Text)
}

func TestRunChat_PrintsInbound(t *testing.T) {
	s := &fakeSession{}
	var out bytes.Buffer
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	pr, pw := io.Pipe()
	go func() { done <- runChat(ctx, s, "carol", pr, &out) }()

	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.logins) == 1
	}, time.Second, time.Millisecond)

	at := time.Date(2024, 5, 1, 13, 4, 5, 0, time.Local)
	s.messages[0](domain.ChatMessage{ID: "m1", SenderName: "Dave", Text: "hi carol", Timestamp: at.UnixMilli()})
	s.messages[0](domain.NewSystemMessage("Using local mode"))
	s.conn[0](true)
	s.states[0](domain.UserStats(`{"coins":9}`))
	s.states[0](nil)

	cancel()
	pw.Close()
	require.NoError(t, <-done)

	text := out.String()
	assert.Contains(t, text, "[13:04:05] Dave: hi carol")
	assert.Contains(t, text, "* Using local mode")
	assert.Contains(t, text, "-- connected to hub")
	assert.Contains(t, text, `-- stats: {"coins":9}`)
	assert.Contains(t, text, "-- no saved stats")
}

func TestRunChat_RequiresName(t *testing.T) {
	err := runChat(context.Background(), &fakeSession{}, "   ", strings.NewReader(""), &bytes.Buffer{})
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	versionCmd.Run(versionCmd, nil)
	assert.Equal(t, "lernsino v"+version+"\n", out.String())
}
