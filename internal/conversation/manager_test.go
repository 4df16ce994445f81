package conversation

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gemini-chat/internal/client"
	"gemini-chat/internal/handlers"
	"gemini-chat/internal/metrics"
	"gemini-chat/internal/router"
)

const (
	greeting      = "Hey there! How can I help?"
	resetGreeting = "Chat cleared!"
	waitTimeout   = 5 * time.Second
)

type reply struct {
	text string
	err  error
}

type call struct {
	message string
	ctx     context.Context
	reply   chan reply
}

// fakeTransport hands every Send to the test through calls. With
// ignoreCancel set it keeps waiting for a reply after ctx is cancelled,
// like a network round trip that completes anyway.
type fakeTransport struct {
	calls        chan *call
	ignoreCancel bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{calls: make(chan *call, 16)}
}

func (f *fakeTransport) Send(ctx context.Context, message string) (string, error) {
	c := &call{message: message, ctx: ctx, reply: make(chan reply, 1)}
	f.calls <- c

	if f.ignoreCancel {
		r := <-c.reply
		return r.text, r.err
	}
	select {
	case r := <-c.reply:
		return r.text, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (f *fakeTransport) next(t *testing.T) *call {
	t.Helper()
	select {
	case c := <-f.calls:
		return c
	case <-time.After(waitTimeout):
		t.Fatal("no transport call")
		return nil
	}
}

func (f *fakeTransport) requireNoCall(t *testing.T) {
	t.Helper()
	select {
	case c := <-f.calls:
		t.Fatalf("unexpected transport call with %q", c.message)
	default:
	}
}

func wait(t *testing.T, p *Pending) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(waitTimeout):
		t.Fatal("request never settled")
	}
}

func newManager(tr Transport) *Manager {
	return New(tr, Options{Greeting: greeting, ResetGreeting: resetGreeting, Logger: zap.NewNop()})
}

func contents(msgs []Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = string(m.Role) + ":" + m.Content
	}
	return out
}

func TestNew_SeedsGreeting(t *testing.T) {
	m := newManager(newFakeTransport())

	s := m.Snapshot()
	require.Equal(t, []string{"assistant:" + greeting}, contents(s.Messages))
	require.False(t, s.Loading)
	require.Empty(t, s.Err)
	require.Empty(t, s.Draft)
}

func TestChangeInput(t *testing.T) {
	m := newManager(newFakeTransport())

	m.ChangeInput("hel")
	m.ChangeInput("hello")
	require.Equal(t, "hello", m.Snapshot().Draft)
}

func TestSubmit_BlankDraftIsNoop(t *testing.T) {
	tr := newFakeTransport()
	m := newManager(tr)

	for _, draft := range []string{"", "   ", "\n\t "} {
		m.ChangeInput(draft)
		p, ok := m.Submit()
		require.False(t, ok)
		require.Nil(t, p)
	}

	s := m.Snapshot()
	require.Len(t, s.Messages, 1)
	require.False(t, s.Loading)
	tr.requireNoCall(t)
}

func TestSubmit_Success(t *testing.T) {
	tr := newFakeTransport()
	m := newManager(tr)

	m.ChangeInput("  hello  ")
	p, ok := m.Submit()
	require.True(t, ok)

	s := m.Snapshot()
	require.Equal(t, []string{"assistant:" + greeting, "user:hello"}, contents(s.Messages))
	require.Empty(t, s.Draft)
	require.True(t, s.Loading)
	require.Equal(t, OutcomePending, p.Outcome())

	c := tr.next(t)
	require.Equal(t, "hello", c.message)
	c.reply <- reply{text: "**hi** there"}
	wait(t, p)

	s = m.Snapshot()
	require.Equal(t, []string{"assistant:" + greeting, "user:hello", "assistant:**hi** there"}, contents(s.Messages))
	require.False(t, s.Loading)
	require.Empty(t, s.Err)
	require.Equal(t, OutcomeSucceeded, p.Outcome())
}

func TestSubmit_Failure(t *testing.T) {
	tests := []struct {
		name    string
		reply   reply
		wantErr string
	}{
		{"server error", reply{err: errors.New("Failed to process request")}, "Failed to process request"},
		{"empty text", reply{}, ErrEmptyReply.Error()},
		{"unexpected body", reply{err: &client.UnexpectedResponseError{StatusCode: 502, Body: "<html>"}}, "Unexpected response: <html>"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tr := newFakeTransport()
			m := newManager(tr)

			m.ChangeInput("hello")
			p, ok := m.Submit()
			require.True(t, ok)

			tr.next(t).reply <- tc.reply
			wait(t, p)

			s := m.Snapshot()
			require.Equal(t, tc.wantErr, s.Err)
			require.False(t, s.Loading)
			require.Len(t, s.Messages, 2, "failure appends no assistant message")
			require.Equal(t, OutcomeFailed, p.Outcome())
		})
	}
}

func TestSubmit_ClearsPreviousError(t *testing.T) {
	tr := newFakeTransport()
	m := newManager(tr)

	m.ChangeInput("one")
	p, _ := m.Submit()
	tr.next(t).reply <- reply{err: errors.New("boom")}
	wait(t, p)
	require.Equal(t, "boom", m.Snapshot().Err)

	m.ChangeInput("two")
	_, ok := m.Submit()
	require.True(t, ok)
	require.Empty(t, m.Snapshot().Err)
}

func TestSubmit_SupersedesOutstandingRequest(t *testing.T) {
	tr := newFakeTransport()
	tr.ignoreCancel = true
	m := newManager(tr)

	m.ChangeInput("first")
	p1, _ := m.Submit()
	c1 := tr.next(t)

	m.ChangeInput("second")
	p2, ok := m.Submit()
	require.True(t, ok)
	c2 := tr.next(t)

	require.ErrorIs(t, c1.ctx.Err(), context.Canceled)
	require.Equal(t, OutcomeSuperseded, p1.Outcome())
	require.True(t, m.Snapshot().Loading)

	// The first round trip completes after the second one started.
	c1.reply <- reply{text: "late answer"}
	wait(t, p1)

	s := m.Snapshot()
	require.Equal(t, []string{"assistant:" + greeting, "user:first", "user:second"}, contents(s.Messages))
	require.True(t, s.Loading)
	require.Empty(t, s.Err)

	c2.reply <- reply{text: "second answer"}
	wait(t, p2)

	s = m.Snapshot()
	require.Equal(t, []string{"assistant:" + greeting, "user:first", "user:second", "assistant:second answer"}, contents(s.Messages))
	require.False(t, s.Loading)
	require.Equal(t, OutcomeSuperseded, p1.Outcome())
	require.Equal(t, OutcomeSucceeded, p2.Outcome())
}

func TestSubmit_StaleFailureIsIgnored(t *testing.T) {
	tr := newFakeTransport()
	tr.ignoreCancel = true
	m := newManager(tr)

	m.ChangeInput("first")
	p1, _ := m.Submit()
	c1 := tr.next(t)

	m.ChangeInput("second")
	_, _ = m.Submit()
	tr.next(t)

	c1.reply <- reply{err: errors.New("stale failure")}
	wait(t, p1)

	s := m.Snapshot()
	require.Empty(t, s.Err)
	require.True(t, s.Loading)
}

func TestCancel(t *testing.T) {
	tr := newFakeTransport()
	m := newManager(tr)

	m.ChangeInput("hello")
	p, _ := m.Submit()
	c := tr.next(t)

	m.Cancel()

	s := m.Snapshot()
	require.False(t, s.Loading)
	require.ErrorIs(t, c.ctx.Err(), context.Canceled)

	wait(t, p)
	s = m.Snapshot()
	require.Equal(t, OutcomeCancelled, p.Outcome())
	require.Empty(t, s.Err, "cancellation is never shown as an error")
	require.Equal(t, []string{"assistant:" + greeting, "user:hello"}, contents(s.Messages))

	// Idempotent.
	m.Cancel()
	require.Equal(t, s, m.Snapshot())
}

func TestCancel_WithoutActiveRequest(t *testing.T) {
	m := newManager(newFakeTransport())

	var notified int
	m.OnChange(func() { notified++ })

	m.Cancel()
	require.Zero(t, notified)
	require.False(t, m.Snapshot().Loading)
}

func TestReset(t *testing.T) {
	tr := newFakeTransport()
	m := newManager(tr)

	m.ChangeInput("one")
	p1, _ := m.Submit()
	tr.next(t).reply <- reply{err: errors.New("boom")}
	wait(t, p1)

	m.ChangeInput("two")
	p2, _ := m.Submit()
	c2 := tr.next(t)

	m.ChangeInput("half typed")
	m.Reset()

	s := m.Snapshot()
	require.Equal(t, []string{"assistant:" + resetGreeting}, contents(s.Messages))
	require.Empty(t, s.Err)
	require.False(t, s.Loading)
	require.Equal(t, "half typed", s.Draft)
	require.ErrorIs(t, c2.ctx.Err(), context.Canceled)

	wait(t, p2)
	require.Equal(t, OutcomeCancelled, p2.Outcome())
	require.Equal(t, s, m.Snapshot())
}

func TestReset_DefaultsToGreeting(t *testing.T) {
	m := New(newFakeTransport(), Options{Greeting: greeting})

	m.Reset()
	require.Equal(t, []string{"assistant:" + greeting}, contents(m.Snapshot().Messages))
}

func TestReset_WithoutGreetings(t *testing.T) {
	tr := newFakeTransport()
	m := New(tr, Options{})
	require.Empty(t, m.Snapshot().Messages)

	m.ChangeInput("hello")
	p, _ := m.Submit()
	tr.next(t).reply <- reply{text: "hi"}
	wait(t, p)

	m.Reset()
	require.Empty(t, m.Snapshot().Messages, "no empty assistant message after reset")
}

func TestMessageIDsAreUnique(t *testing.T) {
	tr := newFakeTransport()
	frozen := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := New(tr, Options{Greeting: greeting, Now: func() time.Time { return frozen }})

	for _, msg := range []string{"a", "b", "c"} {
		m.ChangeInput(msg)
		p, _ := m.Submit()
		tr.next(t).reply <- reply{text: "re: " + msg}
		wait(t, p)
	}
	m.Reset()
	m.ChangeInput("d")
	m.Submit()
	defer m.Cancel()

	seen := map[uint64]bool{}
	var last uint64
	for _, msg := range m.Snapshot().Messages {
		require.False(t, seen[msg.ID], "duplicate id %d", msg.ID)
		require.Greater(t, msg.ID, last)
		require.Equal(t, frozen, msg.Timestamp)
		seen[msg.ID] = true
		last = msg.ID
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	m := newManager(newFakeTransport())

	s := m.Snapshot()
	s.Messages[0].Content = "tampered"
	s.Messages = append(s.Messages, Message{Content: "extra"})

	require.Equal(t, []string{"assistant:" + greeting}, contents(m.Snapshot().Messages))
}

func TestOnChange_LoadingTracksActiveRequest(t *testing.T) {
	tr := newFakeTransport()
	m := newManager(tr)

	var mu sync.Mutex
	var loading []bool
	m.OnChange(func() {
		s := m.Snapshot()
		mu.Lock()
		loading = append(loading, s.Loading)
		mu.Unlock()
	})

	m.ChangeInput("hello")
	p, _ := m.Submit()
	tr.next(t).reply <- reply{text: "hi"}
	wait(t, p)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []bool{false, true, false}, loading)
}

type echoCompleter struct{}

func (echoCompleter) Complete(_ context.Context, message string) (string, error) {
	return "You said: " + message, nil
}

func TestRoundTripThroughProxy(t *testing.T) {
	logger := zap.NewNop()
	mtr := metrics.New()
	srv := httptest.NewServer(router.New(handlers.NewChatHandler(echoCompleter{}, mtr, logger), mtr, logger, "*"))
	t.Cleanup(srv.Close)

	m := New(client.New(client.Config{BaseURL: srv.URL, Timeout: waitTimeout}), Options{Greeting: greeting})

	m.ChangeInput("  ping ")
	p, ok := m.Submit()
	require.True(t, ok)
	wait(t, p)

	s := m.Snapshot()
	require.Equal(t, OutcomeSucceeded, p.Outcome())
	require.Empty(t, s.Err)
	require.Equal(t, []string{"assistant:" + greeting, "user:ping", "assistant:You said: ping"}, contents(s.Messages))
}

func TestRoundTripThroughProxy_ServerError(t *testing.T) {
	logger := zap.NewNop()
	mtr := metrics.New()
	srv := httptest.NewServer(router.New(handlers.NewChatHandler(failingCompleter{}, mtr, logger), mtr, logger, "*"))
	t.Cleanup(srv.Close)

	m := New(client.New(client.Config{BaseURL: srv.URL}), Options{Greeting: greeting})

	m.ChangeInput("ping")
	p, _ := m.Submit()
	wait(t, p)

	s := m.Snapshot()
	require.Equal(t, "Failed to process request", s.Err)
	require.Len(t, s.Messages, 2)
	require.False(t, strings.Contains(s.Err, "Unexpected response"))
}

type failingCompleter struct{}

func (failingCompleter) Complete(context.Context, string) (string, error) {
	return "", errors.New("Gemini API error: quota exceeded")
}
