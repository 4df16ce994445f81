// Package conversation holds the client-side chat state: the message log,
// the draft input, and at most one in-flight request to the proxy.
package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrEmptyReply is surfaced when the transport succeeds with no text.
var ErrEmptyReply = errors.New("The response was empty")

// Transport sends one user message to the completion proxy and returns the
// assistant's reply. It must abort promptly when ctx is cancelled.
type Transport interface {
	Send(ctx context.Context, message string) (string, error)
}

type Options struct {
	// Greeting seeds a new conversation; ResetGreeting replaces the log on Reset.
	Greeting      string
	ResetGreeting string

	Logger *zap.Logger
	Now    func() time.Time
}

// Pending is the handle for one submission.
type Pending struct {
	m       *Manager
	cancel  context.CancelFunc
	done    chan struct{}
	outcome Outcome // guarded by m.mu
}

// Done is closed once the transport call has returned and its result has been
// applied or discarded.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

func (p *Pending) Outcome() Outcome {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	return p.outcome
}

// Manager is safe for concurrent use. All mutations happen under mu; the
// transport call is the only work done outside it.
type Manager struct {
	transport Transport
	opts      Options
	logger    *zap.Logger

	mu       sync.Mutex
	messages []Message
	draft    string
	err      string
	active   *Pending
	nextID   uint64
	onChange func()
}

func New(transport Transport, opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ResetGreeting == "" {
		opts.ResetGreeting = opts.Greeting
	}

	m := &Manager{
		transport: transport,
		opts:      opts,
		logger:    opts.Logger,
	}
	if opts.Greeting != "" {
		m.appendLocked(RoleAssistant, opts.Greeting)
	}
	return m
}

// OnChange registers fn to be called after every state change. fn runs
// outside the manager's lock and may call Snapshot.
func (m *Manager) OnChange(fn func()) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return State{
		Messages: append([]Message(nil), m.messages...),
		Draft:    m.draft,
		Loading:  m.active != nil,
		Err:      m.err,
	}
}

func (m *Manager) ChangeInput(text string) {
	m.mu.Lock()
	m.draft = text
	m.mu.Unlock()
	m.notify()
}

// Submit sends the trimmed draft. A blank draft is ignored and returns false.
// A request that is still outstanding is cancelled and replaced; its result,
// whenever it arrives, is dropped.
func (m *Manager) Submit() (*Pending, bool) {
	m.mu.Lock()
	content := strings.TrimSpace(m.draft)
	if content == "" {
		m.mu.Unlock()
		return nil, false
	}

	if m.cancelLocked(OutcomeSuperseded) {
		m.logger.Debug("superseded in-flight request")
	}

	m.appendLocked(RoleUser, content)
	m.draft = ""
	m.err = ""

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pending{
		m:       m,
		cancel:  cancel,
		done:    make(chan struct{}),
		outcome: OutcomePending,
	}
	m.active = p
	m.mu.Unlock()

	m.notify()
	go m.run(ctx, p, content)
	return p, true
}

// Cancel aborts the in-flight request, if any. Calling it again is a no-op.
func (m *Manager) Cancel() {
	m.mu.Lock()
	cancelled := m.cancelLocked(OutcomeCancelled)
	m.mu.Unlock()

	if cancelled {
		m.logger.Debug("request cancelled")
		m.notify()
	}
}

// Reset cancels any in-flight request, clears the error and starts over with
// a single greeting, or an empty log when none is configured. The draft is kept.
func (m *Manager) Reset() {
	m.mu.Lock()
	m.cancelLocked(OutcomeCancelled)
	m.err = ""
	m.messages = nil
	if m.opts.ResetGreeting != "" {
		m.appendLocked(RoleAssistant, m.opts.ResetGreeting)
	}
	m.mu.Unlock()

	m.notify()
}

func (m *Manager) run(ctx context.Context, p *Pending, content string) {
	text, err := m.transport.Send(ctx, content)
	m.settle(p, text, err)
}

func (m *Manager) settle(p *Pending, text string, err error) {
	defer close(p.done)

	m.mu.Lock()
	if m.active != p {
		// Cancelled, superseded or reset while in flight.
		outcome := p.outcome
		m.mu.Unlock()
		m.logger.Debug("discarded settled request", zap.Stringer("outcome", outcome))
		return
	}

	m.active = nil
	p.cancel()

	switch {
	case err != nil:
		m.err = err.Error()
		p.outcome = OutcomeFailed
	case text == "":
		m.err = ErrEmptyReply.Error()
		p.outcome = OutcomeFailed
	default:
		m.appendLocked(RoleAssistant, text)
		p.outcome = OutcomeSucceeded
	}
	errText := m.err
	m.mu.Unlock()

	if p.outcome == OutcomeFailed {
		m.logger.Warn("chat request failed", zap.String("error", errText))
	}
	m.notify()
}

// cancelLocked releases the active handle. Caller holds mu.
func (m *Manager) cancelLocked(outcome Outcome) bool {
	p := m.active
	if p == nil {
		return false
	}
	m.active = nil
	p.outcome = outcome
	p.cancel()
	return true
}

func (m *Manager) appendLocked(role Role, content string) {
	m.nextID++
	m.messages = append(m.messages, Message{
		ID:        m.nextID,
		Role:      role,
		Content:   content,
		Timestamp: m.opts.Now(),
	})
}

func (m *Manager) notify() {
	m.mu.Lock()
	fn := m.onChange
	m.mu.Unlock()
	if fn != nil {
		fn()
	}
}
