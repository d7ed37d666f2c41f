package flight

import (
	"context"
	"errors"
	"sync"

	"github.com/parleychat/parley/internal/model/chat"
)

var ErrRequestInFlight = errors.New("a generation request is already in flight")

// Outcome is the terminal state of one generation request.
type Outcome int

const (
	OutcomeDelivered Outcome = iota
	OutcomeFailed
	OutcomeCancelled
)

// Flight is the request context for one outbound generation call: the
// cancellation handle, the target session fixed at send time, and the
// history snapshot taken before the user message was appended. At most one
// Flight is alive at a time.
type Flight struct {
	sessionID string
	history   []chat.Message
	ctx       context.Context
	cancel    context.CancelFunc

	mu            sync.Mutex
	userCancelled bool
}

// Context carries the abort signal for the outbound call.
func (f *Flight) Context() context.Context { return f.ctx }

// SessionID is the target session this request was issued on behalf of.
func (f *Flight) SessionID() string { return f.sessionID }

// History is the message log snapshotted at send time, before the triggering
// user message was appended.
func (f *Flight) History() []chat.Message { return f.history }

// UserCancelled reports whether the abort was an explicit user action rather
// than an implicit one (session switch, new chat).
func (f *Flight) UserCancelled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.userCancelled
}

// Resolve classifies the completion of the outbound call. Cancellation wins:
// once the flight's context is cancelled, a late transport error is treated
// as the abort that caused it, so only one terminal transition fires per
// request.
func (f *Flight) Resolve(err error) Outcome {
	if f.ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return OutcomeCancelled
	}
	if err != nil {
		return OutcomeFailed
	}
	return OutcomeDelivered
}

// Controller enforces the single-flight invariant: at most one outbound
// generation request in progress system-wide. The slot is claimed in one
// check-and-set step before any suspension occurs.
type Controller struct {
	mu      sync.Mutex
	current *Flight
}

func NewController() *Controller {
	return &Controller{}
}

// Begin claims the single-flight slot for the target session. It fails with
// ErrRequestInFlight while another request owns the slot.
func (c *Controller) Begin(sessionID string, history []chat.Message) (*Flight, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil {
		return nil, ErrRequestInFlight
	}

	ctx, cancel := context.WithCancel(context.Background())
	f := &Flight{
		sessionID: sessionID,
		history:   history,
		ctx:       ctx,
		cancel:    cancel,
	}
	c.current = f
	return f, nil
}

// Cancel aborts the in-flight request as an explicit user action. It is
// accepted in any state and idempotent; cancelling an idle controller is a
// no-op. Reports whether a request was actually aborted.
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	f := c.current
	c.mu.Unlock()

	if f == nil {
		return false
	}

	f.mu.Lock()
	f.userCancelled = true
	f.mu.Unlock()
	f.cancel()
	return true
}

// Invalidate aborts the in-flight request implicitly (session switch, new
// chat). No notice is owed for an implicit abort.
func (c *Controller) Invalidate() {
	c.mu.Lock()
	f := c.current
	c.mu.Unlock()

	if f != nil {
		f.cancel()
	}
}

// Finish releases the single-flight slot after a terminal outcome. Safe to
// call for a flight that was already superseded.
func (c *Controller) Finish(f *Flight) {
	f.cancel()

	c.mu.Lock()
	if c.current == f {
		c.current = nil
	}
	c.mu.Unlock()
}

// InFlight reports whether a request currently owns the slot.
func (c *Controller) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}
