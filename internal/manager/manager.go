package manager

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"

	"github.com/parleychat/parley/internal/events"
	"github.com/parleychat/parley/internal/flight"
	"github.com/parleychat/parley/internal/generation"
	"github.com/parleychat/parley/internal/model/chat"
	"github.com/parleychat/parley/internal/session"
	"github.com/parleychat/parley/internal/speech"
)

var (
	ErrEmptyMessage     = errors.New("message text is empty")
	ErrTemperatureRange = errors.New("temperature must be between 0.0 and 1.0")
	ErrNoActiveSession  = errors.New("no active session")
	ErrRequestInFlight  = flight.ErrRequestInFlight
)

// InterruptNotice is appended to the target session when the user cancels a
// request explicitly. Implicit cancellation appends nothing.
const InterruptNotice = "request interrupted by user"

// Manager is the single source of truth the HTTP and voice surfaces observe
// and drive. It composes the session repository, the single-flight request
// controller, the generation client and the speech output collaborator.
type Manager struct {
	repo    *session.Repository
	flights *flight.Controller
	gen     generation.Generator
	speaker speech.Speaker
	hub     *events.Hub

	mu          sync.Mutex
	temperature float32
}

func New(repo *session.Repository, ctl *flight.Controller, gen generation.Generator, speaker speech.Speaker, hub *events.Hub, temperature float32) *Manager {
	return &Manager{
		repo:        repo,
		flights:     ctl,
		gen:         gen,
		speaker:     speaker,
		hub:         hub,
		temperature: temperature,
	}
}

// NewChat silently aborts any in-flight request, silences speech output and
// starts a fresh session.
func (m *Manager) NewChat(ctx context.Context) (chat.Session, error) {
	m.flights.Invalidate()
	m.speaker.Stop()

	sess, err := m.repo.Create(ctx)
	if err != nil {
		return chat.Session{}, err
	}
	m.hub.Publish(events.Event{Type: events.TypeSessionChanged, SessionID: sess.ID})
	return sess, nil
}

// SwitchTo makes the named session active and returns its message log.
// Switching away from a session with a request in flight aborts that request
// implicitly, so a stale response can never land in the wrong thread. An
// unknown id leaves everything unchanged.
func (m *Manager) SwitchTo(ctx context.Context, id string) ([]chat.Message, bool, error) {
	if id == m.repo.ActiveID() {
		msgs, ok := m.repo.Messages(id)
		return msgs, ok, nil
	}
	if _, ok := m.repo.Messages(id); !ok {
		return nil, false, nil
	}

	m.flights.Invalidate()
	m.speaker.Stop()

	msgs, ok, err := m.repo.SwitchTo(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if ok {
		m.hub.Publish(events.Event{Type: events.TypeSessionChanged, SessionID: id})
	}
	return msgs, ok, nil
}

// Delete removes the session. Removing the active session behaves like
// NewChat: the in-flight request is aborted silently and a fresh session
// takes its place.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if id == m.repo.ActiveID() {
		m.flights.Invalidate()
		m.speaker.Stop()
	}

	if err := m.repo.Delete(ctx, id); err != nil {
		return err
	}
	m.hub.Publish(events.Event{Type: events.TypeSessionChanged, SessionID: m.repo.ActiveID()})
	return nil
}

// SendMessage validates the input, claims the single-flight slot, appends
// the user message optimistically and launches the generation call against
// the history snapshot taken before that append. The snapshot plus the new
// message is what the service sees, never a live re-read of the log.
func (m *Manager) SendMessage(ctx context.Context, text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ErrEmptyMessage
	}
	if _, disabled := m.gen.(generation.Disabled); disabled {
		return generation.ErrNotConfigured
	}

	active, ok := m.repo.Active()
	if !ok {
		return ErrNoActiveSession
	}

	f, err := m.flights.Begin(active.ID, active.Messages)
	if err != nil {
		return err
	}

	if err := m.repo.AppendUser(ctx, active.ID, trimmed); err != nil {
		m.flights.Finish(f)
		return err
	}
	m.hub.Publish(events.Event{
		Type:      events.TypeMessage,
		SessionID: active.ID,
		Sender:    chat.SenderUser,
		Text:      trimmed,
	})

	go m.await(f, trimmed, m.Temperature())
	return nil
}

// Cancel aborts the in-flight request as an explicit user action; the
// interruption notice is appended when the call unwinds. Cancelling while
// idle is a no-op.
func (m *Manager) Cancel() {
	if m.flights.Cancel() {
		log.Printf("[manager] request cancelled by user")
	}
}

// SetTemperature adjusts the sampling temperature for subsequent requests.
func (m *Manager) SetTemperature(t float32) error {
	if t < 0 || t > 1 {
		return ErrTemperatureRange
	}
	m.mu.Lock()
	m.temperature = t
	m.mu.Unlock()
	return nil
}

// Temperature returns the current sampling temperature.
func (m *Manager) Temperature() float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.temperature
}

// Sessions lists all sessions in creation order.
func (m *Manager) Sessions() []chat.Session { return m.repo.List() }

// Active returns the active session.
func (m *Manager) Active() (chat.Session, bool) { return m.repo.Active() }

// ActiveID returns the active session id.
func (m *Manager) ActiveID() string { return m.repo.ActiveID() }

// Messages returns the named session's log.
func (m *Manager) Messages(id string) ([]chat.Message, bool) { return m.repo.Messages(id) }

// InFlight reports whether a generation request is in progress.
func (m *Manager) InFlight() bool { return m.flights.InFlight() }

// await runs the outbound call and routes its single terminal outcome.
func (m *Manager) await(f *flight.Flight, prompt string, temperature float32) {
	reply, err := m.gen.Generate(f.Context(), f.History(), prompt, temperature)
	m.complete(f, reply, err)
}

func (m *Manager) complete(f *flight.Flight, reply string, err error) {
	defer m.flights.Finish(f)

	ctx := context.Background()
	switch f.Resolve(err) {
	case flight.OutcomeCancelled:
		if f.UserCancelled() {
			m.deliver(ctx, f.SessionID(), InterruptNotice, false)
		}
	case flight.OutcomeFailed:
		log.Printf("[manager] request failed for session=%s: %v", f.SessionID(), err)
		m.deliver(ctx, f.SessionID(), generation.FailureMessage(err), false)
	case flight.OutcomeDelivered:
		m.deliver(ctx, f.SessionID(), reply, true)
	}
}

// deliver routes a response through the repository's target-session guard.
func (m *Manager) deliver(ctx context.Context, sessionID, text string, speak bool) {
	msg := chat.Message{Text: text, Sender: chat.SenderAssistant}
	delivered, err := m.repo.Deliver(ctx, sessionID, msg)
	if err != nil {
		log.Printf("[manager] failed to persist response for session=%s: %v", sessionID, err)
		return
	}
	if !delivered {
		log.Printf("[manager] dropped stale response for session=%s", sessionID)
		return
	}

	m.hub.Publish(events.Event{
		Type:      events.TypeMessage,
		SessionID: sessionID,
		Sender:    chat.SenderAssistant,
		Text:      text,
	})
	if speak {
		m.speaker.Speak(sessionID, text)
	}
}
