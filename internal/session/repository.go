package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/parleychat/parley/internal/model/chat"
	"github.com/parleychat/parley/internal/store"
)

var ErrSessionNotFound = errors.New("session not found")

// Repository owns the session collection. Every structural mutation writes
// the full collection back through the store before returning, so callers
// never observe a partially persisted state.
//
// Invariant: exactly one session is active whenever the collection is
// non-empty, and the collection is never left empty once the repository has
// been constructed.
type Repository struct {
	mu    sync.Mutex
	store store.Store
	col   chat.Collection
}

// NewRepository loads the persisted collection and synthesizes a fresh
// session when the store comes back empty or the active selection is stale.
func NewRepository(ctx context.Context, st store.Store) (*Repository, error) {
	col, err := st.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading session collection: %w", err)
	}

	r := &Repository{store: st, col: col}

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.col.Sessions) == 0 {
		if _, err := r.createLocked(ctx); err != nil {
			return nil, err
		}
		return r, nil
	}
	if r.indexLocked(r.col.ActiveID) < 0 {
		r.col.ActiveID = r.col.Sessions[0].ID
		if err := r.saveLocked(ctx); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Create appends a fresh session with the sentinel title, makes it active
// and persists the collection.
func (r *Repository) Create(ctx context.Context) (chat.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.createLocked(ctx)
}

func (r *Repository) createLocked(ctx context.Context) (chat.Session, error) {
	sess := chat.Session{
		ID:    uuid.NewString(),
		Title: chat.SentinelTitle,
	}
	r.col.Sessions = append(r.col.Sessions, sess)
	r.col.ActiveID = sess.ID
	if err := r.saveLocked(ctx); err != nil {
		return chat.Session{}, err
	}
	return sess, nil
}

// SwitchTo marks the named session active and returns its message log.
// Switching to the already-active session is a no-op; an unknown id leaves
// the collection unchanged and reports ok=false.
func (r *Repository) SwitchTo(ctx context.Context, id string) ([]chat.Message, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexLocked(id)
	if idx < 0 {
		return nil, false, nil
	}
	if r.col.ActiveID == id {
		return copyMessages(r.col.Sessions[idx].Messages), true, nil
	}

	r.col.ActiveID = id
	if err := r.saveLocked(ctx); err != nil {
		return nil, false, err
	}
	return copyMessages(r.col.Sessions[idx].Messages), true, nil
}

// Delete removes the session. Deleting the active (or last remaining)
// session synthesizes a fresh one so an active session always exists.
func (r *Repository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexLocked(id)
	if idx < 0 {
		return nil
	}

	wasActive := r.col.ActiveID == id
	r.col.Sessions = append(r.col.Sessions[:idx], r.col.Sessions[idx+1:]...)

	if len(r.col.Sessions) == 0 || wasActive {
		_, err := r.createLocked(ctx)
		return err
	}
	return r.saveLocked(ctx)
}

// AppendUser appends a user-authored message to the named session and
// derives the title on the session's first user message.
func (r *Repository) AppendUser(ctx context.Context, id, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexLocked(id)
	if idx < 0 {
		return ErrSessionNotFound
	}

	sess := &r.col.Sessions[idx]
	sess.Messages = append(sess.Messages, chat.Message{Text: text, Sender: chat.SenderUser})
	if sess.Title == chat.SentinelTitle {
		sess.Title = chat.DeriveTitle(text)
	}
	return r.saveLocked(ctx)
}

// Deliver appends a response message only when the target session still
// exists and is still the active one. Stale responses for a session the
// user has navigated away from are dropped, reported as delivered=false.
func (r *Repository) Deliver(ctx context.Context, id string, msg chat.Message) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexLocked(id)
	if idx < 0 || r.col.ActiveID != id {
		return false, nil
	}

	r.col.Sessions[idx].Messages = append(r.col.Sessions[idx].Messages, msg)
	if err := r.saveLocked(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// List returns a copy of all sessions in creation order.
func (r *Repository) List() []chat.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]chat.Session, len(r.col.Sessions))
	for i, s := range r.col.Sessions {
		out[i] = s
		out[i].Messages = copyMessages(s.Messages)
	}
	return out
}

// Active returns the active session, if any.
func (r *Repository) Active() (chat.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexLocked(r.col.ActiveID)
	if idx < 0 {
		return chat.Session{}, false
	}
	sess := r.col.Sessions[idx]
	sess.Messages = copyMessages(sess.Messages)
	return sess, true
}

// ActiveID returns the id of the active session.
func (r *Repository) ActiveID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.col.ActiveID
}

// Messages returns a copy of the named session's log.
func (r *Repository) Messages(id string) ([]chat.Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexLocked(id)
	if idx < 0 {
		return nil, false
	}
	return copyMessages(r.col.Sessions[idx].Messages), true
}

func (r *Repository) indexLocked(id string) int {
	for i, s := range r.col.Sessions {
		if s.ID == id {
			return i
		}
	}
	return -1
}

func (r *Repository) saveLocked(ctx context.Context) error {
	if err := r.store.Save(ctx, r.col); err != nil {
		return fmt.Errorf("persisting session collection: %w", err)
	}
	return nil
}

func copyMessages(msgs []chat.Message) []chat.Message {
	copied := make([]chat.Message, len(msgs))
	copy(copied, msgs)
	return copied
}
