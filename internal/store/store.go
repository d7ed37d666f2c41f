package store

import (
	"context"

	"github.com/parleychat/parley/internal/model/chat"
)

// StateKey is the fixed key the full session collection is stored under.
const StateKey = "voice-chat-sessions"

// Store persists the session collection as a single serialized blob.
// Load never fails on malformed stored data; it degrades to an empty
// collection so a corrupt store can not take the application down.
type Store interface {
	Load(ctx context.Context) (chat.Collection, error)
	Save(ctx context.Context, col chat.Collection) error
}
