package store

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/parleychat/parley/internal/model/chat"
)

// Memory is an in-process Store for tests and ephemeral runs. It keeps the
// serialized blob, not the live structs, so a Load round-trips through the
// same encoding as the SQLite store.
type Memory struct {
	mu   sync.Mutex
	blob []byte
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// Load decodes the last saved blob, degrading to an empty collection when
// nothing was saved or the blob is malformed.
func (m *Memory) Load(_ context.Context) (chat.Collection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.blob) == 0 {
		return chat.Collection{}, nil
	}

	var col chat.Collection
	if err := json.Unmarshal(m.blob, &col); err != nil {
		log.Printf("[store] discarding malformed state blob: %v", err)
		return chat.Collection{}, nil
	}
	return col, nil
}

// Save serializes the collection and retains it.
func (m *Memory) Save(_ context.Context, col chat.Collection) error {
	raw, err := json.Marshal(col)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.blob = raw
	m.mu.Unlock()
	return nil
}

// Seed replaces the stored blob with arbitrary bytes. Used to exercise the
// malformed-blob recovery path.
func (m *Memory) Seed(raw []byte) {
	m.mu.Lock()
	m.blob = raw
	m.mu.Unlock()
}
