package speech

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/parleychat/parley/internal/events"
	"github.com/parleychat/parley/internal/manager"
)

// Handler bridges the browser speech engines to the session manager over a
// websocket. Recognition and synthesis run client-side; this side treats a
// recognized utterance as a manual send and relays speak/stop events back.
type Handler struct {
	mgr      *manager.Manager
	hub      *events.Hub
	upgrader websocket.Upgrader
}

func New(mgr *manager.Manager, hub *events.Hub) *Handler {
	return &Handler{
		mgr: mgr,
		hub: hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes mounts the websocket route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/speech/ws", h.handleWebSocket)
}

type inboundFrame struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	Err  string `json:"error,omitempty"`
}

type outboundFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Text      string `json:"text,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// connState tracks whether the client is capturing speech input; speak
// frames are withheld while the input surface is occupied.
type connState struct {
	mu        sync.Mutex
	capturing bool
}

func (s *connState) setCapturing(v bool) {
	s.mu.Lock()
	s.capturing = v
	s.mu.Unlock()
}

func (s *connState) isCapturing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capturing
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[speech] websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	state := &connState{}

	ch, cancel := h.hub.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go h.writeLoop(conn, state, ch, done)

	h.readLoop(r, conn, state)
	close(done)
}

// readLoop consumes recognition results from the client.
func (h *Handler) readLoop(r *http.Request, conn *websocket.Conn, state *connState) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[speech] websocket read error: %v", err)
			}
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			log.Printf("[speech] dropping malformed frame: %v", err)
			continue
		}

		switch frame.Type {
		case "capture-start":
			state.setCapturing(true)
		case "capture-end":
			state.setCapturing(false)
		case "utterance":
			state.setCapturing(false)
			if err := h.mgr.SendMessage(r.Context(), frame.Text); err != nil {
				log.Printf("[speech] utterance rejected: %v", err)
			}
		case "speech-error", "no-speech":
			state.setCapturing(false)
			log.Printf("[speech] recognition reported %s: %s", frame.Type, frame.Err)
		default:
			log.Printf("[speech] unknown frame type %q", frame.Type)
		}
	}
}

// writeLoop relays speak/stop events to the client.
func (h *Handler) writeLoop(conn *websocket.Conn, state *connState, ch <-chan events.Event, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case ev := <-ch:
			var frame outboundFrame
			switch ev.Type {
			case events.TypeSpeak:
				if state.isCapturing() {
					continue
				}
				frame = outboundFrame{Type: "speak", SessionID: ev.SessionID, Text: ev.Text}
			case events.TypeStopSpeaking:
				frame = outboundFrame{Type: "stop-speaking"}
			default:
				continue
			}
			frame.Timestamp = time.Now().UnixMilli()

			if err := conn.WriteJSON(frame); err != nil {
				log.Printf("[speech] websocket write error: %v", err)
				return
			}
		}
	}
}
