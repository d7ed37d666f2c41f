package speech

import "github.com/parleychat/parley/internal/events"

// Speaker is the speech-output collaborator: it voices assistant replies
// and must be silenceable when the user enters another session or a new
// utterance begins.
type Speaker interface {
	Speak(sessionID, text string)
	Stop()
}

// EventSpeaker publishes speak/stop events for browser-side synthesis; the
// actual speech engine lives with the client.
type EventSpeaker struct {
	hub *events.Hub
}

func NewEventSpeaker(hub *events.Hub) *EventSpeaker {
	return &EventSpeaker{hub: hub}
}

func (s *EventSpeaker) Speak(sessionID, text string) {
	s.hub.Publish(events.Event{Type: events.TypeSpeak, SessionID: sessionID, Text: text})
}

func (s *EventSpeaker) Stop() {
	s.hub.Publish(events.Event{Type: events.TypeStopSpeaking})
}
