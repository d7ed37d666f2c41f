package chat

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Message is a single turn in a session log. Immutable once appended;
// ordering is append order.
type Message struct {
	Text   string `json:"text"`
	Sender Sender `json:"sender"`
}
