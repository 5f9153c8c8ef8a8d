package bus

import (
	"time"

	"github.com/google/uuid"
)

// Broadcast is the receiver address that reaches every subscriber except the sender.
const Broadcast = "all"

// Kind tags a message. It is an open set; the constants below are the ones the
// built-in components produce.
type Kind string

const (
	KindInfo     Kind = "info"
	KindRequest  Kind = "request"
	KindResponse Kind = "response"
	KindError    Kind = "error"

	KindResearchRequest  Kind = "research_request"
	KindResearchComplete Kind = "research_complete"
	KindAnalysisComplete Kind = "analysis_complete"

	KindStatement  Kind = "statement"
	KindGuidance   Kind = "guidance"
	KindConclusion Kind = "conclusion"
)

// Message is an immutable envelope routed by the bus. Content is opaque to the bus.
type Message struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Receiver  string    `json:"receiver"`
	Content   any       `json:"content"`
	Kind      Kind      `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage builds a message with a fresh ID and the current time.
func NewMessage(sender, receiver string, content any, kind Kind) Message {
	if kind == "" {
		kind = KindInfo
	}
	return Message{
		ID:        uuid.NewString(),
		Sender:    sender,
		Receiver:  receiver,
		Content:   content,
		Kind:      kind,
		Timestamp: time.Now(),
	}
}

// IsBroadcast reports whether the message is addressed to every subscriber.
func (m Message) IsBroadcast() bool {
	return m.Receiver == Broadcast
}

// Text returns Content when it is a string and "" otherwise.
func (m Message) Text() string {
	s, _ := m.Content.(string)
	return s
}
