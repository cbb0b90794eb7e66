package chat

import (
	"time"

	"github.com/google/uuid"
)

// Message is an immutable chat line. Author is a snapshot of the sender's
// name, so it survives the sender disconnecting.
type Message struct {
	ID       string    `json:"id"`
	Username string    `json:"username"`
	Body     string    `json:"message"`
	SentAt   time.Time `json:"timestamp"`
}

func NewMessage(author, body string, at time.Time) Message {
	return Message{
		ID:       newMessageID(),
		Username: author,
		Body:     body,
		SentAt:   at.UTC(),
	}
}

// v7 ids sort by creation time; fall back to v4 if the clock source fails.
func newMessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
