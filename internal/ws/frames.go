package ws

import (
	"chatrelay/internal/chat"
	"time"
)

// Envelope is the outer shape every inbound frame must have.
type Envelope struct {
	Type string `json:"type"`
}

// ──────────────────────────── Inbound frames ────────────────────────────────

// Frame is the closed set of client → server frames. Each variant routes
// itself to the matching frameHandler method, so a new variant does not
// compile until the handler set grows with it.
type Frame interface {
	dispatch(h frameHandler, s *chat.Session)
}

type frameHandler interface {
	setUsername(s *chat.Session, f SetUsernameFrame)
	message(s *chat.Session, f MessageFrame)
	typing(s *chat.Session, f TypingFrame)
	ping(s *chat.Session, f PingFrame)
}

type SetUsernameFrame struct {
	Username string `json:"username"`
}

type MessageFrame struct {
	Message string `json:"message"`
}

type TypingFrame struct {
	IsTyping bool `json:"isTyping"`
}

type PingFrame struct{}

func (f SetUsernameFrame) dispatch(h frameHandler, s *chat.Session) { h.setUsername(s, f) }
func (f PingFrame) dispatch(h frameHandler, s *chat.Session)        { h.ping(s, f) }

// Chat and typing frames from an unnamed session are dropped without reply.
func (f MessageFrame) dispatch(h frameHandler, s *chat.Session) {
	if s.State() == chat.Named {
		h.message(s, f)
	}
}

func (f TypingFrame) dispatch(h frameHandler, s *chat.Session) {
	if s.State() == chat.Named {
		h.typing(s, f)
	}
}

// ──────────────────────────── Outbound frames ───────────────────────────────

const (
	typeSystem       = "system"
	typeHistory      = "history"
	typeUsernameSet  = "usernameSet"
	typeNotification = "notification"
	typeMessage      = "message"
	typeTyping       = "typing"
	typeUserList     = "userList"
	typeError        = "error"
	typePong         = "pong"
)

type noticeFrame struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type historyFrame struct {
	Type     string         `json:"type"`
	Messages []chat.Message `json:"messages"`
}

type usernameSetFrame struct {
	Type     string `json:"type"`
	Username string `json:"username"`
}

type chatFrame struct {
	Type string `json:"type"`
	chat.Message
}

type typingOutFrame struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}

type userListFrame struct {
	Type  string        `json:"type"`
	Users []chat.Member `json:"users"`
	Count int           `json:"count"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type pongFrame struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}
