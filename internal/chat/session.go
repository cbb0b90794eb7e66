package chat

import "time"

// Conn is the transport half of a session. Send must not block: it reports
// false when the frame could not be queued.
type Conn interface {
	Send(frame []byte) bool
	Open() bool
	Close()
}

type SessionState int

const (
	Unnamed SessionState = iota
	Named
)

func (s SessionState) String() string {
	if s == Named {
		return "named"
	}
	return "unnamed"
}

// Session is the registry entry for one live connection.
type Session struct {
	ID             string
	Conn           Conn
	RemoteAddr     string
	JoinedAt       time.Time
	LastActivityAt time.Time

	name  string
	state SessionState
}

func NewSession(id string, conn Conn, remoteAddr string, at time.Time) *Session {
	at = at.UTC()
	return &Session{
		ID:             id,
		Conn:           conn,
		RemoteAddr:     remoteAddr,
		JoinedAt:       at,
		LastActivityAt: at,
	}
}

func (s *Session) Name() string        { return s.name }
func (s *Session) State() SessionState { return s.state }

func (s *Session) Touch(at time.Time) { s.LastActivityAt = at.UTC() }

func (s *Session) member() Member {
	return Member{Username: s.name, JoinTime: s.JoinedAt}
}

// Member is the public presence view of a named session.
type Member struct {
	Username string    `json:"username"`
	JoinTime time.Time `json:"joinTime"`
}

type SessionEventKind string

const (
	SessionOpened SessionEventKind = "opened"
	SessionNamed  SessionEventKind = "named"
	SessionClosed SessionEventKind = "closed"
)

// SessionEvent is a lifecycle record handed to audit sinks.
type SessionEvent struct {
	Kind       SessionEventKind
	SessionID  string
	Username   string
	RemoteAddr string
	At         time.Time
}

type Stats struct {
	Connections      int
	NamedUsers       int
	BufferedMessages int
	StartedAt        time.Time
	Uptime           time.Duration
}
