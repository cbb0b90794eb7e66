package ws

import (
	"chatrelay/internal/chat"
	"encoding/json"

	"go.uber.org/zap"
)

const welcomeText = "Welcome to the chat! Please set your username."

var _ frameHandler = (*Hub)(nil)

// Everything in this file runs on the hub loop goroutine.

func (h *Hub) accept(s *chat.Session) {
	h.registry.Add(s)
	zap.L().Info("hub.accept",
		zap.String("session_id", s.ID),
		zap.String("remote_addr", s.RemoteAddr),
		zap.Int("connections", h.registry.Len()),
	)
	h.recordSession(chat.SessionOpened, s)

	h.sendTo(s, noticeFrame{Type: typeSystem, Message: welcomeText, Timestamp: h.clock()})
	if recent := h.history.Recent(h.replay); len(recent) > 0 {
		h.sendTo(s, historyFrame{Type: typeHistory, Messages: recent})
	}
}

func (h *Hub) receive(sessionID string, data []byte) {
	s, ok := h.registry.Get(sessionID)
	if !ok {
		return // already gone
	}
	s.Touch(h.clock())

	frame, err := h.router.Decode(data)
	if err != nil {
		zap.L().Debug("hub.bad_frame", zap.String("session_id", s.ID), zap.Error(err))
		h.replyError(s, err)
		return
	}
	frame.dispatch(h, s)
}

func (h *Hub) setUsername(s *chat.Session, f SetUsernameFrame) {
	name, err := h.registry.ClaimName(s, f.Username)
	if err != nil {
		h.replyError(s, err)
		return
	}
	zap.L().Info("hub.username_set", zap.String("session_id", s.ID), zap.String("username", name))
	h.recordSession(chat.SessionNamed, s)

	h.sendTo(s, usernameSetFrame{Type: typeUsernameSet, Username: name})
	h.broadcast(noticeFrame{
		Type:      typeNotification,
		Message:   name + " joined the chat",
		Timestamp: h.clock(),
	}, s.ID)
	h.broadcastPresence()
}

// The sender receives its own message through the broadcast.
func (h *Hub) message(s *chat.Session, f MessageFrame) {
	body, err := chat.NormalizeBody(f.Message)
	if err != nil {
		h.replyError(s, err)
		return
	}
	msg := chat.NewMessage(s.Name(), body, h.clock())
	if h.history.Append(msg) {
		zap.L().Debug("hub.history_evicted", zap.Int("capacity", h.history.Cap()))
	}
	h.broadcast(chatFrame{Type: typeMessage, Message: msg}, "")
}

func (h *Hub) typing(s *chat.Session, f TypingFrame) {
	h.broadcast(typingOutFrame{Type: typeTyping, Username: s.Name(), IsTyping: f.IsTyping}, s.ID)
}

func (h *Hub) ping(s *chat.Session, _ PingFrame) {
	h.sendTo(s, pongFrame{Type: typePong, Timestamp: h.clock()})
}

func (h *Hub) disconnect(sessionID string) {
	s, ok := h.registry.Remove(sessionID)
	if !ok {
		return
	}
	s.Conn.Close()
	zap.L().Info("hub.leave",
		zap.String("session_id", s.ID),
		zap.String("username", s.Name()),
		zap.Int("connections", h.registry.Len()),
	)
	h.recordSession(chat.SessionClosed, s)

	if s.State() == chat.Named {
		h.broadcast(noticeFrame{
			Type:      typeNotification,
			Message:   s.Name() + " left the chat",
			Timestamp: h.clock(),
		}, "")
		h.broadcastPresence()
	}
}

// sweep drops sessions whose connection died without a leave event reaching
// the loop.
func (h *Hub) sweep() {
	removed := 0
	for _, s := range h.registry.All() {
		if !s.Conn.Open() {
			h.disconnect(s.ID)
			removed++
		}
	}
	if removed > 0 {
		zap.L().Info("hub.sweep", zap.Int("removed", removed), zap.Int("connections", h.registry.Len()))
	}
}

func (h *Hub) shutdown() {
	sessions := h.registry.All()
	for _, s := range sessions {
		s.Conn.Close()
	}
	zap.L().Info("hub.shutdown", zap.Int("closed", len(sessions)))
}

// ─────────────────────────────── delivery ────────────────────────────────────

func (h *Hub) replyError(s *chat.Session, err error) {
	h.sendTo(s, errorFrame{Type: typeError, Message: publicError(err)})
}

func (h *Hub) sendTo(s *chat.Session, frame any) {
	data, err := json.Marshal(frame)
	if err != nil {
		zap.L().Error("hub.marshal", zap.Error(err))
		return
	}
	h.deliver(s, data)
}

// broadcast sends frame to every session except the one with id except
// (pass "" to include everyone).
func (h *Hub) broadcast(frame any, except string) {
	data, err := json.Marshal(frame)
	if err != nil {
		zap.L().Error("hub.marshal", zap.Error(err))
		return
	}
	for _, s := range h.registry.All() {
		if s.ID == except {
			continue
		}
		h.deliver(s, data)
	}
}

// deliver never blocks. A connection that cannot take the frame is closed;
// its read pump then reports the leave.
func (h *Hub) deliver(s *chat.Session, data []byte) {
	if s.Conn.Send(data) {
		return
	}
	zap.L().Warn("hub.send_skipped", zap.String("session_id", s.ID))
	s.Conn.Close()
}

func (h *Hub) recordSession(kind chat.SessionEventKind, s *chat.Session) {
	if h.sessions == nil {
		return
	}
	h.sessions.RecordSession(chat.SessionEvent{
		Kind:       kind,
		SessionID:  s.ID,
		Username:   s.Name(),
		RemoteAddr: s.RemoteAddr,
		At:         h.clock(),
	})
}
