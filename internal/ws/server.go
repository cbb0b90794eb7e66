package ws

import (
	"chatrelay/internal/chat"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	DefaultSendBuffer    = 256
	DefaultMaxFrameBytes = 8192

	// MinSendBuffer holds the welcome and history frames queued on accept.
	MinSendBuffer = 2
)

type ServerOptions struct {
	AllowedOrigins []string
	SendBuffer     int
	MaxFrameBytes  int64
}

type WsServer struct {
	hub           *Hub
	upgrader      websocket.Upgrader
	sendBuffer    int
	maxFrameBytes int64
}

func NewWsServer(h *Hub, opts ServerOptions) *WsServer {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultSendBuffer
	} else if opts.SendBuffer < MinSendBuffer {
		opts.SendBuffer = MinSendBuffer
	}
	if opts.MaxFrameBytes <= 0 {
		opts.MaxFrameBytes = DefaultMaxFrameBytes
	}
	return &WsServer{
		hub: h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     newOriginChecker(opts.AllowedOrigins),
		},
		sendBuffer:    opts.SendBuffer,
		maxFrameBytes: opts.MaxFrameBytes,
	}
}

// ---------------------------------------------------------------------------
//  Public: Gin entry-point
// ---------------------------------------------------------------------------

func (s *WsServer) Handle(ginCtx *gin.Context) {
	rawConn, err := s.upgrader.Upgrade(ginCtx.Writer, ginCtx.Request, nil)
	if err != nil {
		zap.L().Warn("ws.accept", zap.Error(err))
		return // upgrader already wrote the HTTP error
	}

	c := newClient(uuid.NewString(), rawConn, s.hub, s.sendBuffer, s.maxFrameBytes)
	session := chat.NewSession(c.id, c, ginCtx.Request.RemoteAddr, time.Now())

	// The read pump starts only once the session is registered.
	go c.writePump()
	if err := s.hub.Join(ginCtx.Request.Context(), session); err != nil {
		zap.L().Warn("ws.join", zap.String("session_id", c.id), zap.Error(err))
		c.Close()
		return
	}
	go c.readPump()
}
