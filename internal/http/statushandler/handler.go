package statushandler

import (
	"chatrelay/internal/chat"
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const queryTimeout = 2 * time.Second

// StateReader is the read-only view of the hub used by these endpoints.
type StateReader interface {
	Stats(ctx context.Context) (chat.Stats, error)
	Users(ctx context.Context) ([]chat.Member, error)
}

type Handler struct {
	state StateReader
}

func New(state StateReader) *Handler { return &Handler{state: state} }

func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/health", h.health)
	r.GET("/api/status", h.status)
	r.GET("/api/users", h.users)
}

// @Summary		Liveness probe
// @Tags			Status
// @Success		200	{object}	HealthResponse
// @Router			/health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// @Summary		Relay status
// @Description	Connection, named-user and buffered-message counts plus process uptime.
// @Tags			Status
// @Success		200	{object}	StatusResponse
// @Failure		503	{object}	ErrorResponse
// @Router			/api/status [get]
func (h *Handler) status(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), queryTimeout)
	defer cancel()

	st, err := h.state.Stats(ctx)
	if err != nil {
		zap.L().Warn("status.stats", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, StatusResponse{
		Connections:      st.Connections,
		NamedUsers:       st.NamedUsers,
		BufferedMessages: st.BufferedMessages,
		UptimeSeconds:    st.Uptime.Seconds(),
		StartedAt:        st.StartedAt,
	})
}

// @Summary		Online users
// @Description	Named users ordered by join time.
// @Tags			Status
// @Success		200	{object}	UsersResponse
// @Failure		503	{object}	ErrorResponse
// @Router			/api/users [get]
func (h *Handler) users(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), queryTimeout)
	defer cancel()

	members, err := h.state.Users(ctx)
	if err != nil {
		zap.L().Warn("status.users", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
		return
	}
	if members == nil {
		members = []chat.Member{}
	}
	c.JSON(http.StatusOK, UsersResponse{Users: members, Count: len(members)})
}
