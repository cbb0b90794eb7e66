package statushandler

import (
	"chatrelay/internal/chat"
	"time"
)

type StatusResponse struct {
	Connections      int       `json:"connections"      example:"3"`
	NamedUsers       int       `json:"namedUsers"       example:"2"`
	BufferedMessages int       `json:"bufferedMessages" example:"42"`
	UptimeSeconds    float64   `json:"uptimeSeconds"    example:"3600.5"`
	StartedAt        time.Time `json:"startedAt"        example:"2025-07-27T16:05:05Z"`
} // @name StatusResponse

type UsersResponse struct {
	Users []chat.Member `json:"users"`
	Count int           `json:"count" example:"2"`
} // @name UsersResponse

type HealthResponse struct {
	Status string `json:"status" example:"ok"`
} // @name HealthResponse

type ErrorResponse struct {
	Error string `json:"error"`
} // @name ErrorResponse
