package http_server

import (
	"chatrelay/internal/http/statushandler"
	"chatrelay/internal/ws"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/abrar71/swaggerfilesv2" // swagger embed files
)

type httpServer struct {
	listenPort uint16
	srv        *http.Server
	ln         net.Listener
	state      statushandler.StateReader
	wsSrv      *ws.WsServer
	ctx        context.Context

	shutdownTimeout time.Duration
}

func NewHttpServer(ctx context.Context, listenPort uint16, wsSrv *ws.WsServer, state statushandler.StateReader) *httpServer {
	h := &httpServer{
		listenPort: listenPort,
		wsSrv:      wsSrv,
		state:      state,
		ctx:        ctx,

		shutdownTimeout: 10 * time.Second,
	}
	h.srv = &http.Server{
		Handler:           h.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return h.ctx },
	}
	return h
}

// Routes builds the gin engine with every route mounted.
func (h *httpServer) Routes() *gin.Engine {
	routerEngine := gin.New()

	// Swagger UI and API specs
	routerEngine.StaticFS("/swagger-apis", http.FS(swaggerfilesv2.FS))
	routerEngine.Static("/api-specs", "api_specs")

	// Static files for the web UI
	routerEngine.StaticFile("/", "public/index.html")
	routerEngine.StaticFile("/script.js", "public/script.js")

	routerEngine.Use(ginzap.Ginzap(zap.L(), time.RFC3339, true))
	routerEngine.Use(ginzap.RecoveryWithZap(zap.L(), true))

	// websocket endpoint
	routerEngine.GET("/ws", h.wsSrv.Handle)

	// REST API
	sh := statushandler.New(h.state)
	sh.Register(routerEngine)

	return routerEngine
}

// Start blocks serving until Dispose is called.
func (h *httpServer) Start() error {
	var err error
	listenAddr := fmt.Sprintf(":%d", h.listenPort)
	h.ln, err = net.Listen("tcp", listenAddr)
	if err != nil {
		return err
	}
	zap.L().Info("http_listen", zap.String("addr", listenAddr))

	if err := h.srv.Serve(h.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Dispose gracefully shuts the HTTP server down.
// It waits up to 10 s for in‑flight requests to finish.
func (h *httpServer) Dispose() error {
	// The root ctx is usually already cancelled here, so don't derive from it.
	ctx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
	defer cancel()

	err := h.srv.Shutdown(ctx)

	// If the context’s deadline expired, log it for observability.
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
		zap.L().Error("http_dispose",
			zap.Error(errors.New("shutdown timed out")),
			zap.Duration("timeout", h.shutdownTimeout),
		)
		return err
	}
	if err != nil {
		zap.L().Error("http_dispose", zap.Error(err))
		return err
	}
	return nil
}
