package main

import (
	"chatrelay/internal/config"
	"chatrelay/internal/database/db_client"
	"chatrelay/internal/database/schema"
	"chatrelay/internal/http/http_server"
	"chatrelay/internal/redis/presencemirror"
	"chatrelay/internal/redis/redis_client"
	"chatrelay/internal/sessionlog"
	"chatrelay/internal/ws"
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

var (
	Log, _ = zap.NewDevelopment()
)

//	@title			chatrelay API
//	@version		1.0
//	@description	Read-only status endpoints of the WebSocket chat relay. The chat itself runs over GET /ws.
//	@BasePath		/
func main() {
	defer Log.Sync()
	zap.ReplaceGlobals(Log)

	// 1. Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		Log.Fatal("Failed to load configuration", zap.Error(err))
	}
	Log.Debug("Configuration loaded successfully", zap.Any("config", cfg))

	// 2. Context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	// Optional sinks stay nil interfaces when disabled.
	var presence ws.PresenceSink
	var sessions ws.SessionSink
	var background []<-chan struct{}

	// 3. Redis presence mirror
	if cfg.PresenceMirrorEnabled {
		redisClient, err := redis_client.NewRedisClient(cfg.RedisHost, int(cfg.RedisPort), cfg.RedisDB)
		if err != nil {
			Log.Fatal("Failed to create Redis client", zap.Error(err))
		}
		defer redisClient.Close()
		Log.Debug("Redis client created successfully")

		mirror := presencemirror.New(redisClient, cfg.RedisPresenceKey, cfg.RedisPresenceChannel)
		background = append(background, runBackground(ctx, mirror.Run))
		presence = mirror
	}

	// 4. Postgres session log
	if cfg.SessionLogEnabled {
		pgDb, err := db_client.Open(cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDb)
		if err != nil {
			Log.Fatal("pg-open", zap.Error(err))
		}
		defer pgDb.Close()

		if err := schema.Apply(ctx, pgDb); err != nil {
			Log.Fatal("pg-schema", zap.Error(err))
		}

		recorder := sessionlog.New(pgDb)
		background = append(background, runBackground(ctx, recorder.Run))
		sessions = recorder
	}

	// 5. Hub event loop
	hub := ws.NewHub(ws.Options{
		HistoryCapacity: cfg.HistoryCapacity,
		HistoryReplay:   cfg.HistoryReplay,
		SweepInterval:   cfg.SweepInterval,
		Presence:        presence,
		Sessions:        sessions,
	})
	go hub.Run(ctx)

	// 6. Initialize the WS server
	wsSrv := ws.NewWsServer(hub, ws.ServerOptions{
		AllowedOrigins: cfg.AllowedOrigins,
		SendBuffer:     cfg.ClientSendBuffer,
		MaxFrameBytes:  cfg.MaxFrameBytes,
	})

	// 7. HTTP + WS server
	httpServer := http_server.NewHttpServer(ctx, cfg.HttpServerPort, wsSrv, hub)
	serveErr := make(chan error, 1)
	go func() { serveErr <- httpServer.Start() }()

	select {
	case err := <-serveErr:
		if err != nil {
			Log.Error("Failed to start HTTP server", zap.Error(err))
		}
		stop()
	case <-ctx.Done():
		Log.Info("shutdown_requested")
	}

	// 8. Graceful shutdown
	_ = httpServer.Dispose()
	<-hub.Done()
	for _, done := range background {
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			Log.Warn("background_worker_timeout")
		}
	}
	Log.Info("shutdown_complete")
}

func runBackground(ctx context.Context, run func(context.Context)) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		run(ctx)
	}()
	return done
}
