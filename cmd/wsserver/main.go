/*
Package main is the entry point for the matchmaker.

It loads configuration, connects the optional backing services (PostgreSQL,
Redis, NATS), assembles the embedding chain and the live hub, mounts the
WebSocket server and REST API on one HTTP listener, and shuts everything down
on SIGINT or SIGTERM.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/whisper/matchmaker/internal/configs"
	"github.com/whisper/matchmaker/internal/embedding"
	"github.com/whisper/matchmaker/internal/handler"
	"github.com/whisper/matchmaker/internal/hub"
	"github.com/whisper/matchmaker/internal/matching"
	"github.com/whisper/matchmaker/internal/messaging"
	"github.com/whisper/matchmaker/internal/pkg/logx"
	"github.com/whisper/matchmaker/internal/protocol"
	"github.com/whisper/matchmaker/internal/ratelimit"
	"github.com/whisper/matchmaker/internal/store"
	"github.com/whisper/matchmaker/internal/ws"
)

func main() {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := configs.LoadEnvFile(envFile); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}

	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logx.InitGlobalLogger(cfg.IsDevelopment())
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Bool("database", cfg.DatabaseDSN != "").
		Bool("redis", cfg.RedisAddr != "").
		Bool("nats", cfg.NATSURL != "").
		Float64("similarity_threshold", cfg.SimilarityThreshold).
		Dur("room_join_timeout", cfg.RoomJoinTimeout).
		Msg("Configuration loaded successfully")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Redis (rate limiting, embedding cache) ---
	redisClient := connectRedis(ctx, cfg.RedisAddr)

	// --- Embeddings: provider -> cache -> random fallback ---
	embedCfg := embedding.DefaultClientConfig()
	embedCfg.APIKey = cfg.EmbeddingAPIKey
	embedCfg.Endpoint = cfg.EmbeddingEndpoint
	embedCfg.Model = cfg.EmbeddingModel
	embedCfg.Dimensions = cfg.EmbeddingDimensions

	var embedder embedding.Embedder = embedding.NewClient(nil, embedCfg)
	if redisClient != nil {
		embedder = embedding.NewCache(embedder, redisClient, embedding.DefaultCacheTTL)
	}
	embedder = embedding.NewFallback(embedder, cfg.EmbeddingDimensions)

	// --- PostgreSQL (interest persistence, REST API) ---
	var (
		db      *store.Store
		service *matching.Service
	)
	if cfg.DatabaseDSN != "" {
		openCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		db, err = store.Open(openCtx, store.DefaultConfig(cfg.DatabaseDSN))
		cancel()
		if err != nil {
			logx.Fatal(err, "Failed to open database")
		}
		service = matching.NewService(db, embedder, cfg.SimilarityThreshold)
	} else {
		logx.Warn("DATABASE_URL not set: interests are not persisted and /api is disabled")
	}

	// --- Hub collaborators ---
	var opts []hub.Option
	if service != nil {
		opts = append(opts, hub.WithProfiles(service))
	}
	if redisClient != nil {
		opts = append(opts, hub.WithLimiter(ratelimit.NewLimiter(redisClient)))
	}

	var natsClient *messaging.NATSClient
	if cfg.NATSURL != "" {
		natsConfig := messaging.DefaultNATSConfig()
		natsConfig.URL = cfg.NATSURL
		natsClient, err = messaging.NewNATSClient(natsConfig)
		if err != nil {
			logx.Error(err, "NATS unavailable, room events will not be published", "url", cfg.NATSURL)
			natsClient = nil
		} else {
			opts = append(opts, hub.WithPublisher(natsClient))
		}
	}

	// --- WebSocket server and hub ---
	wsConfig := ws.DefaultServerConfig()
	wsConfig.WorkerPoolSize = cfg.WorkerPoolSize
	wsConfig.MaxConnections = cfg.MaxConnections
	wsConfig.ReadTimeout = cfg.ReadTimeout
	wsConfig.WriteTimeout = cfg.WriteTimeout
	wsConfig.Heartbeat.Interval = cfg.HeartbeatInterval

	dispatcher := ws.NewMessageDispatcher(nil)
	server := ws.NewServer(wsConfig, dispatcher.Dispatch)
	dispatcher.SetServer(server)

	hubConfig := hub.DefaultConfig()
	hubConfig.JoinTimeout = cfg.RoomJoinTimeout
	h := hub.New(server, hubConfig, opts...)

	server.SetOnConnect(h.Connect)
	server.SetOnDisconnect(h.Disconnect)
	for _, msgType := range protocol.ClientTypes {
		if msgType == protocol.TypePing {
			continue
		}
		dispatcher.Register(msgType, func(conn *ws.Connection, msg protocol.ClientMessage) {
			h.Handle(ctx, conn.ID, msg)
		})
	}

	if err := server.Start(); err != nil {
		logx.Fatal(err, "Failed to start WebSocket server")
	}
	if cfg.RoomJoinTimeout > 0 {
		go func() {
			if err := h.RunSweeper(ctx); err != nil {
				logx.Error(err, "Room sweeper stopped")
			}
		}()
	}

	// --- HTTP ---
	deps := &handler.AppDeps{
		Config:    cfg,
		Stats:     h,
		WebSocket: server,
	}
	if service != nil {
		deps.Interests = service
		deps.Database = db
	}

	serverAddr := fmt.Sprintf(":%d", cfg.Port)
	httpServer := &http.Server{
		Addr:         serverAddr,
		Handler:      handler.Router(deps),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logx.Info(fmt.Sprintf("Matchmaker starting on http://localhost%s", serverAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Fatal(err, "Server failed to start")
		}
	}()

	<-ctx.Done()
	logx.Info("Received shutdown signal. Starting graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logx.Error(err, "HTTP server forced to shutdown")
	}
	if err := server.Shutdown(); err != nil {
		logx.Error(err, "WebSocket server shutdown failed")
	}
	if natsClient != nil {
		natsClient.Close()
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logx.Error(err, "Redis close failed")
		}
	}
	if db != nil {
		if err := db.Close(); err != nil {
			logx.Error(err, "Database close failed")
		}
	}

	logx.Info("Server gracefully stopped.")
}

// connectRedis returns nil when addr is empty or the server does not answer.
func connectRedis(ctx context.Context, addr string) *redis.Client {
	if addr == "" {
		logx.Warn("REDIS_ADDR not set: rate limiting and embedding cache disabled")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logx.Error(err, "Redis unavailable, continuing without it", "addr", addr)
		_ = client.Close()
		return nil
	}
	return client
}
