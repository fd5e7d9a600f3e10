package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	httpSwagger "github.com/swaggo/http-swagger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/somalab/autonomic-monitory/internal/config"
	"github.com/somalab/autonomic-monitory/internal/health"
	"github.com/somalab/autonomic-monitory/internal/ingest"
	"github.com/somalab/autonomic-monitory/internal/pipeline"
	"github.com/somalab/autonomic-monitory/internal/session"
	"github.com/somalab/autonomic-monitory/internal/websocket"
)

// @title Autonomic State Monitor API
// @version 1.0
// @description Сервис непрерывной классификации автономного состояния по потоку межударных интервалов.
// @description
// @description ## Описание
// @description Принимает поток интервалов сердцебиения по WebSocket, ведет траекторию
// @description HRV-признаков в нормированном пространстве и классифицирует режимы
// @description с гистерезисом. Одна запись на тик отдается в Redis, PostgreSQL и живой WebSocket.

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /
// @schemes http

func main() {
	log.Printf("[INFO] Starting autonomic state tracker...")

	cfg := config.Load()
	log.Printf("[INFO] Configuration loaded: http_port=%s tick_interval_ms=%d buffer=%d",
		cfg.HTTPPort, cfg.TickIntervalMS, cfg.BufferCapacity)

	settings := pipeline.DefaultSettings()
	settings.BufferCapacity = cfg.BufferCapacity
	settings.TickInterval = time.Duration(cfg.TickIntervalMS) * time.Millisecond
	settings.Trajectory.HistorySize = cfg.TrajectoryDepth
	if err := settings.Validate(); err != nil {
		log.Fatalf("[FATAL] Invalid pipeline settings: %v", err)
	}

	ctx := context.Background()

	// Живой кэш: Redis, при недоступности - in-memory деградация
	var cache session.CacheStore
	redisStore, err := session.NewRedisStoreFromAddr(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisTTL)
	if err != nil {
		log.Printf("[WARN] Redis unavailable (%v), falling back to in-memory cache", err)
		cache = session.NewMemoryStore()
	} else {
		log.Printf("[INFO] Connected to Redis at %s", cfg.RedisAddr)
		cache = redisStore
	}

	// Долговременное хранилище: PostgreSQL, при недоступности - in-memory
	var repository session.Repository
	pgRepo, err := session.NewPostgresRepositoryFromDSN(cfg.PostgresDSN)
	if err != nil {
		log.Printf("[WARN] PostgreSQL unavailable (%v), falling back to in-memory repository", err)
		repository = session.NewMemoryStore()
	} else {
		log.Printf("[INFO] Connected to PostgreSQL")
		defer pgRepo.Close()
		repository = pgRepo
	}

	hub := websocket.NewHub()
	go hub.Run()

	manager := session.NewManager(cache, repository, settings, hub, &pipeline.LogSink{})

	ingestCfg := ingest.DefaultConfig()
	ingestCfg.MinIntervalMS = cfg.MinIntervalMS
	ingestCfg.MaxIntervalMS = cfg.MaxIntervalMS
	ingestCfg.AckEveryN = cfg.AckEveryN
	ingestHandler := ingest.NewHandler(ingestCfg, manager)

	router := mux.NewRouter()
	session.NewHTTPHandler(manager).RegisterRoutes(router)

	router.HandleFunc("/ws/ingest/{id}", func(w http.ResponseWriter, r *http.Request) {
		ingestHandler.HandleWebSocket(w, r, mux.Vars(r)["id"])
	})
	router.HandleFunc("/ws/live/{id}", func(w http.ResponseWriter, r *http.Request) {
		hub.HandleWebSocket(w, r, mux.Vars(r)["id"])
	})

	router.PathPrefix("/swagger/").Handler(httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods("GET")

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler: router,
	}

	// gRPC health для оркестрации
	healthServer := health.NewServer()
	grpcServer := grpc.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	serverErrChan := make(chan error, 2)

	go func() {
		log.Printf("[INFO] HTTP server listening on :%s", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	go func() {
		listener, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCHealthPort))
		if err != nil {
			serverErrChan <- fmt.Errorf("failed to listen on %s: %w", cfg.GRPCHealthPort, err)
			return
		}
		log.Printf("[INFO] gRPC health server listening on :%s", cfg.GRPCHealthPort)
		healthServer.SetServing("")
		healthServer.SetServing("autonomic.v1.Tracker")
		if err := grpcServer.Serve(listener); err != nil {
			serverErrChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrChan:
		log.Printf("[ERROR] Server error: %v", err)

	case sig := <-shutdownChan:
		log.Printf("[INFO] Received signal %v, starting graceful shutdown...", sig)
	}

	healthServer.SetNotServing("")
	healthServer.SetNotServing("autonomic.v1.Tracker")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Останавливаем активные сессии, чтобы дописались последние тики
	manager.StopAll(shutdownCtx)

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[WARN] HTTP shutdown error: %v", err)
	}
	grpcServer.GracefulStop()

	log.Printf("[INFO] Shutdown complete")
}
