package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"fablecast/server/internal/agents"
	"fablecast/server/internal/audio"
	"fablecast/server/internal/config"
	"fablecast/server/internal/engine"
	"fablecast/server/internal/genai"
	"fablecast/server/internal/rag"
	"fablecast/server/internal/storage"
	"fablecast/server/internal/web"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Storage connections
	mysqlStore, err := storage.NewMySQLStore(cfg.Database.MySQL)
	if err != nil {
		log.Fatalf("Failed to connect to MySQL: %v", err)
	}
	defer mysqlStore.Close()
	log.Println("MySQL connected successfully")

	redisStore, err := storage.NewRedisStore(cfg.Database.Redis)
	if err != nil {
		log.Printf("Warning: Failed to connect to Redis: %v", err)
		redisStore = nil
	} else {
		defer redisStore.Close()
		log.Println("Redis connected successfully")
	}

	assetStore, err := storage.NewAssetStore(cfg.Assets.Dir)
	if err != nil {
		log.Fatalf("Failed to prepare asset directory: %v", err)
	}

	// Generation clients
	if cfg.AI.Generation.APIKey == "" {
		log.Println("Warning: No generation API key provided. Generation calls will fail.")
	}
	genClient := genai.NewClient(cfg.AI.Generation)
	embedder := genai.NewEmbeddingClient(cfg.AI.Embedding)

	// Anchor memory is optional: without Qdrant the continuity analyzer
	// works from the state card alone.
	var anchorStore *rag.AnchorStore
	if cfg.Database.Qdrant.Host != "" {
		anchorStore, err = rag.NewAnchorStore(cfg.Database.Qdrant, embedder)
		if err != nil {
			log.Printf("Warning: Failed to connect to Qdrant: %v", err)
			anchorStore = nil
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := anchorStore.EnsureCollection(ctx); err != nil {
				log.Printf("Warning: Failed to initialize Qdrant collection: %v", err)
			}
			cancel()
			log.Println("Qdrant connected successfully")
		}
	}

	// Audio synthesis pipeline
	hub := web.NewProgressHub()
	go hub.Run()

	synth := audio.NewClient(cfg.AI.Audio)
	pipeline := audio.NewPipeline(synth, assetStore, mysqlStore, cfg.Queue.MaxWorkers, cfg.Queue.MaxQueueSize)
	pipeline.SetListener(hub)
	pipeline.SetCache(audio.NewCache(1000, 24*time.Hour))
	if cfg.AI.TTS.BaseURL != "" {
		pipeline.SetNarrator(audio.NewTTSClient(cfg.AI.TTS))
	}
	pipelineCtx, stopPipeline := context.WithCancel(context.Background())
	defer stopPipeline()
	pipeline.Start(pipelineCtx)

	// Agents
	var retriever agents.AnchorRetriever
	var anchors engine.AnchorWriter
	if anchorStore != nil {
		retriever = anchorStore
		anchors = anchorStore
	}
	deps := engine.Deps{
		Store:        mysqlStore,
		Redis:        redisStore,
		AudioQueue:   pipeline,
		Anchors:      anchors,
		Events:       hub,
		BibleBuilder: agents.NewWorldBibleBuilder(genClient),
		Tracker:      agents.NewStateTracker(genClient, cfg.Orchestrator.MaxKeyFacts),
		Continuity:   agents.NewContinuityAnalyzer(genClient, retriever),
		Scenes:       agents.NewSceneGenerator(genClient),
		Music:        agents.NewMusicDirector(genClient),
		SFX:          agents.NewSFXDirector(genClient),
	}
	orchestrator := engine.NewOrchestrator(deps, cfg.Orchestrator)
	log.Println("Orchestrator initialized successfully")

	r := web.NewRouter(cfg, orchestrator, mysqlStore, hub)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Printf("Server starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	stopPipeline()

	log.Println("Server stopped")
}
