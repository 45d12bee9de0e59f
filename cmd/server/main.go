// Package main is the entry point of the baria-go HTTP service.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"baria-go/internal/config"
	"baria-go/internal/handler"
	"baria-go/internal/model"
	"baria-go/internal/pipeline"
	"baria-go/internal/repository"
	"baria-go/internal/screening"
	"baria-go/internal/service"
	"baria-go/internal/store"
	"baria-go/internal/vectorindex"
	"baria-go/pkg/database"
	"baria-go/pkg/embedding"
	"baria-go/pkg/es"
	"baria-go/pkg/health"
	"baria-go/pkg/kafka"
	"baria-go/pkg/llm"
	"baria-go/pkg/log"
	"baria-go/pkg/metrics"
	"baria-go/pkg/storage"
	"baria-go/pkg/tika"
	"baria-go/pkg/token"
)

func main() {
	configPath := os.Getenv("BARIA_CONFIG")
	if configPath == "" {
		configPath = "./configs/config.yaml"
	}
	config.Init(configPath)
	cfg := config.Conf

	if err := log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath); err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	log.Infof("[Main] starting with backend %s", cfg.Retrieval.Backend)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New(prometheus.DefaultRegisterer)
	checker := health.NewChecker()

	// MySQL holds the red-flag log and, for the mysql backend, the chunks.
	useMySQL := cfg.Retrieval.Backend == "mysql" || (cfg.Retrieval.Backend != "memory" && cfg.Database.MySQL.DSN != "")
	if useMySQL {
		database.InitMySQL(cfg.Database.MySQL.DSN, &model.Document{}, &model.Chunk{}, &model.RedFlagLog{})
	}
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	checker.RegisterOptional("redis", health.Ping(func(ctx context.Context) error {
		return database.RDB.Ping(ctx).Err()
	}))

	embeddingClient := embedding.NewClient(cfg.Embedding)
	embedder := embedding.NewCached(embeddingClient, embedding.NewRedisCache(database.RDB), cfg.Embedding.Model, cfg.Embedding.CacheTTL, m.CacheLookup)
	checker.RegisterOptional("embedding", health.Ping(embeddingClient.Ready))

	st, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal("failed to open vector store", err)
	}
	checker.Register("storage", health.Ping(st.Ping))

	retrievalService := service.NewRetrievalService(st, embedder, m, service.RetrievalOptions{
		DefaultDocumentID: cfg.Retrieval.DefaultDocumentID,
		DefaultSource:     cfg.Retrieval.DefaultSource,
		EmbedConcurrency:  cfg.Retrieval.EmbedConcurrency,
		EmbedBatchSize:    cfg.Embedding.BatchSize,
	})

	rules, err := loadRules(cfg.Screening.RulesPath)
	if err != nil {
		log.Fatal("failed to load screening rules", err)
	}
	log.Infof("[Main] screening with %d rules (version %d)", rules.Len(), rules.Version())

	var redFlagRepo repository.RedFlagRepository
	if useMySQL {
		redFlagRepo = repository.NewRedFlagRepository(database.DB)
	}
	conversationRepo := repository.NewConversationRepository(database.RDB)

	var objects *storage.ObjectStore
	if cfg.MinIO.Endpoint != "" {
		objects, err = storage.NewObjectStore(ctx, cfg.MinIO)
		if err != nil {
			log.Error("[Main] MinIO unavailable, uploads are indexed directly", err)
			objects = nil
		} else {
			checker.RegisterOptional("minio", health.Ping(objects.Ping))
		}
	}

	var taskProducer, alertProducer *kafka.Producer
	if cfg.Kafka.Brokers != "" {
		taskProducer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer taskProducer.Close()
		if cfg.Screening.AlertsTopic != "" {
			alertProducer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Screening.AlertsTopic)
			defer alertProducer.Close()
		}
	}

	var extractor pipeline.TextExtractor
	if cfg.Tika.ServerURL != "" {
		extractor = tika.NewClient(cfg.Tika)
	}
	var objectReader pipeline.ObjectReader
	var objectStore service.ObjectStore
	if objects != nil {
		objectReader, objectStore = objects, objects
	}
	processor := pipeline.NewProcessor(objectReader, extractor, retrievalService, cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap)

	var taskPublisher, alertPublisher service.Publisher
	if taskProducer != nil && objects != nil {
		taskPublisher = taskProducer
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID, processor,
			kafka.RedisAttempts{RDB: database.RDB}, cfg.Ingest.MaxAttempts)
		go consumer.Run(ctx)
	}
	if alertProducer != nil {
		alertPublisher = alertProducer
	}

	ingestService := service.NewIngestService(objectStore, taskPublisher, processor, retrievalService)
	askService := service.NewAskService(service.AskDeps{
		Screener:      screening.New(rules),
		Retrieval:     retrievalService,
		LLM:           llm.NewClient(cfg.LLM),
		Conversations: conversationRepo,
		RedFlags:      redFlagRepo,
		Alerts:        alertPublisher,
		Metrics:       m,
	}, service.AskOptions{
		TopK:         cfg.Retrieval.DefaultTopK,
		MinScore:     minScore(cfg.Retrieval.MinScore),
		SystemPrompt: cfg.LLM.SystemPrompt,
		Temperature:  cfg.LLM.Generation.Temperature,
		LLMTimeout:   cfg.LLM.Timeout,
	})
	jwtManager := token.NewJWTManager(cfg.Auth.Secret, cfg.Auth.AccessTokenExpireHours, cfg.Auth.RefreshTokenExpireDays)
	authService := service.NewAuthService(cfg.Auth.Admins, jwtManager)
	conversationService := service.NewConversationService(conversationRepo, redFlagRepo)

	if cfg.Ingest.SeedDir != "" {
		go seed(ctx, ingestService, cfg.Ingest.SeedDir)
	}

	gin.SetMode(cfg.Server.Mode)
	r := handler.NewRouter(handler.RouterDeps{
		Retrieval:      retrievalService,
		Ask:            askService,
		Ingest:         ingestService,
		Auth:           authService,
		Conversations:  conversationService,
		Checker:        checker,
		Metrics:        m,
		AuthEnabled:    cfg.Auth.Enabled,
		DefaultTopK:    cfg.Retrieval.DefaultTopK,
		MinScore:       minScore(cfg.Retrieval.MinScore),
		MaxUploadBytes: cfg.Ingest.MaxUploadBytes,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		log.Infof("[Main] listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %s", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("[Main] shutdown signal received")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown failed", err)
	}
	log.Info("[Main] server stopped")
}

// openStore builds the configured vector backend.
func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	dim := cfg.Embedding.Dimensions
	switch cfg.Retrieval.Backend {
	case "mysql", "memory":
		idx, err := vectorindex.New(cfg.Retrieval.Index, dim, cfg.Retrieval.Lists, cfg.Retrieval.Probes)
		if err != nil {
			return nil, err
		}
		repo := repository.NewMemoryChunkRepository()
		if cfg.Retrieval.Backend == "mysql" {
			repo = repository.NewChunkRepository(database.DB)
		}
		s := store.NewIndexedStore(cfg.Retrieval.Backend, repo, idx)
		n, err := s.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("load %s index: %w", cfg.Retrieval.Backend, err)
		}
		log.Infof("[Main] loaded %d chunks into the %s index", n, cfg.Retrieval.Index)
		return s, nil
	case "pgvector":
		pg, err := database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return nil, err
		}
		return store.NewPgvectorStore(ctx, pg, dim, cfg.Retrieval.Lists, cfg.Retrieval.Probes)
	case "elasticsearch":
		client, err := es.NewClient(cfg.Elasticsearch)
		if err != nil {
			return nil, err
		}
		return store.NewESStore(ctx, client, cfg.Elasticsearch.IndexName, dim, cfg.Retrieval.CandidateFactor)
	default:
		return nil, fmt.Errorf("unknown retrieval backend %q", cfg.Retrieval.Backend)
	}
}

func loadRules(path string) (*screening.RuleSet, error) {
	if path == "" {
		return screening.DefaultRules()
	}
	return screening.LoadRules(path)
}

// minScore maps the config value to the optional filter; 0 disables it.
func minScore(v float64) *float64 {
	if v == 0 {
		return nil
	}
	return &v
}

// seed ingests the leaflets shipped next to the binary. Already indexed
// chunks are skipped by content hash, so restarts are cheap.
func seed(ctx context.Context, ingestService service.IngestService, dir string) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		log.Infof("[Seed] directory %q not found, skipping", dir)
		return
	}
	n, err := ingestService.Seed(ctx, dir)
	if err != nil {
		log.Errorf("[Seed] stopped after %d files: %v", n, err)
		return
	}
	log.Infof("[Seed] ingested %d files from %s", n, dir)
}
