package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/urfave/negroni"

	"github.com/docuflow/docuflow/ai"
	"github.com/docuflow/docuflow/config"
	"github.com/docuflow/docuflow/db"
	"github.com/docuflow/docuflow/document"
	"github.com/docuflow/docuflow/extraction"
	"github.com/docuflow/docuflow/handlers"
	"github.com/docuflow/docuflow/logging"
	"github.com/docuflow/docuflow/pipeline"
	"github.com/docuflow/docuflow/queue"
	"github.com/docuflow/docuflow/realtime"
	"github.com/docuflow/docuflow/search"
	"github.com/docuflow/docuflow/server"
	"github.com/docuflow/docuflow/storage"
)

func main() {
	cfg := config.Load()

	handler, err := logging.NewDailyFileHandler(cfg.LogDir, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	logger := slog.New(handler)

	pool, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	store := document.NewStore(pool, logger)
	if err := store.EnsureSchema(context.Background()); err != nil {
		log.Fatalf("Failed to ensure database schema: %v", err)
	}

	storageSvc, err := storage.New(storage.Config{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		Secure:    cfg.MinioSecure,
	}, logger)
	if err != nil {
		log.Fatalf("Failed to initialize object storage: %v", err)
	}

	registry := realtime.NewRegistry(logger)
	notifier := realtime.NewNotifier(registry, logger)

	llm := ai.NewOpenAIService(cfg.OpenAIAPIKey, cfg.OpenAIModel, logger)
	enricher := ai.NewEnricher(llm, logger)
	extractor := extraction.NewExtractor(logger)

	embedding := search.NewEmbeddingService(cfg.OpenAIAPIKey, logger)
	indexer := search.NewIndexer(pool, embedding, logger)
	searchSvc := search.NewService(pool, embedding, logger)
	indexManager := search.NewIndexManager(pool, logger)

	queueClient := queue.NewClient(cfg.RedisAddr, logger)
	defer queueClient.Close()

	processor := pipeline.NewProcessor(pipeline.Deps{
		Store:     store,
		Storage:   storageSvc,
		Extractor: extractor,
		Enricher:  enricher,
		Indexer:   indexer,
		Notifier:  notifier,
		Scheduler: queueClient,
		Logger:    logger,
	})

	worker := queue.NewWorker(cfg.RedisAddr, cfg.WorkerConcurrency, processor.ProcessDocument, logger)
	if err := worker.Start(); err != nil {
		log.Fatalf("Failed to start worker: %v", err)
	}
	defer worker.Shutdown()

	// Keep the vector index sized for the table as the corpus grows.
	go maintainVectorIndex(indexManager, logger)

	r := server.SetupRoutes(server.Handlers{
		Documents: handlers.NewDocumentHandler(store, storageSvc, queueClient, cfg.MaxFileSize, logger),
		Search:    handlers.NewSearchHandler(searchSvc, logger),
		WebSocket: handlers.NewWebSocketHandler(registry, logger),
	}, logger)
	n := setupNegroni(r)

	go handleShutdown(worker, logger)

	logger.Info("DocuFlow starting",
		slog.String("environment", cfg.Environment),
		slog.String("http_port", cfg.HTTPPort))

	if cfg.Environment == "production" {
		server.ServeProduction(n, server.Config{
			Domains:      cfg.Domains,
			CertCacheDir: cfg.CertCacheDir,
			HTTPSPort:    cfg.HTTPSPort,
		})
	} else {
		srv := &http.Server{
			Addr:        ":" + cfg.HTTPPort,
			Handler:     n,
			IdleTimeout: time.Minute,
			ReadTimeout: 5 * time.Second,
		}
		server.ServeDevelopment(srv)
	}
}

func setupNegroni(r *mux.Router) *negroni.Negroni {
	n := negroni.New()
	n.Use(negroni.NewRecovery())
	n.Use(negroni.NewLogger())
	n.UseHandler(r)
	return n
}

func maintainVectorIndex(im *search.IndexManager, logger *slog.Logger) {
	ticker := time.NewTicker(6 * time.Hour)
	defer ticker.Stop()

	for range ticker.C {
		if err := im.ReindexIfNeeded(context.Background()); err != nil {
			logger.Error("Vector index maintenance failed",
				slog.String("error", err.Error()))
		}
	}
}

func handleShutdown(worker *queue.Worker, logger *slog.Logger) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("Shutting down, draining in-flight jobs")
	worker.Shutdown()
	os.Exit(0)
}
