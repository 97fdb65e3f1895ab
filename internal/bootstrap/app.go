package bootstrap

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"hrassist/internal/ai"
	appsvc "hrassist/internal/app"
	"hrassist/internal/cache"
	"hrassist/internal/chunk"
	"hrassist/internal/config"
	"hrassist/internal/index"
	"hrassist/internal/ingest"
	"hrassist/internal/model"
	mysqlClient "hrassist/internal/platform/mysql"
	rabbitmqClient "hrassist/internal/platform/rabbitmq"
	redisClient "hrassist/internal/platform/redis"
	"hrassist/internal/prompt"
	"hrassist/internal/repository"
	"hrassist/internal/retrieve"
	"hrassist/internal/vectorstore"
	memorystore "hrassist/internal/vectorstore/memory"
	qdrantstore "hrassist/internal/vectorstore/qdrant"
	"hrassist/internal/worker"
)

type App struct {
	Config      *config.Config
	MySQL       *gorm.DB
	Redis       *redis.Client
	MQConn      *amqp.Connection
	VectorStore vectorstore.Store

	IndexManager    *index.Manager
	Pipeline        *ingest.Pipeline
	ChatService     *appsvc.ChatService
	DocumentService *appsvc.DocumentService

	MessageWorker *worker.MessagePersistWorker
	IngestWorker  *worker.IngestWorker

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	mysqlDB, err := mysqlClient.New(ctx, cfg.MySQLDSN())
	if err != nil {
		return nil, err
	}
	if err := mysqlDB.AutoMigrate(
		&model.Document{},
		&model.IngestState{},
		&model.Session{},
		&model.Message{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate tables failed: %w", err)
	}

	redisCli, err := redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, err
	}

	// The broker is optional. Without it documents index inline and chat
	// turns persist synchronously.
	var mqConn *amqp.Connection
	if cfg.RabbitMQ.URL != "" {
		mqConn, err = rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
		if err != nil {
			return nil, err
		}
	}

	store := newVectorStore(cfg)
	manager := index.NewManager(store, index.Config{
		Prefix:    cfg.Vector.IndexPrefix,
		Dimension: cfg.Vector.Dimension,
		Metric:    cfg.Vector.Metric,
		BatchSize: cfg.Vector.BatchSize,
	})

	splitter, err := chunk.NewSplitter(cfg.Retrieval.ChunkSize, cfg.Retrieval.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("build splitter failed: %w", err)
	}

	embedder := ai.NewEmbeddingClient(ai.EmbeddingConfig{
		BaseURL:   cfg.LLM.BaseURL,
		APIKey:    cfg.LLM.APIKey,
		Model:     cfg.LLM.EmbeddingModel,
		Dimension: cfg.Vector.Dimension,
	})

	docRepo := repository.NewDocumentRepository(mysqlDB)
	stateRepo := repository.NewIngestStateRepository(mysqlDB)
	sessionRepo := repository.NewSessionRepository(mysqlDB)
	messageRepo := repository.NewMessageRepository(mysqlDB)

	pipeline := ingest.NewPipeline(splitter, embedder, manager, stateRepo, cfg.LLM.EmbeddingBatchSize)
	retriever := retrieve.NewRetriever(embedder, manager, retrieve.Config{
		TopK:           cfg.Retrieval.TopK,
		ScoreThreshold: cfg.Retrieval.ScoreThreshold,
	})
	assembler := prompt.NewAssembler(cfg.Retrieval.ContextBudgetChars)
	historyCache := cache.NewHistoryCache(
		redisCli,
		time.Duration(cfg.Redis.HistoryTTLSeconds)*time.Second,
		time.Duration(cfg.Redis.HistoryDirtyTTLSeconds)*time.Second,
	)

	var messagePublisher appsvc.AsyncMessagePublisher
	var ingestPublisher appsvc.IngestJobPublisher
	if mqConn != nil {
		queue := rabbitmqClient.NewQueuePublisher(mqConn, cfg.RabbitMQ.MessagePersistQueue)
		messagePublisher = queue
		ingestPublisher = rabbitmqClient.NewQueuePublisher(mqConn, cfg.RabbitMQ.IngestQueue)
	} else {
		messagePublisher = directMessageWriter{repo: messageRepo}
	}

	chatService := appsvc.NewChatService(
		retriever,
		assembler,
		ai.NewOpenAICompatibleClient(),
		ai.ChatConfig{
			BaseURL: cfg.LLM.BaseURL,
			APIKey:  cfg.LLM.APIKey,
			Model:   cfg.LLM.Model,
		},
		time.Duration(cfg.LLM.GenerationTimeoutSeconds)*time.Second,
		sessionRepo,
		messageRepo,
		messagePublisher,
		historyCache,
		cfg.Retrieval.MaxHistoryTurns,
	)
	documentService := appsvc.NewDocumentService(docRepo, pipeline, ingestPublisher)

	app := &App{
		Config:          cfg,
		MySQL:           mysqlDB,
		Redis:           redisCli,
		MQConn:          mqConn,
		VectorStore:     store,
		IndexManager:    manager,
		Pipeline:        pipeline,
		ChatService:     chatService,
		DocumentService: documentService,
		StartedAt:       time.Now(),
	}

	if mqConn != nil {
		app.MessageWorker = worker.NewMessagePersistWorker(mqConn, messageRepo, cfg.RabbitMQ.MessagePersistQueue)
		if err := app.MessageWorker.Start(ctx); err != nil {
			return nil, fmt.Errorf("start message worker failed: %w", err)
		}
		app.IngestWorker = worker.NewIngestWorker(mqConn, documentService, cfg.RabbitMQ.IngestQueue)
		if err := app.IngestWorker.Start(ctx); err != nil {
			return nil, fmt.Errorf("start ingest worker failed: %w", err)
		}
	}

	return app, nil
}

func newVectorStore(cfg *config.Config) vectorstore.Store {
	if cfg.Vector.Provider == "memory" {
		return memorystore.New()
	}
	return qdrantstore.New(qdrantstore.Config{
		URL:    cfg.Vector.URL,
		APIKey: cfg.Vector.APIKey,
	})
}

func (a *App) Close() error {
	var closeErr error
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MessageWorker != nil {
		a.MessageWorker.Close()
	}
	if a.IngestWorker != nil {
		a.IngestWorker.Close()
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MySQL != nil {
		sqlDB, err := a.MySQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}

// directMessageWriter persists chat turns inline when no broker is
// configured.
type directMessageWriter struct {
	repo *repository.MessageRepository
}

func (w directMessageWriter) Publish(_ context.Context, msg model.Message) error {
	return w.repo.Create(&msg)
}
