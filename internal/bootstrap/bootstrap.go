package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/datasheet-rag/internal/config"
	"github.com/kirillkom/datasheet-rag/internal/core/ports"
	"github.com/kirillkom/datasheet-rag/internal/core/usecase"
	redisstore "github.com/kirillkom/datasheet-rag/internal/infrastructure/cache/redis"
	"github.com/kirillkom/datasheet-rag/internal/infrastructure/chunking"
	"github.com/kirillkom/datasheet-rag/internal/infrastructure/embcache"
	"github.com/kirillkom/datasheet-rag/internal/infrastructure/extractor"
	"github.com/kirillkom/datasheet-rag/internal/infrastructure/extractor/pdf"
	"github.com/kirillkom/datasheet-rag/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/datasheet-rag/internal/infrastructure/extractor/spreadsheet"
	"github.com/kirillkom/datasheet-rag/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/datasheet-rag/internal/infrastructure/llm/openaicompat"
	"github.com/kirillkom/datasheet-rag/internal/infrastructure/parsing/datasheet"
	"github.com/kirillkom/datasheet-rag/internal/infrastructure/queue/nats"
	"github.com/kirillkom/datasheet-rag/internal/infrastructure/rerank/crossencoder"
	"github.com/kirillkom/datasheet-rag/internal/infrastructure/rerank/lexical"
	"github.com/kirillkom/datasheet-rag/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/datasheet-rag/internal/infrastructure/resilience"
	"github.com/kirillkom/datasheet-rag/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/datasheet-rag/internal/infrastructure/vector/qdrant"
)

const spreadsheetMaxRows = 10000

// Options carries process-specific observers. Zero values disable them.
type Options struct {
	Logger          *slog.Logger
	Recorder        ports.RetrievalRecorder
	CacheCounter    *prometheus.CounterVec
	BreakerObserver resilience.StateObserver
}

type App struct {
	Config config.Config

	Queue     ports.MessageQueue
	Docs      ports.DocumentRepository
	Products  ports.ProductStore
	IngestUC  ports.DatasheetIngestor
	ProcessUC ports.DatasheetProcessor
	QueryUC   ports.QueryService

	closeFns []func()
}

// llmStack groups the model-backed ports of one provider.
type llmStack struct {
	classifier ports.QueryClassificationModel
	embedder   ports.Embedder
	generator  ports.AnswerGenerator
	translator ports.Translator
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Config: cfg}

	executor := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    cfg.RetryMaxAttempts,
		RetryInitialBackoff: cfg.RetryInitialBackoff,
		RetryJitter:         0.2,
		BreakerEnabled:      cfg.BreakerEnabled,
		// classify and translate fall back in the core; one attempt each.
		Overrides: map[string]resilience.Override{
			"classify":  {MaxAttempts: 1},
			"translate": {MaxAttempts: 1},
		},
	}).WithLogger(logger).WithStateObserver(opts.BreakerObserver)

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	app.closeFns = append(app.closeFns, func() { _ = db.Close() })
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		app.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	docs := postgres.NewDocumentRepository(db)
	products := postgres.NewProductRepository(db, cfg.ProductSearchLimit)

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	queue, err := nats.New(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		QueueGroup:         cfg.NATSQueueGroup,
		ResilienceExecutor: executor,
		Logger:             logger,
	})
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}
	app.closeFns = append(app.closeFns, queue.Close)

	llm := newLLMStack(cfg, executor)

	embedder := llm.embedder
	if len(cfg.RedisAddrs) > 0 {
		cache, err := redisstore.NewStore(redisstore.Config{
			Addrs:    cfg.RedisAddrs,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.EmbeddingCacheTTL,
		})
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("init embedding cache: %w", err)
		}
		app.closeFns = append(app.closeFns, cache.Close)
		if err := cache.Ping(ctx); err != nil {
			logger.Warn("embedding_cache_unreachable", "error", err)
		}
		embedder = embcache.New(embedder, cache, opts.CacheCounter, logger)
	}

	var reranker ports.Reranker = lexical.New()
	if strings.TrimSpace(cfg.RerankerURL) != "" {
		reranker = crossencoder.New(cfg.RerankerURL, crossencoder.Options{
			Model:    cfg.RerankerModel,
			Timeout:  cfg.RerankerTimeout,
			Executor: executor,
		})
	}

	textExtractor := extractor.New(storage, map[extractor.Format]extractor.Decoder{
		extractor.FormatPDF:         pdf.NewDecoder(cfg.MaxUploadBytes),
		extractor.FormatSpreadsheet: spreadsheet.NewDecoder(spreadsheetMaxRows),
		extractor.FormatText:        plaintext.NewDecoder(),
	}, cfg.MaxUploadBytes)
	vectorDB := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection).WithResilience(executor)
	chunker := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)

	classifier := usecase.NewQueryClassifier(llm.classifier, usecase.ClassifierOptions{
		Timeout:                cfg.ClassifierTimeout,
		LowConfidenceThreshold: cfg.ClassifierLowConfidence,
		Logger:                 logger,
		Recorder:               opts.Recorder,
	})
	router := usecase.NewSearchRouter(products, vectorDB, embedder, reranker, usecase.RouterOptions{
		BranchTimeout: cfg.BranchTimeout,
		Logger:        logger,
		Recorder:      opts.Recorder,
	})

	app.Queue = queue
	app.Docs = docs
	app.Products = products
	app.IngestUC = usecase.NewIngestDatasheetUseCase(docs, storage, queue)
	app.ProcessUC = usecase.NewProcessDatasheetUseCase(
		docs,
		textExtractor,
		datasheet.NewParser(),
		products,
		chunker,
		embedder,
		vectorDB,
		logger,
	)
	app.QueryUC = usecase.NewQueryUseCase(classifier, router, llm.translator, llm.generator, usecase.QueryConfig{
		TopKCandidates: cfg.TopKCandidates,
		TopKFinal:      cfg.TopKFinal,
		MaxQueryChars:  cfg.QueryMaxChars,
		Timeout:        cfg.QueryTimeout,
	}, logger)

	return app, nil
}

func newLLMStack(cfg config.Config, executor *resilience.Executor) llmStack {
	if cfg.LLMProvider == "openai" {
		client := openaicompat.New(openaicompat.Config{
			APIKey:     cfg.OpenAIAPIKey,
			BaseURL:    cfg.OpenAIBaseURL,
			ChatModel:  cfg.OpenAIChatModel,
			EmbedModel: cfg.OpenAIEmbedModel,
		}).WithResilience(executor)
		stack := llmStack{
			classifier: openaicompat.NewQueryClassifier(client),
			embedder:   openaicompat.NewEmbedder(client),
			generator:  openaicompat.NewGenerator(client),
		}
		if cfg.TranslationEnabled {
			stack.translator = openaicompat.NewTranslator(client, cfg.WorkingLanguage)
		}
		return stack
	}

	client := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel).WithResilience(executor)
	stack := llmStack{
		classifier: ollama.NewQueryClassifier(client),
		embedder:   ollama.NewEmbedder(client),
		generator:  ollama.NewGenerator(client),
	}
	if cfg.TranslationEnabled {
		stack.translator = ollama.NewTranslator(client, cfg.WorkingLanguage)
	}
	return stack
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
	a.closeFns = nil
}
