package app

import (
	"context"
	"fmt"
	"io"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/markdave123-py/cova/internal/config"
	"github.com/markdave123-py/cova/internal/core"
	db "github.com/markdave123-py/cova/internal/core/database"
	"github.com/markdave123-py/cova/internal/core/ingestion_engine"
	"github.com/markdave123-py/cova/internal/core/llm"
	objectclient "github.com/markdave123-py/cova/internal/core/object-client"
	"github.com/markdave123-py/cova/internal/services"
)

type App struct {
	DBClient     core.DbClient
	ObjectClient core.ObjectClient
	DocProcessor ingestion_engine.Ingestor
	Server       *Server

	closers []io.Closer
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	a := &App{}

	dbClient, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBClient = dbClient
	a.closers = append(a.closers, dbClient)
	log.Info("database initialized and ready")

	objClient, err := objectclient.NewS3Client(appCtx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.ObjectClient = objClient

	// genai clients outlive appCtx.
	embedder, err := llm.NewGeminiEmbedder(ctx, cfg.AIAPIKey, cfg.EmbedModel)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("couldn't initialize the embedder: %w", err)
	}
	a.closers = append(a.closers, embedder)

	llmProvider, err := newLLMProvider(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	if c, ok := llmProvider.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	ingCfg := ingestion_engine.IngestConfig{
		TargetTokens:   400,
		OverlapTokens:  40,
		BatchSize:      16,
		MaxFragmentLen: 2000,
	}
	extractor := ingestion_engine.NewDocconvExtractor(false, ingCfg.MaxFragmentLen)
	docIngestor := ingestion_engine.NewDocumentIngestor(dbClient, objClient, embedder, extractor, ingCfg)
	a.DocProcessor = docIngestor

	convs := services.NewConversationService(dbClient)
	a.Server = NewServer(cfg, Services{
		Users:         services.NewUserService(dbClient),
		Conversations: convs,
		Generations:   services.NewGenerationService(dbClient, convs, embedder, llmProvider, cfg.RetrievalTopK),
		Documents:     services.NewDocumentService(dbClient, objClient, docIngestor, cfg.BucketName),
	})
	return a, nil
}

func newLLMProvider(ctx context.Context, cfg *config.Config) (core.LLMProvider, error) {
	switch cfg.LLMProvider {
	case "openai":
		log.WithField("model", cfg.OpenAIModel).Info("using OpenAI compatible generation")
		return llm.NewOpenAILLM(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel), nil
	case "gemini", "":
		log.WithField("model", cfg.GenModel).Info("using Gemini generation")
		p, err := llm.NewGeminiLLM(ctx, cfg.AIAPIKey, cfg.GenModel)
		if err != nil {
			return nil, fmt.Errorf("couldn't initialize the llm: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown LLM_PROVIDER %q", cfg.LLMProvider)
	}
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			log.WithError(err).Warn("close failed")
		}
	}
	a.closers = nil
}
