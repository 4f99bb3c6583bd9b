package server

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"ragcore/app/api"
	"ragcore/chunker"
	"ragcore/graph"
	"ragcore/hierarchy"
	"ragcore/ingest"
	"ragcore/model"
	"ragcore/search"
	"ragcore/store"

	"github.com/gofiber/fiber/v2"
)

var config = fiber.Config{
	ErrorHandler: api.ErrorHandler,
}

type Server struct {
	listenAddr string
	logger     *slog.Logger
	app        *fiber.App
	store      *store.PostgresStore
}

func NewServer(addr string) *Server {
	return &Server{
		listenAddr: addr,
		logger:     slog.Default(),
	}
}

func (s *Server) Stop() {
	if s.app != nil {
		if err := s.app.Shutdown(); err != nil {
			s.logger.Error("error during shutdown", "error", err.Error())
		}
	}
	if s.store != nil {
		s.store.Close()
	}
	s.logger.Info("server stopped")
}

func (s *Server) Run() {
	ctx := context.Background()

	port, _ := strconv.Atoi(os.Getenv("PG_PORT"))
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		os.Getenv("PG_HOST"), port, os.Getenv("PG_USER"), os.Getenv("PG_PASS"), os.Getenv("PG_DB_NAME"))

	dimension, _ := strconv.Atoi(os.Getenv("EMBED_DIMENSION"))
	pool, err := store.NewPostgresStore(ctx, connStr, dimension)
	if err != nil {
		log.Fatal("error to connect to Postgres database", err)
		return
	}
	s.store = pool

	if err := pool.Init(ctx); err != nil {
		log.Fatal("error to create tables", err)
		return
	}

	embedder := model.NewSidecarEmbedder(os.Getenv("EMBED_URL"), dimension)

	var reranker model.RerankerInterface
	if url := os.Getenv("RERANK_URL"); url != "" {
		reranker = model.NewSidecarReranker(url)
	}

	var builder *graph.Builder
	if url := os.Getenv("ENTITIES_URL"); url != "" {
		builder = graph.NewBuilder(pool, model.NewSidecarExtractor(url))
	}

	batchSize, _ := strconv.Atoi(os.Getenv("EMBED_BATCH_SIZE"))
	chunkCfg := chunker.DefaultConfig()
	if v, err := strconv.Atoi(os.Getenv("CHUNK_MAX_TOKENS")); err == nil && v > 0 {
		chunkCfg.MaxTokens = v
	}
	if v, err := strconv.Atoi(os.Getenv("CHUNK_OVERLAP")); err == nil && v > 0 {
		chunkCfg.OverlapTokens = v
	}

	ttl := hierarchy.DefaultWorkspaceTTL
	if v, err := strconv.Atoi(os.Getenv("WORKSPACE_TTL_HOURS")); err == nil && v > 0 {
		ttl = time.Duration(v) * time.Hour
	}

	var (
		app = fiber.New(config)

		checkHandler     = api.NewCheckHandler()
		searchHandler    = api.NewSearchHandler(search.NewRetriever(pool, embedder, reranker), graph.NewRetriever(pool), pool)
		documentHandler  = api.NewDocumentHandler(ingest.NewService(pool, embedder, builder, chunkCfg, batchSize), hierarchy.NewRetriever(pool, embedder))
		workspaceHandler = api.NewWorkspaceHandler(hierarchy.NewWorkspace(pool, ttl))

		check = app.Group("/check")
		apiv1 = app.Group("/api/v1")
	)
	s.app = app

	check.Get("/healthy", checkHandler.HandleHealthy)

	apiv1.Post("/search", searchHandler.HandleSearch)
	apiv1.Post("/search/graph", searchHandler.HandleGraphSearch)
	apiv1.Post("/chunks", searchHandler.HandleChunks)

	apiv1.Post("/documents", documentHandler.HandleIngest)
	apiv1.Get("/documents/:id/overview", documentHandler.HandleOverview)
	apiv1.Get("/documents/:id/tree", documentHandler.HandleTree)
	apiv1.Get("/documents/:id/structure/:path", documentHandler.HandleStructureByPath)
	apiv1.Post("/documents/:id/sections", documentHandler.HandleSections)
	apiv1.Post("/documents/:id/semantic-search", documentHandler.HandleSemanticSearch)

	apiv1.Post("/workspace/results", workspaceHandler.HandleStore)
	apiv1.Get("/workspace/results/:id/children", workspaceHandler.HandleChildren)
	apiv1.Get("/workspace/sessions/:id", workspaceHandler.HandleSession)
	apiv1.Post("/workspace/sweep", workspaceHandler.HandleSweep)

	if err := app.Listen(s.listenAddr); err != nil {
		s.logger.Error("error to start server", "error", err.Error())
		return
	}
}
