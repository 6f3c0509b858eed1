package serve

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/adrianwedd/ltm-service/internal/config"
	ltmmemory "github.com/adrianwedd/ltm-service/internal/memory"
	"github.com/adrianwedd/ltm-service/internal/plugin/embed/cached"
	"github.com/adrianwedd/ltm-service/internal/plugin/route/evaluator"
	"github.com/adrianwedd/ltm-service/internal/plugin/route/memories"
	"github.com/adrianwedd/ltm-service/internal/plugin/route/provenance"
	"github.com/adrianwedd/ltm-service/internal/plugin/route/semantic"
	"github.com/adrianwedd/ltm-service/internal/plugin/route/skills"
	routesystem "github.com/adrianwedd/ltm-service/internal/plugin/route/system"
	"github.com/adrianwedd/ltm-service/internal/plugin/route/temporal"
	registryembed "github.com/adrianwedd/ltm-service/internal/registry/embed"
	registrygraph "github.com/adrianwedd/ltm-service/internal/registry/graph"
	registrykv "github.com/adrianwedd/ltm-service/internal/registry/kv"
	registrymigrate "github.com/adrianwedd/ltm-service/internal/registry/migrate"
	registryroute "github.com/adrianwedd/ltm-service/internal/registry/route"
	registryvector "github.com/adrianwedd/ltm-service/internal/registry/vector"
	"github.com/adrianwedd/ltm-service/internal/security"
	"github.com/adrianwedd/ltm-service/internal/service"
)

// Server holds the running service and its subsystems.
type Server struct {
	Config *config.Config
	Router *gin.Engine

	httpServer       *http.Server
	kv               registrykv.KeyValueStore
	forgetting       *service.ForgettingService
	cancelBackground context.CancelFunc
}

// BuildServer wires adapters, modules, middleware, and routes. Split from
// StartServer so tests can exercise the full HTTP surface without a network
// listener.
func BuildServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	// Embedder behind the shared LRU cache and retry envelope.
	embedLoader, err := registryembed.Select(cfg.EmbedType)
	if err != nil {
		return nil, err
	}
	baseEmbedder, err := embedLoader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	embedder, err := cached.Wrap(baseEmbedder, cfg.EmbedCacheSize)
	if err != nil {
		return nil, err
	}

	// Stores.
	vectorLoader, err := registryvector.Select(cfg.VectorType)
	if err != nil {
		return nil, err
	}
	vectors, err := vectorLoader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}

	graphType := cfg.ResolvedGraphType()
	graphLoader, err := registrygraph.Select(graphType)
	if err != nil {
		return nil, err
	}
	graph, err := graphLoader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize graph store: %w", err)
	}
	if graphType == "memory" {
		log.Warn("Graph store not configured; using in-memory fallback")
	}

	kvLoader, err := registrykv.Select(cfg.KVType)
	if err != nil {
		return nil, err
	}
	kv, err := kvLoader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize key-value store: %w", err)
	}

	// Modules.
	tracker := ltmmemory.NewProvenanceTracker(kv)
	modules := memories.Modules{
		Episodic:   ltmmemory.NewEpisodicMemory(vectors, embedder, tracker),
		Semantic:   ltmmemory.NewSemanticMemory(graph, tracker),
		Temporal:   ltmmemory.NewTemporalMemory(graph, tracker),
		Procedural: ltmmemory.NewProceduralMemory(vectors, embedder, kv, tracker),
		Evaluator:  ltmmemory.NewEvaluatorMemory(kv, tracker),
	}
	modules.Episodic.SetBackendTimeout(cfg.BackendTimeout())
	modules.Semantic.SetBackendTimeout(cfg.BackendTimeout())
	modules.Temporal.SetBackendTimeout(cfg.BackendTimeout())
	modules.Procedural.SetBackendTimeout(cfg.BackendTimeout())
	engine := ltmmemory.NewForgettingEngine(modules.Episodic, ltmmemory.ForgettingPolicy{
		TTL:       cfg.TTL(),
		Alpha:     cfg.ForgetAlpha,
		Beta:      cfg.ForgetBeta,
		Gamma:     cfg.ForgetGamma,
		Threshold: cfg.ForgetThreshold,
	})

	// Router.
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.ManagementAccessLog {
		router.Use(security.AccessLogMiddleware())
	} else {
		router.Use(security.AccessLogMiddleware("/health", "/ready", "/metrics"))
	}
	router.Use(security.MetricsMiddleware())
	router.Use(security.DeadlineMiddleware(cfg.RequestTimeout()))
	router.Use(maxBodySizeMiddleware(cfg.MaxBodySize))

	for _, loader := range registryroute.Loaders() {
		if err := loader(router); err != nil {
			return nil, fmt.Errorf("failed to load routes: %w", err)
		}
	}
	memories.MountRoutes(router, modules)
	semantic.MountRoutes(router, modules.Semantic)
	temporal.MountRoutes(router, modules.Temporal)
	skills.MountRoutes(router, modules.Procedural)
	evaluator.MountRoutes(router, modules.Evaluator)
	provenance.MountRoutes(router, tracker)

	return &Server{
		Config:     cfg,
		Router:     router,
		kv:         kv,
		forgetting: service.NewForgettingService(engine, time.Duration(cfg.ForgetIntervalSeconds)*time.Second),
	}, nil
}

// StartServer initializes all subsystems and starts the HTTP listener plus
// the background forgetting ticker.
func StartServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	log.Info("Starting LTM service",
		"port", cfg.Port,
		"vector", cfg.VectorType,
		"graph", cfg.ResolvedGraphType(),
		"kv", cfg.KVType,
		"embedding", cfg.EmbedType,
	)

	metricsLabels, err := security.ParseMetricsLabels(cfg.MetricsLabels)
	if err != nil {
		return nil, fmt.Errorf("invalid --metrics-labels: %w", err)
	}
	security.InitMetrics(metricsLabels)

	if err := registrymigrate.RunAll(ctx); err != nil {
		return nil, fmt.Errorf("migrations failed: %w", err)
	}

	server, err := BuildServer(ctx, cfg)
	if err != nil {
		return nil, err
	}

	backgroundCtx, cancel := context.WithCancel(context.Background())
	server.cancelBackground = cancel
	go server.forgetting.Start(backgroundCtx)

	server.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           server.Router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server terminated", "err", err)
		}
	}()

	routesystem.MarkReady()
	return server, nil
}

// Shutdown drains in-flight requests and releases resources.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cancelBackground != nil {
		s.cancelBackground()
	}
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	if s.kv != nil {
		if closeErr := s.kv.Close(); err == nil {
			err = closeErr
		}
	}
	return err
}
