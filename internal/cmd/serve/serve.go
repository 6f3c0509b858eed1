package serve

import (
	"context"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v3"

	"github.com/adrianwedd/ltm-service/internal/config"
	"github.com/adrianwedd/ltm-service/internal/model"

	// Import all plugins to trigger init() registration
	_ "github.com/adrianwedd/ltm-service/internal/plugin/embed/local"
	_ "github.com/adrianwedd/ltm-service/internal/plugin/embed/openai"
	_ "github.com/adrianwedd/ltm-service/internal/plugin/graph/memory"
	_ "github.com/adrianwedd/ltm-service/internal/plugin/graph/neo4j"
	_ "github.com/adrianwedd/ltm-service/internal/plugin/kv/badger"
	_ "github.com/adrianwedd/ltm-service/internal/plugin/kv/memory"
	_ "github.com/adrianwedd/ltm-service/internal/plugin/kv/redis"
	_ "github.com/adrianwedd/ltm-service/internal/plugin/route/system"
	_ "github.com/adrianwedd/ltm-service/internal/plugin/vector/memory"
	_ "github.com/adrianwedd/ltm-service/internal/plugin/vector/qdrant"
)

// Command returns the serve sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	return &cli.Command{
		Name:   "serve",
		Usage:  "Start the LTM service HTTP server",
		Flags:  flags(&cfg),
		Action: func(ctx context.Context, _ *cli.Command) error {
			return run(config.WithContext(ctx, &cfg), &cfg)
		},
	}
}

func flags(cfg *config.Config) []cli.Flag {
	return []cli.Flag{

		// ── Server ────────────────────────────────────────────────
		&cli.IntFlag{
			Name:        "port",
			Category:    "Server:",
			Sources:     cli.EnvVars("LTM_PORT"),
			Destination: &cfg.Port,
			Value:       cfg.Port,
			Usage:       "HTTP server port",
		},
		&cli.IntFlag{
			Name:        "request-timeout-seconds",
			Category:    "Server:",
			Sources:     cli.EnvVars("LTM_REQUEST_TIMEOUT_SECONDS"),
			Destination: &cfg.RequestTimeoutSeconds,
			Value:       cfg.RequestTimeoutSeconds,
			Usage:       "Server-wide maximum request deadline in seconds",
		},
		&cli.IntFlag{
			Name:        "backend-timeout-seconds",
			Category:    "Server:",
			Sources:     cli.EnvVars("LTM_BACKEND_TIMEOUT_SECONDS"),
			Destination: &cfg.BackendTimeoutSeconds,
			Value:       cfg.BackendTimeoutSeconds,
			Usage:       "Per-backend-call timeout in seconds",
		},
		&cli.BoolFlag{
			Name:        "management-access-log",
			Category:    "Server:",
			Sources:     cli.EnvVars("LTM_MANAGEMENT_ACCESS_LOG"),
			Destination: &cfg.ManagementAccessLog,
			Usage:       "Enable access logging for /health, /ready, /metrics",
		},
		&cli.StringFlag{
			Name:        "metrics-labels",
			Category:    "Server:",
			Sources:     cli.EnvVars("LTM_METRICS_LABELS"),
			Destination: &cfg.MetricsLabels,
			Usage:       "Comma-separated key=value constant labels for all metrics",
		},

		// ── Forgetting ────────────────────────────────────────────
		&cli.FloatFlag{
			Name:        "ttl-days",
			Category:    "Forgetting:",
			Sources:     cli.EnvVars("LTM_TTL_DAYS"),
			Destination: &cfg.TTLDays,
			Value:       cfg.TTLDays,
			Usage:       "Access-age threshold in days for forgetting candidates",
		},
		&cli.FloatFlag{
			Name:        "forget-alpha",
			Category:    "Forgetting:",
			Sources:     cli.EnvVars("LTM_FORGET_ALPHA"),
			Destination: &cfg.ForgetAlpha,
			Value:       cfg.ForgetAlpha,
			Usage:       "Utility weight for record score",
		},
		&cli.FloatFlag{
			Name:        "forget-beta",
			Category:    "Forgetting:",
			Sources:     cli.EnvVars("LTM_FORGET_BETA"),
			Destination: &cfg.ForgetBeta,
			Value:       cfg.ForgetBeta,
			Usage:       "Utility weight for access frequency",
		},
		&cli.FloatFlag{
			Name:        "forget-gamma",
			Category:    "Forgetting:",
			Sources:     cli.EnvVars("LTM_FORGET_GAMMA"),
			Destination: &cfg.ForgetGamma,
			Value:       cfg.ForgetGamma,
			Usage:       "Utility penalty per day of age",
		},
		&cli.FloatFlag{
			Name:        "forget-threshold",
			Category:    "Forgetting:",
			Sources:     cli.EnvVars("LTM_FORGET_THRESHOLD"),
			Destination: &cfg.ForgetThreshold,
			Value:       cfg.ForgetThreshold,
			Usage:       "Utility threshold below which candidates are removed",
		},
		&cli.IntFlag{
			Name:        "forget-interval-seconds",
			Category:    "Forgetting:",
			Sources:     cli.EnvVars("LTM_FORGET_INTERVAL_SECONDS"),
			Destination: &cfg.ForgetIntervalSeconds,
			Value:       cfg.ForgetIntervalSeconds,
			Usage:       "Seconds between forgetting ticks",
		},

		// ── Embedding ─────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "embed-type",
			Category:    "Embedding:",
			Sources:     cli.EnvVars("LTM_EMBED_TYPE"),
			Destination: &cfg.EmbedType,
			Value:       cfg.EmbedType,
			Usage:       "Embedder backend: local or openai",
		},
		&cli.IntFlag{
			Name:        "embed-cache-size",
			Category:    "Embedding:",
			Sources:     cli.EnvVars("EMBED_CACHE_SIZE"),
			Destination: &cfg.EmbedCacheSize,
			Value:       cfg.EmbedCacheSize,
			Usage:       "Capacity of the shared embedding LRU cache",
		},
		&cli.IntFlag{
			Name:        "embed-dimension",
			Category:    "Embedding:",
			Sources:     cli.EnvVars("LTM_EMBED_DIMENSION"),
			Destination: &cfg.EmbedDimension,
			Usage:       "Embedding dimension for the openai embedder and Qdrant collections; 0 uses the embedder's native dimension (the local embedder always uses 384)",
		},
		&cli.StringFlag{
			Name:        "openai-api-key",
			Category:    "Embedding:",
			Sources:     cli.EnvVars("OPENAI_API_KEY"),
			Destination: &cfg.OpenAIAPIKey,
			Usage:       "API key for the openai embedder",
		},
		&cli.StringFlag{
			Name:        "openai-model",
			Category:    "Embedding:",
			Sources:     cli.EnvVars("OPENAI_MODEL"),
			Destination: &cfg.OpenAIModelName,
			Value:       cfg.OpenAIModelName,
			Usage:       "Embedding model name for the openai embedder",
		},
		&cli.StringFlag{
			Name:        "openai-base-url",
			Category:    "Embedding:",
			Sources:     cli.EnvVars("OPENAI_BASE_URL"),
			Destination: &cfg.OpenAIBaseURL,
			Value:       cfg.OpenAIBaseURL,
			Usage:       "Base URL for the openai embedder",
		},

		// ── Vector store ──────────────────────────────────────────
		&cli.StringFlag{
			Name:        "vector-type",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("LTM_VECTOR_TYPE"),
			Destination: &cfg.VectorType,
			Value:       cfg.VectorType,
			Usage:       "Vector store backend: qdrant or memory",
		},
		&cli.StringFlag{
			Name:        "qdrant-host",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("QDRANT_HOST"),
			Destination: &cfg.QdrantHost,
			Value:       cfg.QdrantHost,
			Usage:       "Qdrant gRPC host",
		},
		&cli.IntFlag{
			Name:        "qdrant-port",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("QDRANT_PORT"),
			Destination: &cfg.QdrantPort,
			Value:       cfg.QdrantPort,
			Usage:       "Qdrant gRPC port",
		},
		&cli.StringFlag{
			Name:        "qdrant-api-key",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("QDRANT_API_KEY"),
			Destination: &cfg.QdrantAPIKey,
			Usage:       "Qdrant API key",
		},
		&cli.BoolFlag{
			Name:        "qdrant-use-tls",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("QDRANT_USE_TLS"),
			Destination: &cfg.QdrantUseTLS,
			Usage:       "Use TLS for the Qdrant connection",
		},
		&cli.StringFlag{
			Name:        "qdrant-collection-prefix",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("QDRANT_COLLECTION_PREFIX"),
			Destination: &cfg.QdrantCollectionPrefix,
			Value:       cfg.QdrantCollectionPrefix,
			Usage:       "Prefix for Qdrant collection names",
		},

		// ── Graph store ───────────────────────────────────────────
		&cli.StringFlag{
			Name:        "graph-type",
			Category:    "Graph Store:",
			Sources:     cli.EnvVars("LTM_GRAPH_TYPE"),
			Destination: &cfg.GraphType,
			Usage:       "Graph store backend: neo4j or memory; defaults from NEO4J_URI presence",
		},
		&cli.StringFlag{
			Name:        "neo4j-uri",
			Category:    "Graph Store:",
			Sources:     cli.EnvVars("NEO4J_URI"),
			Destination: &cfg.Neo4jURI,
			Usage:       "Neo4j bolt URI; absence activates the in-memory fallback",
		},
		&cli.StringFlag{
			Name:        "neo4j-user",
			Category:    "Graph Store:",
			Sources:     cli.EnvVars("NEO4J_USER"),
			Destination: &cfg.Neo4jUser,
			Usage:       "Neo4j username",
		},
		&cli.StringFlag{
			Name:        "neo4j-password",
			Category:    "Graph Store:",
			Sources:     cli.EnvVars("NEO4J_PASSWORD"),
			Destination: &cfg.Neo4jPassword,
			Usage:       "Neo4j password",
		},

		// ── Key-value store ───────────────────────────────────────
		&cli.StringFlag{
			Name:        "kv-type",
			Category:    "Key-Value Store:",
			Sources:     cli.EnvVars("LTM_KV_TYPE"),
			Destination: &cfg.KVType,
			Value:       cfg.KVType,
			Usage:       "Key-value store backend: badger, redis, or memory",
		},
		&cli.StringFlag{
			Name:        "badger-path",
			Category:    "Key-Value Store:",
			Sources:     cli.EnvVars("LTM_BADGER_PATH"),
			Destination: &cfg.BadgerPath,
			Value:       cfg.BadgerPath,
			Usage:       "Filesystem path for the badger backend",
		},
		&cli.StringFlag{
			Name:        "redis-url",
			Category:    "Key-Value Store:",
			Sources:     cli.EnvVars("LTM_REDIS_URL"),
			Destination: &cfg.RedisURL,
			Usage:       "Redis URL for the redis backend",
		},
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	server, err := StartServer(ctx, cfg)
	if err != nil {
		return err
	}

	<-ctx.Done()
	log.Info("Shutting down", "drainTimeout", cfg.DrainTimeoutSeconds)

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.DrainTimeoutSeconds)*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// maxBodySizeMiddleware rejects request bodies above the configured limit.
func maxBodySizeMiddleware(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes > 0 && c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge,
				model.ErrorBody(model.CodeValidation, "request body too large", nil))
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
