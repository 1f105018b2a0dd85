// Package config loads lexserve's configuration from environment
// variables (optionally backed by a .env file), following the same
// "Overload then TrimSpace(os.Getenv(...))" idiom used throughout this
// codebase's origin.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

func lookupEnv(key string) (string, bool) { return os.LookupEnv(key) }

// ChunkingConfig mirrors documents.ChunkingConfig without importing it,
// so config stays a leaf package; callers convert with documents.ChunkingConfig{...}.
type ChunkingConfig struct {
	MinTokens    int
	TargetTokens int
	MaxTokens    int
	OverlapRatio float64
}

// ObsConfig configures the OpenTelemetry exporters.
type ObsConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLP           string
}

// VectorStoreConfig configures the Qdrant connection.
type VectorStoreConfig struct {
	Host   string
	Port   int
	DBPath string
	APIKey string
}

// MCPConfig tunes the MCP server's defaults.
type MCPConfig struct {
	DefaultSearchLimit   int
	MaxSearchLimit       int
	LogLevel             string
	SnippetMaxChars      int
	FullDocHintThreshold float64
	FullDocHintMaxHits   int
	ShutdownGrace        time.Duration
}

// Config is the fully-resolved application configuration, assembled
// from environment variables by Load.
type Config struct {
	OpenAIAPIKey          string
	AnthropicAPIKey       string
	CourtListenerAPIToken string

	OpinionChunking ChunkingConfig
	OrderChunking   ChunkingConfig

	EmbeddingBaseURL string
	EmbeddingPath    string
	EmbeddingModel   string
	EmbeddingDim     int
	EmbeddingBatch   int

	EnricherModel string

	CourtListenerBaseURL   string
	FederalRegisterBaseURL string

	VectorStore VectorStoreConfig
	MCP         MCPConfig

	ProgressDBDir string

	Obs ObsConfig

	LogPath  string
	LogLevel string

	StaleClaimAfter time.Duration
	WorkerPoolSize  int
	BatchSize       int
}

// Load reads configuration from the process environment, first
// overlaying a .env file in the working directory if present. Missing
// values fall back to documented defaults; required credentials are
// validated by callers that need them (ConfigError per the error
// taxonomy), not here, since e.g. `info collections` needs no API key.
func Load() Config {
	_ = godotenv.Overload()

	cfg := Config{
		OpenAIAPIKey:          strings.TrimSpace(getenv("OPENAI_API_KEY", "")),
		AnthropicAPIKey:       strings.TrimSpace(getenv("ANTHROPIC_API_KEY", "")),
		CourtListenerAPIToken: strings.TrimSpace(getenv("COURT_LISTENER_API_TOKEN", "")),

		OpinionChunking: ChunkingConfig{
			MinTokens:    getenvInt("RAG_OPINION_MIN_TOKENS", 500),
			TargetTokens: getenvInt("RAG_OPINION_TARGET_TOKENS", 600),
			MaxTokens:    getenvInt("RAG_OPINION_MAX_TOKENS", 800),
			OverlapRatio: getenvFloat("RAG_OPINION_OVERLAP_RATIO", 0.15),
		},
		OrderChunking: ChunkingConfig{
			MinTokens:    getenvInt("RAG_ORDER_MIN_TOKENS", 240),
			TargetTokens: getenvInt("RAG_ORDER_TARGET_TOKENS", 340),
			MaxTokens:    getenvInt("RAG_ORDER_MAX_TOKENS", 400),
			OverlapRatio: getenvFloat("RAG_ORDER_OVERLAP_RATIO", 0.10),
		},

		EmbeddingBaseURL: strings.TrimSpace(getenv("EMBEDDING_BASE_URL", "https://api.openai.com")),
		EmbeddingPath:    strings.TrimSpace(getenv("EMBEDDING_PATH", "/v1/embeddings")),
		EmbeddingModel:   strings.TrimSpace(getenv("EMBEDDING_MODEL", "text-embedding-3-small")),
		EmbeddingDim:     getenvInt("EMBEDDING_DIM", 1536),
		EmbeddingBatch:   getenvInt("EMBEDDING_BATCH_SIZE", 100),

		EnricherModel: strings.TrimSpace(getenv("ENRICHER_MODEL", "")),

		CourtListenerBaseURL:   strings.TrimSpace(getenv("COURT_LISTENER_BASE_URL", "https://www.courtlistener.com")),
		FederalRegisterBaseURL: strings.TrimSpace(getenv("FEDERAL_REGISTER_BASE_URL", "https://www.federalregister.gov")),

		VectorStore: VectorStoreConfig{
			Host:   strings.TrimSpace(getenv("QDRANT_HOST", "localhost")),
			Port:   getenvInt("QDRANT_PORT", 6334),
			DBPath: strings.TrimSpace(getenv("QDRANT_DB_PATH", "")),
			APIKey: strings.TrimSpace(getenv("QDRANT_API_KEY", "")),
		},
		MCP: MCPConfig{
			DefaultSearchLimit:   getenvInt("MCP_DEFAULT_SEARCH_LIMIT", 10),
			MaxSearchLimit:       getenvInt("MCP_MAX_SEARCH_LIMIT", 50),
			LogLevel:             strings.TrimSpace(getenv("MCP_LOG_LEVEL", "info")),
			SnippetMaxChars:      getenvInt("MCP_SNIPPET_MAX_CHARS", 2000),
			FullDocHintThreshold: getenvFloat("MCP_FULL_DOC_HINT_THRESHOLD", 0.4),
			FullDocHintMaxHits:   getenvInt("MCP_FULL_DOC_HINT_MAX_HITS", 3),
			ShutdownGrace:        getenvDuration("MCP_SHUTDOWN_GRACE_SECONDS", 10*time.Second),
		},

		ProgressDBDir: strings.TrimSpace(getenv("PROGRESS_DB_DIR", "./data/progress")),

		Obs: ObsConfig{
			ServiceName:    strings.TrimSpace(getenv("OTEL_SERVICE_NAME", "lexserve")),
			ServiceVersion: strings.TrimSpace(getenv("OTEL_SERVICE_VERSION", "dev")),
			Environment:    strings.TrimSpace(getenv("OTEL_ENVIRONMENT", "dev")),
			OTLP:           strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")),
		},

		LogPath:  strings.TrimSpace(getenv("LOG_PATH", "")),
		LogLevel: strings.TrimSpace(getenv("LOG_LEVEL", "info")),

		StaleClaimAfter: getenvDuration("RAG_STALE_CLAIM_SECONDS", 10*time.Minute),
		WorkerPoolSize:  getenvInt("RAG_WORKER_POOL_SIZE", 4),
		BatchSize:       getenvInt("RAG_BATCH_SIZE", 20),
	}
	return cfg
}

// VectorStoreDSN builds the DSN vectorstore.Dial expects, preferring an
// embedded on-disk path (QDRANT_DB_PATH) if set, else a host:port target.
func (c Config) VectorStoreDSN() string {
	if c.VectorStore.DBPath != "" {
		return "file://" + c.VectorStore.DBPath
	}
	dsn := "http://" + c.VectorStore.Host + ":" + strconv.Itoa(c.VectorStore.Port)
	if c.VectorStore.APIKey != "" {
		dsn += "?api_key=" + c.VectorStore.APIKey
	}
	return dsn
}

func getenv(key, fallback string) string {
	if v, ok := lookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v, ok := lookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return n
}

func getenvFloat(key string, fallback float64) float64 {
	v, ok := lookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v, ok := lookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return time.Duration(secs) * time.Second
}
