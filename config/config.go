// Package config builds the immutable runtime configuration from defaults,
// a .env file, an optional TOML file and the process environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"

	BackendQdrant   = "qdrant"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"

	StrategyMultiplicative = "multiplicative"
	StrategyAdditive       = "additive"
)

type Config struct {
	Store      StoreConfig     `toml:"store"`
	Embeddings EmbeddingConfig `toml:"embeddings"`
	LLM        LLMConfig       `toml:"llm"`
	Chunking   ChunkingConfig  `toml:"chunking"`
	Ingest     IngestConfig    `toml:"ingest"`
	Search     SearchConfig    `toml:"search"`
	Neo4j      Neo4jConfig     `toml:"neo4j"`

	GeminiAPIKey  string `toml:"gemini_api_key"`
	OpenAIAPIKey  string `toml:"openai_api_key"`
	OpenAIBaseURL string `toml:"openai_base_url"`
	OllamaHost    string `toml:"ollama_host"`

	HTTPAddr string `toml:"http_addr"`
	LogFile  string `toml:"log_file"`
}

type StoreConfig struct {
	Backend     string `toml:"backend"`
	URL         string `toml:"url"`
	APIKey      string `toml:"api_key"`
	Collection  string `toml:"collection"`
	PostgresDSN string `toml:"postgres_dsn"`
	SQLitePath  string `toml:"sqlite_path"`
}

type EmbeddingConfig struct {
	Provider  string `toml:"provider"`
	Model     string `toml:"model"`
	Dimension int    `toml:"dimension"`
}

type LLMConfig struct {
	Provider        string  `toml:"provider"`
	Model           string  `toml:"model"`
	Temperature     float64 `toml:"temperature"`
	TopP            float64 `toml:"top_p"`
	TopK            int     `toml:"top_k"`
	MaxOutputTokens int     `toml:"max_output_tokens"`
}

type ChunkingConfig struct {
	TargetSize      int     `toml:"target_size"`
	OverlapFraction float64 `toml:"overlap_fraction"`
}

type IngestConfig struct {
	DocsPath     string   `toml:"docs_path"`
	MetadataFile string   `toml:"metadata_file"`
	SourceLabel  string   `toml:"source_label"`
	BatchSize    int      `toml:"batch_size"`
	EmbedDelay   Duration `toml:"embed_delay"`
	UploadDelay  Duration `toml:"upload_delay"`
}

type SearchConfig struct {
	ScoreFloor      float64 `toml:"score_floor"`
	CandidateFactor int     `toml:"candidate_factor"`
	BoostStrategy   string  `toml:"boost_strategy"`
}

type Neo4jConfig struct {
	URI      string `toml:"uri"`
	User     string `toml:"username"`
	Password string `toml:"password"`
}

// Enabled reports whether a graph database was configured.
func (c Neo4jConfig) Enabled() bool {
	return strings.TrimSpace(c.URI) != ""
}

// Default returns the configuration used when nothing else is supplied.
func Default() Config {
	return Config{
		Store: StoreConfig{
			Backend:    BackendQdrant,
			Collection: "document_collection",
		},
		Embeddings: EmbeddingConfig{
			Provider:  ProviderGemini,
			Dimension: 768,
		},
		LLM: LLMConfig{
			Provider:        ProviderGemini,
			Temperature:     0.2,
			TopP:            0.8,
			TopK:            40,
			MaxOutputTokens: 1024,
		},
		Chunking: ChunkingConfig{
			TargetSize:      1000,
			OverlapFraction: 0.2,
		},
		Ingest: IngestConfig{
			DocsPath:    "./docs",
			SourceLabel: "Documents",
			BatchSize:   50,
			EmbedDelay:  Duration{500 * time.Millisecond},
			UploadDelay: Duration{time.Second},
		},
		Search: SearchConfig{
			ScoreFloor:      0.1,
			CandidateFactor: 3,
			BoostStrategy:   StrategyMultiplicative,
		},
		OllamaHost: "http://localhost:11434",
		HTTPAddr:   ":8080",
	}
}

// Load layers .env, the TOML file at path and the environment over the
// defaults. An empty path falls back to KB_CONFIG; a missing file is only an
// error when the path was given explicitly.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = os.Getenv("KB_CONFIG")
	}
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			if explicit || !errors.Is(err, fs.ErrNotExist) {
				return Config{}, err
			}
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Store.Backend, "VECTOR_STORE")
	setString(&cfg.Store.URL, "QDRANT_URL")
	setString(&cfg.Store.APIKey, "QDRANT_API_KEY")
	setString(&cfg.Store.Collection, "COLLECTION_NAME")
	setString(&cfg.Store.PostgresDSN, "POSTGRES_DSN")
	setString(&cfg.Store.SQLitePath, "SQLITE_PATH")

	setString(&cfg.Embeddings.Provider, "EMBEDDING_PROVIDER")
	setString(&cfg.Embeddings.Model, "EMBEDDING_MODEL")

	setString(&cfg.LLM.Provider, "LLM_PROVIDER")
	setString(&cfg.LLM.Model, "LLM_MODEL")

	setString(&cfg.Ingest.DocsPath, "DOCS_PATH")
	setString(&cfg.Ingest.MetadataFile, "METADATA_FILE")
	setString(&cfg.Ingest.SourceLabel, "SOURCE_LABEL")
	setString(&cfg.Search.BoostStrategy, "BOOST_STRATEGY")

	setString(&cfg.Neo4j.URI, "NEO4J_URI")
	setString(&cfg.Neo4j.User, "NEO4J_USERNAME")
	setString(&cfg.Neo4j.Password, "NEO4J_PASSWORD")

	setString(&cfg.GeminiAPIKey, "GEMINI_API_KEY")
	setString(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(&cfg.OpenAIBaseURL, "OPENAI_BASE_URL")
	setString(&cfg.OllamaHost, "OLLAMA_HOST")
	setString(&cfg.HTTPAddr, "HTTP_ADDR")
	setString(&cfg.LogFile, "LOG_FILE")

	var errs []error
	errs = append(errs,
		setInt(&cfg.Embeddings.Dimension, "VECTOR_SIZE"),
		setInt(&cfg.Chunking.TargetSize, "CHUNK_SIZE"),
		setFloat(&cfg.Chunking.OverlapFraction, "CHUNK_OVERLAP"),
		setInt(&cfg.Ingest.BatchSize, "BATCH_SIZE"),
		setDuration(&cfg.Ingest.EmbedDelay, "EMBED_DELAY"),
		setDuration(&cfg.Ingest.UploadDelay, "UPLOAD_DELAY"),
		setFloat(&cfg.Search.ScoreFloor, "SCORE_FLOOR"),
		setInt(&cfg.Search.CandidateFactor, "CANDIDATE_FACTOR"),
		setFloat(&cfg.LLM.Temperature, "LLM_TEMPERATURE"),
		setFloat(&cfg.LLM.TopP, "LLM_TOP_P"),
		setInt(&cfg.LLM.TopK, "LLM_TOP_K"),
		setInt(&cfg.LLM.MaxOutputTokens, "LLM_MAX_OUTPUT_TOKENS"),
	)
	return errors.Join(errs...)
}

func lookup(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	value = strings.TrimSpace(value)
	return value, ok && value != ""
}

func setString(dst *string, key string) {
	if value, ok := lookup(key); ok {
		*dst = value
	}
}

func setInt(dst *int, key string) error {
	value, ok := lookup(key)
	if !ok {
		return nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = parsed
	return nil
}

func setFloat(dst *float64, key string) error {
	value, ok := lookup(key)
	if !ok {
		return nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = parsed
	return nil
}

func setDuration(dst *Duration, key string) error {
	value, ok := lookup(key)
	if !ok {
		return nil
	}
	if err := dst.UnmarshalText([]byte(value)); err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	return nil
}

// Duration accepts Go durations ("500ms") and bare seconds ("0.5").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	value := strings.TrimSpace(string(text))
	if parsed, err := time.ParseDuration(value); err == nil {
		d.Duration = parsed
		return nil
	}
	seconds, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("%q is not a duration", value)
	}
	d.Duration = time.Duration(seconds * float64(time.Second))
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}
