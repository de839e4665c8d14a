package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

type Config struct {
	Run        RunConfig
	Local      LocalConfig
	S3         S3Config
	MinIO      MinIOConfig
	Database   DatabaseConfig
	Valkey     ValkeyConfig
	Neo4j      Neo4jConfig
	Bedrock    BedrockConfig
	OpenRouter OpenRouterConfig
	Chunk      ChunkConfig
}

// RunConfig holds the run-level options consumed by the orchestrator.
type RunConfig struct {
	WorkDir          string
	Source           string // source connector name
	Destination      string // destination connector name
	Reprocess        bool   // force-recompute all stages
	ReDownload       bool   // force-recompute from the download stage onward
	DownloadWorkers  int
	PartitionWorkers int
	ChunkWorkers     int
	EmbedWorkers     int
	StageWorkers     int
	UploadWorkers    int
	UploadBatchSize  int
	FailureThreshold int // per-stage failed-artifact count that aborts the run
	Verbose          bool
}

// LocalConfig configures the local filesystem source and destination.
type LocalConfig struct {
	InputDir  string
	OutputDir string
	Recursive bool
}

type S3Config struct {
	Region   string // S3_REGION
	Bucket   string // S3_BUCKET
	Prefix   string // S3_PREFIX (optional key prefix)
	Endpoint string // S3_ENDPOINT (for MinIO/LocalStack compatibility)
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey Secret
	Bucket    string
	UseSSL    bool
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password Secret
	Name     string
	SSLMode  string
	Table    string
	MaxConns int32
	MinConns int32
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password.Reveal(), d.Host, d.Port, d.Name, d.SSLMode)
}

type ValkeyConfig struct {
	Addr      string
	Password  Secret
	DB        int
	KeyPrefix string
}

type Neo4jConfig struct {
	URI      string
	User     string
	Password Secret
}

type BedrockConfig struct {
	Region  string
	ModelID string
}

type OpenRouterConfig struct {
	APIKey     Secret
	BaseURL    string
	Model      string
	Dimensions int
}

// ChunkConfig configures the element chunker; a MaxCharacters of 0 disables
// the chunk stage.
type ChunkConfig struct {
	MaxCharacters int
	Overlap       int
}

func Load() (*Config, error) {
	cfg := &Config{
		Run: RunConfig{
			WorkDir:          getEnv("INGEST_WORK_DIR", defaultWorkDir()),
			Source:           getEnv("INGEST_SOURCE", "local"),
			Destination:      getEnv("INGEST_DESTINATION", "local"),
			Reprocess:        getEnvBool("INGEST_REPROCESS", false),
			ReDownload:       getEnvBool("INGEST_RE_DOWNLOAD", false),
			DownloadWorkers:  getEnvInt("INGEST_DOWNLOAD_WORKERS", 8),
			PartitionWorkers: getEnvInt("INGEST_PARTITION_WORKERS", 4),
			ChunkWorkers:     getEnvInt("INGEST_CHUNK_WORKERS", 4),
			EmbedWorkers:     getEnvInt("INGEST_EMBED_WORKERS", 4),
			StageWorkers:     getEnvInt("INGEST_STAGE_WORKERS", 4),
			UploadWorkers:    getEnvInt("INGEST_UPLOAD_WORKERS", 2),
			UploadBatchSize:  getEnvInt("INGEST_UPLOAD_BATCH_SIZE", 50),
			FailureThreshold: getEnvInt("INGEST_FAILURE_THRESHOLD", 0),
			Verbose:          getEnvBool("INGEST_VERBOSE", false),
		},
		Local: LocalConfig{
			InputDir:  getEnv("LOCAL_INPUT_DIR", "."),
			OutputDir: getEnv("LOCAL_OUTPUT_DIR", "output"),
			Recursive: getEnvBool("LOCAL_RECURSIVE", true),
		},
		S3: S3Config{
			Region:   getEnv("S3_REGION", ""),
			Bucket:   getEnv("S3_BUCKET", ""),
			Prefix:   getEnv("S3_PREFIX", ""),
			Endpoint: getEnv("S3_ENDPOINT", ""),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: Secret(getEnv("MINIO_SECRET_KEY", "")),
			Bucket:    getEnv("MINIO_BUCKET", "ingest"),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "ingest"),
			Password: Secret(getEnv("DB_PASSWORD", "ingest")),
			Name:     getEnv("DB_NAME", "ingest"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			Table:    getEnv("DB_TABLE", "elements"),
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 10)),
			MinConns: int32(getEnvInt("DB_MIN_CONNS", 2)),
		},
		Valkey: ValkeyConfig{
			Addr:      getEnv("VALKEY_ADDR", "localhost:6379"),
			Password:  Secret(getEnv("VALKEY_PASSWORD", "")),
			DB:        getEnvInt("VALKEY_DB", 0),
			KeyPrefix: getEnv("VALKEY_KEY_PREFIX", "ingest:"),
		},
		Neo4j: Neo4jConfig{
			URI:      getEnv("NEO4J_URI", "bolt://localhost:7687"),
			User:     getEnv("NEO4J_USER", "neo4j"),
			Password: Secret(getEnv("NEO4J_PASSWORD", "")),
		},
		Bedrock: BedrockConfig{
			Region:  getEnv("BEDROCK_REGION", ""),
			ModelID: getEnv("BEDROCK_MODEL_ID", "cohere.embed-english-v4"),
		},
		OpenRouter: OpenRouterConfig{
			APIKey:     Secret(getEnv("OPENROUTER_API_KEY", "")),
			BaseURL:    getEnv("OPENROUTER_BASE_URL", ""),
			Model:      getEnv("OPENROUTER_MODEL", ""),
			Dimensions: getEnvInt("OPENROUTER_DIMENSIONS", 0),
		},
		Chunk: ChunkConfig{
			MaxCharacters: getEnvInt("CHUNK_MAX_CHARACTERS", 0),
			Overlap:       getEnvInt("CHUNK_OVERLAP", 0),
		},
	}
	return cfg, nil
}

func defaultWorkDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ingest"
	}
	return filepath.Join(home, ".cache", "corpusworks-ingest")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
