package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL  string
	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string

	AIAPIKey    string
	EmbedModel  string
	EmbedDim    int
	VisionModel string

	WeaviateHost   string
	WeaviateScheme string
	WeaviateClass  string

	NSQDHost        string
	ProgressTopic   string
	InvalidateTopic string

	// MasterKey is the root secret the encryption gate derives per-owner
	// keys from (server-managed mode). Hex or raw; must be non-empty unless
	// every upload is zero-knowledge.
	MasterKey string

	ChunkMaxChars      int
	ChunkOverlap       int
	EmbedBatchSize     int
	MinExtractChars    int
	MinZKPlaintext     int
	SingleChunkWords   int
	VerifyThreshold    float64
	PipelineTimeoutMin int
	Workers            int

	Port string
}

// LoadConfig loads the environment variables and returns config.
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-2"),
		BucketName:   getEnv("BUCKET_NAME", "krypta-docs"),

		AIAPIKey:    getEnv("GEMINI_API_KEY", ""),
		EmbedModel:  getEnv("EMBED_MODEL", "text-embedding-004"),
		EmbedDim:    getEnvInt("EMBED_DIM", 768),
		VisionModel: getEnv("VISION_MODEL", "gemini-1.5-flash"),

		WeaviateHost:   getEnv("WEAVIATE_HOST", "localhost:8080"),
		WeaviateScheme: getEnv("WEAVIATE_SCHEME", "http"),
		WeaviateClass:  getEnv("WEAVIATE_CLASS", "DocumentChunk"),

		NSQDHost:        getEnv("NSQD_HOST", ""),
		ProgressTopic:   getEnv("PROGRESS_TOPIC", "doc.progress"),
		InvalidateTopic: getEnv("INVALIDATE_TOPIC", "cache.invalidate"),

		MasterKey: getEnv("MASTER_KEY", ""),

		ChunkMaxChars:      getEnvInt("CHUNK_MAX_CHARS", 1200),
		ChunkOverlap:       getEnvInt("CHUNK_OVERLAP", 240),
		EmbedBatchSize:     getEnvInt("EMBED_BATCH_SIZE", 16),
		MinExtractChars:    getEnvInt("MIN_EXTRACT_CHARS", 20),
		MinZKPlaintext:     getEnvInt("MIN_ZK_PLAINTEXT", 50),
		SingleChunkWords:   getEnvInt("SINGLE_CHUNK_WORDS", 100),
		VerifyThreshold:    getEnvFloat("VERIFY_THRESHOLD", 0.95),
		PipelineTimeoutMin: getEnvInt("PIPELINE_TIMEOUT_MIN", 10),
		Workers:            getEnvInt("WORKERS", 4),

		Port: getEnv("PORT", "8080"),
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}

	return cfg
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("WARN: %s=%q not a float, using default %v", key, v, def)
		return def
	}
	return f
}
