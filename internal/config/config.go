package config

import (
	"flag"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	Env         string
	DatabaseURL string
	AI          AIConfig
	Files       FilesConfig
}

type AIConfig struct {
	APIKey     string
	ImageModel string
	TextModel  string
	RPS        float64
	Burst      int
	// Fake swaps the real client for a deterministic stub (offline dev).
	Fake bool
}

type FilesConfig struct {
	Enabled   bool
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	port := flag.String("port", ":8082", "server port")
	flag.Parse()

	if envPort := os.Getenv("PORT"); envPort != "" {
		if strings.HasPrefix(envPort, ":") {
			*port = envPort
		} else {
			*port = ":" + envPort
		}
	}

	env := strings.TrimSpace(os.Getenv("APP_ENV"))
	if env == "" {
		env = "local"
	}

	return &Config{
		Port:        *port,
		Env:         env,
		DatabaseURL: strings.TrimSpace(os.Getenv("IMGGEN_PG_DSN")),
		AI:          loadAIConfig(),
		Files:       loadFilesConfig(env),
	}, nil
}

func loadAIConfig() AIConfig {
	return AIConfig{
		APIKey:     strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		ImageModel: strings.TrimSpace(os.Getenv("GEMINI_IMAGE_MODEL")),
		TextModel:  strings.TrimSpace(os.Getenv("GEMINI_TEXT_MODEL")),
		RPS:        envFloat("AI_RPS", 1),
		Burst:      envInt("AI_BURST", 2),
		Fake:       envBool("AI_FAKE", false),
	}
}

func loadFilesConfig(env string) FilesConfig {
	endpoint := resolveFilesEndpoint(env)
	return FilesConfig{
		Enabled:   endpoint != "",
		Endpoint:  endpoint,
		Region:    firstNonEmpty(strings.TrimSpace(os.Getenv("FILES_S3_REGION")), "us-east-1"),
		AccessKey: firstNonEmpty(strings.TrimSpace(os.Getenv("FILES_S3_ACCESS_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_USER"))),
		SecretKey: firstNonEmpty(strings.TrimSpace(os.Getenv("FILES_S3_SECRET_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_PASSWORD"))),
		Bucket:    firstNonEmpty(strings.TrimSpace(os.Getenv("FILES_S3_BUCKET")), "imggen-files"),
		UseSSL:    resolveFilesUseSSL(env),
	}
}

func resolveFilesEndpoint(env string) string {
	if strings.EqualFold(strings.TrimSpace(env), "local") {
		return strings.TrimSpace(os.Getenv("FILES_MINIO_ENDPOINT"))
	}
	return strings.TrimSpace(os.Getenv("FILES_S3_ENDPOINT"))
}

func resolveFilesUseSSL(env string) bool {
	if strings.EqualFold(strings.TrimSpace(env), "local") {
		return false
	}
	raw := strings.TrimSpace(os.Getenv("FILES_S3_USE_SSL"))
	if raw == "" {
		return true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return true
	}
	return v
}

// CanUseS3 reports whether the S3 settings are complete enough to dial.
func (c FilesConfig) CanUseS3() bool {
	return c.Enabled && c.Endpoint != "" && c.AccessKey != "" && c.SecretKey != "" && c.Bucket != ""
}

func envFloat(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func envInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func envBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
