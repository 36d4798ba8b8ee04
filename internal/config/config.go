package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config centraliza a configuração carregada do ambiente.
type Config struct {
	Port            int
	GeminiAPIKey    string
	GeminiModel     string
	PromptFile      string
	AllowOrigins    []string
	TempDir         string
	MaxUploadBytes  int64
	UpstreamTimeout time.Duration
}

var defaultOrigins = []string{"http://localhost", "http://localhost:3000"}

const defaultMaxUploadBytes = 20 << 20

// Load carrega variáveis de ambiente e aplica defaults seguros.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	portStr := getEnv("PORT", "8080")
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 {
		return nil, errors.New("PORT inválida")
	}
	cfg.Port = port

	cfg.GeminiAPIKey = strings.TrimSpace(getEnv("GEMINI_API_KEY", ""))
	if cfg.GeminiAPIKey == "" {
		cfg.GeminiAPIKey = strings.TrimSpace(getEnv("GOOGLE_API_KEY", ""))
	}
	if cfg.GeminiAPIKey == "" {
		return nil, errors.New("GEMINI_API_KEY obrigatório")
	}

	cfg.GeminiModel = strings.TrimSpace(getEnv("GEMINI_MODEL", ""))
	cfg.PromptFile = strings.TrimSpace(getEnv("PROMPT_FILE", ""))
	cfg.TempDir = strings.TrimSpace(getEnv("TEMP_DIR", ""))

	cfg.AllowOrigins = parseList(getEnv("ALLOW_ORIGINS", ""))
	if len(cfg.AllowOrigins) == 0 {
		cfg.AllowOrigins = append([]string(nil), defaultOrigins...)
	}

	maxUpload, err := parseInt64Env("MAX_UPLOAD_BYTES", defaultMaxUploadBytes)
	if err != nil {
		return nil, err
	}
	if maxUpload <= 0 {
		return nil, errors.New("MAX_UPLOAD_BYTES deve ser positivo")
	}
	cfg.MaxUploadBytes = maxUpload

	// zero mantém a chamada ao provedor sem prazo
	timeout, err := parseDurationEnv("UPSTREAM_TIMEOUT", 0)
	if err != nil {
		return nil, err
	}
	if timeout < 0 {
		return nil, errors.New("UPSTREAM_TIMEOUT inválido")
	}
	cfg.UpstreamTimeout = timeout

	return cfg, nil
}

func getEnv(key, def string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return def
}

func parseList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	val := getEnv(key, "")
	if val == "" {
		return def, nil
	}
	dur, err := time.ParseDuration(val)
	if err != nil {
		return 0, errors.New(key + " inválido")
	}
	return dur, nil
}

func parseInt64Env(key string, def int64) (int64, error) {
	val := strings.TrimSpace(getEnv(key, ""))
	if val == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, errors.New(key + " inválido")
	}
	return n, nil
}
