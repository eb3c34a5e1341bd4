package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
)

type AppConfig struct {
	IrisBaseURL string
	IrisWSURL   string

	BotPrefix string

	YTAPIKey string

	RedisURL    string
	DatabaseURL string

	Debug       bool
	PointBudget int

	AudioDir   string
	MaxAudioMB int

	TemplateDir string
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		BotPrefix:   ";",
		PointBudget: 10,
		AudioDir:    "bm_audio",
		MaxAudioMB:  128,
	}

	cfg.IrisBaseURL = strings.TrimSpace(os.Getenv("BM_IRIS_BASE_URL"))
	cfg.IrisWSURL = strings.TrimSpace(os.Getenv("BM_IRIS_WS_URL"))
	if v := strings.TrimSpace(os.Getenv("BM_COMMAND_PREFIX")); v != "" {
		cfg.BotPrefix = v
	}

	cfg.YTAPIKey = strings.TrimSpace(os.Getenv("BM_YT_API_KEY"))

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))

	if v := strings.TrimSpace(os.Getenv("BM_DEBUG")); v != "" {
		// anything except "no"/"false" enables debug, matching the legacy bot
		cfg.Debug = !strings.EqualFold(v, "no") && !strings.EqualFold(v, "false")
	}
	if v := strings.TrimSpace(os.Getenv("BM_POINT_BUDGET")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PointBudget = n
		}
	}

	if v := strings.TrimSpace(os.Getenv("BM_AUDIO_DIR")); v != "" {
		cfg.AudioDir = v
	}
	if v := strings.TrimSpace(os.Getenv("BM_MAX_AUDIO_MB")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxAudioMB = n
		}
	}

	cfg.TemplateDir = strings.TrimSpace(os.Getenv("BM_TEMPLATE_DIR"))

	if cfg.IrisBaseURL == "" {
		return nil, errors.New("BM_IRIS_BASE_URL is required")
	}
	if cfg.IrisWSURL == "" {
		return nil, errors.New("BM_IRIS_WS_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}

	return cfg, nil
}
