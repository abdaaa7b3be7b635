package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/rakunlabs/chu"
	"github.com/rakunlabs/chu/loader/loaderenv"
	"github.com/rakunlabs/logi"
)

var Service = ""

// Config is kiwi-mcp's own runtime surface: log level, the three content
// roots, search blend weights, and the permission layer's rate limits.
// Nothing here configures an item's behavior; that always lives in the
// item's own manifest.
type Config struct {
	LogLevel string `cfg:"log_level,no_prefix" default:"info"`

	ProjectPath string `cfg:"project_path"`
	UserPath    string `cfg:"user_path"`
	BundledPath string `cfg:"bundled_path"`

	Search     Search     `cfg:"search"`
	Permission Permission `cfg:"permission"`
	Signing    Signing    `cfg:"signing"`
}

// Search controls the hybrid search engine's blend weights. DefaultLimit
// is loaded but not passed to the kernel; the search meta-operation falls
// back to a fixed limit of 20.
type Search struct {
	VectorWeight  float64 `cfg:"vector_weight" default:"0.7"`
	KeywordWeight float64 `cfg:"keyword_weight" default:"0.2"`
	RecencyWeight float64 `cfg:"recency_weight" default:"0.1"`
	DefaultLimit  int     `cfg:"default_limit" default:"20"`
}

// Permission overrides the permission layer's default rate limits and
// loop-detector thresholds; zero values fall back to the built-in
// defaults (internal/permission.DefaultRateLimits).
type Permission struct {
	RateLimits        map[string]int `cfg:"rate_limits"`
	LoopWindow        int            `cfg:"loop_window" default:"10"`
	LoopRepeatCount   int            `cfg:"loop_repeat_count" default:"3"`
	AuditLogPath      string         `cfg:"audit_log_path"`
}

// Signing configures the optional Ed25519 asymmetric signature extension.
// RequireSigned is copied onto the kernel but not read by load, which
// always requires a signature for registry-origin items and verifies no
// other source.
type Signing struct {
	PrivateKeyPath string `cfg:"private_key_path" log:"-"`
	PublicKeyPath  string `cfg:"public_key_path"`
	EncryptionKey  string `cfg:"encryption_key" log:"-"`
	RequireSigned  bool   `cfg:"require_signed" default:"false"`

	RequestTimeout time.Duration `cfg:"request_timeout" default:"30s"`
}

// Load reads environment cascades (user, project, project-local .env
// files, in that priority order, earlier files losing to later ones)
// before handing off to chu for the structured KIWI_-prefixed config.
func Load(ctx context.Context, projectPath string) (*Config, error) {
	loadDotEnvCascade(projectPath)

	var cfg Config
	if err := chu.Load(ctx, "kiwimcp", &cfg, chu.WithLoaderOption(loaderenv.New(loaderenv.WithPrefix("KIWI_")))); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if err := logi.SetLogLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("set log level %s: %w", cfg.LogLevel, err)
	}

	if cfg.ProjectPath == "" {
		cfg.ProjectPath = projectPath
	}
	if cfg.UserPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.UserPath = filepath.Join(home, ".ai")
		}
	}

	slog.Info("loaded configuration", "config", chu.MarshalMap(cfg))

	return &cfg, nil
}

// loadDotEnvCascade loads .env files in increasing precedence order:
// user .ai, project .ai, project root, project root local override. Each
// later file can redefine a variable the earlier ones set; a missing
// file is not an error.
func loadDotEnvCascade(projectPath string) {
	var candidates []string
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".ai", ".env"))
	}
	if projectPath != "" {
		candidates = append(candidates,
			filepath.Join(projectPath, ".ai", ".env"),
			filepath.Join(projectPath, ".env"),
			filepath.Join(projectPath, ".env.local"),
		)
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Overload(path); err != nil {
			slog.Warn("failed to load env file", "path", path, "error", err)
		}
	}
}
