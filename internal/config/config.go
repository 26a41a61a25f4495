package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/marker-engine/internal/models"
)

// NLP backend modes.
const (
	NLPModeBasic  = "basic"
	NLPModeRemote = "remote"
	NLPModeNone   = "none"
)

// Cache modes.
const (
	CacheModeMemory  = "memory"
	CacheModeValkey  = "valkey"
	CacheModeLayered = "layered"
)

// Config captures the settings required to boot the marker engine.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
	Markers  MarkersConfig  `yaml:"markers"`
	Lexicon  LexiconConfig  `yaml:"lexicon"`
	NLP      NLPConfig      `yaml:"nlp"`
	Cache    CacheConfig    `yaml:"cache"`
	Scoring  ScoringConfig  `yaml:"scoring"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	History  HistoryConfig  `yaml:"history"`
}

// ServerConfig controls gRPC listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// MarkersConfig locates marker definitions. When SQLitePath is set the database is
// the source of truth and Path is only used by `markers import`.
type MarkersConfig struct {
	Path       string `yaml:"path"`
	SQLitePath string `yaml:"sqlitePath"`
}

// LexiconConfig points at an optional lexicon override file.
type LexiconConfig struct {
	Path string `yaml:"path"`
}

// NLPConfig selects the enrichment backend.
type NLPConfig struct {
	Mode     string        `yaml:"mode"`
	Endpoint string        `yaml:"endpoint"`
	Language string        `yaml:"language"`
	Timeout  time.Duration `yaml:"timeout"`
}

// CacheConfig controls caching of finalized analysis envelopes.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Mode         string        `yaml:"mode"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	KeyPrefix    string        `yaml:"keyPrefix"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	TLS          bool          `yaml:"tls"`
	AnalysisTTL  time.Duration `yaml:"analysisTTL"`
	LocalTTL     time.Duration `yaml:"localTTL"`
}

// ScoringConfig is the global scoring block and the per-class windows.
type ScoringConfig struct {
	Defaults models.ScoringConfig           `yaml:"defaults"`
	Windows  map[string]models.WindowConfig `yaml:"windows"`
}

// PipelineConfig bounds request handling.
type PipelineConfig struct {
	BatchWorkers  int `yaml:"batchWorkers"`
	MaxTextLength int `yaml:"maxTextLength"`
}

// HistoryConfig controls session event recording.
type HistoryConfig struct {
	Enabled    bool   `yaml:"enabled"`
	SQLitePath string `yaml:"sqlitePath"`
	Limit      int    `yaml:"limit"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("MARKER_ENGINE_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the engine cannot start with.
func (c *Config) Validate() error {
	switch c.NLP.Mode {
	case NLPModeBasic, NLPModeNone:
	case NLPModeRemote:
		if c.NLP.Endpoint == "" {
			return errors.New("config: nlp.endpoint is required in remote mode")
		}
	default:
		return fmt.Errorf("config: unknown nlp.mode %q", c.NLP.Mode)
	}
	if c.Cache.Enabled {
		switch c.Cache.Mode {
		case CacheModeMemory:
		case CacheModeValkey, CacheModeLayered:
			if c.Cache.Addr == "" {
				return fmt.Errorf("config: cache.addr is required in %s mode", c.Cache.Mode)
			}
		default:
			return fmt.Errorf("config: unknown cache.mode %q", c.Cache.Mode)
		}
	}
	if c.Pipeline.MaxTextLength <= 0 {
		return errors.New("config: pipeline.maxTextLength must be positive")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":50051",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Markers: MarkersConfig{Path: "configs/markers"},
		NLP: NLPConfig{
			Mode:     NLPModeBasic,
			Language: "de",
			Timeout:  2 * time.Second,
		},
		Cache: CacheConfig{
			Enabled:      false,
			Mode:         CacheModeMemory,
			KeyPrefix:    "marker-engine:",
			AnalysisTTL:  time.Hour,
			LocalTTL:     time.Minute,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			MaxRetries:   2,
		},
		Scoring: ScoringConfig{
			Defaults: models.ScoringConfig{
				Formula:   models.FormulaLinear,
				Threshold: models.Float(1),
				Base:      models.Float(1),
				Weight:    models.Float(1),
			},
			Windows: map[string]models.WindowConfig{
				"ATO":  {Messages: models.Int(10)},
				"SEM":  {Messages: models.Int(20)},
				"CLU":  {Messages: models.Int(50)},
				"MEMA": {Seconds: models.Float(172800)},
			},
		},
		Pipeline: PipelineConfig{
			BatchWorkers:  4,
			MaxTextLength: 100000,
		},
		History: HistoryConfig{Limit: 500},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MARKER_ENGINE_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("MARKER_ENGINE_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("MARKER_ENGINE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MARKER_ENGINE_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("MARKER_ENGINE_MARKERS_PATH"); v != "" {
		cfg.Markers.Path = v
	}
	if v := os.Getenv("MARKER_ENGINE_MARKERS_SQLITE"); v != "" {
		cfg.Markers.SQLitePath = v
	}
	if v := os.Getenv("MARKER_ENGINE_LEXICON_PATH"); v != "" {
		cfg.Lexicon.Path = v
	}
	if v := os.Getenv("MARKER_ENGINE_NLP_MODE"); v != "" {
		cfg.NLP.Mode = strings.ToLower(v)
	}
	if v := os.Getenv("MARKER_ENGINE_NLP_ENDPOINT"); v != "" {
		cfg.NLP.Endpoint = v
	}
	if v := os.Getenv("MARKER_ENGINE_NLP_LANGUAGE"); v != "" {
		cfg.NLP.Language = v
	}
	if v := os.Getenv("MARKER_ENGINE_NLP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.NLP.Timeout = d
		}
	}
	if v := os.Getenv("MARKER_ENGINE_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = parseBool(v)
	}
	if v := os.Getenv("MARKER_ENGINE_CACHE_MODE"); v != "" {
		cfg.Cache.Mode = strings.ToLower(v)
	}
	if v := os.Getenv("MARKER_ENGINE_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("MARKER_ENGINE_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("MARKER_ENGINE_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("MARKER_ENGINE_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("MARKER_ENGINE_CACHE_TLS"); parseBool(v) {
		cfg.Cache.TLS = true
	}
	if v := os.Getenv("MARKER_ENGINE_CACHE_MAX_RETRIES"); v != "" {
		if retry, err := strconv.Atoi(v); err == nil {
			cfg.Cache.MaxRetries = retry
		}
	}
	if v := os.Getenv("MARKER_ENGINE_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.AnalysisTTL = d
		}
	}
	if v := os.Getenv("MARKER_ENGINE_BATCH_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.BatchWorkers = n
		}
	}
	if v := os.Getenv("MARKER_ENGINE_MAX_TEXT_LENGTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.MaxTextLength = n
		}
	}
	if v := os.Getenv("MARKER_ENGINE_HISTORY_ENABLED"); v != "" {
		cfg.History.Enabled = parseBool(v)
	}
	if v := os.Getenv("MARKER_ENGINE_HISTORY_SQLITE"); v != "" {
		cfg.History.SQLitePath = v
	}
}

func parseBool(v string) bool {
	return strings.EqualFold(v, "true") || v == "1"
}
