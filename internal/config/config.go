// Package config provides configuration management for the ClipForge server.
// Configuration is loaded from environment variables with sensible defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	// Default values
	DefaultPort     = 10000
	DefaultLogLevel = "info"
	DefaultDataDir  = ".clipforge"

	// Environment variable names
	EnvPort     = "CLIPFORGE_PORT"
	EnvLogLevel = "CLIPFORGE_LOG_LEVEL"
	EnvDataDir  = "CLIPFORGE_DATA_DIR"

	// Tool environment variable names
	EnvFFmpegPath  = "CLIPFORGE_FFMPEG"
	EnvFFprobePath = "CLIPFORGE_FFPROBE"

	// Collaborator environment variable names
	EnvAdvisorURL   = "CLIPFORGE_ADVISOR_URL"
	EnvAdvisorToken = "CLIPFORGE_ADVISOR_TOKEN"
	EnvBillingURL   = "CLIPFORGE_BILLING_URL"
	EnvBillingToken = "CLIPFORGE_BILLING_TOKEN"

	// Store environment variable names
	EnvStoreBackend = "CLIPFORGE_STORE"
	EnvRedisURL     = "CLIPFORGE_REDIS_URL"

	EnvPlanStrategy   = "CLIPFORGE_PLAN_STRATEGY"
	EnvRenderTimeout  = "CLIPFORGE_RENDER_TIMEOUT_S"
	EnvMaxUploadBytes = "CLIPFORGE_MAX_UPLOAD_BYTES"

	// Database filename
	DBFilename = "clipforge.db"

	// Upload ceiling. The product historically ran with 500MB.
	DefaultMaxUploadBytes = 500 * 1024 * 1024

	// Segment policy
	DefaultClipCount     = 10
	DefaultClipLengthS   = 50
	MinClipLengthS       = 15
	MaxClipLengthS       = 59
	DefaultClipCost      = 10
	DefaultPlanStrategy  = "uniform"
	AdvisedPlanStrategy  = "advised"
	DefaultStoreBackend  = "sqlite"
	RedisStoreBackend    = "redis"
	DefaultJobTTLHours   = 24
	DefaultProbeTimeout  = 30  // seconds
	DefaultRenderTimeout = 180 // seconds
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	UploadDir() string
	ClipsDir() string
	FFmpegPath() string
	FFprobePath() string
	ProbeTimeout() time.Duration
	RenderTimeout() time.Duration
	MaxUploadBytes() int64
	ClipCount() int
	ClipLengthDefault() float64
	ClipLengthMin() float64
	ClipLengthMax() float64
	ClipCost() int
	PlanStrategy() string
	AdvisorURL() string
	AdvisorToken() string
	BillingURL() string
	BillingToken() string
	StoreBackend() string
	RedisURL() string
	JobTTL() time.Duration
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	port           int
	logLevel       string
	dataDir        string
	maxUploadBytes int64
	renderTimeout  time.Duration

	ffmpegPath   string
	ffprobePath  string
	planStrategy string
	advisorURL   string
	advisorToken string
	billingURL   string
	billingToken string
	storeBackend string
	redisURL     string
}

// New creates a new EnvConfig with defaults and environment variable overrides
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:           DefaultPort,
		logLevel:       DefaultLogLevel,
		dataDir:        defaultDataDir(),
		maxUploadBytes: DefaultMaxUploadBytes,
		renderTimeout:  DefaultRenderTimeout * time.Second,
		planStrategy:   DefaultPlanStrategy,
		storeBackend:   DefaultStoreBackend,
	}

	// Override port from environment
	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
		}
		cfg.port = port
	}

	// Override log level from environment
	if ll := os.Getenv(EnvLogLevel); ll != "" {
		cfg.logLevel = ll
	}

	// Override data directory from environment
	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}

	if mb := os.Getenv(EnvMaxUploadBytes); mb != "" {
		n, err := strconv.ParseInt(mb, 10, 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid %s: must be a positive byte count", EnvMaxUploadBytes)
		}
		cfg.maxUploadBytes = n
	}

	if rt := os.Getenv(EnvRenderTimeout); rt != "" {
		n, err := strconv.Atoi(rt)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid %s: must be a positive number of seconds", EnvRenderTimeout)
		}
		cfg.renderTimeout = time.Duration(n) * time.Second
	}

	if ps := os.Getenv(EnvPlanStrategy); ps != "" {
		if ps != DefaultPlanStrategy && ps != AdvisedPlanStrategy {
			return nil, fmt.Errorf("invalid %s: must be %q or %q", EnvPlanStrategy, DefaultPlanStrategy, AdvisedPlanStrategy)
		}
		cfg.planStrategy = ps
	}

	if sb := os.Getenv(EnvStoreBackend); sb != "" {
		if sb != DefaultStoreBackend && sb != RedisStoreBackend {
			return nil, fmt.Errorf("invalid %s: must be %q or %q", EnvStoreBackend, DefaultStoreBackend, RedisStoreBackend)
		}
		cfg.storeBackend = sb
	}

	cfg.ffmpegPath = os.Getenv(EnvFFmpegPath)
	cfg.ffprobePath = os.Getenv(EnvFFprobePath)
	cfg.advisorURL = os.Getenv(EnvAdvisorURL)
	cfg.advisorToken = os.Getenv(EnvAdvisorToken)
	cfg.billingURL = os.Getenv(EnvBillingURL)
	cfg.billingToken = os.Getenv(EnvBillingToken)
	cfg.redisURL = os.Getenv(EnvRedisURL)

	return cfg, nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// UploadDir returns the directory uploaded source files are staged in
func (c *EnvConfig) UploadDir() string {
	return filepath.Join(c.dataDir, "uploads")
}

// ClipsDir returns the directory rendered clips and thumbnails are written to
func (c *EnvConfig) ClipsDir() string {
	return filepath.Join(c.dataDir, "clips")
}

func (c *EnvConfig) FFmpegPath() string {
	return c.ffmpegPath
}

func (c *EnvConfig) FFprobePath() string {
	return c.ffprobePath
}

func (c *EnvConfig) ProbeTimeout() time.Duration {
	return DefaultProbeTimeout * time.Second
}

func (c *EnvConfig) RenderTimeout() time.Duration {
	return c.renderTimeout
}

func (c *EnvConfig) MaxUploadBytes() int64 {
	return c.maxUploadBytes
}

func (c *EnvConfig) ClipCount() int {
	return DefaultClipCount
}

func (c *EnvConfig) ClipLengthDefault() float64 {
	return DefaultClipLengthS
}

func (c *EnvConfig) ClipLengthMin() float64 {
	return MinClipLengthS
}

func (c *EnvConfig) ClipLengthMax() float64 {
	return MaxClipLengthS
}

func (c *EnvConfig) ClipCost() int {
	return DefaultClipCost
}

func (c *EnvConfig) PlanStrategy() string {
	return c.planStrategy
}

func (c *EnvConfig) AdvisorURL() string {
	return c.advisorURL
}

func (c *EnvConfig) AdvisorToken() string {
	return c.advisorToken
}

func (c *EnvConfig) BillingURL() string {
	return c.billingURL
}

func (c *EnvConfig) BillingToken() string {
	return c.billingToken
}

func (c *EnvConfig) StoreBackend() string {
	return c.storeBackend
}

func (c *EnvConfig) RedisURL() string {
	return c.redisURL
}

// JobTTL returns how long a finished job record is retained by stores that
// support expiry (the Redis backend). Rendered artifacts follow their own
// external expiry policy and are not governed by this value.
func (c *EnvConfig) JobTTL() time.Duration {
	return DefaultJobTTLHours * time.Hour
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
