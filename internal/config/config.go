// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/utils"
)

// Config holds application configuration
type Config struct {
	DataDir         string // Base directory for the run history database, always absolute
	LogLevel        string
	Port            int
	DevMode         bool // Pretty console logging
	HamiltonianPath string
	MoleculePath    string // Optional YAML molecule descriptor; empty selects the built-in H2 model
	NoiseModelDir   string
	DefaultShots    int
	Optimizer       *OptimizerConfig
	Synthesis       *SynthesisConfig
	EvalWorkers     int
	QASMHandoff     bool  // Round-trip circuits through OpenQASM text between stages
	InitialLayout   []int // Physical qubit per logical qubit; empty means "last L device qubits"
	Artifacts       *ArtifactConfig
	Sweep           *SweepConfig
	Maintenance     *MaintenanceConfig
	RunsDB          string // Overrides the run history database path
}

// OptimizerConfig holds variational loop settings
type OptimizerConfig struct {
	Strategy      string // gradient or spsa
	MaxIterations int
	Tolerance     float64
}

// SynthesisConfig holds circuit synthesis settings
type SynthesisConfig struct {
	Tolerance      float64 // Allowed 1 - fidelity between source and compiled circuit
	BlockTolerance float64 // Allowed infidelity of a single resynthesized two-qubit block
	Timeout        time.Duration
}

// ArtifactConfig selects where QASM and result artifacts are persisted
type ArtifactConfig struct {
	Backend         string // "", local or s3
	Dir             string
	Bucket          string
	Prefix          string
	Endpoint        string // S3-compatible endpoint, e.g. Cloudflare R2
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// SweepConfig drives the scheduled benchmark sweep in serve mode
type SweepConfig struct {
	Schedule    string // cron expression, empty disables the sweep
	Seeds       []int
	NoiseModels []string
	Shots       int
}

// MaintenanceConfig drives run history upkeep in serve mode
type MaintenanceConfig struct {
	Schedule      string // cron expression, empty disables maintenance
	RetentionDays int    // finished runs older than this are pruned; 0 keeps everything
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	layout, err := utils.ParseIntList(getEnv("INITIAL_LAYOUT", ""))
	if err != nil {
		return nil, fmt.Errorf("failed to parse INITIAL_LAYOUT: %w", err)
	}
	seeds, err := utils.ParseIntList(getEnv("SWEEP_SEEDS", "1-3"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse SWEEP_SEEDS: %w", err)
	}

	cfg := &Config{
		DataDir:         absDataDir,
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		Port:            getEnvAsInt("PORT", 8080),
		DevMode:         getEnvAsBool("DEV_MODE", false),
		HamiltonianPath: getEnv("HAMILTONIAN_PATH", "./Hamiltonian/hamiltonian.txt"),
		MoleculePath:    getEnv("MOLECULE_PATH", ""),
		NoiseModelDir:   getEnv("NOISE_MODEL_DIR", "./NoiseModel"),
		DefaultShots:    getEnvAsInt("DEFAULT_SHOTS", 2852),
		Optimizer: &OptimizerConfig{
			Strategy:      getEnv("OPTIMIZER", "spsa"),
			MaxIterations: getEnvAsInt("OPTIMIZER_MAX_ITER", 100),
			Tolerance:     getEnvAsFloat("OPTIMIZER_TOL", 1e-6),
		},
		Synthesis: &SynthesisConfig{
			Tolerance:      getEnvAsFloat("SYNTHESIS_TOLERANCE", 1e-6),
			BlockTolerance: getEnvAsFloat("SYNTHESIS_BLOCK_TOLERANCE", 1e-9),
			Timeout:        time.Duration(getEnvAsInt("SYNTHESIS_TIMEOUT_SECONDS", 120)) * time.Second,
		},
		EvalWorkers:   getEnvAsInt("EVAL_WORKERS", 0),
		QASMHandoff:   getEnvAsBool("QASM_HANDOFF", true),
		InitialLayout: layout,
		Artifacts: &ArtifactConfig{
			Backend:         getEnv("ARTIFACT_BACKEND", ""),
			Dir:             getEnv("ARTIFACT_DIR", filepath.Join(absDataDir, "artifacts")),
			Bucket:          getEnv("ARTIFACT_S3_BUCKET", ""),
			Prefix:          getEnv("ARTIFACT_S3_PREFIX", "groundstate"),
			Endpoint:        getEnv("ARTIFACT_S3_ENDPOINT", ""),
			Region:          getEnv("ARTIFACT_S3_REGION", "auto"),
			AccessKeyID:     getEnv("ARTIFACT_S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("ARTIFACT_S3_SECRET_ACCESS_KEY", ""),
		},
		Sweep: &SweepConfig{
			Schedule:    getEnv("SWEEP_SCHEDULE", ""),
			Seeds:       utils.Unique(seeds),
			NoiseModels: utils.ParseList(getEnv("SWEEP_NOISE_MODELS", "fakecairo,fakekolkata,fakemontreal")),
			Shots:       getEnvAsInt("SWEEP_SHOTS", 2852),
		},
		Maintenance: &MaintenanceConfig{
			Schedule:      getEnv("MAINTENANCE_SCHEDULE", "@daily"),
			RetentionDays: getEnvAsInt("RUN_RETENTION_DAYS", 90),
		},
		RunsDB: getEnv("RUNS_DB_PATH", ""),
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// RunsDBPath returns the path of the run history database
func (c *Config) RunsDBPath() string {
	if c.RunsDB != "" {
		return c.RunsDB
	}
	return filepath.Join(c.DataDir, "runs.db")
}

// Validate checks that configuration values are usable
func (c *Config) Validate() error {
	switch c.Optimizer.Strategy {
	case "gradient", "gradient_descent", "gd", "spsa":
	default:
		return fmt.Errorf("unsupported OPTIMIZER %q (want gradient or spsa)", c.Optimizer.Strategy)
	}
	if c.Optimizer.MaxIterations <= 0 {
		return fmt.Errorf("OPTIMIZER_MAX_ITER must be positive, got %d", c.Optimizer.MaxIterations)
	}
	if c.Synthesis.Tolerance <= 0 || c.Synthesis.Tolerance >= 1 {
		return fmt.Errorf("SYNTHESIS_TOLERANCE must be in (0, 1), got %g", c.Synthesis.Tolerance)
	}
	if c.DefaultShots <= 0 {
		return fmt.Errorf("DEFAULT_SHOTS must be positive, got %d", c.DefaultShots)
	}

	switch c.Artifacts.Backend {
	case "", "local":
	case "s3":
		if c.Artifacts.Bucket == "" {
			return fmt.Errorf("ARTIFACT_S3_BUCKET is required for the s3 artifact backend")
		}
	default:
		return fmt.Errorf("unsupported ARTIFACT_BACKEND %q", c.Artifacts.Backend)
	}

	if c.Maintenance != nil && c.Maintenance.RetentionDays < 0 {
		return fmt.Errorf("RUN_RETENTION_DAYS must not be negative, got %d", c.Maintenance.RetentionDays)
	}

	for _, q := range c.InitialLayout {
		if q < 0 {
			return fmt.Errorf("INITIAL_LAYOUT entries must be non-negative, got %d", q)
		}
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
