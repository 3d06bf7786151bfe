// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir string // Base directory for the run-audit database (always absolute)

	// Data-capture system (REDCap API)
	RedcapEndpoint string
	RedcapAPIToken string
	ReportID       string

	// Randomization inputs
	AllocationTable string   // Path to the historical allocation table (CSV)
	TreatmentField  string   // Treatment column name in the allocation table
	RandomizedField string   // Field receiving the assigned treatment
	CriteriaFields  []string // Optional override; derived from the report when empty

	RandomizeCron string // Optional cron schedule for automatic runs
	RandomSeed    int64  // 0 = seed from entropy

	LogLevel string
	Port     int
	DevMode  bool
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("STRATRAND_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	// Always resolve to absolute path
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:         absDataDir,
		RedcapEndpoint:  getEnv("REDCAP_ENDPOINT", ""),
		RedcapAPIToken:  getEnv("REDCAP_API_TOKEN", ""),
		ReportID:        getEnv("REDCAP_REPORT_ID", ""),
		AllocationTable: getEnv("ALLOCATION_TABLE", ""),
		TreatmentField:  getEnv("TREATMENT_FIELD", ""),
		RandomizedField: getEnv("RANDOMIZED_FIELD", ""),
		CriteriaFields:  getEnvAsList("CRITERIA_FIELDS"),
		RandomizeCron:   getEnv("RANDOMIZE_CRON", ""),
		RandomSeed:      getEnvAsInt64("RANDOM_SEED", 0),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		Port:            getEnvAsInt("PORT", 8080),
		DevMode:         getEnvAsBool("DEV_MODE", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present.
// A randomization run cannot proceed without these; a wrong or missing value
// would silently corrupt assignments, so failing here is the safe option.
func (c *Config) Validate() error {
	required := map[string]string{
		"REDCAP_ENDPOINT":  c.RedcapEndpoint,
		"REDCAP_API_TOKEN": c.RedcapAPIToken,
		"REDCAP_REPORT_ID": c.ReportID,
		"ALLOCATION_TABLE": c.AllocationTable,
		"TREATMENT_FIELD":  c.TreatmentField,
		"RANDOMIZED_FIELD": c.RandomizedField,
	}

	var missing []string
	for name, value := range required {
		if value == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
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

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
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

func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
