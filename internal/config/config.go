// Package config provides configuration management for the collection
// watcher. Process settings come from environment variables and an optional
// .env file; the monitored collections come from a JSON config file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"

	"github.com/collection-watcher/internal/types"
)

// Config holds all process-level configuration
type Config struct {
	Redis     RedisConfig
	Server    ServerConfig
	Providers ProvidersConfig
	Dedup     DedupConfig
	Logging   LoggingConfig

	// CollectionsFile is the path to the collections JSON config.
	CollectionsFile string
}

// RedisConfig holds the durable store connection settings
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// Addr returns the host:port address for the Redis client
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// ServerConfig holds the status server settings
type ServerConfig struct {
	Host string
	Port string
}

// ProvidersConfig holds per-provider HTTP settings
type ProvidersConfig struct {
	// OpenSeaAPIKey enables the secondary source when non-empty.
	OpenSeaAPIKey string

	// MagicEdenRPS / OpenSeaRPS pace outbound requests per provider.
	MagicEdenRPS float64
	OpenSeaRPS   float64

	RequestTimeout time.Duration
}

// DedupConfig holds dedup store flush settings
type DedupConfig struct {
	// FlushInterval bounds durable-store I/O: mutations are written in
	// batches rather than one write per event.
	FlushInterval time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// Load loads configuration from the .env file and environment variables
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// .env file is optional - environment variables can be set directly
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	cfg := &Config{
		Redis: RedisConfig{
			Host:           getEnv("REDIS_HOST", "localhost"),
			Port:           getEnv("REDIS_PORT", "6379"),
			Password:       getEnv("REDIS_PASSWORD", ""),
			DB:             getEnvAsInt("REDIS_DB", 0),
			MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
		},
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnv("SERVER_PORT", "8080"),
		},
		Providers: ProvidersConfig{
			OpenSeaAPIKey:  getEnv("OPENSEA_API_KEY", ""),
			MagicEdenRPS:   getEnvAsFloat("MAGICEDEN_RPS", 2.0),
			OpenSeaRPS:     getEnvAsFloat("OPENSEA_RPS", 2.0),
			RequestTimeout: getEnvAsDuration("PROVIDER_REQUEST_TIMEOUT", 15*time.Second),
		},
		Dedup: DedupConfig{
			FlushInterval: getEnvAsDuration("DEDUP_FLUSH_INTERVAL", 10*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		CollectionsFile: getEnv("COLLECTIONS_FILE", "collection_configs.json"),
	}

	return cfg, nil
}

// collectionsFile mirrors the on-disk shape of the collections config
type collectionsFile struct {
	Collections []*types.Collection `json:"collections"`
}

// LoadCollections reads and validates the collections JSON config.
// Contract and filter addresses are normalized to lowercase at load so the
// rest of the system can compare addresses byte-for-byte.
func LoadCollections(path string) ([]*types.Collection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read collections config %s: %w", path, err)
	}

	var file collectionsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse collections config %s: %w", path, err)
	}
	if len(file.Collections) == 0 {
		return nil, fmt.Errorf("collections config %s defines no collections", path)
	}

	seen := make(map[string]bool, len(file.Collections))
	for i, coll := range file.Collections {
		if coll.Name == "" {
			return nil, fmt.Errorf("collection %d: name is required", i)
		}
		if !common.IsHexAddress(coll.ContractAddress) {
			return nil, fmt.Errorf("collection %q: invalid contract address %q", coll.Name, coll.ContractAddress)
		}
		if coll.ZeroAddress != "" && !common.IsHexAddress(coll.ZeroAddress) {
			return nil, fmt.Errorf("collection %q: invalid zero address %q", coll.Name, coll.ZeroAddress)
		}
		if coll.Chain == "" {
			coll.Chain = "ethereum"
		}

		coll.ContractAddress = strings.ToLower(common.HexToAddress(coll.ContractAddress).Hex())
		if seen[coll.ContractAddress] {
			return nil, fmt.Errorf("collection %q: duplicate contract address %s", coll.Name, coll.ContractAddress)
		}
		seen[coll.ContractAddress] = true
	}

	return file.Collections, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
