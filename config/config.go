package config

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

type StoreType string

const (
	StoreTypeRedis      StoreType = "redis"
	StoreTypePostgres   StoreType = "postgres"
	StoreTypeLiteserver StoreType = "liteserver"
)

type BackendLiteserver struct {
	Name string
	Addr string
	Key  []byte
}

type PhaseCodes struct {
	Compute []int32
	Action  []int32
}

type TracingConfig struct {
	Enabled bool
	// AllowedCodes are excused for every address, AllowedByAddress only for the destination.
	AllowedCodes      PhaseCodes
	AllowedByAddress  map[string]PhaseCodes
	Platforms         []string
	PlatformCodeParam string
	ConsoleAddress    string
	FetchConcurrency  int
}

type LiteserverStoreConfig struct {
	Backends         []BackendLiteserver
	BalancerType     string
	QueriesPerSecond float64
	// ScanDepth is the number of transactions scanned per account lookup.
	ScanDepth      uint32
	IndexCacheSize int
}

type RedisStoreConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

type PostgresStoreConfig struct {
	DSN      string
	MaxConns int32
	MinConns int32
}

type StoreConfig struct {
	Type StoreType
	// CacheSize of the in-process message cache, 0 disables it.
	CacheSize  int
	Liteserver LiteserverStoreConfig
	Redis      RedisStoreConfig
	Postgres   PostgresStoreConfig
}

type Config struct {
	MetricsAddr      string
	MetricsNamespace string
	ArtifactsPath    string
	Tracing          TracingConfig
	Store            StoreConfig
}

func LoadConfig(path string) (*Config, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	if _, err = os.Stat(dir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			err = os.MkdirAll(dir, os.ModePerm)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to check directory: %w", err)
		}
	}

	_, err = os.Stat(path)
	if os.IsNotExist(err) {
		cfg := Default()
		err = SaveConfig(cfg, path)
		if err != nil {
			return nil, fmt.Errorf("failed to save config: %w", err)
		}

		return cfg, nil
	} else if err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}

		cfg := Default()
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}

		return cfg, nil
	}

	return nil, err
}

// Default is the config written when no file exists yet.
func Default() *Config {
	exampleKey, _ := base64.StdEncoding.DecodeString("n4VDnSCUuSpjnCyUk9e3QOOd6o0ItSWYbTnW3Wnn8wk=")

	return &Config{
		MetricsAddr:      "",
		MetricsNamespace: "basic",
		ArtifactsPath:    "build",
		Tracing: TracingConfig{
			Enabled:           true,
			AllowedByAddress:  map[string]PhaseCodes{},
			Platforms:         []string{"Platform", "DexPlatform"},
			PlatformCodeParam: "code",
			ConsoleAddress:    "0:7fffffffffffffffffffffffffffffffffffffffffffffffff123456789abcde",
			FetchConcurrency:  8,
		},
		Store: StoreConfig{
			Type:      StoreTypeLiteserver,
			CacheSize: 4096,
			Liteserver: LiteserverStoreConfig{
				Backends: []BackendLiteserver{
					{
						Name: "default",
						Addr: "5.9.10.47:19949",
						Key:  exampleKey,
					},
				},
				BalancerType:     "fail_over",
				QueriesPerSecond: 20,
				ScanDepth:        32,
				IndexCacheSize:   65536,
			},
			Redis: RedisStoreConfig{
				Addr:   "127.0.0.1:6379",
				Prefix: "tracer",
			},
			Postgres: PostgresStoreConfig{
				DSN:      "postgres://localhost:5432/ton_index",
				MaxConns: 8,
				MinConns: 1,
			},
		},
	}
}

func SaveConfig(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "\t")
	if err != nil {
		return err
	}

	err = os.WriteFile(path, data, 0766)
	if err != nil {
		return err
	}
	return nil
}
