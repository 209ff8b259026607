package config

// Package config provides a reusable loader for VeriSimDB configuration
// files and environment variables. It is versioned so that applications can
// depend on a stable API contract.
//
// Version: v0.1.0

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"verisimdb/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config represents the unified configuration for a VeriSimDB node. It
// mirrors the structure of the YAML files under cmd/server/config.
type Config struct {
	Wal struct {
		Dir            string `mapstructure:"dir" json:"dir"`
		SyncMode       string `mapstructure:"sync_mode" json:"sync_mode"`
		MaxSegmentSize int64  `mapstructure:"max_segment_size" json:"max_segment_size"`
	} `mapstructure:"wal" json:"wal"`

	Hnsw struct {
		Dimension      int    `mapstructure:"dimension" json:"dimension"`
		Metric         string `mapstructure:"metric" json:"metric"`
		MaxConnections int    `mapstructure:"max_connections" json:"max_connections"`
		EfConstruction int    `mapstructure:"ef_construction" json:"ef_construction"`
		EfSearch       int    `mapstructure:"ef_search" json:"ef_search"`
	} `mapstructure:"hnsw" json:"hnsw"`

	Planner struct {
		Mode             string  `mapstructure:"mode" json:"mode"`
		MaxCacheEntries  int     `mapstructure:"max_cache_entries" json:"max_cache_entries"`
		CacheTTLSeconds  int     `mapstructure:"cache_ttl_seconds" json:"cache_ttl_seconds"`
		StatisticsWeight float64 `mapstructure:"statistics_weight" json:"statistics_weight"`
	} `mapstructure:"planner" json:"planner"`

	Federation struct {
		StrictDriftThreshold float64 `mapstructure:"strict_drift_threshold" json:"strict_drift_threshold"`
		PeerTimeoutSeconds   int     `mapstructure:"peer_timeout_seconds" json:"peer_timeout_seconds"`
	} `mapstructure:"federation" json:"federation"`

	Normalizer struct {
		MinDriftScore        float64 `mapstructure:"min_drift_score" json:"min_drift_score"`
		DegradedThreshold    float64 `mapstructure:"degraded_threshold" json:"degraded_threshold"`
		CriticalThreshold    float64 `mapstructure:"critical_threshold" json:"critical_threshold"`
		AutoResolveThreshold float64 `mapstructure:"auto_resolve_threshold" json:"auto_resolve_threshold"`
		RequireManualAbove   float64 `mapstructure:"require_manual_above" json:"require_manual_above"`
	} `mapstructure:"normalizer" json:"normalizer"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and returned.
//
// The function uses the provided environment name to merge additional config
// files. If env is empty, only the default configuration is loaded.
func Load(env string) (*Config, error) {
	_ = godotenv.Load() // best-effort; absent .env is not an error

	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/server/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.SetEnvPrefix("VERISIM")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv() // VERISIM_* overrides

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the VERISIM_ENV environment variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("VERISIM_ENV", ""))
}
