// Package config loads process configuration via spf13/viper from
// environment variables, then an optional config.yaml, in that order of
// precedence (env wins). A local .env file is loaded into the process
// environment first (never overriding variables already set), so its
// values also take precedence over config.yaml.
package config

import (
	"log"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func init() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, relying on process environment")
	}
}

// Config is the full set of knobs the catalog service reads at startup.
type Config struct {
	DatabaseURL string
	Port        string
	Environment string
	LogLevel    string

	AllowedOrigins []string

	// PersistentTier selects the cache backend: "disk" or "s3".
	PersistentTier string
	DiskCacheDir   string
	DiskPublicURL  string

	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicURL       string

	ThumbnailCacheCapacity int
	PreviewCacheCapacity   int
}

// Load reads configuration via viper: environment variables first
// (automatic, underscore-delimited), then ./config.yaml if present, with
// sane defaults for local/single-machine operation.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("database_url", "postgres://localhost:5432/catalog?sslmode=disable")
	v.SetDefault("port", "8080")
	v.SetDefault("node_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("allowed_origins", "http://localhost:3000")
	v.SetDefault("persistent_tier", "disk")
	v.SetDefault("disk_cache_dir", "./data/cache")
	v.SetDefault("disk_public_url", "")
	v.SetDefault("thumbnail_cache_capacity", 150)
	v.SetDefault("preview_cache_capacity", 20)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	cfg := &Config{
		DatabaseURL:            v.GetString("database_url"),
		Port:                   v.GetString("port"),
		Environment:            v.GetString("node_env"),
		LogLevel:               v.GetString("log_level"),
		AllowedOrigins:         splitTrim(v.GetString("allowed_origins")),
		PersistentTier:         v.GetString("persistent_tier"),
		DiskCacheDir:           v.GetString("disk_cache_dir"),
		DiskPublicURL:          v.GetString("disk_public_url"),
		R2AccountID:            v.GetString("r2_account_id"),
		R2AccessKeyID:          v.GetString("r2_access_key_id"),
		R2SecretAccessKey:      v.GetString("r2_secret_access_key"),
		R2BucketName:           v.GetString("r2_bucket_name"),
		R2PublicURL:            v.GetString("r2_public_url"),
		ThumbnailCacheCapacity: v.GetInt("thumbnail_cache_capacity"),
		PreviewCacheCapacity:   v.GetInt("preview_cache_capacity"),
	}
	return cfg, nil
}

func splitTrim(s string) []string {
	parts := strings.Split(s, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
