package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server  ServerConfig
	MongoDB MongoDBConfig
	Redis   RedisConfig
	Index   IndexConfig
	JWT     JWTConfig
	OIDC    OIDCConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	RateLimitRPS int
}

type MongoDBConfig struct {
	// URI empty means the in-memory store is used
	URI      string
	Database string
	Timeout  time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	CacheTTL time.Duration
}

// IndexConfig drives the search index schema and the sync worker.
type IndexConfig struct {
	// Dir empty means an in-memory index rebuilt on startup
	Dir             string
	Fields          string
	FieldsAnalyze   string
	FieldsNoAnalyze string
	FieldsStore     string
	DefaultOperator string
	SyncInterval    time.Duration
	FlushTimeout    time.Duration
}

type JWTConfig struct {
	Secret string
}

type OIDCConfig struct {
	IssuerURL string
	ClientID  string
}

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env")

	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "5001")
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_ENVIRONMENT", "development")
	viper.SetDefault("SERVER_RATE_LIMIT_RPS", 50)
	viper.SetDefault("MONGODB_DATABASE", "docuvault")
	viper.SetDefault("MONGODB_TIMEOUT", 10)
	viper.SetDefault("REDIS_CACHE_TTL", 3600)
	viper.SetDefault("INDEX_DEFAULT_OPERATOR", "AND")
	viper.SetDefault("INDEX_SYNC_INTERVAL", 1)
	viper.SetDefault("INDEX_FLUSH_TIMEOUT", 30)

	cfg := &Config{
		Server: ServerConfig{
			Port:         viper.GetString("SERVER_PORT"),
			Host:         viper.GetString("SERVER_HOST"),
			Environment:  viper.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			RateLimitRPS: viper.GetInt("SERVER_RATE_LIMIT_RPS"),
		},
		MongoDB: MongoDBConfig{
			URI:      viper.GetString("MONGODB_URI"),
			Database: viper.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(viper.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       0,
			CacheTTL: time.Duration(viper.GetInt("REDIS_CACHE_TTL")) * time.Second,
		},
		Index: IndexConfig{
			Dir:             viper.GetString("INDEX_DIR"),
			Fields:          viper.GetString("INDEX_FIELDS"),
			FieldsAnalyze:   viper.GetString("INDEX_FIELDS_ANALYZE"),
			FieldsNoAnalyze: viper.GetString("INDEX_FIELDS_NOANALYZE"),
			FieldsStore:     viper.GetString("INDEX_FIELDS_STORE"),
			DefaultOperator: viper.GetString("INDEX_DEFAULT_OPERATOR"),
			SyncInterval:    time.Duration(viper.GetInt("INDEX_SYNC_INTERVAL")) * time.Second,
			FlushTimeout:    time.Duration(viper.GetInt("INDEX_FLUSH_TIMEOUT")) * time.Second,
		},
		JWT: JWTConfig{
			Secret: os.Getenv("JWT_SECRET"),
		},
		OIDC: OIDCConfig{
			IssuerURL: viper.GetString("OIDC_ISSUER_URL"),
			ClientID:  viper.GetString("OIDC_CLIENT_ID"),
		},
	}

	// Basic validation
	if cfg.JWT.Secret == "" && cfg.OIDC.IssuerURL == "" {
		log.Println("WARNING: neither JWT_SECRET nor OIDC_ISSUER_URL is set; set one in production")
	}

	return cfg, nil
}
