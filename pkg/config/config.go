package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env           string
	Port          int
	APIPrefix     string
	PublicBaseURL string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Storage  StorageConfig
	Realtime RealtimeConfig
	Presets  PresetsConfig
	Legacy   LegacyConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// StorageConfig controls where uploaded media (attendance proofs, session
// covers, avatars) is stored and how its public URLs are built.
type StorageConfig struct {
	MediaDir         string
	PublicPath       string
	MaxUploadBytes   int64
	AllowedMIMETypes []string
}

// RealtimeConfig tunes the attendance insert feed.
type RealtimeConfig struct {
	Enabled        bool
	ChannelPrefix  string
	ClientBuffer   int
	PollInterval   time.Duration
	PublishTimeout time.Duration
}

// PresetsConfig gates the session preset endpoints.
type PresetsConfig struct {
	Enabled       bool
	MaxImportRows int
}

// LegacyConfig controls the compatibility mirror into the old attendance table.
type LegacyConfig struct {
	MirrorEnabled bool
	MirrorWorkers int
	MirrorRetries int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")
	cfg.PublicBaseURL = strings.TrimRight(v.GetString("PUBLIC_BASE_URL"), "/")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	maxUpload := v.GetInt64("MEDIA_MAX_UPLOAD_BYTES")
	if maxUpload <= 0 {
		maxUpload = 8 * 1024 * 1024
	}
	cfg.Storage = StorageConfig{
		MediaDir:         v.GetString("MEDIA_DIR"),
		PublicPath:       v.GetString("MEDIA_PUBLIC_PATH"),
		MaxUploadBytes:   maxUpload,
		AllowedMIMETypes: splitAndTrim(v.GetString("MEDIA_ALLOWED_MIME_TYPES")),
	}

	cfg.Realtime = RealtimeConfig{
		Enabled:        v.GetBool("ENABLE_REALTIME_FEED"),
		ChannelPrefix:  v.GetString("REALTIME_CHANNEL_PREFIX"),
		ClientBuffer:   v.GetInt("REALTIME_CLIENT_BUFFER"),
		PollInterval:   parseDuration(v.GetString("REALTIME_POLL_INTERVAL"), 5*time.Second),
		PublishTimeout: parseDuration(v.GetString("REALTIME_PUBLISH_TIMEOUT"), 2*time.Second),
	}

	cfg.Presets = PresetsConfig{
		Enabled:       v.GetBool("ENABLE_PRESETS"),
		MaxImportRows: v.GetInt("PRESETS_MAX_IMPORT_ROWS"),
	}

	cfg.Legacy = LegacyConfig{
		MirrorEnabled: v.GetBool("ENABLE_LEGACY_ATTENDANCE_MIRROR"),
		MirrorWorkers: v.GetInt("LEGACY_MIRROR_WORKERS"),
		MirrorRetries: v.GetInt("LEGACY_MIRROR_RETRIES"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8080")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "still_there")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("MEDIA_DIR", "./media")
	v.SetDefault("MEDIA_PUBLIC_PATH", "/media")
	v.SetDefault("MEDIA_MAX_UPLOAD_BYTES", 8*1024*1024)
	v.SetDefault("MEDIA_ALLOWED_MIME_TYPES", "image/jpeg,image/png,image/webp")

	v.SetDefault("ENABLE_REALTIME_FEED", true)
	v.SetDefault("REALTIME_CHANNEL_PREFIX", "attendance")
	v.SetDefault("REALTIME_CLIENT_BUFFER", 16)
	v.SetDefault("REALTIME_POLL_INTERVAL", "5s")
	v.SetDefault("REALTIME_PUBLISH_TIMEOUT", "2s")

	v.SetDefault("ENABLE_PRESETS", true)
	v.SetDefault("PRESETS_MAX_IMPORT_ROWS", 500)

	v.SetDefault("ENABLE_LEGACY_ATTENDANCE_MIRROR", false)
	v.SetDefault("LEGACY_MIRROR_WORKERS", 1)
	v.SetDefault("LEGACY_MIRROR_RETRIES", 3)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
