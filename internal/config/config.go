package config

import (
	"os"
	"strconv"
	"time"
)

type ServiceConfig struct {
	Port        string
	LogDir      string
	PostgresCfg PostgresConfig
	RedisCfg    RedisConfig
	MinioCfg    MinioConfig
	DriveCfg    DriveConfig
	RabbitMQCfg RabbitMQConfig
	WeatherCfg  WeatherConfig
	ResolverCfg ResolverConfig
	SyncCfg     SyncConfig
}

type PostgresConfig struct {
	DBname   string
	Username string
	Password string
	Host     string
	Port     string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type MinioConfig struct {
	MinioURL         string
	MinioAccessKey   string
	MinioSecretKey   string
	MinioLocation    string
	MinioSecure      string
	MinioResourceURL string
	PhotoBucket      string
}

type DriveConfig struct {
	CredentialsFile string
	RootFolderName  string
	FolderCacheSize int
	FolderCacheTTL  time.Duration
}

type RabbitMQConfig struct {
	Username string
	Password string
	Host     string
	Port     string
}

type WeatherConfig struct {
	BaseURL string
	Timeout time.Duration
}

type ResolverConfig struct {
	CacheSize int
}

type SyncConfig struct {
	BatchSize   int
	Concurrency int
	QueueSize   int
	Interval    time.Duration
	LockTTL     time.Duration
	MaxRetries  int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func New() *ServiceConfig {
	return &ServiceConfig{
		Port:   getEnvOrDefault("PORT", "8094"),
		LogDir: getEnvOrDefault("LOG_DIR", "/konektagri/log/paddy-ingestion"),
		PostgresCfg: PostgresConfig{
			DBname:   getEnvOrDefault("POSTGRES_DB", "paddy_survey"),
			Username: getEnvOrDefault("POSTGRES_USER", "postgres"),
			Password: getEnvOrDefault("POSTGRES_PASSWORD", "postgres"),
			Host:     getEnvOrDefault("POSTGRES_HOST", "localhost"),
			Port:     getEnvOrDefault("POSTGRES_PORT", "5432"),
		},
		RedisCfg: RedisConfig{
			Host:     getEnvOrDefault("REDIS_HOST", ""),
			Port:     getEnvOrDefault("REDIS_PORT", "6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       0,
		},
		MinioCfg: MinioConfig{
			MinioURL:         getEnvOrDefault("MINIO_ENDPOINT", ""),
			MinioAccessKey:   getEnvOrDefault("MINIO_ACCESS_KEY", "minio"),
			MinioSecretKey:   getEnvOrDefault("MINIO_SECRET_KEY", "minio123"),
			MinioLocation:    getEnvOrDefault("MINIO_LOCATION", "us-east-1"),
			MinioSecure:      getEnvOrDefault("MINIO_SECURE", "false"),
			MinioResourceURL: getEnvOrDefault("MINIO_RESOURCE_URL", "http://localhost:9407/"),
			PhotoBucket:      getEnvOrDefault("MINIO_PHOTO_BUCKET", "survey-photos"),
		},
		DriveCfg: DriveConfig{
			CredentialsFile: getEnvOrDefault("DRIVE_CREDENTIALS_FILE", ""),
			RootFolderName:  getEnvOrDefault("DRIVE_ROOT_FOLDER", "PaddySurvey"),
			FolderCacheSize: getEnvIntOrDefault("DRIVE_FOLDER_CACHE_SIZE", 200),
			FolderCacheTTL:  getEnvDurationOrDefault("DRIVE_FOLDER_CACHE_TTL", 30*time.Minute),
		},
		RabbitMQCfg: RabbitMQConfig{
			Username: getEnvOrDefault("RABBITMQ_USER", "admin"),
			Password: getEnvOrDefault("RABBITMQ_PWD", "admin"),
			Host:     getEnvOrDefault("RABBITMQ_HOST", ""),
			Port:     getEnvOrDefault("RABBITMQ_PORT", "5672"),
		},
		WeatherCfg: WeatherConfig{
			BaseURL: getEnvOrDefault("WEATHER_API_URL", "https://api.open-meteo.com"),
			Timeout: getEnvDurationOrDefault("WEATHER_API_TIMEOUT", 5*time.Second),
		},
		ResolverCfg: ResolverConfig{
			CacheSize: getEnvIntOrDefault("LOCATION_CACHE_SIZE", 500),
		},
		SyncCfg: SyncConfig{
			BatchSize:   getEnvIntOrDefault("SYNC_BATCH_SIZE", 50),
			Concurrency: getEnvIntOrDefault("SYNC_CONCURRENCY", 2),
			QueueSize:   getEnvIntOrDefault("SYNC_QUEUE_SIZE", 100),
			Interval:    getEnvDurationOrDefault("SYNC_INTERVAL", 10*time.Minute),
			LockTTL:     getEnvDurationOrDefault("SYNC_LOCK_TTL", 5*time.Minute),
			MaxRetries:  getEnvIntOrDefault("SYNC_MAX_RETRIES", 3),
			BaseDelay:   getEnvDurationOrDefault("SYNC_BASE_DELAY", 500*time.Millisecond),
			MaxDelay:    getEnvDurationOrDefault("SYNC_MAX_DELAY", 10*time.Second),
		},
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
