package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	JWT        JWTConfig
	Cloudinary CloudinaryConfig
	Payment    PaymentConfig
	RateLimit  RateLimitConfig
	Redis      RedisConfig
	Firebase   FirebaseConfig
}

type ServerConfig struct {
	Port         string
	Env          string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

type JWTConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
	Issuer        string
}

type CloudinaryConfig struct {
	CloudName string
	APIKey    string
	APISecret string
}

// PaymentConfig bounds the amounts the core accepts (minor units).
type PaymentConfig struct {
	// Manual admin balance adjustments must fall in [AdminAdjustMin, AdminAdjustMax].
	AdminAdjustMinCents int64
	AdminAdjustMaxCents int64
	MaxRejectReasonLen  int
	MaxPageSize         int
}

type RateLimitConfig struct {
	RequestsPerWindow int
	Window            time.Duration
	// Backend selects the limiter implementation: "memory" or "redis".
	Backend string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type FirebaseConfig struct {
	ServiceAccountPath string
}

func Load() *Config {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port:         getenv("PORT", "8090"),
			Env:          getenv("APP_ENV", "development"),
			ReadTimeout:  getduration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getduration("SERVER_WRITE_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			DSN:             getenv("DATABASE_DSN", "studhub:studhub@tcp(localhost:3306)/studhub?charset=utf8mb4&parseTime=True&loc=Local"),
			MaxIdleConns:    getint("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    getint("DB_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: getduration("DB_CONN_MAX_LIFETIME", time.Hour),
		},
		JWT: JWTConfig{
			AccessSecret:  getenv("JWT_ACCESS_SECRET", "change-me-in-production"),
			RefreshSecret: getenv("JWT_REFRESH_SECRET", "change-me-refresh"),
			AccessExpiry:  getduration("JWT_ACCESS_EXPIRY", 15*time.Minute),
			RefreshExpiry: getduration("JWT_REFRESH_EXPIRY", 168*time.Hour),
			Issuer:        getenv("JWT_ISSUER", "studhub"),
		},
		Cloudinary: CloudinaryConfig{
			CloudName: getenv("CLOUDINARY_CLOUD_NAME", ""),
			APIKey:    getenv("CLOUDINARY_API_KEY", ""),
			APISecret: getenv("CLOUDINARY_API_SECRET", ""),
		},
		Payment: PaymentConfig{
			AdminAdjustMinCents: getint64("ADMIN_ADJUST_MIN_CENTS", 1000),
			AdminAdjustMaxCents: getint64("ADMIN_ADJUST_MAX_CENTS", 500000),
			MaxRejectReasonLen:  getint("MAX_REJECT_REASON_LEN", 500),
			MaxPageSize:         getint("MAX_PAGE_SIZE", 100),
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: getint("RATE_LIMIT_REQUESTS", 100),
			Window:            getduration("RATE_LIMIT_WINDOW", time.Minute),
			Backend:           getenv("RATE_LIMIT_BACKEND", "memory"),
		},
		Redis: RedisConfig{
			Addr:     getenv("REDIS_ADDR", "localhost:6379"),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getint("REDIS_DB", 0),
		},
		Firebase: FirebaseConfig{
			ServiceAccountPath: getenv("FIREBASE_SERVICE_ACCOUNT_PATH", ""),
		},
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getint(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getint64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func getduration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
