// Package config loads runtime settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr        string
	ShutdownTimeout time.Duration
	// BasePath prefixes every link rendered in the storefront views.
	BasePath string
	LogLevel string
	// RateLimit is requests per second per client on POST endpoints.
	RateLimit float64
	RateBurst int

	DB    DB
	Redis Redis
	Kafka Kafka
	Order Order
	Admin Admin
}

type DB struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	PoolSize        int
	MaxIdle         int
	AcquireTimeout  time.Duration
	LockWaitTimeout time.Duration
	ConnectRetries  int
	RetryInterval   time.Duration
	MigrateRetries  int
}

// String never includes the password.
func (d DB) String() string {
	return fmt.Sprintf("%s@tcp(%s:%s)/%s", d.User, d.Host, d.Port, d.Name)
}

type Redis struct {
	Addr     string
	Password string
	DB       int
	CacheTTL time.Duration
	// SubmissionTTL bounds how long a used order submission token is remembered.
	SubmissionTTL time.Duration
}

type Kafka struct {
	Brokers []string
	Topic   string
	GroupID string
}

// Enabled reports whether any broker was configured.
func (k Kafka) Enabled() bool { return len(k.Brokers) > 0 }

type Order struct {
	Strategy string
	Timeout  time.Duration
}

// Admin has no defaults. The admin area stays off until a password and a
// signing secret are set.
type Admin struct {
	User      string
	Password  string
	JWTSecret string
	TokenTTL  time.Duration
}

func (a Admin) Enabled() bool { return a.Password != "" && a.JWTSecret != "" }

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoienv(key string, def int) int {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func floatenv(key string, def float64) float64 {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

// durenv accepts Go durations ("750ms") or plain seconds ("5").
func durenv(key string, def time.Duration) time.Duration {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if sec, err := strconv.Atoi(v); err == nil {
		return time.Duration(sec) * time.Second
	}
	return def
}

func listenv(key string) []string {
	v := getenv(key, "")
	if v == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Load reads a .env file when present, then the environment. Defaults are
// meant for local development only.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		HTTPAddr:        getenv("HTTP_ADDR", ":"+getenv("PORT", "3000")),
		ShutdownTimeout: durenv("SHUTDOWN_TIMEOUT", 15*time.Second),
		BasePath:        strings.TrimRight(getenv("BASE_PATH", ""), "/"),
		LogLevel:        getenv("LOG_LEVEL", "info"),
		RateLimit:       floatenv("RATE_LIMIT", 1),
		RateBurst:       atoienv("RATE_BURST", 3),
		DB: DB{
			Host:            getenv("MYSQL_HOST", "mysql"),
			Port:            getenv("MYSQL_PORT", "3306"),
			User:            getenv("MYSQL_USER", "root"),
			Password:        getenv("MYSQL_PASSWORD", "mysqlpass"),
			Name:            getenv("MYSQL_DATABASE", "store"),
			PoolSize:        atoienv("DB_POOL_SIZE", 10),
			MaxIdle:         atoienv("DB_MAX_IDLE", 5),
			AcquireTimeout:  durenv("DB_ACQUIRE_TIMEOUT", 3*time.Second),
			LockWaitTimeout: durenv("DB_LOCK_WAIT_TIMEOUT", 5*time.Second),
			ConnectRetries:  atoienv("DB_CONNECT_RETRIES", 10),
			RetryInterval:   durenv("DB_RETRY_INTERVAL", 3*time.Second),
			MigrateRetries:  atoienv("DB_MIGRATE_RETRIES", 3),
		},
		Redis: Redis{
			Addr:          getenv("REDIS_ADDR", ""),
			Password:      getenv("REDIS_PASSWORD", ""),
			DB:            atoienv("REDIS_DB", 0),
			CacheTTL:      durenv("CACHE_TTL", time.Minute),
			SubmissionTTL: durenv("SUBMISSION_TTL", 24*time.Hour),
		},
		Kafka: Kafka{
			Brokers: listenv("KAFKA_BROKERS"),
			Topic:   getenv("ORDER_TOPIC", "order-topic"),
			GroupID: getenv("KAFKA_GROUP_ID", "storefront-cache"),
		},
		Order: Order{
			Strategy: getenv("ORDER_STRATEGY", "locked"),
			Timeout:  durenv("ORDER_TIMEOUT", 5*time.Second),
		},
		Admin: Admin{
			User:      getenv("ADMIN_USER", "admin"),
			Password:  getenv("ADMIN_PASSWORD", ""),
			JWTSecret: getenv("ADMIN_JWT_SECRET", ""),
			TokenTTL:  durenv("ADMIN_TOKEN_TTL", 24*time.Hour),
		},
	}
}
