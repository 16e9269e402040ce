package config

import (
	"database/sql"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

type Config struct {
	HTTPAddr string
	GRPCAddr string

	MySQLDSN        string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool

	// RedisAddr is empty when Redis is disabled
	RedisAddr         string
	RedisPoolSize     int
	IdempotencyTTL    time.Duration
	AllocationLockTTL time.Duration

	MaxAttempts int
	LogLevel    string
}

// Load reads an optional .env file and then the process environment.
// Malformed numbers fall back to their defaults.
func Load() Config {
	// Load env from .env
	_ = godotenv.Load()

	return Config{
		HTTPAddr: stringFromEnv("HTTP_ADDR", ":8080"),
		GRPCAddr: stringFromEnv("GRPC_ADDR", ":50051"),

		MySQLDSN:        mysqlDSN(),
		MaxOpenConns:    intFromEnv("DB_MAX_OPEN_CONNS", 50),
		MaxIdleConns:    intFromEnv("DB_MAX_IDLE_CONNS", 25),
		ConnMaxLifetime: time.Duration(intFromEnv("DB_CONN_MAX_LIFETIME_SECONDS", 300)) * time.Second,
		AutoMigrate:     boolFromEnv("AUTO_MIGRATE", false),

		RedisAddr:         lookupString("REDIS_ADDR", "localhost:6379"),
		RedisPoolSize:     intFromEnv("REDIS_POOL_SIZE", 100),
		IdempotencyTTL:    time.Duration(intFromEnv("IDEMPOTENCY_TTL_SECONDS", 86400)) * time.Second,
		AllocationLockTTL: time.Duration(intFromEnv("ALLOCATION_LOCK_TTL_SECONDS", 5)) * time.Second,

		MaxAttempts: intFromEnv("LEDGER_MAX_ATTEMPTS", 3),
		LogLevel:    stringFromEnv("LOG_LEVEL", "info"),
	}
}

// OpenMySQL opens the pool described by c. It does not ping.
func (c Config) OpenMySQL() (*sql.DB, error) {
	db, err := sql.Open("mysql", c.MySQLDSN)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}

	if c.MaxOpenConns > 0 {
		db.SetMaxOpenConns(c.MaxOpenConns)
	}
	if c.MaxIdleConns >= 0 {
		db.SetMaxIdleConns(c.MaxIdleConns)
	}
	if c.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(c.ConnMaxLifetime)
	}
	return db, nil
}

// RedisClient returns nil when Redis is disabled.
func (c Config) RedisClient() *redis.Client {
	if c.RedisAddr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     c.RedisAddr,
		PoolSize: c.RedisPoolSize,
	})
}

// mysqlDSN prefers MYSQL_DSN and otherwise assembles one from DB_* parts.
func mysqlDSN() string {
	if dsn := strings.TrimSpace(os.Getenv("MYSQL_DSN")); dsn != "" {
		return dsn
	}

	cfg := mysql.NewConfig()
	cfg.User = stringFromEnv("DB_USER", "root")
	cfg.Passwd = os.Getenv("DB_PASSWORD")
	cfg.DBName = stringFromEnv("DB_NAME", "stockledger")
	cfg.ParseTime = true

	host := stringFromEnv("DB_HOST", "localhost")
	if strings.HasPrefix(host, "/") {
		cfg.Net = "unix"
		cfg.Addr = host
	} else {
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(host, stringFromEnv("DB_PORT", "3306"))
	}
	return cfg.FormatDSN()
}

func stringFromEnv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

// lookupString distinguishes an explicitly empty variable from an unset one.
func lookupString(key, def string) string {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	return strings.TrimSpace(v)
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func boolFromEnv(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
