package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
)

type Config struct {
	DBHost string
	DBPort string
	DBUser string
	DBPass string
	DBName string

	DBMaxOpenConns int
	DBMaxIdleConns int

	DiscordToken string
	OpsAddr      string

	OpTimeout         time.Duration
	LockWait          time.Duration
	CacheMaxEntries   int
	CacheIdleTTL      time.Duration
	ExpiryInterval    time.Duration
	RetentionInterval time.Duration
	RetentionAge      time.Duration
}

// Load reads configuration from the environment, loading a .env file
// first when one is present.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg := Config{
		DBHost:            getEnv("MARIADB_HOST", "127.0.0.1"),
		DBPort:            getEnv("MARIADB_PORT", "3306"),
		DBUser:            os.Getenv("MARIADB_USER"),
		DBPass:            os.Getenv("MARIADB_PASSWORD"),
		DBName:            getEnv("MARIADB_DB", "dcvotebot"),
		DiscordToken:      os.Getenv("DISCORD_TOKEN"),
		OpsAddr:           getEnv("OPS_ADDR", "0.0.0.0:8080"),
		DBMaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 10),
		DBMaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
		OpTimeout:         getEnvDuration("OP_TIMEOUT", 5*time.Second),
		LockWait:          getEnvDuration("LOCK_WAIT", 3*time.Second),
		CacheMaxEntries:   getEnvInt("CACHE_MAX_ENTRIES", 10_000),
		CacheIdleTTL:      getEnvDuration("CACHE_IDLE_TTL", 24*time.Hour),
		ExpiryInterval:    getEnvDuration("EXPIRY_INTERVAL", time.Minute),
		RetentionInterval: getEnvDuration("RETENTION_INTERVAL", 12*time.Hour),
		RetentionAge:      getEnvDuration("RETENTION_AGE", 30*24*time.Hour),
	}

	if cfg.DBUser == "" {
		return Config{}, fmt.Errorf("MARIADB_USER is required")
	}
	return cfg, nil
}

// DSN builds the MariaDB connection string. parseTime makes the driver
// return time.Time for TIMESTAMP columns.
func (c Config) DSN() string {
	mc := mysql.NewConfig()
	mc.User = c.DBUser
	mc.Passwd = c.DBPass
	mc.Net = "tcp"
	mc.Addr = c.DBHost + ":" + c.DBPort
	mc.DBName = c.DBName
	mc.ParseTime = true
	return mc.FormatDSN()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("Invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}
