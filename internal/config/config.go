package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Port              string
	AllowedOrigin     string
	DatabaseURL       string
	AutoMigrate       bool
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	ReportCacheTTL    time.Duration
	SettlementLockTTL time.Duration
	KafkaBrokers      string
	KafkaTopic        string
	AuthSecret        string
	AccessTokenTTL    time.Duration
	CommissionRate    decimal.Decimal
	LockWaitTimeout   time.Duration
	LogLevel          string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() Config {
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	cacheTTL, err := strconv.Atoi(getEnv("REPORT_CACHE_TTL_SECONDS", "300"))
	if err != nil || cacheTTL < 1 {
		cacheTTL = 300
	}
	lockTTL, err := strconv.Atoi(getEnv("SETTLEMENT_LOCK_TTL_SECONDS", "30"))
	if err != nil || lockTTL < 1 {
		lockTTL = 30
	}
	lockWait, err := strconv.Atoi(getEnv("LOCK_WAIT_TIMEOUT_MS", "5000"))
	if err != nil || lockWait < 1 {
		lockWait = 5000
	}
	rate, err := decimal.NewFromString(getEnv("COMMISSION_RATE", "0.06"))
	if err != nil {
		// Left negative so ValidateCommission refuses to start.
		rate = decimal.NewFromInt(-1)
	}
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}
	autoMigrate, _ := strconv.ParseBool(getEnv("AUTO_MIGRATE", "false"))

	return Config{
		Port:              getEnv("PORT", "8080"),
		AllowedOrigin:     getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		AutoMigrate:       autoMigrate,
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		RedisDB:           redisDB,
		ReportCacheTTL:    time.Duration(cacheTTL) * time.Second,
		SettlementLockTTL: time.Duration(lockTTL) * time.Second,
		KafkaBrokers:      strings.TrimSpace(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:        getEnv("KAFKA_TOPIC", "ledger-events"),
		AuthSecret:        strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTL:    time.Duration(tokenTTL) * time.Minute,
		CommissionRate:    rate,
		LockWaitTimeout:   time.Duration(lockWait) * time.Millisecond,
		LogLevel:          getEnv("LOG_LEVEL", "info"),
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

// ValidateCommission requires a rate in [0, 1).
func (c Config) ValidateCommission() error {
	if c.CommissionRate.IsNegative() || c.CommissionRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("COMMISSION_RATE must be a decimal in [0, 1), got %s", c.CommissionRate)
	}
	return nil
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
