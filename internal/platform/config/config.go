package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full process configuration.
type Config struct {
	Server   Server
	Log      Log
	Database Database
	Redis    RedisConfig
	Kafka    Kafka
	Audit    Audit
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	JWTSigningKey   string
	JWTIssuer       string
	ShutdownTimeout time.Duration
}

type Log struct {
	Level  string
	Format string
}

// Database is optional. An empty URL keeps audit records in memory.
type Database struct {
	URL          string
	MaxOpenConns int
}

// RedisConfig is optional. An empty URL disables the stream copy.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Stream       string
	StreamMaxLen int64
}

// Kafka is optional. Without brokers records are written to the stores directly.
type Kafka struct {
	Brokers     []string
	Topic       string
	Group       string
	Materialize bool
}

type Audit struct {
	WriteTimeout     time.Duration
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// Load reads an optional .env file and then the environment. Variables already
// set in the environment win over the file.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	p := &parser{}
	cfg := Config{
		Server: Server{
			Addr:            p.str("LENDAUDIT_ADDR", ":8080"),
			JWTSigningKey:   p.str("JWT_SIGNING_KEY", ""),
			JWTIssuer:       p.str("JWT_ISSUER", "lendaudit"),
			ShutdownTimeout: p.duration("SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Log: Log{
			Level:  p.str("LOG_LEVEL", "info"),
			Format: p.str("LOG_FORMAT", "json"),
		},
		Database: Database{
			URL:          p.str("DATABASE_URL", ""),
			MaxOpenConns: p.int("DATABASE_MAX_OPEN_CONNS", 10),
		},
		Redis: RedisConfig{
			URL:          p.str("REDIS_URL", ""),
			PoolSize:     p.int("REDIS_POOL_SIZE", 10),
			MinIdleConns: p.int("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  p.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  p.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: p.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			Stream:       p.str("REDIS_AUDIT_STREAM", "audit:records"),
			StreamMaxLen: int64(p.int("REDIS_AUDIT_STREAM_MAXLEN", 100_000)),
		},
		Kafka: Kafka{
			Brokers:     p.list("KAFKA_BROKERS"),
			Topic:       p.str("KAFKA_AUDIT_TOPIC", "audit.records"),
			Group:       p.str("KAFKA_AUDIT_GROUP", "lendaudit-materializer"),
			Materialize: p.bool("KAFKA_AUDIT_MATERIALIZE", true),
		},
		Audit: Audit{
			WriteTimeout:     p.duration("AUDIT_WRITE_TIMEOUT", 5*time.Second),
			BreakerThreshold: p.int("AUDIT_BREAKER_THRESHOLD", 5),
			BreakerCooldown:  p.duration("AUDIT_BREAKER_COOLDOWN", 30*time.Second),
		},
	}
	if err := errors.Join(p.errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// parser collects every malformed variable instead of stopping at the first.
type parser struct {
	errs []error
}

func (p *parser) str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (p *parser) int(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid integer %q", key, v))
		return def
	}
	return n
}

func (p *parser) bool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid boolean %q", key, v))
		return def
	}
	return b
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid duration %q", key, v))
		return def
	}
	return d
}

func (p *parser) list(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
