package config

import (
	"os"
	"strconv"
	"time"
)

// Server captures the process-level configuration. FromEnv keeps main lean;
// everything has a development default except the Postgres DSN, whose absence
// selects the in-memory stores.
type Server struct {
	Addr          string
	PostgresDSN   string
	Redis         RedisConfig
	Kafka         KafkaConfig
	JWTSigningKey string
	AdminToken    string

	// SlotCacheTTL bounds how stale a cached "next free slot" answer may be.
	SlotCacheTTL time.Duration
	// SoftHoldTTL is the fixed expiry of a soft slot reservation.
	SoftHoldTTL time.Duration
}

// RedisConfig holds connection settings for the slot cache and soft holds.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig holds the event pipeline settings. Empty brokers disable
// publishing (events are logged and dropped).
type KafkaConfig struct {
	Brokers     []string
	EventsTopic string
	AuditTopic  string
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	addr := os.Getenv("IMPFPORTAL_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	return Server{
		Addr:          addr,
		PostgresDSN:   os.Getenv("POSTGRES_DSN"),
		JWTSigningKey: jwtSigningKey,
		AdminToken:    os.Getenv("ADMIN_TOKEN"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:     splitNonEmpty(os.Getenv("KAFKA_BROKERS")),
			EventsTopic: envString("KAFKA_EVENTS_TOPIC", "vaccination.dossier-events"),
			AuditTopic:  envString("KAFKA_AUDIT_TOPIC", "vaccination.audit"),
		},
		SlotCacheTTL: envDuration("SLOT_CACHE_TTL", 30*time.Second),
		SoftHoldTTL:  envDuration("SOFT_HOLD_TTL", 10*time.Minute),
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if part := s[start:i]; part != "" {
				out = append(out, part)
			}
			start = i + 1
		}
	}
	return out
}
