package config

import (
	"os"
	"strconv"
	"time"
)

// Server captures process level configuration for the biometrics server.
type Server struct {
	Addr        string
	Environment string

	// Upload handling.
	UploadDir      string
	MaxUploadBytes int64

	// Record and ciphertext storage.
	DataDir       string
	VaultDir      string
	EncryptionKey string
	DatabaseURL   string

	// External similarity tool.
	MatcherScript  string
	MatcherTimeout time.Duration

	Ledger Ledger
	Redis  Redis
	Kafka  Kafka
}

// Ledger configures the Golem Base mirror client.
type Ledger struct {
	RPCURL         string
	AppTag         string
	PrivateKey     string
	PublishTimeout time.Duration
	FetchTimeout   time.Duration
	CacheTTL       time.Duration
}

// Redis configures the optional ledger read cache.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka configures the optional audit event stream.
type Kafka struct {
	Brokers string
	Topic   string
}

const (
	defaultMaxUploadBytes = 16 << 20
	maxUploadCeiling      = 50 << 20
)

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	cfg := Server{
		Addr:           envOr("BIOMETRICS_ADDR", ":8080"),
		Environment:    envOr("ENVIRONMENT", "development"),
		UploadDir:      envOr("UPLOAD_DIR", "/tmp/biometrics_uploads"),
		DataDir:        envOr("DATA_DIR", "/tmp/biometrics_encrypted"),
		VaultDir:       envOr("VAULT_DIR", "/tmp/biometrics_encrypted"),
		EncryptionKey:  os.Getenv("ENCRYPTION_KEY"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		MatcherScript:  envOr("SIMILARITY_SCRIPT", "./similarity_check.sh"),
		MatcherTimeout: durationOr("SIMILARITY_TIMEOUT", 60*time.Second),
		MaxUploadBytes: defaultMaxUploadBytes,
		Ledger: Ledger{
			RPCURL:         envOr("GOLEM_DB_RPC", "https://ethwarsaw.holesky.golemdb.io/rpc"),
			AppTag:         envOr("GOLEM_APP_TAG", "HumanID-Biometrics"),
			PrivateKey:     os.Getenv("PRIVATE_KEY"),
			PublishTimeout: durationOr("GOLEM_PUBLISH_TIMEOUT", 30*time.Second),
			FetchTimeout:   durationOr("GOLEM_FETCH_TIMEOUT", 30*time.Second),
			CacheTTL:       durationOr("GOLEM_CACHE_TTL", 30*time.Second),
		},
		Redis: Redis{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     intOr("REDIS_POOL_SIZE", 10),
			MinIdleConns: intOr("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  durationOr("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  durationOr("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: durationOr("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: Kafka{
			Brokers: os.Getenv("KAFKA_BROKERS"),
			Topic:   envOr("KAFKA_AUDIT_TOPIC", "humanid.biometrics.audit"),
		},
	}

	// Deployments may raise the upload bound, but never past the protocol ceiling.
	if raw := os.Getenv("MAX_UPLOAD_BYTES"); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil && v > 0 {
			if v > maxUploadCeiling {
				v = maxUploadCeiling
			}
			cfg.MaxUploadBytes = v
		}
	}

	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) time.Duration {
	if raw := os.Getenv(key); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			return d
		}
	}
	return fallback
}

func intOr(key string, fallback int) int {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return fallback
}
