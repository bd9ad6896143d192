package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"

	"order-service/internal/util"
)

type Config struct {
	Environment string

	Server        ServerConfig
	Logging       LoggingConfig
	Redis         RedisConfig
	Scylla        ScyllaConfig
	Kafka         KafkaConfig
	Elasticsearch ElasticsearchConfig
	Clickhouse    ClickhouseConfig
	SMTP          SMTPConfig
	KMS           KMSConfig
	Hashing       HashingConfig
	OTP           OTPConfig
	Bucketing     BucketingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	EnableTLS    bool
	CertFile     string
	KeyFile      string
}

type LoggingConfig struct {
	Level  string
	Format string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
	// Timeout applied to every store round-trip issued by the repositories.
	OpTimeout time.Duration
}

type ScyllaConfig struct {
	Nodes    []string
	Keyspace string
	Username string
	Password string
}

type KafkaConfig struct {
	Brokers     []string
	EventsTopic string
}

type ElasticsearchConfig struct {
	URL      string
	Username string
	Password string
	// Index holding searchable catalog documents.
	FoodIndex string
}

type ClickhouseConfig struct {
	URL      string
	Database string
	Username string
	Password string
}

type SMTPConfig struct {
	Host     string
	Port     string
	From     string
	Username string
	Password string
}

type KMSConfig struct {
	Enabled bool
	KeyID   string
	Region  string
}

type HashingConfig struct {
	Argon2MemoryCost  int
	Argon2TimeCost    int
	Argon2Parallelism int
}

// OTPConfig carries the fixed verification policy. The expiring store only
// enforces the TTL it is handed; the policy itself lives here.
type OTPConfig struct {
	Length      int
	SessionTTL  time.Duration
	MaxAttempts int
}

type BucketingConfig struct {
	UserBuckets int
}

// LoadConfig reads configuration from the environment, with .env support
// for local development.
func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		Environment: util.GetEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:         util.GetEnv("SERVER_HOST", "0.0.0.0"),
			Port:         util.GetEnvInt("SERVER_PORT", 8080),
			ReadTimeout:  util.GetEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: util.GetEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  util.GetEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			EnableTLS:    util.GetEnvBool("SERVER_ENABLE_TLS", false),
			CertFile:     util.GetEnv("SERVER_CERT_FILE", ""),
			KeyFile:      util.GetEnv("SERVER_KEY_FILE", ""),
		},
		Logging: LoggingConfig{
			Level:  util.GetEnv("LOG_LEVEL", "info"),
			Format: util.GetEnv("LOG_FORMAT", "json"),
		},
		Redis: RedisConfig{
			URL:       util.GetEnv("REDIS_URL", "redis://localhost:6379"),
			Password:  util.GetEnv("REDIS_PASSWORD", ""),
			DB:        util.GetEnvInt("REDIS_DB", 0),
			PoolSize:  util.GetEnvInt("REDIS_POOL_SIZE", 50),
			OpTimeout: util.GetEnvDuration("REDIS_OP_TIMEOUT", 5*time.Second),
		},
		Scylla: ScyllaConfig{
			Nodes:    util.GetEnvSlice("SCYLLA_NODES", []string{"localhost:9042"}),
			Keyspace: util.GetEnv("SCYLLA_KEYSPACE", "kitchen"),
			Username: util.GetEnv("SCYLLA_USERNAME", ""),
			Password: util.GetEnv("SCYLLA_PASSWORD", ""),
		},
		Kafka: KafkaConfig{
			Brokers:     util.GetEnvSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			EventsTopic: util.GetEnv("KAFKA_EVENTS_TOPIC", "ordering-events"),
		},
		Elasticsearch: ElasticsearchConfig{
			URL:       util.GetEnv("ELASTICSEARCH_URL", "http://localhost:9200"),
			Username:  util.GetEnv("ELASTICSEARCH_USERNAME", ""),
			Password:  util.GetEnv("ELASTICSEARCH_PASSWORD", ""),
			FoodIndex: util.GetEnv("ELASTICSEARCH_FOOD_INDEX", "foods"),
		},
		Clickhouse: ClickhouseConfig{
			URL:      util.GetEnv("CLICKHOUSE_URL", "localhost:9000"),
			Database: util.GetEnv("CLICKHOUSE_DATABASE", "analytics"),
			Username: util.GetEnv("CLICKHOUSE_USERNAME", "default"),
			Password: util.GetEnv("CLICKHOUSE_PASSWORD", ""),
		},
		SMTP: SMTPConfig{
			Host:     util.GetEnv("SMTP_HOST", "localhost"),
			Port:     util.GetEnv("SMTP_PORT", "587"),
			From:     util.GetEnv("SMTP_FROM", "Chuks Kitchen <no-reply@chukskitchen.dev>"),
			Username: util.GetEnv("SMTP_USERNAME", ""),
			Password: util.GetEnv("SMTP_PASSWORD", ""),
		},
		KMS: KMSConfig{
			Enabled: util.GetEnvBool("KMS_ENABLED", false),
			KeyID:   util.GetEnv("KMS_KEY_ID", ""),
			Region:  util.GetEnv("AWS_REGION", "us-east-1"),
		},
		Hashing: HashingConfig{
			Argon2MemoryCost:  util.GetEnvInt("ARGON2_MEMORY_COST", 65536),
			Argon2TimeCost:    util.GetEnvInt("ARGON2_TIME_COST", 3),
			Argon2Parallelism: util.GetEnvInt("ARGON2_PARALLELISM", 2),
		},
		OTP: OTPConfig{
			Length:      util.GetEnvInt("OTP_LENGTH", 6),
			SessionTTL:  util.GetEnvDuration("OTP_SESSION_TTL", 600*time.Second),
			MaxAttempts: util.GetEnvInt("OTP_MAX_ATTEMPTS", 5),
		},
		Bucketing: BucketingConfig{
			UserBuckets: util.GetEnvInt("USER_BUCKETS", 64),
		},
	}
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
