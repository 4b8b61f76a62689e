package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Env      string `env:"ENV,default=dev"`
	LogLevel string `env:"LOG_LEVEL,default=info" validate:"oneof=debug info warn error"`
	NodeID   int64  `env:"NODE_ID,default=1" validate:"min=0,max=1023"`

	Smoke  Smoke
	Redis  Redis
	Kafka  Kafka
	Scylla Scylla
	Stub   Stub
}

type Smoke struct {
	BaseURL      string        `env:"SMOKE_BASE_URL,default=http://localhost:8080/api" validate:"required,url"`
	Identifier   string        `env:"SMOKE_IDENTIFIER,default=counselor1@unza.zm" validate:"required"`
	Password     string        `env:"SMOKE_PASSWORD,default=11111111" validate:"required"`
	RecipientID  int64         `env:"SMOKE_RECIPIENT_ID,default=2" validate:"gt=0"`
	Subject      string        `env:"SMOKE_SUBJECT,default=Test Message"`
	Content      string        `env:"SMOKE_CONTENT,default=This is a test message from counselor to client"`
	Timeout      time.Duration `env:"SMOKE_TIMEOUT,default=30s" validate:"gt=0"`
	TokenPreview int           `env:"SMOKE_TOKEN_PREVIEW,default=50" validate:"min=0"`
	WebSocketURL string        `env:"SMOKE_WS_URL" validate:"omitempty,url"`
}

type Redis struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASS"`
	Key      string `env:"REDIS_REPORT_KEY,default=smoke:reports"`
	Keep     int64  `env:"REDIS_REPORT_KEEP,default=100" validate:"gt=0"`
}

type Kafka struct {
	Brokers []string `env:"KAFKA_BROKERS"`
	Topic   string   `env:"KAFKA_TOPIC,default=smoke-reports"`
	GroupID string   `env:"KAFKA_GROUP_ID,default=smoke-collector"`
}

type Scylla struct {
	Hosts    []string `env:"SCYLLA_HOSTS,default=localhost:9042"`
	Keyspace string   `env:"SCYLLA_KEYSPACE,default=smoke" validate:"required,alphanum"`
}

type Stub struct {
	Addr      string        `env:"STUB_ADDR,default=:8080"`
	JWTSecret string        `env:"STUB_JWT_SECRET,default=stub_secret_key"`
	TokenTTL  time.Duration `env:"STUB_TOKEN_TTL,default=24h"`
}

func (c Config) IsDevelopment() bool {
	return strings.EqualFold(c.Env, "dev")
}

// Load reads an optional .env file, then the process environment.
func Load(ctx context.Context) (Config, error) {
	return load(ctx, envconfig.OsLookuper())
}

func load(ctx context.Context, lookuper envconfig.Lookuper) (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}

	config := Config{}
	if err := envconfig.ProcessWith(ctx, &config, lookuper); err != nil {
		return Config{}, fmt.Errorf("parsing env vars: %w", err)
	}

	if err := validator.New().Struct(config); err != nil {
		return Config{}, fmt.Errorf("validating config: %w", err)
	}
	return config, nil
}
