package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

const (
	StoreD1       = "d1"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"

	ProviderWorker = "worker"
	ProviderOpenAI = "openai"
)

type AppConfig struct {
	Env      string `envconfig:"APP_ENV" default:"production"`
	HTTPPort string `envconfig:"HTTP_PORT" default:"8000" validate:"required,numeric"`

	// Usage store
	StoreDriver  string        `envconfig:"STORE_DRIVER" default:"d1" validate:"oneof=d1 sqlite postgres"`
	CFAccountID  string        `envconfig:"CF_ACCOUNT_ID" validate:"required_if=StoreDriver d1"`
	CFDatabaseID string        `envconfig:"CF_D1_DATABASE_ID" validate:"required_if=StoreDriver d1"`
	CFAPIToken   string        `envconfig:"CF_API_TOKEN" validate:"required_if=StoreDriver d1"`
	SQLitePath   string        `envconfig:"SQLITE_PATH" default:"astrobot.db"`
	DatabaseURL  string        `envconfig:"DATABASE_URL" validate:"required_if=StoreDriver postgres"`
	StoreTimeout time.Duration `envconfig:"STORE_TIMEOUT" default:"30s"`

	Redis RedisConfig

	// Billing
	LagoURL              string `envconfig:"LAGO_API_URL" validate:"required,url"`
	LagoAPIKey           string `envconfig:"LAGO_API_KEY" validate:"required"`
	PlanCodeDaily        string `envconfig:"LAGO_PLAN_CODE_DAILY" default:"daily_9"`
	PlanCodeWeekly       string `envconfig:"LAGO_PLAN_CODE_WEEKLY" default:"weekly_49"`
	LagoWebhookPublicKey string `envconfig:"LAGO_WEBHOOK_PUBLIC_KEY"`
	FreeTierQuestions    int    `envconfig:"FREE_TIER_QUESTIONS" default:"3" validate:"gte=0"`

	WhatsApp WhatsAppConfig

	// AI
	WorkerURL        string `envconfig:"WORKER_URL" validate:"omitempty,url"`
	WorkerToken      string `envconfig:"CF_TOKEN"`
	ChromaURL        string `envconfig:"CHROMA_URL" validate:"omitempty,url"`
	ChromaCollection string `envconfig:"CHROMA_COLLECTION" default:"vedic_texts"`
	ChromaAPIKey     string `envconfig:"CHROMA_API_KEY"`
	AIProvider       string `envconfig:"AI_PROVIDER" default:"worker" validate:"oneof=worker openai"`
	OpenAIKey        string `envconfig:"OPENAI_API_KEY" validate:"required_if=AIProvider openai"`
	OpenAIModel      string `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`

	DedupCapacity  int           `envconfig:"DEDUP_CAPACITY" default:"1000" validate:"gt=0"`
	DedupTTL       time.Duration `envconfig:"DEDUP_TTL" default:"300s"`
	SessionTTL     time.Duration `envconfig:"SESSION_TTL" default:"24h"`
	OpsAPIKey      string        `envconfig:"OPS_API_KEY"`
	ProcessTimeout time.Duration `envconfig:"PROCESS_TIMEOUT" default:"60s"`
}

type RedisConfig struct {
	Enabled     bool     `envconfig:"REDIS_ENABLED" default:"false"`
	Addresses   []string `envconfig:"REDIS_ADDRESSES" default:"localhost:6379" validate:"required_if=Enabled true"`
	Password    string   `envconfig:"REDIS_PASSWORD"`
	DB          int      `envconfig:"REDIS_DB" default:"0"`
	PoolSize    int      `envconfig:"REDIS_POOL_SIZE" default:"10"`
	ClusterMode bool     `envconfig:"REDIS_CLUSTER_MODE" default:"false"`
}

type WhatsAppConfig struct {
	AccessToken   string  `envconfig:"WA_ACCESS_TOKEN"`
	PhoneNumberID string  `envconfig:"WA_PHONE_NUMBER_ID"`
	VerifyToken   string  `envconfig:"WA_VERIFY_TOKEN"`
	AppSecret     string  `envconfig:"META_APP_SECRET"`
	GraphURL      string  `envconfig:"WA_GRAPH_URL" default:"https://graph.facebook.com/v22.0" validate:"url"`
	SendRate      float64 `envconfig:"WA_SEND_RATE" default:"20" validate:"gt=0"`
	SendBurst     int     `envconfig:"WA_SEND_BURST" default:"40" validate:"gt=0"`
	PaymentConfig string  `envconfig:"WA_PAYMENT_CONFIG"`
}

// Load reads the environment into AppConfig and validates it.
func Load() (*AppConfig, error) {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *AppConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *AppConfig) IsDevelopment() bool {
	return c.Env == "development" || c.Env == "dev" || c.Env == "local"
}

func (c *AppConfig) Addr() string {
	return ":" + c.HTTPPort
}
