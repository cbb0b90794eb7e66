package config

import (
	"errors"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	HttpServerPort uint16   `env:"HTTP_SERVER_PORT" envDefault:"8080" validate:"min=1000,max=65535"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS"  envDefault:"*"    envSeparator:","`

	HistoryCapacity  int           `env:"HISTORY_CAPACITY"   envDefault:"100"  validate:"min=1,max=10000"`
	HistoryReplay    int           `env:"HISTORY_REPLAY"     envDefault:"10"   validate:"min=0,ltefield=HistoryCapacity"`
	MaxFrameBytes    int64         `env:"MAX_FRAME_BYTES"    envDefault:"8192" validate:"min=512"`
	ClientSendBuffer int           `env:"CLIENT_SEND_BUFFER" envDefault:"256"  validate:"min=2"`
	SweepInterval    time.Duration `env:"SWEEP_INTERVAL"     envDefault:"30s"`

	PresenceMirrorEnabled bool   `env:"PRESENCE_MIRROR_ENABLED" envDefault:"false"`
	RedisHost             string `env:"REDIS_HOST"              envDefault:"localhost"`
	RedisPort             uint16 `env:"REDIS_PORT"              envDefault:"6379" validate:"min=1000,max=65535"`
	RedisDB               int    `env:"REDIS_DB"                envDefault:"0"    validate:"min=0,max=15"`
	RedisPresenceKey      string `env:"REDIS_PRESENCE_KEY"      envDefault:"chat:presence"        validate:"required"`
	RedisPresenceChannel  string `env:"REDIS_PRESENCE_CHANNEL"  envDefault:"chat:presence:events" validate:"required"`

	SessionLogEnabled bool   `env:"SESSION_LOG_ENABLED" envDefault:"false"`
	PostgresHost      string `env:"POSTGRES_HOST"     envDefault:"localhost"`
	PostgresPort      string `env:"POSTGRES_PORT"     envDefault:"5432"`
	PostgresUser      string `env:"POSTGRES_USER"     envDefault:"chat_user"`
	PostgresPassword  string `env:"POSTGRES_PASSWORD" envDefault:"chat_password"`
	PostgresDb        string `env:"POSTGRES_DB"       envDefault:"chat_db"`
}

var ErrInvalidSweepInterval = errors.New("SWEEP_INTERVAL must be positive")

func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	err := godotenv.Load(".env")
	if err != nil {
		zap.L().Debug(".env file not found", zap.Error(err))
	}

	cfg := &Config{}
	// Parse config from environment variables
	if err = env.Parse(cfg); err != nil {
		zap.L().Error("config_load_failed", zap.Error(err))
		return nil, err
	}

	// Validate the config
	validate := validator.New()
	err = validate.Struct(cfg)
	if err != nil {
		zap.L().Error("config_validation_failed", zap.Error(err))
		return nil, err
	}
	if cfg.SweepInterval <= 0 {
		zap.L().Error("config_validation_failed", zap.Error(ErrInvalidSweepInterval))
		return nil, ErrInvalidSweepInterval
	}
	return cfg, nil
}
