package config

import (
	"errors"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"kds/internal/logger"
)

type Log struct {
	Level      string `env:"LOG_LEVEL" envDefault:"info"`
	Format     string `env:"LOG_FORMAT" envDefault:"json"`
	Output     string `env:"LOG_OUTPUT" envDefault:"stdout"`
	File       string `env:"LOG_FILE" envDefault:"logs/kds.log"`
	MaxSizeMB  int    `env:"LOG_MAX_SIZE_MB" envDefault:"50"`
	MaxBackups int    `env:"LOG_MAX_BACKUPS" envDefault:"5"`
	MaxAgeDays int    `env:"LOG_MAX_AGE_DAYS" envDefault:"14"`
	Compress   bool   `env:"LOG_COMPRESS" envDefault:"false"`
}

func (l Log) Logger() logger.Config {
	return logger.Config{
		Level:      l.Level,
		Format:     l.Format,
		Output:     l.Output,
		File:       l.File,
		MaxSizeMB:  l.MaxSizeMB,
		MaxBackups: l.MaxBackups,
		MaxAgeDays: l.MaxAgeDays,
		Compress:   l.Compress,
	}
}

type RateLimit struct {
	PerMinute int `env:"RATE_LIMIT_PER_MIN" envDefault:"600"`
	Burst     int `env:"RATE_LIMIT_BURST" envDefault:"120"`
}

type Display struct {
	Port                string `env:"KDS_PORT" envDefault:"8090"`
	StaffAPIURL         string `env:"STAFF_API_URL"`
	StaffAPIToken       string `env:"STAFF_API_TOKEN"`
	PollSeconds         int    `env:"KDS_POLL_SECONDS" envDefault:"30"`
	FetchTimeoutSeconds int    `env:"KDS_FETCH_TIMEOUT_SECONDS" envDefault:"0"`
	Alerter             string `env:"KDS_ALERTER" envDefault:"hub"`
	AlertWebhookURL     string `env:"KDS_ALERT_WEBHOOK_URL"`
	AlertWebhookToken   string `env:"KDS_ALERT_WEBHOOK_TOKEN"`
	SoundEnabled        bool   `env:"KDS_SOUND_ENABLED" envDefault:"true"`
	StrictTransitions   bool   `env:"KDS_STRICT_TRANSITIONS" envDefault:"true"`
	AutoStart           bool   `env:"KDS_AUTOSTART" envDefault:"true"`
	TicketWidth         int    `env:"KDS_TICKET_WIDTH" envDefault:"42"`
	LateMinutes         int    `env:"KDS_LATE_MINUTES" envDefault:"15"`
	RateLimit
	Log
}

func (d Display) PollInterval() time.Duration {
	return seconds(d.PollSeconds)
}

func (d Display) FetchTimeout() time.Duration {
	return seconds(d.FetchTimeoutSeconds)
}

func (d Display) LateThreshold() time.Duration {
	if d.LateMinutes <= 0 {
		return 0
	}
	return time.Duration(d.LateMinutes) * time.Minute
}

type Orders struct {
	Port           string `env:"ORDERS_PORT" envDefault:"8081"`
	DatabaseURL    string `env:"DB_DSN"`
	RabbitMQURL    string `env:"RABBITMQ_URL"`
	EventsExchange string `env:"ORDERS_EVENTS_EXCHANGE" envDefault:"kds_events"`
	RateLimit
	Log
}

var (
	ErrMissingStaffAPI = errors.New("STAFF_API_URL is required")
	ErrMissingDSN      = errors.New("DB_DSN is required")
)

// LoadDisplay reads the kds-display settings from the environment, after
// loading an optional .env file (ENV_FILE overrides the path).
func LoadDisplay() (Display, error) {
	loadDotEnv()
	var cfg Display
	if err := env.Parse(&cfg); err != nil {
		return Display{}, err
	}
	if cfg.StaffAPIURL == "" {
		return cfg, ErrMissingStaffAPI
	}
	return cfg, nil
}

func LoadOrders() (Orders, error) {
	loadDotEnv()
	var cfg Orders
	if err := env.Parse(&cfg); err != nil {
		return Orders{}, err
	}
	if cfg.DatabaseURL == "" {
		return cfg, ErrMissingDSN
	}
	return cfg, nil
}

func loadDotEnv() {
	path := os.Getenv("ENV_FILE")
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		return
	}
	// Values already present in the environment win over the file.
	_ = godotenv.Load(path)
}

func seconds(value int) time.Duration {
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}
