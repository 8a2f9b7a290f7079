package utils

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Booking  BookingConfig
	Gateway  GatewayConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Payout   PayoutConfig
}

type AppConfig struct {
	Name    string
	Port    string
	Debug   bool
	LogPath string
	Store   string // postgres | memory
}

type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	MaxConns int32
	Migrate  bool
}

// BookingConfig holds the business knobs of the booking engine.
type BookingConfig struct {
	PlatformFee        int64
	Currency           string
	CancellationWindow time.Duration
	BoardingGrace      time.Duration
	PendingTimeout     time.Duration
	SweepInterval      time.Duration
	SweepBatchSize     int
}

type GatewayConfig struct {
	BaseURL       string
	APIKey        string
	WebhookSecret string
	CallbackURL   string
	ReturnURL     string
	Timeout       time.Duration
}

type RedisConfig struct {
	URL string
}

type KafkaConfig struct {
	Brokers     []string
	TopicPrefix string
	Buffer      int
}

type PayoutConfig struct {
	SealKey string
}

func LoadConfig() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.SetConfigType("env")

	// Set defaults
	viper.SetDefault("APP_NAME", "bus-booking")
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("DEBUG", false)
	viper.SetDefault("LOG_PATH", "logs/")
	viper.SetDefault("STORE", "postgres")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_MAX_CONNS", 10)
	viper.SetDefault("DB_MIGRATE", true)
	viper.SetDefault("PLATFORM_FEE", 3000)
	viper.SetDefault("CURRENCY", "MWK")
	viper.SetDefault("BOOKING_CANCELLATION_HOURS", 24)
	viper.SetDefault("BOARDING_GRACE_MINUTES", 60)
	viper.SetDefault("PENDING_BOOKING_TIMEOUT_MINUTES", 15)
	viper.SetDefault("SWEEP_INTERVAL_SECONDS", 60)
	viper.SetDefault("SWEEP_BATCH_SIZE", 100)
	viper.SetDefault("PAYCHANGU_BASE_URL", "https://api.paychangu.com")
	viper.SetDefault("PAYCHANGU_CALLBACK_URL", "http://localhost:8080/api/payments/callback")
	viper.SetDefault("PAYCHANGU_RETURN_URL", "http://localhost:8080/api/payments/failed")
	viper.SetDefault("GATEWAY_TIMEOUT_SECONDS", 30)
	viper.SetDefault("KAFKA_TOPIC_PREFIX", "bus-booking")
	viper.SetDefault("EVENT_BUFFER", 256)

	// .env is optional; containers usually pass plain environment variables
	if err := viper.ReadInConfig(); err != nil {
		var pathErr *fs.PathError
		if !errors.As(err, &pathErr) {
			return nil, err
		}
	}

	viper.AutomaticEnv()

	config := &Config{
		App: AppConfig{
			Name:    viper.GetString("APP_NAME"),
			Port:    viper.GetString("PORT"),
			Debug:   viper.GetBool("DEBUG"),
			LogPath: viper.GetString("LOG_PATH"),
			Store:   strings.ToLower(viper.GetString("STORE")),
		},
		Database: DatabaseConfig{
			Host:     viper.GetString("DB_HOST"),
			Port:     viper.GetString("DB_PORT"),
			Name:     viper.GetString("DB_NAME"),
			User:     viper.GetString("DB_USER"),
			Password: viper.GetString("DB_PASS"),
			MaxConns: viper.GetInt32("DB_MAX_CONNS"),
			Migrate:  viper.GetBool("DB_MIGRATE"),
		},
		Booking: BookingConfig{
			PlatformFee:        viper.GetInt64("PLATFORM_FEE"),
			Currency:           viper.GetString("CURRENCY"),
			CancellationWindow: time.Duration(viper.GetInt("BOOKING_CANCELLATION_HOURS")) * time.Hour,
			BoardingGrace:      time.Duration(viper.GetInt("BOARDING_GRACE_MINUTES")) * time.Minute,
			PendingTimeout:     time.Duration(viper.GetInt("PENDING_BOOKING_TIMEOUT_MINUTES")) * time.Minute,
			SweepInterval:      time.Duration(viper.GetInt("SWEEP_INTERVAL_SECONDS")) * time.Second,
			SweepBatchSize:     viper.GetInt("SWEEP_BATCH_SIZE"),
		},
		Gateway: GatewayConfig{
			BaseURL:       viper.GetString("PAYCHANGU_BASE_URL"),
			APIKey:        viper.GetString("PAYCHANGU_API_KEY"),
			WebhookSecret: viper.GetString("PAYCHANGU_WEBHOOK_SECRET"),
			CallbackURL:   viper.GetString("PAYCHANGU_CALLBACK_URL"),
			ReturnURL:     viper.GetString("PAYCHANGU_RETURN_URL"),
			Timeout:       time.Duration(viper.GetInt("GATEWAY_TIMEOUT_SECONDS")) * time.Second,
		},
		Redis: RedisConfig{
			URL: viper.GetString("REDIS_URL"),
		},
		Kafka: KafkaConfig{
			Brokers:     splitList(viper.GetString("KAFKA_BROKERS")),
			TopicPrefix: viper.GetString("KAFKA_TOPIC_PREFIX"),
			Buffer:      viper.GetInt("EVENT_BUFFER"),
		},
		Payout: PayoutConfig{
			SealKey: viper.GetString("PAYOUT_SEAL_KEY"),
		},
	}

	if config.Booking.PlatformFee < 0 {
		return nil, errors.New("PLATFORM_FEE must not be negative")
	}
	if config.Payout.SealKey == "" {
		return nil, errors.New("PAYOUT_SEAL_KEY is required")
	}

	return config, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
