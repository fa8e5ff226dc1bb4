package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Gateway  GatewayConfig
	Checkout CheckoutConfig
	Ops      OpsConfig
	API      APIConfig
}

type ServerConfig struct {
	Port int
	Env  string // "development", "production"
}

type DatabaseConfig struct {
	Host    string
	Port    string
	Name    string
	User    string
	Pass    string
	Charset string
}

type RedisConfig struct {
	Addr string
	Pass string
	DB   int
}

// GatewayConfig holds the hosted-checkout gateway credentials.
type GatewayConfig struct {
	BaseURL        string
	SecretKey      string
	CallbackURL    string
	CallbackDomain string
}

// CheckoutConfig tunes the completion-detection pipeline.
type CheckoutConfig struct {
	FallbackTimeout time.Duration
	VerifyAttempts  int
	VerifyDelay     time.Duration
}

// OpsConfig configures payment reports to the ops Telegram channel.
type OpsConfig struct {
	TelegramToken  string
	TelegramChatID string
}

type APIConfig struct {
	Key string
}

// Load reads configuration from .env file and environment variables.
func Load() (*Config, error) {
	// Load .env file (ignore error if missing)
	_ = godotenv.Load()

	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("APP_PORT", 8080)
	viper.SetDefault("APP_ENV", "production")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "3306")
	viper.SetDefault("DB_CHARSET", "utf8mb4")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("PAYSTACK_BASE_URL", "https://api.paystack.co")
	viper.SetDefault("PAYMENT_CALLBACK_DOMAIN", "errandpay.app")
	viper.SetDefault("CHECKOUT_FALLBACK_TIMEOUT", "5m")
	viper.SetDefault("CHECKOUT_VERIFY_ATTEMPTS", 3)
	viper.SetDefault("CHECKOUT_VERIFY_DELAY", "3s")

	cfg := &Config{
		Server: ServerConfig{
			Port: viper.GetInt("APP_PORT"),
			Env:  viper.GetString("APP_ENV"),
		},
		Database: DatabaseConfig{
			Host:    viper.GetString("DB_HOST"),
			Port:    viper.GetString("DB_PORT"),
			Name:    viper.GetString("DB_NAME"),
			User:    viper.GetString("DB_USER"),
			Pass:    viper.GetString("DB_PASS"),
			Charset: viper.GetString("DB_CHARSET"),
		},
		Redis: RedisConfig{
			Addr: viper.GetString("REDIS_ADDR"),
			Pass: viper.GetString("REDIS_PASS"),
			DB:   viper.GetInt("REDIS_DB"),
		},
		Gateway: GatewayConfig{
			BaseURL:        viper.GetString("PAYSTACK_BASE_URL"),
			SecretKey:      viper.GetString("PAYSTACK_SECRET_KEY"),
			CallbackURL:    viper.GetString("PAYMENT_CALLBACK_URL"),
			CallbackDomain: viper.GetString("PAYMENT_CALLBACK_DOMAIN"),
		},
		Checkout: CheckoutConfig{
			FallbackTimeout: durationSetting("CHECKOUT_FALLBACK_TIMEOUT", 5*time.Minute),
			VerifyAttempts:  viper.GetInt("CHECKOUT_VERIFY_ATTEMPTS"),
			VerifyDelay:     durationSetting("CHECKOUT_VERIFY_DELAY", 3*time.Second),
		},
		Ops: OpsConfig{
			TelegramToken:  viper.GetString("OPS_TELEGRAM_TOKEN"),
			TelegramChatID: viper.GetString("OPS_TELEGRAM_CHAT_ID"),
		},
		API: APIConfig{
			Key: viper.GetString("API_KEY"),
		},
	}

	if cfg.Database.Name == "" {
		log.Println("WARNING: DB_NAME is not set")
	}
	if cfg.Gateway.SecretKey == "" {
		log.Println("WARNING: PAYSTACK_SECRET_KEY is not set")
	}

	return cfg, nil
}

// LoadDatabaseOnly reads just the database settings, for schema bootstrap runs.
func LoadDatabaseOnly() (*DatabaseConfig, error) {
	_ = godotenv.Load()

	viper.AutomaticEnv()
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "3306")
	viper.SetDefault("DB_CHARSET", "utf8mb4")

	return &DatabaseConfig{
		Host:    viper.GetString("DB_HOST"),
		Port:    viper.GetString("DB_PORT"),
		Name:    viper.GetString("DB_NAME"),
		User:    viper.GetString("DB_USER"),
		Pass:    viper.GetString("DB_PASS"),
		Charset: viper.GetString("DB_CHARSET"),
	}, nil
}

func durationSetting(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(viper.GetString(key))
	if err != nil {
		return fallback
	}
	return d
}

// DSN returns the MySQL DSN string for GORM.
func (d *DatabaseConfig) DSN() string {
	return d.User + ":" + d.Pass + "@tcp(" + d.Host + ":" + d.Port + ")/" + d.Name + "?charset=" + d.Charset + "&parseTime=True&loc=Local"
}
