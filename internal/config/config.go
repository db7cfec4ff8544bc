package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config holds application level configuration loaded from an optional TOML file
// and environment variables.
type Config struct {
	ServerPort    string `toml:"server_port"`
	PublicBaseURL string `toml:"public_base_url"`
	LogLevel      string `toml:"log_level"`
	SwaggerHost   string `toml:"swagger_host"`

	DBDriver   string `toml:"db_driver"`
	MySQLDSN   string `toml:"mysql_dsn"`
	SQLitePath string `toml:"sqlite_path"`
	ResetDB    bool   `toml:"reset_db"`

	RedisAddr string `toml:"redis_addr"`
	RedisDB   int    `toml:"redis_db"`
	RedisPass string `toml:"redis_password"`

	RabbitMQURL       string `toml:"rabbitmq_url"`
	RabbitMQMailQueue string `toml:"rabbitmq_mail_queue"`
	MailQueueSize     int    `toml:"mail_queue_size"`

	JWTSecret                string `toml:"jwt_secret"`
	JWTExpireMinute          int    `toml:"jwt_expire_minute"`
	VerificationTokenMinutes int    `toml:"verification_token_minutes"`
	ResetTokenMinutes        int    `toml:"reset_token_minutes"`

	Mail MailConfig `toml:"mail"`
}

// MailConfig holds the sender identity and OAuth2 credentials of the mail relay.
type MailConfig struct {
	SenderEmail  string `toml:"sender_email"`
	SMTPHost     string `toml:"smtp_host"`
	SMTPPort     int    `toml:"smtp_port"`
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RefreshToken string `toml:"refresh_token"`
}

// Enabled reports whether enough is configured to deliver real mail.
func (m MailConfig) Enabled() bool {
	return m.SenderEmail != "" && m.ClientID != "" && m.ClientSecret != "" && m.RefreshToken != ""
}

// Load builds Config from defaults, then CONFIG_FILE (if present), then the environment.
// A .env file in the working directory is loaded first when it exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()

	path := getEnv("CONFIG_FILE", "configs/config.toml")
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("decode config file %s: %w", path, err)
		}
	}

	overrideByEnv(cfg)
	return cfg, nil
}

// AccessTokenTTL returns the access token validity window.
func (c *Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.JWTExpireMinute) * time.Minute
}

// VerificationTokenTTL returns the email verification token validity window.
func (c *Config) VerificationTokenTTL() time.Duration {
	return time.Duration(c.VerificationTokenMinutes) * time.Minute
}

// ResetTokenTTL returns the password reset token validity window.
func (c *Config) ResetTokenTTL() time.Duration {
	return time.Duration(c.ResetTokenMinutes) * time.Minute
}

func defaults() *Config {
	return &Config{
		ServerPort:               "8080",
		PublicBaseURL:            "http://localhost:3000/api",
		LogLevel:                 "info",
		DBDriver:                 "mysql",
		MySQLDSN:                 "user:password@tcp(localhost:3306)/app?charset=utf8mb4&parseTime=True&loc=Local",
		SQLitePath:               "usersvc.db",
		RabbitMQMailQueue:        "mail.outbound",
		MailQueueSize:            100,
		JWTSecret:                "change-me",
		JWTExpireMinute:          24 * 60,
		VerificationTokenMinutes: 60,
		ResetTokenMinutes:        10,
		Mail: MailConfig{
			SMTPHost: "smtp.gmail.com",
			SMTPPort: 587,
		},
	}
}

func overrideByEnv(cfg *Config) {
	cfg.ServerPort = getEnv("SERVER_PORT", cfg.ServerPort)
	cfg.PublicBaseURL = getEnv("PUBLIC_BASE_URL", cfg.PublicBaseURL)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.SwaggerHost = getEnv("SWAGGER_HOST", cfg.SwaggerHost)

	cfg.DBDriver = getEnv("DB_DRIVER", cfg.DBDriver)
	cfg.MySQLDSN = getEnv("MYSQL_DSN", cfg.MySQLDSN)
	cfg.SQLitePath = getEnv("SQLITE_PATH", cfg.SQLitePath)
	cfg.ResetDB = getEnvBool("RESET_DB", cfg.ResetDB)

	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisDB = getEnvInt("REDIS_DB", cfg.RedisDB)
	cfg.RedisPass = getEnv("REDIS_PASSWORD", cfg.RedisPass)

	cfg.RabbitMQURL = getEnv("RABBITMQ_URL", cfg.RabbitMQURL)
	cfg.RabbitMQMailQueue = getEnv("RABBITMQ_MAIL_QUEUE", cfg.RabbitMQMailQueue)
	cfg.MailQueueSize = getEnvInt("MAIL_QUEUE_SIZE", cfg.MailQueueSize)

	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.JWTExpireMinute = getEnvInt("JWT_EXPIRE_MINUTE", cfg.JWTExpireMinute)
	cfg.VerificationTokenMinutes = getEnvInt("VERIFICATION_TOKEN_MINUTES", cfg.VerificationTokenMinutes)
	cfg.ResetTokenMinutes = getEnvInt("RESET_TOKEN_MINUTES", cfg.ResetTokenMinutes)

	cfg.Mail.SenderEmail = getEnv("SENDER_EMAIL", cfg.Mail.SenderEmail)
	cfg.Mail.SMTPHost = getEnv("SMTP_HOST", cfg.Mail.SMTPHost)
	cfg.Mail.SMTPPort = getEnvInt("SMTP_PORT", cfg.Mail.SMTPPort)
	cfg.Mail.ClientID = getEnv("GOOGLE_CLIENT_ID", cfg.Mail.ClientID)
	cfg.Mail.ClientSecret = getEnv("GOOGLE_CLIENT_SECRET", cfg.Mail.ClientSecret)
	cfg.Mail.RefreshToken = getEnv("GOOGLE_REFRESH_TOKEN", cfg.Mail.RefreshToken)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return def
}
