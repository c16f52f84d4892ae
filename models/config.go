package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Config 構造体はサーバー全体の設定情報を保持します。
// Values come from defaults, an optional config.json, then PARTY_* environment variables.
type Config struct {
	Env      string `json:"env" envconfig:"ENV" validate:"oneof=development production test"`
	LogLevel string `json:"log_level" envconfig:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	HTTPAddr string `json:"http_addr" envconfig:"HTTP_ADDR" validate:"required"`

	DBDriver   string `json:"db_driver" envconfig:"DB_DRIVER" validate:"oneof=postgres sqlite"`
	DBHost     string `json:"db_host" envconfig:"DB_HOST" validate:"required_if=DBDriver postgres"`
	DBPort     int    `json:"db_port" envconfig:"DB_PORT"`
	DBUser     string `json:"db_user" envconfig:"DB_USER" validate:"required_if=DBDriver postgres"`
	DBPassword string `json:"db_password" envconfig:"DB_PASSWORD"`
	DBName     string `json:"db_name" envconfig:"DB_NAME" validate:"required_if=DBDriver postgres"`
	DBSSLMode  string `json:"db_sslmode" envconfig:"DB_SSLMODE"`
	SQLitePath string `json:"sqlite_path" envconfig:"SQLITE_PATH" validate:"required_if=DBDriver sqlite"`

	RedisAddr     string `json:"redis_addr" envconfig:"REDIS_ADDR" validate:"required"`
	RedisPassword string `json:"redis_password" envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `json:"redis_db" envconfig:"REDIS_DB" validate:"gte=0"`

	JWTSecret      string   `json:"jwt_secret" envconfig:"JWT_SECRET" validate:"required,min=16"`
	AllowedOrigins []string `json:"allowed_origins" envconfig:"ALLOWED_ORIGINS" validate:"min=1"`
	ShareBaseURL   string   `json:"share_base_url" envconfig:"SHARE_BASE_URL" validate:"required,url"`

	DefaultMaxParticipants int      `json:"default_max_participants" envconfig:"DEFAULT_MAX_PARTICIPANTS" validate:"min=2,max=50"`
	CodeMaxAttempts        int      `json:"code_max_attempts" envconfig:"CODE_MAX_ATTEMPTS" validate:"min=1"`
	ReaperSchedule         string   `json:"reaper_schedule" envconfig:"REAPER_SCHEDULE" validate:"required"`
	RoomExpiry             Duration `json:"room_expiry" envconfig:"ROOM_EXPIRY"`
	NotifyQueueSize        int      `json:"notify_queue_size" envconfig:"NOTIFY_QUEUE_SIZE" validate:"min=1"`

	RateLimitMax    int      `json:"rate_limit_max" envconfig:"RATE_LIMIT_MAX" validate:"min=1"`
	RateLimitWindow Duration `json:"rate_limit_window" envconfig:"RATE_LIMIT_WINDOW"`
}

// PostgresDSN は gorm.io/driver/postgres 用の接続文字列を組み立てます。
func (c Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBName, c.DBPassword, c.DBSSLMode)
}

// Duration accepts "30m" style strings in both JSON and environment variables.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	return d.Decode(s)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Decode implements envconfig.Decoder.
func (d *Duration) Decode(value string) error {
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}
