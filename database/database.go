package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/go-playground/validator/v10"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"partyserver/models"
)

const (
	maxRetries    = 3               // 最大再試行回数
	retryInterval = 5 * time.Second // 再試行間の待機時間
)

// DefaultConfig はローカル開発用の設定値を返します。
func DefaultConfig() models.Config {
	return models.Config{
		Env:                    "development",
		LogLevel:               "info",
		HTTPAddr:               ":8080",
		DBDriver:               "postgres",
		DBHost:                 "localhost",
		DBPort:                 5432,
		DBUser:                 "postgres",
		DBName:                 "partyserver",
		DBSSLMode:              "disable",
		SQLitePath:             "partyserver.db",
		RedisAddr:              "localhost:6379",
		AllowedOrigins:         []string{"http://localhost:3000"},
		ShareBaseURL:           "http://localhost:3000",
		DefaultMaxParticipants: 10,
		CodeMaxAttempts:        10,
		ReaperSchedule:         "@every 30m",
		RoomExpiry:             models.Duration{Duration: 24 * time.Hour},
		NotifyQueueSize:        256,
		RateLimitMax:           30,
		RateLimitWindow:        models.Duration{Duration: time.Minute},
	}
}

// LoadConfig layers defaults, the optional JSON file at filename, a .env file
// and PARTY_* environment variables, then validates the result.
func LoadConfig(filename string) (models.Config, error) {
	config := DefaultConfig()

	if filename != "" {
		configFile, err := os.Open(filename)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return config, err
		default:
			defer configFile.Close()
			if err := json.NewDecoder(configFile).Decode(&config); err != nil {
				return config, fmt.Errorf("decode %s: %w", filename, err)
			}
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return config, fmt.Errorf("load .env: %w", err)
	}
	if err := envconfig.Process("PARTY", &config); err != nil {
		return config, fmt.Errorf("read environment: %w", err)
	}
	if err := validator.New().Struct(config); err != nil {
		return config, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// Open は設定に応じて PostgreSQL か SQLite に接続します。
func Open(config models.Config, logger *zap.Logger) (*gorm.DB, error) {
	if config.DBDriver == "sqlite" {
		return OpenSQLite(config.SQLitePath)
	}
	return InitPostgreSQL(config, logger)
}

func InitPostgreSQL(config models.Config, logger *zap.Logger) (*gorm.DB, error) {
	var err error
	for i := 0; i <= maxRetries; i++ {
		var gormDB *gorm.DB
		gormDB, err = gorm.Open(postgres.Open(config.PostgresDSN()), gormConfig())
		if err == nil {
			logger.Info("Connected to PostgreSQL")
			return gormDB, nil
		}
		logger.Error("データベース接続のリトライ", zap.Int("retry", i), zap.Error(err))
		if i < maxRetries {
			time.Sleep(retryInterval)
		}
	}
	return nil, fmt.Errorf("データベース接続に失敗しました: %w", err)
}

// OpenSQLite opens a SQLite database. A single connection serialises
// transactions, which stands in for the row locks PostgreSQL provides.
func OpenSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return nil, err
	}
	return db, nil
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Warn),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}
}

func InitRedis(config models.Config, logger *zap.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		logger.Error("Failed to connect to Redis", zap.Error(err))
		rdb.Close()
		return nil, err
	}

	logger.Info("Connected to Redis", zap.String("addr", config.RedisAddr))
	return rdb, nil
}
