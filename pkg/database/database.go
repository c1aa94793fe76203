// Package database 负责建立关系型数据库与 Redis 连接。
package database

import (
	"context"
	"fmt"
	"time"

	"canon-rag-go/internal/config"
	"canon-rag-go/internal/model"
	"canon-rag-go/pkg/log"

	"github.com/go-redis/redis/v8"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Open 根据 driver 打开数据库连接并配置连接池。
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "", "mysql":
		dialector = mysql.Open(cfg.MySQL.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.Postgres.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.SQLite.Path)
	default:
		return nil, fmt.Errorf("不支持的数据库驱动: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)           // 设置空闲连接池中连接的最大数量
	sqlDB.SetMaxOpenConns(100)          // 设置打开数据库连接的最大数量
	sqlDB.SetConnMaxLifetime(time.Hour) // 设置了连接可复用的最大时间

	log.Infof("%s database connected successfully", dialector.Name())
	return db, nil
}

// AutoMigrate 创建或更新入库与检索用到的表。
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&model.Document{}, &model.DocumentChunk{}, &model.CanonSettings{})
}

// NewRedis 创建 Redis 客户端并测试连接。
func NewRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	log.Info("Redis client connected successfully")
	return rdb, nil
}
