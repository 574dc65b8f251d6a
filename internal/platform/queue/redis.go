package queue

import (
	"context"

	"code_arena/internal/platform/config"
	"code_arena/internal/platform/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var RDB *redis.Client

func ConnectRedis() {
	RDB = redis.NewClient(&redis.Options{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisDB,
	})

	if _, err := RDB.Ping(context.Background()).Result(); err != nil {
		logger.L.Fatal("could not connect to Redis", zap.Error(err))
	}
	logger.L.Info("connected to Redis")
}

func CloseRedis() {
	if RDB != nil {
		RDB.Close()
		logger.L.Info("redis connection closed")
	}
}
