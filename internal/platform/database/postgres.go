package database

import (
	"database/sql"
	"time"

	"code_arena/internal/platform/config"
	"code_arena/internal/platform/logger"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	"go.uber.org/zap"
)

var DB *sql.DB

func Connect() {
	var err error
	DB, err = sql.Open("pgx", config.AppConfig.DBConnStr)
	if err != nil {
		logger.L.Fatal("error opening database", zap.Error(err))
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	if err = DB.Ping(); err != nil {
		logger.L.Fatal("error connecting to database", zap.Error(err))
	}

	logger.L.Info("connected to PostgreSQL")
}

func Close() {
	if DB != nil {
		DB.Close()
		logger.L.Info("database connection closed")
	}
}
