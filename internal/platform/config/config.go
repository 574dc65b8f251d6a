package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	APIPort string
	JWTKey  []byte
	JWTExp  time.Duration

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSslMode  string
	DBConnStr  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JudgeQueueName   string
	JudgeWorkerCount int

	JudgeBaseURL      string
	JudgeAuthToken    string
	JudgePollInterval time.Duration
	JudgeMaxPolls     int

	// How long the submit endpoint waits for a verdict before answering
	// with the still-pending submission.
	SubmitWaitTimeout time.Duration

	LogLevel  string
	LogFormat string
}

var AppConfig *Config

func Load() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	AppConfig = &Config{
		APIPort:           getEnv("API_PORT", "8080"),
		JWTKey:            []byte(getEnv("JWT_SECRET", "defaultsecret")),
		JWTExp:            time.Duration(getEnvAsInt("JWT_EXPIRATION_HOURS", 72)) * time.Hour,
		DBHost:            getEnv("DB_HOST", "localhost"),
		DBPort:            getEnv("DB_PORT", "5432"),
		DBUser:            getEnv("DB_USER", "user"),
		DBPassword:        getEnv("DB_PASSWORD", "password"),
		DBName:            getEnv("DB_NAME", "code_arena_db"),
		DBSslMode:         getEnv("DB_SSLMODE", "disable"),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		RedisDB:           getEnvAsInt("REDIS_DB", 0),
		JudgeQueueName:    getEnv("JUDGE_QUEUE_NAME", "judge_jobs_queue"),
		JudgeWorkerCount:  getEnvAsInt("JUDGE_WORKER_COUNT", 4),
		JudgeBaseURL:      getEnv("JUDGE_BASE_URL", "http://localhost:2358"),
		JudgeAuthToken:    getEnv("JUDGE_AUTH_TOKEN", ""),
		JudgePollInterval: time.Duration(getEnvAsInt("JUDGE_POLL_INTERVAL_MS", 1000)) * time.Millisecond,
		JudgeMaxPolls:     getEnvAsInt("JUDGE_MAX_POLLS", 60),
		SubmitWaitTimeout: time.Duration(getEnvAsInt("SUBMIT_WAIT_TIMEOUT_SECONDS", 90)) * time.Second,
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "json"),
	}

	AppConfig.DBConnStr = "host=" + AppConfig.DBHost +
		" port=" + AppConfig.DBPort +
		" user=" + AppConfig.DBUser +
		" password=" + AppConfig.DBPassword +
		" dbname=" + AppConfig.DBName +
		" sslmode=" + AppConfig.DBSslMode
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}
