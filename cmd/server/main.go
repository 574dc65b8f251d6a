package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"code_arena/internal/api"
	"code_arena/internal/app/service"
	"code_arena/internal/app/worker"
	"code_arena/internal/common/security"
	"code_arena/internal/domain/repository"
	"code_arena/internal/judge"
	"code_arena/internal/platform/config"
	"code_arena/internal/platform/database"
	"code_arena/internal/platform/logger"
	"code_arena/internal/platform/queue"
	"code_arena/internal/ws"

	"go.uber.org/zap"
)

func main() {
	config.Load()
	if err := logger.Init(config.AppConfig.LogLevel, config.AppConfig.LogFormat); err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer logger.Sync()

	security.InitJWT()

	database.Connect()
	defer database.Close()

	queue.ConnectRedis()
	defer queue.CloseRedis()

	userRepo := repository.NewPgUserRepository(database.DB)
	problemRepo := repository.NewPgProblemRepository(database.DB)
	submissionRepo := repository.NewPgSubmissionRepository(database.DB)
	contestRepo := repository.NewPgContestRepository(database.DB)

	hub := ws.NewHub()
	waiters := service.NewResultWaiters()

	authService := service.NewAuthService(userRepo)
	contestService := service.NewContestService(contestRepo, problemRepo)
	submissionService := service.NewSubmissionService(submissionRepo, problemRepo, contestRepo, queue.RDB, waiters)
	leaderboardService := service.NewLeaderboardService(contestRepo, submissionRepo, userRepo)

	judgeClient := judge.NewClient(
		config.AppConfig.JudgeBaseURL,
		config.AppConfig.JudgeAuthToken,
		config.AppConfig.JudgePollInterval,
		config.AppConfig.JudgeMaxPolls,
	)

	judgeWorker := worker.NewJudgeWorker(
		queue.RDB, judgeClient,
		submissionRepo, problemRepo,
		leaderboardService, hub, waiters,
	)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	workerDone := make(chan struct{})
	go func() {
		judgeWorker.Run(workerCtx, config.AppConfig.JudgeWorkerCount)
		close(workerDone)
	}()

	router := api.NewRouter(authService, submissionService, contestService, leaderboardService, hub)

	server := &http.Server{
		Addr:    ":" + config.AppConfig.APIPort,
		Handler: router,
		// Submit responses can legitimately take the full judge wait window.
		ReadTimeout:  15 * time.Second,
		WriteTimeout: config.AppConfig.SubmitWaitTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.L.Info("server starting", zap.String("port", config.AppConfig.APIPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.L.Fatal("server failed", zap.Error(err))
		}
	}()

	<-stop

	logger.L.Info("shutting down")
	workerCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.L.Error("server shutdown failed", zap.Error(err))
	}

	<-workerDone
	logger.L.Info("stopped cleanly")
}
