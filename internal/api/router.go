package api

import (
	"net/http"
	"time"

	"code_arena/internal/api/handler"
	"code_arena/internal/app/service"
	"code_arena/internal/common/security"
	"code_arena/internal/ws"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth/v5"
)

func NewRouter(
	authService *service.AuthService,
	submissionService *service.SubmissionService,
	contestService *service.ContestService,
	leaderboardService *service.LeaderboardService,
	hub *ws.Hub,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	// Websocket joins bypass the HTTP timeout: the connection is long-lived.
	wsHandler := handler.NewWSHandler(hub, contestService)
	r.Route("/ws", wsHandler.RegisterRoutes)

	r.Group(func(httpAPI chi.Router) {
		httpAPI.Use(chiMiddleware.Timeout(120 * time.Second))
		httpAPI.Use(jwtauth.Verifier(security.TokenAuth))

		httpAPI.Route("/api/v1", func(v1 chi.Router) {
			authHandler := handler.NewAuthHandler(authService)
			authHandler.RegisterRoutes(v1)

			submissionHandler := handler.NewSubmissionHandler(submissionService)
			v1.Route("/submissions", submissionHandler.RegisterRoutes)

			contestHandler := handler.NewContestHandler(contestService)
			leaderboardHandler := handler.NewLeaderboardHandler(leaderboardService)
			v1.Route("/contests", func(cr chi.Router) {
				contestHandler.RegisterRoutes(cr)
				leaderboardHandler.RegisterRoutes(cr)
			})
		})
	})

	return r
}
