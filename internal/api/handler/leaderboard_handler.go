package handler

import (
	"net/http"

	"code_arena/internal/app/service"
	"code_arena/internal/common"

	"github.com/go-chi/chi/v5"
)

type LeaderboardHandler struct {
	leaderboardService *service.LeaderboardService
}

func NewLeaderboardHandler(ls *service.LeaderboardService) *LeaderboardHandler {
	return &LeaderboardHandler{leaderboardService: ls}
}

func (h *LeaderboardHandler) RegisterRoutes(r chi.Router) {
	r.Get("/{contestID}/leaderboard", h.getLeaderboard)
}

// getLeaderboard recomputes the standings on demand. The result is the same
// one pushed over the websocket; this endpoint is the poll fallback.
func (h *LeaderboardHandler) getLeaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := h.leaderboardService.Build(r.Context(), chi.URLParam(r, "contestID"))
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, board)
}
