package handler

import (
	"net/http"

	"code_arena/internal/app/service"
	"code_arena/internal/common"
	"code_arena/internal/platform/logger"
	"code_arena/internal/ws"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The frontend is served from a different origin in every deployment we
	// run; auth happens at join time, not via the Origin header.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type WSHandler struct {
	hub            *ws.Hub
	contestService *service.ContestService
}

func NewWSHandler(hub *ws.Hub, contestService *service.ContestService) *WSHandler {
	return &WSHandler{hub: hub, contestService: contestService}
}

func (h *WSHandler) RegisterRoutes(r chi.Router) {
	r.Get("/contests/{contestID}", h.joinContestRoom)
}

// joinContestRoom upgrades the connection and subscribes it to the contest's
// leaderboard room. Anyone may watch; submitting still requires auth.
func (h *WSHandler) joinContestRoom(w http.ResponseWriter, r *http.Request) {
	contestID := chi.URLParam(r, "contestID")
	if _, err := h.contestService.GetContest(r.Context(), contestID); err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.L.Warn("websocket upgrade failed", zap.String("contest_id", contestID), zap.Error(err))
		return
	}

	h.hub.Join(contestID, conn)
}
