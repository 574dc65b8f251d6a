package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"code_arena/internal/api/middleware"
	"code_arena/internal/app/service"
	"code_arena/internal/common"

	"github.com/go-chi/chi/v5"
)

type ContestHandler struct {
	contestService *service.ContestService
}

func NewContestHandler(cs *service.ContestService) *ContestHandler {
	return &ContestHandler{contestService: cs}
}

func (h *ContestHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.listContests)
	r.Get("/{contestID}", h.getContest)

	r.Group(func(auth chi.Router) {
		auth.Use(middleware.Authenticator)
		auth.Post("/{contestID}/register", h.register)
		auth.Delete("/{contestID}/register", h.deregister)
		auth.Get("/{contestID}/registration", h.registrationStatus)

		auth.Group(func(admin chi.Router) {
			admin.Use(middleware.AdminOnly)
			admin.Post("/", h.createContest)
			admin.Delete("/{contestID}", h.deleteContest)
		})
	})
}

func (h *ContestHandler) createContest(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "User identity missing")
		return
	}

	var req service.CreateContestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}

	contest, err := h.contestService.CreateContest(r.Context(), userID, req)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusCreated, contest)
}

func (h *ContestHandler) getContest(w http.ResponseWriter, r *http.Request) {
	contest, err := h.contestService.GetContest(r.Context(), chi.URLParam(r, "contestID"))
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, contest)
}

func (h *ContestHandler) listContests(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "page_size", 20)

	contests, total, err := h.contestService.ListContests(r.Context(), page, pageSize)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"contests": contests,
		"total":    total,
		"page":     page,
	})
}

func (h *ContestHandler) deleteContest(w http.ResponseWriter, r *http.Request) {
	if err := h.contestService.DeleteContest(r.Context(), chi.URLParam(r, "contestID")); err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// register is idempotent: registering twice responds 200 both times.
func (h *ContestHandler) register(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "User identity missing")
		return
	}

	if err := h.contestService.Register(r.Context(), chi.URLParam(r, "contestID"), userID); err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, map[string]bool{"registered": true})
}

func (h *ContestHandler) deregister(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "User identity missing")
		return
	}

	if err := h.contestService.Deregister(r.Context(), chi.URLParam(r, "contestID"), userID); err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, map[string]bool{"registered": false})
}

func (h *ContestHandler) registrationStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "User identity missing")
		return
	}

	registered, err := h.contestService.IsRegistered(r.Context(), chi.URLParam(r, "contestID"), userID)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, map[string]bool{"registered": registered})
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v, err := strconv.Atoi(r.URL.Query().Get(key)); err == nil && v > 0 {
		return v
	}
	return fallback
}
