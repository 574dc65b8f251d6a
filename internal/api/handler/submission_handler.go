package handler

import (
	"encoding/json"
	"net/http"

	"code_arena/internal/api/middleware"
	"code_arena/internal/app/service"
	"code_arena/internal/common"
	"code_arena/internal/domain/model"

	"github.com/go-chi/chi/v5"
)

type SubmissionHandler struct {
	submissionService *service.SubmissionService
}

func NewSubmissionHandler(ss *service.SubmissionService) *SubmissionHandler {
	return &SubmissionHandler{submissionService: ss}
}

func (h *SubmissionHandler) RegisterRoutes(r chi.Router) {
	r.Use(middleware.Authenticator)
	r.Post("/", h.submit)
	r.Get("/me", h.listMine)
	r.Get("/{submissionID}", h.getSubmission)
	r.Get("/languages", h.listLanguages)
}

// submit waits for the verdict when it arrives within the configured window,
// so the common case responds with a judged submission. A pending status in
// the response means the client should poll GET /{submissionID}.
func (h *SubmissionHandler) submit(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "User identity missing")
		return
	}

	var req service.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}

	sub, err := h.submissionService.Submit(r.Context(), userID, req)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}

	status := http.StatusOK
	if !sub.Terminal() {
		status = http.StatusAccepted
	}
	common.RespondWithJSON(w, status, sub)
}

func (h *SubmissionHandler) listMine(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "User identity missing")
		return
	}

	var problemID *string
	if p := r.URL.Query().Get("problem_id"); p != "" {
		problemID = &p
	}

	subs, err := h.submissionService.ListUserSubmissions(r.Context(), userID, problemID)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, subs)
}

func (h *SubmissionHandler) getSubmission(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "User identity missing")
		return
	}

	sub, err := h.submissionService.GetSubmission(r.Context(), chi.URLParam(r, "submissionID"))
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}

	role, _ := middleware.GetUserRoleFromContext(r.Context())
	if sub.UserID != userID && role != model.RoleAdmin {
		common.RespondWithError(w, http.StatusForbidden, "Not your submission")
		return
	}
	common.RespondWithJSON(w, http.StatusOK, sub)
}

func (h *SubmissionHandler) listLanguages(w http.ResponseWriter, r *http.Request) {
	common.RespondWithJSON(w, http.StatusOK, model.SupportedLanguages())
}
