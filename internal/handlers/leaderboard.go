package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"studysync-backend/internal/services"
)

type LeaderboardHandler struct {
	svc *services.LeaderboardService
}

func NewLeaderboardHandler(svc *services.LeaderboardService) *LeaderboardHandler {
	return &LeaderboardHandler{svc: svc}
}

// Weekly serves GET /groups/{groupID}/leaderboard?week=2025-W03. An
// omitted week means the current one.
func (h *LeaderboardHandler) Weekly(w http.ResponseWriter, r *http.Request) {
	groupID, err := uuid.Parse(chi.URLParam(r, "groupID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid group ID", r))
		return
	}

	week := r.URL.Query().Get("week")
	if week != "" {
		if _, _, err := services.WeekBounds(week); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid ISO week, use e.g. 2025-W03", r))
			return
		}
	}

	board, err := h.svc.GetWeeklyLeaderboard(r.Context(), groupID, week)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"leaderboard": board,
	})
}
