package handlers

import (
	"context"
	"net/http"
	"time"

	"learnquestAPI/middleware"
	"learnquestAPI/services"
)

// AdminHandler serves the internal lifecycle endpoints the scheduler calls.
// They sit behind the cron-secret middleware, not user auth.
type AdminHandler struct {
	challengeService *services.DailyChallengeService
}

func NewAdminHandler(challengeService *services.DailyChallengeService) *AdminHandler {
	return &AdminHandler{challengeService: challengeService}
}

func (h *AdminHandler) GenerateChallenges(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	date, err := parseDateParam(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid date, expected YYYY-MM-DD")
		return
	}

	challenges, err := h.challengeService.GenerateChallenges(ctx, date, nil)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to generate challenges")
		return
	}

	middleware.RecordChallengesGenerated(len(challenges))
	respondWithJSON(w, http.StatusOK, challenges)
}

func (h *AdminHandler) AutoAssignAllUsers(w http.ResponseWriter, r *http.Request) {
	// Bulk assignment walks every active user; give it more room than a
	// normal request.
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	success, failed, err := h.challengeService.AutoAssignDailyChallengesToAllUsers(ctx)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Auto-assign failed")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]int{
		"success": success,
		"failed":  failed,
	})
}

func (h *AdminHandler) ResetExpiredChallenges(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if err := h.challengeService.ResetExpiredChallenges(ctx); err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to reset expired challenges")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
