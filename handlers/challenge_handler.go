package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"learnquestAPI/internal/storage"
	"learnquestAPI/internal/types/challenge"
	"learnquestAPI/internal/types/leaderboard"
	"learnquestAPI/middleware"
	"learnquestAPI/services"
)

type ChallengeHandler struct {
	challengeService *services.DailyChallengeService
	evaluator        *services.ConditionEvaluator
}

func NewChallengeHandler(challengeService *services.DailyChallengeService, evaluator *services.ConditionEvaluator) *ChallengeHandler {
	return &ChallengeHandler{
		challengeService: challengeService,
		evaluator:        evaluator,
	}
}

// resolveUser pulls the authenticated clerk ID from context and maps it to
// the internal user id, writing the error response itself on failure.
func (h *ChallengeHandler) resolveUser(ctx context.Context, w http.ResponseWriter) (uuid.UUID, bool) {
	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return uuid.Nil, false
	}

	userID, err := h.challengeService.ResolveUser(ctx, clerkID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "User not found")
		} else {
			respondWithError(w, http.StatusInternalServerError, "Failed to resolve user")
		}
		return uuid.Nil, false
	}

	return userID, true
}

func parseDateParam(r *http.Request) (time.Time, error) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		return time.Now(), nil
	}
	return time.ParseInLocation("2006-01-02", raw, time.Local)
}

func (h *ChallengeHandler) GetDailyChallenges(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	date, err := parseDateParam(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid date, expected YYYY-MM-DD")
		return
	}

	challenges, err := h.challengeService.GetDailyChallenges(ctx, date)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to load daily challenges")
		return
	}

	respondWithJSON(w, http.StatusOK, challenges)
}

func (h *ChallengeHandler) GetMyChallenges(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := h.resolveUser(ctx, w)
	if !ok {
		return
	}

	// Assign-on-read keeps first-time users from seeing an empty day.
	if _, err := h.challengeService.AssignToUser(ctx, userID, time.Now()); err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to assign daily challenges")
		return
	}

	joined, err := h.challengeService.GetUserChallenges(ctx, userID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to load your challenges")
		return
	}

	respondWithJSON(w, http.StatusOK, joined)
}

type updateProgressRequest struct {
	Progress int `json:"progress"`
}

func (h *ChallengeHandler) UpdateProgress(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := h.resolveUser(ctx, w)
	if !ok {
		return
	}

	challengeID, err := uuid.Parse(mux.Vars(r)["challengeID"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid challenge id")
		return
	}

	var req updateProgressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Progress < 0 {
		respondWithError(w, http.StatusBadRequest, "Progress must not be negative")
		return
	}

	row, err := h.challengeService.UpdateProgress(ctx, userID, challengeID, req.Progress)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "Challenge not found")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Failed to update progress")
		return
	}

	if row.Completed {
		middleware.RecordChallengeCompletion()
	}

	respondWithJSON(w, http.StatusOK, row)
}

type batchUpdateRequest struct {
	Updates []challenge.ProgressUpdate `json:"updates"`
}

func (h *ChallengeHandler) BatchUpdateProgress(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	userID, ok := h.resolveUser(ctx, w)
	if !ok {
		return
	}

	var req batchUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Updates) == 0 {
		respondWithError(w, http.StatusBadRequest, "No updates provided")
		return
	}

	rows, err := h.challengeService.BatchUpdateProgress(ctx, userID, req.Updates)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to update progress")
		return
	}

	respondWithJSON(w, http.StatusOK, rows)
}

func (h *ChallengeHandler) ClaimReward(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := h.resolveUser(ctx, w)
	if !ok {
		return
	}

	challengeID, err := uuid.Parse(mux.Vars(r)["challengeID"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid challenge id")
		return
	}

	row, err := h.challengeService.ClaimReward(ctx, userID, challengeID)
	if err != nil {
		if errors.Is(err, services.ErrInvalidClaim) {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Failed to claim reward")
		return
	}

	middleware.RecordRewardClaim()
	respondWithJSON(w, http.StatusOK, row)
}

func (h *ChallengeHandler) CheckCondition(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := h.resolveUser(ctx, w)
	if !ok {
		return
	}

	challengeID, err := uuid.Parse(mux.Vars(r)["challengeID"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid challenge id")
		return
	}

	ch, err := h.challengeService.GetChallenge(ctx, challengeID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "Challenge not found")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Failed to load challenge")
		return
	}

	eligible := true
	if ch.Condition != challenge.ConditionNone {
		eligible = h.evaluator.Evaluate(ctx, userID, ch.Condition, challengeID)
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"challenge_id": challengeID,
		"condition":    ch.Condition,
		"eligible":     eligible,
	})
}

func (h *ChallengeHandler) GetCompletionRate(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := h.resolveUser(ctx, w)
	if !ok {
		return
	}

	days := 30
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 365 {
			respondWithError(w, http.StatusBadRequest, "Invalid days parameter")
			return
		}
		days = parsed
	}

	rate, err := h.challengeService.GetUserChallengeCompletionRate(ctx, userID, days)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to compute completion rate")
		return
	}

	respondWithJSON(w, http.StatusOK, rate)
}

func (h *ChallengeHandler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	kind := leaderboard.Kind(r.URL.Query().Get("type"))
	if kind == "" {
		kind = leaderboard.KindCompletion
	}
	period := leaderboard.Period(r.URL.Query().Get("period"))
	if period == "" {
		period = leaderboard.PeriodWeekly
	}

	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondWithError(w, http.StatusBadRequest, "Invalid limit parameter")
			return
		}
		limit = parsed
	}

	board, err := h.challengeService.GetChallengeLeaderboard(ctx, kind, period, limit)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, board)
}

// Helper functions
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "Internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}
