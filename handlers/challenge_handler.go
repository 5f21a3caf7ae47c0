package handlers

import (
	"context"
	"net/http"
	"time"

	"challengeStreakAPI/internal/types/challenge"
	"challengeStreakAPI/middleware"
	"challengeStreakAPI/services"

	"github.com/gorilla/mux"
)

type ChallengeHandler struct {
	challengeService   *services.ChallengeService
	membershipService  *services.MembershipService
	leaderboardService *services.LeaderboardService
}

func NewChallengeHandler(challengeService *services.ChallengeService, membershipService *services.MembershipService, leaderboardService *services.LeaderboardService) *ChallengeHandler {
	return &ChallengeHandler{
		challengeService:   challengeService,
		membershipService:  membershipService,
		leaderboardService: leaderboardService,
	}
}

func (h *ChallengeHandler) ListChallenges(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	category := challenge.Category(r.URL.Query().Get("category"))
	challenges, err := h.challengeService.ListChallenges(ctx, category, r.URL.Query().Get("q"), queryLimit(r))
	if err != nil {
		respondWithServiceError(w, "list challenges", err)
		return
	}

	respondWithJSON(w, http.StatusOK, challenges)
}

func (h *ChallengeHandler) CreateChallenge(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req challenge.CreateChallengeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	created, err := h.challengeService.CreateChallenge(ctx, userID, req)
	if err != nil {
		respondWithServiceError(w, "create challenge", err)
		return
	}

	respondWithJSON(w, http.StatusCreated, created)
}

func (h *ChallengeHandler) GetChallenge(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	ch, err := h.challengeService.GetChallenge(ctx, mux.Vars(r)["id"])
	if err != nil {
		respondWithServiceError(w, "get challenge", err)
		return
	}

	respondWithJSON(w, http.StatusOK, ch)
}

func (h *ChallengeHandler) JoinChallenge(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	ch, err := h.challengeService.GetChallenge(ctx, mux.Vars(r)["id"])
	if err != nil {
		respondWithServiceError(w, "get challenge", err)
		return
	}

	m, err := h.membershipService.Join(ctx, ch, userID)
	if err != nil {
		respondWithServiceError(w, "join challenge", err)
		return
	}
	h.challengeService.Invalidate(ch.ID)

	respondWithJSON(w, http.StatusCreated, m)
}

func (h *ChallengeHandler) GetMembership(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	m, err := h.membershipService.GetMembership(ctx, mux.Vars(r)["id"], userID)
	if err != nil {
		respondWithServiceError(w, "get membership", err)
		return
	}
	if m == nil {
		respondWithError(w, http.StatusNotFound, "Not a member of this challenge")
		return
	}

	respondWithJSON(w, http.StatusOK, m)
}

func (h *ChallengeHandler) GetUserMemberships(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	memberships, err := h.membershipService.ListUserMemberships(ctx, userID)
	if err != nil {
		respondWithServiceError(w, "list memberships", err)
		return
	}

	respondWithJSON(w, http.StatusOK, memberships)
}

func (h *ChallengeHandler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	board, err := h.leaderboardService.GetChallengeLeaderboard(ctx, mux.Vars(r)["id"], userID, queryLimit(r))
	if err != nil {
		respondWithServiceError(w, "get leaderboard", err)
		return
	}

	respondWithJSON(w, http.StatusOK, board)
}
