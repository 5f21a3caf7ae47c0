package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"challengeStreakAPI/internal/types/comment"
	"challengeStreakAPI/internal/types/reaction"
	"challengeStreakAPI/middleware"
	"challengeStreakAPI/services"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type EngagementHandler struct {
	postService     *services.PostService
	reactionService *services.ReactionService
	commentService  *services.CommentService
	commentsLimit   int
}

func NewEngagementHandler(postService *services.PostService, reactionService *services.ReactionService, commentService *services.CommentService, commentsLimit int) *EngagementHandler {
	return &EngagementHandler{
		postService:     postService,
		reactionService: reactionService,
		commentService:  commentService,
		commentsLimit:   commentsLimit,
	}
}

func (h *EngagementHandler) ToggleReaction(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req reaction.ToggleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.reactionService.Toggle(ctx, mux.Vars(r)["id"], userID, req.Kind)
	if err != nil {
		respondWithServiceError(w, "toggle reaction", err)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

func (h *EngagementHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	comments, err := h.commentService.RecentComments(ctx, mux.Vars(r)["id"], queryLimit(r))
	if err != nil {
		respondWithServiceError(w, "list comments", err)
		return
	}

	respondWithJSON(w, http.StatusOK, comments)
}

func (h *EngagementHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req comment.CreateCommentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	created, err := h.commentService.AddComment(ctx, mux.Vars(r)["id"], userID, req.Content)
	if err != nil {
		respondWithServiceError(w, "add comment", err)
		return
	}

	respondWithJSON(w, http.StatusCreated, created)
}

// GetFeed returns the settled feed of a challenge as the caller sees it.
func (h *EngagementHandler) GetFeed(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	view := h.newView(mux.Vars(r)["id"], userID)
	if err := view.Load(ctx); err != nil {
		respondWithServiceError(w, "load feed", err)
		return
	}

	respondWithJSON(w, http.StatusOK, view.Snapshot())
}

// FeedSocket streams every merged feed snapshot over a websocket and accepts
// refresh, toggle and comment actions.
func (h *EngagementHandler) FeedSocket(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Could not upgrade connection: %v", err)
		return
	}

	view := h.newView(mux.Vars(r)["id"], userID)
	client := services.NewFeedClient(context.Background(), view, h.reactionService, h.commentService, conn, userID)
	go client.Run()
}

func (h *EngagementHandler) newView(challengeID, userID string) *services.EngagementView {
	return services.NewEngagementView(challengeID, userID, h.postService, h.reactionService, h.commentService, h.commentsLimit)
}
