package handlers

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"challengeStreakAPI/internal/media"
	"challengeStreakAPI/internal/types/post"
	"challengeStreakAPI/middleware"
	"challengeStreakAPI/services"

	"github.com/gorilla/mux"
)

const maxImageBytes = 10 << 20

type PostHandler struct {
	postService       *services.PostService
	membershipService *services.MembershipService
	uploader          media.Uploader
}

func NewPostHandler(postService *services.PostService, membershipService *services.MembershipService, uploader media.Uploader) *PostHandler {
	if uploader == nil {
		uploader = media.Disabled()
	}
	return &PostHandler{
		postService:       postService,
		membershipService: membershipService,
		uploader:          uploader,
	}
}

func (h *PostHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	posts, err := h.postService.ListPosts(ctx, mux.Vars(r)["id"], queryLimit(r))
	if err != nil {
		respondWithServiceError(w, "list posts", err)
		return
	}

	respondWithJSON(w, http.StatusOK, posts)
}

// SubmitPost accepts either a JSON body or a multipart form whose optional
// "image" file is uploaded before the post is recorded.
func (h *PostHandler) SubmitPost(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}
	challengeID := mux.Vars(r)["id"]

	m, err := h.membershipService.GetMembership(ctx, challengeID, userID)
	if err != nil {
		respondWithServiceError(w, "get membership", err)
		return
	}
	if m == nil {
		respondWithError(w, http.StatusForbidden, "Join the challenge before posting")
		return
	}

	var req post.SubmitPostRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if !h.readMultipartPost(ctx, w, r, challengeID, userID, &req) {
			return
		}
	} else if !decodeJSON(w, r, &req) {
		return
	}

	created, outcome, err := h.postService.SubmitPost(ctx, m, req)
	var partial *services.PartialFailureError
	switch {
	case errors.As(err, &partial):
		respondWithJSON(w, http.StatusCreated, post.SubmitPostResponse{
			Post:               partial.Post,
			Streak:             partial.Outcome,
			StreakUpdateFailed: true,
			Message:            "Your post was saved but your streak could not be updated. Retry the streak update instead of posting again.",
		})
		return
	case err != nil:
		respondWithServiceError(w, "submit post", err)
		return
	}

	respondWithJSON(w, http.StatusCreated, post.SubmitPostResponse{
		Post:   created,
		Streak: outcome,
	})
}

func (h *PostHandler) readMultipartPost(ctx context.Context, w http.ResponseWriter, r *http.Request, challengeID, userID string, req *post.SubmitPostRequest) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes+1<<20)
	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid multipart form")
		return false
	}
	req.Content = r.FormValue("content")
	req.ImageURL = r.FormValue("image_url")

	file, _, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return true
	}
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid image upload")
		return false
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxImageBytes+1))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid image upload")
		return false
	}
	if len(data) > maxImageBytes {
		respondWithError(w, http.StatusRequestEntityTooLarge, "Image is larger than 10MB")
		return false
	}
	contentType := http.DetectContentType(data)

	key, err := media.PostImageKey(challengeID, userID, contentType)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return false
	}

	url, err := h.uploader.Upload(ctx, key, contentType, bytes.NewReader(data))
	switch {
	case errors.Is(err, media.ErrUploadsDisabled):
		respondWithError(w, http.StatusBadRequest, err.Error())
		return false
	case err != nil:
		log.Printf("SubmitPost: image upload failed: %v", err)
		respondWithError(w, http.StatusBadGateway, "Failed to upload image")
		return false
	}

	req.ImageURL = url
	return true
}

func (h *PostHandler) GetTodayPost(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	today, err := h.postService.HasPostedToday(ctx, mux.Vars(r)["id"], userID)
	if err != nil {
		respondWithServiceError(w, "check today's post", err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"posted_today": today != nil,
		"post":         today,
	})
}

func (h *PostHandler) RetryStreakUpdate(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	outcome, err := h.postService.RetryStreakUpdate(ctx, userID, mux.Vars(r)["id"])
	if err != nil {
		respondWithServiceError(w, "retry streak update", err)
		return
	}

	respondWithJSON(w, http.StatusOK, outcome)
}
