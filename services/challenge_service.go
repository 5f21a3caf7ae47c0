package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"challengeStreakAPI/internal/docstore"
	"challengeStreakAPI/internal/types/challenge"

	lru "github.com/hashicorp/golang-lru"
	"github.com/sahilm/fuzzy"
)

const (
	maxTitleLength         = 80
	maxDescriptionLength   = 1000
	defaultChallengeLimit  = 50
	defaultChallengeCached = 256
)

type ChallengeService struct {
	store docstore.Store
	cache *lru.Cache
}

func NewChallengeService(store docstore.Store, cacheSize int) *ChallengeService {
	if cacheSize <= 0 {
		cacheSize = defaultChallengeCached
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		log.Printf("NewChallengeService: failed to create cache of size %d: %v", cacheSize, err)
		cache, _ = lru.New(defaultChallengeCached)
	}
	return &ChallengeService{
		store: store,
		cache: cache,
	}
}

func (s *ChallengeService) CreateChallenge(ctx context.Context, creatorID string, req challenge.CreateChallengeRequest) (*challenge.Challenge, error) {
	if creatorID == "" {
		return nil, ErrNotAuthenticated
	}

	title := cleanText(req.Title)
	description := cleanText(req.Description)
	switch {
	case title == "":
		return nil, validationErr("title is required")
	case utf8.RuneCountInString(title) > maxTitleLength:
		return nil, validationErr("title is longer than %d characters", maxTitleLength)
	case utf8.RuneCountInString(description) > maxDescriptionLength:
		return nil, validationErr("description is longer than %d characters", maxDescriptionLength)
	}

	category := req.Category
	if category == "" {
		category = challenge.CategoryOther
	}
	if !category.Valid() {
		return nil, validationErr("unknown category %q", category)
	}

	id, err := s.store.Add(ctx, collChallenges, docstore.Document{
		"title":       title,
		"category":    string(category),
		"description": description,
		"iconUrl":     strings.TrimSpace(req.IconURL),
		"bannerUrl":   strings.TrimSpace(req.BannerURL),
		"creatorId":   creatorID,
		"memberCount": 0,
		"createdAt":   docstore.ServerTimestamp,
	})
	if err != nil {
		return nil, persistenceErr("create challenge", err)
	}

	log.Printf("CreateChallenge: user %s created challenge %s", creatorID, id)
	return s.GetChallenge(ctx, id)
}

// GetChallenge serves from the cache when it can. Everything but MemberCount
// is immutable, so callers that change membership call Invalidate.
func (s *ChallengeService) GetChallenge(ctx context.Context, id string) (*challenge.Challenge, error) {
	if cached, ok := s.cache.Get(id); ok {
		c := *cached.(*challenge.Challenge)
		return &c, nil
	}

	snap, err := s.store.Get(ctx, collChallenges, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, fmt.Errorf("challenge %s: %w", id, ErrNotFound)
		}
		return nil, persistenceErr("get challenge", err)
	}

	c := challengeFromSnapshot(snap)
	stored := *c
	s.cache.Add(id, &stored)
	return c, nil
}

func (s *ChallengeService) Invalidate(id string) {
	s.cache.Remove(id)
}

type challengeTitles []*challenge.Challenge

func (c challengeTitles) String(i int) string {
	return strings.ToLower(c[i].Title)
}

func (c challengeTitles) Len() int {
	return len(c)
}

// ListChallenges returns the newest challenges, optionally limited to one
// category. A non-empty query ranks titles by fuzzy match and drops the rest.
func (s *ChallengeService) ListChallenges(ctx context.Context, category challenge.Category, query string, limit int) ([]*challenge.Challenge, error) {
	if category != "" && !category.Valid() {
		return nil, validationErr("unknown category %q", category)
	}
	if limit <= 0 {
		limit = defaultChallengeLimit
	}

	q := docstore.Collection(collChallenges).Order("createdAt", true)
	if category != "" {
		q = q.Where("category", docstore.OpEqual, string(category))
	}
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		q = q.Take(limit)
	}

	snaps, err := s.store.Query(ctx, q)
	if err != nil {
		return nil, persistenceErr("list challenges", err)
	}

	challenges := make(challengeTitles, 0, len(snaps))
	for _, snap := range snaps {
		challenges = append(challenges, challengeFromSnapshot(snap))
	}
	if query == "" {
		return challenges, nil
	}

	matches := fuzzy.FindFrom(query, challenges)
	ranked := make([]*challenge.Challenge, 0, min(len(matches), limit))
	for _, match := range matches {
		if len(ranked) == limit {
			break
		}
		ranked = append(ranked, challenges[match.Index])
	}
	return ranked, nil
}
