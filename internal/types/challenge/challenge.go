package challenge

import (
	"time"
)

type Category string

const (
	CategoryFitness     Category = "fitness"
	CategoryMindfulness Category = "mindfulness"
	CategoryLearning    Category = "learning"
	CategoryCreative    Category = "creative"
	CategoryHealth      Category = "health"
	CategoryOther       Category = "other"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryFitness, CategoryMindfulness, CategoryLearning, CategoryCreative, CategoryHealth, CategoryOther:
		return true
	}
	return false
}

// Challenge is immutable after creation apart from MemberCount.
type Challenge struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Category    Category  `json:"category"`
	Description string    `json:"description"`
	IconURL     string    `json:"icon_url,omitempty"`
	BannerURL   string    `json:"banner_url,omitempty"`
	CreatorID   string    `json:"creator_id"`
	MemberCount int       `json:"member_count"`
	CreatedAt   time.Time `json:"created_at"`
}

type CreateChallengeRequest struct {
	Title       string   `json:"title"`
	Category    Category `json:"category"`
	Description string   `json:"description"`
	IconURL     string   `json:"icon_url"`
	BannerURL   string   `json:"banner_url"`
}
