package gbp

import (
	"encoding/json"
	"time"
)

// LocationRef addresses one Business Profile location.
type LocationRef struct {
	AccountId  string
	LocationId string
}

// SourceReview is the adapter's normalized view of one external review.
type SourceReview struct {
	ReviewId     string
	CustomerName string
	Rating       int
	Text         string
	CreateTime   time.Time
	UpdateTime   time.Time
	HasReply     bool
	ReplyText    string
}

type gbpReviewer struct {
	DisplayName string `json:"displayName"`
	IsAnonymous bool   `json:"isAnonymous"`
}

type gbpReviewReply struct {
	Comment    string `json:"comment"`
	UpdateTime string `json:"updateTime"`
}

type gbpReview struct {
	ReviewId   string          `json:"reviewId"`
	Reviewer   gbpReviewer     `json:"reviewer"`
	StarRating string          `json:"starRating"`
	Comment    string          `json:"comment"`
	CreateTime string          `json:"createTime"`
	UpdateTime string          `json:"updateTime"`
	Reply      *gbpReviewReply `json:"reviewReply"`
}

type gbpListResponse struct {
	Reviews          []json.RawMessage `json:"reviews"`
	NextPageToken    string            `json:"nextPageToken"`
	TotalReviewCount int               `json:"totalReviewCount"`
}

// The reviews API encodes ratings as words.
var starRatings = map[string]int{
	"ONE":   1,
	"TWO":   2,
	"THREE": 3,
	"FOUR":  4,
	"FIVE":  5,
}

func ratingFromStar(star string) int {
	if n, ok := starRatings[star]; ok {
		return n
	}
	return 0
}

func parseTimeOrZero(value string) time.Time {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
