package gbp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// TokenProvider resolves a usable access token for a tenant, refreshing if needed.
type TokenProvider interface {
	AccessToken(ctx context.Context, businessId string) (string, error)
}

// Client wraps the Google Business Profile reviews API. One shared instance serves all
// tenants; per-tenant auth is resolved per call through the TokenProvider.
type Client struct {
	baseURL string
	http    *http.Client
	limiter <-chan time.Time
	tokens  TokenProvider
}

func NewClient(tokens TokenProvider) *Client {
	baseURL := strings.TrimSpace(os.Getenv("GBP_API_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://mybusiness.googleapis.com/v4"
	}
	rateLimitPerMin := int64(30)
	if v := strings.TrimSpace(os.Getenv("GBP_RATE_LIMIT_PER_MIN")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			rateLimitPerMin = n
		}
	}
	interval := time.Minute / time.Duration(rateLimitPerMin)

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: time.Tick(interval),
		tokens:  tokens,
	}
}

// FetchReviews pages through a location's reviews, newest first, and returns at most
// maxCount reviews updated within the window. window <= 0 means full history.
func (c *Client) FetchReviews(ctx context.Context, businessId string, loc LocationRef, window time.Duration, maxCount int) ([]SourceReview, error) {
	if loc.AccountId == "" || loc.LocationId == "" {
		return nil, fmt.Errorf("location reference is incomplete")
	}
	if maxCount <= 0 {
		maxCount = 50
	}

	var cutoff time.Time
	if window > 0 {
		cutoff = time.Now().Add(-window)
	}

	path := fmt.Sprintf("/accounts/%s/locations/%s/reviews", loc.AccountId, loc.LocationId)
	pageToken := ""
	out := make([]SourceReview, 0, maxCount)

	for {
		params := url.Values{}
		params.Set("pageSize", "50")
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		var parsed gbpListResponse
		if err := c.doJSON(ctx, businessId, http.MethodGet, path+"?"+params.Encode(), nil, &parsed); err != nil {
			return out, err
		}

		pageDone := false
		for _, raw := range parsed.Reviews {
			var rv gbpReview
			if err := json.Unmarshal(raw, &rv); err != nil {
				continue
			}
			updated := parseTimeOrZero(rv.UpdateTime)
			if !cutoff.IsZero() && updated.Before(cutoff) {
				// Reviews are ordered newest-first; everything past here is older.
				pageDone = true
				break
			}
			out = append(out, normalizeReview(rv))
			if len(out) >= maxCount {
				pageDone = true
				break
			}
		}

		if pageDone || parsed.NextPageToken == "" {
			return out, nil
		}
		pageToken = parsed.NextPageToken
	}
}

// PostReply publishes a reply to a review. The API upserts, so posting and updating
// share a verb; UpdateReply exists for call-site clarity.
func (c *Client) PostReply(ctx context.Context, businessId string, loc LocationRef, reviewId string, text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("reply text is empty")
	}
	path := fmt.Sprintf("/accounts/%s/locations/%s/reviews/%s/reply", loc.AccountId, loc.LocationId, reviewId)
	body := map[string]string{"comment": text}
	return c.doJSON(ctx, businessId, http.MethodPut, path, body, nil)
}

func (c *Client) UpdateReply(ctx context.Context, businessId string, loc LocationRef, reviewId string, text string) error {
	return c.PostReply(ctx, businessId, loc, reviewId, text)
}

func (c *Client) doJSON(ctx context.Context, businessId string, method string, path string, body any, dest any) error {
	<-c.limiter

	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(b)
	}

	token, err := c.tokens.AccessToken(ctx, businessId)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return &AuthError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gbp api error %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if dest != nil {
		if err := json.Unmarshal(respBody, dest); err != nil {
			return err
		}
	}
	return nil
}

func normalizeReview(rv gbpReview) SourceReview {
	name := strings.TrimSpace(rv.Reviewer.DisplayName)
	if name == "" || rv.Reviewer.IsAnonymous {
		name = "Anonymous"
	}
	out := SourceReview{
		ReviewId:     rv.ReviewId,
		CustomerName: name,
		Rating:       ratingFromStar(rv.StarRating),
		Text:         strings.TrimSpace(rv.Comment),
		CreateTime:   parseTimeOrZero(rv.CreateTime),
		UpdateTime:   parseTimeOrZero(rv.UpdateTime),
	}
	if rv.Reply != nil {
		out.HasReply = true
		out.ReplyText = strings.TrimSpace(rv.Reply.Comment)
	}
	return out
}
