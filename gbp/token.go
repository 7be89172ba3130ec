package gbp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

type refreshedToken struct {
	AccessToken string
	Expiry      time.Time
	Scope       string
}

type tokenErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope"`
	TokenType   string `json:"token_type"`
}

// refreshAccessToken exchanges a refresh token for a fresh access token.
// invalid_grant means the user revoked access; that is an AuthError, not a transient
// failure.
func refreshAccessToken(ctx context.Context, httpClient *http.Client, refreshToken string) (*refreshedToken, error) {
	clientID := strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_CLIENT_ID"))
	clientSecret := strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_CLIENT_SECRET"))
	if clientID == "" || clientSecret == "" {
		return nil, errors.New("GOOGLE_OAUTH_CLIENT_ID/GOOGLE_OAUTH_CLIENT_SECRET not set")
	}
	tokenURL := strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_TOKEN_URL"))
	if tokenURL == "" {
		tokenURL = "https://oauth2.googleapis.com/token"
	}

	form := url.Values{}
	form.Set("client_id", clientID)
	form.Set("client_secret", clientSecret)
	form.Set("refresh_token", refreshToken)
	form.Set("grant_type", "refresh_token")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var tokenErr tokenErrorResponse
		_ = json.Unmarshal(body, &tokenErr)
		if tokenErr.Error == "invalid_grant" {
			return nil, &AuthError{StatusCode: resp.StatusCode, Body: tokenErr.ErrorDescription}
		}
		return nil, errors.New("token refresh failed: " + strings.TrimSpace(string(body)))
	}

	var parsed tokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, err
	}
	if parsed.AccessToken == "" {
		return nil, errors.New("token refresh returned empty access token")
	}

	return &refreshedToken{
		AccessToken: parsed.AccessToken,
		Expiry:      time.Now().Add(time.Duration(parsed.ExpiresIn) * time.Second),
		Scope:       parsed.Scope,
	}, nil
}
