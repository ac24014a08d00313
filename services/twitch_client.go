// services/twitch_client.go
package services

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"slipstream-companion/utils"
)

// TwitchClient talks to id.twitch.tv (OAuth) and api.twitch.tv (Helix).
// Viewer tokens are validated against the OAuth endpoint; Helix lookups use
// our own app access token, refreshed lazily when it nears expiry.
type TwitchClient struct {
	ClientID     string
	ClientSecret string
	Client       *http.Client

	mu             sync.Mutex
	appToken       string
	appTokenExpiry time.Time
}

// ValidatedToken is what /oauth2/validate returns for a viewer's token.
type ValidatedToken struct {
	ClientID  string   `json:"client_id"`
	Login     string   `json:"login"`
	UserID    string   `json:"user_id"`
	Scopes    []string `json:"scopes"`
	ExpiresIn int64    `json:"expires_in"` // seconds
}

// HelixUser is the subset of /helix/users fields the viewer mirror keeps.
type HelixUser struct {
	ID              string `json:"id"`
	Login           string `json:"login"`
	DisplayName     string `json:"display_name"`
	ProfileImageURL string `json:"profile_image_url"`
}

func NewTwitchClient(clientID, clientSecret string) *TwitchClient {
	return &TwitchClient{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Client:       utils.HTTPClient,
	}
}

// ValidateToken checks a viewer's OAuth token with id.twitch.tv. A 401 means
// the token is expired or revoked; anything else non-200 is unexpected.
func (t *TwitchClient) ValidateToken(accessToken string) (*ValidatedToken, error) {
	req, err := http.NewRequest("GET", "https://id.twitch.tv/oauth2/validate", nil)
	if err != nil {
		return nil, err
	}
	// validate uses the legacy "OAuth" scheme, not "Bearer"
	req.Header.Set("Authorization", "OAuth "+accessToken)

	resp, err := t.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("twitch validate request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("token is invalid or expired")
	}
	if resp.StatusCode != http.StatusOK {
		log.Printf("❌ [TWITCH] /oauth2/validate returned %d: %s", resp.StatusCode, string(body))
		return nil, fmt.Errorf("twitch validate returned %d", resp.StatusCode)
	}

	var out ValidatedToken
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode validate response: %w", err)
	}
	if out.UserID == "" {
		return nil, fmt.Errorf("validate response missing user_id")
	}
	return &out, nil
}

// getAppToken returns a cached app access token, running the
// client-credentials flow when the cached one is missing or about to expire.
func (t *TwitchClient) getAppToken() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.appToken != "" && time.Now().Before(t.appTokenExpiry.Add(-1*time.Minute)) {
		return t.appToken, nil
	}

	form := url.Values{}
	form.Set("client_id", t.ClientID)
	form.Set("client_secret", t.ClientSecret)
	form.Set("grant_type", "client_credentials")

	resp, err := t.Client.Post(
		"https://id.twitch.tv/oauth2/token",
		"application/x-www-form-urlencoded",
		strings.NewReader(form.Encode()),
	)
	if err != nil {
		return "", fmt.Errorf("twitch token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		log.Printf("❌ [TWITCH] /oauth2/token returned %d: %s", resp.StatusCode, string(body))
		return "", fmt.Errorf("twitch token grant returned %d", resp.StatusCode)
	}

	var grant struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &grant); err != nil {
		return "", fmt.Errorf("failed to decode token grant: %w", err)
	}

	t.appToken = grant.AccessToken
	t.appTokenExpiry = time.Now().Add(time.Duration(grant.ExpiresIn) * time.Second)
	return t.appToken, nil
}

// GetUsersByID fetches Helix user records for up to 100 ids per request
// (the Helix page limit); larger batches are chunked.
func (t *TwitchClient) GetUsersByID(ids []string) ([]HelixUser, error) {
	var users []HelixUser
	for start := 0; start < len(ids); start += 100 {
		end := start + 100
		if end > len(ids) {
			end = len(ids)
		}
		chunk, err := t.getUsersChunk(ids[start:end])
		if err != nil {
			return nil, err
		}
		users = append(users, chunk...)
	}
	return users, nil
}

func (t *TwitchClient) getUsersChunk(ids []string) ([]HelixUser, error) {
	token, err := t.getAppToken()
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	for _, id := range ids {
		q.Add("id", id)
	}

	req, err := http.NewRequest("GET", "https://api.twitch.tv/helix/users?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Client-Id", t.ClientID)

	resp, err := t.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("helix users request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		log.Printf("❌ [TWITCH] /helix/users returned %d: %s", resp.StatusCode, string(body))
		return nil, fmt.Errorf("helix users returned %d", resp.StatusCode)
	}

	var out struct {
		Data []HelixUser `json:"data"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode helix users response: %w", err)
	}
	return out.Data, nil
}
