// Package hipchat is the outbound chat-platform client: room
// notifications, glance pushes, and Connect JWT verification for
// inbound requests.
package hipchat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/iskodirajga/sauce-hipchat-service/internal/card"
	"github.com/iskodirajga/sauce-hipchat-service/internal/glance"
)

// ClientInfo is the per-tenant installation record handed to us by the
// platform's install callback and persisted under
// "{clientKey}:clientInfo".
type ClientInfo struct {
	ClientKey   string  `json:"clientKey"`
	OauthID     string  `json:"oauthId"`
	OauthSecret string  `json:"oauthSecret"`
	GroupID     int64   `json:"groupId"`
	RoomIDs     []int64 `json:"roomIds"`
	APIBaseURL  string  `json:"apiBaseUrl"`
}

// RoomTarget addresses a glance push.
type RoomTarget struct {
	RoomID  int64
	GroupID int64
}

// MessageOptions carries per-message rendering hints.
type MessageOptions struct {
	MessageFormat string `json:"message_format,omitempty"`
	Color         string `json:"color,omitempty"`
}

// Notifier is the outbound surface the rest of the service depends on.
// *Client implements it; tests substitute fakes.
type Notifier interface {
	SendMessage(ctx context.Context, ci ClientInfo, roomID int64, message string, opts *MessageOptions, c *card.Card) error
	UpdateGlance(ctx context.Context, ci ClientInfo, target RoomTarget, glanceKey string, payload glance.Payload) error
}

// Client talks to the chat platform's v2 REST API using per-tenant
// OAuth client credentials.
type Client struct {
	http *http.Client

	mu     sync.Mutex
	tokens map[string]cachedToken // by clientKey
}

var _ Notifier = (*Client)(nil)

type cachedToken struct {
	token   string
	expires time.Time
}

func NewClient() *Client {
	return &Client{
		http:   &http.Client{Timeout: 15 * time.Second},
		tokens: map[string]cachedToken{},
	}
}

// SendMessage posts a room notification. opts and c are optional; when
// c is non-nil the platform renders the card and falls back to message
// on clients without card support.
func (c *Client) SendMessage(ctx context.Context, ci ClientInfo, roomID int64, message string, opts *MessageOptions, crd *card.Card) error {
	body := map[string]any{"message": message}
	if opts != nil {
		if opts.MessageFormat != "" {
			body["message_format"] = opts.MessageFormat
		}
		if opts.Color != "" {
			body["color"] = opts.Color
		}
	}
	if crd != nil {
		body["card"] = crd
	}
	path := fmt.Sprintf("/room/%d/notification", roomID)
	return c.post(ctx, ci, path, body)
}

// UpdateGlance pushes fresh glance content to one room.
func (c *Client) UpdateGlance(ctx context.Context, ci ClientInfo, target RoomTarget, glanceKey string, payload glance.Payload) error {
	body := map[string]any{
		"glance": []map[string]any{
			{"key": glanceKey, "content": payload},
		},
	}
	path := fmt.Sprintf("/addon/ui/room/%d", target.RoomID)
	return c.post(ctx, ci, path, body)
}

func (c *Client) post(ctx context.Context, ci ClientInfo, path string, body any) error {
	token, err := c.accessToken(ctx, ci)
	if err != nil {
		return err
	}

	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL(ci, path), bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("hipchat: POST %s: %s: %s", path, resp.Status, msg)
	}
	return nil
}

// accessToken returns a cached tenant token, fetching a new one via the
// client_credentials grant when missing or near expiry.
func (c *Client) accessToken(ctx context.Context, ci ClientInfo) (string, error) {
	c.mu.Lock()
	cached, ok := c.tokens[ci.ClientKey]
	c.mu.Unlock()
	if ok && time.Until(cached.expires) > 30*time.Second {
		return cached.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("scope", "send_notification view_room")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL(ci, "/oauth/token"), strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(ci.OauthID, ci.OauthSecret)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("hipchat: token grant: %s: %s", resp.Status, msg)
	}

	var tr struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", err
	}

	c.mu.Lock()
	c.tokens[ci.ClientKey] = cachedToken{
		token:   tr.AccessToken,
		expires: time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second),
	}
	c.mu.Unlock()
	return tr.AccessToken, nil
}

func apiURL(ci ClientInfo, path string) string {
	base := strings.TrimSuffix(ci.APIBaseURL, "/")
	if base == "" {
		base = "https://api.hipchat.com/v2"
	}
	return base + path
}
