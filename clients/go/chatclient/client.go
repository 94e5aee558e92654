// Package chatclient provides the Go client for the project chat service:
// history loading over REST and a live channel per project with optimistic
// send, typing signals and automatic reconnection.
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/capstonehub/projectchat/internal/models"
)

// Client is a project chat API client for one authenticated user.
type Client struct {
	BaseURL    string
	Token      string // opaque bearer credential from the account service
	Identity   models.User
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL, token string, identity models.User) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		Identity:   identity,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Logger:     zerolog.Nop(),
	}
}

// doRequest performs an authenticated HTTP request.
func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)
		return nil, fmt.Errorf("chat service error %d: %s", resp.StatusCode, errResp.Error)
	}

	return respBody, nil
}

// FetchHistory retrieves the full message log of a project channel.
func (c *Client) FetchHistory(ctx context.Context, projectID string) ([]models.ChatMessage, error) {
	respBody, err := c.doRequest(ctx, "GET", "/api/chats/"+projectID+"/messages", nil)
	if err != nil {
		return nil, err
	}

	var messages []models.ChatMessage
	if err := json.Unmarshal(respBody, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// MarkRead marks every message of the channel not authored by the caller
// as read, over REST. Within an open channel, Channel.MarkRead does the
// same through the live connection.
func (c *Client) MarkRead(ctx context.Context, projectID string) error {
	_, err := c.doRequest(ctx, "PATCH", "/api/chats/"+projectID+"/read", nil)
	return err
}

// UnreadCount counts unread messages addressed to the caller across the
// given projects.
func (c *Client) UnreadCount(ctx context.Context, projectIDs []string) (int64, error) {
	respBody, err := c.doRequest(ctx, "GET", "/api/chats/unread?projects="+url.QueryEscape(strings.Join(projectIDs, ",")), nil)
	if err != nil {
		return 0, err
	}

	var resp struct {
		Count int64 `json:"count"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// OpenChannel opens the live chat channel for a project: history is loaded
// first, then the WebSocket connection comes up in the background with
// reconnect-and-backoff. The caller owns the returned Channel and must
// Close it.
func (c *Client) OpenChannel(ctx context.Context, projectID string) (*Channel, error) {
	if projectID == "" {
		return nil, fmt.Errorf("chatclient: empty project id")
	}
	if c.Token == "" {
		return nil, fmt.Errorf("chatclient: missing credential")
	}

	history, err := c.FetchHistory(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	wsURL, err := c.wsURL(projectID)
	if err != nil {
		return nil, err
	}

	ch := newChannel(projectID, c.Identity, history, wsURL, c.Logger)
	ch.open(ctx)
	return ch, nil
}

// wsURL derives the WebSocket endpoint from the REST base URL. The
// credential travels as a query parameter because browsers cannot set
// headers on the upgrade request, and the Go client matches that contract.
func (c *Client) wsURL(projectID string) (string, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/ws/chat/" + projectID
	u.RawQuery = "token=" + url.QueryEscape(c.Token)
	return u.String(), nil
}
