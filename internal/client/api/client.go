// Package api is the client half of the reliable message channel. Every
// submission goes through here as a plain HTTP request; the outbox
// processor owns retries, this package only reports what happened.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"gorelay/internal/common"
	"gorelay/internal/protocol"
)

const defaultRequestTimeout = 10 * time.Second

// Client talks to the relay server's HTTP API on behalf of one session.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: defaultRequestTimeout,
		},
	}
}

// SendMessageRequest mirrors the server's reliable-channel submit body.
type SendMessageRequest struct {
	ID        string           `json:"id"`
	RoomID    string           `json:"room_id"`
	Content   protocol.Content `json:"content"`
	CreatedAt time.Time        `json:"created_at"`
	ReplyTo   string           `json:"reply_to,omitempty"`
}

type SendMessageResponse struct {
	ServerID  uint64    `json:"server_id"`
	CreatedAt time.Time `json:"created_at"`
	Duplicate bool      `json:"duplicate"`
}

// Send submits one message over the reliable channel and returns the
// canonical server id. Errors come back classified: a 4xx answer is a
// rejection the caller must not retry, anything else is transient.
func (c *Client) Send(ctx context.Context, msg *protocol.Message) (uint64, error) {
	body, err := json.Marshal(SendMessageRequest{
		ID:        msg.ID,
		RoomID:    msg.RoomID,
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
		ReplyTo:   msg.ReplyTo,
	})
	if err != nil {
		return 0, common.NewRejectedError(0, fmt.Errorf("encoding message: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/messages", bytes.NewReader(body))
	if err != nil {
		return 0, common.NewRejectedError(0, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, common.NewTransientError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, classifyStatus(resp)
	}

	var ack SendMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		// The server may have persisted the message; retrying is safe
		// because submission is idempotent on the client id.
		return 0, common.NewTransientError(fmt.Errorf("decoding ack: %w", err))
	}
	return ack.ServerID, nil
}

// History fetches a page of a room's messages, oldest first. Used to
// backfill after a reconnect.
func (c *Client) History(ctx context.Context, roomID string, limit, offset int) ([]*protocol.Message, error) {
	url := fmt.Sprintf("%s/api/v1/rooms/%s/messages?limit=%d&offset=%d", c.baseURL, roomID, limit, offset)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, common.NewTransientError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp)
	}

	var page struct {
		Messages []*protocol.Message `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decoding history: %w", err)
	}
	return page.Messages, nil
}

// MarkRead reports a read receipt for one message.
func (c *Client) MarkRead(ctx context.Context, messageID string) error {
	url := fmt.Sprintf("%s/api/v1/messages/%s/read", c.baseURL, messageID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return common.NewTransientError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return classifyStatus(resp)
	}
	return nil
}

// classifyStatus turns a non-2xx answer into a SendError. 4xx means the
// server understood and refused; everything else is worth retrying.
func classifyStatus(resp *http.Response) error {
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	err := fmt.Errorf("server answered %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return common.NewRejectedError(resp.StatusCode, err)
	}
	return common.NewTransientError(err)
}
