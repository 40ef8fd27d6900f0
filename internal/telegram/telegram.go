// Package telegram publishes posts to a channel through the Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/deusflow/newsdesk/internal/retry"
)

// DefaultCaptionMax stays under Telegram's 1024-rune caption limit.
const DefaultCaptionMax = 1000

// APIError is a non-OK Bot API reply.
type APIError struct {
	Method      string
	StatusCode  int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: status %d: %s", e.Method, e.StatusCode, e.Description)
}

// Retryable reports whether sending again can succeed.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	chatID     string
	captionMax int
	retry      retry.RetryConfig
	log        *slog.Logger
}

func NewClient(baseURL, token, chatID string, captionMax int, log *slog.Logger) *Client {
	if captionMax <= 0 {
		captionMax = DefaultCaptionMax
	}
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		chatID:     chatID,
		captionMax: captionMax,
		retry:      retry.RetryConfig{MaxAttempts: 3, Delay: 2 * time.Second, Backoff: true},
		log:        log,
	}
}

// Publish sends text as a photo caption when imageURL is set, otherwise as
// a plain message, and returns the message id. A rejected photo falls back
// to a text message.
func (c *Client) Publish(ctx context.Context, text, imageURL string) (string, error) {
	text = TruncateCaption(text, c.captionMax)
	if text == "" {
		return "", errors.New("empty post")
	}

	if imageURL != "" {
		id, err := c.send(ctx, "sendPhoto", map[string]any{
			"chat_id":    c.chatID,
			"photo":      imageURL,
			"caption":    text,
			"parse_mode": "HTML",
		})
		if err == nil {
			return id, nil
		}
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
			return "", err
		}
		c.log.Warn("photo rejected, sending text only", "image", imageURL, "error", apiErr.Description)
	}

	return c.send(ctx, "sendMessage", map[string]any{
		"chat_id":                  c.chatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	})
}

func (c *Client) send(ctx context.Context, method string, payload map[string]any) (string, error) {
	var messageID string
	attempt := 0
	err := retry.WithRetry(ctx, c.retry, func() error {
		attempt++
		id, err := c.sendOnce(ctx, method, payload)
		if err != nil {
			c.log.Warn("telegram send failed", "method", method, "attempt", attempt, "error", err)
			var apiErr *APIError
			if errors.As(err, &apiErr) && !apiErr.Retryable() {
				return retry.Stop(err)
			}
			return err
		}
		messageID = id
		return nil
	})
	if err != nil {
		return "", err
	}
	c.log.Info("message sent to telegram", "method", method, "message_id", messageID, "attempt", attempt)
	return messageID, nil
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Result      struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
}

func (c *Client) sendOnce(ctx context.Context, method string, payload map[string]any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("error make JSON: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("error HTTP request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var out apiResponse
	if err := json.Unmarshal(raw, &out); err != nil || resp.StatusCode != http.StatusOK || !out.OK {
		desc := out.Description
		if desc == "" {
			desc = strings.TrimSpace(string(raw))
		}
		return "", &APIError{Method: method, StatusCode: resp.StatusCode, Description: desc}
	}
	return strconv.FormatInt(out.Result.MessageID, 10), nil
}

// TruncateCaption cuts text to max runes without ending on a bare '<' or '&'.
func TruncateCaption(text string, max int) string {
	if utf8.RuneCountInString(text) <= max {
		return text
	}
	out := strings.TrimRightFunc(string([]rune(text)[:max]), isSpace)
	for out != "" && (out[len(out)-1] == '<' || out[len(out)-1] == '&') {
		out = strings.TrimRightFunc(out[:len(out)-1], isSpace)
	}
	return out
}

func isSpace(r rune) bool { return r == ' ' || r == '\n' || r == '\t' || r == '\r' }
