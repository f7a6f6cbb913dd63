package main

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
)

type BotInfo struct {
	BotID       string     `json:"botId"`
	Status      string     `json:"status"`
	StatusLabel string     `json:"statusLabel"`
	IsConnected bool       `json:"isConnected"`
	PhoneNumber string     `json:"phoneNumber"`
	CreatedAt   time.Time  `json:"createdAt"`
	QRExpiresAt *time.Time `json:"qrExpiresAt"`
}

type APIResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Details string `json:"details"`
	} `json:"error"`
}

// APIError is a non-success envelope returned by the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s, HTTP %d)", e.Message, e.Code, e.Status)
	}
	return fmt.Sprintf("%s (HTTP %d)", e.Message, e.Status)
}

// BotClient talks to the /api endpoints of a running bot server.
type BotClient struct {
	BaseURL  string
	Username string
	Password string

	AccessToken string
	ExpiresAt   time.Time

	http *http.Client
}

func NewBotClient(baseURL, username, password string) *BotClient {
	return &BotClient{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		Username: username,
		Password: password,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

// EnsureAuth logs in when credentials are set and the token is missing or about to expire.
func (c *BotClient) EnsureAuth(ctx context.Context) error {
	if c.Username == "" || c.Password == "" {
		return nil
	}
	if c.AccessToken != "" && time.Now().Add(30*time.Second).Before(c.ExpiresAt) {
		return nil
	}
	return c.Login(ctx)
}

func (c *BotClient) Login(ctx context.Context) error {
	var data struct {
		AccessToken string    `json:"accessToken"`
		ExpiresAt   time.Time `json:"expiresAt"`
	}
	err := c.do(ctx, http.MethodPost, "/api/token", map[string]string{
		"username": c.Username,
		"password": c.Password,
	}, &data)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	c.AccessToken = data.AccessToken
	c.ExpiresAt = data.ExpiresAt
	return nil
}

func (c *BotClient) ListBots(ctx context.Context) ([]BotInfo, error) {
	var data struct {
		Total int       `json:"total"`
		Bots  []BotInfo `json:"bots"`
	}
	if err := c.authed(ctx, http.MethodGet, "/api/bots", nil, &data); err != nil {
		return nil, err
	}
	return data.Bots, nil
}

func (c *BotClient) CreateBot(ctx context.Context) (BotInfo, error) {
	var data struct {
		Bot BotInfo `json:"bot"`
	}
	if err := c.authed(ctx, http.MethodPost, "/api/bots", nil, &data); err != nil {
		return BotInfo{}, err
	}
	return data.Bot, nil
}

// QRCode returns the raw pairing code of a bot waiting for a scan.
func (c *BotClient) QRCode(ctx context.Context, botID string) (string, error) {
	var data struct {
		QRCode string `json:"qrCode"`
	}
	path := "/api/bots/" + url.PathEscape(botID) + "/qr?format=text"
	if err := c.authed(ctx, http.MethodGet, path, nil, &data); err != nil {
		return "", err
	}
	return data.QRCode, nil
}

func (c *BotClient) Logout(ctx context.Context, botID string) error {
	return c.authed(ctx, http.MethodPost, "/api/bots/"+url.PathEscape(botID)+"/logout", nil, nil)
}

func (c *BotClient) DeleteBot(ctx context.Context, botID string) error {
	return c.authed(ctx, http.MethodDelete, "/api/bots/"+url.PathEscape(botID), nil, nil)
}

func (c *BotClient) SendMessage(ctx context.Context, botID, to, message string) (string, error) {
	var data struct {
		MessageID string `json:"messageId"`
	}
	err := c.authed(ctx, http.MethodPost, "/api/bots/"+url.PathEscape(botID)+"/send", map[string]string{
		"to":      to,
		"message": message,
	}, &data)
	if err != nil {
		return "", err
	}
	return data.MessageID, nil
}

func (c *BotClient) authed(ctx context.Context, method, path string, body, out any) error {
	if err := c.EnsureAuth(ctx); err != nil {
		return err
	}
	return c.do(ctx, method, path, body, out)
}

func (c *BotClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.AccessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var res APIResponse
	if err := json.Unmarshal(raw, &res); err != nil {
		return fmt.Errorf("unexpected response (HTTP %d): %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if !res.Success || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Message: res.Message}
		if res.Error != nil {
			apiErr.Code = res.Error.Code
		}
		return apiErr
	}

	if out != nil && len(res.Data) > 0 {
		if err := json.Unmarshal(res.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}
