package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Client talks to the request desk API as a logged-in staff member.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

func (c *Client) Login(ctx context.Context, username, password string) error {
	body, _ := json.Marshal(map[string]string{"username": username, "password": password})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/login", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("login failed: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var tok struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return fmt.Errorf("decode login response: %w", err)
	}
	c.token = tok.Token
	return nil
}

// Action posts accept, reject or resolve for one request and returns the
// HTTP status.
func (c *Client) Action(ctx context.Context, id int64, action string) (int, error) {
	return c.send(ctx, http.MethodPost, fmt.Sprintf("%s/requests/%d/%s", c.baseURL, id, action))
}

func (c *Client) List(ctx context.Context, filter string, refresh bool) (int, error) {
	url := fmt.Sprintf("%s/requests?filter=%s", c.baseURL, filter)
	if refresh {
		url += "&refresh=true"
	}
	return c.send(ctx, http.MethodGet, url)
}

func (c *Client) send(ctx context.Context, method, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}
