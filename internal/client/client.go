// Package client talks to a running relay's admin listener.
package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/rsclarke/salonrelay/internal/api"
)

const defaultTimeout = 30 * time.Second

type Client struct {
	BaseURL string
	http    *resty.Client
}

func NewClient(baseURL string) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	return &Client{
		BaseURL: baseURL,
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(defaultTimeout).
			SetHeader("Accept", "application/json"),
	}
}

func tenantPath(id, route string) string {
	return "/tenants/" + url.PathEscape(id) + route
}

func (c *Client) Health(ctx context.Context) (*api.AdminHealthResponse, error) {
	var result api.AdminHealthResponse
	if err := c.get(ctx, "/health", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) ListTenants(ctx context.Context) (*api.ListTenantsResponse, error) {
	var result api.ListTenantsResponse
	if err := c.get(ctx, "/tenants", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) ConnectionStatus(ctx context.Context, tenantID string) (*api.ConnectionStatusResponse, error) {
	var result api.ConnectionStatusResponse
	if err := c.get(ctx, tenantPath(tenantID, "/connection-status"), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) Messages(ctx context.Context, tenantID string, limit int) (*api.MessagesResponse, error) {
	path := tenantPath(tenantID, "/messages")
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var result api.MessagesResponse
	if err := c.get(ctx, path, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) SendMessage(ctx context.Context, tenantID, phone, message string) (*api.SendMessageResponse, error) {
	var result api.SendMessageResponse
	var errResp api.ErrorResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(api.SendMessageRequest{Phone: phone, Message: message}).
		SetResult(&result).
		SetError(&errResp).
		Post(tenantPath(tenantID, "/send-message"))
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, parseError(resp.StatusCode(), errResp.Error, resp.Body())
	}
	return &result, nil
}

func (c *Client) ResetConnection(ctx context.Context, tenantID string) (*api.ResetResponse, error) {
	var result api.ResetResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&result).
		SetError(&result).
		Post(tenantPath(tenantID, "/reset-connection"))
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, parseError(resp.StatusCode(), result.Error, resp.Body())
	}
	return &result, nil
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	var errResp api.ErrorResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(result).
		SetError(&errResp).
		Get(path)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return parseError(resp.StatusCode(), errResp.Error, resp.Body())
	}
	return nil
}

func parseError(status int, msg string, body []byte) error {
	if msg != "" {
		return fmt.Errorf("%s", msg)
	}
	if len(body) == 0 {
		return fmt.Errorf("request failed with status %d", status)
	}
	return fmt.Errorf("request failed with status %d: %s", status, strings.TrimSpace(string(body)))
}
