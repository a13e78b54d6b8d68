package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/goodtune/reelfocus/internal/api"
	"github.com/goodtune/reelfocus/internal/config"
)

var apiURL string

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", "", "Control API base URL (defaults to the configured bind address and port)")
}

// apiClient talks to a running server's control API
type apiClient struct {
	baseURL string
	http    *http.Client
}

// newAPIClient builds a client for the --api URL, or for the address in the
// config file when no URL is given
func newAPIClient() (*apiClient, error) {
	base := apiURL
	if base == "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			cfg = config.Default()
		}
		host := cfg.Server.BindAddress
		if host == "" || host == "0.0.0.0" {
			host = "127.0.0.1"
		}
		base = "http://" + net.JoinHostPort(host, strconv.Itoa(cfg.Server.APIPort))
	}

	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid API URL %q: %w", base, err)
	}

	return &apiClient{
		baseURL: strings.TrimRight(base, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (c *apiClient) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *apiClient) post(ctx context.Context, path string, body, out interface{}) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *apiClient) delete(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodDelete, path, nil, out)
}

// do sends a request and decodes the response into out. A response the
// server marks as an error is returned as an error, except 409 which carries
// a rejected command acknowledgement.
func (c *apiClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("is the server running? %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusConflict {
		var apiErr api.ErrorResponse
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("%s: %s", apiErr.Error, apiErr.Message)
		}
		return fmt.Errorf("server returned %s", resp.Status)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
