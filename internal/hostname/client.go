// Package hostname checks equipment hostnames against the Automatus machine
// registry.
package hostname

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	authPath         = "/api/authenticate"
	distributionPath = "/api/distribution/api/express/distribution"
	defaultDomain    = "AUTOMATOS"
)

// ErrUnauthorized is returned when the registry rejects the credentials
var ErrUnauthorized = errors.New("registry rejected credentials")

// Config configures the registry client
type Config struct {
	BaseURL    string
	Username   string
	Password   string
	Domain     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to the registry. The bearer token is fetched lazily, shared
// by all callers and fetched again once when the registry answers 401.
type Client struct {
	baseURL string
	cfg     Config
	client  *http.Client
	logger  *slog.Logger

	mu    sync.Mutex
	token string
}

// New creates a registry client
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("hostname registry base URL is required")
	}
	if cfg.Domain == "" {
		cfg.Domain = defaultDomain
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		cfg:     cfg,
		client:  hc,
		logger:  cfg.Logger,
	}, nil
}

type authRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string `json:"token"`
}

type distributionRequest struct {
	MachineID   string `json:"machineId"`
	Package     string `json:"package"`
	Domain      string `json:"domain"`
	User        string `json:"user"`
	Password    string `json:"password"`
	Irradiadora string `json:"irradiadora"`
}

type distributionResponse struct {
	Status bool `json:"status"`
}

// ValidateHostname reports whether the registry knows hostname. The
// matricula is sent as the machine id; without one the hostname is used.
func (c *Client) ValidateHostname(ctx context.Context, hostname, matricula string) (bool, error) {
	hostname = strings.TrimSpace(hostname)
	if hostname == "" {
		return false, nil
	}
	machineID := strings.TrimSpace(matricula)
	if machineID == "" {
		machineID = hostname
	}

	token, err := c.bearer(ctx, false)
	if err != nil {
		return false, err
	}

	ok, err := c.distribution(ctx, token, machineID, hostname)
	if errors.Is(err, ErrUnauthorized) {
		c.logger.Debug("hostname.token.refresh")
		if token, err = c.bearer(ctx, true); err != nil {
			return false, err
		}
		ok, err = c.distribution(ctx, token, machineID, hostname)
	}
	if err != nil {
		return false, err
	}

	c.logger.Debug("hostname.validated", "hostname", hostname, "machine_id", machineID, "status", ok)
	return ok, nil
}

// bearer returns the cached token, authenticating first when there is none
// or when refresh is set.
func (c *Client) bearer(ctx context.Context, refresh bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && !refresh {
		return c.token, nil
	}

	var resp authResponse
	status, err := c.post(ctx, authPath, "", authRequest{Username: c.cfg.Username, Password: c.cfg.Password}, &resp)
	if err != nil {
		return "", fmt.Errorf("authenticate: %w", err)
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return "", fmt.Errorf("authenticate: %w", ErrUnauthorized)
	}
	if resp.Token == "" {
		return "", errors.New("authenticate: registry returned no token")
	}

	c.token = resp.Token
	return c.token, nil
}

func (c *Client) distribution(ctx context.Context, token, machineID, hostname string) (bool, error) {
	body := distributionRequest{
		MachineID:   machineID,
		Domain:      c.cfg.Domain,
		User:        c.cfg.Username,
		Password:    c.cfg.Password,
		Irradiadora: hostname,
	}

	var resp distributionResponse
	status, err := c.post(ctx, distributionPath, token, body, &resp)
	if err != nil {
		return false, fmt.Errorf("distribution lookup: %w", err)
	}
	switch status {
	case http.StatusUnauthorized:
		return false, ErrUnauthorized
	case http.StatusForbidden:
		return false, fmt.Errorf("distribution lookup: HTTP %d", status)
	}
	return resp.Status, nil
}

// post sends a JSON body and decodes a 200 answer into out. 401/403 are
// returned as a status with no error so callers can decide to re-auth; any
// other non-200 status is an error.
func (c *Client) post(ctx context.Context, path, token string, in, out any) (int, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return 0, fmt.Errorf("marshal request: %w", err)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("HTTP POST %s: %w", url, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	default:
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, fmt.Errorf("HTTP %d from %s: %s", resp.StatusCode, url, string(respBody))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	return resp.StatusCode, nil
}
