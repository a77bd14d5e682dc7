package sugar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/bryanwahyu/vindereg/internal/domain/vehicle"
)

const (
	tokenPath   = "rest/v11_6/oauth2/token"
	modulePath  = "rest/v11_20/VHE_Vehicle"
	deregStatus = "Deregistered"
)

// Options configure the SugarCRM connection.
type Options struct {
	BaseURL      string
	Username     string
	Password     string
	ClientID     string
	ClientSecret string
	Platform     string
	GrantType    string
	Timeout      time.Duration
	// RetryMax bounds the transient-failure retry budget for each call.
	RetryMax int
}

// Client talks to the SugarCRM v11 REST API. Transient failures
// (connection errors, 5xx) are retried with backoff up to RetryMax by the
// underlying retryable client; an exhausted budget surfaces as a
// vehicle.TransientError. 4xx responses are permanent.
type Client struct {
	base *url.URL
	http *retryablehttp.Client
	opts Options
	log  *slog.Logger

	mu    sync.Mutex
	token string
}

func New(opts Options, log *slog.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("parsing CRM base URL: %w", err)
	}
	if opts.GrantType == "" {
		opts.GrantType = "password"
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = opts.RetryMax
	rc.HTTPClient.Timeout = opts.Timeout
	rc.Logger = nil

	return &Client{base: base, http: rc, opts: opts, log: log}, nil
}

// FindByVIN queries the CRM for the vehicle holding this VIN. Returns
// (nil, nil) on no match and vehicle.ErrMultipleMatches when the CRM
// anomalously holds more than one.
func (c *Client) FindByVIN(ctx context.Context, vin string) (*vehicle.ExternalRecord, error) {
	q := url.Values{}
	q.Set("filter[0][vin_c][$equals]", vin)
	q.Set("max_num", "2")

	body, err := c.do(ctx, http.MethodGet, modulePath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Records []struct {
			ID string `json:"id"`
		} `json:"records"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decoding CRM search response: %w", err)
	}
	switch len(payload.Records) {
	case 0:
		return nil, nil
	case 1:
		return &vehicle.ExternalRecord{ID: payload.Records[0].ID}, nil
	default:
		return nil, fmt.Errorf("%w: vin=%s matches=%d", vehicle.ErrMultipleMatches, vin, len(payload.Records))
	}
}

// Deregister PUTs the de-registration status and date onto the CRM record
// and verifies the values actually persisted. Absolute-value update:
// replaying it is harmless.
func (c *Client) Deregister(ctx context.Context, externalID, deregDate string) error {
	req := map[string]any{
		"vehicle_status_c":    deregStatus,
		"latest_dereg_date_c": nullable(deregDate),
	}
	reqBody, err := json.Marshal(req)
	if err != nil {
		return err
	}

	body, err := c.do(ctx, http.MethodPut, modulePath+"/"+externalID, reqBody)
	if err != nil {
		return err
	}

	var resp struct {
		Status    string `json:"vehicle_status_c"`
		DeregDate string `json:"latest_dereg_date_c"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("CRM update returned non-JSON payload: %w", err)
	}
	if resp.Status != deregStatus || (deregDate != "" && resp.DeregDate != deregDate) {
		return fmt.Errorf("CRM update did not persist expected values: status=%q date=%q", resp.Status, resp.DeregDate)
	}
	return nil
}

// do issues one authenticated request, re-authenticating once on 401.
func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return nil, err
	}

	respBody, status, err := c.roundTrip(ctx, method, path, body, token)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		c.log.Warn("CRM request unauthorized; refreshing token and retrying once")
		token, err = c.refreshToken(ctx)
		if err != nil {
			return nil, err
		}
		respBody, status, err = c.roundTrip(ctx, method, path, body, token)
		if err != nil {
			return nil, err
		}
	}
	if status >= 400 {
		// 4xx after a fresh token is not retriable.
		return nil, fmt.Errorf("CRM %s %s returned %d: %s", method, path, status, truncate(string(respBody), 500))
	}
	return respBody, nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body []byte, token string) ([]byte, int, error) {
	var rawBody io.Reader
	if body != nil {
		rawBody = bytes.NewReader(body)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.endpoint(path), rawBody)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("OAuth-Token", token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Retry budget spent (connection failures, 5xx).
		return nil, 0, &vehicle.TransientError{Err: fmt.Errorf("CRM %s %s: %w", method, path, err)}
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, &vehicle.TransientError{Err: fmt.Errorf("reading CRM response: %w", err)}
	}
	return respBody, resp.StatusCode, nil
}

func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" {
		return c.token, nil
	}
	return c.authenticateLocked(ctx)
}

func (c *Client) refreshToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticateLocked(ctx)
}

func (c *Client) authenticateLocked(ctx context.Context) (string, error) {
	form := url.Values{
		"grant_type":    {c.opts.GrantType},
		"client_id":     {c.opts.ClientID},
		"client_secret": {c.opts.ClientSecret},
		"username":      {c.opts.Username},
		"password":      {c.opts.Password},
		"platform":      {c.opts.Platform},
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(tokenPath),
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &vehicle.TransientError{Err: fmt.Errorf("CRM auth: %w", err)}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &vehicle.TransientError{Err: fmt.Errorf("reading CRM auth response: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		// Bad credentials are fatal, not retriable.
		return "", fmt.Errorf("CRM auth returned %d: %s", resp.StatusCode, truncate(string(body), 500))
	}

	var token struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &token); err != nil {
		return "", fmt.Errorf("decoding CRM auth response: %w", err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("CRM auth response carried no access token")
	}
	c.token = token.AccessToken
	c.log.Info("authenticated to CRM", "user", c.opts.Username)
	return c.token, nil
}

func (c *Client) endpoint(path string) string {
	ref, err := url.Parse(path)
	if err != nil {
		return c.base.String() + path
	}
	return c.base.ResolveReference(ref).String()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
