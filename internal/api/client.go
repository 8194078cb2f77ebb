package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	defaultBaseURL = "https://app.fracttal.com"
	defaultAuthURL = "https://one.fracttal.com/oauth/token"
)

// ErrMeterNotFound means the asset has no meter registered in Fracttal.
var ErrMeterNotFound = errors.New("meter not found")

// Credentials are the Fracttal API key pair, passed in explicitly at
// construction time.
type Credentials struct {
	Key    string
	Secret string
}

// Options tune the client; zero values fall back to production endpoints
// and the UTC-3 reporting timezone.
type Options struct {
	BaseURL  string
	AuthURL  string
	Timezone *time.Location
}

// Client is a Fracttal API client for meter operations.
type Client struct {
	baseURL string
	authURL string
	creds   Credentials
	tz      *time.Location
	http    *resty.Client
	token   string
}

// NewClient creates a Fracttal API client. Authenticate must be called
// before any meter operation.
func NewClient(creds Credentials, opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.AuthURL == "" {
		opts.AuthURL = defaultAuthURL
	}
	if opts.Timezone == nil {
		// Readings are stamped in the fleet's local time.
		opts.Timezone = time.FixedZone("UTC-3", -3*60*60)
	}

	client := &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		authURL: opts.AuthURL,
		creds:   creds,
		tz:      opts.Timezone,
	}

	client.http = resty.New().
		SetTimeout(60 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			// Retry on 429 (Too Many Requests) and 5xx server errors
			return r.StatusCode() == 429 || (r.StatusCode() >= 500 && r.StatusCode() <= 504)
		})

	return client
}

// Authenticate performs the OAuth client-credentials exchange and stores the
// bearer token for subsequent calls.
func (c *Client) Authenticate() error {
	basic := base64.StdEncoding.EncodeToString([]byte(c.creds.Key + ":" + c.creds.Secret))

	resp, err := c.http.R().
		SetHeader("Authorization", "Basic "+basic).
		SetFormData(map[string]string{"grant_type": "client_credentials"}).
		Post(c.authURL)
	if err != nil {
		return fmt.Errorf("authentication request failed: %w", err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("authentication failed: HTTP %d: %s", resp.StatusCode(), resp.String())
	}

	var token tokenResponse
	if err := json.Unmarshal(resp.Body(), &token); err != nil {
		return fmt.Errorf("failed to parse token response: %w", err)
	}
	if token.AccessToken == "" {
		return errors.New("authentication succeeded but no access token was returned")
	}

	c.token = token.AccessToken
	return nil
}

// MeterValue returns the current accumulated meter value for an asset,
// identified by its serial/internal code (e.g. "ER-1022").
func (c *Client) MeterValue(serial string) (float64, error) {
	resp, err := c.http.R().
		SetHeader("Authorization", "Bearer "+c.token).
		SetQueryParam("serial", serial).
		Get(c.baseURL + "/api/meters")
	if err != nil {
		return 0, fmt.Errorf("failed to fetch meter for %s: %w", serial, err)
	}
	if !resp.IsSuccess() {
		return 0, fmt.Errorf("meter lookup for %s failed: HTTP %d: %s", serial, resp.StatusCode(), resp.String())
	}

	var result metersResponse
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return 0, fmt.Errorf("failed to parse meter response for %s: %w", serial, err)
	}
	if len(result.Data) == 0 {
		return 0, fmt.Errorf("%w for asset %s", ErrMeterNotFound, serial)
	}

	return result.Data[0].LastData.AccumulatedValue, nil
}

// UpdateMeter writes a new accumulated reading for an asset, stamped with
// the given time in the reporting timezone.
func (c *Client) UpdateMeter(serial string, value float64, at time.Time) error {
	if at.IsZero() {
		at = time.Now()
	}

	payload := meterReadingPayload{
		Date:         at.In(c.tz).Format("2006-01-02T15:04:05-07:00"),
		Value:        value,
		Serial:       serial,
		IsHistorical: false,
	}

	resp, err := c.http.R().
		SetHeader("Authorization", "Bearer "+c.token).
		SetHeader("Content-Type", "application/json").
		SetQueryParam("code", serial).
		SetBody(payload).
		Put(c.baseURL + "/api/meter_reading")
	if err != nil {
		return fmt.Errorf("failed to update meter for %s: %w", serial, err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("meter update for %s failed: HTTP %d: %s", serial, resp.StatusCode(), resp.String())
	}

	var result meterReadingResponse
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return fmt.Errorf("failed to parse meter update response for %s: %w", serial, err)
	}
	if !result.Success {
		return fmt.Errorf("meter update for %s rejected: %s", serial, strings.TrimSpace(resp.String()))
	}

	return nil
}

// SubmitDelta adds an increment to an asset's meter: it reads the current
// accumulated value and writes back the sum. Single attempt; transport-level
// retries for 429/5xx are handled inside the HTTP client.
func (c *Client) SubmitDelta(serial string, delta float64) (float64, error) {
	current, err := c.MeterValue(serial)
	if err != nil {
		return 0, err
	}

	newValue := current + delta
	if err := c.UpdateMeter(serial, newValue, time.Now()); err != nil {
		return 0, err
	}

	return newValue, nil
}
