// Package panos provides a client for the PAN-OS XML API and the device
// adapter used by export and NAT remediation.
package panos

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"grimm.is/cpmigrate/internal/clock"
	"grimm.is/cpmigrate/internal/metrics"
)

// ErrNoAPIKey is returned by config calls made before an API key is set.
var ErrNoAPIKey = errors.New("no API key: set one or call Keygen")

// APIError is a response with status="error".
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("PAN-OS API error (code %s): %s", e.Code, e.Message)
	}
	return "PAN-OS API error: " + e.Message
}

// response is the XML API envelope.
type response struct {
	XMLName xml.Name `xml:"response"`
	Status  string   `xml:"status,attr"`
	Code    string   `xml:"code,attr"`
	Msg     message  `xml:"msg"`
	Result  result   `xml:"result"`
}

type result struct {
	Msg   message `xml:"msg"`
	Key   string  `xml:"key"`
	Inner []byte  `xml:",innerxml"`
}

type message struct {
	Lines []string `xml:"line"`
	Text  string   `xml:",chardata"`
}

func (m message) String() string {
	parts := make([]string, 0, len(m.Lines)+1)
	if t := strings.TrimSpace(m.Text); t != "" {
		parts = append(parts, t)
	}
	for _, l := range m.Lines {
		if l = strings.TrimSpace(l); l != "" {
			parts = append(parts, l)
		}
	}
	return strings.Join(parts, "; ")
}

func (r *response) err() error {
	if r.Status == "success" {
		return nil
	}
	msg := r.Msg.String()
	if msg == "" {
		msg = r.Result.Msg.String()
	}
	if msg == "" {
		msg = "request failed with status " + r.Status
	}
	return &APIError{Code: r.Code, Message: msg}
}

// Client talks to one firewall or Panorama over the XML API.
type Client struct {
	baseURL             string
	apiKey              string
	httpClient          *http.Client
	expectedFingerprint string
	metrics             *metrics.Registry

	// SeenFingerprint is the SHA-256 of the last server certificate, for
	// trust-on-first-use display.
	SeenFingerprint string
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithAPIKey sets the API key sent with config requests.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithFingerprint pins the server certificate fingerprint (SHA-256 hex).
func WithFingerprint(fp string) ClientOption {
	return func(c *Client) {
		c.expectedFingerprint = strings.ToLower(strings.ReplaceAll(fp, ":", ""))
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithHTTPClient replaces the HTTP client, including its transport.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithMetrics records request counts and latency in m.
func WithMetrics(m *metrics.Registry) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// NormalizeURL turns "host" or "host:port" into an https base URL.
func NormalizeURL(addr string) string {
	addr = strings.TrimRight(strings.TrimSpace(addr), "/")
	if !strings.Contains(addr, "://") {
		addr = "https://" + addr
	}
	return addr
}

// NewClient creates a client for the device at addr. Self-signed
// certificates are accepted unless a fingerprint is pinned.
func NewClient(addr string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: NormalizeURL(addr),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		metrics: metrics.Get(),
	}
	c.httpClient.Transport = &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: true, // verified in VerifyPeerCertificate
			VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
				if len(rawCerts) == 0 {
					return nil
				}
				hash := sha256.Sum256(rawCerts[0])
				fingerprint := hex.EncodeToString(hash[:])
				c.SeenFingerprint = fingerprint

				if c.expectedFingerprint != "" && c.expectedFingerprint != fingerprint {
					return fmt.Errorf("certificate fingerprint mismatch! Expected %s, got %s", c.expectedFingerprint, fingerprint)
				}
				return nil
			},
		},
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIKey returns the key in use.
func (c *Client) APIKey() string { return c.apiKey }

// Keygen exchanges credentials for an API key and keeps it for later
// calls.
func (c *Client) Keygen(ctx context.Context, user, password string) (string, error) {
	params := url.Values{
		"type":     {"keygen"},
		"user":     {user},
		"password": {password},
	}
	resp, err := c.do(ctx, "keygen", params)
	if err != nil {
		return "", err
	}
	key := strings.TrimSpace(resp.Result.Key)
	if key == "" {
		return "", errors.New("keygen response carried no key")
	}
	c.apiKey = key
	return key, nil
}

// Set merges element into the configuration at xpath.
func (c *Client) Set(ctx context.Context, xpath, element string) error {
	_, err := c.config(ctx, "set", xpath, element)
	return err
}

// Edit replaces the node at xpath with element.
func (c *Client) Edit(ctx context.Context, xpath, element string) error {
	_, err := c.config(ctx, "edit", xpath, element)
	return err
}

// Get returns the inner XML of the result element for xpath from the
// candidate configuration.
func (c *Client) Get(ctx context.Context, xpath string) ([]byte, error) {
	resp, err := c.config(ctx, "get", xpath, "")
	if err != nil {
		return nil, err
	}
	return resp.Result.Inner, nil
}

func (c *Client) config(ctx context.Context, action, xpath, element string) (*response, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}
	params := url.Values{
		"type":   {"config"},
		"action": {action},
		"xpath":  {xpath},
	}
	if element != "" {
		params.Set("element", element)
	}
	resp, err := c.do(ctx, action, params)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", action, xpath, err)
	}
	return resp, nil
}

// do posts params to /api/ and decodes the envelope.
func (c *Client) do(ctx context.Context, action string, params url.Values) (resp *response, err error) {
	start := clock.Now()
	defer func() {
		c.metrics.RecordDeviceRequest(action, err, clock.Since(start))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/", strings.NewReader(params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if c.apiKey != "" {
		req.Header.Set("X-PAN-KEY", c.apiKey)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	resp = &response{}
	if xerr := xml.Unmarshal(body, resp); xerr != nil {
		if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
			return nil, fmt.Errorf("API error (status %d): %s", httpResp.StatusCode, strings.TrimSpace(string(body)))
		}
		return nil, fmt.Errorf("failed to decode response: %w", xerr)
	}
	if err := resp.err(); err != nil {
		return nil, err
	}
	return resp, nil
}
