// Package client is the Go client for the voicedeck management API,
// with a persistent session cache so repeat connections to an agent
// reuse their provisioned room.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// APIError is a non-2xx response from the platform.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// IsAuthError reports whether err is a credential rejection.
func IsAuthError(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.StatusCode == http.StatusUnauthorized
}

// Client talks to the management API.
type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
	cache   *SessionCache
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpc = h }
}

// WithSessionCache attaches a persistent session cache.
func WithSessionCache(cache *SessionCache) Option {
	return func(c *Client) { c.cache = cache }
}

// New creates a client for baseURL authenticating with token.
func New(baseURL, token string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	c := &Client{
		baseURL: baseURL,
		token:   token,
		httpc:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cache == nil {
		cache, err := NewSessionCache("")
		if err != nil {
			return nil, err
		}
		c.cache = cache
	}
	return c, nil
}

// CreateAgent registers a new agent configuration.
func (c *Client) CreateAgent(ctx context.Context, agent Agent) (*Agent, error) {
	var out Agent
	if err := c.do(ctx, http.MethodPost, "/v1/agents", agent, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetAgent fetches one agent configuration.
func (c *Client) GetAgent(ctx context.Context, id string) (*Agent, error) {
	var out Agent
	if err := c.do(ctx, http.MethodGet, "/v1/agents/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListAgents returns one page of agents.
func (c *Client) ListAgents(ctx context.Context, page, limit int) (*AgentList, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/v1/agents"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out AgentList
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateAgent applies a partial update. Zero-valued fields in agent are
// sent as-is, so build the patch from a decoded GetAgent result or use
// a minimal struct.
func (c *Client) UpdateAgent(ctx context.Context, id string, patch map[string]any) (*Agent, error) {
	var out Agent
	if err := c.do(ctx, http.MethodPut, "/v1/agents/"+url.PathEscape(id), patch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteAgent removes an agent configuration. Session history survives.
func (c *Client) DeleteAgent(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/v1/agents/"+url.PathEscape(id), nil, nil); err != nil {
		return err
	}
	_ = c.cache.Delete(id)
	return nil
}

// TestAgent provisions a throwaway session in a unique room for trying
// out an agent. Test sessions are never cached.
func (c *Client) TestAgent(ctx context.Context, id string) (*JoinCredentials, error) {
	var out JoinCredentials
	err := c.do(ctx, http.MethodPost, "/v1/livekit/create-session",
		map[string]any{"agentId": id, "isTest": true}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Session returns join credentials for the agent, reusing cached ones
// when available. Cached credentials are reused regardless of age; use
// Connect to recover automatically when the media server rejects them,
// or RefreshSession to force a fresh session.
func (c *Client) Session(ctx context.Context, agentID string) (*JoinCredentials, error) {
	if creds, ok := c.cache.Get(agentID); ok {
		return &creds, nil
	}
	return c.provision(ctx, agentID)
}

// RefreshSession drops any cached credentials for the agent and
// provisions a fresh session exactly once.
func (c *Client) RefreshSession(ctx context.Context, agentID string) (*JoinCredentials, error) {
	if err := c.cache.Delete(agentID); err != nil {
		return nil, err
	}
	return c.provision(ctx, agentID)
}

// DialFunc connects to the media server with a set of join credentials.
type DialFunc func(ctx context.Context, creds *JoinCredentials) error

// Connect resolves credentials for the agent and dials with them. A
// dial failure that looks like a token rejection invalidates the cached
// entry and re-provisions exactly once before retrying; any other
// failure, and a failure of the retry itself, surfaces unchanged.
func (c *Client) Connect(ctx context.Context, agentID string, dial DialFunc) (*JoinCredentials, error) {
	creds, err := c.Session(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if err := dial(ctx, creds); err == nil {
		return creds, nil
	} else if !tokenRejected(err) {
		return nil, err
	}

	creds, err = c.RefreshSession(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("re-provision after rejected credentials: %w", err)
	}
	if err := dial(ctx, creds); err != nil {
		return nil, err
	}
	return creds, nil
}

// tokenRejected reports whether a dial error looks like the media
// server refusing the access token, as opposed to a transport problem.
func tokenRejected(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"invalid token", "token expired", "token is expired", "unauthorized", "401", "permission denied"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// EndSession reports final metrics and closes the session record,
// keyed by the sessionId returned when the session was provisioned.
func (c *Client) EndSession(ctx context.Context, sessionID string, m SessionMetrics) error {
	path := "/v1/livekit/sessions/" + url.PathEscape(sessionID) + "/end"
	return c.do(ctx, http.MethodPost, path, m, nil)
}

func (c *Client) provision(ctx context.Context, agentID string) (*JoinCredentials, error) {
	var out JoinCredentials
	err := c.do(ctx, http.MethodPost, "/v1/livekit/create-session",
		map[string]string{"agentId": agentID}, &out)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Put(agentID, out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body *bytes.Buffer
	if in != nil {
		body = &bytes.Buffer{}
		if err := json.NewEncoder(body).Encode(in); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	} else {
		body = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		return apiErr
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
