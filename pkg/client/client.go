// Package client is a typed Go client for the WildPals HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"wildpals/internal/model"
)

const (
	defaultTimeout    = 10 * time.Second
	defaultMaxRetries = 3
	defaultRetryDelay = 250 * time.Millisecond
)

// APIError is an application-level error response from the server. Requests
// that produced an APIError are never retried: the server made a decision.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// Client talks to a WildPals server. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	maxRetries int
	retryDelay time.Duration
}

// Option customizes a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithRetries sets the retry budget for network-class failures. Linear
// backoff: attempt n waits n*delay before retrying.
func WithRetries(max int, delay time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = max
		c.retryDelay = delay
	}
}

// WithHTTPClient swaps the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a client for the given base URL, e.g. "http://localhost:8080".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    baseURL,
		maxRetries: defaultMaxRetries,
		retryDelay: defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetToken sets the bearer token used for authenticated endpoints.
func (c *Client) SetToken(token string) {
	c.token = token
}

// envelope mirrors the server's response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

// do sends one request and decodes the envelope into out (out may be nil).
// Network failures before a response arrives are retried with linear backoff;
// any received response, success or not, ends the retry loop.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * c.retryDelay):
			}
		}

		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
		if err != nil {
			return err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			continue
		}

		return decodeEnvelope(resp, out)
	}

	return fmt.Errorf("request failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

func decodeEnvelope(resp *http.Response, out interface{}) error {
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}

	if !env.Success {
		return &APIError{Status: resp.StatusCode, Code: env.Code, Message: env.Error}
	}

	if out != nil && env.Data != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}

// ---- Auth ----

func (c *Client) Register(ctx context.Context, req *model.RegisterRequest) (*model.LoginResponse, error) {
	var out model.LoginResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", req, &out); err != nil {
		return nil, err
	}
	c.token = out.AccessToken
	return &out, nil
}

func (c *Client) Login(ctx context.Context, email, password string) (*model.LoginResponse, error) {
	var out model.LoginResponse
	req := &model.LoginRequest{Email: email, Password: password}
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", req, &out); err != nil {
		return nil, err
	}
	c.token = out.AccessToken
	return &out, nil
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (*model.TokenPair, error) {
	var out model.TokenPair
	req := &model.RefreshRequest{RefreshToken: refreshToken}
	if err := c.do(ctx, http.MethodPost, "/api/auth/refresh", req, &out); err != nil {
		return nil, err
	}
	c.token = out.AccessToken
	return &out, nil
}

func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	return c.do(ctx, http.MethodPost, "/api/auth/logout", &model.LogoutRequest{RefreshToken: refreshToken}, nil)
}

func (c *Client) LogoutAll(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/auth/logout-all", nil, nil)
}

func (c *Client) RequestPasswordReset(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/api/auth/request-reset", map[string]string{"email": email}, nil)
}

func (c *Client) ResetPassword(ctx context.Context, token, newPassword string) error {
	body := map[string]string{"token": token, "new_password": newPassword}
	return c.do(ctx, http.MethodPost, "/api/auth/reset-password", body, nil)
}

// ---- Users ----

func (c *Client) Me(ctx context.Context) (*model.User, error) {
	var out model.User
	if err := c.do(ctx, http.MethodGet, "/api/users/me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetProfile(ctx context.Context, userID int64) (*model.User, error) {
	var out model.User
	if err := c.do(ctx, http.MethodGet, "/api/users/"+strconv.FormatInt(userID, 10), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateProfile(ctx context.Context, req *model.UpdateProfileRequest) (*model.User, error) {
	var out model.User
	if err := c.do(ctx, http.MethodPut, "/api/users/me", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SearchUsers(ctx context.Context, query string, limit int) ([]model.UserSummary, error) {
	q := url.Values{"q": {query}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out []model.UserSummary
	if err := c.do(ctx, http.MethodGet, "/api/users/search?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ---- Rides ----

func (c *Client) ListRides(ctx context.Context) ([]model.Ride, error) {
	var out []model.Ride
	if err := c.do(ctx, http.MethodGet, "/api/rides", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetRide(ctx context.Context, rideID int64) (*model.Ride, error) {
	var out model.Ride
	if err := c.do(ctx, http.MethodGet, ridePath(rideID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateRide(ctx context.Context, req *model.CreateRideRequest) (*model.Ride, error) {
	var out model.Ride
	if err := c.do(ctx, http.MethodPost, "/api/rides", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateRide(ctx context.Context, rideID int64, req *model.UpdateRideRequest) (*model.Ride, error) {
	var out model.Ride
	if err := c.do(ctx, http.MethodPut, ridePath(rideID), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteRide(ctx context.Context, rideID int64) error {
	return c.do(ctx, http.MethodDelete, ridePath(rideID), nil, nil)
}

func (c *Client) JoinRide(ctx context.Context, rideID int64) (*model.Ride, error) {
	var out model.Ride
	if err := c.do(ctx, http.MethodPost, ridePath(rideID)+"/join", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) LeaveRide(ctx context.Context, rideID int64) error {
	return c.do(ctx, http.MethodPost, ridePath(rideID)+"/leave", nil, nil)
}

func ridePath(rideID int64) string {
	return "/api/rides/" + strconv.FormatInt(rideID, 10)
}

// ---- Clubs ----

func (c *Client) ListClubs(ctx context.Context) ([]model.Club, error) {
	var out []model.Club
	if err := c.do(ctx, http.MethodGet, "/api/clubs", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListMyClubs(ctx context.Context) ([]model.Club, error) {
	var out []model.Club
	if err := c.do(ctx, http.MethodGet, "/api/clubs/user", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetClub(ctx context.Context, clubID int64) (*model.Club, error) {
	var out model.Club
	if err := c.do(ctx, http.MethodGet, clubPath(clubID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateClub(ctx context.Context, req *model.CreateClubRequest) (*model.Club, error) {
	var out model.Club
	if err := c.do(ctx, http.MethodPost, "/api/clubs", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) JoinClub(ctx context.Context, clubID int64, message *string) (*model.JoinClubResult, error) {
	var out model.JoinClubResult
	req := &model.JoinClubRequest{Message: message}
	if err := c.do(ctx, http.MethodPost, clubPath(clubID)+"/join", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListJoinRequests(ctx context.Context, clubID int64) ([]model.ClubJoinRequest, error) {
	var out []model.ClubJoinRequest
	if err := c.do(ctx, http.MethodGet, clubPath(clubID)+"/requests", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ResolveJoinRequest(ctx context.Context, requestID int64, req *model.ResolveJoinRequest) (*model.ClubJoinRequest, error) {
	var out model.ClubJoinRequest
	path := "/api/clubs/requests/" + strconv.FormatInt(requestID, 10)
	if err := c.do(ctx, http.MethodPost, path, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func clubPath(clubID int64) string {
	return "/api/clubs/" + strconv.FormatInt(clubID, 10)
}

// ---- Messages ----

func (c *Client) SendMessage(ctx context.Context, req *model.SendMessageRequest) (*model.Message, error) {
	var out model.Message
	if err := c.do(ctx, http.MethodPost, "/api/messages", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListMessages(ctx context.Context) ([]model.Message, error) {
	var out []model.Message
	if err := c.do(ctx, http.MethodGet, "/api/messages", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListRideMessages(ctx context.Context, rideID int64) ([]model.Message, error) {
	var out []model.Message
	if err := c.do(ctx, http.MethodGet, "/api/messages/ride/"+strconv.FormatInt(rideID, 10), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListConversations(ctx context.Context) ([]model.Conversation, error) {
	var out []model.Conversation
	if err := c.do(ctx, http.MethodGet, "/api/messages/threads", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) MarkConversationRead(ctx context.Context, otherUserID int64) error {
	path := "/api/messages/threads/" + strconv.FormatInt(otherUserID, 10) + "/read"
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

func (c *Client) DeleteMessage(ctx context.Context, messageID int64) error {
	return c.do(ctx, http.MethodDelete, "/api/messages/"+strconv.FormatInt(messageID, 10), nil, nil)
}

// ---- Ops ----

// Health reports whether the server answers its health check.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned %d", resp.StatusCode)
	}
	return nil
}
