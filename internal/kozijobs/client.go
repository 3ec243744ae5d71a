package kozijobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	loginPath = "/login"
	jobsPath  = "/jobs"

	contentType = "application/json"

	// Every outbound call is bounded; the upstream API is known to be flaky.
	requestTimeout = 15 * time.Second

	tokenTTL = time.Hour
	// A token this close to expiry is treated as already expired.
	tokenSafetyMargin = 5 * time.Minute

	// The upstream tolerates only a modest request rate.
	requestsPerSecond = 5
)

// Credentials authenticate against the upstream jobs API. A nil Credentials
// makes the client operate unauthenticated.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	RoleID   int    `json:"role_id"`
}

// Client talks to the upstream jobs API. It owns a cached bearer token with
// explicit expiry; concurrent refreshes are collapsed into a single login.
type Client struct {
	baseURL    string
	creds      *Credentials
	logger     *zap.Logger
	HTTPClient *http.Client

	limiter *rate.Limiter
	refresh singleflight.Group

	mu     sync.Mutex
	token  string
	expiry time.Time

	now func() time.Time
}

func New(baseURL string, creds *Credentials, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL: baseURL,
		creds:   creds,
		logger:  logger,
		HTTPClient: &http.Client{
			Timeout: requestTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
		now:     time.Now,
	}
}

// FetchJobs fetches, normalizes, filters and sorts jobs from the upstream API.
// It never fails the caller: any irrecoverable upstream error yields an empty
// list and a logged cause.
func (c *Client) FetchJobs(ctx context.Context, filters Filters) []Job {
	if err := c.limiter.Wait(ctx); err != nil {
		c.logger.Error("rate limiter wait aborted", zap.Error(err))
		return nil
	}

	token, err := c.cachedToken(ctx)
	if err != nil {
		c.logger.Error("acquiring jobs api token", zap.Error(err))
		return nil
	}

	records, status, err := c.getJobs(ctx, token)
	if err != nil {
		c.logger.Error("fetching jobs", zap.Error(err))
		return nil
	}

	// A 401 while a cached token was in play means the token expired upstream:
	// invalidate once, log in again and retry exactly once.
	if status == http.StatusUnauthorized && token != "" {
		c.logger.Info("jobs api rejected cached token, refreshing",
			zap.Int("status", status),
		)
		c.invalidateToken()

		token, err = c.cachedToken(ctx)
		if err != nil {
			c.logger.Error("refreshing jobs api token", zap.Error(err))
			return nil
		}

		records, status, err = c.getJobs(ctx, token)
		if err != nil {
			c.logger.Error("fetching jobs after token refresh", zap.Error(err))
			return nil
		}
	}

	if status != http.StatusOK {
		c.logger.Error("jobs api returned bad status", zap.Int("status", status))
		return nil
	}

	jobs := make([]Job, 0, len(records))
	for _, record := range records {
		job := NormalizeJob(record)
		if job == nil {
			c.logger.Debug("dropping job record without resolvable id")
			continue
		}
		jobs = append(jobs, *job)
	}

	jobs = applyFilters(jobs, filters, c.logger)
	sortByPostedDate(jobs)

	return jobs
}

// cachedToken returns a bearer token for the upstream API, logging in when the
// cache is empty or within the safety margin of expiry. Concurrent callers
// share a single in-flight login. Without credentials it returns an empty
// token and requests proceed unauthenticated.
func (c *Client) cachedToken(ctx context.Context) (string, error) {
	if c.creds == nil {
		return "", nil
	}

	if token, ok := c.currentToken(); ok {
		return token, nil
	}

	result, err, _ := c.refresh.Do("login", func() (interface{}, error) {
		// A waiter queued behind the refresh may find a fresh token already cached.
		if token, ok := c.currentToken(); ok {
			return token, nil
		}
		return c.login(ctx)
	})
	if err != nil {
		return "", err
	}

	return result.(string), nil
}

func (c *Client) currentToken() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token == "" {
		return "", false
	}
	if c.expiry.Add(-tokenSafetyMargin).Before(c.now()) {
		return "", false
	}

	return c.token, true
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.token = ""
	c.expiry = time.Time{}
}

func (c *Client) login(ctx context.Context) (string, error) {
	payload, err := json.Marshal(c.creds)
	if err != nil {
		return "", fmt.Errorf("marshal credentials: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+loginPath, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", contentType)

	c.logger.Debug("logging in to jobs api", zap.String("url", req.URL.String()))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login bad status: %s", resp.Status)
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode login response: %w", err)
	}
	if body.Token == "" {
		return "", fmt.Errorf("login response contains no token")
	}

	expiry := c.now().Add(tokenTTL)

	c.mu.Lock()
	c.token = body.Token
	c.expiry = expiry
	c.mu.Unlock()

	c.logger.Info("acquired jobs api token", zap.Time("expiry", expiry))

	return body.Token, nil
}

// getJobs performs one GET /jobs call. A non-2xx status is reported via the
// status return, not an error, so the caller can decide on the retry.
func (c *Client) getJobs(ctx context.Context, token string) ([]map[string]any, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+jobsPath, nil)
	if err != nil {
		return nil, 0, err
	}

	req.Header.Set("Content-Type", contentType)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	c.logger.Debug("make request", zap.String("url", req.URL.String()))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("jobs request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read jobs response: %w", err)
	}

	records, err := parseJobsPayload(data)
	if err != nil {
		return nil, resp.StatusCode, err
	}

	return records, resp.StatusCode, nil
}

// parseJobsPayload accepts either a bare array of records or an object
// wrapping the array under "data".
func parseJobsPayload(data []byte) ([]map[string]any, error) {
	var records []map[string]any
	if err := json.Unmarshal(data, &records); err == nil {
		return records, nil
	}

	var envelope struct {
		Data []map[string]any `json:"data"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("parse jobs payload: %w", err)
	}

	return envelope.Data, nil
}
