// Package api talks to the Mason dashboard backlog API.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"mason-engine/internal/models"

	"github.com/go-resty/resty/v2"
)

const maxRetries = 3

// retryDelay scales linearly with the attempt number: 1s, 2s, 3s.
var retryDelay = time.Second

// APIError carries the dashboard's error message and HTTP status.
// StatusCode is zero for transport-level failures.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
	}
	return e.Message
}

// Client represents a Mason dashboard API client
type Client struct {
	baseURL string
	http    *resty.Client
}

// NewClient creates a new Mason API client
func NewClient(baseURL, apiKey string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("missing apiKey in mason.config.json")
	}

	client := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
	}

	// Configure resty client
	client.http = resty.New().
		SetAuthToken(apiKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetTimeout(30 * time.Second).
		SetRetryCount(maxRetries).
		SetRetryWaitTime(retryDelay).
		SetRetryMaxWaitTime(time.Duration(maxRetries) * retryDelay).
		SetRetryAfter(func(c *resty.Client, r *resty.Response) (time.Duration, error) {
			// Linear backoff keyed to the attempt just made
			return time.Duration(r.Request.Attempt) * retryDelay, nil
		}).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			// Retry transport errors and 5xx server errors, never 4xx
			return err != nil || r.StatusCode() >= 500
		})

	return client, nil
}

// Get performs a GET request against the dashboard API
func (c *Client) Get(endpoint string, params map[string]string) (*resty.Response, error) {
	req := c.http.R()

	if params != nil {
		req.SetQueryParams(params)
	}

	return c.checked(req.Get(c.buildURL(endpoint)))
}

// Post performs a POST request against the dashboard API. A nil
// payload sends no body at all.
func (c *Client) Post(endpoint string, payload interface{}) (*resty.Response, error) {
	req := c.http.R()

	if payload != nil {
		req.SetBody(payload)
	}

	return c.checked(req.Post(c.buildURL(endpoint)))
}

// NextItems fetches the highest-priority approved backlog items.
// The limit is clamped to 1..10; repositoryID optionally narrows the
// queue to one repository.
func (c *Client) NextItems(limit int, repositoryID string) ([]models.WorkItem, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > 10 {
		limit = 10
	}

	params := map[string]string{"limit": strconv.Itoa(limit)}
	if repositoryID != "" {
		params["repository_id"] = repositoryID
	}

	resp, err := c.Get("/api/v1/backlog/next", params)
	if err != nil {
		return nil, err
	}

	var result struct {
		Items []models.WorkItem `json:"items"`
		Item  *models.WorkItem  `json:"item"`
	}
	if len(resp.Body()) > 0 {
		if err := json.Unmarshal(resp.Body(), &result); err != nil {
			return nil, fmt.Errorf("failed to decode backlog response: %w", err)
		}
	}

	items := result.Items
	if result.Item != nil {
		items = append(items, *result.Item)
	}
	return items, nil
}

// StartItem marks an item as in_progress with the branch the engine
// will work on.
func (c *Client) StartItem(itemID, branchName string) (*models.WorkItem, error) {
	resp, err := c.Post(
		fmt.Sprintf("/api/v1/backlog/%s/start", itemID),
		map[string]string{"branch_name": branchName},
	)
	if err != nil {
		return nil, err
	}
	return decodeItem(resp.Body())
}

// CompleteItem marks an item as completed with the PR that delivers it.
func (c *Client) CompleteItem(itemID, prURL string) (*models.WorkItem, error) {
	resp, err := c.Post(
		fmt.Sprintf("/api/v1/backlog/%s/complete", itemID),
		map[string]string{"pr_url": prURL},
	)
	if err != nil {
		return nil, err
	}
	return decodeItem(resp.Body())
}

// FailItem marks an item as failed. The message is optional; when
// empty the request carries no body.
func (c *Client) FailItem(itemID, errorMessage string) (*models.WorkItem, error) {
	var payload interface{}
	if errorMessage != "" {
		payload = map[string]string{"error_message": errorMessage}
	}

	resp, err := c.Post(fmt.Sprintf("/api/v1/backlog/%s/fail", itemID), payload)
	if err != nil {
		return nil, err
	}
	return decodeItem(resp.Body())
}

// checked converts transport failures and error statuses into APIError
func (c *Client) checked(resp *resty.Response, err error) (*resty.Response, error) {
	if err != nil {
		return nil, &APIError{Message: fmt.Sprintf("network error after %d retries: %v", maxRetries, err)}
	}

	if resp.IsError() {
		message := errorMessage(resp)
		// 5xx responses only surface here once the retries are spent
		if resp.StatusCode() >= 500 {
			message = fmt.Sprintf("server error after %d retries: %s", maxRetries, message)
		}
		return nil, &APIError{StatusCode: resp.StatusCode(), Message: message}
	}

	return resp, nil
}

// errorMessage pulls the dashboard's {"error": ...} body, falling back
// to the raw body and then the status text.
func errorMessage(resp *resty.Response) string {
	var errBody struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(resp.Body(), &errBody); err == nil && errBody.Error != "" {
		return errBody.Error
	}
	if body := strings.TrimSpace(string(resp.Body())); body != "" {
		return body
	}
	return http.StatusText(resp.StatusCode())
}

// decodeItem unwraps {"item": {...}} responses, tolerating a bare item
// object or an empty body.
func decodeItem(body []byte) (*models.WorkItem, error) {
	if len(body) == 0 {
		return nil, nil
	}

	var wrapped struct {
		Item *models.WorkItem `json:"item"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Item != nil {
		return wrapped.Item, nil
	}

	var item models.WorkItem
	if err := json.Unmarshal(body, &item); err != nil {
		return nil, fmt.Errorf("failed to decode item response: %w", err)
	}
	if item.ID == "" {
		return nil, nil
	}
	return &item, nil
}

// buildURL constructs the full URL for an endpoint
func (c *Client) buildURL(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "/")
	return fmt.Sprintf("%s/%s", c.baseURL, endpoint)
}

// SetTimeout allows customizing the timeout for specific operations
func (c *Client) SetTimeout(timeout time.Duration) {
	c.http.SetTimeout(timeout)
}
