package unitycatalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmdatafocus/catalogsync_backend/reconcile"
	"golang.org/x/time/rate"
)

const (
	apiPrefix       = "/api/2.1/unity-catalog"
	defaultPageSize = 100
)

// Client talks to the Unity Catalog OSS REST API. Every request waits on a shared
// rate limiter.
type Client struct {
	baseURL  string
	token    string
	http     *http.Client
	limiter  *rate.Limiter
	pageSize int
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithRateLimit allows perSecond requests with a burst of the same size.
func WithRateLimit(perSecond int) Option {
	return func(c *Client) {
		if perSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), perSecond)
		}
	}
}

func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

func NewClient(endpoint string, token string, opts ...Option) (*Client, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("%w: unity catalog endpoint is empty", reconcile.ErrInvalidParameter)
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("%w: unity catalog endpoint: %v", reconcile.ErrInvalidParameter, err)
	}
	c := &Client{
		baseURL:  strings.TrimRight(endpoint, "/"),
		token:    token,
		http:     &http.Client{Timeout: 30 * time.Second},
		limiter:  rate.NewLimiter(rate.Limit(20), 20),
		pageSize: defaultPageSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Endpoint is the server address the client was built with, without a trailing slash.
func (c *Client) Endpoint() string {
	return c.baseURL
}

// APIError is a non-2xx answer. It matches reconcile.ErrResourceNotFound when the
// server reports the resource as missing.
type APIError struct {
	StatusCode int
	ErrorCode  string `json:"error_code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.ErrorCode != "" {
		return fmt.Sprintf("unity catalog api error %d %s: %s", e.StatusCode, e.ErrorCode, e.Message)
	}
	return fmt.Sprintf("unity catalog api error %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound ||
		e.ErrorCode == "NOT_FOUND" ||
		strings.HasSuffix(e.ErrorCode, "_DOES_NOT_EXIST")
}

func (e *APIError) Is(target error) bool {
	return target == reconcile.ErrResourceNotFound && e.NotFound()
}

func (c *Client) do(ctx context.Context, method string, path string, query url.Values, body interface{}, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	endpoint := c.baseURL + apiPrefix + path
	if len(query) > 0 {
		endpoint = endpoint + "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if jsonErr := json.Unmarshal(raw, apiErr); jsonErr != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return apiErr
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func resourcePath(collection string, fullName string) string {
	return "/" + collection + "/" + url.PathEscape(fullName)
}

// Catalog is the subset of a catalog the service reads.
type Catalog struct {
	Name       string            `json:"name"`
	Comment    *string           `json:"comment,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
	ID         string            `json:"id"`
	CreatedAt  *int64            `json:"created_at,omitempty"`
	UpdatedAt  *int64            `json:"updated_at,omitempty"`
}

func (c *Client) GetCatalog(ctx context.Context, name string) (*Catalog, error) {
	var out Catalog
	if err := c.do(ctx, http.MethodGet, resourcePath("catalogs", name), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func millisToTime(ms *int64) *time.Time {
	if ms == nil || *ms == 0 {
		return nil
	}
	t := time.UnixMilli(*ms).UTC()
	return &t
}

func splitSchemaKey(parentKey string) (string, string, error) {
	catalog, schema, ok := strings.Cut(parentKey, ".")
	if !ok || catalog == "" || schema == "" || strings.Contains(schema, ".") {
		return "", "", fmt.Errorf("%w: %q is not a catalog.schema name", reconcile.ErrInvalidParameter, parentKey)
	}
	return catalog, schema, nil
}

var errEmptyName = errors.New("resource name is empty")
