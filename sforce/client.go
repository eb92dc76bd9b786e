// Package sforce is a REST client and persistence layer for a Salesforce-style
// sObject API. The client speaks the flat record format the mapping engine
// produces and consumes; the Repository ties client, mapper, hooks and
// relation loading together into save/fetch operations.
package sforce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultAPIVersion is the sObject API version requests are issued against
const DefaultAPIVersion = "59.0"

// Client is an sObject REST API client. It is safe for concurrent use.
type Client struct {
	auth       TokenProvider
	httpClient *http.Client
	apiVersion string
	log        *zap.Logger
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithHTTPClient sets the underlying HTTP client
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithAPIVersion sets the API version, e.g. "59.0"
func WithAPIVersion(version string) ClientOption {
	return func(c *Client) {
		c.apiVersion = version
	}
}

// WithClientLogger sets the client's logger
func WithClientLogger(log *zap.Logger) ClientOption {
	return func(c *Client) {
		c.log = log
	}
}

// NewClient creates a client authenticating through the given provider
func NewClient(auth TokenProvider, opts ...ClientOption) *Client {
	c := &Client{
		auth:       auth,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		apiVersion: DefaultAPIVersion,
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Create inserts a new record and returns the id assigned by the store
func (c *Client) Create(ctx context.Context, objectType string, record map[string]interface{}) (string, error) {
	body, err := c.do(ctx, http.MethodPost, c.sobjectPath(objectType), record)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", objectType, err)
	}

	var result struct {
		ID      string     `json:"id"`
		Success bool       `json:"success"`
		Errors  []APIError `json:"errors"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("create %s: failed to decode response: %w", objectType, err)
	}
	if !result.Success {
		if len(result.Errors) > 0 {
			return "", fmt.Errorf("create %s: %w", objectType, &result.Errors[0])
		}
		return "", fmt.Errorf("create %s: rejected without error detail", objectType)
	}
	return result.ID, nil
}

// Update patches an existing record in place
func (c *Client) Update(ctx context.Context, objectType, id string, record map[string]interface{}) error {
	if _, err := c.do(ctx, http.MethodPatch, c.sobjectPath(objectType, id), record); err != nil {
		return fmt.Errorf("update %s %s: %w", objectType, id, err)
	}
	return nil
}

// Get fetches a record by id. A non-empty field list restricts the returned
// keys to those external field names.
func (c *Client) Get(ctx context.Context, objectType, id string, fields []string) (map[string]interface{}, error) {
	path := c.sobjectPath(objectType, id)
	if len(fields) > 0 {
		path += "?fields=" + url.QueryEscape(strings.Join(fields, ","))
	}

	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("get %s %s: %w", objectType, id, err)
	}

	var record map[string]interface{}
	if err := json.Unmarshal(body, &record); err != nil {
		return nil, fmt.Errorf("get %s %s: failed to decode record: %w", objectType, id, err)
	}
	delete(record, "attributes")
	return record, nil
}

// Delete removes a record by id
func (c *Client) Delete(ctx context.Context, objectType, id string) error {
	if _, err := c.do(ctx, http.MethodDelete, c.sobjectPath(objectType, id), nil); err != nil {
		return fmt.Errorf("delete %s %s: %w", objectType, id, err)
	}
	return nil
}

// Record implements relationships.RecordSource
func (c *Client) Record(ctx context.Context, objectType, id string, fields []string) (map[string]interface{}, error) {
	return c.Get(ctx, objectType, id, fields)
}

// RelatedRecords fetches the child records reachable from a parent record
// through a named relationship
func (c *Client) RelatedRecords(ctx context.Context, objectType, id, relationship string) ([]map[string]interface{}, error) {
	body, err := c.do(ctx, http.MethodGet, c.sobjectPath(objectType, id, relationship), nil)
	if err != nil {
		return nil, fmt.Errorf("related %s for %s %s: %w", relationship, objectType, id, err)
	}

	var result struct {
		Records []map[string]interface{} `json:"records"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("related %s for %s %s: failed to decode records: %w", relationship, objectType, id, err)
	}
	for _, record := range result.Records {
		delete(record, "attributes")
	}
	return result.Records, nil
}

// Describe fetches the store's own metadata for an object type
func (c *Client) Describe(ctx context.Context, objectType string) (*ObjectDescribe, error) {
	body, err := c.do(ctx, http.MethodGet, c.sobjectPath(objectType)+"/describe", nil)
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", objectType, err)
	}

	var describe ObjectDescribe
	if err := json.Unmarshal(body, &describe); err != nil {
		return nil, fmt.Errorf("describe %s: failed to decode response: %w", objectType, err)
	}
	return &describe, nil
}

// sobjectPath builds an sObject resource path from its segments
func (c *Client) sobjectPath(segments ...string) string {
	return fmt.Sprintf("/services/data/v%s/sobjects/%s", c.apiVersion, strings.Join(segments, "/"))
}

// do issues one authenticated request and retries exactly once with a fresh
// session when the store reports the current one invalid
func (c *Client) do(ctx context.Context, method, path string, payload interface{}) ([]byte, error) {
	body, err := c.doOnce(ctx, method, path, payload)
	if !IsInvalidSession(err) {
		return body, err
	}

	c.log.Debug("session rejected, re-authenticating", zap.String("path", path))
	if err := c.auth.Invalidate(ctx); err != nil {
		return nil, err
	}
	return c.doOnce(ctx, method, path, payload)
}

func (c *Client) doOnce(ctx context.Context, method, path string, payload interface{}) ([]byte, error) {
	token, err := c.auth.Token(ctx)
	if err != nil {
		return nil, err
	}

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimSuffix(token.InstanceURL, "/")+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Sforce-Call-Id", uuid.NewString())
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	c.log.Debug("api call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode >= 400 {
		return nil, convertAPIError(resp.StatusCode, data)
	}
	return data, nil
}

// ObjectDescribe is the store's own metadata for an object type
type ObjectDescribe struct {
	Name       string          `json:"name"`
	Label      string          `json:"label"`
	Custom     bool            `json:"custom"`
	Createable bool            `json:"createable"`
	Updateable bool            `json:"updateable"`
	Fields     []FieldDescribe `json:"fields"`
}

// FieldDescribe is the store's own metadata for a single field
type FieldDescribe struct {
	Name       string `json:"name"`
	Label      string `json:"label"`
	Type       string `json:"type"`
	Length     int    `json:"length"`
	Nillable   bool   `json:"nillable"`
	Createable bool   `json:"createable"`
	Updateable bool   `json:"updateable"`
}
