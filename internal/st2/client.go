// Package st2 is a client for the StackStorm automation API: alias listing,
// alias and raw executions, token auth and the event stream.
package st2

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/opsclaw/internal/aliases"
)

const (
	headerAPIKey    = "St2-Api-Key"
	headerAuthToken = "X-Auth-Token"
	headerRequestID = "X-Request-ID"
)

var tracer = otel.Tracer("github.com/nextlevelbuilder/opsclaw/internal/st2")

// Options configures a Client.
type Options struct {
	APIURL             string
	StreamURL          string // base URL of the event stream
	Timeout            time.Duration
	InsecureSkipVerify bool
}

// Client talks to the automation API. Credentials may be swapped at any
// time (token refresh); requests read them under a lock.
type Client struct {
	apiBase    string
	streamBase string
	http       *http.Client
	stream     *http.Client // no overall timeout: the stream is long-lived

	mu     sync.RWMutex
	apiKey string
	token  string
}

// NewClient creates an API client.
func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &Client{
		apiBase:    strings.TrimRight(opts.APIURL, "/"),
		streamBase: strings.TrimRight(opts.StreamURL, "/"),
		http:       &http.Client{Timeout: timeout, Transport: transport},
		stream:     &http.Client{Transport: transport},
	}
}

// SetAPIKey authenticates requests with a static API key.
func (c *Client) SetAPIKey(key string) {
	c.mu.Lock()
	c.apiKey = key
	c.mu.Unlock()
}

// SetToken authenticates requests with an auth token.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// APIURL returns the API base URL.
func (c *Client) APIURL() string { return c.apiBase }

func (c *Client) authorize(req *http.Request) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch {
	case c.apiKey != "":
		req.Header.Set(headerAPIKey, c.apiKey)
	case c.token != "":
		req.Header.Set(headerAuthToken, c.token)
	}
}

// ListAliases returns every action alias known to the API.
func (c *Client) ListAliases(ctx context.Context) ([]aliases.Definition, error) {
	var defs []aliases.Definition
	if _, err := c.do(ctx, http.MethodGet, "/v1/actionalias", nil, &defs); err != nil {
		return nil, fmt.Errorf("list aliases: %w", err)
	}
	return defs, nil
}

// CreateAliasExecution submits a matched alias command.
//
// Older API versions answer 200 with a bare execution id; that surfaces as an
// *APIError with Status 200 (see AcceptedID).
func (c *Client) CreateAliasExecution(ctx context.Context, req AliasExecutionRequest) (*AliasExecutionResult, error) {
	var envelope struct {
		AliasExecutionResult
		Results []AliasExecutionResult `json:"results"`
	}
	raw, err := c.do(ctx, http.MethodPost, "/v1/aliasexecution", req, &envelope)
	if err != nil {
		return nil, err
	}
	if len(envelope.Results) > 0 {
		return &envelope.Results[0], nil
	}
	res := envelope.AliasExecutionResult
	if res.Execution == nil && res.Message == "" {
		return nil, fmt.Errorf("alias execution: response carries no execution: %s", bytes.TrimSpace(raw))
	}
	return &res, nil
}

// CreateExecution runs an action directly.
func (c *Client) CreateExecution(ctx context.Context, req ExecutionRequest) (*Execution, error) {
	var exec Execution
	if _, err := c.do(ctx, http.MethodPost, "/v1/executions", req, &exec); err != nil {
		return nil, err
	}
	return &exec, nil
}

// do performs a JSON request. The raw body is returned alongside the decoded
// value so callers can interpret non-envelope success bodies.
func (c *Client) do(ctx context.Context, method, path string, body, out any) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "st2 "+method+" "+path, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiBase+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{
			Status:    resp.StatusCode,
			Message:   parseErrorBody(respBody),
			RequestID: resp.Header.Get(headerRequestID),
		}
		span.SetStatus(codes.Error, apiErr.Message)
		return respBody, apiErr
	}

	if out != nil && len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			if resp.StatusCode == http.StatusOK && !looksLikeJSONObject(respBody) {
				return respBody, &APIError{Status: http.StatusOK, Message: bareID(respBody)}
			}
			return respBody, fmt.Errorf("decode response: %w", err)
		}
	}
	return respBody, nil
}

func looksLikeJSONObject(b []byte) bool {
	b = bytes.TrimSpace(b)
	return len(b) > 0 && (b[0] == '{' || b[0] == '[')
}

// bareID turns a non-envelope body ("abc123" or abc123) into an id.
func bareID(b []byte) string {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(b))
}
