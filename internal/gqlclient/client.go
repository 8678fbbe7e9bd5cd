package gqlclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"attendboard/internal/metrics"
)

// ErrEndpointMissing is returned by every call when no endpoint is configured.
var ErrEndpointMissing = errors.New("graphql endpoint not configured")

// ErrUnsupported is returned for operations the configured schema has no field for.
var ErrUnsupported = errors.New("operation not supported by schema")

// Schema names a generation of the backend schema.
type Schema string

const (
	// SchemaRecords is Student / AttendanceRecord / Alert.
	SchemaRecords Schema = "records"
	// SchemaLegacy is the presence-only FaceIndex / Attendance tables.
	SchemaLegacy Schema = "legacy"
)

// ParseSchema accepts "records" or "legacy"; empty means records.
func ParseSchema(s string) (Schema, error) {
	switch Schema(strings.ToLower(strings.TrimSpace(s))) {
	case "", SchemaRecords:
		return SchemaRecords, nil
	case SchemaLegacy:
		return SchemaLegacy, nil
	default:
		return "", fmt.Errorf("unknown graphql schema %q", s)
	}
}

// GraphQLError is one entry of a response's errors array.
type GraphQLError struct {
	Message   string `json:"message"`
	ErrorType string `json:"errorType,omitempty"`
	Path      []any  `json:"path,omitempty"`
}

// ResponseError carries the errors the backend returned alongside a 200.
type ResponseError struct {
	Operation string
	Errors    []GraphQLError
}

func (e *ResponseError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, ge := range e.Errors {
		m := ge.Message
		if len(ge.Path) > 0 {
			m = fmt.Sprintf("%s (path %v)", m, ge.Path)
		}
		msgs = append(msgs, m)
	}
	return fmt.Sprintf("graphql %s: %s", e.Operation, strings.Join(msgs, "; "))
}

// Options configure a Client.
type Options struct {
	Endpoint string
	APIKey   string
	Schema   Schema
	Timeout  time.Duration
	PageSize int
}

// Client talks to the managed GraphQL backend.
type Client struct {
	Endpoint string
	APIKey   string
	Schema   Schema
	PageSize int
	HTTP     *http.Client
	logger   zerolog.Logger
}

// New creates a client with configurable timeout.
func New(opts Options, logger zerolog.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 100
	}
	if opts.Schema == "" {
		opts.Schema = SchemaRecords
	}
	return &Client{
		Endpoint: opts.Endpoint,
		APIKey:   opts.APIKey,
		Schema:   opts.Schema,
		PageSize: opts.PageSize,
		HTTP:     &http.Client{Timeout: opts.Timeout},
		logger:   logger.With().Str("component", "graphql_client").Logger(),
	}
}

type request struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type envelope struct {
	Data   json.RawMessage `json:"data"`
	Errors []GraphQLError  `json:"errors"`
}

// do sends one operation and decodes data into out.
func (c *Client) do(ctx context.Context, operation, query string, vars map[string]any, out any) (err error) {
	if c.Endpoint == "" {
		return ErrEndpointMissing
	}
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		metrics.GraphQLRequests().WithLabelValues(operation, outcome).Inc()
		metrics.GraphQLLatency().WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}()

	body, err := json.Marshal(request{Query: query, Variables: vars})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("x-api-key", c.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("graphql request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("graphql %s error %s: %s", operation, resp.Status, string(bodyBytes))
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if len(env.Errors) > 0 {
		return &ResponseError{Operation: operation, Errors: env.Errors}
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode %s data: %w", operation, err)
	}
	return nil
}

type page[T any] struct {
	Items     []T     `json:"items"`
	NextToken *string `json:"nextToken"`
}

// listAll follows nextToken until the connection is exhausted.
func listAll[T any](ctx context.Context, c *Client, operation, query, field string, filter map[string]any) ([]T, error) {
	var (
		items []T
		token *string
	)
	for {
		vars := map[string]any{"limit": c.PageSize}
		if token != nil {
			vars["nextToken"] = *token
		}
		if filter != nil {
			vars["filter"] = filter
		}
		var data map[string]page[T]
		if err := c.do(ctx, operation, query, vars, &data); err != nil {
			return nil, err
		}
		p := data[field]
		items = append(items, p.Items...)
		if p.NextToken == nil || *p.NextToken == "" {
			return items, nil
		}
		token = p.NextToken
	}
}

// Ping checks that the endpoint answers a trivial query.
func (c *Client) Ping(ctx context.Context) error {
	var out struct {
		Typename string `json:"__typename"`
	}
	return c.do(ctx, "ping", pingQuery, nil, &out)
}
