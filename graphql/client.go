package graphql

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const RoleHeader = "x-hasura-role"

// TokenSource yields the bearer token attached to every outbound call.
type TokenSource interface {
	AccessToken() string
}

type CachePolicy int

const (
	CacheFirst CachePolicy = iota
	NetworkOnly
)

// Client issues queries and mutations over HTTP. Query results are kept in a
// small cache until the next mutation or ClearStore.
type Client struct {
	http     *resty.Client
	endpoint string
	role     string
	tokens   TokenSource
	log      *zap.Logger

	mu    sync.Mutex
	cache map[string]json.RawMessage
	// gen counts clears; a result fetched under an older gen is not cached
	gen uint64
}

func NewClient(endpoint, role string, tokens TokenSource, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		http:     resty.New(),
		endpoint: endpoint,
		role:     role,
		tokens:   tokens,
		log:      log,
		cache:    make(map[string]json.RawMessage),
	}
}

// AuthHeaders returns the headers every channel carries.
func AuthHeaders(tokens TokenSource, role string) map[string]string {
	h := map[string]string{RoleHeader: role}
	if tokens != nil {
		if token := tokens.AccessToken(); token != "" {
			h["Authorization"] = "Bearer " + token
		}
	}
	return h
}

func (c *Client) Query(ctx context.Context, req Request, out any, policy CachePolicy) error {
	key, err := cacheKey(req)
	if err != nil {
		return err
	}
	c.mu.Lock()
	gen := c.gen
	cached, ok := c.cache[key]
	c.mu.Unlock()
	if ok && policy == CacheFirst {
		c.log.Debug("graphql cache hit", zap.String("operation", req.OperationName))
		return decode(cached, out)
	}

	data, err := c.do(ctx, req)
	if err != nil {
		return err
	}
	c.mu.Lock()
	if c.gen == gen {
		c.cache[key] = data
	}
	c.mu.Unlock()
	return decode(data, out)
}

// Mutate runs a mutation and drops every cached query result.
func (c *Client) Mutate(ctx context.Context, req Request, out any) error {
	data, err := c.do(ctx, req)
	c.ClearStore()
	if err != nil {
		return err
	}
	return decode(data, out)
}

// ClearStore forgets all cached query results.
func (c *Client) ClearStore() {
	c.mu.Lock()
	c.cache = make(map[string]json.RawMessage)
	c.gen++
	c.mu.Unlock()
}

func (c *Client) do(ctx context.Context, req Request) (json.RawMessage, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(AuthHeaders(c.tokens, c.role)).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		Post(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("graphql %s: %w", req.OperationName, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, &HTTPError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}

	var result Response
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, fmt.Errorf("graphql %s: decode response: %w", req.OperationName, err)
	}
	if len(result.Errors) > 0 {
		return nil, newError(result.Errors)
	}
	c.log.Debug("graphql request", zap.String("operation", req.OperationName))
	return result.Data, nil
}

func cacheKey(req Request) (string, error) {
	vars, err := json.Marshal(req.Variables)
	if err != nil {
		return "", fmt.Errorf("graphql %s: encode variables: %w", req.OperationName, err)
	}
	return req.OperationName + ":" + string(vars), nil
}

func decode(data json.RawMessage, out any) error {
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("graphql: decode data: %w", err)
	}
	return nil
}
