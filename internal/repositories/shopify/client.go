package shopify

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
	"sync"
	"time"

	"github.com/jmartinez0/quantity-breaks/internal/repositories"
)

const (
	// DefaultAPIVersion pins the Admin API version the client speaks unless
	// configured otherwise.
	DefaultAPIVersion = "2024-07"

	maxErrorBody = 1 << 16
)

// HTTPClient matches the subset of http.Client used by Client.
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

// Config bundles the connection settings for one shop's Admin API.
type Config struct {
	// ShopDomain is the myshopify domain, with or without scheme.
	ShopDomain string
	// AccessToken authenticates every Admin API call.
	AccessToken string
	// APIVersion overrides DefaultAPIVersion when set.
	APIVersion string
	// HTTPClient overrides http.DefaultClient, mainly for tests.
	HTTPClient HTTPClient
	// Now overrides the clock used for discount start times.
	Now func() time.Time
}

// Client talks to the Shopify Admin GraphQL API for a single shop. It
// implements the discount, catalog, metadata, and shop gateways and acts as
// the repositories.Registry handed to the service layer.
type Client struct {
	endpoint string
	token    string
	client   HTTPClient
	now      func() time.Time

	mu     sync.Mutex
	shopID string
}

var (
	_ repositories.Registry        = (*Client)(nil)
	_ repositories.DiscountGateway = (*Client)(nil)
	_ repositories.ProductCatalog  = (*Client)(nil)
	_ repositories.MetadataStore   = (*Client)(nil)
	_ repositories.ShopGateway     = (*Client)(nil)
)

// New validates the configuration and constructs a Client.
func New(cfg Config) (*Client, error) {
	domain := strings.TrimSpace(cfg.ShopDomain)
	if domain == "" {
		return nil, errors.New("shopify: shop domain is required")
	}
	if strings.TrimSpace(cfg.AccessToken) == "" {
		return nil, errors.New("shopify: access token is required")
	}
	if !strings.Contains(domain, "://") {
		domain = "https://" + domain
	}
	base, err := url.Parse(domain)
	if err != nil {
		return nil, fmt.Errorf("shopify: parse shop domain: %w", err)
	}
	version := strings.TrimSpace(cfg.APIVersion)
	if version == "" {
		version = DefaultAPIVersion
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	base.Path = fmt.Sprintf("/admin/api/%s/graphql.json", version)
	return &Client{
		endpoint: base.String(),
		token:    cfg.AccessToken,
		client:   httpClient,
		now:      func() time.Time { return now().UTC() },
	}, nil
}

// Close implements repositories.Registry. The client holds no connections of
// its own.
func (c *Client) Close(context.Context) error { return nil }

// Discounts implements repositories.Registry.
func (c *Client) Discounts() repositories.DiscountGateway { return c }

// Products implements repositories.Registry.
func (c *Client) Products() repositories.ProductCatalog { return c }

// MetadataStore implements repositories.Registry.
func (c *Client) MetadataStore() repositories.MetadataStore { return c }

// Shop implements repositories.Registry.
func (c *Client) Shop() repositories.ShopGateway { return c }

// APIError describes a transport-level Admin API failure: a non-2xx status or
// a GraphQL top-level error such as throttling.
type APIError struct {
	StatusCode int
	Message    string
}

// Error implements error.
func (e *APIError) Error() string {
	if e == nil {
		return "shopify: api error"
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("shopify: api error (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("shopify: api error: %s", e.Message)
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type graphQLEnvelope struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

type userErrorPayload struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
}

// execute posts one GraphQL document and decodes the data envelope into out.
func (c *Client) execute(ctx context.Context, doc string, variables map[string]any, out any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(graphQLRequest{Query: doc, Variables: variables}); err != nil {
		return fmt.Errorf("shopify: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &buf)
	if err != nil {
		return fmt.Errorf("shopify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("shopify: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.errorFromResponse(resp)
	}

	var envelope graphQLEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("shopify: decode response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		messages := make([]string, 0, len(envelope.Errors))
		for _, gqlErr := range envelope.Errors {
			messages = append(messages, gqlErr.Message)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: strings.Join(messages, "; ")}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("shopify: decode data: %w", err)
	}
	return nil
}

func (c *Client) errorFromResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var payload struct {
		Errors any `json:"errors"`
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &payload); err == nil && payload.Errors != nil {
			return &APIError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("%v", payload.Errors)}
		}
	}
	message := strings.TrimSpace(string(body))
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	return &APIError{StatusCode: resp.StatusCode, Message: message}
}

// userErrorList converts mutation user errors into the typed error handed to
// the engine, or nil when the mutation succeeded.
func userErrorList(op string, errs []userErrorPayload) error {
	if len(errs) == 0 {
		return nil
	}
	list := &repositories.UserErrorList{Op: op, Errors: make([]repositories.UserError, 0, len(errs))}
	for _, ue := range errs {
		list.Errors = append(list.Errors, repositories.UserError{Field: ue.Field, Message: ue.Message})
	}
	return list
}
