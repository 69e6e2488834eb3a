// Package gifticon talks to the gifticon REST API: it lists the items a user
// may give away and hands an item over to nearby recipients.
package gifticon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bnema/giveaway-cli/internal/domain"
	"github.com/bnema/giveaway-cli/internal/ports"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const (
	listPath          = "/api/gifticons/give-away"
	sendPathTemplate  = "/api/gifticons/%s/give-away"
	maxResponseBytes  = 1 << 20
	defaultTimeout    = 30 * time.Second
	expiryDateLayout  = "2006-01-02"
	breakerName       = "gifticon-api"
	breakerTripAfter  = 5
	breakerOpenPeriod = 30 * time.Second
)

var ErrUnauthorized = errors.New("gifticon api rejected the credentials")

// TokenSource yields the bearer token for each request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// SecretTokenSource reads the bearer token from a secret store. The stores
// return normalized tokens.
type SecretTokenSource struct {
	Store ports.SecretStore
	Key   string
}

func (s SecretTokenSource) Token(ctx context.Context) (string, error) {
	if s.Store == nil {
		return "", fmt.Errorf("api token %q: %w", s.Key, domain.ErrSecretNotFound)
	}

	token, err := s.Store.Get(ctx, s.Key)
	if err != nil {
		return "", fmt.Errorf("load api token: %w", err)
	}

	return token, nil
}

type Options struct {
	BaseURL        string
	Tokens         TokenSource
	HTTPClient     *http.Client
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

// Client implements ports.GiftCatalog and ports.TransferAPI. Transport errors
// and 5xx responses count toward a circuit breaker; once open, calls fail fast
// until the breaker half-opens again.
type Client struct {
	baseURL        *url.URL
	tokens         TokenSource
	httpClient     *http.Client
	requestTimeout time.Duration
	logger         *zap.Logger
	breaker        *gobreaker.CircuitBreaker
}

var (
	_ ports.GiftCatalog = (*Client)(nil)
	_ ports.TransferAPI = (*Client)(nil)
)

func NewClient(opts Options) (*Client, error) {
	baseURL, err := parseBaseURL(opts.BaseURL)
	if err != nil {
		return nil, err
	}

	c := &Client{
		baseURL:        baseURL,
		tokens:         opts.Tokens,
		httpClient:     opts.HTTPClient,
		requestTimeout: opts.RequestTimeout,
		logger:         opts.Logger,
	}
	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}
	if c.requestTimeout <= 0 {
		c.requestTimeout = defaultTimeout
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    breakerName,
		Timeout: breakerOpenPeriod,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerTripAfter
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			c.logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !isOutage(err)
		},
	})

	return c, nil
}

type listResponse struct {
	Gifticons   []gifticonPayload `json:"gifticons"`
	HasNextPage bool              `json:"hasNextPage"`
	NextPage    *int              `json:"nextPage"`
}

type gifticonPayload struct {
	ID         json.Number `json:"gifticonId"`
	Name       string      `json:"gifticonName"`
	Brand      string      `json:"brandName"`
	ExpiryDate string      `json:"gifticonExpiryDate"`
}

type sendRequest struct {
	UUIDs []string `json:"uuids"`
}

type errorResponse struct {
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
}

// List fetches one 0-based page of give-away candidates.
func (c *Client) List(ctx context.Context, page, pageSize int) (domain.CatalogPage, error) {
	if page < 0 {
		return domain.CatalogPage{}, fmt.Errorf("page must not be negative: %d", page)
	}

	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	if pageSize > 0 {
		query.Set("size", strconv.Itoa(pageSize))
	}

	var payload listResponse
	err := c.execute(ctx, http.MethodGet, listPath, query, nil, &payload)
	if err != nil {
		return domain.CatalogPage{}, fmt.Errorf("list give-away items: %w", err)
	}

	result := domain.CatalogPage{
		Items:       make([]domain.TransferableItem, 0, len(payload.Gifticons)),
		HasNextPage: payload.HasNextPage,
	}
	if payload.NextPage != nil {
		result.NextPage = *payload.NextPage
	} else if payload.HasNextPage {
		result.NextPage = page + 1
	}

	for _, entry := range payload.Gifticons {
		result.Items = append(result.Items, entry.toDomain())
	}

	return result, nil
}

// Send gives itemID away to the holders of recipientTokens. The call is made
// exactly once; a server refusal comes back as *domain.TransferRejectedError.
func (c *Client) Send(ctx context.Context, itemID domain.ItemID, recipientTokens []string) error {
	if strings.TrimSpace(string(itemID)) == "" {
		return &domain.TransferRejectedError{Message: "Select a gift to send.", Cause: domain.ErrNoSelection}
	}
	if len(recipientTokens) == 0 {
		return &domain.TransferRejectedError{Cause: domain.ErrNoPeers}
	}

	body, err := json.Marshal(sendRequest{UUIDs: recipientTokens})
	if err != nil {
		return fmt.Errorf("encode give-away request: %w", err)
	}

	path := fmt.Sprintf(sendPathTemplate, itemID)
	if err := c.execute(ctx, http.MethodPost, path, nil, body, nil); err != nil {
		var rejected *domain.TransferRejectedError
		if errors.As(err, &rejected) {
			return rejected
		}
		return &domain.TransferRejectedError{Cause: fmt.Errorf("give away item %s: %w", itemID, err)}
	}

	return nil
}

func (c *Client) execute(ctx context.Context, method, path string, query url.Values, body []byte, out any) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.do(ctx, method, path, query, body, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", errServiceUnavailable, err)
	}

	return err
}

var errServiceUnavailable = errors.New("gifticon api temporarily unavailable")

// outageError marks failures that say nothing about the request itself.
type outageError struct {
	err error
}

func (e *outageError) Error() string { return e.err.Error() }
func (e *outageError) Unwrap() error { return e.err }

func isOutage(err error) bool {
	var outage *outageError
	return errors.As(err, &outage)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte, out any) error {
	endpoint := c.baseURL.JoinPath(path)
	if query != nil {
		endpoint.RawQuery = query.Encode()
	}

	requestCtx, cancel := c.requestContext(ctx)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(requestCtx, method, endpoint.String(), reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return err
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &outageError{err: fmt.Errorf("%s %s: %w", method, path, err)}
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.Debug("gifticon api call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(started)),
	)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return decodeErrorResponse(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil
	}

	decoder := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes))
	decoder.UseNumber()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

func (c *Client) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, c.requestTimeout)
}

func decodeErrorResponse(resp *http.Response) error {
	var payload errorResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	_ = json.Unmarshal(raw, &payload)

	rejected := &domain.TransferRejectedError{
		Code:    payload.ErrorCode,
		Message: payload.Message,
		Status:  resp.StatusCode,
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		rejected.Cause = fmt.Errorf("status %d", resp.StatusCode)
		return &outageError{err: rejected}
	case resp.StatusCode == http.StatusUnauthorized:
		rejected.Cause = ErrUnauthorized
	}

	return rejected
}

func (p gifticonPayload) toDomain() domain.TransferableItem {
	item := domain.TransferableItem{
		ID:    domain.ItemID(p.ID.String()),
		Name:  strings.TrimSpace(p.Name),
		Brand: strings.TrimSpace(p.Brand),
	}
	if p.ExpiryDate != "" {
		if parsed, err := time.Parse(expiryDateLayout, p.ExpiryDate); err == nil {
			item.ExpiresAt = parsed
		} else if parsed, err := time.Parse(time.RFC3339, p.ExpiryDate); err == nil {
			item.ExpiresAt = parsed
		}
	}

	return item
}

func parseBaseURL(raw string) (*url.URL, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errors.New("api base url is required")
	}

	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("parse api base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, errors.New("api base url must use http or https")
	}
	if parsed.Host == "" {
		return nil, errors.New("api base url host is required")
	}

	return parsed, nil
}
