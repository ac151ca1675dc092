package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/diogoX451/jackson/internal/api/dto"
	"github.com/diogoX451/jackson/internal/core/domain"
	"github.com/diogoX451/jackson/internal/core/ports"
)

const (
	DefaultAttempts = 3
	DefaultInterval = 500 * time.Millisecond
)

// ServerError is a failure response that is not a structured connect
// error.
type ServerError struct {
	Status  int
	Code    string
	Message string
}

func (e *ServerError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("server returned %d %s: %s", e.Status, e.Code, e.Message)
}

// Client is the remote Connector the coordinator talks to. Requests are
// retried while the server is not reachable yet: connection refused or
// 404, which also covers bridge ports the server has not seen yet.
type Client struct {
	baseURL  string
	http     *http.Client
	session  string
	attempts int
	interval time.Duration
	clock    clock.Clock
	log      *zap.Logger
}

var _ ports.Connector = (*Client)(nil)

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

func WithRetry(attempts int, interval time.Duration) ClientOption {
	return func(c *Client) {
		if attempts > 0 {
			c.attempts = attempts
		}
		if interval > 0 {
			c.interval = interval
		}
	}
}

func WithSession(id string) ClientOption {
	return func(c *Client) { c.session = id }
}

func WithClock(clk clock.Clock) ClientOption {
	return func(c *Client) { c.clock = clk }
}

func NewClient(baseURL string, log *zap.Logger, opts ...ClientOption) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: 30 * time.Second},
		session:  uuid.NewString(),
		attempts: DefaultAttempts,
		interval: DefaultInterval,
		clock:    clock.New(),
		log:      log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Session() string { return c.session }

func (c *Client) Capability(ctx context.Context) (domain.Capability, error) {
	data, err := c.do(ctx, http.MethodGet, "/init", nil)
	if err != nil {
		return domain.Capability{}, err
	}
	var capability domain.Capability
	if err := json.Unmarshal(data, &capability); err != nil {
		return domain.Capability{}, fmt.Errorf("decode capability: %w", err)
	}
	return capability, nil
}

func (c *Client) Connect(ctx context.Context, requests []domain.ConnectRequest) error {
	body, err := json.Marshal(dto.FromDomain(requests))
	if err != nil {
		return fmt.Errorf("marshal connect request: %w", err)
	}
	_, err = c.do(ctx, http.MethodPatch, "/connect", body)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var (
		status int
		data   []byte
		err    error
	)
	for attempt := 1; attempt <= c.attempts; attempt++ {
		status, data, err = c.send(ctx, method, path, body)
		if err == nil && status != http.StatusNotFound {
			break
		}
		if err != nil && !unreachable(err) {
			return nil, err
		}
		if attempt == c.attempts {
			break
		}

		c.log.Debug("server not reachable, retrying",
			zap.String("path", path),
			zap.Int("attempt", attempt),
			zap.Int("status", status),
			zap.Error(err))
		if sleepErr := c.sleep(ctx); sleepErr != nil {
			return nil, sleepErr
		}
	}

	if err != nil {
		return nil, fmt.Errorf("%s %s: server not reachable after %d attempts: %w", method, path, c.attempts, err)
	}
	if status >= http.StatusBadRequest {
		return nil, decodeError(status, data)
	}
	return data, nil
}

func (c *Client) send(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(SessionHeader, c.session)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, data, nil
}

func (c *Client) sleep(ctx context.Context) error {
	timer := c.clock.Timer(c.interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func unreachable(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}

// decodeError turns a failure body into a domain.ConnectError when it
// carries an error_kind tag.
func decodeError(status int, data []byte) error {
	if !gjson.ValidBytes(data) {
		return &ServerError{Status: status, Message: strings.TrimSpace(string(data))}
	}

	if kind := gjson.GetBytes(data, "error_kind"); kind.Exists() {
		connectErr, err := domain.DecodeConnectError(domain.ErrorKind(kind.String()), []byte(gjson.GetBytes(data, "data").Raw))
		if err != nil {
			return fmt.Errorf("server returned %d: %w", status, err)
		}
		return connectErr
	}

	return &ServerError{
		Status:  status,
		Code:    gjson.GetBytes(data, "code").String(),
		Message: gjson.GetBytes(data, "error").String(),
	}
}
