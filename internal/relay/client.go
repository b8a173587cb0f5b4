package relay

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/pkoenig/pushdeck/internal/credentials"
	"github.com/pkoenig/pushdeck/internal/logging"
	"github.com/pkoenig/pushdeck/internal/models"
)

const (
	// Poll responses are newline-delimited JSON; single messages stay
	// well under this line limit.
	maxLineSize = 1024 * 1024

	// Per-server request budget. Polling every topic on a server at
	// once should not hammer it.
	requestsPerSecond = 5
	requestBurst      = 10
)

// StatusError is a non-2xx response from the push server.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %s", e.Status)
}

// ClientOptions configures the relay client.
type ClientOptions struct {
	// Timeout bounds each HTTP request.
	Timeout time.Duration

	// AccountTTL is how long fetched account state stays cached.
	AccountTTL time.Duration
}

// DefaultClientOptions returns sensible client defaults.
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		Timeout:    15 * time.Second,
		AccountTTL: time.Minute,
	}
}

// Client polls topics and reads account state over HTTP.
type Client struct {
	http     *http.Client
	logger   zerolog.Logger
	accounts *cache.Cache

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewClient creates a relay client.
func NewClient(opts ClientOptions) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultClientOptions().Timeout
	}
	if opts.AccountTTL <= 0 {
		opts.AccountTTL = DefaultClientOptions().AccountTTL
	}

	return &Client{
		http:     &http.Client{Timeout: opts.Timeout},
		logger:   logging.Component("relay"),
		accounts: cache.New(opts.AccountTTL, 5*time.Minute),
		limiters: make(map[string]*rate.Limiter),
	}
}

// Poll fetches messages published to a topic since the given cursor.
// The cursor is a unix-seconds watermark; zero means the full backlog.
// creds may be nil for servers without authentication.
func (c *Client) Poll(ctx context.Context, serverURL, topic string, since int64, creds *credentials.Credentials) ([]Message, error) {
	if err := c.limiter(serverURL).Wait(ctx); err != nil {
		return nil, err
	}

	pollURL, err := buildTopicURL(serverURL, topic, "json")
	if err != nil {
		return nil, err
	}
	q := pollURL.Query()
	q.Set("poll", "1")
	q.Set("since", sinceValue(since))
	pollURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pollURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build poll request: %w", err)
	}
	if creds != nil {
		req.SetBasicAuth(creds.Username, creds.Password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("poll request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	var messages []Message
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			c.logger.Warn().Err(err).Str("topic", topic).Msg("Skipping malformed poll line")
			continue
		}
		if msg.Event != EventMessage {
			continue
		}
		messages = append(messages, msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read poll response: %w", err)
	}

	return messages, nil
}

// Account fetches the server-side account state. Results are cached
// per server and username for the configured TTL.
func (c *Client) Account(ctx context.Context, serverURL string, creds credentials.Credentials) (*Account, error) {
	key := accountCacheKey(serverURL, creds.Username)
	if cached, ok := c.accounts.Get(key); ok {
		return cached.(*Account), nil
	}

	if err := c.limiter(serverURL).Wait(ctx); err != nil {
		return nil, err
	}

	accountURL := models.NormalizeURL(serverURL) + "/v1/account"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, accountURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build account request: %w", err)
	}
	req.SetBasicAuth(creds.Username, creds.Password)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("account request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	var account Account
	if err := json.NewDecoder(resp.Body).Decode(&account); err != nil {
		return nil, fmt.Errorf("failed to parse account response: %w", err)
	}

	c.accounts.Set(key, &account, cache.DefaultExpiration)
	return &account, nil
}

// InvalidateAccount drops the cached account state for a server, for
// example after the stored login changes.
func (c *Client) InvalidateAccount(serverURL, username string) {
	c.accounts.Delete(accountCacheKey(serverURL, username))
}

func accountCacheKey(serverURL, username string) string {
	return models.NormalizeURL(serverURL) + "\x00" + username
}

func (c *Client) limiter(serverURL string) *rate.Limiter {
	key := models.NormalizeURL(serverURL)

	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.limiters[key]
	if !ok {
		l = rate.NewLimiter(rate.Limit(requestsPerSecond), requestBurst)
		c.limiters[key] = l
	}
	return l
}

// sinceValue renders the poll cursor. A zero watermark asks for the
// complete topic backlog.
func sinceValue(since int64) string {
	if since <= 0 {
		return "all"
	}
	return strconv.FormatInt(since, 10)
}

// buildTopicURL joins a server base URL with a topic subpath.
func buildTopicURL(serverURL, topic, leaf string) (*url.URL, error) {
	u, err := url.Parse(models.NormalizeURL(serverURL))
	if err != nil {
		return nil, fmt.Errorf("invalid server url %q: %w", serverURL, err)
	}
	u.Path = path.Join(u.Path, topic, leaf)
	return u, nil
}

// WebsocketURL returns the ws:// or wss:// endpoint for a topic.
func WebsocketURL(serverURL, topic string) (string, error) {
	u, err := buildTopicURL(serverURL, topic, "ws")
	if err != nil {
		return "", err
	}

	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	return u.String(), nil
}
