package twitter

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"stickytweets/internal/metrics"
)

// ErrUnavailable marks a search API that could not be reached or answered
// with an error status.
var ErrUnavailable = errors.New("search api unavailable")

// Credentials are the OAuth 1.0a application and user keys.
type Credentials struct {
	ConsumerKey    string
	ConsumerSecret string
	AccessToken    string
	AccessSecret   string
}

// Options tune the HTTP side of the client. Zero values take defaults.
type Options struct {
	BaseURL     string
	Timeout     time.Duration
	RPS         float64
	Burst       int
	MaxAttempts int
	BaseBackoff time.Duration
}

const DefaultBaseURL = "https://api.twitter.com/1.1"

// Client talks to the v1.1 REST API with OAuth 1.0a user auth.
type Client struct {
	baseURL     string
	creds       Credentials
	httpClient  *http.Client
	limiter     *rate.Limiter
	maxAttempts int
	baseBackoff time.Duration
	nowFn       func() time.Time
	nonceFn     func() string
}

func NewClient(creds Credentials, opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = 500 * time.Millisecond
	}
	return &Client{
		baseURL:     opts.BaseURL,
		creds:       creds,
		httpClient:  &http.Client{Timeout: opts.Timeout},
		limiter:     newLimiter(opts.RPS, opts.Burst),
		maxAttempts: opts.MaxAttempts,
		baseBackoff: opts.BaseBackoff,
		nowFn:       time.Now,
		nonceFn:     func() string { return strconv.FormatInt(rand.Int63(), 36) },
	}
}

// doWithRetry sends req, retrying transport errors, 429 and 5xx up to
// maxAttempts. With one attempt the last response is returned unchanged.
func (c *Client) doWithRetry(ctx context.Context, endpoint string, req *http.Request) (*http.Response, error) {
	backoff := c.baseBackoff
	for attempt := 1; ; attempt++ {
		resp, err := c.httpClient.Do(req.Clone(ctx))
		retryable := err != nil || resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		if !retryable || attempt >= c.maxAttempts {
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
			}
			return resp, nil
		}
		wait := backoff
		if resp != nil {
			wait = retryAfter(resp, backoff)
			_ = resp.Body.Close()
		}
		metrics.IncAPIRetry(endpoint)
		select {
		case <-time.After(jitter(wait)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}
}

func retryAfter(resp *http.Response, def time.Duration) time.Duration {
	ra := resp.Header.Get("Retry-After")
	if ra == "" {
		return def
	}
	if secs, err := strconv.Atoi(ra); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(ra); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return def
}

// jitter spreads wait by +/-20%.
func jitter(wait time.Duration) time.Duration {
	j := time.Duration(float64(wait) * 0.2)
	if j <= 0 {
		return wait
	}
	return wait - j + time.Duration(rand.Int63n(int64(2*j)))
}
