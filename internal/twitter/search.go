package twitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"stickytweets/internal/model"
)

// ErrBadContinuation marks a next_results token without a usable max_id.
var ErrBadContinuation = errors.New("malformed search continuation")

// SearchQuery is one request to search/tweets.
type SearchQuery struct {
	Terms           []string
	Count           int
	Geocode         string // "lat,lon,radiuskm"
	ResultType      string
	IncludeEntities bool
	MaxID           string
}

func (q SearchQuery) params() map[string]string {
	p := map[string]string{
		"q":     strings.Join(q.Terms, " "),
		"count": strconv.Itoa(q.Count),
	}
	if q.Geocode != "" {
		p["geocode"] = q.Geocode
	}
	if q.ResultType != "" {
		p["result_type"] = q.ResultType
	}
	if q.IncludeEntities {
		p["include_entities"] = "1"
	}
	if q.MaxID != "" {
		p["max_id"] = q.MaxID
	}
	return p
}

// SearchPage is one page of results plus the continuation token.
type SearchPage struct {
	Statuses    []model.PostRecord
	NextResults string
}

// NextMaxID extracts max_id from the page's next_results token. more is
// false when the source reports no further pages.
func (p SearchPage) NextMaxID() (maxID string, more bool, err error) {
	if p.NextResults == "" {
		return "", false, nil
	}
	vals, err := url.ParseQuery(strings.TrimPrefix(p.NextResults, "?"))
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrBadContinuation, err)
	}
	id := vals.Get("max_id")
	if id == "" {
		return "", false, fmt.Errorf("%w: no max_id in %q", ErrBadContinuation, p.NextResults)
	}
	return id, true, nil
}

// Search runs one search/tweets request.
func (c *Client) Search(ctx context.Context, q SearchQuery) (SearchPage, error) {
	var out SearchPage
	params := q.params()
	reqURL := c.baseURL + "/search/tweets.json?" + encodeQuery(params)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return out, err
	}
	c.sign(req, params)
	if err := c.limiter.Wait(ctx); err != nil {
		return out, err
	}
	resp, err := c.doWithRetry(ctx, "search/tweets", req)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return out, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	var raw struct {
		Statuses       []model.PostRecord `json:"statuses"`
		SearchMetadata struct {
			NextResults string `json:"next_results"`
		} `json:"search_metadata"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return out, fmt.Errorf("decode search page: %w", err)
	}
	out.Statuses = raw.Statuses
	out.NextResults = raw.SearchMetadata.NextResults
	return out, nil
}
