package twitter

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// helper to create client against a test server
func newTestClient(url string, attempts int) *Client {
	c := NewClient(Credentials{ConsumerKey: "ck", ConsumerSecret: "cs", AccessToken: "at", AccessSecret: "as"},
		Options{BaseURL: url, MaxAttempts: attempts, BaseBackoff: 10 * time.Millisecond, RPS: 1000, Burst: 100})
	return c
}

func TestDoWithRetryHandles429(t *testing.T) {
	attempts := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer ts.Close()

	c := newTestClient(ts.URL, 3)
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/test", nil)
	resp, err := c.doWithRetry(context.Background(), "test", req)
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestSingleAttemptDoesNotRetry(t *testing.T) {
	attempts := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	c := newTestClient(ts.URL, 1)
	_, err := c.Search(context.Background(), SearchQuery{Terms: []string{"rain"}, Count: 100})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected one attempt, got %d", attempts)
	}
}

func TestUnreachableServer(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := ts.URL
	ts.Close()
	c := newTestClient(url, 1)
	if _, err := c.Search(context.Background(), SearchQuery{Terms: []string{"x"}, Count: 1}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestSearchSendsQueryAndDecodesPage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search/tweets.json" {
			t.Errorf("path %s", r.URL.Path)
		}
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "OAuth ") || !strings.Contains(auth, `oauth_signature="`) || !strings.Contains(auth, `oauth_consumer_key="ck"`) {
			t.Errorf("bad Authorization header %q", auth)
		}
		q := r.URL.Query()
		want := map[string]string{
			"q": "#wateroverlast regen", "count": "100", "geocode": "52.09,5.1,160km",
			"result_type": "recent", "include_entities": "1", "max_id": "250126199840518145",
		}
		for k, v := range want {
			if q.Get(k) != v {
				t.Errorf("param %s = %q, want %q", k, q.Get(k), v)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"statuses":[
			{"id":1,"text":"a","created_at":"Wed May 29 10:15:42 +0000 2013","user":{"screen_name":"u"},
			 "coordinates":{"type":"Point","coordinates":[5.1,52.09]}},
			{"id":2,"text":"b","user":{"screen_name":"v"},"coordinates":null}],
			"search_metadata":{"next_results":"?max_id=249279667666817023&q=%23wateroverlast&count=100&include_entities=1"}}`))
	}))
	defer ts.Close()

	c := newTestClient(ts.URL, 1)
	page, err := c.Search(context.Background(), SearchQuery{
		Terms: []string{"#wateroverlast", "regen"}, Count: 100, Geocode: "52.09,5.1,160km",
		ResultType: "recent", IncludeEntities: true, MaxID: "250126199840518145",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Statuses) != 2 || page.Statuses[0].Coordinates == nil || page.Statuses[1].Coordinates != nil {
		t.Fatalf("statuses: %+v", page.Statuses)
	}
	id, more, err := page.NextMaxID()
	if err != nil || !more || id != "249279667666817023" {
		t.Fatalf("next: %q %v %v", id, more, err)
	}
}

func TestNextMaxID(t *testing.T) {
	if _, more, err := (SearchPage{}).NextMaxID(); more || err != nil {
		t.Fatalf("empty token: %v %v", more, err)
	}
	for _, tok := range []string{"?q=rain", "?max_id=&q=rain", "?max_id=%zz"} {
		if _, _, err := (SearchPage{NextResults: tok}).NextMaxID(); !errors.Is(err, ErrBadContinuation) {
			t.Fatalf("%q: expected ErrBadContinuation, got %v", tok, err)
		}
	}
	id, more, err := (SearchPage{NextResults: "max_id=42&q=x"}).NextMaxID()
	if err != nil || !more || id != "42" {
		t.Fatalf("without leading ?: %q %v %v", id, more, err)
	}
}

func TestSignatureIsDeterministic(t *testing.T) {
	c := newTestClient("https://api.twitter.com/1.1", 1)
	c.nowFn = func() time.Time { return time.Unix(1318622958, 0) }
	c.nonceFn = func() string { return "kYjzVBB8Y0ZFabxSWbWovY3uYSQ2pTgmZeNu2VS4cg" }
	sign := func() string {
		req, _ := http.NewRequest(http.MethodGet, "https://api.twitter.com/1.1/search/tweets.json?q=rain", nil)
		c.sign(req, map[string]string{"q": "rain"})
		return req.Header.Get("Authorization")
	}
	a, b := sign(), sign()
	if a == "" || a != b {
		t.Fatalf("signatures differ:\n%s\n%s", a, b)
	}
}
