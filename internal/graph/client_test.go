package graph

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

type staticToken string

func (t staticToken) Token(context.Context) (string, error) { return string(t), nil }

// sleepRecorder captures backoff durations instead of sleeping.
type sleepRecorder struct {
	slept []time.Duration
}

func (r *sleepRecorder) sleep(d time.Duration) {
	r.slept = append(r.slept, d)
}

func newTestClient(t *testing.T, serverURL string, opts ...Option) (*Client, *sleepRecorder) {
	t.Helper()
	rec := &sleepRecorder{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append([]Option{
		WithBaseURL(serverURL),
		WithSleep(rec.sleep),
	}, opts...)
	return NewClient(staticToken("test-token"), logger, opts...), rec
}

func TestListNotebooksSendsBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, `{"value":[{"id":"nb1","displayName":"Work"}]}`)
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL)
	notebooks, err := client.ListNotebooks(context.Background())
	if err != nil {
		t.Fatalf("ListNotebooks() error = %v", err)
	}

	if gotAuth != "Bearer test-token" {
		t.Errorf("Authorization header = %q, want %q", gotAuth, "Bearer test-token")
	}
	if len(notebooks) != 1 || notebooks[0].ID != "nb1" || notebooks[0].DisplayName != "Work" {
		t.Errorf("unexpected notebooks: %+v", notebooks)
	}
}

func TestFetchListAccumulatesContinuationPages(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "2":
			fmt.Fprintf(w, `{"value":[{"id":"p3","title":"c"},{"id":"p4","title":"d"}],"@odata.nextLink":"%s/me/onenote/sections/s1/pages?page=3"}`, srv.URL)
		case "3":
			fmt.Fprint(w, `{"value":[{"id":"p5","title":"e"}]}`)
		default:
			fmt.Fprintf(w, `{"value":[{"id":"p1","title":"a"},{"id":"p2","title":"b"}],"@odata.nextLink":"%s/me/onenote/sections/s1/pages?page=2"}`, srv.URL)
		}
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL)
	pages, err := client.ListPages(context.Background(), "s1")
	if err != nil {
		t.Fatalf("ListPages() error = %v", err)
	}

	wantIDs := []string{"p1", "p2", "p3", "p4", "p5"}
	if len(pages) != len(wantIDs) {
		t.Fatalf("got %d pages, want %d", len(pages), len(wantIDs))
	}
	for i, want := range wantIDs {
		if pages[i].ID != want {
			t.Errorf("pages[%d].ID = %q, want %q (order must be first-seen)", i, pages[i].ID, want)
		}
	}
}

func TestFetchListInjectsDefaultPageSize(t *testing.T) {
	var gotTop string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTop = r.URL.Query().Get("$top")
		fmt.Fprint(w, `{"value":[]}`)
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL)
	if _, err := client.ListPages(context.Background(), "s1"); err != nil {
		t.Fatalf("ListPages() error = %v", err)
	}
	if gotTop != "20" {
		t.Errorf("$top = %q, want %q", gotTop, "20")
	}
}

func TestFetchListRespectsExistingPageSize(t *testing.T) {
	var gotTop string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTop = r.URL.Query().Get("$top")
		fmt.Fprint(w, `{"value":[]}`)
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL)
	_, err := client.fetchList(context.Background(), srv.URL+"/me/onenote/sections/s1/pages?$top=50", true)
	if err != nil {
		t.Fatalf("fetchList() error = %v", err)
	}
	if gotTop != "50" {
		t.Errorf("$top = %q, want untouched %q", gotTop, "50")
	}
}

func TestFetchListPartialAccumulationOnExhaustedRetries(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			// The continuation page never recovers.
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprintf(w, `{"value":[{"id":"p1","title":"a"}],"@odata.nextLink":"%s/me/onenote/sections/s1/pages?page=2"}`, srv.URL)
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL, WithRetries(3, 3))
	pages, err := client.ListPages(context.Background(), "s1")
	if err != nil {
		t.Fatalf("expected degraded success, got error %v", err)
	}
	if len(pages) != 1 || pages[0].ID != "p1" {
		t.Errorf("expected first page's items, got %+v", pages)
	}
}

func TestFetchListFailsWhenNothingAccumulated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, rec := newTestClient(t, srv.URL, WithRetries(3, 3))
	_, err := client.ListNotebooks(context.Background())
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("expected ErrRetriesExhausted, got %v", err)
	}

	// Exponential backoff: 2^0, 2^1, 2^2 seconds.
	want := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}
	if len(rec.slept) != len(want) {
		t.Fatalf("slept %d times, want %d: %v", len(rec.slept), len(want), rec.slept)
	}
	for i, d := range want {
		if rec.slept[i] != d {
			t.Errorf("sleep %d = %v, want %v", i, rec.slept[i], d)
		}
	}
}

func TestGetWithRetryRecoversAfterServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"value":[{"id":"nb1","displayName":"Work"}]}`)
	}))
	defer srv.Close()

	client, rec := newTestClient(t, srv.URL)
	notebooks, err := client.ListNotebooks(context.Background())
	if err != nil {
		t.Fatalf("ListNotebooks() error = %v", err)
	}
	if len(notebooks) != 1 {
		t.Fatalf("got %d notebooks, want 1", len(notebooks))
	}

	want := []time.Duration{1 * time.Second, 2 * time.Second}
	if len(rec.slept) != 2 || rec.slept[0] != want[0] || rec.slept[1] != want[1] {
		t.Errorf("backoff sleeps = %v, want %v", rec.slept, want)
	}
}

func TestThrottlingDoesNotConsumeRetryAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// More 429s than the entire retry budget, then success.
		if calls.Add(1) <= 4 {
			w.Header().Set("Retry-After", "3")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"value":[{"id":"nb1","displayName":"Work"}]}`)
	}))
	defer srv.Close()

	client, rec := newTestClient(t, srv.URL, WithRetries(2, 2))
	notebooks, err := client.ListNotebooks(context.Background())
	if err != nil {
		t.Fatalf("ListNotebooks() error = %v", err)
	}
	if len(notebooks) != 1 {
		t.Fatalf("got %d notebooks, want 1", len(notebooks))
	}

	if len(rec.slept) != 4 {
		t.Fatalf("slept %d times, want 4: %v", len(rec.slept), rec.slept)
	}
	for i, d := range rec.slept {
		if d != 3*time.Second {
			t.Errorf("sleep %d = %v, want server-specified 3s", i, d)
		}
	}
}

func TestThrottlingFallsBackToDefaultWait(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"value":[]}`)
	}))
	defer srv.Close()

	client, rec := newTestClient(t, srv.URL)
	if _, err := client.ListNotebooks(context.Background()); err != nil {
		t.Fatalf("ListNotebooks() error = %v", err)
	}
	if len(rec.slept) != 1 || rec.slept[0] != 10*time.Second {
		t.Errorf("slept %v, want a single default 10s wait", rec.slept)
	}
}

func TestPermanentStatusAbortsImmediately(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	client, rec := newTestClient(t, srv.URL)
	_, err := client.ListNotebooks(context.Background())

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusForbidden {
		t.Errorf("StatusCode = %d, want %d", statusErr.StatusCode, http.StatusForbidden)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server called %d times, want exactly 1 (no retries)", got)
	}
	if len(rec.slept) != 0 {
		t.Errorf("slept %v, want no backoff for permanent errors", rec.slept)
	}
}

func TestFetchListReturnsSingularResourceVerbatim(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"nb1","displayName":"Work"}`)
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL)
	items, err := client.fetchList(context.Background(), srv.URL+"/me/onenote/notebooks/nb1", false)
	if err != nil {
		t.Fatalf("fetchList() error = %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	if string(items[0]) != `{"id":"nb1","displayName":"Work"}` {
		t.Errorf("singular payload altered: %s", items[0])
	}
}

func TestGetPageContentRequestsAnnotations(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		fmt.Fprint(w, "<html><body><p>hi</p></body></html>")
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL)
	content, err := client.GetPageContent(context.Background(), "p1")
	if err != nil {
		t.Fatalf("GetPageContent() error = %v", err)
	}
	if content != "<html><body><p>hi</p></body></html>" {
		t.Errorf("unexpected content %q", content)
	}
	if gotQuery != "includeIDs=true&includeInkML=true" {
		t.Errorf("query = %q, want id and ink annotations requested", gotQuery)
	}
}

func TestHost(t *testing.T) {
	client := NewClient(staticToken("t"), nil, WithBaseURL("https://graph.microsoft.com/v1.0"))
	if got := client.Host(); got != "graph.microsoft.com" {
		t.Errorf("Host() = %q, want %q", got, "graph.microsoft.com")
	}
}
