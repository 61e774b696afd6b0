package bgm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

func noBackoff() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff:     func(int) time.Duration { return 0 },
	}
}

type requestLog struct {
	mu    sync.Mutex
	paths []string
}

func (r *requestLog) add(req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, req.URL.RequestURI())
}

func (r *requestLog) count(prefix string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, p := range r.paths {
		if strings.HasPrefix(p, prefix) {
			n++
		}
	}
	return n
}

func TestExponentialBackoff(t *testing.T) {
	expected := map[int]time.Duration{1: 2 * time.Second, 2: 4 * time.Second, 3: 8 * time.Second}
	for attempt, want := range expected {
		if got := ExponentialBackoff(attempt); got != want {
			t.Errorf("Attempt %d: expected %v, got %v", attempt, want, got)
		}
	}
}

func TestCatalogSendsCredentials(t *testing.T) {
	var gotAuth, gotAgent, gotAccept string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAgent = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		fmt.Fprint(w, `{"id":12345,"title":"2024年1月番","total":3}`)
	}))
	defer server.Close()

	catalog := NewCatalog(server.Client(), server.URL, "secret", "season-rank/test").WithRetryPolicy(noBackoff())

	detail, err := catalog.IndexDetail(context.Background(), "12345")
	if err != nil {
		t.Fatal(err)
	}

	if detail.ID != 12345 || detail.Total != 3 {
		t.Errorf("Unexpected detail: %+v", detail)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("Expected bearer token, got '%s'", gotAuth)
	}
	if gotAgent != "season-rank/test" {
		t.Errorf("Expected user agent, got '%s'", gotAgent)
	}
	if gotAccept != "application/json" {
		t.Errorf("Expected JSON accept header, got '%s'", gotAccept)
	}
}

func TestCatalogOmitsEmptyToken(t *testing.T) {
	var hasAuth bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasAuth = r.Header["Authorization"]
		fmt.Fprint(w, `{"id":1}`)
	}))
	defer server.Close()

	catalog := NewCatalog(server.Client(), server.URL, "", "ua").WithRetryPolicy(noBackoff())
	if _, err := catalog.IndexDetail(context.Background(), "1"); err != nil {
		t.Fatal(err)
	}
	if hasAuth {
		t.Error("Expected no Authorization header without a token")
	}
}

func TestCatalogIndexDetailEmptyBody(t *testing.T) {
	for _, body := range []string{`{}`, `null`, ` { } `} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, body)
		}))

		catalog := NewCatalog(server.Client(), server.URL, "", "ua").WithRetryPolicy(noBackoff())
		detail, err := catalog.IndexDetail(context.Background(), "12345")
		server.Close()

		if err != nil {
			t.Errorf("Body %q: expected no error, got %v", body, err)
		}
		if detail != nil {
			t.Errorf("Body %q: expected nil detail, got %+v", body, detail)
		}
	}
}

func TestCatalogRetriesTransientFailures(t *testing.T) {
	log := &requestLog{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.add(r)
		switch log.count("/") {
		case 1:
			w.WriteHeader(http.StatusBadGateway)
		case 2:
			fmt.Fprint(w, `{"id": 7, "name": `)
		default:
			fmt.Fprint(w, `{"id": 7, "name": "Frieren"}`)
		}
	}))
	defer server.Close()

	catalog := NewCatalog(server.Client(), server.URL, "t", "ua").WithRetryPolicy(noBackoff())

	subject, err := catalog.SubjectDetail(context.Background(), 7)
	if err != nil {
		t.Fatalf("Expected success on third attempt, got %v", err)
	}
	if string(subject) != `{"id": 7, "name": "Frieren"}` {
		t.Errorf("Expected subject passed through unmodified, got %s", subject)
	}
	if got := log.count("/v0/subjects/7"); got != 3 {
		t.Errorf("Expected 3 requests, got %d", got)
	}
}

func TestCatalogGivesUpAfterThreeAttempts(t *testing.T) {
	log := &requestLog{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.add(r)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	catalog := NewCatalog(server.Client(), server.URL, "t", "ua").WithRetryPolicy(noBackoff())

	subject, err := catalog.SubjectDetail(context.Background(), 99)
	if err == nil {
		t.Fatal("Expected error after exhausting retries")
	}
	if subject != nil {
		t.Errorf("Expected no subject, got %s", subject)
	}

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Expected *FetchError, got %T", err)
	}
	if fetchErr.Attempts != 3 || !fetchErr.Transient || fetchErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("Unexpected fetch error: %+v", fetchErr)
	}
	if got := log.count("/v0/subjects/99"); got != 3 {
		t.Errorf("Expected 3 requests, got %d", got)
	}
}

func TestCatalogDoesNotRetryNotFound(t *testing.T) {
	log := &requestLog{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.add(r)
		http.NotFound(w, r)
	}))
	defer server.Close()

	catalog := NewCatalog(server.Client(), server.URL, "t", "ua").WithRetryPolicy(noBackoff())

	if _, err := catalog.IndexDetail(context.Background(), "404"); err == nil {
		t.Fatal("Expected error for missing index")
	}
	if got := log.count("/v0/indices/404"); got != 1 {
		t.Errorf("Expected a single request for a permanent failure, got %d", got)
	}
}

func TestCatalogRejectsNonObjectSubject(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[1,2,3]`)
	}))
	defer server.Close()

	catalog := NewCatalog(server.Client(), server.URL, "t", "ua").WithRetryPolicy(noBackoff())
	if _, err := catalog.SubjectDetail(context.Background(), 1); err == nil {
		t.Error("Expected error for array body")
	}
}

func subjectsHandler(total int, failFromOffset int, log *requestLog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log.add(r)
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if failFromOffset >= 0 && offset >= failFromOffset {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		data := []SubjectStub{}
		for i := offset; i < offset+limit && i < total; i++ {
			data = append(data, SubjectStub{ID: int64(i + 1), Name: fmt.Sprintf("subject-%d", i+1)})
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data":   data,
			"total":  total,
			"limit":  limit,
			"offset": offset,
		})
	}
}

func TestCatalogIndexSubjectsPaginates(t *testing.T) {
	log := &requestLog{}
	server := httptest.NewServer(subjectsHandler(120, -1, log))
	defer server.Close()

	catalog := NewCatalog(server.Client(), server.URL, "t", "ua").WithRetryPolicy(noBackoff())

	stubs, err := catalog.IndexSubjects(context.Background(), "12345")
	if err != nil {
		t.Fatal(err)
	}
	if len(stubs) != 120 {
		t.Fatalf("Expected 120 stubs, got %d", len(stubs))
	}
	if stubs[0].ID != 1 || stubs[119].ID != 120 {
		t.Errorf("Expected stubs in order, got first %d last %d", stubs[0].ID, stubs[119].ID)
	}

	expected := []string{
		"/v0/indices/12345/subjects?limit=50&offset=0",
		"/v0/indices/12345/subjects?limit=50&offset=50",
		"/v0/indices/12345/subjects?limit=50&offset=100",
	}
	if len(log.paths) != len(expected) {
		t.Fatalf("Expected %d requests, got %v", len(expected), log.paths)
	}
	for i, path := range expected {
		if log.paths[i] != path {
			t.Errorf("Request %d: expected %s, got %s", i, path, log.paths[i])
		}
	}
}

func TestCatalogIndexSubjectsExactMultiple(t *testing.T) {
	log := &requestLog{}
	server := httptest.NewServer(subjectsHandler(100, -1, log))
	defer server.Close()

	catalog := NewCatalog(server.Client(), server.URL, "t", "ua").WithRetryPolicy(noBackoff())

	stubs, err := catalog.IndexSubjects(context.Background(), "1")
	if err != nil {
		t.Fatal(err)
	}
	if len(stubs) != 100 {
		t.Errorf("Expected 100 stubs, got %d", len(stubs))
	}
	// The third page is empty and ends pagination.
	if len(log.paths) != 3 {
		t.Errorf("Expected 3 requests, got %d", len(log.paths))
	}
}

func TestCatalogIndexSubjectsReturnsPartialOnFailure(t *testing.T) {
	log := &requestLog{}
	server := httptest.NewServer(subjectsHandler(200, 100, log))
	defer server.Close()

	catalog := NewCatalog(server.Client(), server.URL, "t", "ua").WithRetryPolicy(noBackoff())

	stubs, err := catalog.IndexSubjects(context.Background(), "1")
	if err == nil {
		t.Error("Expected error describing the failed page")
	}
	if len(stubs) != 100 {
		t.Errorf("Expected the 100 stubs fetched before the failure, got %d", len(stubs))
	}
	if got := log.count("/v0/indices/1/subjects?limit=50&offset=100"); got != 3 {
		t.Errorf("Expected failing page to be attempted 3 times, got %d", got)
	}
}

func TestRetryPolicyStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{
		MaxAttempts: 3,
		Backoff:     func(int) time.Duration { return time.Hour },
	}

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- policy.Do(ctx, "test", func(ctx context.Context) error {
			calls++
			return &FetchError{Transient: true, Err: errors.New("boom")}
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("Expected error after cancel")
		}
		if !errors.Is(err, context.Canceled) && !strings.Contains(err.Error(), "retry aborted") {
			t.Errorf("Expected cancellation to be reported, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Retry did not stop after cancellation")
	}
	if calls != 1 {
		t.Errorf("Expected 1 call before cancellation, got %d", calls)
	}
}
