package kozijobs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeJobsAPI struct {
	mu         sync.Mutex
	loginCount int
	fetchCount int

	tokens      []string // token returned per login, in order
	rejectToken string   // requests bearing this token get a 401
	jobsBody    string
	envelope    bool
}

func (f *fakeJobsAPI) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		var creds Credentials
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil || creds.Email == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		token := "token-1"
		if f.loginCount < len(f.tokens) {
			token = f.tokens[f.loginCount]
		}
		f.loginCount++

		json.NewEncoder(w).Encode(map[string]string{"token": token})
	})

	mux.HandleFunc("/jobs", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.fetchCount++

		auth := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if f.rejectToken != "" && auth == f.rejectToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		body := f.jobsBody
		if body == "" {
			body = `[]`
		}
		if f.envelope {
			body = `{"data": ` + body + `}`
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	})

	return mux
}

func (f *fakeJobsAPI) counts() (logins, fetches int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loginCount, f.fetchCount
}

func newTestClient(t *testing.T, api *fakeJobsAPI, creds *Credentials) *Client {
	t.Helper()

	server := httptest.NewServer(api.handler())
	t.Cleanup(server.Close)

	return New(server.URL, creds, zap.NewNop())
}

var testCreds = &Credentials{Email: "bot@kozi.rw", Password: "secret", RoleID: 2}

func TestFetchJobsReusesCachedTokenWithinExpiry(t *testing.T) {
	api := &fakeJobsAPI{jobsBody: `[{"id": "1", "title": "Cleaner"}]`}
	client := newTestClient(t, api, testCreds)

	base := time.Now()
	client.now = func() time.Time { return base }

	require.Len(t, client.FetchJobs(context.Background(), Filters{}), 1)

	logins, _ := api.counts()
	require.Equal(t, 1, logins)

	// 55 minutes in, the token is exactly at the safety margin and still usable.
	client.now = func() time.Time { return base.Add(55 * time.Minute) }
	client.FetchJobs(context.Background(), Filters{})

	logins, _ = api.counts()
	assert.Equal(t, 1, logins, "request at expiry-5m must reuse the cached token")

	// One minute later the margin is crossed and a fresh login is required.
	client.now = func() time.Time { return base.Add(56 * time.Minute) }
	client.FetchJobs(context.Background(), Filters{})

	logins, _ = api.counts()
	assert.Equal(t, 2, logins, "request past expiry-5m must refresh the token")
}

func TestFetchJobsRetriesOnceOn401(t *testing.T) {
	api := &fakeJobsAPI{
		tokens:      []string{"stale", "fresh"},
		rejectToken: "stale",
		jobsBody:    `[{"id": "9", "title": "Security Guard"}]`,
	}
	client := newTestClient(t, api, testCreds)

	jobs := client.FetchJobs(context.Background(), Filters{})
	require.Len(t, jobs, 1)
	assert.Equal(t, "9", jobs[0].ID)

	logins, fetches := api.counts()
	assert.Equal(t, 2, logins, "401 must trigger exactly one token refresh")
	assert.Equal(t, 2, fetches, "401 must trigger exactly one retry")
}

func TestFetchJobsSecond401YieldsEmptyList(t *testing.T) {
	api := &fakeJobsAPI{
		tokens:      []string{"bad", "bad"},
		rejectToken: "bad",
	}
	client := newTestClient(t, api, testCreds)

	jobs := client.FetchJobs(context.Background(), Filters{})
	assert.Empty(t, jobs)

	_, fetches := api.counts()
	assert.Equal(t, 2, fetches, "a second 401 is terminal, not retried further")
}

func TestFetchJobsUnauthenticatedWithoutCredentials(t *testing.T) {
	api := &fakeJobsAPI{jobsBody: `[{"id": "3", "title": "Chef"}]`}
	client := newTestClient(t, api, nil)

	jobs := client.FetchJobs(context.Background(), Filters{})
	require.Len(t, jobs, 1)

	logins, _ := api.counts()
	assert.Zero(t, logins, "no credentials means no login call")
}

func TestFetchJobsAcceptsDataEnvelope(t *testing.T) {
	api := &fakeJobsAPI{
		jobsBody: `[{"job_id": 7, "job_title": "Nanny"}, {"title": "no id, dropped"}]`,
		envelope: true,
	}
	client := newTestClient(t, api, nil)

	jobs := client.FetchJobs(context.Background(), Filters{})
	require.Len(t, jobs, 1)
	assert.Equal(t, "7", jobs[0].ID)
	assert.Equal(t, "Nanny", jobs[0].Title)
}

func TestFetchJobsServerErrorYieldsEmptyList(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	client := New(server.URL, nil, zap.NewNop())

	assert.Empty(t, client.FetchJobs(context.Background(), Filters{}))
}

func TestFetchJobsNetworkFailureYieldsEmptyList(t *testing.T) {
	client := New("http://127.0.0.1:1", nil, zap.NewNop())
	client.HTTPClient.Timeout = time.Second

	assert.Empty(t, client.FetchJobs(context.Background(), Filters{}))
}

func TestConcurrentExpiryRefreshesOnce(t *testing.T) {
	api := &fakeJobsAPI{jobsBody: `[]`}
	client := newTestClient(t, api, testCreds)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client.FetchJobs(context.Background(), Filters{})
		}()
	}
	wg.Wait()

	logins, _ := api.counts()
	assert.Equal(t, 1, logins, "concurrent waiters must share one in-flight login")
}
