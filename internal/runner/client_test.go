package runner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/disperse/internal/models"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL, "test-key", WithRateLimit(1000))
	require.NoError(t, err)
	return client
}

func TestLaunch(t *testing.T) {
	var captured launchRequest
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v2/jobs", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))

		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(map[string]string{"handle": "job-42"})
	}))

	handle, err := client.Launch(context.Background(), models.LaunchParams{
		Template:    "tpl-a",
		ResultCount: 200,
		StartPage:   3,
	})

	require.NoError(t, err)
	assert.Equal(t, "job-42", handle)
	assert.Equal(t, "tpl-a", captured.Template)
	assert.Equal(t, 200, captured.Results)
	assert.Equal(t, 3, captured.StartPage)
}

func TestLaunchRequiresTemplate(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	}))

	_, err := client.Launch(context.Background(), models.LaunchParams{ResultCount: 10})
	require.Error(t, err)
}

func TestLaunchEmptyHandle(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{})
	}))

	_, err := client.Launch(context.Background(), models.LaunchParams{Template: "tpl-a"})
	require.Error(t, err)
}

func TestStatus(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/jobs/job-42", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"state":       "finished",
			"output":      "done",
			"exit_signal": 0,
		})
	}))

	status, err := client.Status(context.Background(), "job-42")

	require.NoError(t, err)
	assert.Equal(t, "job-42", status.Handle) // filled in when the platform omits it
	assert.Equal(t, models.JobStateFinished, status.State)
	assert.True(t, status.Finished())
}

func TestFetchResultPassesRawPayload(t *testing.T) {
	payload := `[{"profile_id":"p1"}]`
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/jobs/job-42/result", r.URL.Path)
		w.Write([]byte(payload))
	}))

	raw, err := client.FetchResult(context.Background(), "job-42")

	require.NoError(t, err)
	assert.JSONEq(t, payload, string(raw))
}

func TestFetchArchive(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/storage/job-42/result.json", r.URL.Path)
		w.Write([]byte(`{"records":[]}`))
	}))

	data, err := client.FetchArchive(context.Background(), "job-42", "result.json")

	require.NoError(t, err)
	assert.JSONEq(t, `{"records":[]}`, string(data))
}

func TestAPIErrorSurfacesStatusAndBody(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("slow down"))
	}))

	_, err := client.Status(context.Background(), "job-42")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "slow down")
}

func TestStop(t *testing.T) {
	stopped := false
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v2/jobs/job-42/stop", r.URL.Path)
		stopped = true
		w.WriteHeader(http.StatusOK)
	}))

	require.NoError(t, client.Stop(context.Background(), "job-42"))
	assert.True(t, stopped)
}
