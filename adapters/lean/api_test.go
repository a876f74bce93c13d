package lean

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCredentials() *Credentials {
	return &Credentials{UserID: "12345", APIToken: "secret-token"}
}

func TestLoadCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials")
	body := `{"user-id": "12345", "api-token": "secret-token"}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	creds, err := LoadCredentials(path)
	require.NoError(t, err)
	assert.Equal(t, "12345", creds.UserID)
	assert.Equal(t, "secret-token", creds.APIToken)
}

func TestLoadCredentialsIncomplete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials")
	require.NoError(t, os.WriteFile(path, []byte(`{"user-id": "12345"}`), 0o600))

	_, err := LoadCredentials(path)
	require.Error(t, err)
}

func TestLoadCredentialsMissingFile(t *testing.T) {
	_, err := LoadCredentials(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}

func TestAuthHeaders(t *testing.T) {
	c := NewAPIClient("https://example.test/api/v2", testCredentials(), 100)
	fixed := time.Unix(1700000000, 0)
	c.now = func() time.Time { return fixed }

	auth, ts := c.authHeaders()
	assert.Equal(t, "1700000000", ts)

	sum := sha256.Sum256([]byte("secret-token:1700000000"))
	want := "Basic " + base64.StdEncoding.EncodeToString(
		[]byte("12345:"+hex.EncodeToString(sum[:])))
	assert.Equal(t, want, auth)
}

func newAPITestServer(t *testing.T, handler http.HandlerFunc) (*APIClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewAPIClient(srv.URL, testCredentials(), 100), srv
}

func TestReadBacktest(t *testing.T) {
	var gotPath, gotAuth, gotTimestamp, gotBacktestID string
	client, _ := newAPITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotTimestamp = r.Header.Get("Timestamp")
		require.NoError(t, r.ParseForm())
		gotBacktestID = r.FormValue("backtestId")
		w.Write([]byte(`{
			"success": true,
			"backtest": {
				"backtestId": "bt-1",
				"name": "STRAT-MOM-001-w1",
				"completed": true,
				"progress": 1.0,
				"statistics": {"Sharpe Ratio": "1.12"}
			}
		}`))
	})

	result, err := client.ReadBacktest(context.Background(), "42", "bt-1")
	require.NoError(t, err)

	assert.Equal(t, "/backtests/read", gotPath)
	assert.True(t, len(gotAuth) > len("Basic "))
	assert.NotEmpty(t, gotTimestamp)
	assert.Equal(t, "bt-1", gotBacktestID)
	assert.True(t, result.Completed)
	assert.Equal(t, "1.12", result.Statistics["Sharpe Ratio"])
}

func TestReadBacktestAPIFailure(t *testing.T) {
	client, _ := newAPITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": false, "errors": ["backtest not found"]}`))
	})

	_, err := client.ReadBacktest(context.Background(), "42", "bt-x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backtest not found")
}

func TestReadBacktestHTTPError(t *testing.T) {
	client, _ := newAPITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.ReadBacktest(context.Background(), "42", "bt-1")
	require.Error(t, err)
}

func TestListBacktests(t *testing.T) {
	client, _ := newAPITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"success": true,
			"backtests": [
				{"backtestId": "bt-1", "name": "run-1", "completed": true},
				{"backtestId": "bt-2", "name": "run-2", "completed": false}
			]
		}`))
	})

	list, err := client.ListBacktests(context.Background(), "42")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "bt-2", list[1].BacktestID)
	assert.False(t, list[1].Completed)
}

func TestDeleteBacktest(t *testing.T) {
	var deleted string
	client, _ := newAPITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		deleted = r.FormValue("backtestId")
		w.Write([]byte(`{"success": true}`))
	})

	require.NoError(t, client.DeleteBacktest(context.Background(), "42", "bt-1"))
	assert.Equal(t, "bt-1", deleted)
}

func TestFindProject(t *testing.T) {
	client, _ := newAPITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"success": true,
			"projects": [
				{"projectId": 7, "name": "other"},
				{"projectId": 42, "name": "stratval"}
			]
		}`))
	})

	id, err := client.FindProject(context.Background(), "stratval")
	require.NoError(t, err)
	assert.Equal(t, "42", id)

	_, err = client.FindProject(context.Background(), "missing")
	require.Error(t, err)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	client, _ := newAPITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := client.ReadBacktest(ctx, "42", "bt-1")
		require.Error(t, err)
	}
	_, err := client.ReadBacktest(ctx, "42", "bt-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker is open")
}
