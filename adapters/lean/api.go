package lean

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"stratval/internal/errors"
)

// Credentials are the cloud API credentials, read from the lean CLI's
// credentials file.
type Credentials struct {
	UserID   string `json:"user-id"`
	APIToken string `json:"api-token"`
}

// LoadCredentials reads credentials from path, defaulting to the lean
// CLI's ~/.lean/credentials.
func LoadCredentials(path string) (*Credentials, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, errors.Wrap(err, "cannot locate home directory for credentials")
		}
		path = filepath.Join(home, ".lean", "credentials")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read lean credentials")
	}
	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, errors.Wrap(err, "failed to parse lean credentials")
	}
	if creds.UserID == "" || creds.APIToken == "" {
		return nil, errors.ConfigInvalid("lean credentials missing user-id or api-token")
	}
	return &creds, nil
}

// APIClient talks to the cloud engine's REST API. Calls are paced by a
// rate limiter and guarded by a circuit breaker so a failing API does
// not stall a whole walk-forward run.
type APIClient struct {
	baseURL string
	creds   *Credentials
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	now     func() time.Time
}

// NewAPIClient builds an API client. requestsPerSec bounds the request
// rate across all callers of this client.
func NewAPIClient(baseURL string, creds *Credentials, requestsPerSec float64) *APIClient {
	if requestsPerSec <= 0 {
		requestsPerSec = 2
	}
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		creds:   creds,
		http:    &http.Client{Timeout: 60 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSec), 1),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "lean-api",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
		now: time.Now,
	}
}

// authHeaders computes the API's timestamped digest auth: the token is
// hashed together with a unix timestamp and sent as basic auth.
func (c *APIClient) authHeaders() (authorization, timestamp string) {
	ts := fmt.Sprintf("%d", c.now().Unix())
	sum := sha256.Sum256([]byte(c.creds.APIToken + ":" + ts))
	hashed := hex.EncodeToString(sum[:])
	encoded := base64.StdEncoding.EncodeToString([]byte(c.creds.UserID + ":" + hashed))
	return "Basic " + encoded, ts
}

func (c *APIClient) post(ctx context.Context, endpoint string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	_, err := c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+"/"+endpoint, strings.NewReader(params.Encode()))
		if err != nil {
			return nil, err
		}
		auth, ts := c.authHeaders()
		req.Header.Set("Authorization", auth)
		req.Header.Set("Timestamp", ts)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, errors.ExternalServiceError("lean-api", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, errors.ExternalServiceError("lean-api",
				fmt.Errorf("%s returned http %d", endpoint, resp.StatusCode))
		}
		if out == nil {
			return nil, nil
		}
		return nil, json.NewDecoder(resp.Body).Decode(out)
	})
	return err
}

// BacktestResult is the API's view of one completed backtest.
type BacktestResult struct {
	BacktestID string            `json:"backtestId"`
	Name       string            `json:"name"`
	Completed  bool              `json:"completed"`
	Progress   float64           `json:"progress"`
	Error      string            `json:"error"`
	Statistics map[string]string `json:"statistics"`
}

type backtestReadResponse struct {
	Success   bool             `json:"success"`
	Errors    []string         `json:"errors"`
	Backtest  *BacktestResult  `json:"backtest"`
	Backtests []BacktestResult `json:"backtests"`
}

// ReadBacktest fetches a backtest's status and statistics.
func (c *APIClient) ReadBacktest(ctx context.Context, projectID, backtestID string) (*BacktestResult, error) {
	params := url.Values{}
	params.Set("projectId", projectID)
	params.Set("backtestId", backtestID)

	var resp backtestReadResponse
	if err := c.post(ctx, "backtests/read", params, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, apiError("backtests/read", resp.Errors)
	}
	if resp.Backtest == nil {
		return nil, errors.NotFound("backtest " + backtestID)
	}
	return resp.Backtest, nil
}

// ListBacktests lists a project's backtests.
func (c *APIClient) ListBacktests(ctx context.Context, projectID string) ([]BacktestResult, error) {
	params := url.Values{}
	params.Set("projectId", projectID)

	var resp backtestReadResponse
	if err := c.post(ctx, "backtests/list", params, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, apiError("backtests/list", resp.Errors)
	}
	return resp.Backtests, nil
}

// DeleteBacktest removes a backtest from the project. Used to clean up
// orphans left by interrupted runs.
func (c *APIClient) DeleteBacktest(ctx context.Context, projectID, backtestID string) error {
	params := url.Values{}
	params.Set("projectId", projectID)
	params.Set("backtestId", backtestID)

	var resp backtestReadResponse
	if err := c.post(ctx, "backtests/delete", params, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return apiError("backtests/delete", resp.Errors)
	}
	return nil
}

type projectReadResponse struct {
	Success  bool     `json:"success"`
	Errors   []string `json:"errors"`
	Projects []struct {
		ProjectID int    `json:"projectId"`
		Name      string `json:"name"`
	} `json:"projects"`
}

// FindProject resolves a project name to its numeric ID.
func (c *APIClient) FindProject(ctx context.Context, name string) (string, error) {
	var resp projectReadResponse
	if err := c.post(ctx, "projects/read", url.Values{}, &resp); err != nil {
		return "", err
	}
	if !resp.Success {
		return "", apiError("projects/read", resp.Errors)
	}
	for _, p := range resp.Projects {
		if p.Name == name {
			return fmt.Sprintf("%d", p.ProjectID), nil
		}
	}
	return "", errors.NotFound("project " + name)
}

func apiError(endpoint string, errs []string) error {
	if len(errs) == 0 {
		return errors.ExternalServiceError("lean-api", fmt.Errorf("%s reported failure", endpoint))
	}
	return errors.ExternalServiceError("lean-api", fmt.Errorf("%s: %s", endpoint, strings.Join(errs, "; ")))
}
