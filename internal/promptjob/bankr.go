package promptjob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kjannette/trahn-agent/internal/httputil"
	"golang.org/x/time/rate"
)

const DefaultBankrURL = "https://api.bankr.bot"

var ErrUnauthorized = errors.New("bankr: API key rejected")

// Wallet is one address the upstream account controls.
type Wallet struct {
	Chain   string `json:"chain"`
	Address string `json:"address"`
}

type UserInfo struct {
	Wallets []Wallet `json:"wallets"`
}

// WalletFor returns the wallet on chain, falling back to the first one.
func (u UserInfo) WalletFor(chain string) (Wallet, bool) {
	for _, w := range u.Wallets {
		if strings.EqualFold(w.Chain, chain) {
			return w, true
		}
	}
	if len(u.Wallets) > 0 {
		return u.Wallets[0], true
	}
	return Wallet{}, false
}

type BankrConfig struct {
	BaseURL    string
	APIKey     string
	RatePerSec float64
	Timeout    time.Duration
}

// BankrClient talks to the Bankr agent API.
type BankrClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	retry      httputil.RetryConfig
	limiter    *rate.Limiter
}

func NewBankrClient(cfg BankrConfig) *BankrClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBankrURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	return &BankrClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		retry: httputil.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   time.Second,
			MaxDelay:    8 * time.Second,
		},
		limiter: rate.NewLimiter(limit, 1),
	}
}

func (c *BankrClient) Submit(ctx context.Context, prompt, correlationID string) (Submission, error) {
	payload, err := json.Marshal(struct {
		Prompt   string `json:"prompt"`
		ThreadID string `json:"threadId,omitempty"`
	}{prompt, correlationID})
	if err != nil {
		return Submission{}, &SubmissionError{Message: "encode prompt", Err: err}
	}

	resp, err := c.do(ctx, http.MethodPost, "/agent/prompt", payload)
	if err != nil {
		return Submission{}, &SubmissionError{Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	var body struct {
		Success  bool   `json:"success"`
		JobID    string `json:"jobId"`
		ThreadID string `json:"threadId"`
		Message  string `json:"message"`
		Error    string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err := json.Unmarshal(raw, &body); err != nil && resp.StatusCode < 300 {
		return Submission{}, &SubmissionError{Message: "decode response", Err: err}
	}

	if resp.StatusCode >= 300 || !body.Success || body.JobID == "" {
		msg := firstNonEmpty(body.Message, body.Error, strings.TrimSpace(string(raw)))
		if resp.StatusCode >= 300 {
			msg = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, msg)
		}
		return Submission{}, &SubmissionError{Message: msg}
	}
	return Submission{JobID: body.JobID, CorrelationID: body.ThreadID}, nil
}

func (c *BankrClient) FetchJob(ctx context.Context, jobID string) (JobStatus, error) {
	resp, err := c.do(ctx, http.MethodGet, "/agent/job/"+url.PathEscape(jobID), nil)
	if err != nil {
		return JobStatus{}, fmt.Errorf("fetch job %s: %w", jobID, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return JobStatus{}, fmt.Errorf("read job %s: %w", jobID, err)
	}
	if resp.StatusCode != http.StatusOK {
		return JobStatus{}, fmt.Errorf("job %s returned status %d", jobID, resp.StatusCode)
	}

	var body struct {
		JobID    string `json:"jobId"`
		Status   Status `json:"status"`
		Response string `json:"response"`
		Error    string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return JobStatus{}, fmt.Errorf("decode job %s: %w", jobID, err)
	}
	return JobStatus{
		JobID:    jobID,
		Status:   body.Status,
		Response: body.Response,
		Error:    body.Error,
		Raw:      raw,
	}, nil
}

func (c *BankrClient) Poll(ctx context.Context, jobID string, opts PollOptions) JobResult {
	return Poll(ctx, c, jobID, opts)
}

// UserInfo returns the account behind the API key. ErrUnauthorized means
// the key is invalid.
func (c *BankrClient) UserInfo(ctx context.Context) (UserInfo, error) {
	resp, err := c.do(ctx, http.MethodGet, "/agent/me", nil)
	if err != nil {
		return UserInfo{}, fmt.Errorf("bankr user info: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return UserInfo{}, ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		return UserInfo{}, fmt.Errorf("bankr user info returned status %d", resp.StatusCode)
	}

	var info UserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return UserInfo{}, fmt.Errorf("decode user info: %w", err)
	}
	return info, nil
}

func (c *BankrClient) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	return httputil.Do(ctx, c.httpClient, c.retry, func() (*http.Request, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-API-Key", c.apiKey)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return req, nil
	})
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return "unknown"
}
