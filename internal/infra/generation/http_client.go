// File: internal/infra/generation/http_client.go
package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"avisflow/internal/config"
	"avisflow/internal/domain"
	"avisflow/internal/domain/ports/adapter"
	"avisflow/internal/infra/metrics"
)

var _ adapter.GenerationClient = (*HTTPClient)(nil)

// maxMultiBatchItems is the hard limit the multi-batch endpoint enforces.
const maxMultiBatchItems = 100

// HTTPClient talks to the generation service. One bounded round-trip per
// call, no internal retry: the poll loop above owns all retry policy.
type HTTPClient struct {
	base   string
	apiKey string
	client *http.Client
}

func NewHTTPClient(cfg *config.GenerationConfig) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("generation base url empty")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid generation base url: %w", err)
	}

	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 5 * time.Second
	}
	readTimeout := cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 60 * time.Second
	}

	return &HTTPClient{
		base:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey: cfg.APIKey,
		client: &http.Client{
			Timeout: readTimeout,
			Transport: &http.Transport{
				DialContext:         (&net.Dialer{Timeout: connectTimeout}).DialContext,
				TLSHandshakeTimeout: connectTimeout,
				MaxIdleConnsPerHost: 8,
			},
		},
	}, nil
}

func (c *HTTPClient) StartJob(ctx context.Context, req adapter.StartJobRequest) (string, error) {
	var out struct {
		JobID string `json:"job_id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/agent", "agent", req, &out); err != nil {
		return "", err
	}
	if out.JobID == "" {
		return "", &MalformedResponseError{Endpoint: "/api/v1/agent", Detail: "missing job_id"}
	}
	return out.JobID, nil
}

func (c *HTTPClient) GetJobStatus(ctx context.Context, jobID string) (*adapter.JobStatus, error) {
	var out adapter.JobStatus
	path := "/api/v1/jobs/" + url.PathEscape(jobID)
	if err := c.doJSON(ctx, http.MethodGet, path, "jobs", nil, &out); err != nil {
		return nil, err
	}
	if out.Status == "" {
		return nil, &MalformedResponseError{Endpoint: path, Detail: "missing status"}
	}
	return &out, nil
}

// FetchResult follows a result_url indirection; the service may hand back
// an absolute URL or a path relative to the base.
func (c *HTTPClient) FetchResult(ctx context.Context, resultURL string) (*adapter.GeneratedContent, error) {
	target := resultURL
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		if !strings.HasPrefix(target, "/") {
			target = "/" + target
		}
		target = c.base + target
	}
	var out adapter.GeneratedContent
	if err := c.doJSONAbsolute(ctx, http.MethodGet, target, "result", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) DecryptBatch(ctx context.Context, req adapter.DecryptBatchRequest) (*adapter.DecryptBatchResult, error) {
	var out adapter.DecryptBatchResult
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/decryptage/batch", "decrypt_batch", decryptPayload(req), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) DecryptMultiBatch(ctx context.Context, reqs []adapter.DecryptBatchRequest, useLLM bool) (*adapter.MultiBatchResult, error) {
	if len(reqs) > maxMultiBatchItems {
		return nil, fmt.Errorf("%w: multi-batch accepts at most %d companies, got %d",
			domain.ErrInvalidArgument, maxMultiBatchItems, len(reqs))
	}
	items := make([]map[string]any, 0, len(reqs))
	for _, r := range reqs {
		items = append(items, decryptPayload(r))
	}
	body := map[string]any{"items": items, "use_llm": useLLM}

	var out adapter.MultiBatchResult
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/decryptage/multi-batch", "decrypt_multi", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func decryptPayload(r adapter.DecryptBatchRequest) map[string]any {
	return map[string]any{
		"company_id":   r.CompanyID,
		"company_name": r.CompanyName,
		"city":         r.City,
		"country":      r.Country,
		"subcategory":  r.Subcategory,
		"naf_label":    r.NAFLabel,
		"avis":         r.Reviews,
	}
}

func (c *HTTPClient) doJSON(ctx context.Context, method, path, endpoint string, in, out any) error {
	return c.doJSONAbsolute(ctx, method, c.base+path, endpoint, in, out)
}

func (c *HTTPClient) doJSONAbsolute(ctx context.Context, method, target, endpoint string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	latency := int(time.Since(start).Milliseconds())
	if err != nil {
		metrics.ObserveGenerationCall(endpoint, latency, false)
		return classifyTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.ObserveGenerationCall(endpoint, latency, false)
		// Keep a short body excerpt for diagnostics.
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &HTTPError{Status: resp.StatusCode, Body: strings.TrimSpace(string(excerpt))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		metrics.ObserveGenerationCall(endpoint, latency, false)
		return &MalformedResponseError{Endpoint: endpoint, Detail: err.Error()}
	}
	metrics.ObserveGenerationCall(endpoint, latency, true)
	return nil
}
