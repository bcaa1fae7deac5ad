package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/use-agent/botwatch/models"
)

// maxBodyBytes bounds how much of a classifier response is read.
const maxBodyBytes = 1 << 20

// Client calls the remote bot/human classification service.
// It uses net/http directly; the service speaks plain JSON.
type Client struct {
	httpClient     *http.Client
	endpoint       string
	statusEndpoint string
}

// NewClient creates a classifier client for endpoint. statusEndpoint may be
// empty, in which case Status reports "unknown". Pass a nil httpClient to
// use a client without timeout (callers then bound requests by context).
func NewClient(httpClient *http.Client, endpoint, statusEndpoint string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{httpClient: httpClient, endpoint: endpoint, statusEndpoint: statusEndpoint}
}

// Verdict is the classifier's answer for one profile.
type Verdict struct {
	Classification string `json:"classification"`
	RawOutput      string `json:"raw_output,omitempty"`
	IsBot          bool   `json:"is_bot"`
}

// analyzeResponse is the service envelope. Result stays a pointer so a
// missing field can be told apart from an empty one.
type analyzeResponse struct {
	Result *struct {
		Classification string          `json:"classification"`
		RawOutput      json.RawMessage `json:"raw_output"`
	} `json:"result"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type statusResponse struct {
	Status string `json:"status"`
}

// Classify posts profile to the service and returns its verdict. endpoint
// overrides the configured one when non-empty. Any transport failure,
// non-2xx status or body without a result is a RemoteServiceError; there
// is no retry.
func (c *Client) Classify(ctx context.Context, profile *models.ProfileRecord, endpoint string) (*Verdict, error) {
	if endpoint == "" {
		endpoint = c.endpoint
	}

	body, err := json.Marshal(profile)
	if err != nil {
		return nil, fmt.Errorf("marshal profile: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, models.RemoteServiceError(0, "invalid classifier endpoint", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, models.RemoteServiceError(0, "classifier request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, models.RemoteServiceError(resp.StatusCode, "failed to read classifier response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp.StatusCode, respBody)
	}

	var parsed analyzeResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, models.RemoteServiceError(resp.StatusCode, "malformed classifier response", err)
	}
	if parsed.Result == nil {
		return nil, models.RemoteServiceError(resp.StatusCode, "invalid response format from classifier: missing result", nil)
	}

	return &Verdict{
		Classification: parsed.Result.Classification,
		RawOutput:      rawOutputText(parsed.Result.RawOutput),
		IsBot:          strings.EqualFold(parsed.Result.Classification, "BOT"),
	}, nil
}

// Status probes the service's status endpoint: "operational" when it
// answers with that status, "unreachable" otherwise, "unknown" when no
// status endpoint is configured.
func (c *Client) Status(ctx context.Context) string {
	if c.statusEndpoint == "" {
		return "unknown"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.statusEndpoint, nil)
	if err != nil {
		return "unreachable"
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "unreachable"
	}
	defer resp.Body.Close()

	var st statusResponse
	if resp.StatusCode != http.StatusOK || json.NewDecoder(resp.Body).Decode(&st) != nil || st.Status == "" {
		return "unreachable"
	}
	return st.Status
}

// statusError maps a non-2xx response to a RemoteServiceError, using the
// service's own error message when it sent one.
func statusError(status int, body []byte) *models.Error {
	msg := fmt.Sprintf("classifier returned status %d", status)
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Error != "" {
		msg = fmt.Sprintf("%s: %s", msg, er.Error)
	}
	return models.RemoteServiceError(status, msg, nil)
}

// rawOutputText renders raw_output as text whether the service sent a
// string or any other JSON value.
func rawOutputText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
